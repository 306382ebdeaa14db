package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coachcal/coachcal/internal/calendar/match"
	"github.com/coachcal/coachcal/internal/ratelimit"
	"github.com/coachcal/coachcal/internal/telemetry/metrics"
	"github.com/coachcal/coachcal/internal/telemetry/tracing"
	"github.com/coachcal/coachcal/internal/trainees"
	"github.com/coachcal/coachcal/internal/workouts"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type workoutStore interface {
	Add(ctx context.Context, workout workouts.Workout) (*workouts.Workout, error)
	Get(ctx context.Context, id int) (*workouts.Workout, error)
	UpdateSchedule(ctx context.Context, id int, workoutDate time.Time, notes string) error
	SetGoogleEventID(ctx context.Context, id int, googleEventID string) error
	Delete(ctx context.Context, id int) error
	LinkTrainee(ctx context.Context, workoutID, traineeID int) error
}

type traineeStore interface {
	Get(ctx context.Context, id int) (*trainees.Trainee, error)
	ListActive(ctx context.Context, trainerID int) ([]trainees.Trainee, error)
}

type serviceSyncStore interface {
	Upsert(ctx context.Context, record SyncRecord) (*SyncRecord, error)
	GetByEventID(ctx context.Context, googleEventID, googleCalendarID string) (*SyncRecord, error)
	GetByWorkoutID(ctx context.Context, workoutID int) (*SyncRecord, error)
	ListInRange(ctx context.Context, trainerID int, from, to time.Time, status SyncStatus) ([]SyncRecord, error)
	UpdateCachedEvent(ctx context.Context, id int, event Event) error
	SetStatus(ctx context.Context, id int, status SyncStatus) error
	Delete(ctx context.Context, id int) error
}

type settingsStore interface {
	Get(ctx context.Context, trainerID int) (*SyncSettings, error)
	Upsert(ctx context.Context, settings SyncSettings) error
	Reset(ctx context.Context, trainerID int) error
}

type connectionService interface {
	Connected(ctx context.Context, trainerID int) (bool, error)
	Disconnect(ctx context.Context, trainerID int) error
	CalendarID(ctx context.Context, trainerID int) (string, error)
}

type renumberer interface {
	RenumberForTrainee(ctx context.Context, trainerID, traineeID int, scope RenumberScope) (*SyncResult, error)
}

type admission interface {
	Allow(op string, trainerID int) ratelimit.Result
}

// SyncNowResult is the aggregate outcome of one import pass.
type SyncNowResult struct {
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Pending  int      `json:"pending"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ConnectionStatus is the trainer-facing view of the integration.
type ConnectionStatus struct {
	Connected  bool         `json:"connected"`
	CalendarID string       `json:"calendarId,omitempty"`
	Settings   SyncSettings `json:"settings"`
}

type CalendarSyncServiceParams struct {
	API          API
	Reader       *Reader
	SyncRepo     serviceSyncStore
	WorkoutRepo  workoutStore
	TraineeRepo  traineeStore
	SettingsRepo settingsStore
	Connection   connectionService
	Matcher      *match.Matcher
	Renumber     renumberer
	Reconciler   *Reconciler
	Limiter      admission
	Cache        *EventCache
	Metrics      *metrics.Manager
	Location     *time.Location

	// pause between imported trainees during a sync-now pass
	InterTraineeDelay  time.Duration
	SyncWindowPastDays int
	SyncWindowDays     int
}

// CalendarSyncService ties the local schedule to the remote calendar:
// workout mutations push events out, sync-now pulls remote events in
// through the matcher, and every remote call passes local admission
// control first.
type CalendarSyncService struct {
	api          API
	reader       *Reader
	syncRepo     serviceSyncStore
	workoutRepo  workoutStore
	traineeRepo  traineeStore
	settingsRepo settingsStore
	connection   connectionService
	matcher      *match.Matcher
	renumber     renumberer
	reconciler   *Reconciler
	limiter      admission
	cache        *EventCache
	metrics      *metrics.Manager
	location     *time.Location

	interTraineeDelay  time.Duration
	syncWindowPastDays int
	syncWindowDays     int
	nowFunc            func() time.Time
}

func NewCalendarSyncService(params CalendarSyncServiceParams) *CalendarSyncService {
	return &CalendarSyncService{
		api:                params.API,
		reader:             params.Reader,
		syncRepo:           params.SyncRepo,
		workoutRepo:        params.WorkoutRepo,
		traineeRepo:        params.TraineeRepo,
		settingsRepo:       params.SettingsRepo,
		connection:         params.Connection,
		matcher:            params.Matcher,
		renumber:           params.Renumber,
		reconciler:         params.Reconciler,
		limiter:            params.Limiter,
		cache:              params.Cache,
		metrics:            params.Metrics,
		location:           params.Location,
		interTraineeDelay:  params.InterTraineeDelay,
		syncWindowPastDays: params.SyncWindowPastDays,
		syncWindowDays:     params.SyncWindowDays,
		nowFunc:            time.Now,
	}
}

func (s *CalendarSyncService) admit(op string, trainerID int) error {
	res := s.limiter.Allow(op, trainerID)
	if res.Allowed {
		return nil
	}
	s.metrics.CounterRateLimitedRequests.Inc()
	return fmt.Errorf("%w: retry after %s", ErrRateLimited, time.Until(res.ResetAt).Round(time.Second))
}

// GetEvents serves the trainer's calendar for a range through the
// cached read path.
func (s *CalendarSyncService) GetEvents(ctx context.Context, trainerID int, from, to time.Time, forceRefresh bool) ([]Event, error) {
	if err := s.admit(ratelimit.OpListEvents, trainerID); err != nil {
		return nil, err
	}
	return s.reader.GetEvents(ctx, trainerID, from, to, forceRefresh)
}

// CreateWorkout records a session locally and pushes it to the remote
// calendar as a one-way (to_google) event, then renumbers the trainee's
// titles.
func (s *CalendarSyncService) CreateWorkout(
	ctx context.Context, trainerID, traineeID int, start time.Time, notes string,
) (_ *workouts.Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.service.createWorkout")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", trainerID))
	span.SetAttributes(attribute.Int("trainee.id", traineeID))

	if err := s.admit(ratelimit.OpCreateEvent, trainerID); err != nil {
		return nil, err
	}

	trainee, err := s.ownedTrainee(ctx, trainerID, traineeID)
	if err != nil {
		return nil, err
	}

	workout, err := s.workoutRepo.Add(ctx, workouts.Workout{
		TrainerID:   trainerID,
		WorkoutDate: start,
		Notes:       notes,
		TraineeIDs:  []int{traineeID},
	})
	if err != nil {
		return nil, fmt.Errorf("add workout: %w", err)
	}

	event := Event{
		Summary:     fmt.Sprintf("%s - %s", titlePrefix, trainee.FullName),
		Description: notes,
		Start:       start,
		End:         start.Add(DefaultEventDuration),
	}
	eventID, err := s.api.CreateEvent(ctx, trainerID, event)
	if err != nil {
		// the workout stays local, a later sync pass can push it
		return nil, fmt.Errorf("create remote event: %w", err)
	}
	event.ID = eventID

	if err := s.workoutRepo.SetGoogleEventID(ctx, workout.ID, eventID); err != nil {
		log.Errorf("create workout %d: set event id: %s", workout.ID, err)
	}
	workout.GoogleEventID = eventID

	calendarID := s.trainerCalendarID(ctx, trainerID)
	if _, err := s.syncRepo.Upsert(ctx, SyncRecord{
		TrainerID:        trainerID,
		TraineeID:        traineeID,
		WorkoutID:        workout.ID,
		GoogleEventID:    eventID,
		GoogleCalendarID: calendarID,
		SyncStatus:       SyncStatusSynced,
		SyncDirection:    DirectionToGoogle,
		EventStartTime:   event.Start,
		EventEndTime:     event.End,
		EventSummary:     event.Summary,
		EventDescription: event.Description,
	}); err != nil {
		log.Errorf("create workout %d: upsert sync record: %s", workout.ID, err)
	}

	s.metrics.CounterEventsSynced.Inc()
	s.cache.InvalidateTrainer(trainerID)
	s.renumberQuietly(ctx, trainerID, traineeID)

	return workout, nil
}

// RescheduleWorkout applies a date/notes change bidirectionally: the
// remote event first, then the workout itself unless the event was a
// pure one-way push, then the cached record fields. A remote failure
// aborts the local steps.
func (s *CalendarSyncService) RescheduleWorkout(
	ctx context.Context, trainerID, workoutID int, newStart time.Time, notes string,
) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.service.rescheduleWorkout")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("workout.id", workoutID))

	if err := s.admit(ratelimit.OpUpdateEvent, trainerID); err != nil {
		return err
	}

	if _, err := s.ownedWorkout(ctx, trainerID, workoutID); err != nil {
		return err
	}

	record, err := s.syncRepo.GetByWorkoutID(ctx, workoutID)
	if errors.Is(err, ErrSyncRecordNotFound) {
		// never pushed, purely local change
		return s.workoutRepo.UpdateSchedule(ctx, workoutID, newStart, notes)
	}
	if err != nil {
		return fmt.Errorf("get sync record for workout %d: %w", workoutID, err)
	}

	duration := record.EventEndTime.Sub(record.EventStartTime)
	if duration <= 0 {
		duration = DefaultEventDuration
	}
	newEnd := newStart.Add(duration)

	updated, err := s.api.UpdateEvent(ctx, trainerID, record.GoogleEventID, EventChanges{
		Description: &notes,
		Start:       &newStart,
		End:         &newEnd,
	})
	if errors.Is(err, ErrEventGone) {
		s.reconciler.EventGone(ctx, record)
		return ErrEventGone
	}
	if err != nil {
		return fmt.Errorf("update remote event %s: %w", record.GoogleEventID, err)
	}

	if record.SyncDirection != DirectionToGoogle {
		if err := s.workoutRepo.UpdateSchedule(ctx, workoutID, newStart, notes); err != nil {
			return fmt.Errorf("update workout %d: %w", workoutID, err)
		}
	}

	if err := s.syncRepo.UpdateCachedEvent(ctx, record.ID, *updated); err != nil {
		log.Errorf("reschedule workout %d: update cached event: %s", workoutID, err)
	}

	s.cache.InvalidateTrainer(trainerID)
	if record.TraineeID > 0 {
		s.renumberQuietly(ctx, trainerID, record.TraineeID)
	}
	return nil
}

// DeleteWorkout removes the session locally and remotely. The remote
// delete is idempotent, an event already gone does not fail the flow.
func (s *CalendarSyncService) DeleteWorkout(ctx context.Context, trainerID, workoutID int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.service.deleteWorkout")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("workout.id", workoutID))

	if err := s.admit(ratelimit.OpDeleteEvent, trainerID); err != nil {
		return err
	}

	if _, err := s.ownedWorkout(ctx, trainerID, workoutID); err != nil {
		return err
	}

	traineeID := 0
	record, err := s.syncRepo.GetByWorkoutID(ctx, workoutID)
	switch {
	case errors.Is(err, ErrSyncRecordNotFound):
		// local-only workout
	case err != nil:
		return fmt.Errorf("get sync record for workout %d: %w", workoutID, err)
	default:
		traineeID = record.TraineeID
		if err := s.api.DeleteEvent(ctx, trainerID, record.GoogleEventID); err != nil {
			return fmt.Errorf("delete remote event %s: %w", record.GoogleEventID, err)
		}
		if err := s.syncRepo.Delete(ctx, record.ID); err != nil {
			log.Errorf("delete workout %d: delete sync record %d: %s", workoutID, record.ID, err)
		}
	}

	if err := s.workoutRepo.Delete(ctx, workoutID); err != nil {
		return fmt.Errorf("delete workout %d: %w", workoutID, err)
	}

	s.cache.InvalidateTrainer(trainerID)
	if traineeID > 0 {
		s.renumberQuietly(ctx, trainerID, traineeID)
	}
	return nil
}

// MatchPreview lists the window's events with their trainee match
// candidates, for the review flow before an import.
func (s *CalendarSyncService) MatchPreview(
	ctx context.Context, trainerID int, from, to time.Time, forceRefresh bool,
) (_ []match.EventMatch, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.service.matchPreview")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := s.admit(ratelimit.OpListEvents, trainerID); err != nil {
		return nil, err
	}

	events, err := s.reader.GetEvents(ctx, trainerID, from, to, forceRefresh)
	if err != nil {
		return nil, err
	}
	roster, err := s.traineeRepo.ListActive(ctx, trainerID)
	if err != nil {
		return nil, fmt.Errorf("list trainees: %w", err)
	}

	return s.matcher.MatchEvents(toEventInfos(events), roster), nil
}

// AcceptMatch links a remote event to the chosen trainee: a workout is
// created from the event and a from_google sync record ties them.
func (s *CalendarSyncService) AcceptMatch(
	ctx context.Context, trainerID int, googleEventID string, traineeID int,
) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.service.acceptMatch")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("event.id", googleEventID))
	span.SetAttributes(attribute.Int("trainee.id", traineeID))

	if googleEventID == "" {
		return errors.New("event id required")
	}
	if err := s.admit(ratelimit.OpCreateEvent, trainerID); err != nil {
		return err
	}
	if _, err := s.ownedTrainee(ctx, trainerID, traineeID); err != nil {
		return err
	}

	event, err := s.api.GetEvent(ctx, trainerID, googleEventID)
	if err != nil {
		return fmt.Errorf("get remote event %s: %w", googleEventID, err)
	}

	if err := s.importEvent(ctx, trainerID, traineeID, *event); err != nil {
		return err
	}

	s.cache.InvalidateTrainer(trainerID)
	s.renumberQuietly(ctx, trainerID, traineeID)
	return nil
}

// SyncNow pulls the remote window into the local schedule: confidently
// matched events become workouts, known events get their cached fields
// and linked workouts refreshed, and records whose remote event is gone
// are reconciled. Individual event failures are counted, not fatal.
func (s *CalendarSyncService) SyncNow(ctx context.Context, trainerID int) (_ *SyncNowResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.service.syncNow")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", trainerID))

	if err := s.admit(ratelimit.OpSyncNow, trainerID); err != nil {
		return nil, err
	}

	began := s.nowFunc()
	defer func() {
		s.metrics.HistSyncDuration.Observe(time.Since(began).Seconds())
	}()

	now := began.In(s.location)
	from := now.AddDate(0, 0, -s.syncWindowPastDays)
	to := now.AddDate(0, 0, s.syncWindowDays)

	events, err := s.api.ListEvents(ctx, trainerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list remote events: %w", err)
	}
	roster, err := s.traineeRepo.ListActive(ctx, trainerID)
	if err != nil {
		return nil, fmt.Errorf("list trainees: %w", err)
	}

	result := &SyncNowResult{}
	calendarID := s.trainerCalendarID(ctx, trainerID)
	imported := 0

	for _, m := range s.matcher.MatchEvents(toEventInfos(events), roster) {
		switch m.Status {
		case match.StatusPending:
			result.Pending++
			continue
		case match.StatusNew, match.StatusUnmatched:
			result.Skipped++
			continue
		}

		event := eventFromInfo(m.Event)
		record, err := s.syncRepo.GetByEventID(ctx, m.Event.ID, calendarID)
		switch {
		case errors.Is(err, ErrSyncRecordNotFound):
			if imported > 0 && s.interTraineeDelay > 0 {
				time.Sleep(s.interTraineeDelay)
			}
			if err := s.importEventAs(ctx, trainerID, m.SelectedTraineeID, event, calendarID); err != nil {
				log.Errorf("sync now: import event %s: %s", m.Event.ID, err)
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("event %s: %s", m.Event.ID, err))
				s.metrics.CounterEventsSyncFailed.Inc()
				continue
			}
			imported++
			result.Imported++
			s.metrics.CounterEventsSynced.Inc()
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("event %s: %s", m.Event.ID, err))
			s.metrics.CounterEventsSyncFailed.Inc()
		default:
			if err := s.refreshKnownEvent(ctx, record, event); err != nil {
				log.Errorf("sync now: refresh event %s: %s", m.Event.ID, err)
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("event %s: %s", m.Event.ID, err))
				s.metrics.CounterEventsSyncFailed.Inc()
				if err := s.syncRepo.SetStatus(ctx, record.ID, SyncStatusFailed); err != nil {
					log.Errorf("sync now: mark record %d failed: %s", record.ID, err)
				}
				continue
			}
			result.Updated++
		}
	}

	s.reconcileAbsent(ctx, trainerID, from, to, events)
	s.cache.InvalidateTrainer(trainerID)

	span.SetAttributes(attribute.Int("imported", result.Imported))
	span.SetAttributes(attribute.Int("updated", result.Updated))
	span.SetAttributes(attribute.Int("failed", result.Failed))
	return result, nil
}

// Status reports whether the trainer is connected and with what
// settings.
func (s *CalendarSyncService) Status(ctx context.Context, trainerID int) (*ConnectionStatus, error) {
	connected, err := s.connection.Connected(ctx, trainerID)
	if err != nil {
		return nil, fmt.Errorf("check connection: %w", err)
	}

	settings, err := s.settingsRepo.Get(ctx, trainerID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	status := &ConnectionStatus{
		Connected: connected,
		Settings:  *settings,
	}
	if connected {
		calendarID, err := s.connection.CalendarID(ctx, trainerID)
		if err != nil {
			return nil, fmt.Errorf("get calendar id: %w", err)
		}
		status.CalendarID = calendarID
	}
	return status, nil
}

// Disconnect drops the trainer's credentials and saved settings. Local
// workouts and sync records stay.
func (s *CalendarSyncService) Disconnect(ctx context.Context, trainerID int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.service.disconnect")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := s.admit(ratelimit.OpDisconnect, trainerID); err != nil {
		return err
	}

	if err := s.connection.Disconnect(ctx, trainerID); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	if err := s.settingsRepo.Reset(ctx, trainerID); err != nil {
		log.Errorf("disconnect trainer %d: reset settings: %s", trainerID, err)
	}
	s.cache.InvalidateTrainer(trainerID)
	return nil
}

func (s *CalendarSyncService) GetSettings(ctx context.Context, trainerID int) (*SyncSettings, error) {
	return s.settingsRepo.Get(ctx, trainerID)
}

func (s *CalendarSyncService) UpdateSettings(ctx context.Context, trainerID int, settings SyncSettings) error {
	if err := s.admit(ratelimit.OpSettings, trainerID); err != nil {
		return err
	}
	settings.TrainerID = trainerID
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.settingsRepo.Upsert(ctx, settings)
}

func (s *CalendarSyncService) ownedTrainee(ctx context.Context, trainerID, traineeID int) (*trainees.Trainee, error) {
	trainee, err := s.traineeRepo.Get(ctx, traineeID)
	if err != nil {
		return nil, fmt.Errorf("get trainee %d: %w", traineeID, err)
	}
	if trainee.TrainerID != trainerID {
		return nil, fmt.Errorf("trainee %d does not belong to trainer %d", traineeID, trainerID)
	}
	return trainee, nil
}

func (s *CalendarSyncService) ownedWorkout(ctx context.Context, trainerID, workoutID int) (*workouts.Workout, error) {
	workout, err := s.workoutRepo.Get(ctx, workoutID)
	if err != nil {
		return nil, fmt.Errorf("get workout %d: %w", workoutID, err)
	}
	if workout.TrainerID != trainerID {
		return nil, fmt.Errorf("workout %d does not belong to trainer %d", workoutID, trainerID)
	}
	return workout, nil
}

func (s *CalendarSyncService) importEvent(ctx context.Context, trainerID, traineeID int, event Event) error {
	return s.importEventAs(ctx, trainerID, traineeID, event, s.trainerCalendarID(ctx, trainerID))
}

func (s *CalendarSyncService) importEventAs(
	ctx context.Context, trainerID, traineeID int, event Event, calendarID string,
) error {
	workout, err := s.workoutRepo.Add(ctx, workouts.Workout{
		TrainerID:        trainerID,
		WorkoutDate:      event.Start,
		Notes:            event.Description,
		GoogleEventID:    event.ID,
		FromGoogleImport: true,
		TraineeIDs:       []int{traineeID},
	})
	if err != nil {
		return fmt.Errorf("add workout: %w", err)
	}

	if _, err := s.syncRepo.Upsert(ctx, SyncRecord{
		TrainerID:        trainerID,
		TraineeID:        traineeID,
		WorkoutID:        workout.ID,
		GoogleEventID:    event.ID,
		GoogleCalendarID: calendarID,
		SyncStatus:       SyncStatusSynced,
		SyncDirection:    DirectionFromGoogle,
		EventStartTime:   event.Start,
		EventEndTime:     event.End,
		EventSummary:     event.Summary,
		EventDescription: event.Description,
	}); err != nil {
		return fmt.Errorf("upsert sync record: %w", err)
	}
	return nil
}

func (s *CalendarSyncService) refreshKnownEvent(ctx context.Context, record *SyncRecord, event Event) error {
	if record.WorkoutID > 0 && record.SyncDirection != DirectionToGoogle {
		if err := s.workoutRepo.UpdateSchedule(ctx, record.WorkoutID, event.Start, event.Description); err != nil {
			return fmt.Errorf("update workout %d: %w", record.WorkoutID, err)
		}
	}
	if err := s.syncRepo.UpdateCachedEvent(ctx, record.ID, event); err != nil {
		return fmt.Errorf("update cached event: %w", err)
	}
	return nil
}

// reconcileAbsent cleans up records in the window whose remote event is
// not in the authoritative listing anymore.
func (s *CalendarSyncService) reconcileAbsent(
	ctx context.Context, trainerID int, from, to time.Time, remote []Event,
) {
	records, err := s.syncRepo.ListInRange(ctx, trainerID, from, to, "")
	if err != nil {
		log.Warnf("sync now: list records for reconcile: %s", err)
		return
	}

	remoteByID := make(map[string]struct{}, len(remote))
	for _, e := range remote {
		remoteByID[e.ID] = struct{}{}
	}
	for i := range records {
		rec := records[i]
		if _, exists := remoteByID[rec.GoogleEventID]; !exists {
			s.reconciler.EventGone(ctx, &rec)
		}
	}
}

func (s *CalendarSyncService) renumberQuietly(ctx context.Context, trainerID, traineeID int) {
	result, err := s.renumber.RenumberForTrainee(ctx, trainerID, traineeID, ScopeCurrentMonthAndFuture)
	if err != nil {
		log.Errorf("renumber trainee %d: %s", traineeID, err)
		return
	}
	if result.Failed > 0 {
		log.Warnf("renumber trainee %d: %d title updates failed", traineeID, result.Failed)
	}
}

func (s *CalendarSyncService) trainerCalendarID(ctx context.Context, trainerID int) string {
	calendarID, err := s.connection.CalendarID(ctx, trainerID)
	if err != nil {
		return "primary"
	}
	return calendarID
}

func toEventInfos(events []Event) []match.EventInfo {
	infos := make([]match.EventInfo, 0, len(events))
	for _, e := range events {
		infos = append(infos, match.EventInfo{
			ID:      e.ID,
			Summary: e.Summary,
			Start:   e.Start,
			End:     e.End,
		})
	}
	return infos
}

func eventFromInfo(info match.EventInfo) Event {
	return Event{
		ID:      info.ID,
		Summary: info.Summary,
		Start:   info.Start,
		End:     info.End,
	}
}
