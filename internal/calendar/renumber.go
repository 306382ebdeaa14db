package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/coachcal/coachcal/internal/calendar/sessions"
	"github.com/coachcal/coachcal/internal/ratelimit"
	"github.com/coachcal/coachcal/internal/telemetry/metrics"
	"github.com/coachcal/coachcal/internal/telemetry/tracing"
	"github.com/coachcal/coachcal/internal/trainees"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

// RenumberScope selects how far the renumbering pass reaches.
type RenumberScope string

const (
	ScopeCurrentMonth          RenumberScope = "current_month"
	ScopeCurrentMonthAndFuture RenumberScope = "current_month_and_future"
	ScopeAll                   RenumberScope = "all"
)

func (s RenumberScope) IsValid() bool {
	switch s {
	case ScopeCurrentMonth, ScopeCurrentMonthAndFuture, ScopeAll:
		return true
	}
	return false
}

const titlePrefix = "אימון"

// packageEndSuffix marks a card-ticket trainee's last prepaid session.
const packageEndSuffix = "סיום חבילה"

// SyncResult is the aggregate outcome of a batch pass. Individual
// failures are collected, not fatal, partial success beats none.
type SyncResult struct {
	Updated int     `json:"updated"`
	Failed  int     `json:"failed"`
	Errors  []string `json:"errors,omitempty"`

	err error
}

func (sr *SyncResult) addFailure(err error) {
	sr.Failed++
	sr.Errors = append(sr.Errors, err.Error())
	sr.err = multierr.Append(sr.err, err)
}

type traineeGetter interface {
	Get(ctx context.Context, id int) (*trainees.Trainee, error)
}

type positionCalculator interface {
	Calculate(ctx context.Context, traineeID int, event sessions.EventRef, group []sessions.EventRef) sessions.Position
}

type renumberRecordStore interface {
	ListForTrainee(ctx context.Context, traineeID int, from time.Time) ([]SyncRecord, error)
	UpdateCachedEvent(ctx context.Context, id int, event Event) error
}

// TraineeCalendarSyncService pushes corrected session titles back to the
// remote calendar after anything that shifts ordinals: a created,
// deleted or rescheduled workout, or an event moving to another trainee.
type TraineeCalendarSyncService struct {
	api         API
	syncRepo    renumberRecordStore
	traineeRepo traineeGetter
	calculator  positionCalculator
	reconciler  *Reconciler
	limiter     admission
	metrics     *metrics.Manager
	location    *time.Location

	// pause between consecutive remote updates
	interCallDelay time.Duration
	nowFunc        func() time.Time
}

func NewTraineeCalendarSyncService(
	api API,
	syncRepo renumberRecordStore,
	traineeRepo traineeGetter,
	calculator positionCalculator,
	reconciler *Reconciler,
	limiter admission,
	metricsManager *metrics.Manager,
	location *time.Location,
	interCallDelay time.Duration,
) *TraineeCalendarSyncService {
	return &TraineeCalendarSyncService{
		api:            api,
		syncRepo:       syncRepo,
		traineeRepo:    traineeRepo,
		calculator:     calculator,
		reconciler:     reconciler,
		limiter:        limiter,
		metrics:        metricsManager,
		location:       location,
		interCallDelay: interCallDelay,
		nowFunc:        time.Now,
	}
}

// RenumberForTrainee recomputes every affected event title for one
// trainee and pushes the changed ones to the remote calendar, one call
// at a time with a fixed pause in between. Events deleted remotely in
// the meantime are reconciled, not counted as failures.
func (s *TraineeCalendarSyncService) RenumberForTrainee(
	ctx context.Context, trainerID, traineeID int, scope RenumberScope,
) (_ *SyncResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.renumber.forTrainee")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainee.id", traineeID))
	span.SetAttributes(attribute.String("scope", string(scope)))

	if !scope.IsValid() {
		return nil, fmt.Errorf("invalid renumber scope %q", scope)
	}

	// the whole pass counts as one bulk mutation against the budget
	if res := s.limiter.Allow(ratelimit.OpBulkUpdate, trainerID); !res.Allowed {
		s.metrics.CounterRateLimitedRequests.Inc()
		return nil, fmt.Errorf("%w: retry after %s", ErrRateLimited, time.Until(res.ResetAt).Round(time.Second))
	}

	trainee, err := s.traineeRepo.Get(ctx, traineeID)
	if err != nil {
		return nil, fmt.Errorf("get trainee %d: %w", traineeID, err)
	}
	if trainee.TrainerID != trainerID {
		return nil, fmt.Errorf("trainee %d does not belong to trainer %d", traineeID, trainerID)
	}

	now := s.nowFunc().In(s.location)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.location)

	from := monthStart
	if scope == ScopeAll {
		from = time.Time{}
	}

	records, err := s.syncRepo.ListForTrainee(ctx, traineeID, from)
	if err != nil {
		return nil, fmt.Errorf("list sync records for trainee %d: %w", traineeID, err)
	}
	if scope == ScopeCurrentMonth {
		records = filterMonth(records, now.Year(), now.Month(), s.location)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].EventStartTime.Before(records[j].EventStartTime)
	})

	result := &SyncResult{}
	titles := s.buildTitles(ctx, trainee, records)

	for i := range records {
		rec := records[i]
		title := titles[i]
		if title == rec.EventSummary {
			continue
		}

		if s.interCallDelay > 0 && result.Updated+result.Failed > 0 {
			time.Sleep(s.interCallDelay)
		}

		updated, err := s.api.UpdateEvent(ctx, trainerID, rec.GoogleEventID, EventChanges{
			Summary: &title,
		})
		switch {
		case err == nil:
			result.Updated++
			s.metrics.CounterTitlesRenumbered.Inc()
			if err := s.syncRepo.UpdateCachedEvent(ctx, rec.ID, *updated); err != nil {
				log.Errorf("renumber: update cached event %s: %s", rec.GoogleEventID, err)
			}
		case errors.Is(err, ErrEventGone):
			s.reconciler.EventGone(ctx, &rec)
		default:
			log.Errorf("renumber event %s for trainee %d: %s", rec.GoogleEventID, traineeID, err)
			result.addFailure(fmt.Errorf("event %s: %w", rec.GoogleEventID, err))
		}
	}

	span.SetAttributes(attribute.Int("updated", result.Updated))
	span.SetAttributes(attribute.Int("failed", result.Failed))
	return result, nil
}

// buildTitles renders the canonical title per record, in record order.
// Monthly trainees get their position within the month; card-ticket
// trainees get the remaining prepaid sessions, with a package-end mark
// on the last one.
func (s *TraineeCalendarSyncService) buildTitles(
	ctx context.Context, trainee *trainees.Trainee, records []SyncRecord,
) []string {
	titles := make([]string, len(records))

	if trainee.CountingMethod == trainees.CardTicket && trainee.CardSessionsTotal > 0 {
		for i := range records {
			remaining := trainee.CardSessionsTotal - (trainee.CardSessionsUsed + i + 1)
			if remaining < 0 {
				remaining = 0
			}
			title := fmt.Sprintf(
				"%s - %s %d/%d",
				titlePrefix, trainee.FullName, remaining, trainee.CardSessionsTotal,
			)
			if remaining == 0 {
				title = fmt.Sprintf("%s - %s", title, packageEndSuffix)
			}
			titles[i] = title
		}
		return titles
	}

	groups := groupByMonth(records, s.location)
	for i := range records {
		rec := records[i]
		key := monthKey(rec.EventStartTime.In(s.location))
		group := groups[key]

		pos := s.calculator.Calculate(ctx, trainee.ID, sessions.EventRef{
			GoogleEventID: rec.GoogleEventID,
			Start:         rec.EventStartTime,
		}, group)

		titles[i] = fmt.Sprintf("%s - %s %s", titlePrefix, trainee.FullName, pos.Render())
	}
	return titles
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

func groupByMonth(records []SyncRecord, loc *time.Location) map[string][]sessions.EventRef {
	groups := make(map[string][]sessions.EventRef)
	for _, rec := range records {
		key := monthKey(rec.EventStartTime.In(loc))
		groups[key] = append(groups[key], sessions.EventRef{
			GoogleEventID: rec.GoogleEventID,
			Start:         rec.EventStartTime,
		})
	}
	return groups
}

func filterMonth(records []SyncRecord, year int, month time.Month, loc *time.Location) []SyncRecord {
	filtered := make([]SyncRecord, 0, len(records))
	for _, rec := range records {
		start := rec.EventStartTime.In(loc)
		if start.Year() == year && start.Month() == month {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}
