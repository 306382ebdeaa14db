package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/coachcal/coachcal/internal/ratelimit"
	"github.com/coachcal/coachcal/internal/workouts"
)

// fakeAPI stands in for the remote calendar. Events live in a map keyed
// by event ID; counters record how hard the reader leaned on the remote.
type fakeAPI struct {
	mutex    sync.Mutex
	events   map[string]Event
	nextID   int
	getDelay time.Duration

	listCalls   int
	getCalls    int
	createCalls int
	updateCalls int
	deleteCalls int

	listErr   error
	createErr error
	updateErr error
	deleteErr error
}

func newFakeAPI(events ...Event) *fakeAPI {
	f := &fakeAPI{events: make(map[string]Event)}
	for _, e := range events {
		f.events[e.ID] = e
	}
	return f
}

func (f *fakeAPI) ListEvents(_ context.Context, _ int, from, to time.Time) ([]Event, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var events []Event
	for _, e := range f.events {
		if e.Overlaps(from, to) {
			events = append(events, e)
		}
	}
	return events, nil
}

func (f *fakeAPI) GetEvent(_ context.Context, _ int, eventID string) (*Event, error) {
	f.mutex.Lock()
	delay := f.getDelay
	f.getCalls++
	e, ok := f.events[eventID]
	f.mutex.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if !ok {
		return nil, ErrEventGone
	}
	return &e, nil
}

func (f *fakeAPI) CreateEvent(_ context.Context, _ int, event Event) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	event.ID = "ev-" + time.Now().Format("150405") + "-" + string(rune('a'+f.nextID%26))
	if event.End.IsZero() {
		event.End = event.Start.Add(DefaultEventDuration)
	}
	f.events[event.ID] = event
	return event.ID, nil
}

func (f *fakeAPI) UpdateEvent(_ context.Context, _ int, eventID string, changes EventChanges) (*Event, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	e, ok := f.events[eventID]
	if !ok {
		return nil, ErrEventGone
	}
	if changes.Summary != nil {
		e.Summary = *changes.Summary
	}
	if changes.Description != nil {
		e.Description = *changes.Description
	}
	if changes.Location != nil {
		e.Location = *changes.Location
	}
	if changes.Start != nil {
		e.Start = *changes.Start
	}
	if changes.End != nil {
		e.End = *changes.End
	}
	f.events[eventID] = e
	return &e, nil
}

func (f *fakeAPI) DeleteEvent(_ context.Context, _ int, eventID string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.events, eventID)
	return nil
}

type fakeSyncStore struct {
	mutex   sync.Mutex
	records map[int]SyncRecord
	nextID  int

	listErr   error
	upsertErr error
	deleted   []int
	repaired  []int
}

func newFakeSyncStore(records ...SyncRecord) *fakeSyncStore {
	f := &fakeSyncStore{records: make(map[int]SyncRecord)}
	for _, rec := range records {
		if rec.ID == 0 {
			f.nextID++
			rec.ID = f.nextID
		} else if rec.ID > f.nextID {
			f.nextID = rec.ID
		}
		f.records[rec.ID] = rec
	}
	return f
}

func (f *fakeSyncStore) ListInRange(_ context.Context, trainerID int, from, to time.Time, status SyncStatus) ([]SyncRecord, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var records []SyncRecord
	for _, rec := range f.records {
		if rec.TrainerID != trainerID {
			continue
		}
		if status != "" && rec.SyncStatus != status {
			continue
		}
		if rec.EventStartTime.Before(from) || rec.EventStartTime.After(to) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (f *fakeSyncStore) ListForTrainee(_ context.Context, traineeID int, from time.Time) ([]SyncRecord, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	var records []SyncRecord
	for _, rec := range f.records {
		if rec.TraineeID == traineeID && !rec.EventStartTime.Before(from) {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (f *fakeSyncStore) Upsert(_ context.Context, record SyncRecord) (*SyncRecord, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	for id, existing := range f.records {
		if existing.GoogleEventID == record.GoogleEventID &&
			existing.GoogleCalendarID == record.GoogleCalendarID {
			record.ID = id
			f.records[id] = record
			return &record, nil
		}
	}
	f.nextID++
	record.ID = f.nextID
	f.records[record.ID] = record
	return &record, nil
}

func (f *fakeSyncStore) GetByEventID(_ context.Context, googleEventID, googleCalendarID string) (*SyncRecord, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, rec := range f.records {
		if rec.GoogleEventID == googleEventID && rec.GoogleCalendarID == googleCalendarID {
			return &rec, nil
		}
	}
	return nil, ErrSyncRecordNotFound
}

func (f *fakeSyncStore) GetByWorkoutID(_ context.Context, workoutID int) (*SyncRecord, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, rec := range f.records {
		if rec.WorkoutID == workoutID {
			return &rec, nil
		}
	}
	return nil, ErrSyncRecordNotFound
}

func (f *fakeSyncStore) UpdateCachedEvent(_ context.Context, id int, event Event) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return ErrSyncRecordNotFound
	}
	rec.EventSummary = event.Summary
	rec.EventDescription = event.Description
	rec.EventStartTime = event.Start
	rec.EventEndTime = event.End
	rec.SyncStatus = SyncStatusSynced
	f.repaired = append(f.repaired, id)
	f.records[id] = rec
	return nil
}

func (f *fakeSyncStore) SetStatus(_ context.Context, id int, status SyncStatus) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return ErrSyncRecordNotFound
	}
	rec.SyncStatus = status
	f.records[id] = rec
	return nil
}

func (f *fakeSyncStore) Delete(_ context.Context, id int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, ok := f.records[id]; !ok {
		return ErrSyncRecordNotFound
	}
	delete(f.records, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeWorkoutRemover struct {
	mutex   sync.Mutex
	deleted []int
	err     error
}

func (f *fakeWorkoutRemover) Delete(_ context.Context, id int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeWorkoutStore struct {
	mutex    sync.Mutex
	workouts map[int]workouts.Workout
	nextID   int
	deleted  []int

	addErr    error
	updateErr error
}

func newFakeWorkoutStore() *fakeWorkoutStore {
	return &fakeWorkoutStore{workouts: make(map[int]workouts.Workout)}
}

func (f *fakeWorkoutStore) Add(_ context.Context, workout workouts.Workout) (*workouts.Workout, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.nextID++
	workout.ID = f.nextID
	f.workouts[workout.ID] = workout
	return &workout, nil
}

func (f *fakeWorkoutStore) Get(_ context.Context, id int) (*workouts.Workout, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	w, ok := f.workouts[id]
	if !ok {
		return nil, workouts.ErrWorkoutNotFound
	}
	return &w, nil
}

func (f *fakeWorkoutStore) UpdateSchedule(_ context.Context, id int, workoutDate time.Time, notes string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	w, ok := f.workouts[id]
	if !ok {
		return workouts.ErrWorkoutNotFound
	}
	w.WorkoutDate = workoutDate
	w.Notes = notes
	f.workouts[id] = w
	return nil
}

func (f *fakeWorkoutStore) SetGoogleEventID(_ context.Context, id int, googleEventID string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	w, ok := f.workouts[id]
	if !ok {
		return workouts.ErrWorkoutNotFound
	}
	w.GoogleEventID = googleEventID
	f.workouts[id] = w
	return nil
}

func (f *fakeWorkoutStore) Delete(_ context.Context, id int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, ok := f.workouts[id]; !ok {
		return workouts.ErrWorkoutNotFound
	}
	delete(f.workouts, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeWorkoutStore) LinkTrainee(_ context.Context, workoutID, traineeID int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	w, ok := f.workouts[workoutID]
	if !ok {
		return workouts.ErrWorkoutNotFound
	}
	w.TraineeIDs = append(w.TraineeIDs, traineeID)
	f.workouts[workoutID] = w
	return nil
}

type fakeSettingsStore struct {
	mutex    sync.Mutex
	settings map[int]SyncSettings
	resets   []int
}

func newFakeSettingsStore() *fakeSettingsStore {
	return &fakeSettingsStore{settings: make(map[int]SyncSettings)}
}

func (f *fakeSettingsStore) Get(_ context.Context, trainerID int) (*SyncSettings, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	s, ok := f.settings[trainerID]
	if !ok {
		s = DefaultSyncSettings(trainerID)
	}
	return &s, nil
}

func (f *fakeSettingsStore) Upsert(_ context.Context, settings SyncSettings) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.settings[settings.TrainerID] = settings
	return nil
}

func (f *fakeSettingsStore) Reset(_ context.Context, trainerID int) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	delete(f.settings, trainerID)
	f.resets = append(f.resets, trainerID)
	return nil
}

type fakeConnection struct {
	connected       bool
	calendarID      string
	disconnectCalls int
}

func (f *fakeConnection) Connected(_ context.Context, _ int) (bool, error) {
	return f.connected, nil
}

func (f *fakeConnection) Disconnect(_ context.Context, _ int) error {
	f.disconnectCalls++
	f.connected = false
	return nil
}

func (f *fakeConnection) CalendarID(_ context.Context, _ int) (string, error) {
	if !f.connected {
		return "", ErrNotConnected
	}
	return f.calendarID, nil
}

type fakeRenumberer struct {
	mutex    sync.Mutex
	trainees []int
}

func (f *fakeRenumberer) RenumberForTrainee(_ context.Context, _, traineeID int, _ RenumberScope) (*SyncResult, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.trainees = append(f.trainees, traineeID)
	return &SyncResult{}, nil
}

type fakeLimiter struct {
	denied map[string]bool
}

func (f *fakeLimiter) Allow(op string, _ int) ratelimit.Result {
	if f.denied[op] {
		return ratelimit.Result{Allowed: false, ResetAt: time.Now().Add(time.Minute)}
	}
	return ratelimit.Result{Allowed: true, Remaining: 1, ResetAt: time.Now().Add(time.Minute)}
}
