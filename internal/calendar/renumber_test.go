package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/coachcal/coachcal/internal/calendar/sessions"
	"github.com/coachcal/coachcal/internal/telemetry/metrics"
	"github.com/coachcal/coachcal/internal/trainees"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTraineeGetter struct {
	trainee *trainees.Trainee
	err     error
}

func (f *fakeTraineeGetter) Get(_ context.Context, _ int) (*trainees.Trainee, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.trainee, nil
}

// groupCalc positions events purely within their in-memory group, which
// makes expected ordinals obvious in tests.
type groupCalc struct{}

func (groupCalc) Calculate(_ context.Context, _ int, event sessions.EventRef, group []sessions.EventRef) sessions.Position {
	return sessions.FallbackCalculate(event, group)
}

func renumberFixture(
	t *testing.T, trainee *trainees.Trainee, records ...SyncRecord,
) (*TraineeCalendarSyncService, *fakeAPI, *fakeSyncStore, *fakeWorkoutRemover) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jerusalem")
	require.NoError(t, err)

	api := newFakeAPI()
	for _, rec := range records {
		api.events[rec.GoogleEventID] = rec.ToEvent()
	}
	store := newFakeSyncStore(records...)
	workoutRemover := &fakeWorkoutRemover{}

	svc := NewTraineeCalendarSyncService(
		api, store,
		&fakeTraineeGetter{trainee: trainee},
		groupCalc{},
		NewReconciler(store, workoutRemover),
		&fakeLimiter{denied: map[string]bool{}},
		metrics.NewTestManager(),
		loc,
		0, // no inter-call pause in tests
	)
	svc.nowFunc = func() time.Time {
		return time.Date(2026, time.March, 15, 12, 0, 0, 0, loc)
	}
	return svc, api, store, workoutRemover
}

func traineeDana() *trainees.Trainee {
	return &trainees.Trainee{
		ID:             5,
		TrainerID:      1,
		FullName:       "דנה כהן",
		CountingMethod: trainees.MonthlySubscription,
		IsActive:       true,
	}
}

func marchRecord(id int, eventID string, day int, summary string) SyncRecord {
	loc, _ := time.LoadLocation("Asia/Jerusalem")
	start := time.Date(2026, time.March, day, 18, 0, 0, 0, loc)
	return SyncRecord{
		ID:               id,
		TrainerID:        1,
		TraineeID:        5,
		GoogleEventID:    eventID,
		GoogleCalendarID: "primary",
		SyncStatus:       SyncStatusSynced,
		SyncDirection:    DirectionFromGoogle,
		EventStartTime:   start,
		EventEndTime:     start.Add(time.Hour),
		EventSummary:     summary,
	}
}

func TestRenumber_PushesCorrectedTitles(t *testing.T) {
	svc, api, store, _ := renumberFixture(t, traineeDana(),
		marchRecord(1, "ev-1", 3, "אימון - דנה כהן"),
		marchRecord(2, "ev-2", 10, "אימון - דנה כהן"),
		marchRecord(3, "ev-3", 17, "אימון - דנה כהן"),
	)

	result, err := svc.RenumberForTrainee(context.Background(), 1, 5, ScopeCurrentMonth)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, "אימון - דנה כהן 1/3", api.events["ev-1"].Summary)
	assert.Equal(t, "אימון - דנה כהן 2/3", api.events["ev-2"].Summary)
	assert.Equal(t, "אימון - דנה כהן 3/3", api.events["ev-3"].Summary)
	// cached summaries follow the remote ones
	assert.Equal(t, "אימון - דנה כהן 2/3", store.records[2].EventSummary)
}

func TestRenumber_UnchangedTitlesSkipped(t *testing.T) {
	svc, api, _, _ := renumberFixture(t, traineeDana(),
		marchRecord(1, "ev-1", 3, "אימון - דנה כהן 1/2"),
		marchRecord(2, "ev-2", 10, "אימון - דנה כהן"),
	)

	result, err := svc.RenumberForTrainee(context.Background(), 1, 5, ScopeCurrentMonth)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, api.updateCalls)
	assert.Equal(t, "אימון - דנה כהן 2/2", api.events["ev-2"].Summary)
}

func TestRenumber_SingleSessionMonthTitledOne(t *testing.T) {
	svc, api, _, _ := renumberFixture(t, traineeDana(),
		marchRecord(1, "ev-1", 3, "אימון - דנה כהן 1/3"),
	)

	result, err := svc.RenumberForTrainee(context.Background(), 1, 5, ScopeCurrentMonth)
	require.NoError(t, err)

	// a lone session keeps its ordinal, just without a denominator
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, "אימון - דנה כהן 1", api.events["ev-1"].Summary)
}

func TestRenumber_RateLimited(t *testing.T) {
	svc, api, _, _ := renumberFixture(t, traineeDana(),
		marchRecord(1, "ev-1", 3, "אימון - דנה כהן"),
	)
	svc.limiter = &fakeLimiter{denied: map[string]bool{"bulk_update": true}}

	_, err := svc.RenumberForTrainee(context.Background(), 1, 5, ScopeCurrentMonth)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 0, api.updateCalls)
}

func TestRenumber_GoneEventReconciledNotFailed(t *testing.T) {
	gone := marchRecord(2, "ev-gone", 10, "אימון - דנה כהן")
	gone.WorkoutID = 42
	svc, api, store, workoutRemover := renumberFixture(t, traineeDana(),
		marchRecord(1, "ev-1", 3, "אימון - דנה כהן"),
		gone,
	)
	delete(api.events, "ev-gone")

	result, err := svc.RenumberForTrainee(context.Background(), 1, 5, ScopeCurrentMonth)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Failed)
	assert.Contains(t, store.deleted, 2)
	assert.Contains(t, workoutRemover.deleted, 42)
}

func TestRenumber_TransientFailuresAggregated(t *testing.T) {
	svc, api, _, _ := renumberFixture(t, traineeDana(),
		marchRecord(1, "ev-1", 3, "אימון - דנה כהן"),
		marchRecord(2, "ev-2", 10, "אימון - דנה כהן"),
	)
	api.updateErr = assert.AnError

	result, err := svc.RenumberForTrainee(context.Background(), 1, 5, ScopeCurrentMonth)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, result.Errors, 2)
}

func TestRenumber_CurrentMonthScopeIgnoresFutureMonths(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Jerusalem")
	april := marchRecord(3, "ev-april", 1, "אימון - דנה כהן")
	april.EventStartTime = time.Date(2026, time.April, 7, 18, 0, 0, 0, loc)
	april.EventEndTime = april.EventStartTime.Add(time.Hour)

	svc, api, _, _ := renumberFixture(t, traineeDana(),
		marchRecord(1, "ev-1", 3, "אימון - דנה כהן"),
		marchRecord(2, "ev-2", 10, "אימון - דנה כהן"),
		april,
	)

	result, err := svc.RenumberForTrainee(context.Background(), 1, 5, ScopeCurrentMonth)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, "אימון - דנה כהן", api.events["ev-april"].Summary)
}

func TestRenumber_FutureScopeRenumbersPerMonth(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Jerusalem")
	april := marchRecord(3, "ev-april", 1, "אימון - דנה כהן 3/3")
	april.EventStartTime = time.Date(2026, time.April, 7, 18, 0, 0, 0, loc)
	april.EventEndTime = april.EventStartTime.Add(time.Hour)

	svc, api, _, _ := renumberFixture(t, traineeDana(),
		marchRecord(1, "ev-1", 3, "אימון - דנה כהן"),
		marchRecord(2, "ev-2", 10, "אימון - דנה כהן"),
		april,
	)

	result, err := svc.RenumberForTrainee(context.Background(), 1, 5, ScopeCurrentMonthAndFuture)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, "אימון - דנה כהן 1/2", api.events["ev-1"].Summary)
	assert.Equal(t, "אימון - דנה כהן 2/2", api.events["ev-2"].Summary)
	// the lone april session restarts at 1, denominator dropped
	assert.Equal(t, "אימון - דנה כהן 1", api.events["ev-april"].Summary)
}

func TestRenumber_CardTicketTitles(t *testing.T) {
	trainee := traineeDana()
	trainee.CountingMethod = trainees.CardTicket
	trainee.CardSessionsTotal = 10
	trainee.CardSessionsUsed = 7

	svc, api, _, _ := renumberFixture(t, trainee,
		marchRecord(1, "ev-1", 3, "אימון - דנה כהן"),
		marchRecord(2, "ev-2", 10, "אימון - דנה כהן"),
		marchRecord(3, "ev-3", 17, "אימון - דנה כהן"),
	)

	result, err := svc.RenumberForTrainee(context.Background(), 1, 5, ScopeCurrentMonth)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, "אימון - דנה כהן 2/10", api.events["ev-1"].Summary)
	assert.Equal(t, "אימון - דנה כהן 1/10", api.events["ev-2"].Summary)
	assert.Equal(t, "אימון - דנה כהן 0/10 - סיום חבילה", api.events["ev-3"].Summary)
}

func TestRenumber_WrongTrainerRejected(t *testing.T) {
	svc, _, _, _ := renumberFixture(t, traineeDana(),
		marchRecord(1, "ev-1", 3, "אימון - דנה כהן"),
	)

	_, err := svc.RenumberForTrainee(context.Background(), 99, 5, ScopeCurrentMonth)
	require.Error(t, err)
}

func TestRenumber_InvalidScopeRejected(t *testing.T) {
	svc, _, _, _ := renumberFixture(t, traineeDana())

	_, err := svc.RenumberForTrainee(context.Background(), 1, 5, RenumberScope("weekly"))
	require.Error(t, err)
}
