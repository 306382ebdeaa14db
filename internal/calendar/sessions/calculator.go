// Package sessions computes the ordinal of a training session within a
// trainee's calendar month, used to render titles like "אימון - דנה 3/12".
package sessions

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/coachcal/coachcal/internal/workouts"

	log "github.com/sirupsen/logrus"
)

// timeMatchTolerance allows a session to match its workout even when
// one side drifted, e.g. a DST shift or a reschedule by under an hour.
const timeMatchTolerance = time.Hour

// Position is a 1-based slot within the trainee's month.
type Position struct {
	Ordinal int `json:"ordinal"`
	Total   int `json:"total"`
}

// Render produces the title fraction. A lone session in the month gets
// no denominator.
func (p Position) Render() string {
	if p.Total <= 1 {
		return fmt.Sprintf("%d", p.Ordinal)
	}
	return fmt.Sprintf("%d/%d", p.Ordinal, p.Total)
}

// EventRef is the minimal view of a calendar event the calculator needs.
type EventRef struct {
	GoogleEventID string
	Start         time.Time
}

type workoutLister interface {
	ListForTraineeInMonth(ctx context.Context, traineeID int, year int, month time.Month, loc *time.Location) ([]workouts.Workout, error)
}

// Calculator resolves positions against the workout schedule, which is
// authoritative: the ordinal comes from where the event sits among the
// trainee's recorded workouts for that month, not from whatever subset
// of events happens to be on screen.
type Calculator struct {
	workouts workoutLister
	location *time.Location
}

func NewCalculator(workoutRepo workoutLister, location *time.Location) *Calculator {
	return &Calculator{
		workouts: workoutRepo,
		location: location,
	}
}

// Calculate finds the event's position within the trainee's month. The
// event is located in the authoritative list by event ID first, then by
// start time within the tolerance; an event with no workout counterpart
// gets the slot it would occupy if inserted. When the schedule cannot
// be read at all, the in-memory group of events stands in for it.
func (c *Calculator) Calculate(ctx context.Context, traineeID int, event EventRef, group []EventRef) Position {
	eventStart := event.Start.In(c.location)
	monthWorkouts, err := c.workouts.ListForTraineeInMonth(
		ctx, traineeID, eventStart.Year(), eventStart.Month(), c.location,
	)
	if err != nil {
		log.Warnf(
			"calculate position for trainee %d: list workouts: %s, falling back to events",
			traineeID, err,
		)
		return FallbackCalculate(event, group)
	}

	for i, w := range monthWorkouts {
		if w.GoogleEventID != "" && w.GoogleEventID == event.GoogleEventID {
			return Position{Ordinal: i + 1, Total: len(monthWorkouts)}
		}
	}

	// closest workout within tolerance wins, not the first one found
	closestIdx := -1
	closestDiff := timeMatchTolerance + 1
	for i, w := range monthWorkouts {
		diff := w.WorkoutDate.Sub(event.Start)
		if diff < 0 {
			diff = -diff
		}
		if diff <= timeMatchTolerance && diff < closestDiff {
			closestIdx = i
			closestDiff = diff
		}
	}
	if closestIdx >= 0 {
		return Position{Ordinal: closestIdx + 1, Total: len(monthWorkouts)}
	}

	// unknown to the schedule: slot it in where it would land
	before := 0
	for _, w := range monthWorkouts {
		if w.WorkoutDate.Before(event.Start) {
			before++
		}
	}
	return Position{Ordinal: before + 1, Total: len(monthWorkouts) + 1}
}

// FallbackCalculate positions the event purely within its own group of
// events, assumed to all belong to one trainee and one month.
func FallbackCalculate(event EventRef, group []EventRef) Position {
	sorted := make([]EventRef, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	for i, e := range sorted {
		if e.GoogleEventID == event.GoogleEventID {
			return Position{Ordinal: i + 1, Total: len(sorted)}
		}
	}

	// event not in its own group, count the ones starting before it
	before := 0
	for _, e := range sorted {
		if e.Start.Before(event.Start) {
			before++
		}
	}
	return Position{Ordinal: before + 1, Total: len(sorted) + 1}
}
