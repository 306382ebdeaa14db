package calendar

import (
	"context"

	"github.com/coachcal/coachcal/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type syncRecordRemover interface {
	Delete(ctx context.Context, id int) error
}

type workoutRemover interface {
	Delete(ctx context.Context, id int) error
}

// Reconciler removes local state for events that no longer exist on the
// remote calendar. The sync record always goes; the linked workout is
// only removed when it was imported from the remote side, a workout the
// trainer created locally survives its pushed event disappearing.
type Reconciler struct {
	syncRepo    syncRecordRemover
	workoutRepo workoutRemover
}

func NewReconciler(syncRepo syncRecordRemover, workoutRepo workoutRemover) *Reconciler {
	return &Reconciler{
		syncRepo:    syncRepo,
		workoutRepo: workoutRepo,
	}
}

// EventGone cleans up after a remote event vanished. Cleanup failures
// are logged and swallowed, a half-reconciled record gets picked up by
// the next read that trips over it.
func (r *Reconciler) EventGone(ctx context.Context, record *SyncRecord) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "calendar.reconcile.eventGone")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", record.GoogleEventID))
	span.SetAttributes(attribute.Int("record.id", record.ID))

	if record.WorkoutID > 0 && record.SyncDirection != DirectionToGoogle {
		if err := r.workoutRepo.Delete(ctx, record.WorkoutID); err != nil {
			log.Errorf(
				"reconcile event %s: delete workout %d: %s",
				record.GoogleEventID, record.WorkoutID, err,
			)
		}
	}

	if err := r.syncRepo.Delete(ctx, record.ID); err != nil {
		log.Errorf(
			"reconcile event %s: delete sync record %d: %s",
			record.GoogleEventID, record.ID, err,
		)
		return
	}

	log.Debugf("reconciled gone event %s [record %d]", record.GoogleEventID, record.ID)
}
