package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coachcal/coachcal/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrSyncRecordNotFound = errors.New("sync record not found")

type SyncRepo struct {
	db *pgxpool.Pool
}

func NewSyncRepo(db *pgxpool.Pool) *SyncRepo {
	return &SyncRepo{
		db: db,
	}
}

// Upsert inserts the record or, when the (event id, calendar id) pair is
// already linked, refreshes the link and the cached event fields.
func (r *SyncRepo) Upsert(ctx context.Context, record SyncRecord) (_ *SyncRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.calendarsync.upsert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("google.event.id", record.GoogleEventID))

	if record.LastSyncedAt.IsZero() {
		record.LastSyncedAt = time.Now()
	}

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO google_calendar_sync
				(trainer_id, trainee_id, workout_id, google_event_id, google_calendar_id,
				sync_status, sync_direction, event_start_time, event_end_time,
				event_summary, event_description, last_synced_at)
			VALUES ($1, NULLIF($2, 0), NULLIF($3, 0), $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (google_event_id, google_calendar_id) DO UPDATE SET
				trainee_id = EXCLUDED.trainee_id,
				workout_id = EXCLUDED.workout_id,
				sync_status = EXCLUDED.sync_status,
				sync_direction = EXCLUDED.sync_direction,
				event_start_time = EXCLUDED.event_start_time,
				event_end_time = EXCLUDED.event_end_time,
				event_summary = EXCLUDED.event_summary,
				event_description = EXCLUDED.event_description,
				last_synced_at = EXCLUDED.last_synced_at
			RETURNING id;`,
		record.TrainerID, record.TraineeID, record.WorkoutID, record.GoogleEventID, record.GoogleCalendarID,
		record.SyncStatus, record.SyncDirection, record.EventStartTime, record.EventEndTime,
		record.EventSummary, record.EventDescription, record.LastSyncedAt,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, errors.New("unexpected error [no rows next]")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	record.ID = id
	return &record, nil
}

// ListInRange returns synced records whose cached start time falls within
// [from, to], start time ascending. The caller is expected to pad the lower
// bound for events that start before the range but overlap it.
func (r *SyncRepo) ListInRange(ctx context.Context, trainerID int, from, to time.Time, status SyncStatus) (_ []SyncRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.calendarsync.listInRange")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", trainerID))
	span.SetAttributes(attribute.String("from", from.String()))
	span.SetAttributes(attribute.String("to", to.String()))
	span.SetAttributes(attribute.String("status", string(status)))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, trainer_id, COALESCE(trainee_id, 0), COALESCE(workout_id, 0),
				google_event_id, google_calendar_id, sync_status, sync_direction,
				event_start_time, event_end_time,
				COALESCE(event_summary, ''), COALESCE(event_description, ''), last_synced_at
			FROM google_calendar_sync
			WHERE trainer_id = $1
				AND event_start_time >= $2
				AND event_start_time <= $3
				AND ($4::text = '' OR sync_status = $4)
			ORDER BY event_start_time;`,
		trainerID, from, to, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return r.rows2records(rows)
}

// ListForTrainee returns a trainee's synced records from a given instant on.
func (r *SyncRepo) ListForTrainee(ctx context.Context, traineeID int, from time.Time) (_ []SyncRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.calendarsync.listForTrainee")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainee.id", traineeID))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, trainer_id, COALESCE(trainee_id, 0), COALESCE(workout_id, 0),
				google_event_id, google_calendar_id, sync_status, sync_direction,
				event_start_time, event_end_time,
				COALESCE(event_summary, ''), COALESCE(event_description, ''), last_synced_at
			FROM google_calendar_sync
			WHERE trainee_id = $1
				AND event_start_time >= $2
			ORDER BY event_start_time;`,
		traineeID, from,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return r.rows2records(rows)
}

func (r *SyncRepo) GetByEventID(ctx context.Context, googleEventID, googleCalendarID string) (_ *SyncRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.calendarsync.getByEventID")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("google.event.id", googleEventID))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, trainer_id, COALESCE(trainee_id, 0), COALESCE(workout_id, 0),
				google_event_id, google_calendar_id, sync_status, sync_direction,
				event_start_time, event_end_time,
				COALESCE(event_summary, ''), COALESCE(event_description, ''), last_synced_at
			FROM google_calendar_sync
			WHERE google_event_id = $1 AND google_calendar_id = $2;`,
		googleEventID, googleCalendarID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	records, err := r.rows2records(rows)
	if err != nil {
		return nil, err
	}

	if len(records) != 1 {
		return nil, ErrSyncRecordNotFound
	}

	return &records[0], nil
}

func (r *SyncRepo) GetByWorkoutID(ctx context.Context, workoutID int) (_ *SyncRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.calendarsync.getByWorkoutID")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("workout.id", workoutID))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, trainer_id, COALESCE(trainee_id, 0), COALESCE(workout_id, 0),
				google_event_id, google_calendar_id, sync_status, sync_direction,
				event_start_time, event_end_time,
				COALESCE(event_summary, ''), COALESCE(event_description, ''), last_synced_at
			FROM google_calendar_sync
			WHERE workout_id = $1;`,
		workoutID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	records, err := r.rows2records(rows)
	if err != nil {
		return nil, err
	}

	if len(records) != 1 {
		return nil, ErrSyncRecordNotFound
	}

	return &records[0], nil
}

// UpdateCachedEvent refreshes the cached copies of the remote fields and
// stamps last_synced_at.
func (r *SyncRepo) UpdateCachedEvent(ctx context.Context, id int, event Event) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.calendarsync.updateCachedEvent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE google_calendar_sync SET
				event_start_time = $1, event_end_time = $2,
				event_summary = $3, event_description = $4,
				sync_status = $5, last_synced_at = $6
			WHERE id = $7;`,
		event.Start, event.End, event.Summary, event.Description,
		SyncStatusSynced, time.Now(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSyncRecordNotFound
	}
	return nil
}

func (r *SyncRepo) SetStatus(ctx context.Context, id int, status SyncStatus) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.calendarsync.setStatus")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))
	span.SetAttributes(attribute.String("status", string(status)))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE google_calendar_sync SET sync_status = $1, last_synced_at = $2 WHERE id = $3;`,
		status, time.Now(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSyncRecordNotFound
	}
	return nil
}

func (r *SyncRepo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.calendarsync.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM google_calendar_sync WHERE id = $1;`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSyncRecordNotFound
	}
	return nil
}

func (r *SyncRepo) rows2records(rows pgx.Rows) ([]SyncRecord, error) {
	var records []SyncRecord
	for rows.Next() {
		var sr SyncRecord
		if err := rows.Scan(
			&sr.ID, &sr.TrainerID, &sr.TraineeID, &sr.WorkoutID,
			&sr.GoogleEventID, &sr.GoogleCalendarID, &sr.SyncStatus, &sr.SyncDirection,
			&sr.EventStartTime, &sr.EventEndTime,
			&sr.EventSummary, &sr.EventDescription, &sr.LastSyncedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, sr)
	}

	if records == nil {
		records = make([]SyncRecord, 0)
	}

	return records, nil
}
