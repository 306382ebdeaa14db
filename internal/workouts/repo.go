package workouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coachcal/coachcal/internal/telemetry/tracing"
	"github.com/coachcal/coachcal/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrWorkoutNotFound = errors.New("workout not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, workout Workout) (_ *Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if workout.CreatedAt.IsZero() {
		workout.CreatedAt = time.Now()
	}

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO workout
				(trainer_id, workout_date, workout_type, notes, is_completed, google_event_id, from_google_import, created_at)
				VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
			RETURNING id;`,
		workout.TrainerID, workout.WorkoutDate, workout.WorkoutType, workout.Notes,
		workout.IsCompleted, workout.GoogleEventID, workout.FromGoogleImport, workout.CreatedAt,
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
	rows.Close()

	span.SetAttributes(attribute.Int("workout.id", id))
	workout.ID = id

	for _, traineeID := range workout.TraineeIDs {
		if err := r.LinkTrainee(ctx, id, traineeID); err != nil {
			return nil, fmt.Errorf("link trainee %d: %w", traineeID, err)
		}
	}

	return &workout, nil
}

func (r *Repo) LinkTrainee(ctx context.Context, workoutID, traineeID int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.linkTrainee")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("workout.id", workoutID))
	span.SetAttributes(attribute.Int("trainee.id", traineeID))

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO workout_trainee (workout_id, trainee_id)
			VALUES ($1, $2)
			ON CONFLICT (workout_id, trainee_id) DO NOTHING;`,
		workoutID, traineeID,
	)
	if pkg.IsForeignKeyViolationError(err) {
		return ErrWorkoutNotFound
	}
	return err
}

func (r *Repo) UnlinkTrainee(ctx context.Context, workoutID, traineeID int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.unlinkTrainee")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	_, err = r.db.Exec(
		ctx,
		`DELETE FROM workout_trainee WHERE workout_id = $1 AND trainee_id = $2;`,
		workoutID, traineeID,
	)
	return err
}

// UpdateSchedule moves a workout, the date and notes are the field group
// that follows remote-side edits.
func (r *Repo) UpdateSchedule(ctx context.Context, id int, workoutDate time.Time, notes string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.updateSchedule")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE workout SET workout_date = $1, notes = $2 WHERE id = $3;`,
		workoutDate, notes, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkoutNotFound
	}
	return nil
}

func (r *Repo) SetGoogleEventID(ctx context.Context, id int, googleEventID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.setGoogleEventID")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))
	span.SetAttributes(attribute.String("google.event.id", googleEventID))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE workout SET google_event_id = NULLIF($1, '') WHERE id = $2;`,
		googleEventID, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkoutNotFound
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	if _, err := r.db.Exec(
		ctx,
		`DELETE FROM workout_trainee WHERE workout_id = $1;`,
		id,
	); err != nil {
		return fmt.Errorf("delete trainee links: %w", err)
	}

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM workout WHERE id = $1;`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkoutNotFound
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				w.id, w.trainer_id, w.workout_date, w.workout_type, w.notes, w.is_completed,
				w.google_event_id, w.from_google_import, w.created_at,
				COALESCE(array_agg(wt.trainee_id) FILTER (WHERE wt.trainee_id IS NOT NULL), '{}')
			FROM workout w
			LEFT JOIN workout_trainee wt ON wt.workout_id = w.id
			WHERE w.id = $1
			GROUP BY w.id;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	all, err := r.rows2workouts(rows)
	if err != nil {
		return nil, err
	}

	if len(all) != 1 {
		return nil, ErrWorkoutNotFound
	}

	return &all[0], nil
}

// ListForTrainerInRange returns all of a trainer's workouts with
// workout_date within [from, to], trainee links included, date ascending.
func (r *Repo) ListForTrainerInRange(ctx context.Context, trainerID int, from, to time.Time) (_ []Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.listForTrainerInRange")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", trainerID))
	span.SetAttributes(attribute.String("from", from.String()))
	span.SetAttributes(attribute.String("to", to.String()))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				w.id, w.trainer_id, w.workout_date, w.workout_type, w.notes, w.is_completed,
				w.google_event_id, w.from_google_import, w.created_at,
				COALESCE(array_agg(wt.trainee_id) FILTER (WHERE wt.trainee_id IS NOT NULL), '{}')
			FROM workout w
			LEFT JOIN workout_trainee wt ON wt.workout_id = w.id
			WHERE w.trainer_id = $1
				AND w.workout_date >= $2
				AND w.workout_date <= $3
			GROUP BY w.id
			ORDER BY w.workout_date, w.id;`,
		trainerID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return r.rows2workouts(rows)
}

// ListForTraineeInMonth returns the trainee's workouts within a
// calendar month, ordered by date. Month boundaries follow the given
// location.
func (r *Repo) ListForTraineeInMonth(ctx context.Context, traineeID int, year int, month time.Month, loc *time.Location) (_ []Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.listForTraineeInMonth")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainee.id", traineeID))
	span.SetAttributes(attribute.Int("year", year))
	span.SetAttributes(attribute.Int("month", int(month)))

	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, 0)

	rows, err := r.db.Query(
		ctx,
		`SELECT
				w.id, w.trainer_id, w.workout_date, w.workout_type, w.notes, w.is_completed,
				w.google_event_id, w.from_google_import, w.created_at,
				COALESCE(array_agg(wt2.trainee_id) FILTER (WHERE wt2.trainee_id IS NOT NULL), '{}')
			FROM workout w
			INNER JOIN workout_trainee wt ON wt.workout_id = w.id AND wt.trainee_id = $1
			LEFT JOIN workout_trainee wt2 ON wt2.workout_id = w.id
			WHERE w.workout_date >= $2
				AND w.workout_date < $3
			GROUP BY w.id
			ORDER BY w.workout_date, w.id;`,
		traineeID, monthStart, monthEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return r.rows2workouts(rows)
}

func (r *Repo) GetByGoogleEventID(ctx context.Context, googleEventID string) (_ *Workout, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.workouts.getByGoogleEventID")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("google.event.id", googleEventID))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				w.id, w.trainer_id, w.workout_date, w.workout_type, w.notes, w.is_completed,
				w.google_event_id, w.from_google_import, w.created_at,
				COALESCE(array_agg(wt.trainee_id) FILTER (WHERE wt.trainee_id IS NOT NULL), '{}')
			FROM workout w
			LEFT JOIN workout_trainee wt ON wt.workout_id = w.id
			WHERE w.google_event_id = $1
			GROUP BY w.id;`,
		googleEventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	all, err := r.rows2workouts(rows)
	if err != nil {
		return nil, err
	}

	if len(all) != 1 {
		return nil, ErrWorkoutNotFound
	}

	return &all[0], nil
}

func (r *Repo) rows2workouts(rows pgx.Rows) ([]Workout, error) {
	var all []Workout
	for rows.Next() {
		var w Workout
		var workoutType, notes, googleEventID *string
		if err := rows.Scan(
			&w.ID, &w.TrainerID, &w.WorkoutDate, &workoutType, &notes, &w.IsCompleted,
			&googleEventID, &w.FromGoogleImport, &w.CreatedAt, &w.TraineeIDs,
		); err != nil {
			return nil, err
		}

		if workoutType != nil {
			w.WorkoutType = *workoutType
		}
		if notes != nil {
			w.Notes = *notes
		}
		if googleEventID != nil {
			w.GoogleEventID = *googleEventID
		}

		all = append(all, w)
	}

	if all == nil {
		all = make([]Workout, 0)
	}

	return all, nil
}
