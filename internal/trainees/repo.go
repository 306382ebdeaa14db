package trainees

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

var (
	ErrTraineeNotFound = errors.New("trainee not found")
	// ErrTraineeExists - names are unique per trainer, duplicates
	// would make event title matching ambiguous
	ErrTraineeExists = errors.New("trainee already exists")
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, trainee Trainee) (_ *Trainee, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainees.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if trainee.CreatedAt.IsZero() {
		trainee.CreatedAt = time.Now()
	}

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO trainee
				(trainer_id, full_name, is_pair, pair_name_1, pair_name_2, counting_method, card_sessions_total, card_sessions_used, is_active, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id;`,
		trainee.TrainerID, trainee.FullName, trainee.IsPair, trainee.PairName1, trainee.PairName2,
		trainee.CountingMethod, trainee.CardSessionsTotal, trainee.CardSessionsUsed, trainee.IsActive, trainee.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			if pkg.IsUniqueViolationError(err) {
				return nil, ErrTraineeExists
			}
			return nil, err
		}
		return nil, errors.New("unexpected error [no rows next]")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	span.SetAttributes(attribute.Int("trainee.id", id))

	trainee.ID = id
	return &trainee, nil
}

func (r *Repo) Update(ctx context.Context, trainee *Trainee) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainees.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", trainee.ID))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE trainee SET
				full_name = $1, is_pair = $2, pair_name_1 = $3, pair_name_2 = $4,
				counting_method = $5, card_sessions_total = $6, card_sessions_used = $7, is_active = $8
			WHERE id = $9;`,
		trainee.FullName, trainee.IsPair, trainee.PairName1, trainee.PairName2,
		trainee.CountingMethod, trainee.CardSessionsTotal, trainee.CardSessionsUsed, trainee.IsActive,
		trainee.ID,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return ErrTraineeExists
		}
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrTraineeNotFound
	}

	return nil
}

func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainees.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	// soft delete, the trainee stays for historic session counts
	tag, err := r.db.Exec(
		ctx,
		`UPDATE trainee SET is_active = FALSE WHERE id = $1;`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTraineeNotFound
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *Trainee, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainees.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, trainer_id, full_name, is_pair, pair_name_1, pair_name_2,
				counting_method, card_sessions_total, card_sessions_used, is_active, created_at
			FROM trainee
			WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	all, err := r.rows2trainees(rows)
	if err != nil {
		return nil, err
	}

	if len(all) != 1 {
		return nil, ErrTraineeNotFound
	}

	return &all[0], nil
}

// ListActive returns the active roster of one trainer, the match
// target for calendar event titles.
func (r *Repo) ListActive(ctx context.Context, trainerID int) (_ []Trainee, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.trainees.listActive")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", trainerID))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, trainer_id, full_name, is_pair, pair_name_1, pair_name_2,
				counting_method, card_sessions_total, card_sessions_used, is_active, created_at
			FROM trainee
			WHERE trainer_id = $1 AND is_active IS TRUE
			ORDER BY full_name;`,
		trainerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return r.rows2trainees(rows)
}

func (r *Repo) rows2trainees(rows pgx.Rows) ([]Trainee, error) {
	var all []Trainee
	for rows.Next() {
		var t Trainee
		var pairName1, pairName2 *string
		if err := rows.Scan(
			&t.ID, &t.TrainerID, &t.FullName, &t.IsPair, &pairName1, &pairName2,
			&t.CountingMethod, &t.CardSessionsTotal, &t.CardSessionsUsed, &t.IsActive, &t.CreatedAt,
		); err != nil {
			return nil, err
		}

		if pairName1 != nil {
			t.PairName1 = *pairName1
		}
		if pairName2 != nil {
			t.PairName2 = *pairName2
		}

		all = append(all, t)
	}

	if all == nil {
		all = make([]Trainee, 0)
	}

	return all, nil
}
