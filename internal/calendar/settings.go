package calendar

import (
	"context"
	"errors"
	"fmt"

	"github.com/coachcal/coachcal/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type SyncFrequency string

const (
	FrequencyRealtime SyncFrequency = "realtime"
	FrequencyHourly   SyncFrequency = "hourly"
	FrequencyDaily    SyncFrequency = "daily"
)

func (f SyncFrequency) IsValid() bool {
	switch f {
	case FrequencyRealtime, FrequencyHourly, FrequencyDaily:
		return true
	}
	return false
}

type SyncSettings struct {
	TrainerID         int           `json:"trainerId"`
	AutoSyncEnabled   bool          `json:"autoSyncEnabled"`
	SyncDirection     SyncDirection `json:"syncDirection"`
	SyncFrequency     SyncFrequency `json:"syncFrequency"`
	DefaultCalendarID string        `json:"defaultCalendarId"`
}

func DefaultSyncSettings(trainerID int) SyncSettings {
	return SyncSettings{
		TrainerID:         trainerID,
		AutoSyncEnabled:   false,
		SyncDirection:     DirectionBidirectional,
		SyncFrequency:     FrequencyHourly,
		DefaultCalendarID: "primary",
	}
}

func (s SyncSettings) Validate() error {
	if !s.SyncDirection.IsValid() {
		return fmt.Errorf("invalid sync direction %q", s.SyncDirection)
	}
	if !s.SyncFrequency.IsValid() {
		return fmt.Errorf("invalid sync frequency %q", s.SyncFrequency)
	}
	if s.DefaultCalendarID == "" {
		return errors.New("default calendar id required")
	}
	return nil
}

type SettingsRepo struct {
	db *pgxpool.Pool
}

func NewSettingsRepo(db *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{
		db: db,
	}
}

// Get returns the trainer's sync settings, or the defaults when the
// trainer never saved any.
func (r *SettingsRepo) Get(ctx context.Context, trainerID int) (_ *SyncSettings, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.syncsettings.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", trainerID))

	var s SyncSettings
	err = r.db.QueryRow(
		ctx,
		`SELECT trainer_id, auto_sync_enabled, sync_direction, sync_frequency, default_calendar_id
			FROM trainer_sync_settings
			WHERE trainer_id = $1;`,
		trainerID,
	).Scan(&s.TrainerID, &s.AutoSyncEnabled, &s.SyncDirection, &s.SyncFrequency, &s.DefaultCalendarID)
	if errors.Is(err, pgx.ErrNoRows) {
		defaults := DefaultSyncSettings(trainerID)
		return &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query row: %w", err)
	}

	return &s, nil
}

func (r *SettingsRepo) Upsert(ctx context.Context, settings SyncSettings) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.syncsettings.upsert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", settings.TrainerID))

	if err := settings.Validate(); err != nil {
		return err
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO trainer_sync_settings
				(trainer_id, auto_sync_enabled, sync_direction, sync_frequency, default_calendar_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (trainer_id) DO UPDATE SET
				auto_sync_enabled = EXCLUDED.auto_sync_enabled,
				sync_direction = EXCLUDED.sync_direction,
				sync_frequency = EXCLUDED.sync_frequency,
				default_calendar_id = EXCLUDED.default_calendar_id;`,
		settings.TrainerID, settings.AutoSyncEnabled,
		settings.SyncDirection, settings.SyncFrequency, settings.DefaultCalendarID,
	)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	return nil
}

// Reset drops the trainer's saved settings, falling back to defaults.
// Used when the trainer disconnects their calendar.
func (r *SettingsRepo) Reset(ctx context.Context, trainerID int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.syncsettings.reset")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", trainerID))

	_, err = r.db.Exec(
		ctx,
		`DELETE FROM trainer_sync_settings WHERE trainer_id = $1;`,
		trainerID,
	)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	return nil
}

// ListAutoSyncTrainers returns trainer ids with auto sync turned on for
// the given frequency, consumed by the background sync ticker.
func (r *SettingsRepo) ListAutoSyncTrainers(ctx context.Context, frequency SyncFrequency) (_ []int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.syncsettings.listAutoSyncTrainers")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("frequency", string(frequency)))

	rows, err := r.db.Query(
		ctx,
		`SELECT trainer_id
			FROM trainer_sync_settings
			WHERE auto_sync_enabled = TRUE AND sync_frequency = $1
			ORDER BY trainer_id;`,
		frequency,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	var trainerIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		trainerIDs = append(trainerIDs, id)
	}
	return trainerIDs, nil
}
