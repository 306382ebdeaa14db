package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coachcal/coachcal/internal/telemetry/metrics"
	"github.com/coachcal/coachcal/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// tokens are refreshed this long before they actually expire
const tokenRefreshBuffer = 5 * time.Minute

var ErrCredentialsNotFound = errors.New("google credentials not found")

// TokenService hands out valid google access tokens for a trainer.
type TokenService interface {
	GetValidAccessToken(ctx context.Context, trainerID int) (string, error)
	RefreshAccessToken(ctx context.Context, trainerID int) (string, error)
}

// Credentials is one trainer's google oauth grant.
type Credentials struct {
	TrainerID    int
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	CalendarID   string
	CreatedAt    time.Time
}

type CredentialsRepo struct {
	db *pgxpool.Pool
}

func NewCredentialsRepo(db *pgxpool.Pool) *CredentialsRepo {
	return &CredentialsRepo{
		db: db,
	}
}

func (r *CredentialsRepo) Get(ctx context.Context, trainerID int) (_ *Credentials, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.googlecreds.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", trainerID))

	rows, err := r.db.Query(
		ctx,
		`SELECT trainer_id, access_token, refresh_token, token_expiry, COALESCE(calendar_id, 'primary'), created_at
			FROM google_credentials
			WHERE trainer_id = $1;`,
		trainerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, ErrCredentialsNotFound
	}

	var c Credentials
	if err := rows.Scan(
		&c.TrainerID, &c.AccessToken, &c.RefreshToken, &c.Expiry, &c.CalendarID, &c.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	return &c, nil
}

func (r *CredentialsRepo) Upsert(ctx context.Context, creds Credentials) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.googlecreds.upsert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", creds.TrainerID))

	if creds.CreatedAt.IsZero() {
		creds.CreatedAt = time.Now()
	}
	if creds.CalendarID == "" {
		creds.CalendarID = "primary"
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO google_credentials
				(trainer_id, access_token, refresh_token, token_expiry, calendar_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (trainer_id) DO UPDATE SET
				access_token = EXCLUDED.access_token,
				refresh_token = CASE
					WHEN EXCLUDED.refresh_token <> '' THEN EXCLUDED.refresh_token
					ELSE google_credentials.refresh_token
				END,
				token_expiry = EXCLUDED.token_expiry,
				calendar_id = EXCLUDED.calendar_id;`,
		creds.TrainerID, creds.AccessToken, creds.RefreshToken, creds.Expiry, creds.CalendarID, creds.CreatedAt,
	)
	return err
}

func (r *CredentialsRepo) Delete(ctx context.Context, trainerID int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.googlecreds.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("trainer.id", trainerID))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM google_credentials WHERE trainer_id = $1;`,
		trainerID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialsNotFound
	}
	return nil
}

type credentialsStore interface {
	Get(ctx context.Context, trainerID int) (*Credentials, error)
	Upsert(ctx context.Context, creds Credentials) error
	Delete(ctx context.Context, trainerID int) error
}

// GoogleTokenService keeps per-trainer tokens fresh against the google
// oauth endpoint and persists refreshed tokens.
type GoogleTokenService struct {
	repo     credentialsStore
	oauthCfg *oauth2.Config
	metrics  *metrics.Manager
}

func NewGoogleTokenService(
	repo credentialsStore,
	metricsManager *metrics.Manager,
	clientID, clientSecret, redirectURI string,
) *GoogleTokenService {
	return &GoogleTokenService{
		repo:    repo,
		metrics: metricsManager,
		oauthCfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/calendar.events",
			},
		},
	}
}

// AuthURL builds the google consent page URL for the oauth init redirect.
func (s *GoogleTokenService) AuthURL(state string) string {
	return s.oauthCfg.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades the oauth callback code for tokens and stores them.
func (s *GoogleTokenService) Exchange(ctx context.Context, trainerID int, code string) error {
	token, err := s.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange oauth code: %w", err)
	}

	return s.repo.Upsert(ctx, Credentials{
		TrainerID:    trainerID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	})
}

// Connected reports whether the trainer has a stored google grant.
func (s *GoogleTokenService) Connected(ctx context.Context, trainerID int) (bool, error) {
	_, err := s.repo.Get(ctx, trainerID)
	if errors.Is(err, ErrCredentialsNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Disconnect drops the trainer's google grant.
func (s *GoogleTokenService) Disconnect(ctx context.Context, trainerID int) error {
	err := s.repo.Delete(ctx, trainerID)
	if errors.Is(err, ErrCredentialsNotFound) {
		return nil
	}
	return err
}

// CalendarID returns the trainer's configured google calendar.
func (s *GoogleTokenService) CalendarID(ctx context.Context, trainerID int) (string, error) {
	creds, err := s.repo.Get(ctx, trainerID)
	if errors.Is(err, ErrCredentialsNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", err
	}
	return creds.CalendarID, nil
}

func (s *GoogleTokenService) GetValidAccessToken(ctx context.Context, trainerID int) (string, error) {
	creds, err := s.repo.Get(ctx, trainerID)
	if errors.Is(err, ErrCredentialsNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("get credentials: %w", err)
	}

	if time.Until(creds.Expiry) > tokenRefreshBuffer {
		return creds.AccessToken, nil
	}

	return s.RefreshAccessToken(ctx, trainerID)
}

func (s *GoogleTokenService) RefreshAccessToken(ctx context.Context, trainerID int) (string, error) {
	creds, err := s.repo.Get(ctx, trainerID)
	if errors.Is(err, ErrCredentialsNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("get credentials: %w", err)
	}

	if creds.RefreshToken == "" {
		return "", ErrReauthRequired
	}

	tokenSource := s.oauthCfg.TokenSource(ctx, &oauth2.Token{
		RefreshToken: creds.RefreshToken,
	})
	token, err := tokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrReauthRequired, err)
	}

	creds.AccessToken = token.AccessToken
	creds.Expiry = token.Expiry
	if token.RefreshToken != "" {
		creds.RefreshToken = token.RefreshToken
	}
	if err := s.repo.Upsert(ctx, *creds); err != nil {
		return "", fmt.Errorf("store refreshed token: %w", err)
	}

	s.metrics.CounterTokenRefreshes.Inc()

	return token.AccessToken, nil
}
