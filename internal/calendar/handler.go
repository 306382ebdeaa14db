package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coachcal/coachcal/internal/calendar/match"
	"github.com/coachcal/coachcal/internal/telemetry/tracing"
	"github.com/coachcal/coachcal/internal/workouts"
	"github.com/coachcal/coachcal/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type syncService interface {
	GetEvents(ctx context.Context, trainerID int, from, to time.Time, forceRefresh bool) ([]Event, error)
	SyncNow(ctx context.Context, trainerID int) (*SyncNowResult, error)
	MatchPreview(ctx context.Context, trainerID int, from, to time.Time, forceRefresh bool) ([]match.EventMatch, error)
	AcceptMatch(ctx context.Context, trainerID int, googleEventID string, traineeID int) error
	CreateWorkout(ctx context.Context, trainerID, traineeID int, start time.Time, notes string) (*workouts.Workout, error)
	RescheduleWorkout(ctx context.Context, trainerID, workoutID int, newStart time.Time, notes string) error
	DeleteWorkout(ctx context.Context, trainerID, workoutID int) error
	Status(ctx context.Context, trainerID int) (*ConnectionStatus, error)
	Disconnect(ctx context.Context, trainerID int) error
	GetSettings(ctx context.Context, trainerID int) (*SyncSettings, error)
	UpdateSettings(ctx context.Context, trainerID int, settings SyncSettings) error
}

type oauthService interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, trainerID int, code string) error
}

type trainerResolver interface {
	TrainerID(ctx context.Context, token string) (int, error)
}

type Handler struct {
	service  syncService
	renumber renumberer
	oauth    oauthService
	auth     trainerResolver
}

func NewHandler(
	service syncService,
	renumber renumberer,
	oauth oauthService,
	auth trainerResolver,
) *Handler {
	return &Handler{
		service:  service,
		renumber: renumber,
		oauth:    oauth,
		auth:     auth,
	}
}

func (handler *Handler) trainerID(r *http.Request) (int, bool) {
	token := r.Header.Get("X-COACHCAL-TOKEN")
	if token == "" {
		return 0, false
	}
	trainerID, err := handler.auth.TrainerID(r.Context(), token)
	if err != nil {
		log.Tracef("resolve trainer for token: %s", err)
		return 0, false
	}
	return trainerID, true
}

// timeParam accepts RFC3339 or a bare date.
func timeParam(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func writeServiceError(w http.ResponseWriter, err error, op string) {
	log.Errorf("%s: %s", op, err)
	switch {
	case errors.Is(err, ErrInvalidRange):
		http.Error(w, "invalid date range", http.StatusBadRequest)
	case errors.Is(err, ErrRateLimited):
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	case errors.Is(err, ErrReauthRequired):
		http.Error(w, "google calendar reauthorization required", http.StatusUnauthorized)
	case errors.Is(err, ErrNotConnected):
		http.Error(w, "google calendar not connected", http.StatusBadRequest)
	case errors.Is(err, ErrEventGone):
		http.Error(w, "event deleted remotely", http.StatusGone)
	default:
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}

func (handler *Handler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.events")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	from, err := timeParam(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "error, invalid from", http.StatusBadRequest)
		return
	}
	to, err := timeParam(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "error, invalid to", http.StatusBadRequest)
		return
	}
	forceRefresh := r.URL.Query().Get("force") == "true"

	events, err := handler.service.GetEvents(ctx, trainerID, from, to, forceRefresh)
	if err != nil {
		writeServiceError(w, err, "get events")
		return
	}

	eventsJson, err := json.Marshal(events)
	if err != nil {
		log.Errorf("failed to marshal events: %s", err)
		http.Error(w, "get events failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, eventsJson, http.StatusOK)
}

func (handler *Handler) HandleSyncNow(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.syncNow")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	result, err := handler.service.SyncNow(ctx, trainerID)
	if err != nil {
		writeServiceError(w, err, "sync now")
		return
	}

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("failed to marshal sync result: %s", err)
		http.Error(w, "sync now failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, resultJson, http.StatusOK)
}

func (handler *Handler) HandleMatchPreview(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.matchPreview")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	from, err := timeParam(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "error, invalid from", http.StatusBadRequest)
		return
	}
	to, err := timeParam(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "error, invalid to", http.StatusBadRequest)
		return
	}
	forceRefresh := r.URL.Query().Get("force") == "true"

	matches, err := handler.service.MatchPreview(ctx, trainerID, from, to, forceRefresh)
	if err != nil {
		writeServiceError(w, err, "match preview")
		return
	}

	matchesJson, err := json.Marshal(matches)
	if err != nil {
		log.Errorf("failed to marshal matches: %s", err)
		http.Error(w, "match preview failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, matchesJson, http.StatusOK)
}

type acceptMatchRequest struct {
	GoogleEventID string `json:"googleEventId"`
	TraineeID     int    `json:"traineeId"`
}

func (handler *Handler) HandleAcceptMatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.acceptMatch")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var req acceptMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("accept match, unmarshal json params: %s", err)
		http.Error(w, "accept match failed", http.StatusBadRequest)
		return
	}
	if req.GoogleEventID == "" || req.TraineeID <= 0 {
		http.Error(w, "error, event id or trainee id empty", http.StatusBadRequest)
		return
	}

	if err := handler.service.AcceptMatch(ctx, trainerID, req.GoogleEventID, req.TraineeID); err != nil {
		writeServiceError(w, err, "accept match")
		return
	}
	pkg.WriteTextResponseOK(w, "accepted")
}

func (handler *Handler) HandleRenumber(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.renumber")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	traineeID, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "error, trainee id NaN", http.StatusBadRequest)
		return
	}

	scope := RenumberScope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = ScopeCurrentMonthAndFuture
	}
	if !scope.IsValid() {
		http.Error(w, "error, invalid scope", http.StatusBadRequest)
		return
	}

	result, err := handler.renumber.RenumberForTrainee(ctx, trainerID, traineeID, scope)
	if err != nil {
		writeServiceError(w, err, "renumber")
		return
	}

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("failed to marshal renumber result: %s", err)
		http.Error(w, "renumber failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, resultJson, http.StatusOK)
}

func (handler *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.getSettings")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	settings, err := handler.service.GetSettings(ctx, trainerID)
	if err != nil {
		writeServiceError(w, err, "get settings")
		return
	}

	settingsJson, err := json.Marshal(settings)
	if err != nil {
		log.Errorf("failed to marshal settings: %s", err)
		http.Error(w, "get settings failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, settingsJson, http.StatusOK)
}

func (handler *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.updateSettings")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var settings SyncSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		log.Errorf("update settings, unmarshal json params: %s", err)
		http.Error(w, "update settings failed", http.StatusBadRequest)
		return
	}

	if err := handler.service.UpdateSettings(ctx, trainerID, settings); err != nil {
		if errors.Is(err, ErrRateLimited) {
			writeServiceError(w, err, "update settings")
			return
		}
		log.Errorf("update settings for trainer %d: %s", trainerID, err)
		http.Error(w, "error, invalid settings", http.StatusBadRequest)
		return
	}
	pkg.WriteTextResponseOK(w, "updated")
}

func (handler *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.status")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	status, err := handler.service.Status(ctx, trainerID)
	if err != nil {
		writeServiceError(w, err, "status")
		return
	}

	statusJson, err := json.Marshal(status)
	if err != nil {
		log.Errorf("failed to marshal status: %s", err)
		http.Error(w, "status failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, statusJson, http.StatusOK)
}

func (handler *Handler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.disconnect")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	if err := handler.service.Disconnect(ctx, trainerID); err != nil {
		writeServiceError(w, err, "disconnect")
		return
	}
	pkg.WriteTextResponseOK(w, "disconnected")
}

// HandleOAuthInit returns the consent URL the client should redirect
// the trainer to. The trainer id rides along as the state parameter.
func (handler *Handler) HandleOAuthInit(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.oauthInit")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	authURL := handler.oauth.AuthURL(strconv.Itoa(trainerID))
	urlJson, err := json.Marshal(map[string]string{"url": authURL})
	if err != nil {
		http.Error(w, "oauth init failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, urlJson, http.StatusOK)
}

// HandleOAuthCallback exchanges the authorization code for tokens. The
// route is open (no session header), google calls it directly, so the
// trainer is taken from the state parameter.
func (handler *Handler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.calendar.oauthCallback")
	defer span.End()

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "error, code empty", http.StatusBadRequest)
		return
	}
	trainerID, err := strconv.Atoi(r.URL.Query().Get("state"))
	if err != nil || trainerID <= 0 {
		http.Error(w, "error, invalid state", http.StatusBadRequest)
		return
	}

	if err := handler.oauth.Exchange(ctx, trainerID, code); err != nil {
		log.Errorf("oauth callback for trainer %d: %s", trainerID, err)
		http.Error(w, "oauth exchange failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteTextResponseOK(w, "connected")
}

type createWorkoutRequest struct {
	TraineeID int    `json:"traineeId"`
	Start     string `json:"start"`
	Notes     string `json:"notes"`
}

func (handler *Handler) HandleCreateWorkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.create")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var req createWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("create workout, unmarshal json params: %s", err)
		http.Error(w, "create workout failed", http.StatusBadRequest)
		return
	}
	if req.TraineeID <= 0 {
		http.Error(w, "error, trainee id empty", http.StatusBadRequest)
		return
	}
	start, err := timeParam(req.Start)
	if err != nil {
		http.Error(w, "error, invalid start", http.StatusBadRequest)
		return
	}

	workout, err := handler.service.CreateWorkout(ctx, trainerID, req.TraineeID, start, req.Notes)
	if err != nil {
		writeServiceError(w, err, "create workout")
		return
	}

	workoutJson, err := json.Marshal(workout)
	if err != nil {
		log.Errorf("failed to marshal workout: %s", err)
		http.Error(w, "create workout failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, workoutJson, http.StatusCreated)
}

type rescheduleWorkoutRequest struct {
	Start string `json:"start"`
	Notes string `json:"notes"`
}

func (handler *Handler) HandleRescheduleWorkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.reschedule")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	workoutID, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "error, workout id NaN", http.StatusBadRequest)
		return
	}

	var req rescheduleWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("reschedule workout, unmarshal json params: %s", err)
		http.Error(w, "reschedule workout failed", http.StatusBadRequest)
		return
	}
	start, err := timeParam(req.Start)
	if err != nil {
		http.Error(w, "error, invalid start", http.StatusBadRequest)
		return
	}

	if err := handler.service.RescheduleWorkout(ctx, trainerID, workoutID, start, req.Notes); err != nil {
		writeServiceError(w, err, "reschedule workout")
		return
	}
	pkg.WriteTextResponseOK(w, "rescheduled")
}

func (handler *Handler) HandleDeleteWorkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.workout.delete")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	workoutID, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "error, workout id NaN", http.StatusBadRequest)
		return
	}

	if err := handler.service.DeleteWorkout(ctx, trainerID, workoutID); err != nil {
		writeServiceError(w, err, "delete workout")
		return
	}
	pkg.WriteTextResponseOK(w, "deleted")
}
