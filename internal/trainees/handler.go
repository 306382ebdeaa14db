package trainees

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/coachcal/coachcal/internal/telemetry/tracing"
	"github.com/coachcal/coachcal/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type traineeStore interface {
	Add(ctx context.Context, trainee Trainee) (*Trainee, error)
	Update(ctx context.Context, trainee *Trainee) error
	Delete(ctx context.Context, id int) error
	Get(ctx context.Context, id int) (*Trainee, error)
	ListActive(ctx context.Context, trainerID int) ([]Trainee, error)
}

type trainerResolver interface {
	TrainerID(ctx context.Context, token string) (int, error)
}

type Handler struct {
	repo traineeStore
	auth trainerResolver
}

func NewHandler(repo traineeStore, auth trainerResolver) *Handler {
	return &Handler{
		repo: repo,
		auth: auth,
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

type traineeRequest struct {
	FullName          string         `json:"fullName"`
	IsPair            bool           `json:"isPair"`
	PairName1         string         `json:"pairName1"`
	PairName2         string         `json:"pairName2"`
	CountingMethod    CountingMethod `json:"countingMethod"`
	CardSessionsTotal int            `json:"cardSessionsTotal"`
	CardSessionsUsed  int            `json:"cardSessionsUsed"`
}

func (req *traineeRequest) validate() error {
	if req.FullName == "" {
		return errors.New("full name empty")
	}
	if !req.CountingMethod.IsValid() {
		return errors.New("invalid counting method")
	}
	if req.CountingMethod == CardTicket && req.CardSessionsTotal <= 0 {
		return errors.New("card ticket needs a positive sessions total")
	}
	if req.IsPair && (req.PairName1 == "" || req.PairName2 == "") {
		return errors.New("pair trainee needs both names")
	}
	return nil
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainees.list")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	allTrainees, err := handler.repo.ListActive(ctx, trainerID)
	if err != nil {
		log.Errorf("list trainees: %s", err)
		http.Error(w, "list trainees failed", http.StatusInternalServerError)
		return
	}

	traineesJson, err := json.Marshal(allTrainees)
	if err != nil {
		log.Errorf("failed to marshal trainees: %s", err)
		http.Error(w, "list trainees failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, traineesJson, http.StatusOK)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainees.get")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, invalid id", http.StatusBadRequest)
		return
	}

	trainee, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTraineeNotFound) {
			http.Error(w, "trainee not found", http.StatusNotFound)
			return
		}
		log.Errorf("get trainee %d: %s", id, err)
		http.Error(w, "get trainee failed", http.StatusInternalServerError)
		return
	}
	if trainee.TrainerID != trainerID {
		http.Error(w, "trainee not found", http.StatusNotFound)
		return
	}

	traineeJson, err := json.Marshal(trainee)
	if err != nil {
		log.Errorf("failed to marshal trainee: %s", err)
		http.Error(w, "get trainee failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, traineeJson, http.StatusOK)
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainees.add")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var req traineeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "error, invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		http.Error(w, "error, "+err.Error(), http.StatusBadRequest)
		return
	}

	added, err := handler.repo.Add(ctx, Trainee{
		TrainerID:         trainerID,
		FullName:          req.FullName,
		IsPair:            req.IsPair,
		PairName1:         req.PairName1,
		PairName2:         req.PairName2,
		CountingMethod:    req.CountingMethod,
		CardSessionsTotal: req.CardSessionsTotal,
		CardSessionsUsed:  req.CardSessionsUsed,
		IsActive:          true,
	})
	if err != nil {
		if errors.Is(err, ErrTraineeExists) {
			http.Error(w, "error, trainee exists", http.StatusConflict)
			return
		}
		log.Errorf("add trainee: %s", err)
		http.Error(w, "add trainee failed", http.StatusInternalServerError)
		return
	}

	log.Debugf("new trainee added: [%s]: %d", added.FullName, added.ID)

	addedJson, err := json.Marshal(added)
	if err != nil {
		log.Errorf("failed to marshal trainee: %s", err)
		http.Error(w, "add trainee failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedJson, http.StatusCreated)
}

func (handler *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainees.update")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, invalid id", http.StatusBadRequest)
		return
	}

	var req traineeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "error, invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		http.Error(w, "error, "+err.Error(), http.StatusBadRequest)
		return
	}

	existing, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTraineeNotFound) {
			http.Error(w, "trainee not found", http.StatusNotFound)
			return
		}
		log.Errorf("get trainee %d: %s", id, err)
		http.Error(w, "update trainee failed", http.StatusInternalServerError)
		return
	}
	if existing.TrainerID != trainerID {
		http.Error(w, "trainee not found", http.StatusNotFound)
		return
	}

	existing.FullName = req.FullName
	existing.IsPair = req.IsPair
	existing.PairName1 = req.PairName1
	existing.PairName2 = req.PairName2
	existing.CountingMethod = req.CountingMethod
	existing.CardSessionsTotal = req.CardSessionsTotal
	existing.CardSessionsUsed = req.CardSessionsUsed

	if err := handler.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, ErrTraineeExists) {
			http.Error(w, "error, trainee exists", http.StatusConflict)
			return
		}
		log.Errorf("update trainee %d: %s", id, err)
		http.Error(w, "update trainee failed", http.StatusInternalServerError)
		return
	}

	updatedJson, err := json.Marshal(existing)
	if err != nil {
		log.Errorf("failed to marshal trainee: %s", err)
		http.Error(w, "update trainee failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, updatedJson, http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainees.delete")
	defer span.End()

	trainerID, ok := handler.trainerID(r)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, invalid id", http.StatusBadRequest)
		return
	}

	existing, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTraineeNotFound) {
			http.Error(w, "trainee not found", http.StatusNotFound)
			return
		}
		log.Errorf("get trainee %d: %s", id, err)
		http.Error(w, "deactivate trainee failed", http.StatusInternalServerError)
		return
	}
	if existing.TrainerID != trainerID {
		http.Error(w, "trainee not found", http.StatusNotFound)
		return
	}

	// soft delete, the trainee stays for historic bookkeeping
	if err := handler.repo.Delete(ctx, id); err != nil {
		log.Errorf("deactivate trainee %d: %s", id, err)
		http.Error(w, "deactivate trainee failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, []byte(`{"deactivated":true}`), http.StatusOK)
}
