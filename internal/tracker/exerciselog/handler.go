package exerciselog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/exercisetracker/internal/telemetry/metrics"
	"github.com/2beens/exercisetracker/internal/telemetry/tracing"
	"github.com/2beens/exercisetracker/internal/tracker/users"
	"github.com/2beens/exercisetracker/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=exerciselog_mocks_test.go -package=exerciselog_test

type usersRepo interface {
	Get(ctx context.Context, id string) (*users.User, error)
	AppendExercise(ctx context.Context, userID string, exercise users.Exercise) (*users.User, error)
}

type NewExerciseResponse struct {
	Username    string `json:"username"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Date        string `json:"date"`
	ID          string `json:"_id"`
}

type Handler struct {
	repo    usersRepo
	metrics *metrics.Manager
	now     func() time.Time
}

// NewHandler creates the exercises/logs handler. The now func is the time
// source for defaulting missing exercise dates; tests pin it to a fixed
// instant.
func NewHandler(repo usersRepo, metricsManager *metrics.Manager, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{
		repo:    repo,
		metrics: metricsManager,
		now:     now,
	}
}

func (handler *Handler) HandleNewExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exerciselog.new")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	vars := mux.Vars(r)
	userID := vars["id"]
	if userID == "" {
		http.Error(w, "error, user id empty", http.StatusBadRequest)
		return
	}

	req, err := exerciseFromRequest(r)
	if err != nil {
		log.Tracef("new exercise, read request params: %s", err)
		http.Error(w, "add exercise failed", http.StatusBadRequest)
		return
	}

	if err := req.Validate(); err != nil {
		http.Error(w, "error, "+err.Error(), http.StatusBadRequest)
		return
	}

	exercise := req.Normalize(handler.now())

	user, err := handler.repo.AppendExercise(ctx, userID, exercise)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			log.Debugf("append exercise, user %s not found", userID)
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to append exercise to user [%s]: %s", userID, err)
		http.Error(w, "error, failed to add new exercise", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterExercisesAdded.Inc()

	respJson, err := json.Marshal(NewExerciseResponse{
		Username:    user.Username,
		Description: exercise.Description,
		Duration:    exercise.Duration,
		Date:        FormatDate(exercise.Date),
		ID:          user.ID,
	})
	if err != nil {
		log.Errorf("failed to marshal new exercise: %s", err)
		http.Error(w, "error, failed to add new exercise", http.StatusInternalServerError)
		return
	}

	log.Debugf("new exercise added for user [%s]: %s", user.ID, exercise.Description)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}

func (handler *Handler) HandleGetLog(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exerciselog.get")
	defer span.End()

	vars := mux.Vars(r)
	userID := vars["id"]
	if userID == "" {
		http.Error(w, "error, user id empty", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	params := QueryParams{
		From: query.Get("from"),
		To:   query.Get("to"),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			http.Error(w, "error, invalid limit", http.StatusBadRequest)
			return
		}
		params.Limit = &limit
	}

	user, err := handler.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			log.Debugf("get log, user %s not found", userID)
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get user [%s]: %s", userID, err)
		http.Error(w, "failed to get exercise log", http.StatusInternalServerError)
		return
	}

	logJson, err := json.Marshal(Query(user, params))
	if err != nil {
		log.Errorf("failed to marshal exercise log: %s", err)
		http.Error(w, "failed to marshal exercise log", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, logJson)
}

// exerciseFromRequest reads the new exercise params from a JSON body or,
// like the legacy tracker, from an urlencoded form.
func exerciseFromRequest(r *http.Request) (NewExerciseRequest, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req NewExerciseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return NewExerciseRequest{}, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return NewExerciseRequest{}, err
	}

	req := NewExerciseRequest{
		Description: r.Form.Get("description"),
		Date:        r.Form.Get("date"),
	}
	if durationStr := r.Form.Get("duration"); durationStr != "" {
		duration, err := parseDuration(durationStr)
		if err != nil {
			return NewExerciseRequest{}, err
		}
		d := Duration(duration)
		req.Duration = &d
	}
	return req, nil
}
