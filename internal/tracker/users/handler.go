package users

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/2beens/exercisetracker/internal/telemetry/metrics"
	"github.com/2beens/exercisetracker/internal/telemetry/tracing"
	"github.com/2beens/exercisetracker/pkg"

	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=users_mocks_test.go -package=users_test

type usersRepo interface {
	Create(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
}

type NewUserResponse struct {
	Username string `json:"username"`
	ID       string `json:"_id"`
}

type Handler struct {
	repo    usersRepo
	metrics *metrics.Manager
}

func NewHandler(repo usersRepo, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:    repo,
		metrics: metricsManager,
	}
}

func (handler *Handler) HandleNewUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.new")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	username, err := usernameFromRequest(r)
	if err != nil {
		log.Tracef("new user, read request params: %s", err)
		http.Error(w, "add user failed", http.StatusBadRequest)
		return
	}

	if username == "" {
		http.Error(w, "error, username empty", http.StatusBadRequest)
		return
	}

	addedUser, err := handler.repo.Create(ctx, username)
	if err != nil {
		log.Errorf("failed to add new user [%s]: %s", username, err)
		http.Error(w, "error, failed to add new user", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterNewUsers.Inc()

	newUserJson, err := json.Marshal(NewUserResponse{
		Username: addedUser.Username,
		ID:       addedUser.ID,
	})
	if err != nil {
		log.Errorf("failed to marshal new user: %s", err)
		http.Error(w, "error, failed to add new user", http.StatusInternalServerError)
		return
	}

	log.Debugf("new user added: [%s] [%s]", addedUser.Username, addedUser.ID)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, newUserJson, http.StatusCreated)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.list")
	defer span.End()

	allUsers, err := handler.repo.List(ctx)
	if err != nil {
		log.Errorf("list users error: %s", err)
		http.Error(w, "failed to get users", http.StatusInternalServerError)
		return
	}

	if allUsers == nil {
		allUsers = []User{}
	}

	usersJson, err := json.Marshal(allUsers)
	if err != nil {
		log.Errorf("marshal users error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, usersJson)
}

// usernameFromRequest reads the username from a JSON body or, like the
// legacy tracker, from an urlencoded form.
func usernameFromRequest(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var params struct {
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			return "", err
		}
		return params.Username, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.Form.Get("username"), nil
}
