package exerciselog_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/2beens/exercisetracker/internal/telemetry/metrics"
	"github.com/2beens/exercisetracker/internal/tracker/exerciselog"
	"github.com/2beens/exercisetracker/internal/tracker/users"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)

func newTestRouter(handler *exerciselog.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/users/{id}/exercises", handler.HandleNewExercise).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/users/{id}/logs", handler.HandleGetLog).Methods("GET")
	return r
}

func TestHandler_HandleNewExercise(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := NewMockusersRepo(ctrl)
	metricsManager := metrics.NewTestManager()
	handler := exerciselog.NewHandler(repoMock, metricsManager, func() time.Time { return testNow })
	r := newTestRouter(handler)

	userID := "b1a9c7de-07c9-4af1-92d1-6a7d7e8f9a01"
	repoMock.
		EXPECT().
		AppendExercise(gomock.Any(), userID, users.Exercise{
			Description: "running",
			Duration:    45,
			Date:        "2020-06-15",
		}).
		Return(&users.User{
			ID:       userID,
			Username: "serj",
			Log: []users.Exercise{
				{Description: "running", Duration: 45, Date: "2020-06-15"},
			},
		}, nil)

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("/api/users/%s/exercises", userID),
		strings.NewReader(`{"description":"running","duration":45,"date":"2020-06-15"}`),
	)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp exerciselog.NewExerciseResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, userID, resp.ID)
	assert.Equal(t, "serj", resp.Username)
	assert.Equal(t, "running", resp.Description)
	assert.Equal(t, 45, resp.Duration)
	// the response carries the calendar rendering, not the stored value
	assert.Equal(t, "Mon Jun 15 2020", resp.Date)

	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterExercisesAdded))
}

func TestHandler_HandleNewExercise_dateDefaulted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := NewMockusersRepo(ctrl)
	handler := exerciselog.NewHandler(repoMock, metrics.NewTestManager(), func() time.Time { return testNow })
	r := newTestRouter(handler)

	userID := "b1a9c7de-07c9-4af1-92d1-6a7d7e8f9a01"
	repoMock.
		EXPECT().
		AppendExercise(gomock.Any(), userID, users.Exercise{
			Description: "push ups",
			Duration:    10,
			Date:        "2024-03-10T12:30:00Z",
		}).
		Return(&users.User{ID: userID, Username: "serj"}, nil)

	// duration as a numeric string, no date at all
	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("/api/users/%s/exercises", userID),
		strings.NewReader(`{"description":"push ups","duration":"10"}`),
	)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp exerciselog.NewExerciseResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Sun Mar 10 2024", resp.Date)
	assert.Equal(t, 10, resp.Duration)
}

func TestHandler_HandleNewExercise_form(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := NewMockusersRepo(ctrl)
	handler := exerciselog.NewHandler(repoMock, metrics.NewTestManager(), func() time.Time { return testNow })
	r := newTestRouter(handler)

	userID := "b1a9c7de-07c9-4af1-92d1-6a7d7e8f9a01"
	repoMock.
		EXPECT().
		AppendExercise(gomock.Any(), userID, users.Exercise{
			Description: "bench press",
			Duration:    30,
			Date:        "2021-01-01",
		}).
		Return(&users.User{ID: userID, Username: "serj"}, nil)

	form := url.Values{}
	form.Add("description", "bench press")
	form.Add("duration", "30")
	form.Add("date", "2021-01-01")
	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("/api/users/%s/exercises", userID),
		strings.NewReader(form.Encode()),
	)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestHandler_HandleNewExercise_invalidRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// repo must never be reached
	repoMock := NewMockusersRepo(ctrl)
	handler := exerciselog.NewHandler(repoMock, metrics.NewTestManager(), func() time.Time { return testNow })
	r := newTestRouter(handler)

	for name, body := range map[string]string{
		"empty description":    `{"description":"","duration":30}`,
		"missing duration":     `{"description":"running"}`,
		"non numeric duration": `{"description":"running","duration":"half an hour"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(
				"POST",
				"/api/users/b1a9c7de-07c9-4af1-92d1-6a7d7e8f9a01/exercises",
				strings.NewReader(body),
			)
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestHandler_HandleNewExercise_userNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := NewMockusersRepo(ctrl)
	metricsManager := metrics.NewTestManager()
	handler := exerciselog.NewHandler(repoMock, metricsManager, func() time.Time { return testNow })
	r := newTestRouter(handler)

	repoMock.
		EXPECT().
		AppendExercise(gomock.Any(), "unknown-id", gomock.Any()).
		Return(nil, users.ErrUserNotFound)

	req, err := http.NewRequest(
		"POST",
		"/api/users/unknown-id/exercises",
		strings.NewReader(`{"description":"running","duration":45}`),
	)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, float64(0), testutil.ToFloat64(metricsManager.CounterExercisesAdded))
}

func TestHandler_HandleNewExercise_repoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := NewMockusersRepo(ctrl)
	handler := exerciselog.NewHandler(repoMock, metrics.NewTestManager(), func() time.Time { return testNow })
	r := newTestRouter(handler)

	repoMock.
		EXPECT().
		AppendExercise(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, assert.AnError)

	req, err := http.NewRequest(
		"POST",
		"/api/users/b1a9c7de-07c9-4af1-92d1-6a7d7e8f9a01/exercises",
		strings.NewReader(`{"description":"running","duration":45}`),
	)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandler_HandleGetLog(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := NewMockusersRepo(ctrl)
	handler := exerciselog.NewHandler(repoMock, metrics.NewTestManager(), nil)
	r := newTestRouter(handler)

	userID := "b1a9c7de-07c9-4af1-92d1-6a7d7e8f9a01"
	repoMock.
		EXPECT().
		Get(gomock.Any(), userID).
		Return(&users.User{
			ID:       userID,
			Username: "serj",
			Log: []users.Exercise{
				{Description: "push ups", Duration: 10, Date: "2020-01-01"},
				{Description: "running", Duration: 45, Date: "2020-06-15"},
				{Description: "bench press", Duration: 30, Date: "2021-01-01"},
			},
		}, nil)

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("/api/users/%s/logs?from=2020-01-01&to=2020-12-31&limit=1", userID),
		nil,
	)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp exerciselog.QueryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, userID, resp.UserID)
	assert.Equal(t, "serj", resp.Username)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Log, 1)
	assert.Equal(t, "push ups", resp.Log[0].Description)
	assert.Equal(t, "Wed Jan 01 2020", resp.Log[0].Date)
}

func TestHandler_HandleGetLog_fullLog(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := NewMockusersRepo(ctrl)
	handler := exerciselog.NewHandler(repoMock, metrics.NewTestManager(), nil)
	r := newTestRouter(handler)

	userID := "b1a9c7de-07c9-4af1-92d1-6a7d7e8f9a01"
	repoMock.
		EXPECT().
		Get(gomock.Any(), userID).
		Return(&users.User{ID: userID, Username: "serj"}, nil)

	req, err := http.NewRequest("GET", fmt.Sprintf("/api/users/%s/logs", userID), nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp exerciselog.QueryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Log)
}

func TestHandler_HandleGetLog_invalidLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// limit is checked before the store is hit
	repoMock := NewMockusersRepo(ctrl)
	handler := exerciselog.NewHandler(repoMock, metrics.NewTestManager(), nil)
	r := newTestRouter(handler)

	for _, limit := range []string{"abc", "-1", "2.5"} {
		req, err := http.NewRequest(
			"GET",
			"/api/users/b1a9c7de-07c9-4af1-92d1-6a7d7e8f9a01/logs?limit="+limit,
			nil,
		)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "limit %q", limit)
	}
}

func TestHandler_HandleGetLog_userNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := NewMockusersRepo(ctrl)
	handler := exerciselog.NewHandler(repoMock, metrics.NewTestManager(), nil)
	r := newTestRouter(handler)

	repoMock.
		EXPECT().
		Get(gomock.Any(), "unknown-id").
		Return(nil, users.ErrUserNotFound)

	req, err := http.NewRequest("GET", "/api/users/unknown-id/logs", nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
