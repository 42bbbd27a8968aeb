package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/config"
	"notification-engine/internal/engine"
	"notification-engine/internal/health"
	"notification-engine/internal/logging"
	"notification-engine/internal/models"
	"notification-engine/internal/ws"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeNotificationStore struct {
	notifications []models.Notification
	unread        int
	readOwner     string
	markReadErr   error
	archived      []string
}

func (s *fakeNotificationStore) GetByID(_ context.Context, id string) (models.Notification, error) {
	for _, n := range s.notifications {
		if n.ID == id {
			return n, nil
		}
	}
	return models.Notification{}, errors.New("no rows")
}

func (s *fakeNotificationStore) ListForUser(_ context.Context, _ string, _ models.ListFilter) ([]models.Notification, int, error) {
	return s.notifications, len(s.notifications), nil
}

func (s *fakeNotificationStore) UnreadCount(_ context.Context, _ string) (int, error) {
	return s.unread, nil
}

func (s *fakeNotificationStore) MarkRead(_ context.Context, _ string) (string, error) {
	if s.markReadErr != nil {
		return "", s.markReadErr
	}
	return s.readOwner, nil
}

func (s *fakeNotificationStore) MarkAllRead(_ context.Context, _ string) (int64, error) {
	return int64(s.unread), nil
}

func (s *fakeNotificationStore) Archive(_ context.Context, id string) error {
	s.archived = append(s.archived, id)
	return nil
}

// engineStore adapts the fake to the pipeline's persistence interface.
type engineStore struct{}

func (engineStore) Save(context.Context, models.Notification) error { return nil }

func (engineStore) MarkDelivered(context.Context, string) error { return nil }

func testRouter(t *testing.T, store *fakeNotificationStore) (*gin.Engine, *ws.Hub, *health.Monitor) {
	t.Helper()
	logger, err := logging.New(t.TempDir(), "error")
	require.NoError(t, err)

	var cfg config.Config
	cfg.API.BasePath = "/api/v1"
	cfg.Engine.QueueSize = 100
	cfg.Engine.MaxWorkers = 1
	cfg.Engine.DedupWindow = time.Hour
	cfg.Engine.RateLimitMax = 50
	cfg.Engine.RateLimitWindow = time.Hour
	cfg.Engine.BatchDelay = 5 * time.Minute
	cfg.Engine.MaxBatchSize = 10
	cfg.Engine.MaxDeliveryAttempts = 3
	cfg.Engine.RetryDelays = []time.Duration{time.Second}
	cfg.Engine.AttemptRetention = 24 * time.Hour
	cfg.Monitor.Interval = time.Hour

	hub := ws.NewHub(logger)
	eng := engine.New(cfg, logger, engineStore{}, hub)
	monitor := health.NewMonitor(eng, hub, logger)

	return NewRouter(store, eng, hub, monitor, logger, cfg), hub, monitor
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestSubmitEventAccepted(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/events",
		`{"user_id":"u1","type":"follow","actor_name":"Alice"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestSubmitEventValidation(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{})

	w := doJSON(t, router, http.MethodPost, "/api/v1/events", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/events", `{"type":"follow"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "user_id")

	w = doJSON(t, router, http.MethodPost, "/api/v1/events",
		`{"user_id":"u1","type":"follow","priority":"mega"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetNotificationsByUserID(t *testing.T) {
	store := &fakeNotificationStore{notifications: []models.Notification{
		{ID: "n1", UserID: "u1", Type: models.TypeFollow, Title: "New follower"},
	}}
	router, _, _ := testRouter(t, store)

	w := doJSON(t, router, http.MethodGet, "/api/v1/notifications/user/u1?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Notifications []models.Notification `json:"notifications"`
		Total         int                   `json:"total"`
		Limit         int                   `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Notifications, 1)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 5, resp.Limit)
}

func TestGetNotificationByID(t *testing.T) {
	store := &fakeNotificationStore{notifications: []models.Notification{
		{ID: "n1", UserID: "u1", Type: models.TypeFollow, Title: "New follower"},
	}}
	router, _, _ := testRouter(t, store)

	w := doJSON(t, router, http.MethodGet, "/api/v1/notifications/n1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var n models.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	assert.Equal(t, "n1", n.ID)
	assert.Equal(t, "New follower", n.Title)

	w = doJSON(t, router, http.MethodGet, "/api/v1/notifications/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetUnreadCount(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{unread: 4})

	w := doJSON(t, router, http.MethodGet, "/api/v1/notifications/user/u1/unread-count", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unread_count":4}`, w.Body.String())
}

func TestMarkReadNotFound(t *testing.T) {
	store := &fakeNotificationStore{markReadErr: errors.New("no rows")}
	router, _, _ := testRouter(t, store)

	w := doJSON(t, router, http.MethodPost, "/api/v1/notifications/n1/read", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkReadBroadcastsReceipt(t *testing.T) {
	store := &fakeNotificationStore{readOwner: "u1"}
	router, hub, _ := testRouter(t, store)

	w := newRecorderWire()
	_, err := hub.Register("u1", w)
	require.NoError(t, err)

	resp := doJSON(t, router, http.MethodPost, "/api/v1/notifications/n1/read", "")
	require.Equal(t, http.StatusOK, resp.Code)

	ev := w.next(t)
	assert.Equal(t, ws.EventNotificationRead, ev.Type)
	receipt := ev.Data.(ws.ReadReceipt)
	assert.Equal(t, "n1", receipt.NotificationID)
	assert.Equal(t, "u1", receipt.UserID)
}

func TestMarkAllRead(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{unread: 7})

	w := doJSON(t, router, http.MethodPost, "/api/v1/notifications/user/u1/read-all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":7}`, w.Body.String())
}

func TestArchiveNotification(t *testing.T) {
	store := &fakeNotificationStore{}
	router, _, _ := testRouter(t, store)

	w := doJSON(t, router, http.MethodPost, "/api/v1/notifications/n1/archive", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"n1"}, store.archived)
}

func TestGetHealthJSON(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{})

	w := doJSON(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var report health.DetailedReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, models.OverallHealthy, report.Overall)
	assert.Equal(t, 100, report.Score)
}

func TestGetHealthSlimReport(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{})

	w := doJSON(t, router, http.MethodGet, "/health?detailed=false", "")
	require.Equal(t, http.StatusOK, w.Code)

	var report models.HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 100, report.Score)
	assert.NotContains(t, w.Body.String(), "system_stats")
}

func TestGetHealthPrometheusFormat(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{})

	w := doJSON(t, router, http.MethodGet, "/health?format=prometheus", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "notification_system_health_score 100")
}

func TestPostHealthActions(t *testing.T) {
	router, _, monitor := testRouter(t, &fakeNotificationStore{})

	w := doJSON(t, router, http.MethodPost, "/health", `{"action":"check"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/health", `{"action":"start"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, monitor.Running())

	w = doJSON(t, router, http.MethodPost, "/health", `{"action":"stop"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, monitor.Running())

	w = doJSON(t, router, http.MethodPost, "/health", `{"action":"get_alerts"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/health", `{"action":"cleanup"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPostHealthRequiresParameters(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{})

	w := doJSON(t, router, http.MethodPost, "/health", `{"action":"resolve_alert"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "alertId")

	w = doJSON(t, router, http.MethodPost, "/health", `{"action":"test_reliability"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "userId")

	w = doJSON(t, router, http.MethodPost, "/health", `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "explode")
}

func TestPostHealthResolveUnknownAlert(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{})

	w := doJSON(t, router, http.MethodPost, "/health", `{"action":"resolve_alert","alertId":"nope"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutHealthDiagnostics(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{})

	w := doJSON(t, router, http.MethodPut, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "monitoring_running")
}

func TestWSRequiresUserID(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{})

	w := doJSON(t, router, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := testRouter(t, &fakeNotificationStore{})

	w := doJSON(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

// recorderWire captures events pushed to a registered connection.
type recorderWire struct {
	events chan ws.Event
}

func newRecorderWire() *recorderWire {
	return &recorderWire{events: make(chan ws.Event, 16)}
}

func (w *recorderWire) WriteJSON(v interface{}) error {
	w.events <- v.(ws.Event)
	return nil
}

func (w *recorderWire) SetWriteDeadline(time.Time) error { return nil }

func (w *recorderWire) Close() error { return nil }

func (w *recorderWire) next(t *testing.T) ws.Event {
	t.Helper()
	select {
	case ev := <-w.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return ws.Event{}
	}
}
