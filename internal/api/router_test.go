package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/vertex-tips/config"
	"github.com/d60-Lab/vertex-tips/internal/api/handler"
	"github.com/d60-Lab/vertex-tips/internal/model"
	"github.com/d60-Lab/vertex-tips/internal/repository"
	"github.com/d60-Lab/vertex-tips/internal/service"
	"github.com/d60-Lab/vertex-tips/pkg/auth"
	"github.com/d60-Lab/vertex-tips/pkg/database"
)

type testServer struct {
	t        *testing.T
	router   *gin.Engine
	notifier *service.Notifier
	auth     service.AuthService
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.Mode = gin.TestMode

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	users := repository.NewUserRepository(db)
	preds := repository.NewPredictionRepository(db)
	follows := repository.NewFollowRepository(db)
	notes := repository.NewNotificationRepository(db)

	notifier := service.NewNotifier(follows, notes, nil, config.NotifierConfig{})
	notifier.Start()

	tokens := auth.NewTokenManager("test-secret", time.Hour, "vertex-test")
	authSvc := service.NewAuthService(users, tokens, nil)
	h := handler.New(
		authSvc,
		service.NewPredictionService(preds, follows, notifier),
		service.NewNotificationService(notes),
		service.NewUserService(users),
	)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = notifier.Stop(ctx)
		_ = database.Close(db)
	})
	return &testServer{t: t, router: SetupRouter(cfg, h, authSvc, nil), notifier: notifier, auth: authSvc}
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func (s *testServer) login(email, password, role string) string {
	s.t.Helper()
	_, err := s.auth.CreateUser(context.Background(), email, password, role)
	require.NoError(s.t, err)
	w, env := s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	return data.Token
}

func (s *testServer) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(s.t, s.notifier.Flush(ctx))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","message":"Server is running"}`, w.Body.String())
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"email": "new@example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 0, env.Code)

	w, env = s.do(http.MethodPost, "/api/auth/register", "", gin.H{"email": "new@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, http.StatusConflict, env.Code)

	w, env = s.do(http.MethodPost, "/api/auth/register", "", gin.H{"email": "bad", "password": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, "email must be a valid email")

	w, env = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "new@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error)

	w, env = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "new@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
		User  struct {
			ID    uint   `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, "new@example.com", login.User.Email)
	assert.Equal(t, model.RoleUser, login.User.Role)

	w, _ = s.do(http.MethodGet, "/api/auth/me", login.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccessControlOnAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	user := s.login("u@example.com", "secret1", model.RoleUser)

	for _, path := range []string{"/api/admin/users", "/api/admin/predictions", "/api/predictions/latest"} {
		w, _ := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		w, _ = s.do(http.MethodGet, path, user, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}

	w, _ := s.do(http.MethodPost, "/api/predictions/create", "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(http.MethodPost, "/api/predictions/create", user, gin.H{})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// 管理员创建 -> 用户关注 -> 管理员结算 -> 用户收到一条 result 通知
func TestPredictionLifecycle(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin123", model.RoleAdmin)
	user := s.login("u@example.com", "secret1", model.RoleUser)

	w, env := s.do(http.MethodPost, "/api/predictions/create", admin, gin.H{
		"match": "A vs B", "sport": "soccer", "odds": "1.8", "date": "2030-01-01", "tipster": "X",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p model.Prediction
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, model.StatusPending, p.Status)
	assert.NotZero(t, p.ID)

	w, _ = s.do(http.MethodPost, "/api/admin/create-prediction", admin, gin.H{
		"match": "C vs D", "sport": "tennis", "odds": 2.25, "date": "2030-02-01T20:00", "tipster": "Y",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = s.do(http.MethodPost, "/api/predictions/create", admin, gin.H{
		"match": "E vs F", "sport": "soccer", "odds": "abc", "date": "2030-01-01", "tipster": "X",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, "odds")

	w, _ = s.do(http.MethodPost, "/api/predictions/follow", user, gin.H{"predictionId": p.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, env = s.do(http.MethodPost, "/api/predictions/follow", user, gin.H{"predictionId": p.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "CONFLICT", env.Error)
	w, _ = s.do(http.MethodPost, "/api/predictions/follow", user, gin.H{"predictionId": 9999})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(http.MethodGet, "/api/predictions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var anon []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &anon))
	require.Len(t, anon, 2)
	assert.Equal(t, "A vs B", anon[0]["match_name"])
	assert.Equal(t, false, anon[0]["is_followed"])

	w, env = s.do(http.MethodGet, "/api/predictions/all", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &all))
	require.Len(t, all, 2)
	assert.Equal(t, true, all[0]["isFollowed"])
	assert.Equal(t, false, all[1]["isFollowed"])

	s.flush()
	w, env = s.do(http.MethodPatch, "/api/predictions/"+itoa(p.ID)+"/status", admin, gin.H{"status": "won"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var settled model.Prediction
	require.NoError(t, json.Unmarshal(env.Data, &settled))
	assert.Equal(t, model.StatusWon, settled.Status)

	w, _ = s.do(http.MethodPatch, "/api/admin/predictions/"+itoa(p.ID)+"/status", admin, gin.H{"status": "lost"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = s.do(http.MethodPatch, "/api/predictions/9999/status", admin, gin.H{"status": "won"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(http.MethodPatch, "/api/predictions/"+itoa(p.ID)+"/status", admin, gin.H{"status": "void"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(http.MethodPatch, "/api/predictions/abc/status", admin, gin.H{"status": "won"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.flush()
	w, env = s.do(http.MethodGet, "/api/notifications", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var notes []model.Notification
	require.NoError(t, json.Unmarshal(env.Data, &notes))
	require.Len(t, notes, 2)
	assert.Equal(t, model.NotificationResult, notes[0].Type)
	assert.Equal(t, "Esito: A vs B è stato Vinto", notes[0].Message)
	assert.Equal(t, model.NotificationNewTip, notes[1].Type)

	w, _ = s.do(http.MethodPatch, "/api/notifications/"+itoa(notes[0].ID)+"/read", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "not owned")
	w, _ = s.do(http.MethodPatch, "/api/notifications/"+itoa(notes[0].ID)+"/read", user, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(http.MethodGet, "/api/notifications/unread-count", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unread":1}`, string(env.Data))

	w, env = s.do(http.MethodPatch, "/api/notifications/read-all", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":1}`, string(env.Data))

	w, env = s.do(http.MethodGet, "/api/predictions/followed?status=won", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var followed []model.FollowedPrediction
	require.NoError(t, json.Unmarshal(env.Data, &followed))
	require.Len(t, followed, 1)
	assert.Equal(t, p.ID, followed[0].ID)

	w, _ = s.do(http.MethodGet, "/api/predictions/followed?status=void", user, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodGet, "/api/user/roi", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roi service.ROISummary
	require.NoError(t, json.Unmarshal(env.Data, &roi))
	assert.EqualValues(t, 1, roi.TotalFollowed)
	assert.EqualValues(t, 1, roi.TotalWon)
	assert.InDelta(t, 0.8, roi.ROI, 1e-9)
	assert.InDelta(t, 80.0, roi.ROIPercentage, 1e-9)

	w, _ = s.do(http.MethodDelete, "/api/predictions/"+itoa(p.ID)+"/follow", user, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(http.MethodDelete, "/api/predictions/"+itoa(p.ID)+"/follow", user, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(http.MethodGet, "/api/user/roi", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total_followed":0,"total_won":0,"total_lost":0,"total_pending":0,"roi":0,"roi_percentage":0}`, string(env.Data))

	w, env = s.do(http.MethodGet, "/api/predictions/latest", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var latest []model.Prediction
	require.NoError(t, json.Unmarshal(env.Data, &latest))
	require.Len(t, latest, 2)
	assert.Equal(t, "C vs D", latest[0].MatchName)

	w, _ = s.do(http.MethodGet, "/api/predictions/"+itoa(p.ID), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(http.MethodGet, "/api/predictions/9999", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminUserRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin123", model.RoleAdmin)
	_ = s.login("u@example.com", "secret1", model.RoleUser)

	w, env := s.do(http.MethodGet, "/api/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &users))
	require.Len(t, users, 2)
	assert.Equal(t, "u@example.com", users[0]["email"])
	assert.NotContains(t, users[0], "password_hash")
	assert.NotContains(t, users[0], "PasswordHash")
	id := uint(users[0]["id"].(float64))

	w, env = s.do(http.MethodPatch, "/api/admin/users/"+itoa(id), admin, gin.H{"role": "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "role must be one of: user, admin", env.Message)

	w, _ = s.do(http.MethodPatch, "/api/admin/users/9999", admin, gin.H{"role": "admin"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(http.MethodPatch, "/api/admin/users/"+itoa(id), admin, gin.H{"role": "admin"})
	require.Equal(t, http.StatusOK, w.Code)
	var u model.User
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.Equal(t, model.RoleAdmin, u.Role)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/api/health", "", nil)
	w, _ := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vertex_http_requests_total")
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }
