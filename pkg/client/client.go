// Package client 是 Vertex Tips REST API 的 Go 客户端
package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/d60-Lab/vertex-tips/internal/model"
	"github.com/d60-Lab/vertex-tips/internal/service"
)

const (
	DefaultTimeout    = 15 * time.Second
	DefaultRetryCount = 2
)

// APIError 服务端返回的非 2xx 响应
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vertex api: %d %s: %s", e.Status, e.Kind, e.Message)
}

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// User 登录返回的用户信息
type User struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// NewPrediction 创建预测的请求体
type NewPrediction struct {
	Match   string `json:"match"`
	Sport   string `json:"sport"`
	Odds    string `json:"odds"`
	Date    string `json:"date"`
	Tipster string `json:"tipster"`
}

// FollowedFlag /predictions/all 的列表项
type FollowedFlag struct {
	model.Prediction
	IsFollowed bool `json:"isFollowed"`
}

type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithRetry 重试次数：GET 在网络错误与 5xx 时重试，登录只在网络错误时重试，其余写请求不重试
func WithRetry(count int, wait time.Duration) Option {
	return func(c *resty.Client) { c.SetRetryCount(count).SetRetryWaitTime(wait) }
}

// Client 线程安全；登录成功后自动携带 token
type Client struct {
	http *resty.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultTimeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(DefaultRetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryCondition)
	for _, opt := range opts {
		opt(rc)
	}
	return &Client{http: rc}
}

type transportRetryKey struct{}

// withTransportRetry 标记非 GET 请求可在网络错误（含超时）时重试
func withTransportRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, transportRetryKey{}, true)
}

func retryCondition(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil {
		return false
	}
	if r.Request.Method == http.MethodGet {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	}
	ok, _ := r.Request.Context().Value(transportRetryKey{}).(bool)
	return ok && err != nil
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var (
		zero T
		env  envelope[T]
	)
	req := c.http.R().SetContext(ctx).SetResult(&env).SetError(&env)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if token := c.Token(); token != "" {
		req.SetAuthToken(token)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return zero, err
	}
	if resp.IsError() {
		return zero, &APIError{Status: resp.StatusCode(), Kind: env.Error, Message: env.Message}
	}
	return env.Data, nil
}

func idPath(format string, id uint) string {
	return fmt.Sprintf(format, strconv.FormatUint(uint64(id), 10))
}

// Login 成功后保存 token
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	res, err := call[LoginResult](withTransportRetry(ctx), c, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

// Logout 只丢弃本地 token，服务端 token 在过期前仍有效
func (c *Client) Logout() { c.SetToken("") }

func (c *Client) Register(ctx context.Context, email, password string) (*User, error) {
	u, err := call[User](ctx, c, http.MethodPost, "/api/auth/register", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) ListPredictions(ctx context.Context, userID uint) ([]model.PredictionView, error) {
	path := "/api/predictions"
	if userID != 0 {
		path += "?userId=" + strconv.FormatUint(uint64(userID), 10)
	}
	return call[[]model.PredictionView](ctx, c, http.MethodGet, path, nil)
}

func (c *Client) ListAll(ctx context.Context) ([]FollowedFlag, error) {
	return call[[]FollowedFlag](ctx, c, http.MethodGet, "/api/predictions/all", nil)
}

func (c *Client) Followed(ctx context.Context, status string) ([]model.FollowedPrediction, error) {
	path := "/api/predictions/followed"
	if status != "" {
		path += "?status=" + status
	}
	return call[[]model.FollowedPrediction](ctx, c, http.MethodGet, path, nil)
}

func (c *Client) Follow(ctx context.Context, predictionID uint) error {
	_, err := call[map[string]any](ctx, c, http.MethodPost, "/api/predictions/follow", map[string]uint{"predictionId": predictionID})
	return err
}

func (c *Client) Unfollow(ctx context.Context, predictionID uint) error {
	_, err := call[map[string]any](ctx, c, http.MethodDelete, idPath("/api/predictions/%s/follow", predictionID), nil)
	return err
}

func (c *Client) CreatePrediction(ctx context.Context, p NewPrediction) (*model.Prediction, error) {
	res, err := call[model.Prediction](ctx, c, http.MethodPost, "/api/predictions/create", p)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SetStatus(ctx context.Context, predictionID uint, status string) (*model.Prediction, error) {
	res, err := call[model.Prediction](ctx, c, http.MethodPatch, idPath("/api/predictions/%s/status", predictionID), map[string]string{"status": status})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ROI(ctx context.Context) (*service.ROISummary, error) {
	res, err := call[service.ROISummary](ctx, c, http.MethodGet, "/api/user/roi", nil)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	return call[[]model.Notification](ctx, c, http.MethodGet, "/api/notifications", nil)
}

func (c *Client) MarkRead(ctx context.Context, id uint) error {
	_, err := call[map[string]any](ctx, c, http.MethodPatch, idPath("/api/notifications/%s/read", id), nil)
	return err
}

// Health 返回服务端状态字段
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/api/health")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", &APIError{Status: resp.StatusCode(), Message: resp.String()}
	}
	return out.Status, nil
}
