package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_LoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/auth/login":
			_, _ = w.Write([]byte(`{"code":0,"message":"success","data":{"token":"tok-1","user":{"id":3,"email":"u@example.com","role":"user"}}}`))
		case "/api/user/roi":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"code":401,"message":"invalid token","error":"UNAUTHORIZED"}`))
				return
			}
			_, _ = w.Write([]byte(`{"code":0,"message":"success","data":{"total_followed":2,"total_won":1,"total_lost":1,"total_pending":0,"roi":-0.2,"roi_percentage":-10}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(0, 0))
	ctx := context.Background()

	_, err := c.ROI(ctx)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Kind)

	res, err := c.Login(ctx, "u@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.Token)
	assert.EqualValues(t, 3, res.User.ID)

	roi, err := c.ROI(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, roi.TotalFollowed)
	assert.InDelta(t, -10.0, roi.ROIPercentage, 1e-9)

	c.Logout()
	assert.Empty(t, c.Token())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"code":503,"message":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"message":"success","data":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(2, time.Millisecond))
	list, err := c.Notifications(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":400,"message":"already following this prediction","error":"CONFLICT"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(2, time.Millisecond))
	err := c.Follow(context.Background(), 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "already following this prediction", apiErr.Message)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_DoesNotRetryWrites(t *testing.T) {
	var creates, logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/predictions/create":
			creates.Add(1)
		case "/api/auth/login":
			logins.Add(1)
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":500,"message":"internal server error","error":"INTERNAL_ERROR"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithRetry(2, time.Millisecond))
	_, err := c.CreatePrediction(context.Background(), NewPrediction{Match: "A vs B", Sport: "soccer", Odds: "2", Date: "2030-01-01", Tipster: "X"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.EqualValues(t, 1, creates.Load())

	_, err = c.Login(context.Background(), "u@example.com", "secret1")
	require.Error(t, err)
	assert.EqualValues(t, 1, logins.Load())
}

func TestClient_LoginRetriesOnTimeout(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logins.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"message":"success","data":{"token":"tok-2","user":{"id":1,"email":"u@example.com","role":"user"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithTimeout(50*time.Millisecond), WithRetry(2, time.Millisecond))
	res, err := c.Login(context.Background(), "u@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", res.Token)
	assert.EqualValues(t, 2, logins.Load())
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithTimeout(20*time.Millisecond), WithRetry(0, 0))
	_, err := c.Health(context.Background())
	assert.Error(t, err)
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","message":"Server is running"}`))
	}))
	defer srv.Close()

	status, err := New(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OK", status)
}
