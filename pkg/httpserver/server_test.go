package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fsmkit/pkg/httpserver"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestServe_ShutdownOnContextCancel(t *testing.T) {
	t.Parallel()

	var hookCalls atomic.Int32
	srv := httpserver.New(
		httpserver.Config{ShutdownTimeout: time.Second},
		httpserver.WithShutdownHook(func(context.Context) error {
			hookCalls.Add(1)
			return nil
		}),
	)

	ln := listen(t)
	addr := ln.Addr().String()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln, okHandler()) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "serve did not return")
	}
	assert.Equal(t, int32(1), hookCalls.Load())
	assert.Nil(t, srv.Addr())
}

func TestServe_HookErrorsAreReported(t *testing.T) {
	t.Parallel()

	hookErr := errors.New("drain failed")
	var order []int
	srv := httpserver.New(
		httpserver.Config{ShutdownTimeout: time.Second},
		httpserver.WithShutdownHook(func(context.Context) error { order = append(order, 1); return hookErr }),
		httpserver.WithShutdownHook(func(context.Context) error { order = append(order, 2); return nil }),
		httpserver.WithShutdownHook(nil),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := srv.Serve(ctx, listen(t), okHandler())
	require.Error(t, err)
	assert.ErrorIs(t, err, httpserver.ErrShutdown)
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, []int{1, 2}, order)
}

func TestServe_AlreadyRunning(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.Config{ShutdownTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listen(t), okHandler()) }()
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 10*time.Millisecond)

	err := srv.Serve(ctx, listen(t), okHandler())
	assert.ErrorIs(t, err, httpserver.ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_InvalidAddress(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.Config{Addr: ":invalid"})
	err := srv.Run(context.Background(), okHandler())
	require.Error(t, err)
	assert.ErrorIs(t, err, httpserver.ErrStart)
}

func TestLiveness(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	httpserver.Liveness()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "ALIVE", string(body))
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	t.Run("all checks pass", func(t *testing.T) {
		t.Parallel()
		h := httpserver.Readiness(nil, map[string]httpserver.Check{
			"machine": func(context.Context) error { return nil },
		})
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ready", body["status"])
		assert.NotContains(t, body, "checks")
	})

	t.Run("failing check is named", func(t *testing.T) {
		t.Parallel()
		h := httpserver.Readiness(nil, map[string]httpserver.Check{
			"machine": func(context.Context) error { return nil },
			"redis":   func(context.Context) error { return errors.New("connection refused") },
		})
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "not_ready", body.Status)
		assert.Equal(t, map[string]string{"redis": "connection refused"}, body.Checks)
	})
}
