package fsmhttp_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fsmkit/pkg/broadcast"
	"github.com/dmitrymomot/fsmkit/pkg/fsmhttp"
	"github.com/dmitrymomot/fsmkit/pkg/observer"
	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

const (
	pending = statemachine.StringState("pending")
	paid    = statemachine.StringState("paid")
	failed  = statemachine.StringState("failed")
	pay     = statemachine.StringEvent("pay")
	crash   = statemachine.StringEvent("crash")
)

func newMachine(t *testing.T, opts ...statemachine.Option) *statemachine.Machine {
	t.Helper()
	hasAmount := func(ctx context.Context, from statemachine.State, event statemachine.Event, data any) bool {
		body, ok := data.(map[string]any)
		return ok && body["amount"] != nil
	}
	opts = append([]statemachine.Option{
		statemachine.WithID("order-1"),
		statemachine.WithTransition(pending, paid, pay, statemachine.WithGuard(hasAmount)),
		statemachine.WithTransition(pending, failed, crash, statemachine.WithAction(
			func(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
				return errors.New("gateway down")
			},
		)),
	}, opts...)
	m := statemachine.MustNew(pending, opts...)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestRouter_Lifecycle(t *testing.T) {
	t.Parallel()
	m := newMachine(t)
	h := fsmhttp.Router(m)

	rec, body := do(t, h, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "order-1", body["machine_id"])
	assert.Equal(t, "pending", body["state"])
	assert.Equal(t, false, body["started"])

	rec, body = do(t, h, http.MethodPost, "/events/pay", `{"amount": 10}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_started", body["reason"])

	rec, body = do(t, h, http.MethodPost, "/start", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["started"])

	rec, _ = do(t, h, http.MethodPost, "/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["started"])
}

func TestRouter_Events(t *testing.T) {
	t.Parallel()
	m := newMachine(t)
	require.NoError(t, m.Start(context.Background()))
	h := fsmhttp.Router(m)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantReason string
		wantState  string
	}{
		{name: "guard denied", path: "/events/pay", wantStatus: http.StatusConflict, wantReason: "guard_denied", wantState: "pending"},
		{name: "invalid body", path: "/events/pay", body: "{", wantStatus: http.StatusBadRequest},
		{name: "action failed", path: "/events/crash", wantStatus: http.StatusUnprocessableEntity, wantReason: "action_failed", wantState: "pending"},
		{name: "applied", path: "/events/pay", body: `{"amount": 10}`, wantStatus: http.StatusOK, wantReason: "none", wantState: "paid"},
		{name: "no matching transition", path: "/events/refund", wantStatus: http.StatusConflict, wantReason: "no_matching_transition", wantState: "paid"},
	}

	// Subtests share one machine and run in order.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantReason == "" {
				assert.NotEmpty(t, body["error"])
				return
			}
			assert.Equal(t, tt.wantReason, body["reason"])
			assert.Equal(t, tt.wantState, body["state"])
			assert.Equal(t, tt.wantReason == "none", body["applied"])
		})
	}
}

func TestRouter_NotificationsAndStats(t *testing.T) {
	t.Parallel()
	rec := observer.NewRecorder()
	m := newMachine(t, statemachine.WithObservers(rec))
	h := fsmhttp.Router(m)

	resp, body := do(t, h, http.MethodPut, "/notifications", `{"enabled": false}`)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, body["notifications"])

	do(t, h, http.MethodPost, "/start", "")
	assert.Zero(t, rec.Count())

	resp, _ = do(t, h, http.MethodPut, "/notifications", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	do(t, h, http.MethodPut, "/notifications", `{"enabled": true}`)
	do(t, h, http.MethodPost, "/events/pay", `{"amount": 1}`)
	assert.Equal(t, 4, rec.Count())

	resp, body = do(t, h, http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.EqualValues(t, 4, body["published"])
	assert.EqualValues(t, 1, body["subscribers"])
}

func TestRouter_Definition(t *testing.T) {
	t.Parallel()
	h := fsmhttp.Router(newMachine(t))

	resp, body := do(t, h, http.MethodGet, "/definition", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "order-1", body["id"])
	assert.Equal(t, "pending", body["initial"])
	assert.Equal(t, "sync", body["delivery"])
	assert.Len(t, body["transitions"], 2)
}

func TestRouter_OccurrenceStreamDisabled(t *testing.T) {
	t.Parallel()
	h := fsmhttp.Router(newMachine(t))

	req := httptest.NewRequest(http.MethodGet, "/occurrences", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_OccurrenceStream(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[statemachine.Occurrence](broadcast.WithBufferSize(32))
	t.Cleanup(func() { _ = b.Close() })

	m := newMachine(t, statemachine.WithObservers(observer.NewBroadcast(b)))
	srv := httptest.NewServer(fsmhttp.Router(m, fsmhttp.WithStream(b), fsmhttp.WithHeartbeat(time.Hour)))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/occurrences", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Fire(ctx, pay, map[string]any{"amount": 5}))

	var events []string
	for len(events) < 5 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimSpace(strings.TrimPrefix(line, "event: ")))
		}
	}
	// The data line follows the last event line.
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))
	lastData := strings.TrimSpace(strings.TrimPrefix(line, "data: "))

	assert.Equal(t, []string{
		"machine_started",
		"transition_started",
		"state_exited",
		"state_entered",
		"transition_ended",
	}, events)

	payload, err := observer.DecodePayload([]byte(lastData))
	require.NoError(t, err)
	assert.Equal(t, "order-1", payload.MachineID)
	assert.Equal(t, "paid", payload.State)
	assert.Equal(t, "pay", payload.Event)
	assert.Equal(t, uint64(5), payload.Sequence)
}
