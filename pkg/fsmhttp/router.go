package fsmhttp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/fsmkit/pkg/broadcast"
	"github.com/dmitrymomot/fsmkit/pkg/definition"
	"github.com/dmitrymomot/fsmkit/pkg/logger"
	"github.com/dmitrymomot/fsmkit/pkg/statemachine"
)

const maxEventBody = 1 << 20

// Option configures the router.
type Option func(*api)

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *api) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithStream enables GET /occurrences backed by b.
func WithStream(b broadcast.Broadcaster[statemachine.Occurrence]) Option {
	return func(a *api) { a.stream = b }
}

// WithHeartbeat sets the interval of keep-alive comments on the occurrence stream.
func WithHeartbeat(d time.Duration) Option {
	return func(a *api) {
		if d > 0 {
			a.heartbeat = d
		}
	}
}

type api struct {
	machine   *statemachine.Machine
	stream    broadcast.Broadcaster[statemachine.Occurrence]
	logger    *slog.Logger
	heartbeat time.Duration
}

// Router builds the HTTP routes for m.
func Router(m *statemachine.Machine, opts ...Option) chi.Router {
	a := &api{
		machine:   m,
		logger:    slog.Default(),
		heartbeat: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("fsm.http"), logger.MachineID(m.ID()))

	r := chi.NewRouter()
	r.Get("/state", a.state)
	r.Get("/definition", a.definition)
	r.Get("/stats", a.stats)
	r.Post("/start", a.start)
	r.Post("/stop", a.stop)
	r.Put("/notifications", a.notifications)
	r.Post("/events/{event}", a.sendEvent)
	if a.stream != nil {
		r.Get("/occurrences", a.occurrences)
	}
	return r
}

// StateResponse describes the machine at the time of the request.
type StateResponse struct {
	MachineID     string `json:"machine_id"`
	State         string `json:"state"`
	Started       bool   `json:"started"`
	Notifications bool   `json:"notifications"`
}

// EventResponse is the outcome of POST /events/{event}.
type EventResponse struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason"`
	Event   string `json:"event"`
	From    string `json:"from,omitempty"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type notificationsRequest struct {
	Enabled *bool `json:"enabled"`
}

func (a *api) snapshot() StateResponse {
	return StateResponse{
		MachineID:     a.machine.ID(),
		State:         a.machine.CurrentState().Name(),
		Started:       a.machine.IsStarted(),
		Notifications: a.machine.NotificationsEnabled(),
	}
}

func (a *api) state(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, r, http.StatusOK, a.snapshot())
}

func (a *api) definition(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, r, http.StatusOK, definition.Describe(a.machine))
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, r, http.StatusOK, a.machine.Stats())
}

func (a *api) start(w http.ResponseWriter, r *http.Request) {
	if err := a.machine.Start(r.Context()); err != nil {
		a.writeError(w, r, statusForError(err), err)
		return
	}
	a.writeJSON(w, r, http.StatusOK, a.snapshot())
}

func (a *api) stop(w http.ResponseWriter, r *http.Request) {
	if err := a.machine.Stop(r.Context()); err != nil {
		a.writeError(w, r, statusForError(err), err)
		return
	}
	a.writeJSON(w, r, http.StatusOK, a.snapshot())
}

func (a *api) notifications(w http.ResponseWriter, r *http.Request) {
	var req notificationsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventBody)).Decode(&req); err != nil || req.Enabled == nil {
		a.writeError(w, r, http.StatusBadRequest, errors.New(`body must be {"enabled": true|false}`))
		return
	}
	a.machine.SetNotificationsEnabled(*req.Enabled)
	a.writeJSON(w, r, http.StatusOK, a.snapshot())
}

func (a *api) sendEvent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "event")
	if name == "" {
		a.writeError(w, r, http.StatusBadRequest, statemachine.ErrInvalidEvent)
		return
	}

	data, err := decodeData(r)
	if err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	res := a.machine.SendEvent(r.Context(), statemachine.StringEvent(name), data)
	resp := EventResponse{
		Applied: res.Applied(),
		Reason:  res.Reason.String(),
		Event:   name,
		State:   a.machine.CurrentState().Name(),
	}
	if res.From != nil {
		resp.From = res.From.Name()
	}
	if err := res.Err(); err != nil {
		resp.Error = err.Error()
	}

	a.writeJSON(w, r, statusForReason(res.Reason), resp)
}

// decodeData reads an optional JSON body. An empty body yields nil data.
func decodeData(r *http.Request) (any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errors.New("event body must be valid JSON")
	}
	return data, nil
}

func statusForReason(reason statemachine.Reason) int {
	switch reason {
	case statemachine.ReasonNone:
		return http.StatusOK
	case statemachine.ReasonActionFailed:
		return http.StatusUnprocessableEntity
	case statemachine.ReasonInvalidEvent:
		return http.StatusBadRequest
	case statemachine.ReasonInvalidState:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, statemachine.ErrAlreadyStarted), errors.Is(err, statemachine.ErrReentrantSend):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.LogAttrs(r.Context(), slog.LevelWarn, "failed to write response", logger.Error(err))
	}
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	a.writeJSON(w, r, status, errorResponse{Error: err.Error()})
}
