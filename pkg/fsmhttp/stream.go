package fsmhttp

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/fsmkit/pkg/logger"
	"github.com/dmitrymomot/fsmkit/pkg/observer"
)

// occurrences streams occurrences as server-sent events until the client
// disconnects or the broadcaster closes.
func (a *api) occurrences(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	sub := a.stream.Subscribe(ctx)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(a.heartbeat)
	defer ticker.Stop()

	messages := sub.Receive(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-messages:
			if !ok {
				return
			}
			payload := observer.NewPayload(msg.Data)
			body, err := payload.Marshal()
			if err != nil {
				a.logger.LogAttrs(ctx, slog.LevelWarn, "failed to encode occurrence", logger.Error(err))
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", payload.Sequence, payload.Kind, body)
			flusher.Flush()
		}
	}
}
