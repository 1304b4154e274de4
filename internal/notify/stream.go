package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kaskita/kaskita/internal/platform/httpx"
	"github.com/kaskita/kaskita/internal/rbac"
	"github.com/kaskita/kaskita/internal/shared"
)

const defaultHeartbeat = 25 * time.Second

// StreamHandler serves the server-sent event stream of an organization.
type StreamHandler struct {
	broker    *Broker
	logger    *slog.Logger
	rbac      rbac.Middleware
	heartbeat time.Duration
}

// NewStreamHandler builds the SSE handler.
func NewStreamHandler(broker *Broker, logger *slog.Logger, rbac rbac.Middleware) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{broker: broker, logger: logger, rbac: rbac, heartbeat: defaultHeartbeat}
}

// SetHeartbeat overrides the keep-alive comment interval.
func (h *StreamHandler) SetHeartbeat(d time.Duration) {
	if d > 0 {
		h.heartbeat = d
	}
}

// MountRoutes registers the event stream route.
func (h *StreamHandler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermLedgerView)).Get("/events", h.stream)
}

func (h *StreamHandler) stream(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "streaming unsupported")
		return
	}
	ctx := r.Context()
	sub, err := h.broker.Subscribe(ctx, principal.OrganizationID)
	if err != nil {
		h.logger.Error("subscribe notifications", slog.String("organization_id", principal.OrganizationID.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	defer func() { _ = sub.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
