package completion

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/vidpress/pkg/httpx"
)

const maxEventBytes = 1 << 20

// EventHandler is the operation the HTTP layer drives.
type EventHandler interface {
	Handle(ctx context.Context, raw []byte) (Event, Outcome, error)
}

// HTTPHandler accepts events pushed directly by the event bus.
type HTTPHandler struct {
	service EventHandler
	logger  *zap.Logger
	router  chi.Router
}

type eventResponse struct {
	Message string  `json:"message,omitempty"`
	JobID   string  `json:"jobId,omitempty"`
	Outcome Outcome `json:"outcome,omitempty"`
	Error   string  `json:"error,omitempty"`
}

func NewHTTPHandler(service EventHandler, logger *zap.Logger, timeout time.Duration) *HTTPHandler {
	h := &HTTPHandler{
		service: service,
		logger:  logger,
	}
	h.router = httpx.NewRouter(timeout)
	h.router.Post("/api/v1/events", h.handleEvent)
	return h
}

func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := httpx.ReadBody(w, r, maxEventBytes)
	if err != nil {
		h.logger.Warn("event body rejected", zap.Error(err))
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	ev, outcome, err := h.service.Handle(r.Context(), body)
	if err != nil {
		httpx.WriteJSON(w, StatusCode(err), eventResponse{JobID: ev.JobID, Error: err.Error()})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, eventResponse{
		Message: outcomeMessage(outcome),
		JobID:   ev.JobID,
		Outcome: outcome,
	})
}

func outcomeMessage(o Outcome) string {
	switch o {
	case OutcomeCompleted:
		return "Job completed successfully"
	case OutcomeFailed:
		return "Job failed, error handled"
	default:
		return "Event ignored"
	}
}
