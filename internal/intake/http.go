package intake

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/vidpress/pkg/httpx"
)

const maxRequestBytes = 1 << 20

// Dispatcher is the operation the HTTP layer drives.
type Dispatcher interface {
	Handle(ctx context.Context, raw []byte) Response
}

// HTTPHandler exposes REST endpoints for the intake dispatcher.
type HTTPHandler struct {
	service Dispatcher
	logger  *zap.Logger
	router  chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(service Dispatcher, logger *zap.Logger, timeout time.Duration) *HTTPHandler {
	h := &HTTPHandler{
		service: service,
		logger:  logger,
	}
	h.router = httpx.NewRouter(timeout)
	h.router.Post("/api/v1/intake", h.handleIntake)
	return h
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleIntake(w http.ResponseWriter, r *http.Request) {
	body, err := httpx.ReadBody(w, r, maxRequestBytes)
	if err != nil {
		h.logger.Warn("intake body rejected", zap.Error(err))
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	resp := h.service.Handle(r.Context(), body)
	httpx.WriteJSON(w, resp.StatusCode, resp.Body)
}
