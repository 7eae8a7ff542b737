package recorder

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/vidpress/internal/pipeline"
	"github.com/your-org/vidpress/pkg/httpx"
)

const maxEnvelopeBytes = 1 << 20

// EnvelopeHandler is the operation the HTTP layer drives.
type EnvelopeHandler interface {
	Handle(ctx context.Context, raw []byte) (Result, error)
}

// HTTPHandler accepts record envelopes over HTTP.
type HTTPHandler struct {
	service EnvelopeHandler
	logger  *zap.Logger
	router  chi.Router
}

func NewHTTPHandler(service EnvelopeHandler, logger *zap.Logger, timeout time.Duration) *HTTPHandler {
	h := &HTTPHandler{
		service: service,
		logger:  logger,
	}
	h.router = httpx.NewRouter(timeout)
	h.router.Post("/api/v1/records", h.handleRecord)
	return h
}

func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleRecord(w http.ResponseWriter, r *http.Request) {
	body, err := httpx.ReadBody(w, r, maxEnvelopeBytes)
	if err != nil {
		h.logger.Warn("record body rejected", zap.Error(err))
		httpx.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	res, err := h.service.Handle(r.Context(), body)
	if err != nil {
		httpx.WriteError(w, statusCode(err), err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrRecordWriteFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
