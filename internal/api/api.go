// Package api exposes the learning engine as a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-adaptive/internal/coach"
	"github.com/p-n-ai/pai-adaptive/internal/learning"
	"github.com/p-n-ai/pai-adaptive/internal/platform/metrics"
)

// UserHeader carries the authenticated user. Authentication happens in
// front of this service.
const UserHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

// Handler serves the API routes.
type Handler struct {
	engine  *coach.Engine
	metrics *metrics.Metrics
}

// NewHandler creates a handler. m may be nil.
func NewHandler(engine *coach.Engine, m *metrics.Metrics) *Handler {
	return &Handler{engine: engine, metrics: m}
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		fn      userHandler
	}{
		{"POST /v1/sessions", h.startSession},
		{"GET /v1/sessions/{id}", h.getSession},
		{"POST /v1/sessions/{id}/answers", h.recordAnswer},
		{"POST /v1/sessions/{id}/complete", h.completeSession},
		{"GET /v1/sessions/{id}/analysis", h.analyzeSession},
		{"GET /v1/sessions/{id}/questions/{question}/explanation", h.explainMistake},

		{"GET /v1/documents/{doc}/analysis", h.analyzeDocument},
		{"GET /v1/documents/{doc}/targeting", h.targeting},
		{"GET /v1/documents/{doc}/readiness", h.readiness},
		{"GET /v1/documents/{doc}/velocity", h.velocity},
		{"GET /v1/documents/{doc}/forgetting", h.forgetting},
		{"GET /v1/documents/{doc}/pool", h.pool},
		{"POST /v1/documents/{doc}/selection", h.selectQuestions},
		{"GET /v1/documents/{doc}/report", h.exportReport},

		{"GET /v1/fingerprint", h.fingerprint},

		{"GET /v1/reviews/due", h.dueReviews},
		{"GET /v1/reviews/schedule", h.reviewSchedule},
		{"POST /v1/reviews", h.requestReview},
		{"POST /v1/reviews/{question}/submit", h.submitReview},
		{"POST /v1/reviews/{question}/reschedule", h.rescheduleReview},
	}
	for _, rt := range routes {
		var handler http.Handler = h.withUser(rt.fn)
		if h.metrics != nil {
			handler = h.metrics.Instrument(rt.pattern, handler)
		}
		mux.Handle(rt.pattern, handler)
	}
}

func (h *Handler) withUser(fn userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserHeader)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
			return
		}
		fn(w, r, userID)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StatusOf maps an engine error onto an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, learning.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, learning.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, learning.ErrInvalidInput):
		return http.StatusBadRequest
	case learning.IsUpstream(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			writeError(w, status, "internal error")
			return
		}
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func retryAfterSeconds(res coach.SelectResult) string {
	return strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds())))
}
