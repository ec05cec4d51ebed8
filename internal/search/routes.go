package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/apperr"
	"github.com/ziadkadry99/econsult/internal/identity"
)

// RegisterRoutes mounts POST /api/search and GET /api/performance. The
// router is expected to run the identity middleware.
func RegisterRoutes(r chi.Router, svc *Service, logger *zap.Logger) {
	r.Post("/api/search", handleSearch(svc, logger))
	r.Get("/api/performance", handlePerformance(svc))
}

func handleSearch(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperr.WriteError(w, http.StatusUnprocessableEntity, "invalid request body")
			return
		}

		ident, _ := identity.FromContext(r.Context())
		logger.Info("search requested", zap.Stringer("identity", ident))

		resp, err := svc.Search(r.Context(), ident, req)
		if err != nil {
			status, detail := HTTPError(err)
			apperr.WriteError(w, status, detail)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HTTPError maps a pipeline error onto a status code and a {"detail"}
// message. The status comes from apperr.StatusFor. LLM stage failures never
// leak provider error text.
func HTTPError(err error) (int, string) {
	status := apperr.StatusFor(err)
	timedOut := errors.Is(err, context.DeadlineExceeded)
	canceled := errors.Is(err, context.Canceled)

	if apperr.IsLLM(err) {
		switch {
		case timedOut:
			return status, "LLM operations timed out - please try again"
		case canceled:
			return status, "LLM operations were cancelled"
		default:
			return status, "Internal server error during LLM operations"
		}
	}

	switch {
	case timedOut:
		return status, "Search operation timed out"
	case canceled:
		return status, "Search operation was cancelled"
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindHeaderValidation,
		apperr.KindEncoder, apperr.KindDatabase,
		apperr.KindVectorSearch, apperr.KindConfiguration:
		return status, apperr.MessageOf(err)
	default:
		return status, "Internal server error during vector search"
	}
}

func handlePerformance(svc *Service) http.HandlerFunc {
	info := PerformanceInfo{
		AsyncEndpoint:         "/api/search",
		SearchHistoryEndpoint: "/api/search/history",
		WebSocketEndpoint:     "/ws/search",
		PerformanceImprovements: []string{
			"Cached embedding client (no reloading per request)",
			"Database connection pooling",
			"Per-stage timeouts with context cancellation",
			"Rate-limited LLM calls behind a circuit breaker",
		},
		ExpectedPerformanceGain: "80-90% faster for encoder and database operations",
		Timeouts: map[string]string{
			"vector_search":  formatSeconds(svc.opts.VectorTimeout),
			"llm_operations": formatSeconds(svc.opts.SummaryTimeout),
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, info)
	}
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int(d.Seconds()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
