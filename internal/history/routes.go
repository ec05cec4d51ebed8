package history

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/apperr"
	"github.com/ziadkadry99/econsult/internal/identity"
)

// RegisterRoutes mounts GET /api/search/history. It expects identity.Middleware
// to run first.
func RegisterRoutes(r chi.Router, store *Store, logger *zap.Logger) {
	r.Get("/api/search/history", handleList(store, logger))
}

func handleList(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := identity.FromContext(r.Context())
		if !ok {
			apperr.WriteError(w, http.StatusUnauthorized, identity.MissingIdentityDetail)
			return
		}

		limit := DefaultLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}

		entries, err := store.List(r.Context(), caller.UserIdentity, limit)
		if err != nil {
			logger.Error("listing search history", zap.Error(err), zap.String("user", caller.UserIdentity))
			apperr.WriteError(w, http.StatusInternalServerError, "Failed to retrieve search history")
			return
		}

		writeJSON(w, http.StatusOK, ListResponse{Success: true, Count: len(entries), History: entries})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
