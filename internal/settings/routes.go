package settings

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/apperr"
	"github.com/ziadkadry99/econsult/internal/validate"
)

// RegisterRoutes mounts the settings endpoints under /api/settings.
// maxLength bounds default_system_prompts; zero means DefaultMaxLength.
func RegisterRoutes(r chi.Router, store *Store, maxLength int, logger *zap.Logger) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	r.Route("/api/settings", func(r chi.Router) {
		r.Get("/", handleGet(store, logger))
		r.Post("/", handleUpdate(store, maxLength, logger))
		r.Delete("/", handleReset(store, logger))
	})
}

func handleGet(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := store.Load(r.Context())
		if err != nil {
			logger.Error("retrieving settings", zap.Error(err))
			apperr.WriteError(w, http.StatusInternalServerError, detailRetrieve)
			return
		}
		writeJSON(w, http.StatusOK, Response{Success: true, Message: msgRetrieved, Settings: &s})
	}
}

func handleUpdate(store *Store, maxLength int, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperr.WriteError(w, http.StatusUnprocessableEntity, "invalid JSON body")
			return
		}
		if err := validate.Var("default_system_prompts", req.DefaultSystemPrompts, fmt.Sprintf("max=%d", maxLength)); err != nil {
			apperr.WriteError(w, http.StatusUnprocessableEntity, apperr.MessageOf(err))
			return
		}

		if err := store.UpdateDefaultSystemPrompts(r.Context(), req.DefaultSystemPrompts); err != nil {
			logger.Error("updating settings", zap.Error(err))
			apperr.WriteError(w, http.StatusInternalServerError, detailUpdate)
			return
		}
		s, err := store.Load(r.Context())
		if err != nil {
			logger.Error("reading back settings", zap.Error(err))
			apperr.WriteError(w, http.StatusInternalServerError, detailUpdate)
			return
		}
		logger.Info("settings updated", zap.Int("length", len([]rune(s.DefaultSystemPrompts))))
		writeJSON(w, http.StatusOK, Response{Success: true, Message: msgUpdated, Settings: &s})
	}
}

func handleReset(store *Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Reset(r.Context()); err != nil {
			logger.Error("resetting settings", zap.Error(err))
			apperr.WriteError(w, http.StatusInternalServerError, detailReset)
			return
		}
		s, err := store.Load(r.Context())
		if err != nil {
			logger.Error("reading back settings", zap.Error(err))
			apperr.WriteError(w, http.StatusInternalServerError, detailReset)
			return
		}
		writeJSON(w, http.StatusOK, Response{Success: true, Message: msgReset, Settings: &s})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
