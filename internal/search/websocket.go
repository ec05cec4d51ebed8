package search

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/apperr"
	"github.com/ziadkadry99/econsult/internal/identity"
)

// wsMessage is the outgoing websocket frame.
type wsMessage struct {
	Type     string    `json:"type"` // "status", "result" or "error"
	Stage    string    `json:"stage,omitempty"`
	Response *Response `json:"response,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	Status   int       `json:"status,omitempty"`
}

// RegisterWebSocket mounts GET /ws/search. Each text frame carries one
// Request; the server answers with status frames per stage followed by a
// result or error frame.
func RegisterWebSocket(r chi.Router, svc *Service, development bool, allowedOrigins []string, logger *zap.Logger) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	r.Get("/ws/search", handleWebSocket(svc, upgrader, development, logger))
}

func handleWebSocket(svc *Service, upgrader websocket.Upgrader, development bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := identity.FromRequest(r, development)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			apperr.WriteError(w, http.StatusUnauthorized, identity.MissingIdentityDetail)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade", zap.Error(err))
			return
		}
		defer conn.Close()

		send := func(m wsMessage) bool {
			if err := conn.WriteJSON(m); err != nil {
				logger.Warn("websocket write", zap.Error(err))
				return false
			}
			return true
		}

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("websocket read", zap.Error(err))
				}
				return
			}

			var req Request
			if err := json.Unmarshal(msg, &req); err != nil {
				if !send(wsMessage{Type: "error", Detail: "invalid message format", Status: http.StatusUnprocessableEntity}) {
					return
				}
				continue
			}

			writeOK := true
			resp, err := svc.SearchStream(r.Context(), ident, req, func(stage string) {
				if writeOK {
					writeOK = send(wsMessage{Type: "status", Stage: stage})
				}
			})
			if !writeOK {
				return
			}
			if err != nil {
				status, detail := HTTPError(err)
				if !send(wsMessage{Type: "error", Detail: detail, Status: status}) {
					return
				}
				continue
			}
			if !send(wsMessage{Type: "result", Response: resp}) {
				return
			}
		}
	}
}
