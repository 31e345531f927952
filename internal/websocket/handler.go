package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/crownvault/internal/auth"
)

// HandleWebSocket upgrades signed-in members and admins. Admins additionally
// receive access request events.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entities := EntitiesFor(r)
		if len(entities) == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, entities...)
		client.Run(r.Context())
	}
}

// EntitiesFor returns the entities the request's identity may follow.
func EntitiesFor(r *http.Request) []string {
	ctx := r.Context()
	if auth.IsAdmin(ctx) {
		return []string{EntityItem, EntityAccessRequest}
	}
	if _, ok := auth.MemberFromContext(ctx); ok {
		return []string{EntityItem}
	}
	return nil
}
