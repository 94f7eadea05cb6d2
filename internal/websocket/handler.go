package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to WebSocket
// and runs them as Hub clients. originPatterns lists the extra browser origins
// allowed to connect; same-origin requests are always accepted.
func HandleWebSocket(hub *Hub, logger *slog.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err, "remote", r.RemoteAddr)
			return
		}

		client := NewClient(hub, conn)
		client.Run(r.Context())
	}
}
