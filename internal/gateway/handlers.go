package gateway

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades GET /ws?group=a&group=b requests and registers
// the resulting client with hub. Upgrades are refused with 503 unless the
// instance is alive and active.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     hub.origins.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		st := hub.status.Snapshot()
		if !st.Alive || !st.Active {
			reason := "not active"
			if !st.Alive {
				reason = "not alive"
			}
			http.Error(w, reason, http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr, r.URL.Query()["group"])
		if !hub.Register(client) {
			client.cancel()
			_ = conn.Close()
		}
	}
}

// HealthHandler reports that the gateway is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "pollchat gateway is running!")
}
