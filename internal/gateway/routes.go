package gateway

import "net/http"

// SetupRoutes returns a ServeMux serving the WebSocket endpoint and the plain
// health check.
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(hub))
	return mux
}
