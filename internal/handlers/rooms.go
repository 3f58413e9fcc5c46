// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"
)

// PingHandler answers health checks.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

// ListRoomsHandler serves GET /rooms: the public listing of every live
// room, lobby or in play.
func ListRoomsHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"rooms": gs.Rooms.RoomSummaries(),
		}); err != nil {
			gs.Logger.Warnf("encode room list: %v", err)
		}
	}
}
