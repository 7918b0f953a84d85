package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HandleRooms 列出房间与在线人数
// GET /admin/rooms
func (s *Server) HandleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"rooms": s.rooms.ListRooms()})
}

// HandleRoomMetrics 输出指定房间的运行指标与当前快照
// GET /admin/metrics?room=arena
func (s *Server) HandleRoomMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = s.rooms.DefaultRoom()
	}
	room, ok := s.rooms.Room(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	st, err := room.Status(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, st)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Log.Warnf("write json: %v", err)
	}
}
