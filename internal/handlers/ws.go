package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/synthara/forge-api/internal/realtime"
)

type RealtimeHandler struct {
	auth   *AuthHandler
	hub    *realtime.Hub
	logger zerolog.Logger
}

func NewRealtimeHandler(auth *AuthHandler, hub *realtime.Hub, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{auth: auth, hub: hub, logger: logger}
}

// Connect authenticates the request and hands the connection to the hub.
// Browsers cannot set headers on websocket dials, so the token is also
// accepted as a query parameter.
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, admin, err := h.auth.Identity(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	h.hub.ServeWS(w, r, realtime.Identity{UserID: userID, Admin: admin})
}

// Stats reports realtime delivery counters so dropped notifications are
// visible to operators. Admin only.
func (h *RealtimeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"droppedEvents": h.hub.DroppedEvents(),
	})
}
