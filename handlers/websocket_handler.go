package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/greenfelt/club-engine/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the club frontend origins before exposing this
		// outside the private network.
		return true
	},
}

type WebSocketHandler struct {
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

// ServeTournament upgrades GET /ws/tournaments/{tournamentID} and joins the
// client to the tournament's event room.
func (h *WebSocketHandler) ServeTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}

	client := realtime.NewClient(h.hub, conn, realtime.TournamentRoom(tournamentID))
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
