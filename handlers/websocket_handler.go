package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Dosada05/tournament-progression/brackets"
	"github.com/Dosada05/tournament-progression/middleware"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/services"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// origin проверяется CORS-политикой на уровне роутера
		return true
	},
}

type WebSocketHandler struct {
	hub               *brackets.Hub
	tournamentService services.TournamentService
	logger            *slog.Logger
}

func NewWebSocketHandler(hub *brackets.Hub, ts services.TournamentService, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:               hub,
		tournamentService: ts,
		logger:            logger,
	}
}

// ServeTournament подключает клиента к комнате турнира /ws/tournaments/{tournamentID}.
// Первым сообщением клиент получает текущий рейтинг.
func (h *WebSocketHandler) ServeTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	rankings, err := h.tournamentService.GetRankings(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	room := brackets.TournamentRoom(tournamentID)
	snapshot, err := json.Marshal(brackets.WebSocketMessage{
		Type:    services.EventRankingsUpdated,
		Payload: rankings,
		RoomID:  room,
	})
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	h.serve(w, r, room, snapshot)
}

// ServeUser подключает пользователя к его личной комнате /ws/users/{userID}.
// Чужую комнату может слушать только администратор.
func (h *WebSocketHandler) ServeUser(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	if currentUserID != userID {
		role, _ := middleware.GetUserRoleFromContext(r.Context())
		if role != models.RoleAdmin {
			errorResponse(w, r, http.StatusForbidden, "cannot subscribe to another user's notifications")
			return
		}
	}

	h.serve(w, r, brackets.UserRoom(userID), nil)
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, room string, first []byte) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту
		h.logger.Warn("websocket upgrade failed", slog.String("room", room), slog.Any("error", err))
		return
	}

	client := &brackets.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: room,
	}
	if first != nil {
		client.Send <- first
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	h.logger.Debug("websocket client registered", slog.String("room", room))
}
