package handlers

import (
	"context"
	"net/http"

	"github.com/Dosada05/tournament-progression/models"
)

// ParticipantRegistrar is the part of services.ParticipantService the API uses.
type ParticipantRegistrar interface {
	RegisterUserAsParticipant(ctx context.Context, userID, tournamentID int) (*models.TournamentParticipant, error)
	ListParticipantsByTournament(ctx context.Context, tournamentID int) ([]models.TournamentParticipant, error)
}

type ParticipantHandler struct {
	participantService ParticipantRegistrar
}

func NewParticipantHandler(ps ParticipantRegistrar) *ParticipantHandler {
	return &ParticipantHandler{participantService: ps}
}

type registerParticipantInput struct {
	UserID int `json:"user_id"`
}

// RegisterHandler обрабатывает POST /tournaments/{tournamentID}/participants.
// Организатор регистрирует пользователя, посев назначается по порядку.
func (h *ParticipantHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input registerParticipantInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.UserID <= 0 {
		failedValidationResponse(w, r, map[string]string{"user_id": "must be a positive integer"})
		return
	}

	participant, err := h.participantService.RegisterUserAsParticipant(r.Context(), input.UserID, tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"participant": participant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /tournaments/{tournamentID}/participants
func (h *ParticipantHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participants, err := h.participantService.ListParticipantsByTournament(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"participants": participants}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
