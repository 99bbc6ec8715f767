package handlers

import (
	"context"
	"net/http"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/services"
)

type MatchHandler struct {
	matchService services.MatchService
}

func NewMatchHandler(ms services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: ms}
}

type resultsInput struct {
	Results []models.ResultEntry `json:"results"`
}

// SubmitResultHandler обрабатывает POST /sessions/{sessionID}/results
func (h *MatchHandler) SubmitResultHandler(w http.ResponseWriter, r *http.Request) {
	h.results(w, r, h.matchService.SubmitResult)
}

// CorrectResultHandler обрабатывает PUT /sessions/{sessionID}/results
func (h *MatchHandler) CorrectResultHandler(w http.ResponseWriter, r *http.Request) {
	h.results(w, r, h.matchService.CorrectResult)
}

func (h *MatchHandler) results(
	w http.ResponseWriter,
	r *http.Request,
	fn func(context.Context, int, []models.ResultEntry) (*services.SessionOutcome, error),
) {
	sessionID, err := getIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input resultsInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.Results) == 0 {
		failedValidationResponse(w, r, map[string]string{"results": "must contain at least one entry"})
		return
	}

	outcome, err := fn(r.Context(), sessionID, input.Results)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"outcome": outcome}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// FinalizeHandler обрабатывает POST /sessions/{sessionID}/finalize
func (h *MatchHandler) FinalizeHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.matchService.FinalizeSession(r.Context(), sessionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"outcome": outcome}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// PreviewProgressionHandler обрабатывает GET /sessions/{sessionID}/progression
func (h *MatchHandler) PreviewProgressionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	plan, err := h.matchService.PreviewProgression(r.Context(), sessionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"plan": plan}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
