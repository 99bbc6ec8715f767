package handlers

import (
	"net/http"

	"github.com/Dosada05/tournament-progression/services"
)

type DashboardHandler struct {
	dashboardService services.DashboardService
}

func NewDashboardHandler(s services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: s}
}

// Progress обрабатывает GET /progress/{userID}/{specialization}
func (h *DashboardHandler) Progress(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	spec, err := getSpecializationFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	dashboard, err := h.dashboardService.GetProgress(r.Context(), userID, spec)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"dashboard": dashboard}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
