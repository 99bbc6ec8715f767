package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/tournament-progression/middleware"
	"github.com/Dosada05/tournament-progression/services"
)

type AssessmentHandler struct {
	assessmentService services.SkillAssessmentService
}

func NewAssessmentHandler(as services.SkillAssessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessmentService: as}
}

// CreateHandler обрабатывает POST /licenses/{licenseID}/assessments.
// Оценщиком считается текущий пользователь.
func (h *AssessmentHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	assessorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to assess skills")
		return
	}
	licenseID, err := getIDFromURL(r, "licenseID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.CreateAssessmentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.LicenseID = licenseID
	input.AssessorID = assessorID

	outcome, err := h.assessmentService.CreateAssessment(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusCreated
	if outcome.NoOp {
		status = http.StatusOK
	}
	if err := writeJSON(w, status, jsonResponse{"outcome": outcome}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /licenses/{licenseID}/assessments?active=false
func (h *AssessmentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	licenseID, err := getIDFromURL(r, "licenseID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	activeOnly := true
	switch r.URL.Query().Get("active") {
	case "", "true":
	case "false":
		activeOnly = false
	default:
		badRequestResponse(w, r, errors.New("invalid active query parameter"))
		return
	}

	assessments, err := h.assessmentService.ListAssessments(r.Context(), licenseID, activeOnly)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"assessments": assessments}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// EligibilityHandler обрабатывает GET /licenses/{licenseID}/eligibility
func (h *AssessmentHandler) EligibilityHandler(w http.ResponseWriter, r *http.Request) {
	licenseID, err := getIDFromURL(r, "licenseID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	eligibility, err := h.assessmentService.AdvancementEligibility(r.Context(), licenseID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"eligibility": eligibility}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ValidateHandler обрабатывает POST /assessments/{assessmentID}/validate
func (h *AssessmentHandler) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	validatorID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to validate assessments")
		return
	}
	id, err := getIDFromURL(r, "assessmentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.assessmentService.ValidateAssessment(r.Context(), id, validatorID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"outcome": outcome}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type archiveInput struct {
	Reason string `json:"reason"`
}

// ArchiveHandler обрабатывает POST /assessments/{assessmentID}/archive. Тело необязательно.
func (h *AssessmentHandler) ArchiveHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "assessmentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input archiveInput
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}

	outcome, err := h.assessmentService.ArchiveAssessment(r.Context(), id, input.Reason)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"outcome": outcome}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
