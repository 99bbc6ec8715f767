package handlers

import (
	"net/http"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/services"
)

type ProgressHandler struct {
	coupler services.ProgressLicenseCoupler
}

func NewProgressHandler(coupler services.ProgressLicenseCoupler) *ProgressHandler {
	return &ProgressHandler{coupler: coupler}
}

type levelUpdateInput struct {
	NewLevel        int    `json:"new_level"`
	ExperienceDelta int64  `json:"experience_delta"`
	SessionDelta    int    `json:"session_delta"`
	PracticeDelta   int    `json:"practice_delta"`
	Reason          string `json:"reason"`
	SkipSkillGate   bool   `json:"skip_skill_gate"`
}

// UpdateLevelHandler обрабатывает PUT /progress/{userID}/{specialization}/level
func (h *ProgressHandler) UpdateLevelHandler(w http.ResponseWriter, r *http.Request) {
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

	var input levelUpdateInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.coupler.UpdateLevelAtomic(r.Context(), services.LevelUpdateRequest{
		UserID:          userID,
		Specialization:  spec,
		NewLevel:        input.NewLevel,
		ExperienceDelta: input.ExperienceDelta,
		SessionDelta:    input.SessionDelta,
		PracticeDelta:   input.PracticeDelta,
		Source:          models.SourceManual,
		Reason:          input.Reason,
		SkipSkillGate:   input.SkipSkillGate,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ConsistencyHandler обрабатывает GET /consistency/{userID}/{specialization}
func (h *ProgressHandler) ConsistencyHandler(w http.ResponseWriter, r *http.Request) {
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

	status, err := h.coupler.ValidateConsistency(r.Context(), userID, spec)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"consistency": status}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type resyncInput struct {
	Source services.SyncSource `json:"source"`
}

// ResyncHandler обрабатывает POST /consistency/{userID}/{specialization}/resync.
// Без тела источником истины считается прогресс.
func (h *ProgressHandler) ResyncHandler(w http.ResponseWriter, r *http.Request) {
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

	input := resyncInput{Source: services.SyncFromProgress}
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}
	if input.Source != services.SyncFromProgress && input.Source != services.SyncFromLicense {
		failedValidationResponse(w, r, map[string]string{"source": "must be progress or license"})
		return
	}

	result, err := h.coupler.SyncExistingRecordsAtomic(r.Context(), userID, spec, input.Source)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
