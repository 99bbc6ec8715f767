package models

import "time"

type AssessmentStatus string

const (
	AssessmentNotAssessed AssessmentStatus = "NOT_ASSESSED"
	AssessmentAssessed    AssessmentStatus = "ASSESSED"
	AssessmentValidated   AssessmentStatus = "VALIDATED"
	AssessmentArchived    AssessmentStatus = "ARCHIVED"
)

var assessmentTransitions = map[AssessmentStatus][]AssessmentStatus{
	AssessmentNotAssessed: {AssessmentAssessed},
	AssessmentAssessed:    {AssessmentValidated, AssessmentArchived},
	AssessmentValidated:   {AssessmentArchived},
	AssessmentArchived:    {},
}

func CanTransitionAssessment(from, to AssessmentStatus) bool {
	for _, allowed := range assessmentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsActive reports whether the status counts toward the one-active-per-skill rule.
func (s AssessmentStatus) IsActive() bool {
	return s == AssessmentAssessed || s == AssessmentValidated
}

type SkillAssessment struct {
	ID                   int              `json:"id" db:"id"`
	LicenseID            int              `json:"license_id" db:"license_id"`
	SkillName            string           `json:"skill_name" db:"skill_name"`
	SkillCategory        string           `json:"skill_category" db:"skill_category"`
	Score                float64          `json:"score" db:"score"`
	MaxScore             float64          `json:"max_score" db:"max_score"`
	Notes                *string          `json:"notes,omitempty" db:"notes"`
	Status               AssessmentStatus `json:"status" db:"status"`
	RequiresValidation   bool             `json:"requires_validation" db:"requires_validation"`
	AssessedBy           int              `json:"assessed_by" db:"assessed_by"`
	AssessedAt           time.Time        `json:"assessed_at" db:"assessed_at"`
	ValidatedBy          *int             `json:"validated_by,omitempty" db:"validated_by"`
	ValidatedAt          *time.Time       `json:"validated_at,omitempty" db:"validated_at"`
	ArchivedAt           *time.Time       `json:"archived_at,omitempty" db:"archived_at"`
	ArchivedReason       *string          `json:"archived_reason,omitempty" db:"archived_reason"`
	PreviousAssessmentID *int             `json:"previous_assessment_id,omitempty" db:"previous_assessment_id"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
}

// SameScoreData reports whether the assessment already carries the submitted data.
func (a *SkillAssessment) SameScoreData(score, maxScore float64, notes *string) bool {
	if a.Score != score || a.MaxScore != maxScore {
		return false
	}
	if (a.Notes == nil) != (notes == nil) {
		return false
	}
	return a.Notes == nil || *a.Notes == *notes
}

// Usable reports whether the assessment may count toward license advancement.
func (a *SkillAssessment) Usable() bool {
	if !a.Status.IsActive() {
		return false
	}
	return !a.RequiresValidation || a.Status == AssessmentValidated
}

func (a *SkillAssessment) Percent() float64 {
	if a.MaxScore <= 0 {
		return 0
	}
	return a.Score / a.MaxScore * 100
}
