package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Dosada05/tournament-progression/metrics"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
)

const archiveReasonSuperseded = "superseded"

// AssessmentRules decide at creation time whether an assessment needs a
// second validation before it counts toward advancement.
type AssessmentRules struct {
	ValidationLevelThreshold int
	AssessorTenureDays       int
	CriticalSkillCategories  []string
	PassPercent              float64
}

func DefaultAssessmentRules() AssessmentRules {
	return AssessmentRules{
		ValidationLevelThreshold: 5,
		AssessorTenureDays:       180,
		CriticalSkillCategories:  []string{"safety"},
		PassPercent:              60,
	}
}

func (r AssessmentRules) requiresValidation(licenseLevel int, assessorSince, now time.Time, category string) bool {
	if licenseLevel >= r.ValidationLevelThreshold {
		return true
	}
	if now.Sub(assessorSince) < time.Duration(r.AssessorTenureDays)*24*time.Hour {
		return true
	}
	return slices.ContainsFunc(r.CriticalSkillCategories, func(c string) bool {
		return strings.EqualFold(c, category)
	})
}

type CreateAssessmentInput struct {
	LicenseID     int     `json:"-"`
	SkillName     string  `json:"skill_name"`
	SkillCategory string  `json:"skill_category"`
	Score         float64 `json:"score"`
	MaxScore      float64 `json:"max_score"`
	Notes         *string `json:"notes,omitempty"`
	AssessorID    int     `json:"-"`
}

// AssessmentOutcome reports the current record and whether the call changed anything.
type AssessmentOutcome struct {
	Assessment *models.SkillAssessment `json:"assessment"`
	NoOp       bool                    `json:"no_op"`
	Archived   *models.SkillAssessment `json:"archived,omitempty"`
}

type Eligibility struct {
	LicenseID         int      `json:"license_id"`
	Eligible          bool     `json:"eligible"`
	ActiveAssessments int      `json:"active_assessments"`
	PendingValidation []string `json:"pending_validation,omitempty"`
	BelowPass         []string `json:"below_pass,omitempty"`
	Reasons           []string `json:"reasons,omitempty"`
}

type SkillAssessmentService interface {
	CreateAssessment(ctx context.Context, input CreateAssessmentInput) (*AssessmentOutcome, error)
	ValidateAssessment(ctx context.Context, id, validatorID int) (*AssessmentOutcome, error)
	ArchiveAssessment(ctx context.Context, id int, reason string) (*AssessmentOutcome, error)
	ListAssessments(ctx context.Context, licenseID int, activeOnly bool) ([]models.SkillAssessment, error)
	AdvancementEligibility(ctx context.Context, licenseID int) (*Eligibility, error)
	AdvancementGate
}

type skillAssessmentService struct {
	txm            repositories.TxManager
	assessmentRepo repositories.SkillAssessmentRepository
	licenseRepo    repositories.LicenseRepository
	userRepo       repositories.UserRepository
	rules          AssessmentRules
	logger         *slog.Logger
	now            func() time.Time
}

func NewSkillAssessmentService(
	txm repositories.TxManager,
	assessmentRepo repositories.SkillAssessmentRepository,
	licenseRepo repositories.LicenseRepository,
	userRepo repositories.UserRepository,
	rules AssessmentRules,
	logger *slog.Logger,
) SkillAssessmentService {
	return &skillAssessmentService{
		txm:            txm,
		assessmentRepo: assessmentRepo,
		licenseRepo:    licenseRepo,
		userRepo:       userRepo,
		rules:          rules,
		logger:         logger,
		now:            time.Now,
	}
}

func validateAssessmentInput(input *CreateAssessmentInput) error {
	input.SkillName = strings.TrimSpace(input.SkillName)
	input.SkillCategory = strings.TrimSpace(input.SkillCategory)
	if input.SkillName == "" {
		return fmt.Errorf("%w: skill_name is required", ErrValidation)
	}
	if input.SkillCategory == "" {
		input.SkillCategory = "general"
	}
	if input.MaxScore <= 0 {
		return fmt.Errorf("%w: max_score must be positive, got %g", ErrValidation, input.MaxScore)
	}
	if input.Score < 0 || input.Score > input.MaxScore {
		return fmt.Errorf("%w: score %g must be between 0 and max_score %g", ErrValidation, input.Score, input.MaxScore)
	}
	if input.Notes != nil && strings.TrimSpace(*input.Notes) == "" {
		input.Notes = nil
	}
	return nil
}

func (s *skillAssessmentService) CreateAssessment(ctx context.Context, input CreateAssessmentInput) (*AssessmentOutcome, error) {
	if err := validateAssessmentInput(&input); err != nil {
		return nil, err
	}

	assessor, err := s.userRepo.GetByID(ctx, nil, input.AssessorID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if assessor.Role != models.RoleInstructor && assessor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: user %d cannot assess skills", ErrValidation, assessor.ID)
	}

	var outcome *AssessmentOutcome
	err = s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		license, err := s.licenseRepo.GetByIDForUpdate(ctx, exec, input.LicenseID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		active, err := s.assessmentRepo.FindActive(ctx, exec, license.ID, input.SkillName)
		if err != nil && !errors.Is(err, repositories.ErrAssessmentNotFound) {
			return err
		}
		if active != nil && active.SameScoreData(input.Score, input.MaxScore, input.Notes) {
			outcome = &AssessmentOutcome{Assessment: active, NoOp: true}
			return nil
		}

		outcome = &AssessmentOutcome{}
		var previousID *int
		if active != nil {
			if err := s.archive(ctx, exec, active, archiveReasonSuperseded, now); err != nil {
				return err
			}
			previousID = &active.ID
			outcome.Archived = active
		}

		created := &models.SkillAssessment{
			LicenseID:            license.ID,
			SkillName:            input.SkillName,
			SkillCategory:        input.SkillCategory,
			Score:                input.Score,
			MaxScore:             input.MaxScore,
			Notes:                input.Notes,
			Status:               models.AssessmentAssessed,
			RequiresValidation:   s.rules.requiresValidation(license.CurrentLevel, assessor.CreatedAt, now, input.SkillCategory),
			AssessedBy:           assessor.ID,
			AssessedAt:           now,
			PreviousAssessmentID: previousID,
		}
		if err := s.assessmentRepo.Create(ctx, exec, created); err != nil {
			return err
		}
		outcome.Assessment = created
		return nil
	})

	if errors.Is(err, repositories.ErrActiveAssessmentExists) {
		// Параллельный запрос успел создать активную оценку: возвращаем её.
		active, readErr := s.assessmentRepo.FindActive(ctx, nil, input.LicenseID, input.SkillName)
		if readErr != nil {
			return nil, translateRepoError(readErr)
		}
		s.logger.InfoContext(ctx, "concurrent assessment creation resolved by re-read",
			slog.Int("license_id", input.LicenseID),
			slog.String("skill", input.SkillName),
			slog.Int("assessment_id", active.ID),
		)
		metrics.ObserveAssessmentTransition(string(models.AssessmentAssessed), true)
		return &AssessmentOutcome{Assessment: active, NoOp: true}, nil
	}
	if err != nil {
		return nil, translateRepoError(err)
	}

	metrics.ObserveAssessmentTransition(string(models.AssessmentAssessed), outcome.NoOp)
	if !outcome.NoOp {
		s.logger.InfoContext(ctx, "skill assessed",
			slog.Int("license_id", input.LicenseID),
			slog.String("skill", input.SkillName),
			slog.Int("assessment_id", outcome.Assessment.ID),
			slog.Bool("requires_validation", outcome.Assessment.RequiresValidation),
			slog.Bool("superseded_previous", outcome.Archived != nil),
		)
	}
	return outcome, nil
}

func (s *skillAssessmentService) archive(ctx context.Context, exec repositories.SQLExecutor, a *models.SkillAssessment, reason string, now time.Time) error {
	if !models.CanTransitionAssessment(a.Status, models.AssessmentArchived) {
		return fmt.Errorf("%w: cannot archive assessment %d in status %s", ErrInvalidStateTransition, a.ID, a.Status)
	}
	a.Status = models.AssessmentArchived
	a.ArchivedAt = &now
	a.ArchivedReason = optionalString(reason)
	return s.assessmentRepo.UpdateStatus(ctx, exec, a)
}

// transition locks the owning license, then the assessment, and applies fn.
func (s *skillAssessmentService) transition(
	ctx context.Context,
	id int,
	to models.AssessmentStatus,
	fn func(ctx context.Context, exec repositories.SQLExecutor, a *models.SkillAssessment, now time.Time) error,
) (*AssessmentOutcome, error) {
	current, err := s.assessmentRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, translateRepoError(err)
	}

	var outcome *AssessmentOutcome
	err = s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		if _, err := s.licenseRepo.GetByIDForUpdate(ctx, exec, current.LicenseID); err != nil {
			return err
		}
		a, err := s.assessmentRepo.GetByIDForUpdate(ctx, exec, id)
		if err != nil {
			return err
		}
		if a.Status == to {
			outcome = &AssessmentOutcome{Assessment: a, NoOp: true}
			return nil
		}
		if !models.CanTransitionAssessment(a.Status, to) {
			return fmt.Errorf("%w: assessment %d cannot move from %s to %s", ErrInvalidStateTransition, a.ID, a.Status, to)
		}
		if err := fn(ctx, exec, a, s.now().UTC()); err != nil {
			return err
		}
		outcome = &AssessmentOutcome{Assessment: a}
		return nil
	})
	if err != nil {
		return nil, translateRepoError(err)
	}

	metrics.ObserveAssessmentTransition(string(to), outcome.NoOp)
	return outcome, nil
}

func (s *skillAssessmentService) ValidateAssessment(ctx context.Context, id, validatorID int) (*AssessmentOutcome, error) {
	if validatorID <= 0 {
		return nil, fmt.Errorf("%w: validator is required", ErrValidation)
	}
	return s.transition(ctx, id, models.AssessmentValidated,
		func(ctx context.Context, exec repositories.SQLExecutor, a *models.SkillAssessment, now time.Time) error {
			a.Status = models.AssessmentValidated
			a.ValidatedBy = &validatorID
			a.ValidatedAt = &now
			return s.assessmentRepo.UpdateStatus(ctx, exec, a)
		})
}

func (s *skillAssessmentService) ArchiveAssessment(ctx context.Context, id int, reason string) (*AssessmentOutcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "archived manually"
	}
	return s.transition(ctx, id, models.AssessmentArchived,
		func(ctx context.Context, exec repositories.SQLExecutor, a *models.SkillAssessment, now time.Time) error {
			return s.archive(ctx, exec, a, reason, now)
		})
}

func (s *skillAssessmentService) ListAssessments(ctx context.Context, licenseID int, activeOnly bool) ([]models.SkillAssessment, error) {
	if _, err := s.licenseRepo.GetByID(ctx, nil, licenseID); err != nil {
		return nil, translateRepoError(err)
	}
	list, err := s.assessmentRepo.ListByLicense(ctx, nil, licenseID, activeOnly)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return list, nil
}

func (s *skillAssessmentService) AdvancementEligibility(ctx context.Context, licenseID int) (*Eligibility, error) {
	if _, err := s.licenseRepo.GetByID(ctx, nil, licenseID); err != nil {
		return nil, translateRepoError(err)
	}
	return s.eligibility(ctx, nil, licenseID)
}

// CheckAdvancement runs inside the coupler's transaction.
func (s *skillAssessmentService) CheckAdvancement(ctx context.Context, exec repositories.SQLExecutor, licenseID int) error {
	e, err := s.eligibility(ctx, exec, licenseID)
	if err != nil {
		return err
	}
	if !e.Eligible {
		return fmt.Errorf("%w: %s", ErrAdvancementBlocked, strings.Join(e.Reasons, "; "))
	}
	return nil
}

func (s *skillAssessmentService) eligibility(ctx context.Context, exec repositories.SQLExecutor, licenseID int) (*Eligibility, error) {
	active, err := s.assessmentRepo.ListByLicense(ctx, exec, licenseID, true)
	if err != nil {
		return nil, translateRepoError(err)
	}

	e := &Eligibility{LicenseID: licenseID, ActiveAssessments: len(active)}
	for i := range active {
		a := &active[i]
		if !a.Usable() {
			e.PendingValidation = append(e.PendingValidation, a.SkillName)
			continue
		}
		if a.Percent() < s.rules.PassPercent {
			e.BelowPass = append(e.BelowPass, a.SkillName)
		}
	}

	if len(active) == 0 {
		e.Reasons = append(e.Reasons, "no active skill assessments")
	}
	if len(e.PendingValidation) > 0 {
		e.Reasons = append(e.Reasons, "awaiting validation: "+strings.Join(e.PendingValidation, ", "))
	}
	if len(e.BelowPass) > 0 {
		e.Reasons = append(e.Reasons, fmt.Sprintf("below %.0f%%: %s", s.rules.PassPercent, strings.Join(e.BelowPass, ", ")))
	}
	e.Eligible = len(e.Reasons) == 0
	return e, nil
}
