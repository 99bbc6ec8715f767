package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-progression/metrics"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
	"github.com/Dosada05/tournament-progression/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LevelUpdateRequest is an explicit level change for one (user, specialization).
type LevelUpdateRequest struct {
	UserID          int                      `json:"user_id"`
	Specialization  models.Specialization    `json:"specialization"`
	NewLevel        int                      `json:"new_level"`
	ExperienceDelta int64                    `json:"experience_delta"`
	SessionDelta    int                      `json:"session_delta"`
	PracticeDelta   int                      `json:"practice_delta"`
	Source          models.ProgressionSource `json:"source"`
	Reason          string                   `json:"reason,omitempty"`
	// SkipSkillGate lets an admin promote past missing or failing assessments.
	SkipSkillGate   bool                     `json:"skip_skill_gate"`
}

// ExperienceAward adds experience and lets the level follow the ladder.
type ExperienceAward struct {
	UserID         int
	Specialization models.Specialization
	Experience     int64
	Source         models.ProgressionSource
	Reason         string
}

type CouplingResult struct {
	Success          bool                  `json:"success"`
	ErrorType        ErrorType             `json:"error_type,omitempty"`
	Message          string                `json:"message"`
	NoOp             bool                  `json:"no_op"`
	UserID           int                   `json:"user_id"`
	Specialization   models.Specialization `json:"specialization"`
	PreviousLevel    int                   `json:"previous_level"`
	NewLevel         int                   `json:"new_level"`
	Experience       int64                 `json:"experience"`
	MaxAchievedLevel int                   `json:"max_achieved_level"`
	LeveledUp        bool                  `json:"leveled_up"`
	ProgressionID    *int                  `json:"progression_id,omitempty"`
}

type ConsistencyStatus struct {
	UserID            int                   `json:"user_id"`
	Specialization    models.Specialization `json:"specialization"`
	Consistent        bool                  `json:"consistent"`
	ProgressLevel     int                   `json:"progress_level"`
	LicenseLevel      int                   `json:"license_level"`
	MaxAchievedLevel  int                   `json:"max_achieved_level"`
	RecommendedAction string                `json:"recommended_action"`
}

// SyncSource names the side taken as ground truth during a resync.
type SyncSource string

const (
	SyncFromProgress SyncSource = "progress"
	SyncFromLicense  SyncSource = "license"
)

const (
	ActionNone             = "none"
	ActionSyncFromProgress = "sync_from_progress"
	ActionSyncFromLicense  = "sync_from_license"
)

// AdvancementGate decides whether a license may be promoted. It runs inside
// the coupler's transaction, after the license row is locked.
type AdvancementGate interface {
	CheckAdvancement(ctx context.Context, exec repositories.SQLExecutor, licenseID int) error
}

// ProgressLicenseCoupler is the only writer of Progress and License rows.
// Every operation locks Progress first and License second.
type ProgressLicenseCoupler interface {
	// UpdateLevelAtomic checks the skill gate on promotion unless SkipSkillGate is set.
	UpdateLevelAtomic(ctx context.Context, req LevelUpdateRequest) (*CouplingResult, error)
	// AwardExperienceTx runs inside the caller's transaction. A missing license
	// is tolerated; a missing progress row is ErrProgressNotFound. The level
	// follows the experience ladder and the skill gate is not consulted.
	AwardExperienceTx(ctx context.Context, exec repositories.SQLExecutor, award ExperienceAward) (*CouplingResult, error)
	SyncExistingRecordsAtomic(ctx context.Context, userID int, spec models.Specialization, source SyncSource) (*CouplingResult, error)
	ValidateConsistency(ctx context.Context, userID int, spec models.Specialization) (*ConsistencyStatus, error)
}

type CouplerOption func(*progressLicenseCoupler)

func WithAdvancementGate(gate AdvancementGate) CouplerOption {
	return func(c *progressLicenseCoupler) { c.gate = gate }
}

func WithCouplerNotifier(n Notifier) CouplerOption {
	return func(c *progressLicenseCoupler) { c.notifier = n }
}

type progressLicenseCoupler struct {
	txm             repositories.TxManager
	progressRepo    repositories.ProgressRepository
	licenseRepo     repositories.LicenseRepository
	progressionRepo repositories.ProgressionRepository
	gate            AdvancementGate
	notifier        Notifier
	logger          *slog.Logger
}

func NewProgressLicenseCoupler(
	txm repositories.TxManager,
	progressRepo repositories.ProgressRepository,
	licenseRepo repositories.LicenseRepository,
	progressionRepo repositories.ProgressionRepository,
	logger *slog.Logger,
	opts ...CouplerOption,
) ProgressLicenseCoupler {
	c := &progressLicenseCoupler{
		txm:             txm,
		progressRepo:    progressRepo,
		licenseRepo:     licenseRepo,
		progressionRepo: progressionRepo,
		notifier:        NopNotifier{},
		logger:          logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func validateLevel(spec models.Specialization, level int) error {
	maxLevel := spec.MaxLevel()
	if maxLevel == 0 {
		return fmt.Errorf("%w: unknown specialization %q", ErrValidation, spec)
	}
	if level < 1 {
		return fmt.Errorf("%w: level %d is below minimum level 1", ErrValidation, level)
	}
	if level > maxLevel {
		return fmt.Errorf("%w: level %d exceeds max level %d for specialization %s", ErrValidation, level, maxLevel, spec)
	}
	return nil
}

func failedCoupling(userID int, spec models.Specialization, err error) *CouplingResult {
	return &CouplingResult{
		Success:        false,
		ErrorType:      ClassifyError(err),
		Message:        err.Error(),
		UserID:         userID,
		Specialization: spec,
	}
}

func (c *progressLicenseCoupler) UpdateLevelAtomic(ctx context.Context, req LevelUpdateRequest) (*CouplingResult, error) {
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "coupler.UpdateLevelAtomic")
	defer span.End()
	span.SetAttributes(
		attribute.Int("user_id", req.UserID),
		attribute.String("specialization", string(req.Specialization)),
		attribute.Int("new_level", req.NewLevel),
	)

	result, err := c.updateLevel(ctx, req)
	c.observe(span, "update_level", start, err)
	if err != nil {
		c.logger.WarnContext(ctx, "level update rejected",
			slog.Int("user_id", req.UserID),
			slog.String("specialization", string(req.Specialization)),
			slog.Int("new_level", req.NewLevel),
			slog.String("error_type", string(ClassifyError(err))),
			slog.Any("error", err),
		)
		return failedCoupling(req.UserID, req.Specialization, err), err
	}

	if result.LeveledUp {
		c.notifier.NotifyUser(req.UserID, EventLevelUp, result)
	}
	return result, nil
}

func (c *progressLicenseCoupler) updateLevel(ctx context.Context, req LevelUpdateRequest) (*CouplingResult, error) {
	if err := validateLevel(req.Specialization, req.NewLevel); err != nil {
		return nil, err
	}
	if req.SessionDelta < 0 || req.PracticeDelta < 0 {
		return nil, fmt.Errorf("%w: session and practice counters cannot decrease", ErrValidation)
	}
	source := req.Source
	if source == "" {
		source = models.SourceManual
	}

	var result *CouplingResult
	err := c.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		progress, err := c.progressRepo.GetForUpdate(ctx, exec, req.UserID, req.Specialization)
		if err != nil {
			return err
		}
		license, err := c.licenseRepo.GetForUpdate(ctx, exec, req.UserID, req.Specialization)
		if err != nil {
			return err
		}

		newXP := progress.Experience + req.ExperienceDelta
		if newXP < 0 {
			return fmt.Errorf("%w: experience would become negative (%d)", ErrValidation, newXP)
		}
		if !req.SkipSkillGate && c.gate != nil && req.NewLevel > license.CurrentLevel {
			if err := c.gate.CheckAdvancement(ctx, exec, license.ID); err != nil {
				return err
			}
		}

		prevLevel := progress.CurrentLevel
		levelChanged := prevLevel != req.NewLevel || license.CurrentLevel != req.NewLevel

		progress.CurrentLevel = req.NewLevel
		progress.Experience = newXP
		progress.SessionsCompleted += req.SessionDelta
		progress.PracticeCount += req.PracticeDelta
		if err := c.progressRepo.Update(ctx, exec, progress); err != nil {
			return err
		}

		license.CurrentLevel = req.NewLevel
		license.MaxAchievedLevel = max(license.MaxAchievedLevel, req.NewLevel)
		if err := c.licenseRepo.UpdateLevels(ctx, exec, license); err != nil {
			return err
		}

		result = &CouplingResult{
			Success:          true,
			UserID:           req.UserID,
			Specialization:   req.Specialization,
			PreviousLevel:    prevLevel,
			NewLevel:         req.NewLevel,
			Experience:       newXP,
			MaxAchievedLevel: license.MaxAchievedLevel,
			LeveledUp:        req.NewLevel > prevLevel,
			NoOp:             !levelChanged && req.ExperienceDelta == 0 && req.SessionDelta == 0 && req.PracticeDelta == 0,
		}
		if !levelChanged {
			result.Message = fmt.Sprintf("level %d unchanged", req.NewLevel)
			return nil
		}

		progression := &models.LicenseProgression{
			LicenseID:       license.ID,
			UserID:          req.UserID,
			Specialization:  req.Specialization,
			FromLevel:       prevLevel,
			ToLevel:         req.NewLevel,
			ExperienceDelta: req.ExperienceDelta,
			Source:          source,
			Reason:          optionalString(req.Reason),
		}
		if err := c.progressionRepo.Create(ctx, exec, progression); err != nil {
			return err
		}
		result.ProgressionID = &progression.ID
		result.Message = fmt.Sprintf("level changed from %d to %d", prevLevel, req.NewLevel)
		return nil
	})
	if err != nil {
		return nil, translateRepoError(err)
	}
	return result, nil
}

func (c *progressLicenseCoupler) AwardExperienceTx(ctx context.Context, exec repositories.SQLExecutor, award ExperienceAward) (*CouplingResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "coupler.AwardExperienceTx")
	defer span.End()
	span.SetAttributes(
		attribute.Int("user_id", award.UserID),
		attribute.String("specialization", string(award.Specialization)),
		attribute.Int64("experience", award.Experience),
	)

	if !award.Specialization.Valid() {
		return nil, fmt.Errorf("%w: unknown specialization %q", ErrValidation, award.Specialization)
	}
	if award.Experience < 0 {
		return nil, fmt.Errorf("%w: awarded experience cannot be negative", ErrValidation)
	}

	progress, err := c.progressRepo.GetForUpdate(ctx, exec, award.UserID, award.Specialization)
	if err != nil {
		return nil, translateRepoError(err)
	}
	license, err := c.licenseRepo.GetForUpdate(ctx, exec, award.UserID, award.Specialization)
	if err != nil && !errors.Is(err, repositories.ErrLicenseNotFound) {
		return nil, translateRepoError(err)
	}

	prevLevel := progress.CurrentLevel
	progress.Experience += award.Experience
	newLevel := max(prevLevel, award.Specialization.LevelForExperience(progress.Experience))
	progress.CurrentLevel = newLevel
	if err := c.progressRepo.Update(ctx, exec, progress); err != nil {
		return nil, translateRepoError(err)
	}

	result := &CouplingResult{
		Success:        true,
		UserID:         award.UserID,
		Specialization: award.Specialization,
		PreviousLevel:  prevLevel,
		NewLevel:       newLevel,
		Experience:     progress.Experience,
		LeveledUp:      newLevel > prevLevel,
		Message:        fmt.Sprintf("awarded %d experience", award.Experience),
	}
	if license == nil {
		return result, nil
	}

	licenseFrom := license.CurrentLevel
	if licenseFrom != newLevel {
		license.CurrentLevel = newLevel
		license.MaxAchievedLevel = max(license.MaxAchievedLevel, newLevel)
		if err := c.licenseRepo.UpdateLevels(ctx, exec, license); err != nil {
			return nil, translateRepoError(err)
		}
	}
	result.MaxAchievedLevel = license.MaxAchievedLevel

	if prevLevel != newLevel || licenseFrom != newLevel {
		source := award.Source
		if source == "" {
			source = models.SourceTournament
		}
		progression := &models.LicenseProgression{
			LicenseID:       license.ID,
			UserID:          award.UserID,
			Specialization:  award.Specialization,
			FromLevel:       prevLevel,
			ToLevel:         newLevel,
			ExperienceDelta: award.Experience,
			Source:          source,
			Reason:          optionalString(award.Reason),
		}
		if err := c.progressionRepo.Create(ctx, exec, progression); err != nil {
			return nil, translateRepoError(err)
		}
		result.ProgressionID = &progression.ID
	}
	return result, nil
}

func (c *progressLicenseCoupler) SyncExistingRecordsAtomic(ctx context.Context, userID int, spec models.Specialization, source SyncSource) (*CouplingResult, error) {
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "coupler.SyncExistingRecordsAtomic")
	defer span.End()
	span.SetAttributes(
		attribute.Int("user_id", userID),
		attribute.String("specialization", string(spec)),
		attribute.String("source", string(source)),
	)

	result, err := c.sync(ctx, userID, spec, source)
	c.observe(span, "sync", start, err)
	if err != nil {
		return failedCoupling(userID, spec, err), err
	}
	if !result.NoOp {
		c.logger.InfoContext(ctx, "progress and license resynchronized",
			slog.Int("user_id", userID),
			slog.String("specialization", string(spec)),
			slog.String("source", string(source)),
			slog.Int("level", result.NewLevel),
		)
	}
	return result, nil
}

func (c *progressLicenseCoupler) sync(ctx context.Context, userID int, spec models.Specialization, source SyncSource) (*CouplingResult, error) {
	if !spec.Valid() {
		return nil, fmt.Errorf("%w: unknown specialization %q", ErrValidation, spec)
	}
	if source != SyncFromProgress && source != SyncFromLicense {
		return nil, fmt.Errorf("%w: sync source must be %q or %q, got %q", ErrValidation, SyncFromProgress, SyncFromLicense, source)
	}

	var result *CouplingResult
	err := c.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		progress, err := c.progressRepo.GetForUpdate(ctx, exec, userID, spec)
		if err != nil {
			return err
		}
		license, err := c.licenseRepo.GetForUpdate(ctx, exec, userID, spec)
		if err != nil {
			return err
		}

		result = &CouplingResult{Success: true, UserID: userID, Specialization: spec, Experience: progress.Experience}
		if progress.CurrentLevel == license.CurrentLevel && license.MaxAchievedLevel >= license.CurrentLevel {
			result.NoOp = true
			result.PreviousLevel = progress.CurrentLevel
			result.NewLevel = progress.CurrentLevel
			result.MaxAchievedLevel = license.MaxAchievedLevel
			result.Message = "progress and license already consistent"
			return nil
		}

		var from, to int
		switch source {
		case SyncFromProgress:
			if err := validateLevel(spec, progress.CurrentLevel); err != nil {
				return err
			}
			from, to = license.CurrentLevel, progress.CurrentLevel
			license.CurrentLevel = to
			license.MaxAchievedLevel = max(license.MaxAchievedLevel, to)
			if err := c.licenseRepo.UpdateLevels(ctx, exec, license); err != nil {
				return err
			}
		case SyncFromLicense:
			if err := validateLevel(spec, license.CurrentLevel); err != nil {
				return err
			}
			from, to = progress.CurrentLevel, license.CurrentLevel
			progress.CurrentLevel = to
			if err := c.progressRepo.Update(ctx, exec, progress); err != nil {
				return err
			}
			if license.MaxAchievedLevel < to {
				license.MaxAchievedLevel = to
				if err := c.licenseRepo.UpdateLevels(ctx, exec, license); err != nil {
					return err
				}
			}
		}

		progression := &models.LicenseProgression{
			LicenseID:      license.ID,
			UserID:         userID,
			Specialization: spec,
			FromLevel:      from,
			ToLevel:        to,
			Source:         models.SourceResync,
			Reason:         optionalString(fmt.Sprintf("synced from %s", source)),
		}
		if err := c.progressionRepo.Create(ctx, exec, progression); err != nil {
			return err
		}

		result.PreviousLevel = from
		result.NewLevel = to
		result.MaxAchievedLevel = license.MaxAchievedLevel
		result.ProgressionID = &progression.ID
		result.Message = fmt.Sprintf("synced %s level %d to the other side (was %d)", source, to, from)
		return nil
	})
	if err != nil {
		return nil, translateRepoError(err)
	}
	return result, nil
}

func (c *progressLicenseCoupler) ValidateConsistency(ctx context.Context, userID int, spec models.Specialization) (*ConsistencyStatus, error) {
	progress, err := c.progressRepo.Get(ctx, nil, userID, spec)
	if err != nil {
		return nil, translateRepoError(err)
	}
	license, err := c.licenseRepo.Get(ctx, nil, userID, spec)
	if err != nil {
		return nil, translateRepoError(err)
	}

	status := &ConsistencyStatus{
		UserID:            userID,
		Specialization:    spec,
		ProgressLevel:     progress.CurrentLevel,
		LicenseLevel:      license.CurrentLevel,
		MaxAchievedLevel:  license.MaxAchievedLevel,
		Consistent:        progress.CurrentLevel == license.CurrentLevel && license.MaxAchievedLevel >= license.CurrentLevel,
		RecommendedAction: ActionNone,
	}
	if !status.Consistent {
		status.RecommendedAction = recommendedAction(spec, progress.CurrentLevel, license.CurrentLevel)
	}
	return status, nil
}

// recommendedAction prefers the higher level as ground truth as long as it is
// a valid level for the specialization.
func recommendedAction(spec models.Specialization, progressLevel, licenseLevel int) string {
	progressValid := validateLevel(spec, progressLevel) == nil
	licenseValid := validateLevel(spec, licenseLevel) == nil
	switch {
	case progressValid && (!licenseValid || progressLevel >= licenseLevel):
		return ActionSyncFromProgress
	case licenseValid:
		return ActionSyncFromLicense
	}
	return ActionSyncFromProgress
}

func (c *progressLicenseCoupler) observe(span trace.Span, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(ClassifyError(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.ObserveCoupling(op, result, time.Since(start))
}
