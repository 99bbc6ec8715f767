package services

import (
	"context"
	"errors"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
	"golang.org/x/sync/errgroup"
)

// DashboardService собирает данные о прогрессе пользователя только для чтения.
type DashboardService interface {
	GetProgress(ctx context.Context, userID int, spec models.Specialization) (*models.ProgressDashboard, error)
}

type dashboardService struct {
	progressRepo    repositories.ProgressRepository
	licenseRepo     repositories.LicenseRepository
	progressionRepo repositories.ProgressionRepository
	rewardRepo      repositories.RewardRepository
}

func NewDashboardService(
	progressRepo repositories.ProgressRepository,
	licenseRepo repositories.LicenseRepository,
	progressionRepo repositories.ProgressionRepository,
	rewardRepo repositories.RewardRepository,
) DashboardService {
	return &dashboardService{
		progressRepo:    progressRepo,
		licenseRepo:     licenseRepo,
		progressionRepo: progressionRepo,
		rewardRepo:      rewardRepo,
	}
}

func (s *dashboardService) GetProgress(ctx context.Context, userID int, spec models.Specialization) (*models.ProgressDashboard, error) {
	if !spec.Valid() {
		return nil, ErrValidation
	}
	progress, err := s.progressRepo.Get(ctx, nil, userID, spec)
	if err != nil {
		return nil, translateRepoError(err)
	}

	d := &models.ProgressDashboard{
		UserID:         userID,
		Specialization: spec,
		Progress:       progress,
		History:        []models.LicenseProgression{},
	}
	if progress.CurrentLevel < spec.MaxLevel() {
		next := models.ExperienceForLevel(progress.CurrentLevel + 1)
		d.NextLevelXP = &next
	}

	license, err := s.licenseRepo.Get(ctx, nil, userID, spec)
	switch {
	case errors.Is(err, repositories.ErrLicenseNotFound):
	case err != nil:
		return nil, translateRepoError(err)
	default:
		d.License = license
	}

	g, gCtx := errgroup.WithContext(ctx)
	if d.License != nil {
		g.Go(func() error {
			history, err := s.progressionRepo.ListByLicense(gCtx, nil, d.License.ID)
			if err != nil {
				return err
			}
			d.History = history
			return nil
		})
	}
	g.Go(func() error {
		balance, err := s.rewardRepo.Balance(gCtx, nil, userID)
		if err != nil {
			return err
		}
		d.CreditBalance = balance
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, translateRepoError(err)
	}
	return d, nil
}
