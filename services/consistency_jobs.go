package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-progression/jobs"
	"github.com/Dosada05/tournament-progression/metrics"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
)

// ConsistencyJobs are the periodic sweeps. Every pair or tournament is its own
// unit of work, so one failure never aborts the sweep.
type ConsistencyJobs struct {
	progressRepo   repositories.ProgressRepository
	tournamentRepo repositories.TournamentRepository
	coupler        ProgressLicenseCoupler
	rewards        RewardDistributionService
	logger         *slog.Logger
}

func NewConsistencyJobs(
	progressRepo repositories.ProgressRepository,
	tournamentRepo repositories.TournamentRepository,
	coupler ProgressLicenseCoupler,
	rewards RewardDistributionService,
	logger *slog.Logger,
) *ConsistencyJobs {
	return &ConsistencyJobs{
		progressRepo:   progressRepo,
		tournamentRepo: tournamentRepo,
		coupler:        coupler,
		rewards:        rewards,
		logger:         logger,
	}
}

// AuditConsistency counts diverged Progress/License pairs without touching them.
func (j *ConsistencyJobs) AuditConsistency(ctx context.Context) (jobs.Report, error) {
	report := jobs.Report{StartedAt: time.Now()}
	pairs, err := j.progressRepo.ListLicensedPairs(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("failed to list licensed pairs: %w", err)
	}

	divergent := 0
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++
		status, err := j.coupler.ValidateConsistency(ctx, pair.UserID, pair.Specialization)
		if err != nil {
			report.Fail(fmt.Errorf("user %d %s: %w", pair.UserID, pair.Specialization, err))
			continue
		}
		report.Succeeded++
		if !status.Consistent {
			divergent++
			j.logger.WarnContext(ctx, "progress and license diverged",
				slog.Int("user_id", pair.UserID),
				slog.String("specialization", string(pair.Specialization)),
				slog.Int("progress_level", status.ProgressLevel),
				slog.Int("license_level", status.LicenseLevel),
				slog.String("recommended_action", status.RecommendedAction),
			)
		}
	}
	metrics.SetDivergentPairs(divergent)
	return report, nil
}

// RepairDrift resynchronizes every diverged pair following the recommended action.
func (j *ConsistencyJobs) RepairDrift(ctx context.Context) (jobs.Report, error) {
	report := jobs.Report{StartedAt: time.Now()}
	pairs, err := j.progressRepo.ListLicensedPairs(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("failed to list licensed pairs: %w", err)
	}

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++
		if err := j.repairPair(ctx, pair); err != nil {
			if errors.Is(err, errAlreadyConsistent) {
				report.Skipped++
				continue
			}
			report.Fail(fmt.Errorf("user %d %s: %w", pair.UserID, pair.Specialization, err))
			continue
		}
		report.Succeeded++
	}
	return report, nil
}

var errAlreadyConsistent = errors.New("pair already consistent")

func (j *ConsistencyJobs) repairPair(ctx context.Context, pair models.UserSpecialization) error {
	status, err := j.coupler.ValidateConsistency(ctx, pair.UserID, pair.Specialization)
	if err != nil {
		return err
	}
	if status.Consistent {
		return errAlreadyConsistent
	}

	source := SyncFromProgress
	if status.RecommendedAction == ActionSyncFromLicense {
		source = SyncFromLicense
	}
	result, err := j.coupler.SyncExistingRecordsAtomic(ctx, pair.UserID, pair.Specialization, source)
	if err != nil {
		return err
	}
	if result.NoOp {
		return errAlreadyConsistent
	}
	return nil
}

// RetryPendingDistributions finishes distributions left incomplete by partial failures.
func (j *ConsistencyJobs) RetryPendingDistributions(ctx context.Context) (jobs.Report, error) {
	report := jobs.Report{StartedAt: time.Now()}
	pending, err := j.tournamentRepo.ListByStatus(ctx, nil, models.StatusCompleted)
	if err != nil {
		return report, fmt.Errorf("failed to list completed tournaments: %w", err)
	}

	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++
		result, err := j.rewards.Distribute(ctx, t.ID)
		switch {
		case err != nil:
			report.Fail(fmt.Errorf("tournament %d: %w", t.ID, err))
		case !result.Success:
			report.Fail(fmt.Errorf("tournament %d: %s", t.ID, result.Message))
		default:
			report.Succeeded++
		}
	}
	return report, nil
}
