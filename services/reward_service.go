package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Dosada05/tournament-progression/metrics"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
	"github.com/Dosada05/tournament-progression/retry"
	"github.com/Dosada05/tournament-progression/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	TierChampion    = "champion"
	TierPodium      = "podium"
	TierParticipant = "participant"
)

// RewardPolicy maps a final rank to a multiple of the base grant.
type RewardPolicy struct {
	BaseCredits           int64
	BaseExperience        int64
	ChampionMultiplier    int64
	PodiumMultiplier      int64
	ParticipantMultiplier int64
	PodiumSize            int
}

func DefaultRewardPolicy() RewardPolicy {
	return RewardPolicy{
		BaseCredits:           100,
		BaseExperience:        100,
		ChampionMultiplier:    3,
		PodiumMultiplier:      2,
		ParticipantMultiplier: 1,
		PodiumSize:            3,
	}
}

// Tier returns the tier name together with its credits and experience.
func (p RewardPolicy) Tier(rank int) (string, int64, int64) {
	switch {
	case rank == 1:
		return TierChampion, p.BaseCredits * p.ChampionMultiplier, p.BaseExperience * p.ChampionMultiplier
	case rank <= p.PodiumSize:
		return TierPodium, p.BaseCredits * p.PodiumMultiplier, p.BaseExperience * p.PodiumMultiplier
	}
	return TierParticipant, p.BaseCredits * p.ParticipantMultiplier, p.BaseExperience * p.ParticipantMultiplier
}

type ParticipantReward struct {
	UserID     int    `json:"user_id"`
	Rank       int    `json:"rank"`
	Tier       string `json:"tier"`
	Credits    int64  `json:"credits"`
	Experience int64  `json:"experience"`
	NoOp       bool   `json:"no_op"`
	// CreditsOnly is set when the user has no progress track in the tournament's specialization.
	CreditsOnly bool            `json:"credits_only,omitempty"`
	Coupling    *CouplingResult `json:"coupling,omitempty"`
	Error       string          `json:"error,omitempty"`
	ErrorType   ErrorType       `json:"error_type,omitempty"`
}

type DistributionResult struct {
	Success      bool                `json:"success"`
	NoOp         bool                `json:"no_op"`
	TournamentID int                 `json:"tournament_id"`
	RunID        string              `json:"run_id,omitempty"`
	Status       string              `json:"status"`
	Granted      int                 `json:"granted"`
	Skipped      int                 `json:"skipped"`
	Failed       int                 `json:"failed"`
	Participants []ParticipantReward `json:"participants,omitempty"`
	Message      string              `json:"message"`
}

// RewardDistributionService grants rewards exactly once per (tournament, user).
// Partial failures are reported in the result with Success=false and a nil error.
type RewardDistributionService interface {
	Distribute(ctx context.Context, tournamentID int) (*DistributionResult, error)
}

type RewardConfig struct {
	Policy      RewardPolicy
	Concurrency int
	Retry       *retry.Config
}

type rewardDistributionService struct {
	txm            repositories.TxManager
	tournamentRepo repositories.TournamentRepository
	rankingRepo    repositories.RankingRepository
	rewardRepo     repositories.RewardRepository
	coupler        ProgressLicenseCoupler
	notifier       Notifier
	cfg            RewardConfig
	logger         *slog.Logger
	now            func() time.Time
}

func NewRewardDistributionService(
	txm repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	rankingRepo repositories.RankingRepository,
	rewardRepo repositories.RewardRepository,
	coupler ProgressLicenseCoupler,
	notifier Notifier,
	cfg RewardConfig,
	logger *slog.Logger,
) RewardDistributionService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Retry.IsRetryable == nil {
		retryCfg := *cfg.Retry
		retryCfg.IsRetryable = IsRetryable
		cfg.Retry = &retryCfg
	}
	return &rewardDistributionService{
		txm:            txm,
		tournamentRepo: tournamentRepo,
		rankingRepo:    rankingRepo,
		rewardRepo:     rewardRepo,
		coupler:        coupler,
		notifier:       notifier,
		cfg:            cfg,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *rewardDistributionService) Distribute(ctx context.Context, tournamentID int) (*DistributionResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "rewards.Distribute")
	defer span.End()
	span.SetAttributes(attribute.Int("tournament_id", tournamentID))

	t, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, translateRepoError(err)
	}

	result := &DistributionResult{TournamentID: tournamentID, Status: string(t.Status)}
	switch t.Status {
	case models.StatusRewardsDistributed:
		result.Success = true
		result.NoOp = true
		result.Message = "rewards already distributed"
		metrics.ObserveReward("no_op")
		return result, nil
	case models.StatusCompleted:
	default:
		return nil, fmt.Errorf("%w: rewards can only be distributed for COMPLETED tournaments, tournament %d is %s",
			ErrInvalidStateTransition, tournamentID, t.Status)
	}

	frozen, err := s.rankingRepo.IsFrozen(ctx, nil, tournamentID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if !frozen {
		return nil, fmt.Errorf("%w: rankings of tournament %d are not frozen", ErrInvalidStateTransition, tournamentID)
	}
	standings, err := s.rankingRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, translateRepoError(err)
	}

	result.RunID = uuid.NewString()
	logger := s.logger.With(slog.Int("tournament_id", tournamentID), slog.String("run_id", result.RunID))
	span.SetAttributes(attribute.String("run_id", result.RunID), attribute.Int("participants", len(standings)))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, row := range standings {
		g.Go(func() error {
			reward := s.distributeOne(gctx, t, row, result.RunID, logger)
			mu.Lock()
			result.Participants = append(result.Participants, reward)
			mu.Unlock()
			// Ошибки участников не прерывают остальных.
			return nil
		})
	}
	_ = g.Wait()
	slices.SortFunc(result.Participants, func(a, b ParticipantReward) int { return a.Rank - b.Rank })

	for _, p := range result.Participants {
		switch {
		case p.Error != "":
			result.Failed++
		case p.NoOp:
			result.Skipped++
		default:
			result.Granted++
		}
	}

	if result.Failed > 0 {
		result.Message = fmt.Sprintf("%d of %d participants failed, tournament stays COMPLETED", result.Failed, len(standings))
		logger.WarnContext(ctx, "reward distribution incomplete",
			slog.Int("granted", result.Granted),
			slog.Int("skipped", result.Skipped),
			slog.Int("failed", result.Failed),
		)
		return result, nil
	}

	err = s.tournamentRepo.UpdateStatus(ctx, nil, tournamentID, models.StatusCompleted, models.StatusRewardsDistributed, s.now().UTC())
	if errors.Is(err, repositories.ErrTournamentStatusConflict) {
		current, readErr := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
		if readErr != nil {
			return nil, translateRepoError(readErr)
		}
		if current.Status != models.StatusRewardsDistributed {
			return nil, fmt.Errorf("%w: tournament %d moved to %s during distribution", ErrConcurrencyConflict, tournamentID, current.Status)
		}
		err = nil
	}
	if err != nil {
		return nil, translateRepoError(err)
	}

	result.Success = true
	result.Status = string(models.StatusRewardsDistributed)
	result.NoOp = result.Granted == 0
	result.Message = fmt.Sprintf("rewards distributed: %d granted, %d already granted", result.Granted, result.Skipped)
	logger.InfoContext(ctx, "rewards distributed", slog.Int("granted", result.Granted), slog.Int("skipped", result.Skipped))
	s.notifier.BroadcastTournament(tournamentID, EventRewardsDistributed, result)
	return result, nil
}

func (s *rewardDistributionService) distributeOne(ctx context.Context, t *models.Tournament, row models.TournamentRanking, runID string, logger *slog.Logger) ParticipantReward {
	tier, credits, xp := s.cfg.Policy.Tier(row.Rank)
	reward := ParticipantReward{
		UserID:     row.ParticipantID,
		Rank:       row.Rank,
		Tier:       tier,
		Credits:    credits,
		Experience: xp,
	}

	op := fmt.Sprintf("reward tournament=%d user=%d", t.ID, row.ParticipantID)
	granted, err := retry.Do(ctx, s.cfg.Retry, logger, op, func(ctx context.Context) (ParticipantReward, error) {
		return s.grantTx(ctx, t, reward, runID)
	})
	if err != nil {
		err = translateRepoError(err)
		reward.Error = err.Error()
		reward.ErrorType = ClassifyError(err)
		metrics.ObserveReward(string(reward.ErrorType))
		logger.ErrorContext(ctx, "reward grant failed",
			slog.Int("user_id", row.ParticipantID),
			slog.String("error_type", string(reward.ErrorType)),
			slog.Any("error", err),
		)
		return reward
	}

	if granted.NoOp {
		metrics.ObserveReward("no_op")
		return granted
	}
	metrics.ObserveReward("granted")
	s.notifier.NotifyUser(granted.UserID, EventRewardGranted, granted)
	if granted.Coupling != nil && granted.Coupling.LeveledUp {
		s.notifier.NotifyUser(granted.UserID, EventLevelUp, granted.Coupling)
	}
	return granted
}

// grantTx applies one participant's reward in a single transaction: the ledger
// credit and the idempotency fence commit or roll back together.
func (s *rewardDistributionService) grantTx(ctx context.Context, t *models.Tournament, reward ParticipantReward, runID string) (ParticipantReward, error) {
	err := s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		reward.NoOp, reward.CreditsOnly, reward.Coupling = false, false, nil
		exists, err := s.rewardRepo.Exists(ctx, exec, t.ID, reward.UserID)
		if err != nil {
			return err
		}
		if exists {
			reward.NoOp = true
			return nil
		}

		if reward.Experience > 0 {
			coupling, err := s.coupler.AwardExperienceTx(ctx, exec, ExperienceAward{
				UserID:         reward.UserID,
				Specialization: t.Specialization,
				Experience:     reward.Experience,
				Source:         models.SourceTournament,
				Reason:         fmt.Sprintf("tournament %d rank %d", t.ID, reward.Rank),
			})
			switch {
			case errors.Is(err, ErrProgressNotFound):
				reward.CreditsOnly = true
			case err != nil:
				return err
			default:
				reward.Coupling = coupling
			}
		}

		tournamentID := t.ID
		if err := s.rewardRepo.CreditLedger(ctx, exec, &models.CreditLedgerEntry{
			ID:           uuid.NewString(),
			UserID:       reward.UserID,
			Amount:       reward.Credits,
			Reason:       fmt.Sprintf("tournament %d reward (%s)", t.ID, reward.Tier),
			TournamentID: &tournamentID,
		}); err != nil {
			return err
		}

		return s.rewardRepo.CreateRecord(ctx, exec, &models.RewardDistributionRecord{
			TournamentID: t.ID,
			UserID:       reward.UserID,
			Rank:         reward.Rank,
			Tier:         reward.Tier,
			Credits:      reward.Credits,
			Experience:   reward.Experience,
			RunID:        runID,
		})
	})
	if errors.Is(err, repositories.ErrRewardAlreadyDistributed) {
		// Забор уже поставлен параллельным запуском; транзакция откатилась целиком.
		return ParticipantReward{
			UserID: reward.UserID, Rank: reward.Rank, Tier: reward.Tier,
			Credits: reward.Credits, Experience: reward.Experience, NoOp: true,
		}, nil
	}
	if err != nil {
		return reward, translateRepoError(err)
	}
	return reward, nil
}
