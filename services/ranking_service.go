package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-progression/cache"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/rankings"
	"github.com/Dosada05/tournament-progression/repositories"
)

// RankingService owns the derived ranking table: it is recomputed from
// sessions and never edited by hand.
type RankingService interface {
	Recalculate(ctx context.Context, tournamentID int) ([]models.TournamentRanking, error)
	// RecalculateTx locks the tournament row so recomputations of one tournament serialize.
	RecalculateTx(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]models.TournamentRanking, error)
	Get(ctx context.Context, tournamentID int) ([]models.TournamentRanking, error)
	Invalidate(ctx context.Context, tournamentID int)
}

type rankingService struct {
	txm            repositories.TxManager
	tournamentRepo repositories.TournamentRepository
	sessionRepo    repositories.SessionRepository
	rankingRepo    repositories.RankingRepository
	cache          cache.RankingsCache
	notifier       Notifier
	logger         *slog.Logger
}

func NewRankingService(
	txm repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	sessionRepo repositories.SessionRepository,
	rankingRepo repositories.RankingRepository,
	rankingsCache cache.RankingsCache,
	notifier Notifier,
	logger *slog.Logger,
) RankingService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &rankingService{
		txm:            txm,
		tournamentRepo: tournamentRepo,
		sessionRepo:    sessionRepo,
		rankingRepo:    rankingRepo,
		cache:          rankingsCache,
		notifier:       notifier,
		logger:         logger,
	}
}

// translateRankingError keeps configuration failures distinguishable from bad input.
func translateRankingError(err error) error {
	switch {
	case errors.Is(err, rankings.ErrUnsupportedScoringType):
		return err
	case errors.Is(err, rankings.ErrUnsupportedFormat):
		return fmt.Errorf("%w: %w", ErrUnsupportedScoringType, err)
	case errors.Is(err, rankings.ErrDirectionRequired),
		errors.Is(err, rankings.ErrNotEnoughQualifiers),
		errors.Is(err, rankings.ErrOddGroupCount):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return translateRepoError(err)
}

func (s *rankingService) Recalculate(ctx context.Context, tournamentID int) ([]models.TournamentRanking, error) {
	var rows []models.TournamentRanking
	err := s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		var err error
		rows, err = s.RecalculateTx(ctx, exec, tournamentID)
		return err
	})
	if err != nil {
		return nil, translateRankingError(err)
	}

	s.Invalidate(ctx, tournamentID)
	s.notifier.BroadcastTournament(tournamentID, EventRankingsUpdated, rows)
	return rows, nil
}

func (s *rankingService) RecalculateTx(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]models.TournamentRanking, error) {
	t, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
	if err != nil {
		return nil, err
	}

	frozen, err := s.rankingRepo.IsFrozen(ctx, exec, tournamentID)
	if err != nil {
		return nil, err
	}
	if frozen {
		return s.rankingRepo.ListByTournament(ctx, exec, tournamentID)
	}

	sessions, err := s.sessionRepo.ListByTournament(ctx, exec, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Format == models.FormatIndividualRanking {
		// Промежуточные раунды учитываются только после финализации сессии.
		sessions = completedSessions(sessions)
	}

	rows, err := rankings.Calculate(rankings.ConfigFor(t), sessions)
	if err != nil {
		return nil, translateRankingError(err)
	}
	for i := range rows {
		rows[i].TournamentID = tournamentID
	}
	if err := s.rankingRepo.Replace(ctx, exec, tournamentID, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *rankingService) Get(ctx context.Context, tournamentID int) ([]models.TournamentRanking, error) {
	if s.cache != nil {
		rows, ok, err := s.cache.Get(ctx, tournamentID)
		if err != nil {
			s.logger.WarnContext(ctx, "rankings cache read failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		} else if ok {
			return rows, nil
		}
	}

	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		return nil, translateRepoError(err)
	}
	rows, err := s.rankingRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, translateRepoError(err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, tournamentID, rows); err != nil {
			s.logger.WarnContext(ctx, "rankings cache write failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		}
	}
	return rows, nil
}

func (s *rankingService) Invalidate(ctx context.Context, tournamentID int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tournamentID); err != nil {
		s.logger.WarnContext(ctx, "rankings cache invalidation failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
	}
}
