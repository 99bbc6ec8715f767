package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/rankings"
	"github.com/Dosada05/tournament-progression/repositories"
)

// SessionOutcome is everything that changed because of one result write.
type SessionOutcome struct {
	Session          *models.Session            `json:"session"`
	Rankings         []models.TournamentRanking `json:"rankings"`
	NoOp             bool                       `json:"no_op"`
	Progression      *ProgressionResult         `json:"progression,omitempty"`
	ProgressionError string                     `json:"progression_error,omitempty"`
	Completion       *CompletionResult          `json:"completion,omitempty"`
	Rewards          *DistributionResult        `json:"rewards,omitempty"`
}

// MatchService accepts session results. Results always arrive as one flat
// list of entries; multi-round individual sessions get the round stamped here
// and aggregated when the session is finalized.
type MatchService interface {
	SubmitResult(ctx context.Context, sessionID int, entries []models.ResultEntry) (*SessionOutcome, error)
	// CorrectResult fixes the results of a completed session and re-runs progression.
	// Head-to-head results are replaced as a whole; individual corrections are
	// merged by (participant, round).
	CorrectResult(ctx context.Context, sessionID int, entries []models.ResultEntry) (*SessionOutcome, error)
	FinalizeSession(ctx context.Context, sessionID int) (*SessionOutcome, error)
	PreviewProgression(ctx context.Context, sessionID int) (*ProgressionPlan, error)
}

type matchService struct {
	txm            repositories.TxManager
	sessionRepo    repositories.SessionRepository
	tournamentRepo repositories.TournamentRepository
	rankingService RankingService
	progression    KnockoutProgressionService
	completer      TournamentCompleter
	rewards        RewardDistributionService
	notifier       Notifier
	logger         *slog.Logger
	now            func() time.Time
}

func NewMatchService(
	txm repositories.TxManager,
	sessionRepo repositories.SessionRepository,
	tournamentRepo repositories.TournamentRepository,
	rankingService RankingService,
	progression KnockoutProgressionService,
	completer TournamentCompleter,
	rewards RewardDistributionService,
	notifier Notifier,
	logger *slog.Logger,
) MatchService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &matchService{
		txm:            txm,
		sessionRepo:    sessionRepo,
		tournamentRepo: tournamentRepo,
		rankingService: rankingService,
		progression:    progression,
		completer:      completer,
		rewards:        rewards,
		notifier:       notifier,
		logger:         logger,
		now:            time.Now,
	}
}

func checkEntries(session *models.Session, entries []models.ResultEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: results must not be empty", ErrValidation)
	}
	type entryKey struct{ participant, round int }
	seen := make(map[entryKey]bool, len(entries))
	for _, e := range entries {
		if !session.HasParticipant(e.ParticipantID) {
			return fmt.Errorf("%w: participant %d is not part of session %d", ErrValidation, e.ParticipantID, session.ID)
		}
		key := entryKey{e.ParticipantID, e.Round}
		if seen[key] {
			return fmt.Errorf("%w: duplicate result for participant %d", ErrValidation, e.ParticipantID)
		}
		seen[key] = true
	}
	return nil
}

// decideHeadToHead validates a two-player result and returns the winner, nil on a draw.
func decideHeadToHead(session *models.Session, entries []models.ResultEntry) (*int, error) {
	if len(session.ParticipantIDs) != 2 || len(entries) != 2 {
		return nil, fmt.Errorf("%w: head-to-head sessions need exactly 2 scored entries, got %d", ErrValidation, len(entries))
	}
	for _, e := range entries {
		if e.Score == nil {
			return nil, fmt.Errorf("%w: participant %d has no score", ErrValidation, e.ParticipantID)
		}
		if *e.Score < 0 {
			return nil, fmt.Errorf("%w: score of participant %d cannot be negative", ErrValidation, e.ParticipantID)
		}
	}

	a, b := entries[0], entries[1]
	switch {
	case *a.Score > *b.Score:
		return &a.ParticipantID, nil
	case *b.Score > *a.Score:
		return &b.ParticipantID, nil
	}
	if session.Phase.IsKnockout() {
		return nil, fmt.Errorf("%w: draws are not allowed in knockout sessions", ErrValidation)
	}
	return nil, nil
}

func checkIndividualEntries(t *models.Tournament, entries []models.ResultEntry) error {
	needsRank, err := rankings.RequiresRank(t.Scoring())
	if err != nil {
		return translateRankingError(err)
	}
	for _, e := range entries {
		switch {
		case needsRank && (e.Rank == nil || *e.Rank < 1):
			return fmt.Errorf("%w: %s results need a positive rank for participant %d", ErrValidation, t.Scoring(), e.ParticipantID)
		case !needsRank && e.Score == nil:
			return fmt.Errorf("%w: %s results need a score for participant %d", ErrValidation, t.Scoring(), e.ParticipantID)
		case !needsRank && *e.Score < 0:
			return fmt.Errorf("%w: score of participant %d cannot be negative", ErrValidation, e.ParticipantID)
		}
	}
	return nil
}

// mergeCorrections replaces recorded results matching (participant, round)
// and appends the rest. Rounds and participants not mentioned stay as they were.
func mergeCorrections(recorded, corrections []models.ResultEntry) []models.ResultEntry {
	merged := make([]models.ResultEntry, len(recorded), len(recorded)+len(corrections))
	copy(merged, recorded)
	for _, c := range corrections {
		replaced := false
		for i := range merged {
			if merged[i].ParticipantID == c.ParticipantID && merged[i].Round == c.Round {
				merged[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, c)
		}
	}
	return merged
}

// lockSession locks the session row, then reads its tournament.
func (s *matchService) lockSession(ctx context.Context, exec repositories.SQLExecutor, sessionID int) (*models.Session, *models.Tournament, error) {
	session, err := s.sessionRepo.GetForUpdate(ctx, exec, sessionID)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.tournamentRepo.GetByID(ctx, exec, session.TournamentID)
	if err != nil {
		return nil, nil, err
	}
	if t.Status != models.StatusInProgress {
		return nil, nil, fmt.Errorf("%w: tournament %d is %s, results are frozen", ErrInvalidStateTransition, t.ID, t.Status)
	}
	if session.IsBye {
		return nil, nil, fmt.Errorf("%w: session %d is a bye and takes no results", ErrValidation, session.ID)
	}
	return session, t, nil
}

func (s *matchService) SubmitResult(ctx context.Context, sessionID int, entries []models.ResultEntry) (*SessionOutcome, error) {
	outcome := &SessionOutcome{}
	var t *models.Tournament
	err := s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		session, tournament, err := s.lockSession(ctx, exec, sessionID)
		if err != nil {
			return err
		}
		t = tournament
		if session.Status == models.SessionCompleted || session.Status == models.SessionCancelled {
			return fmt.Errorf("%w: session %d is %s, use the correction path", ErrInvalidStateTransition, session.ID, session.Status)
		}
		for i := range entries {
			entries[i].Round = 0
		}
		if err := checkEntries(session, entries); err != nil {
			return err
		}

		now := s.now().UTC()
		if t.Format == models.FormatIndividualRanking {
			if err := checkIndividualEntries(t, entries); err != nil {
				return err
			}
			if session.RoundsRecorded >= t.NumberOfRounds {
				return fmt.Errorf("%w: all %d rounds of session %d are already recorded, finalize it", ErrValidation, t.NumberOfRounds, session.ID)
			}
			round := session.RoundsRecorded + 1
			for _, e := range entries {
				e.Round = round
				session.Results = append(session.Results, e)
			}
			session.RoundsRecorded = round
			session.Status = models.SessionInProgress
		} else {
			winner, err := decideHeadToHead(session, entries)
			if err != nil {
				return err
			}
			session.Results = entries
			session.RoundsRecorded = 1
			session.WinnerID = winner
			session.Status = models.SessionCompleted
			session.FinalizedAt = &now
		}

		if err := s.sessionRepo.UpdateResults(ctx, exec, session); err != nil {
			return err
		}
		outcome.Session = session
		outcome.Rankings, err = s.rankingService.RecalculateTx(ctx, exec, t.ID)
		return err
	})
	if err != nil {
		return nil, translateRankingError(err)
	}

	s.afterCommit(ctx, t, outcome)
	return outcome, nil
}

func (s *matchService) CorrectResult(ctx context.Context, sessionID int, entries []models.ResultEntry) (*SessionOutcome, error) {
	outcome := &SessionOutcome{}
	var t *models.Tournament
	err := s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		session, tournament, err := s.lockSession(ctx, exec, sessionID)
		if err != nil {
			return err
		}
		t = tournament
		if session.Status != models.SessionCompleted {
			return fmt.Errorf("%w: only completed sessions can be corrected, session %d is %s", ErrInvalidStateTransition, session.ID, session.Status)
		}

		if t.Format == models.FormatIndividualRanking {
			for i := range entries {
				if entries[i].Round == 0 && session.RoundsRecorded == 1 {
					entries[i].Round = 1
				}
				if entries[i].Round < 1 || entries[i].Round > session.RoundsRecorded {
					return fmt.Errorf("%w: correction round %d is outside recorded rounds 1..%d", ErrValidation, entries[i].Round, session.RoundsRecorded)
				}
			}
			if err := checkEntries(session, entries); err != nil {
				return err
			}
			if err := checkIndividualEntries(t, entries); err != nil {
				return err
			}
			session.Results = mergeCorrections(session.Results, entries)
		} else {
			for i := range entries {
				entries[i].Round = 0
			}
			if err := checkEntries(session, entries); err != nil {
				return err
			}
			winner, err := decideHeadToHead(session, entries)
			if err != nil {
				return err
			}
			if !sameWinner(session.WinnerID, winner) {
				if err := s.checkNotAdvanced(ctx, exec, session); err != nil {
					return err
				}
			}
			session.Results = entries
			session.WinnerID = winner
		}

		if err := s.sessionRepo.UpdateResults(ctx, exec, session); err != nil {
			return err
		}
		outcome.Session = session
		outcome.Rankings, err = s.rankingService.RecalculateTx(ctx, exec, t.ID)
		return err
	})
	if err != nil {
		return nil, translateRankingError(err)
	}

	s.logger.InfoContext(ctx, "session result corrected", slog.Int("session_id", sessionID), slog.Int("tournament_id", t.ID))
	s.afterCommit(ctx, t, outcome)
	return outcome, nil
}

// checkNotAdvanced rejects winner changes once the session's winner has been
// carried into later bracket sessions.
func (s *matchService) checkNotAdvanced(ctx context.Context, exec repositories.SQLExecutor, session *models.Session) error {
	var round int
	switch session.Phase {
	case models.PhaseKnockout:
		round = session.Round + 1
	case models.PhaseGroup:
		round = 1
	default:
		return nil
	}
	next, err := s.sessionRepo.ListByRound(ctx, exec, session.TournamentID, round, models.PhaseKnockout)
	if err != nil {
		return err
	}
	if len(next) > 0 {
		return fmt.Errorf("%w: the bracket already advanced past session %d, its winner can no longer change", ErrInvalidStateTransition, session.ID)
	}
	return nil
}

func (s *matchService) FinalizeSession(ctx context.Context, sessionID int) (*SessionOutcome, error) {
	outcome := &SessionOutcome{}
	var t *models.Tournament
	err := s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		session, tournament, err := s.lockSession(ctx, exec, sessionID)
		if err != nil {
			return err
		}
		t = tournament
		if t.Format != models.FormatIndividualRanking {
			return fmt.Errorf("%w: only individual ranking sessions are finalized explicitly", ErrValidation)
		}
		outcome.Session = session
		if session.Status == models.SessionCompleted {
			outcome.NoOp = true
			outcome.Rankings, err = s.rankingService.RecalculateTx(ctx, exec, t.ID)
			return err
		}
		if session.RoundsRecorded == 0 {
			return fmt.Errorf("%w: session %d has no recorded rounds", ErrValidation, session.ID)
		}

		now := s.now().UTC()
		session.Status = models.SessionCompleted
		session.FinalizedAt = &now
		if err := s.sessionRepo.UpdateResults(ctx, exec, session); err != nil {
			return err
		}
		outcome.Rankings, err = s.rankingService.RecalculateTx(ctx, exec, t.ID)
		return err
	})
	if err != nil {
		return nil, translateRankingError(err)
	}

	if !outcome.NoOp {
		s.afterCommit(ctx, t, outcome)
	}
	return outcome, nil
}

// afterCommit publishes the new state and drives bracket progression. The
// result itself is already committed, so progression failures are reported in
// the outcome instead of failing the request.
func (s *matchService) afterCommit(ctx context.Context, t *models.Tournament, outcome *SessionOutcome) {
	s.rankingService.Invalidate(ctx, t.ID)
	s.notifier.BroadcastTournament(t.ID, EventSessionUpdated, outcome.Session)
	s.notifier.BroadcastTournament(t.ID, EventRankingsUpdated, outcome.Rankings)

	if !outcome.Session.IsCompleted() {
		return
	}

	var plan *ProgressionPlan
	var err error
	switch {
	case t.Format == models.FormatGroupAndKnockout && outcome.Session.Phase == models.PhaseGroup:
		plan, err = s.progression.CalculateKnockoutSeeding(ctx, t)
	case s.progression.CanProgress(outcome.Session, t):
		plan, err = s.progression.CalculateProgression(ctx, outcome.Session, t)
	}
	if err == nil && plan != nil {
		outcome.Progression, err = s.progression.ExecuteProgression(ctx, plan, t)
	}
	if err != nil {
		outcome.ProgressionError = err.Error()
		s.logger.WarnContext(ctx, "progression after result failed",
			slog.Int("tournament_id", t.ID),
			slog.Int("session_id", outcome.Session.ID),
			slog.String("error_type", string(ClassifyError(err))),
			slog.Any("error", err),
		)
		return
	}

	if outcome.Progression != nil && outcome.Progression.TournamentComplete {
		s.completeAndReward(ctx, t, outcome)
	}
}

func (s *matchService) completeAndReward(ctx context.Context, t *models.Tournament, outcome *SessionOutcome) {
	completion, err := s.completer.Complete(ctx, t.ID)
	if err != nil {
		outcome.ProgressionError = err.Error()
		s.logger.WarnContext(ctx, "automatic tournament completion failed", slog.Int("tournament_id", t.ID), slog.Any("error", err))
		return
	}
	outcome.Completion = completion
	if s.rewards == nil {
		return
	}

	rewards, err := s.rewards.Distribute(ctx, t.ID)
	if err != nil {
		// Повторная попытка будет выполнена фоновым заданием.
		s.logger.WarnContext(ctx, "automatic reward distribution failed", slog.Int("tournament_id", t.ID), slog.Any("error", err))
		return
	}
	outcome.Rewards = rewards
}

func (s *matchService) PreviewProgression(ctx context.Context, sessionID int) (*ProgressionPlan, error) {
	session, err := s.sessionRepo.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	t, err := s.tournamentRepo.GetByID(ctx, nil, session.TournamentID)
	if err != nil {
		return nil, translateRepoError(err)
	}

	if t.Format == models.FormatGroupAndKnockout && session.Phase == models.PhaseGroup {
		return s.progression.CalculateKnockoutSeeding(ctx, t)
	}
	plan, err := s.progression.CalculateProgression(ctx, session, t)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: session %d does not take part in bracket progression", ErrValidation, sessionID)
	}
	return plan, nil
}
