package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
	"github.com/Dosada05/tournament-progression/storage"
)

type CreateTournamentInput struct {
	Name               string                   `json:"name"`
	Format             models.TournamentFormat  `json:"format"`
	Bracket            *models.BracketType      `json:"bracket,omitempty"`
	ScoringType        *models.ScoringType      `json:"scoring_type,omitempty"`
	RankingDirection   *models.RankingDirection `json:"ranking_direction,omitempty"`
	Specialization     models.Specialization    `json:"specialization"`
	MaxParticipants    int                      `json:"max_participants"`
	NumberOfRounds     int                      `json:"number_of_rounds"`
	ThirdPlaceMatch    bool                     `json:"third_place_match"`
	GroupCount         int                      `json:"group_count"`
	QualifiersPerGroup int                      `json:"qualifiers_per_group"`
}

type CompletionResult struct {
	Tournament *models.Tournament         `json:"tournament"`
	Rankings   []models.TournamentRanking `json:"rankings"`
	NoOp       bool                       `json:"no_op"`
	ArchiveURL string                     `json:"archive_url,omitempty"`
}

// TournamentCompleter is what result processing needs to close a tournament.
type TournamentCompleter interface {
	Complete(ctx context.Context, tournamentID int) (*CompletionResult, error)
}

type TournamentService interface {
	TournamentCompleter
	Create(ctx context.Context, organizerID int, input CreateTournamentInput) (*models.Tournament, error)
	Get(ctx context.Context, tournamentID int) (*models.Tournament, error)
	Start(ctx context.Context, tournamentID int) (*models.Tournament, error)
	Cancel(ctx context.Context, tournamentID int) (*models.Tournament, error)
	ListSessions(ctx context.Context, tournamentID int) ([]models.Session, error)
	GetRankings(ctx context.Context, tournamentID int) ([]models.TournamentRanking, error)
	RecalculateRankings(ctx context.Context, tournamentID int) ([]models.TournamentRanking, error)
}

type tournamentService struct {
	txm             repositories.TxManager
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	sessionRepo     repositories.SessionRepository
	rankingRepo     repositories.RankingRepository
	userRepo        repositories.UserRepository
	bracketService  BracketService
	rankingService  RankingService
	uploader        storage.FileUploader
	notifier        Notifier
	logger          *slog.Logger
	now             func() time.Time
}

func NewTournamentService(
	txm repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	sessionRepo repositories.SessionRepository,
	rankingRepo repositories.RankingRepository,
	userRepo repositories.UserRepository,
	bracketService BracketService,
	rankingService RankingService,
	uploader storage.FileUploader,
	notifier Notifier,
	logger *slog.Logger,
) TournamentService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &tournamentService{
		txm:             txm,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		sessionRepo:     sessionRepo,
		rankingRepo:     rankingRepo,
		userRepo:        userRepo,
		bracketService:  bracketService,
		rankingService:  rankingService,
		uploader:        uploader,
		notifier:        notifier,
		logger:          logger,
		now:             time.Now,
	}
}

func validateTournamentInput(in *CreateTournamentInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !in.Specialization.Valid() {
		return fmt.Errorf("%w: unknown specialization %q", ErrValidation, in.Specialization)
	}
	if in.MaxParticipants < 2 {
		return fmt.Errorf("%w: max_participants must be at least 2", ErrValidation)
	}
	if in.NumberOfRounds == 0 {
		in.NumberOfRounds = 1
	}

	switch in.Format {
	case models.FormatHeadToHead:
		if in.Bracket == nil || !in.Bracket.Valid() {
			return fmt.Errorf("%w: head-to-head tournaments need bracket SINGLE_ELIMINATION or ROUND_ROBIN", ErrValidation)
		}
		if in.ScoringType != nil {
			return fmt.Errorf("%w: scoring_type applies to individual ranking tournaments only", ErrValidation)
		}
		in.NumberOfRounds = 1
	case models.FormatIndividualRanking:
		if in.ScoringType == nil || !in.ScoringType.Valid() {
			return fmt.Errorf("%w: individual ranking tournaments need a known scoring_type", ErrValidation)
		}
		if *in.ScoringType == models.ScoringRoundsBased && (in.RankingDirection == nil || !in.RankingDirection.Valid()) {
			return fmt.Errorf("%w: ROUNDS_BASED scoring needs ranking_direction ASC or DESC", ErrValidation)
		}
		if in.NumberOfRounds < 1 {
			return fmt.Errorf("%w: number_of_rounds must be positive", ErrValidation)
		}
		in.Bracket = nil
		in.ThirdPlaceMatch = false
	case models.FormatGroupAndKnockout:
		if in.GroupCount < 2 || in.GroupCount%2 != 0 {
			return fmt.Errorf("%w: group_count must be an even number of at least 2", ErrValidation)
		}
		if in.QualifiersPerGroup < 1 {
			return fmt.Errorf("%w: qualifiers_per_group must be positive", ErrValidation)
		}
		if in.MaxParticipants < in.GroupCount*2 {
			return fmt.Errorf("%w: %d groups need at least %d participants", ErrValidation, in.GroupCount, in.GroupCount*2)
		}
		in.Bracket, in.ScoringType = nil, nil
		in.NumberOfRounds = 1
	default:
		return fmt.Errorf("%w: unknown format %q", ErrValidation, in.Format)
	}
	return nil
}

func (s *tournamentService) Create(ctx context.Context, organizerID int, input CreateTournamentInput) (*models.Tournament, error) {
	if err := validateTournamentInput(&input); err != nil {
		return nil, err
	}
	organizer, err := s.userRepo.GetByID(ctx, nil, organizerID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if organizer.Role != models.RoleOrganizer && organizer.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: user %d cannot organize tournaments", ErrValidation, organizerID)
	}

	t := &models.Tournament{
		Name:               input.Name,
		OrganizerID:        organizerID,
		Format:             input.Format,
		Bracket:            input.Bracket,
		ScoringType:        input.ScoringType,
		RankingDirection:   input.RankingDirection,
		Specialization:     input.Specialization,
		Status:             models.StatusDraft,
		MaxParticipants:    input.MaxParticipants,
		NumberOfRounds:     input.NumberOfRounds,
		ThirdPlaceMatch:    input.ThirdPlaceMatch,
		GroupCount:         input.GroupCount,
		QualifiersPerGroup: input.QualifiersPerGroup,
	}
	if err := s.tournamentRepo.Create(ctx, nil, t); err != nil {
		if errors.Is(err, repositories.ErrTournamentInvalidOrg) {
			return nil, fmt.Errorf("%w: organizer %d does not exist", ErrValidation, organizerID)
		}
		return nil, translateRepoError(err)
	}

	s.logger.InfoContext(ctx, "tournament created",
		slog.Int("tournament_id", t.ID),
		slog.String("format", string(t.Format)),
		slog.Int("organizer_id", organizerID),
	)
	return t, nil
}

func (s *tournamentService) Get(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	return s.bracketService.GetFullTournamentData(ctx, tournamentID)
}

func (s *tournamentService) Start(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	var t *models.Tournament
	var created []models.Session
	err := s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		var err error
		t, err = s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if !t.Status.CanTransitionTo(models.StatusInProgress) {
			return fmt.Errorf("%w: cannot start a tournament in status %s", ErrInvalidStateTransition, t.Status)
		}

		count, err := s.participantRepo.Count(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if count < 2 {
			return fmt.Errorf("%w: at least 2 participants are required, found %d", ErrValidation, count)
		}
		if t.Format == models.FormatGroupAndKnockout && count < t.GroupCount*t.QualifiersPerGroup {
			return fmt.Errorf("%w: %d groups with %d qualifiers need at least %d participants, found %d",
				ErrValidation, t.GroupCount, t.QualifiersPerGroup, t.GroupCount*t.QualifiersPerGroup, count)
		}

		created, err = s.bracketService.GenerateAndSaveBracket(ctx, exec, t)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, t.ID, models.StatusDraft, models.StatusInProgress, now); err != nil {
			return err
		}
		t.Status = models.StatusInProgress
		t.StartDate = &now
		return nil
	})
	if err != nil {
		return nil, translateRepoError(err)
	}

	t.Sessions = created
	s.logger.InfoContext(ctx, "tournament started", slog.Int("tournament_id", t.ID), slog.Int("sessions", len(created)))
	s.notifier.BroadcastTournament(t.ID, EventTournamentStarted, t)
	return t, nil
}

// Complete freezes rankings and closes the tournament. Calling it on an
// already completed tournament returns the frozen state as a no-op.
func (s *tournamentService) Complete(ctx context.Context, tournamentID int) (*CompletionResult, error) {
	result := &CompletionResult{}
	err := s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		t, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		result.Tournament = t

		switch t.Status {
		case models.StatusCompleted, models.StatusRewardsDistributed:
			result.NoOp = true
			result.Rankings, err = s.rankingRepo.ListByTournament(ctx, exec, tournamentID)
			return err
		case models.StatusInProgress:
		default:
			return fmt.Errorf("%w: cannot complete a tournament in status %s", ErrInvalidStateTransition, t.Status)
		}

		pending, err := s.sessionRepo.CountPending(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return fmt.Errorf("%w: %d sessions are still pending", ErrInvalidStateTransition, pending)
		}
		if t.UsesKnockout() {
			if err := s.checkChampionDecided(ctx, exec, t); err != nil {
				return err
			}
		}

		result.Rankings, err = s.rankingService.RecalculateTx(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if err := s.rankingRepo.Freeze(ctx, exec, tournamentID); err != nil {
			return err
		}
		if result.Rankings, err = s.rankingRepo.ListByTournament(ctx, exec, tournamentID); err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID, models.StatusInProgress, models.StatusCompleted, now); err != nil {
			return err
		}
		t.Status = models.StatusCompleted
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, translateRankingError(err)
	}
	if result.NoOp {
		return result, nil
	}

	s.rankingService.Invalidate(ctx, tournamentID)
	result.ArchiveURL = s.archiveRankings(ctx, result)
	s.logger.InfoContext(ctx, "tournament completed", slog.Int("tournament_id", tournamentID), slog.Int("ranked", len(result.Rankings)))
	s.notifier.BroadcastTournament(tournamentID, EventTournamentCompleted, result)
	return result, nil
}

// checkChampionDecided rejects completion while the bracket has not reached a decided final.
func (s *tournamentService) checkChampionDecided(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	sessions, err := s.sessionRepo.ListByPhase(ctx, exec, t.ID, models.PhaseKnockout)
	if err != nil {
		return err
	}
	lastRound, inLast := 0, 0
	var final *models.Session
	for i := range sessions {
		switch {
		case sessions[i].Round > lastRound:
			lastRound, inLast, final = sessions[i].Round, 1, &sessions[i]
		case sessions[i].Round == lastRound:
			inLast++
		}
	}
	if inLast != 1 || final.WinnerID == nil {
		return fmt.Errorf("%w: the knockout bracket has not produced a champion yet", ErrInvalidStateTransition)
	}
	return nil
}

// archiveRankings uploads the frozen table; failures never fail completion.
func (s *tournamentService) archiveRankings(ctx context.Context, result *CompletionResult) string {
	if s.uploader == nil {
		return ""
	}
	uploaded, err := storage.UploadJSON(ctx, s.uploader, storage.FinalRankingsKey(result.Tournament.ID), result)
	if err != nil {
		s.logger.WarnContext(ctx, "final rankings archive upload failed",
			slog.Int("tournament_id", result.Tournament.ID),
			slog.Any("error", err),
		)
		return ""
	}
	return uploaded.Location
}

func (s *tournamentService) Cancel(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	var t *models.Tournament
	err := s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		var err error
		t, err = s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if !t.Status.CanTransitionTo(models.StatusCancelled) {
			return fmt.Errorf("%w: cannot cancel a tournament in status %s", ErrInvalidStateTransition, t.Status)
		}
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID, t.Status, models.StatusCancelled, s.now().UTC()); err != nil {
			return err
		}
		t.Status = models.StatusCancelled
		return nil
	})
	if err != nil {
		return nil, translateRepoError(err)
	}
	s.logger.InfoContext(ctx, "tournament cancelled", slog.Int("tournament_id", tournamentID))
	return t, nil
}

func (s *tournamentService) ListSessions(ctx context.Context, tournamentID int) ([]models.Session, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		return nil, translateRepoError(err)
	}
	sessions, err := s.sessionRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return sessions, nil
}

func (s *tournamentService) GetRankings(ctx context.Context, tournamentID int) ([]models.TournamentRanking, error) {
	return s.rankingService.Get(ctx, tournamentID)
}

func (s *tournamentService) RecalculateRankings(ctx context.Context, tournamentID int) ([]models.TournamentRanking, error) {
	return s.rankingService.Recalculate(ctx, tournamentID)
}
