package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-progression/brackets"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
	"golang.org/x/sync/errgroup"
)

// BracketService lays out the opening fixtures of a tournament and loads the
// tournament together with its bracket.
type BracketService interface {
	// GenerateAndSaveBracket must run inside the caller's transaction.
	GenerateAndSaveBracket(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) ([]models.Session, error)
	GetFullTournamentData(ctx context.Context, tournamentID int) (*models.Tournament, error)
}

type bracketService struct {
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	sessionRepo     repositories.SessionRepository
	schedule        ScheduleConfig
	logger          *slog.Logger
	now             func() time.Time
}

func NewBracketService(
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	sessionRepo repositories.SessionRepository,
	schedule ScheduleConfig,
	logger *slog.Logger,
) BracketService {
	return &bracketService{
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		sessionRepo:     sessionRepo,
		schedule:        schedule,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *bracketService) GenerateAndSaveBracket(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) ([]models.Session, error) {
	if exec == nil {
		return nil, fmt.Errorf("%w: bracket generation requires a transaction", ErrDatabase)
	}

	participants, err := s.participantRepo.ListByTournament(ctx, exec, tournament.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants for tournament %d: %w", tournament.ID, err)
	}

	generator, err := brackets.GeneratorFor(tournament)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	matches, err := generator.GenerateBracket(ctx, brackets.GenerateBracketParams{
		Tournament:   tournament,
		Participants: participants,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	s.logger.InfoContext(ctx, "generating bracket",
		slog.Int("tournament_id", tournament.ID),
		slog.String("generator", generator.GetName()),
		slog.Int("participants", len(participants)),
		slog.Int("sessions", len(matches)),
	)

	labelled := make(map[int]bool)
	for _, m := range matches {
		if m.GroupLabel == nil {
			continue
		}
		for _, pid := range m.ParticipantIDs {
			if labelled[pid] {
				continue
			}
			if err := s.participantRepo.SetGroupLabel(ctx, exec, tournament.ID, pid, *m.GroupLabel); err != nil {
				return nil, fmt.Errorf("failed to assign group %s to participant %d: %w", *m.GroupLabel, pid, err)
			}
			labelled[pid] = true
		}
	}

	now := s.now().UTC()
	sessions := make([]models.Session, 0, len(matches))
	for _, m := range matches {
		session := &models.Session{
			TournamentID:   tournament.ID,
			Round:          m.Round,
			Phase:          m.Phase,
			SeedSlot:       m.SeedSlot,
			GroupLabel:     m.GroupLabel,
			ParticipantIDs: m.ParticipantIDs,
			IsBye:          m.IsBye,
			Status:         models.SessionScheduled,
		}
		if m.IsBye {
			winner := m.ParticipantIDs[0]
			session.WinnerID = &winner
			session.Status = models.SessionCompleted
			session.FinalizedAt = &now
		} else {
			startsAt := now.Add(time.Duration(m.Round-1) * s.schedule.RoundGap)
			endsAt := startsAt.Add(s.schedule.SessionDuration)
			session.StartsAt, session.EndsAt = &startsAt, &endsAt
		}
		if err := s.sessionRepo.Create(ctx, exec, session); err != nil {
			return nil, fmt.Errorf("failed to create round %d session %d (group %q): %w", m.Round, m.SeedSlot, derefString(m.GroupLabel), err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

func (s *bracketService) GetFullTournamentData(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, translateRepoError(err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		participants, err := s.participantRepo.ListByTournament(gCtx, nil, tournamentID)
		if err != nil {
			return fmt.Errorf("failed to fetch participants: %w", err)
		}
		tournament.Participants = participants
		return nil
	})

	g.Go(func() error {
		sessions, err := s.sessionRepo.ListByTournament(gCtx, nil, tournamentID)
		if err != nil {
			return fmt.Errorf("failed to fetch sessions: %w", err)
		}
		tournament.Sessions = sessions
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "parallel tournament load failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return nil, translateRepoError(err)
	}
	return tournament, nil
}
