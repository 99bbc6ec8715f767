package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
)

// ParticipantService инкапсулирует регистрацию участников турниров.
type ParticipantService struct {
	txm            repositories.TxManager
	repo           repositories.ParticipantRepository
	userRepo       repositories.UserRepository
	tournamentRepo repositories.TournamentRepository
	logger         *slog.Logger
}

func NewParticipantService(
	txm repositories.TxManager,
	repo repositories.ParticipantRepository,
	userRepo repositories.UserRepository,
	tournamentRepo repositories.TournamentRepository,
	logger *slog.Logger,
) *ParticipantService {
	return &ParticipantService{
		txm:            txm,
		repo:           repo,
		userRepo:       userRepo,
		tournamentRepo: tournamentRepo,
		logger:         logger,
	}
}

// RegisterUserAsParticipant добавляет пользователя в турнир со следующим свободным посевом.
// Регистрация открыта только пока турнир в статусе DRAFT.
func (s *ParticipantService) RegisterUserAsParticipant(ctx context.Context, userID, tournamentID int) (*models.TournamentParticipant, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return nil, translateRepoError(err)
	}

	participant := &models.TournamentParticipant{TournamentID: tournamentID, UserID: userID}
	err := s.txm.WithinTx(ctx, func(ctx context.Context, exec repositories.SQLExecutor) error {
		// Блокировка турнира сериализует проверку вместимости.
		t, err := s.tournamentRepo.GetForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != models.StatusDraft {
			return fmt.Errorf("%w: registration is closed, tournament is %s", ErrInvalidStateTransition, t.Status)
		}
		count, err := s.repo.Count(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if count >= t.MaxParticipants {
			return fmt.Errorf("%w: tournament is full (%d participants)", ErrValidation, t.MaxParticipants)
		}
		return s.repo.Add(ctx, exec, participant)
	})
	if err != nil {
		return nil, translateRepoError(err)
	}

	s.logger.InfoContext(ctx, "participant registered",
		slog.Int("tournament_id", tournamentID),
		slog.Int("user_id", userID),
		slog.Int("seed", participant.Seed),
	)
	return participant, nil
}

// ListParticipantsByTournament возвращает участников в порядке посева.
func (s *ParticipantService) ListParticipantsByTournament(ctx context.Context, tournamentID int) ([]models.TournamentParticipant, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID); err != nil {
		return nil, translateRepoError(err)
	}
	participants, err := s.repo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return participants, nil
}
