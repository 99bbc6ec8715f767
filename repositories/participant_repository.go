package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-progression/models"
)

var (
	ErrParticipantAlreadyRegistered = errors.New("user is already registered for this tournament")
	ErrParticipantTournamentInvalid = errors.New("participant tournament reference invalid")
)

type ParticipantRepository interface {
	// Add assigns the next free seed.
	Add(ctx context.Context, exec SQLExecutor, participant *models.TournamentParticipant) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.TournamentParticipant, error)
	Count(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	SetGroupLabel(ctx context.Context, exec SQLExecutor, tournamentID, userID int, label string) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

var participantConstraints = map[string]error{
	"tournament_participants_pkey":               ErrParticipantAlreadyRegistered,
	"tournament_participants_tournament_id_fkey": ErrParticipantTournamentInvalid,
}

func (r *postgresParticipantRepository) Add(ctx context.Context, exec SQLExecutor, p *models.TournamentParticipant) error {
	query := `
		INSERT INTO tournament_participants (tournament_id, user_id, seed)
		SELECT $1, $2, COALESCE(MAX(seed), 0) + 1 FROM tournament_participants WHERE tournament_id = $1
		RETURNING seed, created_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query, p.TournamentID, p.UserID).Scan(&p.Seed, &p.CreatedAt)
	return mapPQError(err, participantConstraints)
}

func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.TournamentParticipant, error) {
	query := `
		SELECT tournament_id, user_id, seed, group_label, created_at
		FROM tournament_participants
		WHERE tournament_id = $1
		ORDER BY seed ASC`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]models.TournamentParticipant, 0)
	for rows.Next() {
		var p models.TournamentParticipant
		if err := rows.Scan(&p.TournamentID, &p.UserID, &p.Seed, &p.GroupLabel, &p.CreatedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *postgresParticipantRepository) Count(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	var n int
	err := r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tournament_participants WHERE tournament_id = $1`, tournamentID,
	).Scan(&n)
	return n, err
}

func (r *postgresParticipantRepository) SetGroupLabel(ctx context.Context, exec SQLExecutor, tournamentID, userID int, label string) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE tournament_participants SET group_label = $1 WHERE tournament_id = $2 AND user_id = $3`,
		label, tournamentID, userID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantTournamentInvalid)
}
