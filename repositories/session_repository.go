package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/lib/pq"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrDuplicateSessionSlot = errors.New("session already exists for this slot")
	ErrSessionTournament    = errors.New("session tournament conflict or invalid")
)

type SessionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, session *models.Session) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Session, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Session, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Session, error)
	ListByPhase(ctx context.Context, exec SQLExecutor, tournamentID int, phase models.SessionPhase) ([]models.Session, error)
	ListByRound(ctx context.Context, exec SQLExecutor, tournamentID, round int, phase models.SessionPhase) ([]models.Session, error)
	CountByRound(ctx context.Context, exec SQLExecutor, tournamentID, round int, phase models.SessionPhase) (total, completed int, err error)
	CountByPhase(ctx context.Context, exec SQLExecutor, tournamentID int, phase models.SessionPhase) (total, completed int, err error)
	CountPending(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	UpdateResults(ctx context.Context, exec SQLExecutor, session *models.Session) error
}

type postgresSessionRepository struct {
	db *sql.DB
}

func NewPostgresSessionRepository(db *sql.DB) SessionRepository {
	return &postgresSessionRepository{db: db}
}

func (r *postgresSessionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const sessionColumns = `
	id, tournament_id, round, phase, seed_slot, group_label, participant_ids, results,
	rounds_recorded, winner_id, is_bye, status, starts_at, ends_at, finalized_at, created_at`

var sessionConstraints = map[string]error{
	"uq_sessions_slot":            ErrDuplicateSessionSlot,
	"sessions_tournament_id_fkey": ErrSessionTournament,
}

func (r *postgresSessionRepository) Create(ctx context.Context, exec SQLExecutor, s *models.Session) error {
	results, err := encodeResults(s.Results)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO sessions (
			tournament_id, round, phase, seed_slot, group_label, participant_ids, results,
			rounds_recorded, winner_id, is_bye, status, starts_at, ends_at, finalized_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at`

	err = r.getExecutor(exec).QueryRowContext(ctx, query,
		s.TournamentID, s.Round, s.Phase, s.SeedSlot, s.GroupLabel, toInt64s(s.ParticipantIDs), results,
		s.RoundsRecorded, s.WinnerID, s.IsBye, s.Status, s.StartsAt, s.EndsAt, s.FinalizedAt,
	).Scan(&s.ID, &s.CreatedAt)
	return mapPQError(err, sessionConstraints)
}

func (r *postgresSessionRepository) scanSession(row rowScanner) (*models.Session, error) {
	var (
		s       models.Session
		ids     pq.Int64Array
		results []byte
	)
	err := row.Scan(
		&s.ID, &s.TournamentID, &s.Round, &s.Phase, &s.SeedSlot, &s.GroupLabel, &ids, &results,
		&s.RoundsRecorded, &s.WinnerID, &s.IsBye, &s.Status, &s.StartsAt, &s.EndsAt, &s.FinalizedAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, mapPQError(err, nil)
	}
	s.ParticipantIDs = fromInt64s(ids)
	s.Results = make([]models.ResultEntry, 0)
	if len(results) > 0 {
		if err := json.Unmarshal(results, &s.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results of session %d: %w", s.ID, err)
		}
	}
	return &s, nil
}

func (r *postgresSessionRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]models.Session, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapPQError(err, nil)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *postgresSessionRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Session, error) {
	query := `SELECT` + sessionColumns + ` FROM sessions WHERE id = $1`
	return r.scanSession(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresSessionRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Session, error) {
	query := `SELECT` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`
	return r.scanSession(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresSessionRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Session, error) {
	query := `SELECT` + sessionColumns + ` FROM sessions WHERE tournament_id = $1 ORDER BY round, phase, seed_slot`
	return r.list(ctx, exec, query, tournamentID)
}

func (r *postgresSessionRepository) ListByPhase(ctx context.Context, exec SQLExecutor, tournamentID int, phase models.SessionPhase) ([]models.Session, error) {
	query := `SELECT` + sessionColumns + ` FROM sessions WHERE tournament_id = $1 AND phase = $2 ORDER BY round, seed_slot`
	return r.list(ctx, exec, query, tournamentID, phase)
}

func (r *postgresSessionRepository) ListByRound(ctx context.Context, exec SQLExecutor, tournamentID, round int, phase models.SessionPhase) ([]models.Session, error) {
	query := `SELECT` + sessionColumns + ` FROM sessions WHERE tournament_id = $1 AND round = $2 AND phase = $3 ORDER BY seed_slot`
	return r.list(ctx, exec, query, tournamentID, round, phase)
}

func (r *postgresSessionRepository) CountByRound(ctx context.Context, exec SQLExecutor, tournamentID, round int, phase models.SessionPhase) (int, int, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'COMPLETED')
		FROM sessions
		WHERE tournament_id = $1 AND round = $2 AND phase = $3`
	var total, completed int
	err := r.getExecutor(exec).QueryRowContext(ctx, query, tournamentID, round, phase).Scan(&total, &completed)
	return total, completed, mapPQError(err, nil)
}

func (r *postgresSessionRepository) CountByPhase(ctx context.Context, exec SQLExecutor, tournamentID int, phase models.SessionPhase) (int, int, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'COMPLETED')
		FROM sessions
		WHERE tournament_id = $1 AND phase = $2`
	var total, completed int
	err := r.getExecutor(exec).QueryRowContext(ctx, query, tournamentID, phase).Scan(&total, &completed)
	return total, completed, mapPQError(err, nil)
}

func (r *postgresSessionRepository) CountPending(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE tournament_id = $1 AND status IN ('SCHEDULED', 'IN_PROGRESS')`
	var n int
	err := r.getExecutor(exec).QueryRowContext(ctx, query, tournamentID).Scan(&n)
	return n, mapPQError(err, nil)
}

func (r *postgresSessionRepository) UpdateResults(ctx context.Context, exec SQLExecutor, s *models.Session) error {
	results, err := encodeResults(s.Results)
	if err != nil {
		return err
	}
	query := `
		UPDATE sessions SET
			results = $1, rounds_recorded = $2, winner_id = $3, status = $4, finalized_at = $5
		WHERE id = $6`
	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		results, s.RoundsRecorded, s.WinnerID, s.Status, s.FinalizedAt, s.ID,
	)
	if err != nil {
		return mapPQError(err, nil)
	}
	return checkAffectedRows(result, ErrSessionNotFound)
}

func encodeResults(results []models.ResultEntry) ([]byte, error) {
	if results == nil {
		results = []models.ResultEntry{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session results: %w", err)
	}
	return raw, nil
}
