package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-progression/models"
)

var (
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentStatusConflict = errors.New("tournament status changed concurrently")
	ErrTournamentInvalidOrg     = errors.New("invalid organizer reference")
)

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	ListByStatus(ctx context.Context, exec SQLExecutor, status models.TournamentStatus) ([]*models.Tournament, error)
	// UpdateStatus is a compare-and-set on the current status.
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus, at time.Time) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, organizer_id, format, bracket, scoring_type, ranking_direction, specialization,
	status, max_participants, number_of_rounds, third_place_match, group_count, qualifiers_per_group,
	start_date, completed_at, rewards_distributed_at, created_at`

var tournamentConstraints = map[string]error{
	"tournaments_organizer_id_fkey": ErrTournamentInvalidOrg,
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournaments (
			name, organizer_id, format, bracket, scoring_type, ranking_direction, specialization,
			status, max_participants, number_of_rounds, third_place_match, group_count, qualifiers_per_group
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		t.Name, t.OrganizerID, t.Format, t.Bracket, t.ScoringType, t.RankingDirection, t.Specialization,
		t.Status, t.MaxParticipants, t.NumberOfRounds, t.ThirdPlaceMatch, t.GroupCount, t.QualifiersPerGroup,
	).Scan(&t.ID, &t.CreatedAt)

	return mapPQError(err, tournamentConstraints)
}

func (r *postgresTournamentRepository) scanTournament(row rowScanner) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID, &t.Name, &t.OrganizerID, &t.Format, &t.Bracket, &t.ScoringType, &t.RankingDirection, &t.Specialization,
		&t.Status, &t.MaxParticipants, &t.NumberOfRounds, &t.ThirdPlaceMatch, &t.GroupCount, &t.QualifiersPerGroup,
		&t.StartDate, &t.CompletedAt, &t.RewardsDistributedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, mapPQError(err, nil)
	}
	return t, nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	return r.scanTournament(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`
	return r.scanTournament(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) ListByStatus(ctx context.Context, exec SQLExecutor, status models.TournamentStatus) ([]*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE status = $1 ORDER BY id`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments by status %s: %w", status, err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		t, err := r.scanTournament(rows)
		if err != nil {
			return nil, err
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus, at time.Time) error {
	query := `
		UPDATE tournaments SET
			status = $1::text,
			start_date = CASE WHEN $1::text = 'IN_PROGRESS' THEN COALESCE(start_date, $4) ELSE start_date END,
			completed_at = CASE WHEN $1::text = 'COMPLETED' THEN $4 ELSE completed_at END,
			rewards_distributed_at = CASE WHEN $1::text = 'REWARDS_DISTRIBUTED' THEN $4 ELSE rewards_distributed_at END
		WHERE id = $2 AND status = $3`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, to, id, from, at)
	if err != nil {
		return mapPQError(err, nil)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}
