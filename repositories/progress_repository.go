package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/tournament-progression/models"
)

var ErrProgressNotFound = errors.New("progress not found")

type ProgressRepository interface {
	Get(ctx context.Context, exec SQLExecutor, userID int, spec models.Specialization) (*models.Progress, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, exec SQLExecutor, userID int, spec models.Specialization) (*models.Progress, error)
	Update(ctx context.Context, exec SQLExecutor, progress *models.Progress) error
	// ListLicensedPairs returns every (user, specialization) that has both a progress and a license row.
	ListLicensedPairs(ctx context.Context, exec SQLExecutor) ([]models.UserSpecialization, error)
}

type postgresProgressRepository struct {
	db *sql.DB
}

func NewPostgresProgressRepository(db *sql.DB) ProgressRepository {
	return &postgresProgressRepository{db: db}
}

func (r *postgresProgressRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const progressSelect = `
	SELECT id, user_id, specialization, current_level, experience, sessions_completed, practice_count, updated_at
	FROM progress
	WHERE user_id = $1 AND specialization = $2`

func (r *postgresProgressRepository) scanProgress(row rowScanner) (*models.Progress, error) {
	var p models.Progress
	err := row.Scan(&p.ID, &p.UserID, &p.Specialization, &p.CurrentLevel, &p.Experience,
		&p.SessionsCompleted, &p.PracticeCount, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProgressNotFound
		}
		return nil, mapPQError(err, nil)
	}
	return &p, nil
}

func (r *postgresProgressRepository) Get(ctx context.Context, exec SQLExecutor, userID int, spec models.Specialization) (*models.Progress, error) {
	return r.scanProgress(r.getExecutor(exec).QueryRowContext(ctx, progressSelect, userID, spec))
}

func (r *postgresProgressRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, userID int, spec models.Specialization) (*models.Progress, error) {
	return r.scanProgress(r.getExecutor(exec).QueryRowContext(ctx, progressSelect+` FOR UPDATE`, userID, spec))
}

func (r *postgresProgressRepository) Update(ctx context.Context, exec SQLExecutor, p *models.Progress) error {
	query := `
		UPDATE progress SET
			current_level = $1, experience = $2, sessions_completed = $3, practice_count = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		p.CurrentLevel, p.Experience, p.SessionsCompleted, p.PracticeCount, p.ID,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrProgressNotFound
	}
	return mapPQError(err, nil)
}

func (r *postgresProgressRepository) ListLicensedPairs(ctx context.Context, exec SQLExecutor) ([]models.UserSpecialization, error) {
	query := `
		SELECT p.user_id, p.specialization
		FROM progress p
		JOIN licenses l ON l.user_id = p.user_id AND l.specialization = p.specialization
		ORDER BY p.user_id, p.specialization`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query)
	if err != nil {
		return nil, mapPQError(err, nil)
	}
	defer rows.Close()

	pairs := make([]models.UserSpecialization, 0)
	for rows.Next() {
		var pair models.UserSpecialization
		if err := rows.Scan(&pair.UserID, &pair.Specialization); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}
