package repositories

import (
	"context"
	"database/sql"

	"github.com/Dosada05/tournament-progression/models"
)

// ProgressionRepository is append-only.
type ProgressionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, progression *models.LicenseProgression) error
	ListByLicense(ctx context.Context, exec SQLExecutor, licenseID int) ([]models.LicenseProgression, error)
}

type postgresProgressionRepository struct {
	db *sql.DB
}

func NewPostgresProgressionRepository(db *sql.DB) ProgressionRepository {
	return &postgresProgressionRepository{db: db}
}

func (r *postgresProgressionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresProgressionRepository) Create(ctx context.Context, exec SQLExecutor, p *models.LicenseProgression) error {
	query := `
		INSERT INTO license_progressions
			(license_id, user_id, specialization, from_level, to_level, experience_delta, source, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		p.LicenseID, p.UserID, p.Specialization, p.FromLevel, p.ToLevel, p.ExperienceDelta, p.Source, p.Reason,
	).Scan(&p.ID, &p.CreatedAt)
	return mapPQError(err, nil)
}

func (r *postgresProgressionRepository) ListByLicense(ctx context.Context, exec SQLExecutor, licenseID int) ([]models.LicenseProgression, error) {
	query := `
		SELECT id, license_id, user_id, specialization, from_level, to_level, experience_delta, source, reason, created_at
		FROM license_progressions
		WHERE license_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, licenseID)
	if err != nil {
		return nil, mapPQError(err, nil)
	}
	defer rows.Close()

	out := make([]models.LicenseProgression, 0)
	for rows.Next() {
		var p models.LicenseProgression
		if err := rows.Scan(&p.ID, &p.LicenseID, &p.UserID, &p.Specialization, &p.FromLevel, &p.ToLevel,
			&p.ExperienceDelta, &p.Source, &p.Reason, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
