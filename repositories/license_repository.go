package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-progression/models"
)

var ErrLicenseNotFound = errors.New("license not found")

type LicenseRepository interface {
	Get(ctx context.Context, exec SQLExecutor, userID int, spec models.Specialization) (*models.License, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, userID int, spec models.Specialization) (*models.License, error)
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.License, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.License, error)
	UpdateLevels(ctx context.Context, exec SQLExecutor, license *models.License) error
}

type postgresLicenseRepository struct {
	db *sql.DB
}

func NewPostgresLicenseRepository(db *sql.DB) LicenseRepository {
	return &postgresLicenseRepository{db: db}
}

func (r *postgresLicenseRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const licenseColumns = `
	id, user_id, specialization, current_level, max_achieved_level, is_active, payment_verified, activated_at, updated_at`

func (r *postgresLicenseRepository) scanLicense(row rowScanner) (*models.License, error) {
	var l models.License
	err := row.Scan(&l.ID, &l.UserID, &l.Specialization, &l.CurrentLevel, &l.MaxAchievedLevel,
		&l.IsActive, &l.PaymentVerified, &l.ActivatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLicenseNotFound
		}
		return nil, mapPQError(err, nil)
	}
	return &l, nil
}

func (r *postgresLicenseRepository) Get(ctx context.Context, exec SQLExecutor, userID int, spec models.Specialization) (*models.License, error) {
	query := `SELECT` + licenseColumns + ` FROM licenses WHERE user_id = $1 AND specialization = $2`
	return r.scanLicense(r.getExecutor(exec).QueryRowContext(ctx, query, userID, spec))
}

func (r *postgresLicenseRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, userID int, spec models.Specialization) (*models.License, error) {
	query := `SELECT` + licenseColumns + ` FROM licenses WHERE user_id = $1 AND specialization = $2 FOR UPDATE`
	return r.scanLicense(r.getExecutor(exec).QueryRowContext(ctx, query, userID, spec))
}

func (r *postgresLicenseRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.License, error) {
	query := `SELECT` + licenseColumns + ` FROM licenses WHERE id = $1`
	return r.scanLicense(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresLicenseRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.License, error) {
	query := `SELECT` + licenseColumns + ` FROM licenses WHERE id = $1 FOR UPDATE`
	return r.scanLicense(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresLicenseRepository) UpdateLevels(ctx context.Context, exec SQLExecutor, l *models.License) error {
	query := `
		UPDATE licenses SET current_level = $1, max_achieved_level = $2, updated_at = NOW()
		WHERE id = $3`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, l.CurrentLevel, l.MaxAchievedLevel, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update license %d: %w", l.ID, mapPQError(err, nil))
	}
	return checkAffectedRows(result, ErrLicenseNotFound)
}
