package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/tournament-progression/models"
)

var (
	ErrAssessmentNotFound     = errors.New("skill assessment not found")
	ErrActiveAssessmentExists = errors.New("an active assessment already exists for this skill")
	ErrAssessmentLicense      = errors.New("assessment license conflict or invalid")
)

type SkillAssessmentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, assessment *models.SkillAssessment) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.SkillAssessment, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.SkillAssessment, error)
	// FindActive returns the ASSESSED or VALIDATED assessment of the skill.
	FindActive(ctx context.Context, exec SQLExecutor, licenseID int, skillName string) (*models.SkillAssessment, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, assessment *models.SkillAssessment) error
	ListByLicense(ctx context.Context, exec SQLExecutor, licenseID int, activeOnly bool) ([]models.SkillAssessment, error)
}

type postgresSkillAssessmentRepository struct {
	db *sql.DB
}

func NewPostgresSkillAssessmentRepository(db *sql.DB) SkillAssessmentRepository {
	return &postgresSkillAssessmentRepository{db: db}
}

func (r *postgresSkillAssessmentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const assessmentColumns = `
	id, license_id, skill_name, skill_category, score, max_score, notes, status, requires_validation,
	assessed_by, assessed_at, validated_by, validated_at, archived_at, archived_reason, previous_assessment_id, created_at`

var assessmentConstraints = map[string]error{
	"uq_skill_assessments_active":       ErrActiveAssessmentExists,
	"skill_assessments_license_id_fkey": ErrAssessmentLicense,
}

func (r *postgresSkillAssessmentRepository) Create(ctx context.Context, exec SQLExecutor, a *models.SkillAssessment) error {
	query := `
		INSERT INTO skill_assessments (
			license_id, skill_name, skill_category, score, max_score, notes, status, requires_validation,
			assessed_by, assessed_at, previous_assessment_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		a.LicenseID, a.SkillName, a.SkillCategory, a.Score, a.MaxScore, a.Notes, a.Status, a.RequiresValidation,
		a.AssessedBy, a.AssessedAt, a.PreviousAssessmentID,
	).Scan(&a.ID, &a.CreatedAt)
	return mapPQError(err, assessmentConstraints)
}

func (r *postgresSkillAssessmentRepository) scanAssessment(row rowScanner) (*models.SkillAssessment, error) {
	var a models.SkillAssessment
	err := row.Scan(
		&a.ID, &a.LicenseID, &a.SkillName, &a.SkillCategory, &a.Score, &a.MaxScore, &a.Notes, &a.Status,
		&a.RequiresValidation, &a.AssessedBy, &a.AssessedAt, &a.ValidatedBy, &a.ValidatedAt, &a.ArchivedAt,
		&a.ArchivedReason, &a.PreviousAssessmentID, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssessmentNotFound
		}
		return nil, mapPQError(err, nil)
	}
	return &a, nil
}

func (r *postgresSkillAssessmentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.SkillAssessment, error) {
	query := `SELECT` + assessmentColumns + ` FROM skill_assessments WHERE id = $1`
	return r.scanAssessment(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresSkillAssessmentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.SkillAssessment, error) {
	query := `SELECT` + assessmentColumns + ` FROM skill_assessments WHERE id = $1 FOR UPDATE`
	return r.scanAssessment(r.getExecutor(exec).QueryRowContext(ctx, query, id))
}

func (r *postgresSkillAssessmentRepository) FindActive(ctx context.Context, exec SQLExecutor, licenseID int, skillName string) (*models.SkillAssessment, error) {
	query := `SELECT` + assessmentColumns + `
		FROM skill_assessments
		WHERE license_id = $1 AND skill_name = $2 AND status IN ('ASSESSED', 'VALIDATED')`
	return r.scanAssessment(r.getExecutor(exec).QueryRowContext(ctx, query, licenseID, skillName))
}

func (r *postgresSkillAssessmentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, a *models.SkillAssessment) error {
	query := `
		UPDATE skill_assessments SET
			status = $1, validated_by = $2, validated_at = $3, archived_at = $4, archived_reason = $5
		WHERE id = $6`
	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		a.Status, a.ValidatedBy, a.ValidatedAt, a.ArchivedAt, a.ArchivedReason, a.ID,
	)
	if err != nil {
		return mapPQError(err, assessmentConstraints)
	}
	return checkAffectedRows(result, ErrAssessmentNotFound)
}

func (r *postgresSkillAssessmentRepository) ListByLicense(ctx context.Context, exec SQLExecutor, licenseID int, activeOnly bool) ([]models.SkillAssessment, error) {
	query := `SELECT` + assessmentColumns + ` FROM skill_assessments WHERE license_id = $1`
	if activeOnly {
		query += ` AND status IN ('ASSESSED', 'VALIDATED')`
	}
	query += ` ORDER BY skill_name ASC, id ASC`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, licenseID)
	if err != nil {
		return nil, mapPQError(err, nil)
	}
	defer rows.Close()

	out := make([]models.SkillAssessment, 0)
	for rows.Next() {
		a, err := r.scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
