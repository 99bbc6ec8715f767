package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/tournament-progression/models"
)

var ErrRewardAlreadyDistributed = errors.New("reward already distributed for this user")

type RewardRepository interface {
	Exists(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (bool, error)
	// CreateRecord writes the idempotency fence; a second record for the pair fails with ErrRewardAlreadyDistributed.
	CreateRecord(ctx context.Context, exec SQLExecutor, record *models.RewardDistributionRecord) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.RewardDistributionRecord, error)
	CreditLedger(ctx context.Context, exec SQLExecutor, entry *models.CreditLedgerEntry) error
	Balance(ctx context.Context, exec SQLExecutor, userID int) (int64, error)
}

type postgresRewardRepository struct {
	db *sql.DB
}

func NewPostgresRewardRepository(db *sql.DB) RewardRepository {
	return &postgresRewardRepository{db: db}
}

func (r *postgresRewardRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

var rewardConstraints = map[string]error{
	"uq_reward_distributions_tournament_user": ErrRewardAlreadyDistributed,
}

func (r *postgresRewardRepository) Exists(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (bool, error) {
	var exists bool
	err := r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reward_distributions WHERE tournament_id = $1 AND user_id = $2)`,
		tournamentID, userID,
	).Scan(&exists)
	return exists, mapPQError(err, nil)
}

func (r *postgresRewardRepository) CreateRecord(ctx context.Context, exec SQLExecutor, rec *models.RewardDistributionRecord) error {
	query := `
		INSERT INTO reward_distributions (tournament_id, user_id, rank, tier, credits, experience, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, distributed_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		rec.TournamentID, rec.UserID, rec.Rank, rec.Tier, rec.Credits, rec.Experience, rec.RunID,
	).Scan(&rec.ID, &rec.DistributedAt)
	return mapPQError(err, rewardConstraints)
}

func (r *postgresRewardRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.RewardDistributionRecord, error) {
	query := `
		SELECT id, tournament_id, user_id, rank, tier, credits, experience, run_id, distributed_at
		FROM reward_distributions
		WHERE tournament_id = $1
		ORDER BY rank ASC, user_id ASC`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, mapPQError(err, nil)
	}
	defer rows.Close()

	out := make([]models.RewardDistributionRecord, 0)
	for rows.Next() {
		var rec models.RewardDistributionRecord
		if err := rows.Scan(&rec.ID, &rec.TournamentID, &rec.UserID, &rec.Rank, &rec.Tier,
			&rec.Credits, &rec.Experience, &rec.RunID, &rec.DistributedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *postgresRewardRepository) CreditLedger(ctx context.Context, exec SQLExecutor, e *models.CreditLedgerEntry) error {
	query := `
		INSERT INTO credit_ledger (id, user_id, amount, reason, tournament_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		e.ID, e.UserID, e.Amount, e.Reason, e.TournamentID,
	).Scan(&e.CreatedAt)
	return mapPQError(err, nil)
}

func (r *postgresRewardRepository) Balance(ctx context.Context, exec SQLExecutor, userID int) (int64, error) {
	var balance int64
	err := r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_ledger WHERE user_id = $1`, userID,
	).Scan(&balance)
	return balance, mapPQError(err, nil)
}
