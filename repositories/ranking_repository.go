package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-progression/models"
)

var (
	ErrRankingsFrozen            = errors.New("tournament rankings are frozen")
	ErrRankingParticipantInvalid = errors.New("ranking participant conflict or invalid")
)

type RankingRepository interface {
	// Replace swaps the full ranking table of a tournament.
	Replace(ctx context.Context, exec SQLExecutor, tournamentID int, rankings []models.TournamentRanking) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.TournamentRanking, error)
	Freeze(ctx context.Context, exec SQLExecutor, tournamentID int) error
	IsFrozen(ctx context.Context, exec SQLExecutor, tournamentID int) (bool, error)
}

type postgresRankingRepository struct {
	db *sql.DB
}

func NewPostgresRankingRepository(db *sql.DB) RankingRepository {
	return &postgresRankingRepository{db: db}
}

func (r *postgresRankingRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

var rankingConstraints = map[string]error{
	"uq_rankings_participant": ErrRankingParticipantInvalid,
}

func (r *postgresRankingRepository) IsFrozen(ctx context.Context, exec SQLExecutor, tournamentID int) (bool, error) {
	var frozen bool
	err := r.getExecutor(exec).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tournament_rankings WHERE tournament_id = $1 AND frozen)`, tournamentID,
	).Scan(&frozen)
	return frozen, mapPQError(err, nil)
}

func (r *postgresRankingRepository) Replace(ctx context.Context, exec SQLExecutor, tournamentID int, rankings []models.TournamentRanking) error {
	executor := r.getExecutor(exec)

	frozen, err := r.IsFrozen(ctx, executor, tournamentID)
	if err != nil {
		return err
	}
	if frozen {
		return ErrRankingsFrozen
	}

	if _, err := executor.ExecContext(ctx, `DELETE FROM tournament_rankings WHERE tournament_id = $1`, tournamentID); err != nil {
		return mapPQError(err, nil)
	}

	query := `
		INSERT INTO tournament_rankings (
			tournament_id, participant_id, rank, points, games_played, wins, draws, losses,
			score_for, score_against, score_difference, value, rounds_counted, group_label
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	for _, rk := range rankings {
		_, err := executor.ExecContext(ctx, query,
			tournamentID, rk.ParticipantID, rk.Rank, rk.Points, rk.GamesPlayed, rk.Wins, rk.Draws, rk.Losses,
			rk.ScoreFor, rk.ScoreAgainst, rk.ScoreDiff, rk.Value, rk.RoundsCounted, rk.GroupLabel,
		)
		if err != nil {
			return fmt.Errorf("failed to store ranking for participant %d: %w", rk.ParticipantID, mapPQError(err, rankingConstraints))
		}
	}
	return nil
}

func (r *postgresRankingRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.TournamentRanking, error) {
	query := `
		SELECT id, tournament_id, participant_id, rank, points, games_played, wins, draws, losses,
		       score_for, score_against, score_difference, value, rounds_counted, group_label, frozen, updated_at
		FROM tournament_rankings
		WHERE tournament_id = $1
		ORDER BY rank ASC, participant_id ASC`
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, mapPQError(err, nil)
	}
	defer rows.Close()

	rankings := make([]models.TournamentRanking, 0)
	for rows.Next() {
		var rk models.TournamentRanking
		if err := rows.Scan(
			&rk.ID, &rk.TournamentID, &rk.ParticipantID, &rk.Rank, &rk.Points, &rk.GamesPlayed,
			&rk.Wins, &rk.Draws, &rk.Losses, &rk.ScoreFor, &rk.ScoreAgainst, &rk.ScoreDiff,
			&rk.Value, &rk.RoundsCounted, &rk.GroupLabel, &rk.Frozen, &rk.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rankings = append(rankings, rk)
	}
	return rankings, rows.Err()
}

func (r *postgresRankingRepository) Freeze(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	_, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE tournament_rankings SET frozen = TRUE, updated_at = NOW() WHERE tournament_id = $1`, tournamentID,
	)
	return mapPQError(err, nil)
}
