// Package rankings turns session results into ordered standings. Every
// function here is pure: no I/O, no mutation of its inputs.
package rankings

import (
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-progression/models"
)

var (
	ErrUnsupportedScoringType = errors.New("unsupported scoring type")
	ErrUnsupportedFormat      = errors.New("unsupported tournament format")
	ErrDirectionRequired      = errors.New("ranking direction is required for rounds-based scoring")
	ErrNotEnoughQualifiers    = errors.New("group has fewer finishers than qualifiers per group")
	ErrOddGroupCount          = errors.New("knockout seeding requires an even number of groups")
)

const (
	PointsWin  = 3
	PointsDraw = 1
	PointsLoss = 0
)

type Config struct {
	Format models.TournamentFormat
	// Bracket only matters for head-to-head; empty means a points table.
	Bracket   models.BracketType
	Scoring   models.ScoringType
	Direction models.RankingDirection
}

func ConfigFor(t *models.Tournament) Config {
	cfg := Config{
		Format:    t.Format,
		Scoring:   t.Scoring(),
		Direction: t.Direction(),
	}
	if t.Bracket != nil {
		cfg.Bracket = *t.Bracket
	}
	return cfg
}

// Calculate dispatches on the tournament format. Returned rows carry strict
// sequential ranks starting at 1; TournamentID is left for the caller to set.
func Calculate(cfg Config, sessions []models.Session) ([]models.TournamentRanking, error) {
	switch cfg.Format {
	case models.FormatHeadToHead:
		if cfg.Bracket == models.BracketSingleElimination {
			return SingleElimination(sessions), nil
		}
		return HeadToHead(sessions), nil
	case models.FormatIndividualRanking:
		return Individual(cfg.Scoring, cfg.Direction, sessions)
	case models.FormatGroupAndKnockout:
		return GroupAndKnockout(sessions), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, cfg.Format)
}

func assignRanks(rows []models.TournamentRanking) {
	for i := range rows {
		rows[i].Rank = i + 1
	}
}
