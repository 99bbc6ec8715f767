package rankings

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Dosada05/tournament-progression/models"
)

type aggregation int

const (
	aggregateSum aggregation = iota
	aggregateBest
)

type scoringRule struct {
	aggregate aggregation
	direction models.RankingDirection
	usesRank  bool
}

func ruleFor(scoring models.ScoringType, direction models.RankingDirection) (scoringRule, error) {
	switch scoring {
	case models.ScoringTimeBased:
		return scoringRule{aggregate: aggregateSum, direction: models.DirectionAsc}, nil
	case models.ScoringScoreBased:
		return scoringRule{aggregate: aggregateSum, direction: models.DirectionDesc}, nil
	case models.ScoringDistanceBased:
		return scoringRule{aggregate: aggregateBest, direction: models.DirectionDesc}, nil
	case models.ScoringPlacement:
		return scoringRule{aggregate: aggregateSum, direction: models.DirectionAsc, usesRank: true}, nil
	case models.ScoringRoundsBased:
		if !direction.Valid() {
			return scoringRule{}, ErrDirectionRequired
		}
		return scoringRule{aggregate: aggregateBest, direction: direction}, nil
	}
	return scoringRule{}, fmt.Errorf("%w: %q", ErrUnsupportedScoringType, scoring)
}

// RequiresRank reports whether submissions for the scoring type carry a rank
// instead of a score.
func RequiresRank(scoring models.ScoringType) (bool, error) {
	rule, err := ruleFor(scoring, models.DirectionDesc)
	if err != nil {
		return false, err
	}
	return rule.usesRank, nil
}

func (r scoringRule) value(e models.ResultEntry) (float64, bool) {
	if r.usesRank {
		if e.Rank == nil {
			return 0, false
		}
		return float64(*e.Rank), true
	}
	if e.Score == nil {
		return 0, false
	}
	return *e.Score, true
}

func (r scoringRule) better(a, b float64) bool {
	if r.direction == models.DirectionAsc {
		return a < b
	}
	return a > b
}

func (r scoringRule) fold(values []float64) float64 {
	result := values[0]
	for _, v := range values[1:] {
		switch r.aggregate {
		case aggregateSum:
			result += v
		case aggregateBest:
			if r.better(v, result) {
				result = v
			}
		}
	}
	return result
}

// Individual aggregates per-round entries of every non-cancelled session.
// Summed aggregations rank participants with more recorded rounds first.
func Individual(scoring models.ScoringType, direction models.RankingDirection, sessions []models.Session) ([]models.TournamentRanking, error) {
	rule, err := ruleFor(scoring, direction)
	if err != nil {
		return nil, err
	}

	values := make(map[int][]float64)
	for _, s := range sessions {
		if s.Status == models.SessionCancelled {
			continue
		}
		for _, p := range s.ParticipantIDs {
			if _, ok := values[p]; !ok {
				values[p] = nil
			}
		}
		for _, e := range s.Results {
			v, ok := rule.value(e)
			if !ok {
				continue
			}
			values[e.ParticipantID] = append(values[e.ParticipantID], v)
		}
	}

	rows := make([]models.TournamentRanking, 0, len(values))
	for participantID, vals := range values {
		row := models.TournamentRanking{
			ParticipantID: participantID,
			RoundsCounted: len(vals),
			GamesPlayed:   len(vals),
		}
		if len(vals) > 0 {
			agg := rule.fold(vals)
			row.Value = &agg
		}
		rows = append(rows, row)
	}

	slices.SortFunc(rows, func(a, b models.TournamentRanking) int {
		if (a.Value == nil) != (b.Value == nil) {
			if a.Value == nil {
				return 1
			}
			return -1
		}
		if rule.aggregate == aggregateSum {
			if c := cmp.Compare(b.RoundsCounted, a.RoundsCounted); c != 0 {
				return c
			}
		}
		if a.Value != nil && *a.Value != *b.Value {
			if rule.better(*a.Value, *b.Value) {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
	assignRanks(rows)
	return rows, nil
}
