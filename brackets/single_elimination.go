package brackets

import (
	"context"
	"errors"

	"github.com/Dosada05/tournament-progression/models"
)

// SingleEliminationGenerator only lays out the opening round, padded with byes
// to a power of two; later rounds are created by knockout progression once
// their source round completes.
type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() BracketGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	if len(params.Participants) < 2 {
		return nil, errors.New("not enough participants to generate a single elimination bracket (minimum 2)")
	}

	pairs := OpeningRound(participantIDs(params.Participants))
	matches := make([]*BracketMatch, 0, len(pairs))
	for i, pair := range pairs {
		matches = append(matches, &BracketMatch{
			Round:          1,
			Phase:          models.PhaseKnockout,
			SeedSlot:       i + 1,
			ParticipantIDs: pair,
			IsBye:          len(pair) == 1,
		})
	}
	return matches, nil
}
