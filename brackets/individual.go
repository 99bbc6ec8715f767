package brackets

import (
	"context"
	"errors"

	"github.com/Dosada05/tournament-progression/models"
)

// IndividualGenerator puts every participant into one ranking session; the
// session collects one flat result set per round.
type IndividualGenerator struct{}

func NewIndividualGenerator() BracketGenerator {
	return &IndividualGenerator{}
}

func (g *IndividualGenerator) GetName() string {
	return "Individual"
}

func (g *IndividualGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	if len(params.Participants) < 2 {
		return nil, errors.New("not enough participants for an individual ranking session (minimum 2)")
	}
	return []*BracketMatch{{
		Round:          1,
		Phase:          models.PhaseGroup,
		SeedSlot:       1,
		ParticipantIDs: participantIDs(params.Participants),
	}}, nil
}
