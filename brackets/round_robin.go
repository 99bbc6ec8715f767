package brackets

import (
	"context"
	"fmt"

	"github.com/Dosada05/tournament-progression/models"
)

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() BracketGenerator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) GetName() string {
	return "RoundRobin"
}

// GenerateBracket schedules every pairing once, spread over game days so that
// nobody plays twice on the same day.
func (g *RoundRobinGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	if len(params.Participants) < 2 {
		return nil, fmt.Errorf("RoundRobinGenerator: not enough participants (found %d, min 2 required)", len(params.Participants))
	}
	matches := roundRobin(participantIDs(params.Participants), nil)
	numberSlots(matches)
	return matches, nil
}

// roundRobin uses the circle method: the first entry stays fixed while the
// rest rotate. A zero id pads odd counts and marks the resting participant.
func roundRobin(ids []int, group *string) []*BracketMatch {
	ring := append([]int(nil), ids...)
	if len(ring)%2 != 0 {
		ring = append(ring, 0)
	}
	n := len(ring)
	matches := make([]*BracketMatch, 0, n*(n-1)/2)

	for round := 1; round < n; round++ {
		for i := 0; i < n/2; i++ {
			a, b := ring[i], ring[n-1-i]
			if a == 0 || b == 0 {
				continue
			}
			matches = append(matches, &BracketMatch{
				Round:          round,
				Phase:          models.PhaseGroup,
				GroupLabel:     group,
				ParticipantIDs: []int{a, b},
			})
		}
		last := ring[n-1]
		copy(ring[2:], ring[1:n-1])
		ring[1] = last
	}
	return matches
}
