package brackets

import (
	"context"
	"fmt"

	"github.com/Dosada05/tournament-progression/models"
)

type GenerateBracketParams struct {
	Tournament *models.Tournament
	// Participants must be ordered by seed.
	Participants []models.TournamentParticipant
}

// BracketMatch is a planned fixture. Generators never persist anything.
type BracketMatch struct {
	Round          int
	Phase          models.SessionPhase
	SeedSlot       int
	GroupLabel     *string
	ParticipantIDs []int
	IsBye          bool
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error)

	GetName() string
}

// GeneratorFor selects the opening-fixture generator for the tournament format.
func GeneratorFor(t *models.Tournament) (BracketGenerator, error) {
	switch t.Format {
	case models.FormatHeadToHead:
		if t.Bracket == nil {
			return nil, fmt.Errorf("head-to-head tournament %d has no bracket type", t.ID)
		}
		switch *t.Bracket {
		case models.BracketSingleElimination:
			return NewSingleEliminationGenerator(), nil
		case models.BracketRoundRobin:
			return NewRoundRobinGenerator(), nil
		}
		return nil, fmt.Errorf("unsupported bracket type '%s'", *t.Bracket)
	case models.FormatIndividualRanking:
		return NewIndividualGenerator(), nil
	case models.FormatGroupAndKnockout:
		return NewGroupStageGenerator(), nil
	}
	return nil, fmt.Errorf("unsupported tournament format '%s'", t.Format)
}

// PairSeeded pairs ids in order. An odd count leaves the last id alone,
// which callers turn into an explicit bye. Opening rounds go through
// OpeningRound so later rounds always pair evenly.
func PairSeeded(ids []int) [][]int {
	pairs := make([][]int, 0, (len(ids)+1)/2)
	for i := 0; i < len(ids); i += 2 {
		if i+1 < len(ids) {
			pairs = append(pairs, []int{ids[i], ids[i+1]})
		} else {
			pairs = append(pairs, []int{ids[i]})
		}
	}
	return pairs
}

// OpeningRound pads the first knockout round to the next power of two, as a
// full bracket would. The top seeds take the byes and bye slots alternate with
// played matches, so every later round has an even number of entrants and a
// bye is never handed out twice.
func OpeningRound(ids []int) [][]int {
	if len(ids) < 2 {
		return PairSeeded(ids)
	}
	size := 1
	for size < len(ids) {
		size <<= 1
	}
	byes := size - len(ids)

	played := PairSeeded(ids[byes:])
	slots := make([][]int, 0, size/2)
	for i := 0; i < byes || len(played) > 0; i++ {
		if i < byes {
			slots = append(slots, []int{ids[i]})
		}
		if len(played) > 0 {
			slots = append(slots, played[0])
			played = played[1:]
		}
	}
	return slots
}

func participantIDs(participants []models.TournamentParticipant) []int {
	ids := make([]int, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
	}
	return ids
}

// numberSlots assigns sequential seed slots per (round, phase) in slice order.
func numberSlots(matches []*BracketMatch) {
	type key struct {
		round int
		phase models.SessionPhase
	}
	next := make(map[key]int)
	for _, m := range matches {
		k := key{m.Round, m.Phase}
		next[k]++
		m.SeedSlot = next[k]
	}
}
