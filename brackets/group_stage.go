package brackets

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

type GroupStageGenerator struct{}

func NewGroupStageGenerator() BracketGenerator {
	return &GroupStageGenerator{}
}

func (g *GroupStageGenerator) GetName() string {
	return "GroupStage"
}

func (g *GroupStageGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketMatch, error) {
	t := params.Tournament
	if t.GroupCount < 2 || t.GroupCount%2 != 0 {
		return nil, fmt.Errorf("group stage needs an even number of groups, got %d", t.GroupCount)
	}
	if len(params.Participants) < t.GroupCount*2 {
		return nil, fmt.Errorf("group stage needs at least %d participants, found %d", t.GroupCount*2, len(params.Participants))
	}

	groups := AssignGroups(participantIDs(params.Participants), t.GroupCount)
	matches := make([]*BracketMatch, 0)
	for _, label := range GroupLabels(t.GroupCount) {
		l := label
		matches = append(matches, roundRobin(groups[label], &l)...)
	}
	sortByRound(matches)
	numberSlots(matches)
	return matches, nil
}

// GroupLabels returns "A", "B", ... for count groups.
func GroupLabels(count int) []string {
	labels := make([]string, count)
	for i := range labels {
		labels[i] = string(rune('A' + i))
	}
	return labels
}

// AssignGroups distributes seeded ids snake-wise (A B B A A B ...) so every
// group gets a comparable spread of seeds.
func AssignGroups(ids []int, count int) map[string][]int {
	labels := GroupLabels(count)
	groups := make(map[string][]int, count)
	for i, id := range ids {
		lap, pos := i/count, i%count
		if lap%2 == 1 {
			pos = count - 1 - pos
		}
		groups[labels[pos]] = append(groups[labels[pos]], id)
	}
	return groups
}

func sortByRound(matches []*BracketMatch) {
	slices.SortStableFunc(matches, func(a, b *BracketMatch) int {
		return cmp.Compare(a.Round, b.Round)
	})
}
