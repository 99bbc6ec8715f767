package rankings

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Dosada05/tournament-progression/models"
)

// GroupStandings ranks every group independently with head-to-head rules.
func GroupStandings(sessions []models.Session) map[string][]models.TournamentRanking {
	tallies := make(map[string]tally)
	for _, s := range sessions {
		if s.Phase != models.PhaseGroup || s.GroupLabel == nil {
			continue
		}
		label := *s.GroupLabel
		if _, ok := tallies[label]; !ok {
			tallies[label] = tally{}
		}
		tallies[label].accumulate(s)
	}

	out := make(map[string][]models.TournamentRanking, len(tallies))
	for label, t := range tallies {
		rows := t.sorted(compareHeadToHead)
		for i := range rows {
			l := label
			rows[i].GroupLabel = &l
		}
		out[label] = rows
	}
	return out
}

// SeedKnockout lists qualifiers in bracket order: sequential pairs of the
// result form the first knockout round. Groups are paired A/B, C/D and so on,
// and within a pair the top finisher of one group meets the lowest qualifier
// of the other (A1 v B2, B1 v A2 for two qualifiers).
func SeedKnockout(groups map[string][]models.TournamentRanking, qualifiers int) ([]int, error) {
	if qualifiers < 1 {
		return nil, fmt.Errorf("qualifiers per group must be positive, got %d", qualifiers)
	}
	labels := make([]string, 0, len(groups))
	for label, rows := range groups {
		if len(rows) < qualifiers {
			return nil, fmt.Errorf("%w: group %s has %d", ErrNotEnoughQualifiers, label, len(rows))
		}
		labels = append(labels, label)
	}
	if len(labels)%2 != 0 {
		return nil, ErrOddGroupCount
	}
	slices.Sort(labels)

	seeds := make([]int, 0, len(labels)*qualifiers)
	for i := 0; i < len(labels); i += 2 {
		x, y := groups[labels[i]], groups[labels[i+1]]
		for k := 0; k < (qualifiers+1)/2; k++ {
			opposite := qualifiers - 1 - k
			if opposite == k {
				seeds = append(seeds, x[k].ParticipantID, y[k].ParticipantID)
				continue
			}
			seeds = append(seeds,
				x[k].ParticipantID, y[opposite].ParticipantID,
				y[k].ParticipantID, x[opposite].ParticipantID,
			)
		}
	}
	return seeds, nil
}

const (
	placeChampion = iota
	placeRunnerUp
	placeBronzeWinner
	placeBronzeLoser
	placeByDepth
)

// knockoutPlacement buckets knockout participants; lower is better. Anyone
// absent from the result never reached the knockout phase.
func knockoutPlacement(sessions []models.Session) map[int]int {
	var knockout []models.Session
	maxRound := 0
	for _, s := range sessions {
		if s.Phase == models.PhaseKnockout {
			knockout = append(knockout, s)
			maxRound = max(maxRound, s.Round)
		}
	}
	if len(knockout) == 0 {
		return map[int]int{}
	}

	furthest := make(map[int]int)
	eliminated := make(map[int]bool)
	for _, s := range knockout {
		for _, p := range s.ParticipantIDs {
			furthest[p] = max(furthest[p], s.Round)
		}
		if loser := s.LoserID(); loser != nil && s.IsCompleted() {
			eliminated[*loser] = true
		}
	}

	place := make(map[int]int, len(furthest))
	for p, round := range furthest {
		depth := (maxRound - round) * 2
		if eliminated[p] {
			depth++
		}
		place[p] = placeByDepth + depth
	}

	var finals []models.Session
	for _, s := range knockout {
		if s.Round == maxRound {
			finals = append(finals, s)
		}
	}
	if len(finals) == 1 && !finals[0].IsBye && finals[0].IsCompleted() && finals[0].WinnerID != nil {
		place[*finals[0].WinnerID] = placeChampion
		if loser := finals[0].LoserID(); loser != nil {
			place[*loser] = placeRunnerUp
		}
	}
	for _, s := range sessions {
		if s.Phase == models.PhaseBronze && s.IsCompleted() && s.WinnerID != nil {
			place[*s.WinnerID] = placeBronzeWinner
			if loser := s.LoserID(); loser != nil {
				place[*loser] = placeBronzeLoser
			}
		}
	}
	return place
}

// SingleElimination orders by how far each participant got in the bracket:
// champion, runner-up, bronze, then deeper elimination first. Byes count as
// reaching the next round but earn no points, so the points table only breaks
// ties inside one placement.
func SingleElimination(sessions []models.Session) []models.TournamentRanking {
	totals := tally{}
	for _, s := range sessions {
		totals.accumulate(s)
	}
	place := knockoutPlacement(sessions)
	return totals.sorted(func(a, b models.TournamentRanking) int {
		if c := cmp.Compare(place[a.ParticipantID], place[b.ParticipantID]); c != 0 {
			return c
		}
		return compareHeadToHead(a, b)
	})
}

// GroupAndKnockout orders knockout placements first, then non-qualifiers by
// their group finish. Points columns aggregate every phase.
func GroupAndKnockout(sessions []models.Session) []models.TournamentRanking {
	totals := tally{}
	for _, s := range sessions {
		totals.accumulate(s)
	}

	groupPos := make(map[int]int)
	groupLabel := make(map[int]string)
	for label, rows := range GroupStandings(sessions) {
		for _, row := range rows {
			groupPos[row.ParticipantID] = row.Rank
			groupLabel[row.ParticipantID] = label
		}
	}
	place := knockoutPlacement(sessions)

	rows := make([]models.TournamentRanking, 0, len(totals))
	for _, row := range totals {
		r := *row
		if label, ok := groupLabel[r.ParticipantID]; ok {
			r.GroupLabel = &label
		}
		rows = append(rows, r)
	}

	slices.SortFunc(rows, func(a, b models.TournamentRanking) int {
		pa, qa := place[a.ParticipantID]
		pb, qb := place[b.ParticipantID]
		if qa != qb {
			if qa {
				return -1
			}
			return 1
		}
		if qa {
			if c := cmp.Compare(pa, pb); c != 0 {
				return c
			}
		}
		if c := cmp.Compare(groupPos[a.ParticipantID], groupPos[b.ParticipantID]); c != 0 {
			return c
		}
		return compareHeadToHead(a, b)
	})
	assignRanks(rows)
	return rows
}
