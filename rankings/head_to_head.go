package rankings

import (
	"cmp"
	"slices"

	"github.com/Dosada05/tournament-progression/models"
)

type tally map[int]*models.TournamentRanking

func (t tally) get(participantID int) *models.TournamentRanking {
	if row, ok := t[participantID]; ok {
		return row
	}
	row := &models.TournamentRanking{ParticipantID: participantID}
	t[participantID] = row
	return row
}

// accumulate registers every participant of s and, for a decided two-player
// session with both scores present, books the outcome.
func (t tally) accumulate(s models.Session) {
	for _, p := range s.ParticipantIDs {
		t.get(p)
	}
	if !s.IsCompleted() || s.IsBye || len(s.ParticipantIDs) != 2 {
		return
	}
	a, b := s.ParticipantIDs[0], s.ParticipantIDs[1]
	scoreA, okA := s.ScoreOf(a)
	scoreB, okB := s.ScoreOf(b)
	if !okA || !okB {
		return
	}
	book(t.get(a), scoreA, scoreB)
	book(t.get(b), scoreB, scoreA)
}

func (t tally) sorted(compare func(a, b models.TournamentRanking) int) []models.TournamentRanking {
	rows := make([]models.TournamentRanking, 0, len(t))
	for _, row := range t {
		rows = append(rows, *row)
	}
	slices.SortFunc(rows, compare)
	assignRanks(rows)
	return rows
}

func book(row *models.TournamentRanking, scored, conceded float64) {
	row.GamesPlayed++
	row.ScoreFor += scored
	row.ScoreAgainst += conceded
	row.ScoreDiff = row.ScoreFor - row.ScoreAgainst
	switch {
	case scored > conceded:
		row.Wins++
		row.Points += PointsWin
	case scored == conceded:
		row.Draws++
		row.Points += PointsDraw
	default:
		row.Losses++
		row.Points += PointsLoss
	}
}

// compareHeadToHead orders by points, score difference, scores for, then participant id.
func compareHeadToHead(a, b models.TournamentRanking) int {
	if c := cmp.Compare(b.Points, a.Points); c != 0 {
		return c
	}
	if c := cmp.Compare(b.ScoreDiff, a.ScoreDiff); c != 0 {
		return c
	}
	if c := cmp.Compare(b.ScoreFor, a.ScoreFor); c != 0 {
		return c
	}
	return cmp.Compare(a.ParticipantID, b.ParticipantID)
}

// HeadToHead ranks round-robin or knockout outcomes on a 3-1-0 points table.
func HeadToHead(sessions []models.Session) []models.TournamentRanking {
	t := tally{}
	for _, s := range sessions {
		t.accumulate(s)
	}
	return t.sorted(compareHeadToHead)
}
