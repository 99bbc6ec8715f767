package rankings

import (
	"testing"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func score(v float64) *float64 { return &v }

func rank(v int) *int { return &v }

func label(v string) *string { return &v }

func played(phase models.SessionPhase, round, a, b int, sa, sb float64) models.Session {
	s := models.Session{
		Round:          round,
		Phase:          phase,
		ParticipantIDs: []int{a, b},
		Results: []models.ResultEntry{
			{ParticipantID: a, Score: score(sa)},
			{ParticipantID: b, Score: score(sb)},
		},
		Status: models.SessionCompleted,
	}
	switch {
	case sa > sb:
		s.WinnerID = &s.ParticipantIDs[0]
	case sb > sa:
		s.WinnerID = &s.ParticipantIDs[1]
	}
	return s
}

func participantOrder(rows []models.TournamentRanking) []int {
	ids := make([]int, len(rows))
	for i, r := range rows {
		ids[i] = r.ParticipantID
	}
	return ids
}

func TestHeadToHeadRoundRobinStrictOrder(t *testing.T) {
	sessions := []models.Session{
		played(models.PhaseGroup, 1, 1, 2, 2, 0),
		played(models.PhaseGroup, 1, 3, 4, 1, 0),
		played(models.PhaseGroup, 2, 1, 3, 3, 1),
		played(models.PhaseGroup, 2, 2, 4, 2, 1),
		played(models.PhaseGroup, 3, 1, 4, 1, 0),
		played(models.PhaseGroup, 3, 2, 3, 4, 2),
	}

	rows, err := Calculate(Config{Format: models.FormatHeadToHead}, sessions)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []int{1, 2, 3, 4}, participantOrder(rows))
	for i, row := range rows {
		assert.Equal(t, i+1, row.Rank)
		assert.Equal(t, 3, row.GamesPlayed)
	}
	assert.Equal(t, []int{9, 6, 3, 0}, []int{rows[0].Points, rows[1].Points, rows[2].Points, rows[3].Points})
}

func TestHeadToHeadTieBreaks(t *testing.T) {
	sessions := []models.Session{
		played(models.PhaseGroup, 1, 10, 11, 5, 0),
		played(models.PhaseGroup, 1, 12, 13, 1, 0),
		played(models.PhaseGroup, 2, 11, 12, 3, 2),
		played(models.PhaseGroup, 2, 13, 10, 2, 2),
	}

	rows := HeadToHead(sessions)

	// 10: 4 pts GD +5; 12: 3 pts GD 0 GF 3; 11: 3 pts GD -4; 13: 1 pt.
	assert.Equal(t, []int{10, 12, 11, 13}, participantOrder(rows))
	assert.Equal(t, 1, rows[0].Draws)
}

func TestHeadToHeadIgnoresPendingAndByes(t *testing.T) {
	pending := models.Session{ParticipantIDs: []int{1, 2}, Status: models.SessionScheduled}
	bye := models.Session{ParticipantIDs: []int{3}, IsBye: true, Status: models.SessionCompleted}

	rows := HeadToHead([]models.Session{pending, bye})

	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Zero(t, row.GamesPlayed)
		assert.Zero(t, row.Points)
	}
	assert.Equal(t, []int{1, 2, 3}, participantOrder(rows))
}

func byeFor(round, participant int) models.Session {
	p := participant
	return models.Session{
		Round:          round,
		Phase:          models.PhaseKnockout,
		ParticipantIDs: []int{participant},
		IsBye:          true,
		WinnerID:       &p,
		Status:         models.SessionCompleted,
	}
}

func TestSingleEliminationRanksByBracketPlacement(t *testing.T) {
	// 5 reaches the final on byes and wins it with fewer points than the runner-up.
	sessions := []models.Session{
		played(models.PhaseKnockout, 1, 1, 2, 3, 1),
		played(models.PhaseKnockout, 1, 3, 4, 3, 0),
		byeFor(1, 5),
		played(models.PhaseKnockout, 2, 1, 3, 2, 1),
		byeFor(2, 5),
		played(models.PhaseKnockout, 3, 5, 1, 2, 0),
	}
	cfg := Config{Format: models.FormatHeadToHead, Bracket: models.BracketSingleElimination}

	rows, err := Calculate(cfg, sessions)
	require.NoError(t, err)

	assert.Equal(t, []int{5, 1, 3, 2, 4}, participantOrder(rows))
	assert.Equal(t, 3, rows[0].Points)
	assert.Equal(t, 6, rows[1].Points)

	// the same sessions as a points table put the runner-up first
	table, err := Calculate(Config{Format: models.FormatHeadToHead, Bracket: models.BracketRoundRobin}, sessions)
	require.NoError(t, err)
	assert.Equal(t, 1, table[0].ParticipantID)
}

func TestSingleEliminationInProgressKeepsAliveAhead(t *testing.T) {
	sessions := []models.Session{
		played(models.PhaseKnockout, 1, 1, 2, 3, 1),
		played(models.PhaseKnockout, 1, 3, 4, 3, 0),
		{Round: 2, Phase: models.PhaseKnockout, ParticipantIDs: []int{1, 3}, Status: models.SessionScheduled},
	}

	rows := SingleElimination(sessions)

	// 1 and 3 are both alive; points then score difference order them
	assert.Equal(t, []int{3, 1, 2, 4}, participantOrder(rows))
}

func TestConfigForCarriesBracket(t *testing.T) {
	b := models.BracketSingleElimination
	cfg := ConfigFor(&models.Tournament{Format: models.FormatHeadToHead, Bracket: &b})
	assert.Equal(t, models.BracketSingleElimination, cfg.Bracket)

	assert.Empty(t, ConfigFor(&models.Tournament{Format: models.FormatIndividualRanking}).Bracket)
}

func multiRound(entries ...models.ResultEntry) models.Session {
	ids := map[int]bool{}
	s := models.Session{Phase: models.PhaseGroup, Round: 1, Status: models.SessionInProgress, Results: entries}
	for _, e := range entries {
		if !ids[e.ParticipantID] {
			ids[e.ParticipantID] = true
			s.ParticipantIDs = append(s.ParticipantIDs, e.ParticipantID)
		}
	}
	return s
}

func TestIndividualTimeBasedSumsAscending(t *testing.T) {
	s := multiRound(
		models.ResultEntry{ParticipantID: 1, Score: score(61.5), Round: 1},
		models.ResultEntry{ParticipantID: 2, Score: score(60.0), Round: 1},
		models.ResultEntry{ParticipantID: 3, Score: score(59.0), Round: 1},
		models.ResultEntry{ParticipantID: 1, Score: score(60.0), Round: 2},
		models.ResultEntry{ParticipantID: 2, Score: score(60.5), Round: 2},
		models.ResultEntry{ParticipantID: 3, Score: score(65.0), Round: 2},
		models.ResultEntry{ParticipantID: 1, Score: score(58.0), Round: 3},
		models.ResultEntry{ParticipantID: 2, Score: score(60.0), Round: 3},
		models.ResultEntry{ParticipantID: 3, Score: score(59.0), Round: 3},
	)

	rows, err := Calculate(Config{Format: models.FormatIndividualRanking, Scoring: models.ScoringTimeBased}, []models.Session{s})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, participantOrder(rows))
	require.NotNil(t, rows[0].Value)
	assert.InDelta(t, 179.5, *rows[0].Value, 1e-9)
	assert.InDelta(t, 180.5, *rows[1].Value, 1e-9)
	assert.InDelta(t, 183.0, *rows[2].Value, 1e-9)
	assert.Equal(t, 3, rows[0].RoundsCounted)
}

func TestIndividualSumRanksMissingRoundsLast(t *testing.T) {
	s := multiRound(
		models.ResultEntry{ParticipantID: 1, Score: score(50), Round: 1},
		models.ResultEntry{ParticipantID: 2, Score: score(70), Round: 1},
		models.ResultEntry{ParticipantID: 2, Score: score(70), Round: 2},
	)

	rows, err := Individual(models.ScoringTimeBased, "", []models.Session{s})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1}, participantOrder(rows))
}

func TestIndividualScoringRules(t *testing.T) {
	tests := []struct {
		name      string
		scoring   models.ScoringType
		direction models.RankingDirection
		entries   []models.ResultEntry
		want      []int
	}{
		{
			name:    "score based sums descending",
			scoring: models.ScoringScoreBased,
			entries: []models.ResultEntry{
				{ParticipantID: 1, Score: score(10), Round: 1},
				{ParticipantID: 2, Score: score(8), Round: 1},
				{ParticipantID: 2, Score: score(8), Round: 2},
				{ParticipantID: 1, Score: score(5), Round: 2},
			},
			want: []int{2, 1},
		},
		{
			name:    "distance keeps best attempt",
			scoring: models.ScoringDistanceBased,
			entries: []models.ResultEntry{
				{ParticipantID: 1, Score: score(7.1), Round: 1},
				{ParticipantID: 1, Score: score(6.0), Round: 2},
				{ParticipantID: 2, Score: score(7.0), Round: 1},
				{ParticipantID: 2, Score: score(7.05), Round: 2},
			},
			want: []int{1, 2},
		},
		{
			name:    "placement uses submitted rank",
			scoring: models.ScoringPlacement,
			entries: []models.ResultEntry{
				{ParticipantID: 1, Rank: rank(3), Round: 1},
				{ParticipantID: 2, Rank: rank(1), Round: 1},
				{ParticipantID: 3, Rank: rank(2), Round: 1},
			},
			want: []int{2, 3, 1},
		},
		{
			name:      "rounds based ascending takes minimum",
			scoring:   models.ScoringRoundsBased,
			direction: models.DirectionAsc,
			entries: []models.ResultEntry{
				{ParticipantID: 1, Score: score(12), Round: 1},
				{ParticipantID: 1, Score: score(9), Round: 2},
				{ParticipantID: 2, Score: score(10), Round: 1},
				{ParticipantID: 2, Score: score(11), Round: 2},
			},
			want: []int{1, 2},
		},
		{
			name:      "rounds based descending takes maximum",
			scoring:   models.ScoringRoundsBased,
			direction: models.DirectionDesc,
			entries: []models.ResultEntry{
				{ParticipantID: 1, Score: score(12), Round: 1},
				{ParticipantID: 1, Score: score(9), Round: 2},
				{ParticipantID: 2, Score: score(10), Round: 1},
				{ParticipantID: 2, Score: score(13), Round: 2},
			},
			want: []int{2, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Individual(tt.scoring, tt.direction, []models.Session{multiRound(tt.entries...)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, participantOrder(rows))
		})
	}
}

func TestIndividualRejectsUnknownScoring(t *testing.T) {
	_, err := Calculate(Config{Format: models.FormatIndividualRanking, Scoring: "STYLE_POINTS"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedScoringType)

	_, err = Individual(models.ScoringRoundsBased, "", nil)
	assert.ErrorIs(t, err, ErrDirectionRequired)

	_, err = Calculate(Config{Format: "SWISS"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func groupSession(group string, round, a, b int, sa, sb float64) models.Session {
	s := played(models.PhaseGroup, round, a, b, sa, sb)
	s.GroupLabel = label(group)
	return s
}

func TestSeedKnockoutCrossesGroups(t *testing.T) {
	sessions := []models.Session{
		groupSession("A", 1, 1, 2, 3, 0),
		groupSession("A", 2, 1, 3, 2, 0),
		groupSession("A", 3, 2, 3, 1, 0),
		groupSession("B", 1, 4, 5, 0, 1),
		groupSession("B", 2, 5, 6, 2, 0),
		groupSession("B", 3, 4, 6, 1, 0),
	}

	groups := GroupStandings(sessions)
	require.Len(t, groups, 2)
	assert.Equal(t, []int{1, 2, 3}, participantOrder(groups["A"]))
	assert.Equal(t, []int{5, 4, 6}, participantOrder(groups["B"]))

	seeds, err := SeedKnockout(groups, 2)
	require.NoError(t, err)
	// A1 v B2, B1 v A2
	assert.Equal(t, []int{1, 4, 5, 2}, seeds)
}

func TestSeedKnockoutValidation(t *testing.T) {
	groups := map[string][]models.TournamentRanking{
		"A": {{ParticipantID: 1}, {ParticipantID: 2}},
	}
	_, err := SeedKnockout(groups, 2)
	assert.ErrorIs(t, err, ErrOddGroupCount)

	groups["B"] = []models.TournamentRanking{{ParticipantID: 3}}
	_, err = SeedKnockout(groups, 2)
	assert.ErrorIs(t, err, ErrNotEnoughQualifiers)
}

func TestGroupAndKnockoutFinalOrder(t *testing.T) {
	sessions := []models.Session{
		groupSession("A", 1, 1, 2, 3, 0),
		groupSession("A", 2, 1, 3, 2, 0),
		groupSession("A", 3, 2, 3, 1, 0),
		groupSession("B", 1, 4, 5, 0, 1),
		groupSession("B", 2, 5, 6, 2, 0),
		groupSession("B", 3, 4, 6, 1, 0),
		played(models.PhaseKnockout, 1, 1, 4, 2, 1),
		played(models.PhaseKnockout, 1, 5, 2, 0, 1),
		played(models.PhaseKnockout, 2, 1, 2, 0, 3),
		played(models.PhaseBronze, 2, 4, 5, 2, 1),
	}

	rows := GroupAndKnockout(sessions)

	// champion 2, runner-up 1, bronze 4 then 5, then non-qualifiers by group finish.
	assert.Equal(t, []int{2, 1, 4, 5, 3, 6}, participantOrder(rows))
	require.NotNil(t, rows[0].GroupLabel)
	assert.Equal(t, "A", *rows[0].GroupLabel)
}

func TestGroupAndKnockoutInProgressKeepsAliveAhead(t *testing.T) {
	semi := played(models.PhaseKnockout, 1, 1, 4, 2, 1)
	pending := models.Session{Phase: models.PhaseKnockout, Round: 1, ParticipantIDs: []int{5, 2}, Status: models.SessionScheduled}

	place := knockoutPlacement([]models.Session{semi, pending})

	assert.Less(t, place[1], place[4])
	assert.Equal(t, place[1], place[5])
	assert.Equal(t, place[5], place[2])
}
