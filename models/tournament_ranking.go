package models

import "time"

type TournamentRanking struct {
	ID            int       `json:"id" db:"id"`
	TournamentID  int       `json:"tournament_id" db:"tournament_id"`
	ParticipantID int       `json:"participant_id" db:"participant_id"`
	Rank          int       `json:"rank" db:"rank"`
	Points        int       `json:"points" db:"points"`
	GamesPlayed   int       `json:"games_played" db:"games_played"`
	Wins          int       `json:"wins" db:"wins"`
	Draws         int       `json:"draws" db:"draws"`
	Losses        int       `json:"losses" db:"losses"`
	ScoreFor      float64   `json:"score_for" db:"score_for"`
	ScoreAgainst  float64   `json:"score_against" db:"score_against"`
	ScoreDiff     float64   `json:"score_difference" db:"score_difference"`
	Value         *float64  `json:"value,omitempty" db:"value"` // aggregated individual result
	RoundsCounted int       `json:"rounds_counted" db:"rounds_counted"`
	GroupLabel    *string   `json:"group_label,omitempty" db:"group_label"`
	Frozen        bool      `json:"frozen" db:"frozen"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
