package models

import "time"

// TournamentParticipant - регистрация пользователя в турнире.
// Seed выдаётся по порядку регистрации, GroupLabel только для групповых форматов.
type TournamentParticipant struct {
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	UserID       int       `json:"user_id" db:"user_id"`
	Seed         int       `json:"seed" db:"seed"`
	GroupLabel   *string   `json:"group_label,omitempty" db:"group_label"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
