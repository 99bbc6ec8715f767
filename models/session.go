package models

import "time"

type SessionPhase string

const (
	PhaseGroup    SessionPhase = "GROUP"
	PhaseKnockout SessionPhase = "KNOCKOUT"
	PhaseBronze   SessionPhase = "BRONZE"
)

func (p SessionPhase) IsKnockout() bool {
	return p == PhaseKnockout || p == PhaseBronze
}

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "SCHEDULED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionCancelled  SessionStatus = "CANCELLED"
)

// ResultEntry is one flat result line. Round is stamped by the server for
// multi-round individual sessions and is zero for head-to-head sessions.
type ResultEntry struct {
	ParticipantID int      `json:"participant_id"`
	Score         *float64 `json:"score,omitempty"`
	Rank          *int     `json:"rank,omitempty"`
	Round         int      `json:"round,omitempty"`
}

type Session struct {
	ID             int           `json:"id" db:"id"`
	TournamentID   int           `json:"tournament_id" db:"tournament_id"`
	Round          int           `json:"round" db:"round"`
	Phase          SessionPhase  `json:"phase" db:"phase"`
	SeedSlot       int           `json:"seed_slot" db:"seed_slot"`
	GroupLabel     *string       `json:"group_label,omitempty" db:"group_label"`
	ParticipantIDs []int         `json:"participant_ids" db:"participant_ids"`
	Results        []ResultEntry `json:"results" db:"results"`
	RoundsRecorded int           `json:"rounds_recorded" db:"rounds_recorded"`
	WinnerID       *int          `json:"winner_id,omitempty" db:"winner_id"`
	IsBye          bool          `json:"is_bye" db:"is_bye"`
	Status         SessionStatus `json:"status" db:"status"`
	StartsAt       *time.Time    `json:"starts_at,omitempty" db:"starts_at"`
	EndsAt         *time.Time    `json:"ends_at,omitempty" db:"ends_at"`
	FinalizedAt    *time.Time    `json:"finalized_at,omitempty" db:"finalized_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

func (s *Session) IsCompleted() bool {
	return s.Status == SessionCompleted
}

func (s *Session) HasParticipant(id int) bool {
	for _, p := range s.ParticipantIDs {
		if p == id {
			return true
		}
	}
	return false
}

// LoserID returns the participant of a decided two-player session who did not win.
func (s *Session) LoserID() *int {
	if s.WinnerID == nil || s.IsBye || len(s.ParticipantIDs) != 2 {
		return nil
	}
	for _, p := range s.ParticipantIDs {
		if p != *s.WinnerID {
			loser := p
			return &loser
		}
	}
	return nil
}

// ScoreOf returns the first score submitted for the participant.
func (s *Session) ScoreOf(participantID int) (float64, bool) {
	for _, r := range s.Results {
		if r.ParticipantID == participantID && r.Score != nil {
			return *r.Score, true
		}
	}
	return 0, false
}
