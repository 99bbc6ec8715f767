package models

import "time"

// RewardDistributionRecord is the idempotency fence for one (tournament, user) grant.
type RewardDistributionRecord struct {
	ID            int       `json:"id" db:"id"`
	TournamentID  int       `json:"tournament_id" db:"tournament_id"`
	UserID        int       `json:"user_id" db:"user_id"`
	Rank          int       `json:"rank" db:"rank"`
	Tier          string    `json:"tier" db:"tier"`
	Credits       int64     `json:"credits" db:"credits"`
	Experience    int64     `json:"experience" db:"experience"`
	RunID         string    `json:"run_id" db:"run_id"`
	DistributedAt time.Time `json:"distributed_at" db:"distributed_at"`
}

type CreditLedgerEntry struct {
	ID           string    `json:"id" db:"id"`
	UserID       int       `json:"user_id" db:"user_id"`
	Amount       int64     `json:"amount" db:"amount"`
	Reason       string    `json:"reason" db:"reason"`
	TournamentID *int      `json:"tournament_id,omitempty" db:"tournament_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
