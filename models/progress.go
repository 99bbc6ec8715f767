package models

import "time"

// Progress holds the raw activity counters of a user within one specialization.
type Progress struct {
	ID                int            `json:"id" db:"id"`
	UserID            int            `json:"user_id" db:"user_id"`
	Specialization    Specialization `json:"specialization" db:"specialization"`
	CurrentLevel      int            `json:"current_level" db:"current_level"`
	Experience        int64          `json:"experience" db:"experience"`
	SessionsCompleted int            `json:"sessions_completed" db:"sessions_completed"`
	PracticeCount     int            `json:"practice_count" db:"practice_count"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// License is the official, gating level of a user within one specialization.
type License struct {
	ID               int            `json:"id" db:"id"`
	UserID           int            `json:"user_id" db:"user_id"`
	Specialization   Specialization `json:"specialization" db:"specialization"`
	CurrentLevel     int            `json:"current_level" db:"current_level"`
	MaxAchievedLevel int            `json:"max_achieved_level" db:"max_achieved_level"`
	IsActive         bool           `json:"is_active" db:"is_active"`
	PaymentVerified  bool           `json:"payment_verified" db:"payment_verified"`
	ActivatedAt      *time.Time     `json:"activated_at,omitempty" db:"activated_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

type ProgressionSource string

const (
	SourceManual     ProgressionSource = "manual"
	SourceTournament ProgressionSource = "tournament_reward"
	SourceResync     ProgressionSource = "resync"
	SourceSession    ProgressionSource = "session"
)

// LicenseProgression is the append-only audit row written with every level change.
type LicenseProgression struct {
	ID              int               `json:"id" db:"id"`
	LicenseID       int               `json:"license_id" db:"license_id"`
	UserID          int               `json:"user_id" db:"user_id"`
	Specialization  Specialization    `json:"specialization" db:"specialization"`
	FromLevel       int               `json:"from_level" db:"from_level"`
	ToLevel         int               `json:"to_level" db:"to_level"`
	ExperienceDelta int64             `json:"experience_delta" db:"experience_delta"`
	Source          ProgressionSource `json:"source" db:"source"`
	Reason          *string           `json:"reason,omitempty" db:"reason"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

// UserSpecialization identifies one Progress/License pair.
type UserSpecialization struct {
	UserID         int            `json:"user_id"`
	Specialization Specialization `json:"specialization"`
}
