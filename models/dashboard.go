package models

// ProgressDashboard is the read-only view of one user's track in a specialization.
type ProgressDashboard struct {
	UserID         int                  `json:"user_id"`
	Specialization Specialization       `json:"specialization"`
	Progress       *Progress            `json:"progress"`
	License        *License             `json:"license,omitempty"`
	NextLevelXP    *int64               `json:"next_level_experience,omitempty"`
	History        []LicenseProgression `json:"history"`
	CreditBalance  int64                `json:"credit_balance"`
}
