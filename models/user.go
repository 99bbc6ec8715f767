package models

import "time"

type UserRole string

const (
	RoleAdmin       UserRole = "admin"
	RoleOrganizer   UserRole = "organizer"
	RoleInstructor  UserRole = "instructor"
	RoleParticipant UserRole = "participant"
)

// User is read-only here; accounts are managed by the auth service.
type User struct {
	ID        int       `json:"id"`
	Nickname  string    `json:"nickname"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
