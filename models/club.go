package models

import "time"

// Club groups members for club-scoped tournaments.
type Club struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	OwnerID   int       `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ClubMember is the membership row consulted by registration eligibility
// checks.
type ClubMember struct {
	ClubID   int       `json:"club_id" db:"club_id"`
	UserID   int       `json:"user_id" db:"user_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}
