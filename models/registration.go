package models

import "time"

// RegistrationStatus mirrors the registration_status ENUM in the database.
type RegistrationStatus string

const (
	RegStatusRegistered RegistrationStatus = "registered"
	RegStatusPaid       RegistrationStatus = "paid"
	RegStatusPlaying    RegistrationStatus = "playing"
	RegStatusEliminated RegistrationStatus = "eliminated"
	RegStatusCancelled  RegistrationStatus = "cancelled"
)

// Registration links a player to a tournament. At most one non-cancelled
// registration may exist per (tournament, player); the database enforces it
// with a partial unique index.
type Registration struct {
	ID           int                `json:"id" db:"id"`
	TournamentID int                `json:"tournament_id" db:"tournament_id"`
	PlayerID     int                `json:"player_id" db:"player_id"`
	Status       RegistrationStatus `json:"status" db:"status"`
	TableID      *int               `json:"table_id,omitempty" db:"table_id"`
	SeatNo       *int               `json:"seat_no,omitempty" db:"seat_no"`
	Stack        int64              `json:"stack" db:"stack"`
	// PaymentSessionID is the external payment-session identifier and acts
	// as the idempotency key for paid-entry reconciliation.
	PaymentSessionID *string   `json:"payment_session_id,omitempty" db:"payment_session_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Confirmed reports whether the registration counts toward capacity and
// seating.
func (r *Registration) Confirmed() bool {
	switch r.Status {
	case RegStatusRegistered, RegStatusPaid, RegStatusPlaying:
		return true
	}
	return false
}
