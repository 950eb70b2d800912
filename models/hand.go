package models

import "time"

// Hand is the slice of hand state this engine needs for timeout detection.
// Hands are created and completed by the table action processor; this core
// only reads them.
type Hand struct {
	ID             int        `json:"id" db:"id"`
	TableID        int        `json:"table_id" db:"table_id"`
	CurrentSeatNo  *int       `json:"current_seat_no,omitempty" db:"current_seat_no"`
	ActionDeadline *time.Time `json:"action_deadline,omitempty" db:"action_deadline"`
	Completed      bool       `json:"completed" db:"completed"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
}

// OverdueHand is a stuck-hand row: an uncompleted hand whose action deadline
// has elapsed, joined with the player occupying the acting seat.
type OverdueHand struct {
	HandID   int `db:"hand_id"`
	TableID  int `db:"table_id"`
	SeatNo   int `db:"seat_no"`
	PlayerID int `db:"player_id"`
}
