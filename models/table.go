package models

import "time"

// TableStatus mirrors the table_status ENUM in the database.
type TableStatus string

const (
	TableStatusWaiting TableStatus = "waiting"
	TableStatusActive  TableStatus = "active"
	TableStatusClosed  TableStatus = "closed"
)

// Table is one seated group of players. TournamentID is nullable because
// the same schema serves cash-game tables, which are managed elsewhere.
// Blind fields are a denormalized copy of the parent tournament's current
// level, refreshed whenever the tournament advances.
type Table struct {
	ID           int         `json:"id" db:"id"`
	TournamentID *int        `json:"tournament_id,omitempty" db:"tournament_id"`
	Capacity     int         `json:"capacity" db:"capacity"`
	SmallBlind   int64       `json:"small_blind" db:"small_blind"`
	BigBlind     int64       `json:"big_blind" db:"big_blind"`
	Ante         int64       `json:"ante" db:"ante"`
	Status       TableStatus `json:"status" db:"status"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// SeatStatus mirrors the seat_status ENUM in the database.
type SeatStatus string

const (
	SeatStatusEmpty      SeatStatus = "empty"
	SeatStatusActive     SeatStatus = "active"
	SeatStatusSittingOut SeatStatus = "sitting_out"
)

// Seat is a numbered slot at a table. A player occupies at most one
// non-empty seat across the whole system; the seat repository's conditional
// writes keep that invariant under concurrent occupy/vacate calls.
type Seat struct {
	TableID  int        `json:"table_id" db:"table_id"`
	SeatNo   int        `json:"seat_no" db:"seat_no"`
	PlayerID *int       `json:"player_id,omitempty" db:"player_id"`
	Stack    int64      `json:"stack" db:"stack"`
	Status   SeatStatus `json:"status" db:"status"`
	// TimeoutCount counts consecutive forced folds; reset on any genuine
	// action or heartbeat. Two strikes and the sweep removes the player.
	TimeoutCount  int        `json:"timeout_count" db:"timeout_count"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty" db:"last_heartbeat"`
}

// TableOccupancy is a projection row for the consolidated tournament view.
type TableOccupancy struct {
	TableID  int `json:"table_id" db:"table_id"`
	Capacity int `json:"capacity" db:"capacity"`
	Occupied int `json:"occupied" db:"occupied"`
}
