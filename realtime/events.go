package realtime

import (
	"strconv"
	"time"
)

// Event type names pushed over the wire.
const (
	EventSeatChange  = "seat_change"
	EventLevelChange = "level_change"
)

// Seat-change actions.
const (
	SeatActionLeave       = "leave"
	SeatActionTableClosed = "table_closed"
)

// Message is the envelope every broadcast uses.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	RoomID  string      `json:"room_id,omitempty"`
}

// SeatChangeEvent notifies a table's participants that a seat emptied or
// the table closed.
type SeatChangeEvent struct {
	Action           string `json:"action"`
	TableID          int    `json:"table_id"`
	SeatNo           int    `json:"seat"`
	PlayerID         int    `json:"player_id"`
	RemainingPlayers int    `json:"remaining_players"`
}

// LevelChangeEvent notifies a tournament's participants that blinds moved.
type LevelChangeEvent struct {
	TournamentID   int       `json:"tournament_id"`
	Level          int       `json:"level"`
	SmallBlind     int64     `json:"small_blind"`
	BigBlind       int64     `json:"big_blind"`
	Ante           int64     `json:"ante"`
	IsBreak        bool      `json:"is_break"`
	LevelStartedAt time.Time `json:"level_started_at"`
}

func TournamentRoom(tournamentID int) string {
	return "tournament_" + strconv.Itoa(tournamentID)
}

func TableRoom(tableID int) string {
	return "table_" + strconv.Itoa(tableID)
}
