package models

import (
	"encoding/json"
	"time"
)

// TournamentStatus mirrors the tournament_status ENUM in the database.
type TournamentStatus string

const (
	StatusDraft       TournamentStatus = "draft"
	StatusRegistering TournamentStatus = "registering"
	StatusScheduled   TournamentStatus = "scheduled"
	StatusRunning     TournamentStatus = "running"
	StatusComplete    TournamentStatus = "complete"
	StatusCancelled   TournamentStatus = "cancelled"
)

// TournamentType mirrors the tournament_type ENUM in the database.
type TournamentType string

const (
	TypeFreezeout TournamentType = "freezeout"
)

// Tournament is the authoritative record for a scheduled multi-table event.
// Rows are never deleted; terminal states are complete and cancelled.
type Tournament struct {
	ID              int              `json:"id" db:"id"`
	ClubID          *int             `json:"club_id,omitempty" db:"club_id"`
	Name            string           `json:"name" db:"name"`
	Type            TournamentType   `json:"type" db:"type"`
	Status          TournamentStatus `json:"status" db:"status"`
	CreatorID       int              `json:"creator_id" db:"creator_id"`
	MaxPlayers      int              `json:"max_players" db:"max_players"`
	PlayersPerTable int              `json:"players_per_table" db:"players_per_table"`
	StartingStack   int64            `json:"starting_stack" db:"starting_stack"`
	StartTime       *time.Time       `json:"start_time,omitempty" db:"start_time"`
	// CurrentLevelIdx is a 0-based index into Levels; only meaningful while running.
	CurrentLevelIdx int             `json:"current_level_idx" db:"current_level_idx"`
	LevelStartedAt  *time.Time      `json:"level_started_at,omitempty" db:"level_started_at"`
	LateRegLevel    int             `json:"late_reg_level" db:"late_reg_level"`
	EntryFeeCents   *int64          `json:"entry_fee_cents,omitempty" db:"entry_fee_cents"`
	PayoutStructure json.RawMessage `json:"payout_structure,omitempty" db:"payout_structure"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`

	// Levels is loaded separately; immutable once the tournament starts.
	Levels []Level `json:"levels,omitempty" db:"-"`
}

// Paid reports whether entries must be reconciled against a payment
// confirmation before a player counts as confirmed.
func (t *Tournament) Paid() bool {
	return t.EntryFeeCents != nil && *t.EntryFeeCents > 0
}

// Terminal reports whether no further transition is allowed.
func (t *Tournament) Terminal() bool {
	return t.Status == StatusComplete || t.Status == StatusCancelled
}

// Level is one entry of a tournament's blind schedule. A break is a level
// with IsBreak set and no blind amounts.
type Level struct {
	TournamentID int           `json:"-" db:"tournament_id"`
	Idx          int           `json:"idx" db:"idx"`
	SmallBlind   int64         `json:"small_blind" db:"small_blind"`
	BigBlind     int64         `json:"big_blind" db:"big_blind"`
	Ante         int64         `json:"ante" db:"ante"`
	Duration     time.Duration `json:"-" db:"duration_seconds"`
	IsBreak      bool          `json:"is_break" db:"is_break"`
}

// MarshalJSON emits the duration as whole seconds so the wire value matches
// the duration_seconds key instead of leaking nanoseconds.
func (l Level) MarshalJSON() ([]byte, error) {
	type levelJSON struct {
		Idx             int   `json:"idx"`
		SmallBlind      int64 `json:"small_blind"`
		BigBlind        int64 `json:"big_blind"`
		Ante            int64 `json:"ante"`
		DurationSeconds int64 `json:"duration_seconds"`
		IsBreak         bool  `json:"is_break"`
	}
	return json.Marshal(levelJSON{
		Idx:             l.Idx,
		SmallBlind:      l.SmallBlind,
		BigBlind:        l.BigBlind,
		Ante:            l.Ante,
		DurationSeconds: int64(l.Duration / time.Second),
		IsBreak:         l.IsBreak,
	})
}
