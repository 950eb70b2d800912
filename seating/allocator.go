// Package seating assigns confirmed players to tables. Placement is
// deliberately round-robin: player i goes to table i mod tableCount, seat
// i div tableCount, which keeps table sizes within one player of each other.
// Filling tables sequentially instead would stack early registrants at full
// tables while the last table starts short-handed.
package seating

import (
	"errors"
	"fmt"
)

var (
	ErrNoPlayers           = errors.New("seating: no players to assign")
	ErrInvalidSeatCount    = errors.New("seating: seats per table must be at least 2")
	ErrInsufficientTables  = errors.New("seating: confirmed players exceed available seats")
)

// Placement is one player's table and seat assignment. TableIndex is an
// index into the allocation's table list, not a table ID; seat numbers start
// at 0 within each table.
type Placement struct {
	TableIndex int
	SeatNumber int
}

// TableCount returns the number of tables needed to seat playerCount players
// at seatsPerTable each.
func TableCount(playerCount, seatsPerTable int) int {
	return (playerCount + seatsPerTable - 1) / seatsPerTable
}

// Assign produces a placement per player, in input order. Every player
// receives a unique (table, seat) pair and no player is left unseated.
// Re-balancing after eliminations is the same call over the survivor list.
func Assign(playerIDs []int, seatsPerTable int) (map[int]Placement, error) {
	if seatsPerTable < 2 {
		return nil, ErrInvalidSeatCount
	}
	if len(playerIDs) == 0 {
		return nil, ErrNoPlayers
	}

	tableCount := TableCount(len(playerIDs), seatsPerTable)
	placements := make(map[int]Placement, len(playerIDs))
	for i, playerID := range playerIDs {
		if _, dup := placements[playerID]; dup {
			return nil, fmt.Errorf("seating: duplicate player id %d", playerID)
		}
		placements[playerID] = Placement{
			TableIndex: i % tableCount,
			SeatNumber: i / tableCount,
		}
	}
	return placements, nil
}

// AssignToTables distributes players across an existing set of tableCount
// tables. It fails with ErrInsufficientTables when the players do not fit;
// creating another table is the caller's job, silent drops are not.
func AssignToTables(playerIDs []int, tableCount, seatsPerTable int) (map[int]Placement, error) {
	if seatsPerTable < 2 {
		return nil, ErrInvalidSeatCount
	}
	if len(playerIDs) == 0 {
		return nil, ErrNoPlayers
	}
	if len(playerIDs) > tableCount*seatsPerTable {
		return nil, fmt.Errorf("%w: %d players, %d seats", ErrInsufficientTables, len(playerIDs), tableCount*seatsPerTable)
	}

	placements := make(map[int]Placement, len(playerIDs))
	for i, playerID := range playerIDs {
		if _, dup := placements[playerID]; dup {
			return nil, fmt.Errorf("seating: duplicate player id %d", playerID)
		}
		placements[playerID] = Placement{
			TableIndex: i % tableCount,
			SeatNumber: i / tableCount,
		}
	}
	return placements, nil
}
