// Package blinds holds the pure blind-schedule logic: validating a level
// sequence and resolving the active level from elapsed time. It carries no
// state; the tournament record owns the authoritative level index.
package blinds

import (
	"errors"
	"fmt"
	"time"

	"github.com/greenfelt/club-engine/models"
)

var (
	ErrScheduleEmpty     = errors.New("blind schedule must contain at least one level")
	ErrScheduleExhausted = errors.New("blind schedule exhausted")
	ErrLevelOutOfRange   = errors.New("level index out of schedule range")
)

// Validate checks a schedule before a tournament may be created with it.
// Levels must be contiguously indexed from 0, every numeric level needs a
// positive duration and blinds, and the schedule must contain at least one
// playable (non-break) level so a started tournament has blinds to deal.
func Validate(schedule []models.Level) error {
	if len(schedule) == 0 {
		return ErrScheduleEmpty
	}
	playable := false
	for i, lvl := range schedule {
		if lvl.Idx != i {
			return fmt.Errorf("level at position %d has index %d, expected %d", i, lvl.Idx, i)
		}
		if lvl.Duration <= 0 {
			return fmt.Errorf("level %d has non-positive duration", i)
		}
		if lvl.IsBreak {
			continue
		}
		playable = true
		if lvl.SmallBlind <= 0 || lvl.BigBlind < lvl.SmallBlind {
			return fmt.Errorf("level %d has invalid blinds %d/%d", i, lvl.SmallBlind, lvl.BigBlind)
		}
	}
	if !playable {
		return errors.New("blind schedule contains no playable level")
	}
	return nil
}

// FirstPlayable returns the index of the first non-break entry.
func FirstPlayable(schedule []models.Level) (int, error) {
	for i, lvl := range schedule {
		if !lvl.IsBreak {
			return i, nil
		}
	}
	return 0, ErrScheduleExhausted
}

// Current resolves the active level and the seconds remaining in it, given
// the authoritative level index and the time the level started. A negative
// remainder is clamped to zero; the caller advances the schedule explicitly,
// never this function.
func Current(schedule []models.Level, levelIdx int, startedAt, now time.Time) (models.Level, int, error) {
	if levelIdx < 0 || levelIdx >= len(schedule) {
		return models.Level{}, 0, ErrLevelOutOfRange
	}
	lvl := schedule[levelIdx]
	remaining := lvl.Duration - now.Sub(startedAt)
	if remaining < 0 {
		remaining = 0
	}
	return lvl, int(remaining / time.Second), nil
}

// Next returns the entry following levelIdx. Levels are consumed strictly in
// order; breaks occupy slots like any other level. Advancing past the last
// entry fails with ErrScheduleExhausted and must not wrap around.
func Next(schedule []models.Level, levelIdx int) (models.Level, error) {
	if levelIdx < 0 || levelIdx >= len(schedule) {
		return models.Level{}, ErrLevelOutOfRange
	}
	if levelIdx == len(schedule)-1 {
		return models.Level{}, ErrScheduleExhausted
	}
	return schedule[levelIdx+1], nil
}
