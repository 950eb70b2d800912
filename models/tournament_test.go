package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLevelMarshalsDurationInSeconds(t *testing.T) {
	lvl := Level{
		Idx:        2,
		SmallBlind: 100,
		BigBlind:   200,
		Ante:       200,
		Duration:   15 * time.Minute,
	}

	raw, err := json.Marshal(lvl)
	if err != nil {
		t.Fatalf("marshal level: %v", err)
	}
	if !strings.Contains(string(raw), `"duration_seconds":900`) {
		t.Errorf("expected duration_seconds of 900, got %s", raw)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal level: %v", err)
	}
	if got := decoded["duration_seconds"].(float64); got != 900 {
		t.Errorf("duration_seconds = %v, want 900", got)
	}
}
