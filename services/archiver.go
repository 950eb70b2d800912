package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/greenfelt/club-engine/repositories"
	"github.com/greenfelt/club-engine/storage"
)

// ResultsArchiver persists a final-standings snapshot when a tournament
// completes. Archival is best-effort from the caller's perspective.
type ResultsArchiver interface {
	ArchiveStandings(ctx context.Context, tournamentID int, players []repositories.PlayerRow) error
}

type objectStoreArchiver struct {
	uploader storage.FileUploader
}

func NewObjectStoreArchiver(uploader storage.FileUploader) ResultsArchiver {
	return &objectStoreArchiver{uploader: uploader}
}

type archivedStanding struct {
	PlayerID    int    `json:"player_id"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
	Stack       int64  `json:"stack"`
}

func (a *objectStoreArchiver) ArchiveStandings(ctx context.Context, tournamentID int, players []repositories.PlayerRow) error {
	standings := make([]archivedStanding, 0, len(players))
	for _, row := range players {
		standings = append(standings, archivedStanding{
			PlayerID:    row.Registration.PlayerID,
			DisplayName: displayNameOrPlaceholder(row.DisplayName, row.Registration.PlayerID),
			Status:      string(row.Registration.Status),
			Stack:       row.Registration.Stack,
		})
	}

	payload, err := json.Marshal(map[string]interface{}{
		"tournament_id": tournamentID,
		"archived_at":   time.Now().UTC(),
		"standings":     standings,
	})
	if err != nil {
		return err
	}

	key := fmt.Sprintf("results/tournament-%d.json", tournamentID)
	_, err = a.uploader.Upload(ctx, key, "application/json", bytes.NewReader(payload))
	return err
}
