package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/greenfelt/club-engine/models"
	"github.com/greenfelt/club-engine/realtime"
	"github.com/greenfelt/club-engine/repositories"
	"github.com/greenfelt/club-engine/seating"
)

// TableService owns table and seat mutation. All seat writes funnel through
// here so the one-seat-per-player invariant has a single enforcement point.
type TableService interface {
	// MaterializeTables creates tables sized for the confirmed field,
	// seats every player round-robin at the starting stack and activates
	// the tables. Runs inside the start transaction.
	MaterializeTables(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, regs []*models.Registration) ([]*models.Table, error)
	// UpdateBlinds pushes a level's blind values onto every non-closed
	// table of the tournament, inside the advance transaction.
	UpdateBlinds(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, level models.Level) error
	// Leave vacates the player's seat, forfeits the stack, eliminates the
	// registration, closes the table when its last seat empties, and
	// broadcasts the seat change.
	Leave(ctx context.Context, tableID, playerID int) error
	// CloseAll closes every open table of a tournament (cancellation path:
	// seated players must not be silently orphaned) and returns the closed
	// table IDs so the caller can broadcast after its transaction commits.
	CloseAll(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]int, error)
	Heartbeat(ctx context.Context, tableID, playerID int) error
}

type tableService struct {
	txRunner  repositories.TxRunner
	tableRepo repositories.TableRepository
	seatRepo  repositories.SeatRepository
	regRepo   repositories.RegistrationRepository
	broadcast realtime.Broadcaster
	logger    *slog.Logger
}

func NewTableService(
	txRunner repositories.TxRunner,
	tableRepo repositories.TableRepository,
	seatRepo repositories.SeatRepository,
	regRepo repositories.RegistrationRepository,
	broadcast realtime.Broadcaster,
	logger *slog.Logger,
) TableService {
	return &tableService{
		txRunner:  txRunner,
		tableRepo: tableRepo,
		seatRepo:  seatRepo,
		regRepo:   regRepo,
		broadcast: broadcast,
		logger:    logger,
	}
}

func (s *tableService) MaterializeTables(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, regs []*models.Registration) ([]*models.Table, error) {
	playerIDs := make([]int, len(regs))
	regByPlayer := make(map[int]*models.Registration, len(regs))
	for i, reg := range regs {
		playerIDs[i] = reg.PlayerID
		regByPlayer[reg.PlayerID] = reg
	}

	placements, err := seating.Assign(playerIDs, t.PlayersPerTable)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	firstLevel := t.Levels[t.CurrentLevelIdx]
	tableCount := seating.TableCount(len(playerIDs), t.PlayersPerTable)
	tables := make([]*models.Table, tableCount)
	for i := 0; i < tableCount; i++ {
		table := &models.Table{
			TournamentID: &t.ID,
			Capacity:     t.PlayersPerTable,
			SmallBlind:   firstLevel.SmallBlind,
			BigBlind:     firstLevel.BigBlind,
			Ante:         firstLevel.Ante,
			Status:       models.TableStatusWaiting,
		}
		if err := s.tableRepo.Create(ctx, exec, table); err != nil {
			return nil, fmt.Errorf("create table %d: %w", i, err)
		}
		if err := s.seatRepo.CreateForTable(ctx, exec, table.ID, table.Capacity); err != nil {
			return nil, fmt.Errorf("seed seats for table %d: %w", table.ID, err)
		}
		tables[i] = table
	}

	for playerID, placement := range placements {
		table := tables[placement.TableIndex]
		if err := s.seatRepo.Occupy(ctx, exec, table.ID, placement.SeatNumber, playerID, t.StartingStack); err != nil {
			return nil, fmt.Errorf("seat player %d at table %d: %w", playerID, table.ID, err)
		}
		if err := s.regRepo.AssignSeat(ctx, exec, regByPlayer[playerID].ID, table.ID, placement.SeatNumber, t.StartingStack); err != nil {
			return nil, fmt.Errorf("assign seat to registration %d: %w", regByPlayer[playerID].ID, err)
		}
	}

	for _, table := range tables {
		if err := s.tableRepo.UpdateStatus(ctx, exec, table.ID, models.TableStatusWaiting, models.TableStatusActive); err != nil {
			return nil, fmt.Errorf("activate table %d: %w", table.ID, err)
		}
		table.Status = models.TableStatusActive
	}
	return tables, nil
}

func (s *tableService) UpdateBlinds(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, level models.Level) error {
	return s.tableRepo.UpdateBlinds(ctx, exec, tournamentID, level.SmallBlind, level.BigBlind, level.Ante)
}

func (s *tableService) Leave(ctx context.Context, tableID, playerID int) error {
	var (
		remaining   int
		leftSeatNo  int
		tableClosed bool
	)

	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		table, err := s.tableRepo.GetByID(ctx, exec, tableID)
		if err != nil {
			if errors.Is(err, repositories.ErrTableNotFound) {
				return ErrTableNotFound
			}
			return err
		}

		seat, err := s.seatRepo.FindActiveByPlayer(ctx, exec, playerID)
		if err != nil || seat.TableID != tableID {
			return ErrNotSeated
		}
		leftSeatNo = seat.SeatNo

		// Leave forfeits the stack; freezeout rules, no cash-out.
		if err := s.seatRepo.Vacate(ctx, exec, tableID, seat.SeatNo, playerID); err != nil {
			if errors.Is(err, repositories.ErrSeatNotHeld) {
				return ErrConflict
			}
			return err
		}

		if table.TournamentID != nil {
			if err := s.regRepo.MarkEliminated(ctx, exec, *table.TournamentID, playerID); err != nil &&
				!errors.Is(err, repositories.ErrRegistrationUnchanged) {
				return err
			}
		}

		remaining, err = s.seatRepo.CountOccupied(ctx, exec, tableID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := s.tableRepo.Close(ctx, exec, tableID); err != nil {
				return err
			}
			tableClosed = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	action := realtime.SeatActionLeave
	if tableClosed {
		action = realtime.SeatActionTableClosed
		s.logger.Info("table closed after last player left",
			slog.Int("table_id", tableID), slog.Int("player_id", playerID))
	}
	s.broadcast.BroadcastToRoom(realtime.TableRoom(tableID), realtime.Message{
		Type: realtime.EventSeatChange,
		Payload: realtime.SeatChangeEvent{
			Action:           action,
			TableID:          tableID,
			SeatNo:           leftSeatNo,
			PlayerID:         playerID,
			RemainingPlayers: remaining,
		},
	})
	return nil
}

func (s *tableService) CloseAll(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]int, error) {
	tables, err := s.tableRepo.ListByTournament(ctx, exec, tournamentID, false)
	if err != nil {
		return nil, err
	}
	// No broadcasting here: the caller runs this inside a transaction, and
	// clients must only hear about closures that actually committed.
	closed := make([]int, 0, len(tables))
	for _, table := range tables {
		if err := s.tableRepo.Close(ctx, exec, table.ID); err != nil {
			return nil, fmt.Errorf("close table %d: %w", table.ID, err)
		}
		closed = append(closed, table.ID)
	}
	return closed, nil
}

func (s *tableService) Heartbeat(ctx context.Context, tableID, playerID int) error {
	err := s.seatRepo.Heartbeat(ctx, tableID, playerID, time.Now().UTC())
	if errors.Is(err, repositories.ErrSeatNotFound) {
		return ErrNotSeated
	}
	return err
}
