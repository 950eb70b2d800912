package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/greenfelt/club-engine/blinds"
	"github.com/greenfelt/club-engine/models"
	"github.com/greenfelt/club-engine/realtime"
	"github.com/greenfelt/club-engine/repositories"
	"github.com/greenfelt/club-engine/storage"
)

// Capacity bounds for tournament creation.
const (
	MinTournamentPlayers = 2
	MaxTournamentPlayers = 1000
	MinSeatsPerTable     = 2
	MaxSeatsPerTable     = 10
)

type CreateTournamentInput struct {
	ClubID          *int            `json:"club_id"`
	Name            string          `json:"name"`
	MaxPlayers      int             `json:"max_players"`
	PlayersPerTable int             `json:"players_per_table"`
	StartingStack   int64           `json:"starting_stack"`
	StartTime       *time.Time      `json:"start_time"`
	LateRegLevel    int             `json:"late_reg_level"`
	EntryFeeCents   *int64          `json:"entry_fee_cents"`
	PayoutStructure json.RawMessage `json:"payout_structure"`
	Levels          []LevelInput    `json:"levels"`
}

type LevelInput struct {
	SmallBlind      int64 `json:"small_blind"`
	BigBlind        int64 `json:"big_blind"`
	Ante            int64 `json:"ante"`
	DurationSeconds int64 `json:"duration_seconds"`
	IsBreak         bool  `json:"is_break"`
}

// TournamentStateView is the consolidated read projection: pure, no side
// effects.
type TournamentStateView struct {
	Tournament     *models.Tournament      `json:"tournament"`
	Players        []PlayerView            `json:"players"`
	Tables         []models.TableOccupancy `json:"tables"`
	SecondsInLevel int                     `json:"seconds_remaining_in_level"`
	YourTableID    *int                    `json:"your_table_id,omitempty"`
	YourSeatNo     *int                    `json:"your_seat_no,omitempty"`
}

type PlayerView struct {
	PlayerID    int                       `json:"player_id"`
	DisplayName string                    `json:"display_name"`
	AvatarURL   *string                   `json:"avatar_url,omitempty"`
	Status      models.RegistrationStatus `json:"status"`
	TableID     *int                      `json:"table_id,omitempty"`
	SeatNo      *int                      `json:"seat_no,omitempty"`
	Stack       int64                     `json:"stack"`
}

type TournamentService interface {
	CreateTournament(ctx context.Context, actorID int, actorRole models.UserRole, input CreateTournamentInput) (*models.Tournament, error)
	ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	RegisterPlayer(ctx context.Context, tournamentID, playerID int) (*models.Registration, error)
	StartTournament(ctx context.Context, tournamentID, actorID int, actorRole models.UserRole) error
	AdvanceLevel(ctx context.Context, tournamentID, actorID int, actorRole models.UserRole) (*models.Level, error)
	CompleteTournament(ctx context.Context, tournamentID, actorID int, actorRole models.UserRole) error
	CancelTournament(ctx context.Context, tournamentID, actorID int, actorRole models.UserRole) error
	GetTournamentState(ctx context.Context, tournamentID, viewerID int) (*TournamentStateView, error)
}

type tournamentService struct {
	txRunner     repositories.TxRunner
	tournRepo    repositories.TournamentRepository
	regRepo      repositories.RegistrationRepository
	tableRepo    repositories.TableRepository
	clubRepo     repositories.ClubRepository
	tableService TableService
	archiver     ResultsArchiver
	uploader     storage.FileUploader
	broadcast    realtime.Broadcaster
	logger       *slog.Logger
}

func NewTournamentService(
	txRunner repositories.TxRunner,
	tournRepo repositories.TournamentRepository,
	regRepo repositories.RegistrationRepository,
	tableRepo repositories.TableRepository,
	clubRepo repositories.ClubRepository,
	tableService TableService,
	archiver ResultsArchiver,
	uploader storage.FileUploader,
	broadcast realtime.Broadcaster,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		txRunner:     txRunner,
		tournRepo:    tournRepo,
		regRepo:      regRepo,
		tableRepo:    tableRepo,
		clubRepo:     clubRepo,
		tableService: tableService,
		archiver:     archiver,
		uploader:     uploader,
		broadcast:    broadcast,
		logger:       logger,
	}
}

func (s *tournamentService) CreateTournament(ctx context.Context, actorID int, actorRole models.UserRole, input CreateTournamentInput) (*models.Tournament, error) {
	paid := input.EntryFeeCents != nil && *input.EntryFeeCents > 0
	if err := authorizeCreate(actorRole, paid); err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, ErrTournamentNameRequired
	}
	if input.MaxPlayers < MinTournamentPlayers || input.MaxPlayers > MaxTournamentPlayers {
		return nil, fmt.Errorf("%w: max_players must be between %d and %d", ErrTournamentInvalidCapacity, MinTournamentPlayers, MaxTournamentPlayers)
	}
	if input.PlayersPerTable < MinSeatsPerTable || input.PlayersPerTable > MaxSeatsPerTable {
		return nil, fmt.Errorf("%w: players_per_table must be between %d and %d", ErrTournamentInvalidCapacity, MinSeatsPerTable, MaxSeatsPerTable)
	}
	if input.StartingStack <= 0 {
		return nil, fmt.Errorf("%w: starting stack must be positive", ErrValidationFailed)
	}

	levels := make([]models.Level, len(input.Levels))
	for i, in := range input.Levels {
		levels[i] = models.Level{
			Idx:        i,
			SmallBlind: in.SmallBlind,
			BigBlind:   in.BigBlind,
			Ante:       in.Ante,
			Duration:   time.Duration(in.DurationSeconds) * time.Second,
			IsBreak:    in.IsBreak,
		}
	}
	if err := blinds.Validate(levels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTournamentInvalidSchedule, err)
	}

	status := models.StatusRegistering
	if paid {
		// Paid events open via the payment flow on a fixed schedule.
		status = models.StatusScheduled
	}
	if (paid || status == models.StatusScheduled) && input.StartTime == nil {
		return nil, ErrTournamentStartTimeNeeded
	}

	if input.ClubID != nil {
		if _, err := s.clubRepo.GetByID(ctx, *input.ClubID); err != nil {
			if errors.Is(err, repositories.ErrClubNotFound) {
				return nil, ErrClubNotFound
			}
			return nil, err
		}
	}

	t := &models.Tournament{
		ClubID:          input.ClubID,
		Name:            input.Name,
		Type:            models.TypeFreezeout,
		Status:          status,
		CreatorID:       actorID,
		MaxPlayers:      input.MaxPlayers,
		PlayersPerTable: input.PlayersPerTable,
		StartingStack:   input.StartingStack,
		StartTime:       input.StartTime,
		LateRegLevel:    input.LateRegLevel,
		EntryFeeCents:   input.EntryFeeCents,
		PayoutStructure: input.PayoutStructure,
		Levels:          levels,
	}

	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.tournRepo.Create(ctx, exec, t)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tournament created",
		slog.Int("tournament_id", t.ID),
		slog.Int("creator_id", actorID),
		slog.Bool("paid", paid))
	return t, nil
}

func authorizeCreate(role models.UserRole, paid bool) error {
	switch role {
	case models.RoleAppAdmin:
		return nil
	case models.RoleClubAdmin:
		if paid {
			// Paid tournaments are an app-level product.
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}

func (s *tournamentService) ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.tournRepo.List(ctx, filter)
}

func (s *tournamentService) RegisterPlayer(ctx context.Context, tournamentID, playerID int) (*models.Registration, error) {
	var reg *models.Registration

	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		// Row lock serializes concurrent registers (and register vs start)
		// on the same tournament; the capacity count below is therefore
		// race-free.
		t, err := s.tournRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}

		if err := s.checkRegistrationWindow(t); err != nil {
			return err
		}

		if t.ClubID != nil {
			member, err := s.clubRepo.IsMember(ctx, *t.ClubID, playerID)
			if err != nil {
				return err
			}
			if !member {
				return ErrNotClubMember
			}
		}

		if _, err := s.regRepo.FindActiveByPlayer(ctx, exec, tournamentID, playerID); err == nil {
			return ErrAlreadyRegistered
		} else if !errors.Is(err, repositories.ErrRegistrationNotFound) {
			return err
		}

		confirmed, err := s.regRepo.CountConfirmed(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if confirmed >= t.MaxPlayers {
			return ErrTournamentFull
		}

		reg = &models.Registration{
			TournamentID: tournamentID,
			PlayerID:     playerID,
			Status:       models.RegStatusRegistered,
		}
		if err := s.regRepo.Create(ctx, exec, reg); err != nil {
			if errors.Is(err, repositories.ErrRegistrationConflict) {
				return ErrAlreadyRegistered
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// checkRegistrationWindow decides whether registration is open given the
// tournament's state. While running, late registration is allowed up to the
// configured level-index cutoff.
func (s *tournamentService) checkRegistrationWindow(t *models.Tournament) error {
	switch t.Status {
	case models.StatusRegistering:
		return nil
	case models.StatusScheduled:
		if t.Paid() {
			return nil
		}
		return ErrRegistrationClosed
	case models.StatusRunning:
		if t.CurrentLevelIdx <= t.LateRegLevel {
			return nil
		}
		return ErrRegistrationClosed
	case models.StatusDraft:
		return ErrInvalidState
	default:
		return ErrRegistrationClosed
	}
}

func (s *tournamentService) StartTournament(ctx context.Context, tournamentID, actorID int, actorRole models.UserRole) error {
	var (
		startingLevel models.Level
		startedAt     time.Time
	)

	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}

		if actorID != t.CreatorID && actorRole != models.RoleAppAdmin {
			return ErrForbidden
		}
		if t.Status != models.StatusRegistering && t.Status != models.StatusScheduled {
			return ErrInvalidState
		}

		regs, err := s.regRepo.ListConfirmed(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if len(regs) < MinTournamentPlayers {
			return ErrNotEnoughPlayers
		}

		firstIdx, err := blinds.FirstPlayable(t.Levels)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTournamentInvalidSchedule, err)
		}
		t.CurrentLevelIdx = firstIdx
		startingLevel = t.Levels[firstIdx]
		startedAt = time.Now().UTC()

		if _, err := s.tableService.MaterializeTables(ctx, exec, t, regs); err != nil {
			return err
		}

		// Conditional writes close the gap between the read above and this
		// commit; a lost race is a typed conflict, not corrupted state.
		if err := s.tournRepo.UpdateStatus(ctx, exec, tournamentID, t.Status, models.StatusRunning); err != nil {
			if errors.Is(err, repositories.ErrTournamentStateChanged) {
				return ErrConflict
			}
			return err
		}
		if err := s.tournRepo.SetLevel(ctx, exec, tournamentID, 0, firstIdx, startedAt); err != nil {
			if errors.Is(err, repositories.ErrTournamentStateChanged) {
				return ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("tournament started", slog.Int("tournament_id", tournamentID))
	s.broadcast.BroadcastToRoom(realtime.TournamentRoom(tournamentID), realtime.Message{
		Type: realtime.EventLevelChange,
		Payload: realtime.LevelChangeEvent{
			TournamentID:   tournamentID,
			Level:          startingLevel.Idx,
			SmallBlind:     startingLevel.SmallBlind,
			BigBlind:       startingLevel.BigBlind,
			Ante:           startingLevel.Ante,
			IsBreak:        startingLevel.IsBreak,
			LevelStartedAt: startedAt,
		},
	})
	return nil
}

func (s *tournamentService) AdvanceLevel(ctx context.Context, tournamentID, actorID int, actorRole models.UserRole) (*models.Level, error) {
	var (
		next      models.Level
		startedAt time.Time
	)

	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}

		if actorID != t.CreatorID && actorRole != models.RoleAppAdmin {
			return ErrForbidden
		}
		if t.Status != models.StatusRunning {
			return ErrInvalidState
		}

		next, err = blinds.Next(t.Levels, t.CurrentLevelIdx)
		if err != nil {
			if errors.Is(err, blinds.ErrScheduleExhausted) {
				return ErrScheduleExhausted
			}
			return err
		}
		startedAt = time.Now().UTC()

		// Tables first: no reader may observe a table at the old blinds
		// once the tournament row says the new level is live. Both writes
		// commit atomically.
		if err := s.tableService.UpdateBlinds(ctx, exec, tournamentID, next); err != nil {
			return err
		}
		if err := s.tournRepo.SetLevel(ctx, exec, tournamentID, t.CurrentLevelIdx, next.Idx, startedAt); err != nil {
			if errors.Is(err, repositories.ErrTournamentStateChanged) {
				return ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("blind level advanced",
		slog.Int("tournament_id", tournamentID), slog.Int("level", next.Idx), slog.Bool("is_break", next.IsBreak))
	s.broadcast.BroadcastToRoom(realtime.TournamentRoom(tournamentID), realtime.Message{
		Type: realtime.EventLevelChange,
		Payload: realtime.LevelChangeEvent{
			TournamentID:   tournamentID,
			Level:          next.Idx,
			SmallBlind:     next.SmallBlind,
			BigBlind:       next.BigBlind,
			Ante:           next.Ante,
			IsBreak:        next.IsBreak,
			LevelStartedAt: startedAt,
		},
	})
	return &next, nil
}

func (s *tournamentService) CompleteTournament(ctx context.Context, tournamentID, actorID int, actorRole models.UserRole) error {
	var closedTables []int
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if actorID != t.CreatorID && actorRole != models.RoleAppAdmin {
			return ErrForbidden
		}
		if t.Status != models.StatusRunning {
			return ErrInvalidState
		}
		closedTables, err = s.tableService.CloseAll(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if err := s.tournRepo.UpdateStatus(ctx, exec, tournamentID, models.StatusRunning, models.StatusComplete); err != nil {
			if errors.Is(err, repositories.ErrTournamentStateChanged) {
				return ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcastTablesClosed(closedTables)
	s.logger.Info("tournament complete", slog.Int("tournament_id", tournamentID))
	s.archiveResults(ctx, tournamentID)
	return nil
}

func (s *tournamentService) CancelTournament(ctx context.Context, tournamentID, actorID int, actorRole models.UserRole) error {
	var closedTables []int
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.tournRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if actorID != t.CreatorID && actorRole != models.RoleAppAdmin {
			return ErrForbidden
		}
		if t.Terminal() {
			return ErrInvalidState
		}
		// Cancelling a running tournament must not orphan seated players:
		// tables close inside the same transaction.
		if t.Status == models.StatusRunning {
			closedTables, err = s.tableService.CloseAll(ctx, exec, tournamentID)
			if err != nil {
				return err
			}
		}
		if err := s.tournRepo.UpdateStatus(ctx, exec, tournamentID, t.Status, models.StatusCancelled); err != nil {
			if errors.Is(err, repositories.ErrTournamentStateChanged) {
				return ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.broadcastTablesClosed(closedTables)
	s.logger.Info("tournament cancelled", slog.Int("tournament_id", tournamentID))
	return nil
}

// broadcastTablesClosed tells each table room its table is gone. Called only
// after the closing transaction committed so clients never see a closure that
// rolled back.
func (s *tournamentService) broadcastTablesClosed(tableIDs []int) {
	for _, id := range tableIDs {
		s.broadcast.BroadcastToRoom(realtime.TableRoom(id), realtime.Message{
			Type: realtime.EventSeatChange,
			Payload: realtime.SeatChangeEvent{
				Action:  realtime.SeatActionTableClosed,
				TableID: id,
			},
		})
	}
}

func (s *tournamentService) GetTournamentState(ctx context.Context, tournamentID, viewerID int) (*TournamentStateView, error) {
	t, err := s.tournRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	view := &TournamentStateView{Tournament: t}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.regRepo.ListPlayers(gCtx, tournamentID)
		if err != nil {
			return err
		}
		view.Players = make([]PlayerView, 0, len(rows))
		for _, row := range rows {
			pv := PlayerView{
				PlayerID:    row.Registration.PlayerID,
				DisplayName: displayNameOrPlaceholder(row.DisplayName, row.Registration.PlayerID),
				AvatarURL:   s.avatarURL(row.AvatarKey),
				Status:      row.Registration.Status,
				TableID:     row.Registration.TableID,
				SeatNo:      row.Registration.SeatNo,
				Stack:       row.Registration.Stack,
			}
			view.Players = append(view.Players, pv)
			if row.Registration.PlayerID == viewerID {
				view.YourTableID = row.Registration.TableID
				view.YourSeatNo = row.Registration.SeatNo
			}
		}
		return nil
	})
	g.Go(func() error {
		occ, err := s.tableRepo.Occupancy(gCtx, tournamentID)
		if err != nil {
			return err
		}
		view.Tables = occ
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if t.Status == models.StatusRunning && t.LevelStartedAt != nil {
		if _, remaining, err := blinds.Current(t.Levels, t.CurrentLevelIdx, *t.LevelStartedAt, time.Now().UTC()); err == nil {
			view.SecondsInLevel = remaining
		}
	}
	return view, nil
}

// avatarURL resolves a stored object key into the public delivery URL. Nil
// when the player has no avatar or no object store is configured.
func (s *tournamentService) avatarURL(key *string) *string {
	if s.uploader == nil || key == nil || *key == "" {
		return nil
	}
	u := s.uploader.GetPublicURL(*key)
	if u == "" {
		return nil
	}
	return &u
}

// displayNameOrPlaceholder keeps the projection total: a missing profile
// never fails the read.
func displayNameOrPlaceholder(name *string, playerID int) string {
	if name != nil && *name != "" {
		return *name
	}
	return fmt.Sprintf("Player %d", playerID)
}

// archiveResults pushes a final-standings snapshot to object storage.
// Best-effort: completion already committed, an archive failure only logs.
func (s *tournamentService) archiveResults(ctx context.Context, tournamentID int) {
	if s.archiver == nil {
		return
	}
	rows, err := s.regRepo.ListPlayers(ctx, tournamentID)
	if err != nil {
		s.logger.Error("results archive: list players failed",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	if err := s.archiver.ArchiveStandings(ctx, tournamentID, rows); err != nil {
		s.logger.Error("results archive failed",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
	}
}
