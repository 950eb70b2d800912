package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/greenfelt/club-engine/models"
)

var (
	ErrSeatNotFound = errors.New("seat not found")
	// ErrSeatOccupied is the losing side of a conditional occupy: the seat
	// was no longer empty when the write landed.
	ErrSeatOccupied = errors.New("seat is already occupied")
	// ErrSeatNotHeld is the losing side of a conditional vacate: the seat
	// no longer holds the expected player.
	ErrSeatNotHeld = errors.New("seat is not held by this player")
)

// RepeatOffender is a seat whose consecutive-timeout counter crossed the
// removal threshold, joined with its table's tournament for leave handling.
type RepeatOffender struct {
	TableID      int
	SeatNo       int
	PlayerID     int
	TournamentID *int
	TimeoutCount int
}

type SeatRepository interface {
	// CreateForTable seeds capacity empty seats, numbered from 0.
	CreateForTable(ctx context.Context, exec SQLExecutor, tableID, capacity int) error
	ListByTable(ctx context.Context, exec SQLExecutor, tableID int) ([]*models.Seat, error)
	FindActiveByPlayer(ctx context.Context, exec SQLExecutor, playerID int) (*models.Seat, error)
	// Occupy seats a player conditioned on the seat being empty and the
	// player holding no other seat; either failed condition is a typed error.
	Occupy(ctx context.Context, exec SQLExecutor, tableID, seatNo, playerID int, stack int64) error
	// Vacate empties a seat conditioned on the expected occupant.
	Vacate(ctx context.Context, exec SQLExecutor, tableID, seatNo, playerID int) error
	CountOccupied(ctx context.Context, exec SQLExecutor, tableID int) (int, error)
	IncrementTimeout(ctx context.Context, exec SQLExecutor, tableID, seatNo int) error
	Heartbeat(ctx context.Context, tableID, playerID int, at time.Time) error
	ListRepeatOffenders(ctx context.Context, threshold int) ([]RepeatOffender, error)
}

type postgresSeatRepository struct {
	db *sql.DB
}

func NewPostgresSeatRepository(db *sql.DB) SeatRepository {
	return &postgresSeatRepository{db: db}
}

func (r *postgresSeatRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const seatColumns = `table_id, seat_no, player_id, stack, status, timeout_count, last_heartbeat`

func scanSeat(row interface{ Scan(...interface{}) error }, s *models.Seat) error {
	return row.Scan(&s.TableID, &s.SeatNo, &s.PlayerID, &s.Stack, &s.Status, &s.TimeoutCount, &s.LastHeartbeat)
}

func (r *postgresSeatRepository) CreateForTable(ctx context.Context, exec SQLExecutor, tableID, capacity int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `
		INSERT INTO seats (table_id, seat_no, status)
		SELECT $1, n, $2 FROM generate_series(0, $3 - 1) AS n`,
		tableID, models.SeatStatusEmpty, capacity)
	return err
}

func (r *postgresSeatRepository) ListByTable(ctx context.Context, exec SQLExecutor, tableID int) ([]*models.Seat, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx,
		`SELECT `+seatColumns+` FROM seats WHERE table_id = $1 ORDER BY seat_no`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seats := make([]*models.Seat, 0)
	for rows.Next() {
		s := &models.Seat{}
		if err := scanSeat(rows, s); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

func (r *postgresSeatRepository) FindActiveByPlayer(ctx context.Context, exec SQLExecutor, playerID int) (*models.Seat, error) {
	executor := r.getExecutor(exec)
	s := &models.Seat{}
	err := scanSeat(executor.QueryRowContext(ctx, `
		SELECT `+seatColumns+` FROM seats
		WHERE player_id = $1 AND status <> $2`, playerID, models.SeatStatusEmpty), s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeatNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *postgresSeatRepository) Occupy(ctx context.Context, exec SQLExecutor, tableID, seatNo, playerID int, stack int64) error {
	executor := r.getExecutor(exec)
	// The NOT EXISTS clause keeps the one-seat-per-player invariant: the
	// occupy only lands if the player holds no other non-empty seat.
	result, err := executor.ExecContext(ctx, `
		UPDATE seats
		SET player_id = $1, stack = $2, status = $3, timeout_count = 0, last_heartbeat = NOW()
		WHERE table_id = $4 AND seat_no = $5 AND status = $6
		AND NOT EXISTS (
			SELECT 1 FROM seats WHERE player_id = $1 AND status <> $6
		)`,
		playerID, stack, models.SeatStatusActive, tableID, seatNo, models.SeatStatusEmpty)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrSeatOccupied)
}

func (r *postgresSeatRepository) Vacate(ctx context.Context, exec SQLExecutor, tableID, seatNo, playerID int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE seats
		SET player_id = NULL, stack = 0, status = $1, timeout_count = 0, last_heartbeat = NULL
		WHERE table_id = $2 AND seat_no = $3 AND player_id = $4`,
		models.SeatStatusEmpty, tableID, seatNo, playerID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrSeatNotHeld)
}

func (r *postgresSeatRepository) CountOccupied(ctx context.Context, exec SQLExecutor, tableID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seats WHERE table_id = $1 AND status <> $2`,
		tableID, models.SeatStatusEmpty).Scan(&count)
	return count, err
}

func (r *postgresSeatRepository) IncrementTimeout(ctx context.Context, exec SQLExecutor, tableID, seatNo int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE seats SET timeout_count = timeout_count + 1
		WHERE table_id = $1 AND seat_no = $2 AND status <> $3`,
		tableID, seatNo, models.SeatStatusEmpty)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrSeatNotFound)
}

func (r *postgresSeatRepository) Heartbeat(ctx context.Context, tableID, playerID int, at time.Time) error {
	executor := r.getExecutor(nil)
	result, err := executor.ExecContext(ctx, `
		UPDATE seats SET last_heartbeat = $1, timeout_count = 0
		WHERE table_id = $2 AND player_id = $3 AND status <> $4`,
		at, tableID, playerID, models.SeatStatusEmpty)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrSeatNotFound)
}

func (r *postgresSeatRepository) ListRepeatOffenders(ctx context.Context, threshold int) ([]RepeatOffender, error) {
	executor := r.getExecutor(nil)
	rows, err := executor.QueryContext(ctx, `
		SELECT s.table_id, s.seat_no, s.player_id, t.tournament_id, s.timeout_count
		FROM seats s
		JOIN tables t ON t.id = s.table_id
		WHERE s.status <> $1 AND s.player_id IS NOT NULL AND s.timeout_count >= $2
		ORDER BY s.table_id, s.seat_no`,
		models.SeatStatusEmpty, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offenders := make([]RepeatOffender, 0)
	for rows.Next() {
		var o RepeatOffender
		if err := rows.Scan(&o.TableID, &o.SeatNo, &o.PlayerID, &o.TournamentID, &o.TimeoutCount); err != nil {
			return nil, err
		}
		offenders = append(offenders, o)
	}
	return offenders, rows.Err()
}
