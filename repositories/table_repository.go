package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/greenfelt/club-engine/models"
)

var (
	ErrTableNotFound     = errors.New("table not found")
	ErrTableStateChanged = errors.New("table state changed concurrently")
)

type TableRepository interface {
	Create(ctx context.Context, exec SQLExecutor, table *models.Table) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Table, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, includeClosed bool) ([]*models.Table, error)
	// UpdateBlinds refreshes the denormalized blind fields on every
	// non-closed table of the tournament. It runs inside the same
	// transaction as the tournament's level advance so readers never see a
	// table lagging behind its tournament.
	UpdateBlinds(ctx context.Context, exec SQLExecutor, tournamentID int, smallBlind, bigBlind, ante int64) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, expected, next models.TableStatus) error
	// Close marks a table closed from any non-closed status. Closure is
	// terminal; closed table identities are never reused.
	Close(ctx context.Context, exec SQLExecutor, id int) error
	Occupancy(ctx context.Context, tournamentID int) ([]models.TableOccupancy, error)
}

type postgresTableRepository struct {
	db *sql.DB
}

func NewPostgresTableRepository(db *sql.DB) TableRepository {
	return &postgresTableRepository{db: db}
}

func (r *postgresTableRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tableColumns = `id, tournament_id, capacity, small_blind, big_blind, ante, status, created_at`

func scanTable(row interface{ Scan(...interface{}) error }, t *models.Table) error {
	return row.Scan(&t.ID, &t.TournamentID, &t.Capacity, &t.SmallBlind, &t.BigBlind, &t.Ante, &t.Status, &t.CreatedAt)
}

func (r *postgresTableRepository) Create(ctx context.Context, exec SQLExecutor, table *models.Table) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tables (tournament_id, capacity, small_blind, big_blind, ante, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return executor.QueryRowContext(ctx, query,
		table.TournamentID, table.Capacity, table.SmallBlind, table.BigBlind, table.Ante, table.Status,
	).Scan(&table.ID, &table.CreatedAt)
}

func (r *postgresTableRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Table, error) {
	executor := r.getExecutor(exec)
	t := &models.Table{}
	err := scanTable(executor.QueryRowContext(ctx, `SELECT `+tableColumns+` FROM tables WHERE id = $1`, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTableRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, includeClosed bool) ([]*models.Table, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + tableColumns + ` FROM tables WHERE tournament_id = $1`
	args := []interface{}{tournamentID}
	if !includeClosed {
		query += ` AND status <> $2`
		args = append(args, models.TableStatusClosed)
	}
	query += ` ORDER BY id`

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make([]*models.Table, 0)
	for rows.Next() {
		t := &models.Table{}
		if err := scanTable(rows, t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (r *postgresTableRepository) UpdateBlinds(ctx context.Context, exec SQLExecutor, tournamentID int, smallBlind, bigBlind, ante int64) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `
		UPDATE tables
		SET small_blind = $1, big_blind = $2, ante = $3
		WHERE tournament_id = $4 AND status <> $5`,
		smallBlind, bigBlind, ante, tournamentID, models.TableStatusClosed)
	return err
}

func (r *postgresTableRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, expected, next models.TableStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tables SET status = $1 WHERE id = $2 AND status = $3`,
		next, id, expected)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTableStateChanged)
}

func (r *postgresTableRepository) Close(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tables SET status = $1 WHERE id = $2 AND status <> $1`,
		models.TableStatusClosed, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTableStateChanged)
}

func (r *postgresTableRepository) Occupancy(ctx context.Context, tournamentID int) ([]models.TableOccupancy, error) {
	executor := r.getExecutor(nil)
	rows, err := executor.QueryContext(ctx, `
		SELECT t.id, t.capacity, COUNT(s.player_id) AS occupied
		FROM tables t
		LEFT JOIN seats s ON s.table_id = t.id AND s.status <> $1
		WHERE t.tournament_id = $2 AND t.status <> $3
		GROUP BY t.id, t.capacity
		ORDER BY t.id`,
		models.SeatStatusEmpty, tournamentID, models.TableStatusClosed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occ := make([]models.TableOccupancy, 0)
	for rows.Next() {
		var o models.TableOccupancy
		if err := rows.Scan(&o.TableID, &o.Capacity, &o.Occupied); err != nil {
			return nil, err
		}
		occ = append(occ, o)
	}
	return occ, rows.Err()
}
