package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/greenfelt/club-engine/models"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentStateChanged = errors.New("tournament state changed concurrently")
	ErrTournamentInvalidClub  = errors.New("invalid club reference")
	ErrTournamentInvalidUser  = errors.New("invalid creator reference")
)

type ListTournamentsFilter struct {
	ClubID *int
	Status *models.TournamentStatus
	Limit  int
	Offset int
}

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	// GetByIDForUpdate locks the tournament row for the duration of the
	// surrounding transaction, serializing register/start/advance races
	// on the same tournament.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	// UpdateStatus transitions status only when the row still holds
	// expected; a lost race surfaces as ErrTournamentStateChanged.
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, expected, next models.TournamentStatus) error
	// SetLevel records the level index and start timestamp conditioned on
	// the expected prior index, keeping advancement strictly monotonic.
	SetLevel(ctx context.Context, exec SQLExecutor, id, expectedIdx, nextIdx int, startedAt time.Time) error
	LoadLevels(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Level, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, club_id, name, type, status, creator_id, max_players, players_per_table,
	starting_stack, start_time, current_level_idx, level_started_at,
	late_reg_level, entry_fee_cents, payout_structure, created_at`

func scanTournament(row interface{ Scan(...interface{}) error }, t *models.Tournament) error {
	return row.Scan(
		&t.ID, &t.ClubID, &t.Name, &t.Type, &t.Status, &t.CreatorID,
		&t.MaxPlayers, &t.PlayersPerTable, &t.StartingStack, &t.StartTime,
		&t.CurrentLevelIdx, &t.LevelStartedAt, &t.LateRegLevel,
		&t.EntryFeeCents, &t.PayoutStructure, &t.CreatedAt,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournaments (
			club_id, name, type, status, creator_id, max_players, players_per_table,
			starting_stack, start_time, current_level_idx, level_started_at,
			late_reg_level, entry_fee_cents, payout_structure
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		t.ClubID, t.Name, t.Type, t.Status, t.CreatorID, t.MaxPlayers, t.PlayersPerTable,
		t.StartingStack, t.StartTime, t.CurrentLevelIdx, t.LevelStartedAt,
		t.LateRegLevel, t.EntryFeeCents, t.PayoutStructure,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return r.handleTournamentError(err)
	}

	if len(t.Levels) == 0 {
		return nil
	}
	stmt := `
		INSERT INTO levels (tournament_id, idx, small_blind, big_blind, ante, duration_seconds, is_break)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i := range t.Levels {
		lvl := &t.Levels[i]
		lvl.TournamentID = t.ID
		if _, err := executor.ExecContext(ctx, stmt,
			t.ID, lvl.Idx, lvl.SmallBlind, lvl.BigBlind, lvl.Ante,
			int64(lvl.Duration/time.Second), lvl.IsBreak,
		); err != nil {
			return fmt.Errorf("insert level %d: %w", lvl.Idx, err)
		}
	}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	return r.get(ctx, r.getExecutor(nil), id, false)
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	return r.get(ctx, r.getExecutor(exec), id, true)
}

func (r *postgresTournamentRepository) get(ctx context.Context, executor SQLExecutor, id int, forUpdate bool) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	t := &models.Tournament{}
	if err := scanTournament(executor.QueryRowContext(ctx, query, id), t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	levels, err := r.LoadLevels(ctx, executor, id)
	if err != nil {
		return nil, err
	}
	t.Levels = levels
	return t, nil
}

func (r *postgresTournamentRepository) LoadLevels(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Level, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx, `
		SELECT tournament_id, idx, small_blind, big_blind, ante, duration_seconds, is_break
		FROM levels WHERE tournament_id = $1 ORDER BY idx`, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make([]models.Level, 0)
	for rows.Next() {
		var lvl models.Level
		var durationSeconds int64
		if err := rows.Scan(&lvl.TournamentID, &lvl.Idx, &lvl.SmallBlind, &lvl.BigBlind, &lvl.Ante, &durationSeconds, &lvl.IsBreak); err != nil {
			return nil, err
		}
		lvl.Duration = time.Duration(durationSeconds) * time.Second
		levels = append(levels, lvl)
	}
	return levels, rows.Err()
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1
	if filter.ClubID != nil {
		query += fmt.Sprintf(" AND club_id = $%d", argID)
		args = append(args, *filter.ClubID)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	query += " ORDER BY start_time DESC NULLS LAST, created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := scanTournament(rows, &t); err != nil {
			return nil, err
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, expected, next models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`,
		next, id, expected)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStateChanged)
}

func (r *postgresTournamentRepository) SetLevel(ctx context.Context, exec SQLExecutor, id, expectedIdx, nextIdx int, startedAt time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE tournaments
		SET current_level_idx = $1, level_started_at = $2
		WHERE id = $3 AND current_level_idx = $4 AND status = $5`,
		nextIdx, startedAt, id, expectedIdx, models.StatusRunning)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentStateChanged)
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == "23503" {
			switch pqErr.Constraint {
			case "tournaments_club_id_fkey":
				return ErrTournamentInvalidClub
			case "tournaments_creator_id_fkey":
				return ErrTournamentInvalidUser
			}
		}
	}
	return err
}
