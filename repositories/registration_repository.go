package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/greenfelt/club-engine/models"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	// ErrRegistrationConflict maps the partial unique index on
	// (tournament_id, player_id) WHERE status <> 'cancelled'.
	ErrRegistrationConflict  = errors.New("player already registered for this tournament")
	ErrRegistrationUnchanged = errors.New("registration state changed concurrently")
)

// PlayerRow is a registration enriched with display identity for the
// consolidated tournament view. DisplayName is nil when the profile
// directory has no entry for the player.
type PlayerRow struct {
	Registration models.Registration
	DisplayName  *string
	AvatarKey    *string
}

type RegistrationRepository interface {
	Create(ctx context.Context, exec SQLExecutor, reg *models.Registration) error
	FindActiveByPlayer(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) (*models.Registration, error)
	FindByPaymentSession(ctx context.Context, exec SQLExecutor, sessionID string) (*models.Registration, error)
	CountConfirmed(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	ListConfirmed(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Registration, error)
	ListPlayers(ctx context.Context, tournamentID int) ([]PlayerRow, error)
	AssignSeat(ctx context.Context, exec SQLExecutor, regID, tableID, seatNo int, stack int64) error
	// UpdateStatus is conditional on the expected prior status.
	UpdateStatus(ctx context.Context, exec SQLExecutor, regID int, expected, next models.RegistrationStatus) error
	// MarkPaid flips a registration from registered to paid; any other
	// status leaves the row untouched. The boolean reports whether a row
	// actually changed so the reconciler can treat duplicate webhook
	// deliveries as no-ops. A registration that already moved on to
	// playing or eliminated must never regress to paid.
	MarkPaid(ctx context.Context, exec SQLExecutor, regID int, sessionID string) (bool, error)
	MarkEliminated(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) error
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

func (r *postgresRegistrationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const registrationColumns = `
	id, tournament_id, player_id, status, table_id, seat_no, stack,
	payment_session_id, created_at`

func scanRegistration(row interface{ Scan(...interface{}) error }, reg *models.Registration) error {
	return row.Scan(
		&reg.ID, &reg.TournamentID, &reg.PlayerID, &reg.Status,
		&reg.TableID, &reg.SeatNo, &reg.Stack, &reg.PaymentSessionID, &reg.CreatedAt,
	)
}

func (r *postgresRegistrationRepository) Create(ctx context.Context, exec SQLExecutor, reg *models.Registration) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO registrations (tournament_id, player_id, status, stack, payment_session_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := executor.QueryRowContext(ctx, query,
		reg.TournamentID, reg.PlayerID, reg.Status, reg.Stack, reg.PaymentSessionID,
	).Scan(&reg.ID, &reg.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrRegistrationConflict
		}
		return err
	}
	return nil
}

func (r *postgresRegistrationRepository) FindActiveByPlayer(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) (*models.Registration, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT` + registrationColumns + `
		FROM registrations
		WHERE tournament_id = $1 AND player_id = $2 AND status <> $3`
	reg := &models.Registration{}
	err := scanRegistration(executor.QueryRowContext(ctx, query, tournamentID, playerID, models.RegStatusCancelled), reg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) FindByPaymentSession(ctx context.Context, exec SQLExecutor, sessionID string) (*models.Registration, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + registrationColumns + ` FROM registrations WHERE payment_session_id = $1`
	reg := &models.Registration{}
	err := scanRegistration(executor.QueryRowContext(ctx, query, sessionID), reg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) CountConfirmed(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registrations
		WHERE tournament_id = $1 AND status IN ($2, $3, $4)`,
		tournamentID, models.RegStatusRegistered, models.RegStatusPaid, models.RegStatusPlaying,
	).Scan(&count)
	return count, err
}

func (r *postgresRegistrationRepository) ListConfirmed(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Registration, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx, `
		SELECT`+registrationColumns+`
		FROM registrations
		WHERE tournament_id = $1 AND status IN ($2, $3, $4)
		ORDER BY created_at, id`,
		tournamentID, models.RegStatusRegistered, models.RegStatusPaid, models.RegStatusPlaying)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	regs := make([]*models.Registration, 0)
	for rows.Next() {
		reg := &models.Registration{}
		if err := scanRegistration(rows, reg); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (r *postgresRegistrationRepository) ListPlayers(ctx context.Context, tournamentID int) ([]PlayerRow, error) {
	executor := r.getExecutor(nil)
	rows, err := executor.QueryContext(ctx, `
		SELECT r.id, r.tournament_id, r.player_id, r.status, r.table_id, r.seat_no,
		       r.stack, r.payment_session_id, r.created_at,
		       u.display_name, u.avatar_key
		FROM registrations r
		LEFT JOIN users u ON u.id = r.player_id
		WHERE r.tournament_id = $1 AND r.status <> $2
		ORDER BY r.created_at, r.id`,
		tournamentID, models.RegStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	players := make([]PlayerRow, 0)
	for rows.Next() {
		var row PlayerRow
		if err := rows.Scan(
			&row.Registration.ID, &row.Registration.TournamentID, &row.Registration.PlayerID,
			&row.Registration.Status, &row.Registration.TableID, &row.Registration.SeatNo,
			&row.Registration.Stack, &row.Registration.PaymentSessionID, &row.Registration.CreatedAt,
			&row.DisplayName, &row.AvatarKey,
		); err != nil {
			return nil, err
		}
		players = append(players, row)
	}
	return players, rows.Err()
}

func (r *postgresRegistrationRepository) AssignSeat(ctx context.Context, exec SQLExecutor, regID, tableID, seatNo int, stack int64) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE registrations
		SET status = $1, table_id = $2, seat_no = $3, stack = $4
		WHERE id = $5 AND table_id IS NULL`,
		models.RegStatusPlaying, tableID, seatNo, stack, regID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRegistrationUnchanged)
}

func (r *postgresRegistrationRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, regID int, expected, next models.RegistrationStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE registrations SET status = $1 WHERE id = $2 AND status = $3`,
		next, regID, expected)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRegistrationUnchanged)
}

func (r *postgresRegistrationRepository) MarkPaid(ctx context.Context, exec SQLExecutor, regID int, sessionID string) (bool, error) {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE registrations
		SET status = $1, payment_session_id = $2
		WHERE id = $3 AND status = $4`,
		models.RegStatusPaid, sessionID, regID, models.RegStatusRegistered)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *postgresRegistrationRepository) MarkEliminated(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `
		UPDATE registrations
		SET status = $1, stack = 0
		WHERE tournament_id = $2 AND player_id = $3 AND status = $4`,
		models.RegStatusEliminated, tournamentID, playerID, models.RegStatusPlaying)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRegistrationUnchanged)
}
