package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/greenfelt/club-engine/models"
)

// HandRepository reads the hand rows maintained by the table action
// processor. The sweep never writes hands; forcing a fold goes through the
// processor, which stays the single source of truth for hand progression.
type HandRepository interface {
	ListOverdue(ctx context.Context, now time.Time) ([]models.OverdueHand, error)
}

type postgresHandRepository struct {
	db *sql.DB
}

func NewPostgresHandRepository(db *sql.DB) HandRepository {
	return &postgresHandRepository{db: db}
}

func (r *postgresHandRepository) ListOverdue(ctx context.Context, now time.Time) ([]models.OverdueHand, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT h.id, h.table_id, h.current_seat_no, s.player_id
		FROM hands h
		JOIN seats s ON s.table_id = h.table_id AND s.seat_no = h.current_seat_no
		WHERE h.completed = FALSE
		AND h.current_seat_no IS NOT NULL
		AND h.action_deadline IS NOT NULL
		AND h.action_deadline < $1
		AND s.player_id IS NOT NULL
		ORDER BY h.action_deadline`,
		now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overdue := make([]models.OverdueHand, 0)
	for rows.Next() {
		var h models.OverdueHand
		if err := rows.Scan(&h.HandID, &h.TableID, &h.SeatNo, &h.PlayerID); err != nil {
			return nil, err
		}
		overdue = append(overdue, h)
	}
	return overdue, rows.Err()
}
