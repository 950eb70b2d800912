package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/greenfelt/club-engine/models"
)

var ErrClubNotFound = errors.New("club not found")

// ClubRepository backs the membership-directory contract: registration
// eligibility for club-scoped tournaments is an IsMember lookup.
type ClubRepository interface {
	GetByID(ctx context.Context, id int) (*models.Club, error)
	IsMember(ctx context.Context, clubID, userID int) (bool, error)
}

type postgresClubRepository struct {
	db *sql.DB
}

func NewPostgresClubRepository(db *sql.DB) ClubRepository {
	return &postgresClubRepository{db: db}
}

func (r *postgresClubRepository) GetByID(ctx context.Context, id int) (*models.Club, error) {
	c := &models.Club{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at FROM clubs WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.OwnerID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClubNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *postgresClubRepository) IsMember(ctx context.Context, clubID, userID int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM club_members WHERE club_id = $1 AND user_id = $2)`,
		clubID, userID,
	).Scan(&exists)
	return exists, err
}
