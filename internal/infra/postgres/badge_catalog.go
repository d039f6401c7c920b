package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lorequiz-service/internal/domain"
)

// BadgeCatalog reads badge display records seeded by the migrations.
type BadgeCatalog struct {
	pool *pgxpool.Pool
}

func NewBadgeCatalog(pool *pgxpool.Pool) *BadgeCatalog {
	return &BadgeCatalog{pool: pool}
}

func (c *BadgeCatalog) GetBadge(ctx context.Context, id string) (domain.Badge, error) {
	var badge domain.Badge
	err := c.pool.QueryRow(ctx, `SELECT id, name, description, image_url FROM badges WHERE id = $1`, id).
		Scan(&badge.ID, &badge.Name, &badge.Description, &badge.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Badge{}, domain.ErrBadgeNotFound
	}
	if err != nil {
		return domain.Badge{}, fmt.Errorf("get badge: %w", err)
	}
	return badge, nil
}
