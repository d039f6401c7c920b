package memory

import (
	"context"

	"lorequiz-service/internal/domain"
)

// BadgeCatalog is a fixed catalog (useful for tests/demos).
type BadgeCatalog struct {
	badges map[string]domain.Badge
}

func NewBadgeCatalog(badges ...domain.Badge) *BadgeCatalog {
	c := &BadgeCatalog{badges: make(map[string]domain.Badge, len(badges))}
	for _, b := range badges {
		c.badges[b.ID] = b
	}
	return c
}

// DefaultBadges describes the badges granted by the built-in rules.
func DefaultBadges() []domain.Badge {
	return []domain.Badge{
		{
			ID:          "potions-perfect",
			Name:        "Potions Perfect Score",
			Description: "Answered every question of the Potions O.W.L. correctly.",
			ImageURL:    "assets/images/badges/potions-perfect.png",
		},
		{
			ID:          "first-quiz",
			Name:        "First Steps",
			Description: "Completed a first quiz.",
			ImageURL:    "assets/images/badges/first-quiz.png",
		},
	}
}

func (c *BadgeCatalog) GetBadge(_ context.Context, id string) (domain.Badge, error) {
	badge, ok := c.badges[id]
	if !ok {
		return domain.Badge{}, domain.ErrBadgeNotFound
	}
	return badge, nil
}
