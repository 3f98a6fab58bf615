package orderline

import (
	"context"

	"storefront-panel/internal/domain"
)

// Repository persists order lines. Lines are created once and afterwards only
// their processed and hidden flags change.
type Repository interface {
	// ListByProduct returns lines for a product, or for every product when
	// productID is empty, oldest first.
	ListByProduct(ctx context.Context, productID string) ([]domain.OrderLine, error)
	ListByBasket(ctx context.Context, basketID string) ([]domain.OrderLine, error)
	GetByID(ctx context.Context, id string) (*domain.OrderLine, error)
	CreateMany(ctx context.Context, lines []domain.OrderLine) ([]domain.OrderLine, error)
	Upsert(ctx context.Context, line domain.OrderLine) (*domain.OrderLine, error)
	SetProcessed(ctx context.Context, id string) error
	// SetProcessedMany marks every id processed in one transaction; either all
	// lines change or none do.
	SetProcessedMany(ctx context.Context, ids []string) error
	// ToggleHidden flips the stored hidden flag and returns the new value.
	ToggleHidden(ctx context.Context, id string) (bool, error)
}
