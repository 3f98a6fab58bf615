package seed

import (
	"context"
	"fmt"
	"time"

	"storefront-panel/internal/domain"
)

type productWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

type lineWriter interface {
	Upsert(ctx context.Context, line domain.OrderLine) (*domain.OrderLine, error)
}

var products = []domain.Product{
	{
		ID:          "5e1d0a52-8c2b-4a39-9a51-3f1f9d6c0001",
		Slug:        "wax-dress",
		Name:        "Wax print dress",
		Description: "Made to measure wax print dress",
		PriceCents:  1500000,
		Currency:    "XOF",
		Images:      []string{"https://cdn.example.com/wax-dress.jpg"},
		Options: []domain.ProductOption{
			{Name: "size", Values: []string{"S", "M", "L", "XL"}},
			{Name: "fabric", Values: []string{"blue", "orange", "green"}},
		},
	},
	{
		ID:          "5e1d0a52-8c2b-4a39-9a51-3f1f9d6c0002",
		Slug:        "tote-bag",
		Name:        "Tote bag",
		Description: "Woven tote bag",
		PriceCents:  750000,
		Currency:    "XOF",
		Images:      []string{"https://cdn.example.com/tote.jpg"},
	},
}

// Apply inserts demo products plus keyed and legacy order lines. It is
// idempotent: every row has a fixed id and is upserted.
func Apply(ctx context.Context, productRepo productWriter, lineRepo lineWriter) error {
	for _, p := range products {
		if _, err := productRepo.Upsert(ctx, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Slug, err)
		}
	}
	for _, l := range demoLines(time.Now().UTC().Truncate(time.Hour)) {
		if _, err := lineRepo.Upsert(ctx, l); err != nil {
			return fmt.Errorf("upsert line %s: %w", l.ID, err)
		}
	}
	return nil
}

func demoLines(now time.Time) []domain.OrderLine {
	dress, tote := products[0], products[1]
	awa := &domain.CustomerSnapshot{Name: "Awa Diop", Phone: "+221771234567", Address: "Dakar, Plateau"}
	ibrahim := &domain.CustomerSnapshot{Name: "Ibrahim Kone", Phone: "2250102030405"}
	cart := "b7a4c1de-5f0e-4d8a-9d0b-2a6e0c1fa9c3"

	return []domain.OrderLine{
		{
			ID: "9f0c1a2b-0000-4000-8000-000000000001", ProductID: dress.ID, Name: dress.Name,
			UnitPriceCents: dress.PriceCents, Quantity: 1, Image: dress.Image(),
			Options:  domain.Options{{Name: "size", Value: "M"}, {Name: "fabric", Value: "blue"}},
			Customer: awa, BasketID: &cart, CreatedAt: now.Add(-2 * time.Hour),
		},
		{
			ID: "9f0c1a2b-0000-4000-8000-000000000002", ProductID: tote.ID, Name: tote.Name,
			UnitPriceCents: tote.PriceCents, Quantity: 2, Image: tote.Image(),
			Customer: awa, BasketID: &cart, CreatedAt: now.Add(-2 * time.Hour),
		},
		// lines below predate basket ids
		{
			ID: "9f0c1a2b-0000-4000-8000-000000000003", ProductID: dress.ID, Name: dress.Name,
			UnitPriceCents: dress.PriceCents, Quantity: 1, Image: dress.Image(),
			Options:  domain.Options{{Name: "size", Value: "L"}},
			Customer: ibrahim, CreatedAt: now.Add(-72 * time.Hour), Processed: true,
		},
		{
			ID: "9f0c1a2b-0000-4000-8000-000000000004", ProductID: tote.ID, Name: tote.Name,
			UnitPriceCents: tote.PriceCents, Quantity: 1, Image: tote.Image(),
			Customer: ibrahim, CreatedAt: now.Add(-71 * time.Hour),
		},
		{
			ID: "9f0c1a2b-0000-4000-8000-000000000005", ProductID: tote.ID, Name: tote.Name,
			UnitPriceCents: tote.PriceCents, Quantity: 1, Image: tote.Image(),
			CreatedAt: now.Add(-96 * time.Hour),
		},
	}
}
