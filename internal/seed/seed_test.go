package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-panel/internal/basket"
	"storefront-panel/internal/domain"
)

type memProducts map[string]domain.Product

func (m memProducts) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	m[p.Slug] = p
	return &p, nil
}

type memLines map[string]domain.OrderLine

func (m memLines) Upsert(_ context.Context, l domain.OrderLine) (*domain.OrderLine, error) {
	m[l.ID] = l
	return &l, nil
}

func TestApply_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	ps, ls := memProducts{}, memLines{}
	require.NoError(t, Apply(ctx, ps, ls))
	require.NoError(t, Apply(ctx, ps, ls))

	assert.Len(t, ps, 2)
	assert.Len(t, ls, 5)
}

func TestDemoLines_CoverKeyedAndLegacyBaskets(t *testing.T) {
	baskets := basket.Derive(demoLines(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
	require.Len(t, baskets, 3)

	keyed := baskets["b7a4c1de-5f0e-4d8a-9d0b-2a6e0c1fa9c3"]
	assert.Equal(t, "AW-567", keyed.Label)
	assert.Equal(t, int64(1500000+2*750000), keyed.TotalCents)

	legacy := baskets["legacy:customer:Ibrahim Kone2250102030405"]
	assert.Equal(t, "IB-405", legacy.Label)
	assert.Len(t, legacy.Lines, 2)

	guest := baskets["legacy:line:9f0c1a2b-0000-4000-8000-000000000005"]
	assert.Equal(t, "GUEST-005", guest.Label)
}
