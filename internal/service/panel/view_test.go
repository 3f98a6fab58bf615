package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"storefront-panel/internal/basket"
	"storefront-panel/internal/cache"
	"storefront-panel/internal/domain"
	"storefront-panel/internal/events"
)

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type stubStore struct {
	mu          sync.Mutex
	lines       map[string]domain.OrderLine
	order       []string
	listErr     error
	failIDs     map[string]error
	failMany    error
	hiddenErr   error
	listCalls   int
	setCalls    []string
	manyCalls   [][]string
	extraBasket []domain.OrderLine
	// hold, when set, parks the next ListByProduct after it has read its
	// rows; entered is signalled once the rows are read.
	hold    chan struct{}
	entered chan struct{}
}

func newStubStore(lines ...domain.OrderLine) *stubStore {
	s := &stubStore{lines: map[string]domain.OrderLine{}, failIDs: map[string]error{}}
	for _, l := range lines {
		s.lines[l.ID] = l
		s.order = append(s.order, l.ID)
	}
	return s
}

func (s *stubStore) ListByProduct(_ context.Context, productID string) ([]domain.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.OrderLine
	for _, id := range s.order {
		l := s.lines[id]
		if productID == "" || l.ProductID == productID {
			out = append(out, l)
		}
	}
	hold, entered := s.hold, s.entered
	s.hold = nil
	if hold != nil {
		s.mu.Unlock()
		entered <- struct{}{}
		<-hold
		s.mu.Lock()
	}
	return out, nil
}

func (s *stubStore) add(l domain.OrderLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[l.ID] = l
	s.order = append(s.order, l.ID)
}

func (s *stubStore) get(id string) domain.OrderLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[id]
}

func (s *stubStore) ListByBasket(_ context.Context, basketID string) ([]domain.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OrderLine
	for _, id := range s.order {
		l := s.lines[id]
		if l.BasketID != nil && *l.BasketID == basketID {
			out = append(out, l)
		}
	}
	return append(out, s.extraBasket...), nil
}

func (s *stubStore) SetProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls = append(s.setCalls, id)
	if err := s.failIDs[id]; err != nil {
		return err
	}
	l, ok := s.lines[id]
	if !ok {
		for _, e := range s.extraBasket {
			if e.ID == id {
				return nil
			}
		}
		return domain.ErrNotFound
	}
	l.Processed = true
	s.lines[id] = l
	return nil
}

func (s *stubStore) SetProcessedMany(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manyCalls = append(s.manyCalls, ids)
	if s.failMany != nil {
		return s.failMany
	}
	for _, id := range ids {
		if l, ok := s.lines[id]; ok {
			l.Processed = true
			s.lines[id] = l
		}
	}
	return nil
}

func (s *stubStore) ToggleHidden(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hiddenErr != nil {
		return false, s.hiddenErr
	}
	l, ok := s.lines[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	l.Hidden = !l.Hidden
	s.lines[id] = l
	return l.Hidden, nil
}

// versionedCache mimics the redis store: invalidation bumps a version and
// writes under an older version are dropped.
type versionedCache struct {
	mu      sync.Mutex
	version int64
	entries map[string][]domain.OrderLine
}

func newVersionedCache() *versionedCache {
	return &versionedCache{entries: map[string][]domain.OrderLine{}}
}

func (c *versionedCache) key(productID string) string {
	return fmt.Sprintf("%d:%s", c.version, productID)
}

func (c *versionedCache) Lines(_ context.Context, productID string) (cache.LineList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines, ok := c.entries[c.key(productID)]
	return cache.LineList{Lines: lines, Version: c.version, Hit: ok}, nil
}

func (c *versionedCache) SetLines(_ context.Context, productID string, version int64, lines []domain.OrderLine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version != c.version {
		return nil
	}
	c.entries[c.key(productID)] = lines
	return nil
}

func (c *versionedCache) InvalidateLines(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	return nil
}

func (c *versionedCache) ClaimSubmission(_ context.Context, _, basketID string) (string, bool, error) {
	return basketID, true, nil
}

func (c *versionedCache) ReleaseSubmission(context.Context, string) error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	keys   []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	return nil
}

func strPtr(s string) *string { return &s }

func line(id, basketID string, price int64, qty int, offset time.Duration) domain.OrderLine {
	l := domain.OrderLine{
		ID:             id,
		ProductID:      "p1",
		Name:           "Tote",
		UnitPriceCents: price,
		Quantity:       qty,
		CreatedAt:      base.Add(offset),
	}
	if basketID != "" {
		l.BasketID = strPtr(basketID)
	}
	return l
}

func threeLineBasket() []domain.OrderLine {
	a := line("a", "cart-1", 1000, 1, 0)
	a.Customer = &domain.CustomerSnapshot{Name: "Awa", Phone: "+221771234567"}
	return []domain.OrderLine{a, line("b", "cart-1", 2000, 1, time.Second), line("c", "cart-1", 500, 2, 2*time.Second)}
}

func TestLoad_DerivesBaskets(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	v := NewView(store, "p1", Options{})

	snap := v.Load(context.Background())
	require.False(t, snap.Degraded)
	require.Len(t, snap.Lines, 3)
	b, ok := snap.Baskets["cart-1"]
	require.True(t, ok)
	assert.Equal(t, "AW-567", b.Label)
	assert.Equal(t, int64(4000), b.TotalCents)
}

func TestLoad_FailureKeepsPreviousStateAndDegrades(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	v := NewView(store, "", Options{})
	v.Load(context.Background())

	store.listErr = errors.New("backend down")
	snap := v.Load(context.Background())
	assert.True(t, snap.Degraded)
	assert.True(t, v.Degraded())
	assert.Len(t, snap.Lines, 3)

	store.listErr = nil
	snap = v.Load(context.Background())
	assert.False(t, snap.Degraded)
}

func TestLoad_CancelledResultIsDiscarded(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	v := NewView(store, "", Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := v.Load(ctx)
	assert.Empty(t, snap.Lines)
	assert.False(t, snap.Degraded)
}

func TestMarkLineProcessed_OnlyThatLine(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	pub := &recordingPublisher{}
	v := NewView(store, "", Options{Events: pub})
	ctx := context.Background()
	v.Load(ctx)

	require.NoError(t, v.MarkLineProcessed(ctx, "b"))
	snap := v.Snapshot()
	for _, l := range snap.Baskets["cart-1"].Lines {
		assert.Equal(t, l.ID == "b", l.Processed, "line %s", l.ID)
	}
	for _, l := range snap.Lines {
		assert.Equal(t, l.ID == "b", l.Processed, "flat line %s", l.ID)
	}
	assert.Equal(t, []string{events.TopicLineProcessed}, pub.topics)
	assert.Equal(t, []string{"cart-1"}, pub.keys)
}

func TestLoad_WriteLandingMidFetchSurvives(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	lines := newVersionedCache()
	v := NewView(store, "", Options{Cache: lines})
	ctx := context.Background()
	v.Load(ctx)
	require.NoError(t, lines.InvalidateLines(ctx))

	store.mu.Lock()
	store.hold = make(chan struct{})
	store.entered = make(chan struct{})
	hold := store.hold
	store.mu.Unlock()

	loaded := make(chan Snapshot, 1)
	go func() { loaded <- v.Load(ctx) }()

	<-store.entered
	require.NoError(t, v.MarkLineProcessed(ctx, "a"))
	close(hold)

	snap := <-loaded
	for _, l := range snap.Lines {
		assert.Equal(t, l.ID == "a", l.Processed, "line %s", l.ID)
	}

	// a fresh view on the same cache must not see the rows read before the write
	other := NewView(store, "", Options{Cache: lines})
	for _, l := range other.Load(ctx).Lines {
		assert.Equal(t, l.ID == "a", l.Processed, "cached line %s", l.ID)
	}
}

func TestMarkLineProcessed_LineCreatedAfterLoad(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	v := NewView(store, "", Options{})
	ctx := context.Background()
	v.Load(ctx)

	store.add(line("d", "cart-2", 100, 1, 3*time.Second))

	require.NoError(t, v.MarkLineProcessed(ctx, "d"))
	assert.True(t, store.get("d").Processed)
	assert.True(t, v.Snapshot().Baskets["cart-2"].Processed())
}

func TestMarkLineProcessed_Idempotent(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	v := NewView(store, "", Options{})
	ctx := context.Background()
	v.Load(ctx)

	require.NoError(t, v.MarkLineProcessed(ctx, "a"))
	before := v.Snapshot()
	require.NoError(t, v.MarkLineProcessed(ctx, "a"))
	after := v.Snapshot()

	assert.Equal(t, before.Lines, after.Lines)
	assert.Equal(t, []string{"a"}, store.setCalls)
}

func TestMarkLineProcessed_RevertsOnFailure(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	store.failIDs["a"] = errors.New("timeout")
	v := NewView(store, "", Options{})
	ctx := context.Background()
	v.Load(ctx)

	err := v.MarkLineProcessed(ctx, "a")
	require.Error(t, err)
	for _, l := range v.Snapshot().Lines {
		assert.False(t, l.Processed)
	}
}

func TestMarkLineProcessed_UnknownLine(t *testing.T) {
	v := NewView(newStubStore(threeLineBasket()...), "", Options{})
	err := v.MarkLineProcessed(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWrites_UnavailableWhenNeverLoaded(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	store.listErr = errors.New("backend down")
	v := NewView(store, "", Options{})
	assert.ErrorIs(t, v.MarkLineProcessed(context.Background(), "a"), ErrUnavailable)
}

func TestMarkBasketProcessed_AtomicThenRederive(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	v := NewView(store, "", Options{})
	ctx := context.Background()
	v.Load(ctx)
	require.NoError(t, v.MarkLineProcessed(ctx, "a"))

	require.NoError(t, v.MarkBasketProcessed(ctx, "cart-1"))
	require.Len(t, store.manyCalls, 1)
	assert.Equal(t, []string{"b", "c"}, store.manyCalls[0])

	assert.True(t, v.Snapshot().Baskets["cart-1"].Processed())

	// re-deriving from the store agrees with the local view
	lines, err := store.ListByProduct(ctx, "")
	require.NoError(t, err)
	assert.True(t, basket.Derive(lines)["cart-1"].Processed())
}

func TestMarkBasketProcessed_AtomicFailureRevertsAll(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	store.failMany = errors.New("tx aborted")
	v := NewView(store, "", Options{Mode: ModeAtomic})
	ctx := context.Background()
	v.Load(ctx)

	require.Error(t, v.MarkBasketProcessed(ctx, "cart-1"))
	for _, l := range v.Snapshot().Lines {
		assert.False(t, l.Processed, "line %s", l.ID)
	}
}

func TestMarkBasketProcessed_SequentialAttemptsAllAndRevertsFailed(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	boom := errors.New("timeout")
	store.failIDs["b"] = boom
	pub := &recordingPublisher{}
	v := NewView(store, "", Options{Mode: ModeSequential, Events: pub})
	ctx := context.Background()
	v.Load(ctx)

	err := v.MarkBasketProcessed(ctx, "cart-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b", "c"}, store.setCalls)

	got := map[string]bool{}
	for _, l := range v.Snapshot().Lines {
		got[l.ID] = l.Processed
	}
	assert.Equal(t, map[string]bool{"a": true, "b": false, "c": true}, got)
	assert.Len(t, pub.topics, 2)
}

func TestMarkBasketProcessed_KeyedRequeriesStore(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	v := NewView(store, "", Options{})
	ctx := context.Background()
	v.Load(ctx)

	// a line added after the view loaded
	store.extraBasket = []domain.OrderLine{line("d", "cart-1", 100, 1, 3*time.Second)}

	require.NoError(t, v.MarkBasketProcessed(ctx, "cart-1"))
	require.Len(t, store.manyCalls, 1)
	assert.Equal(t, []string{"a", "b", "c", "d"}, store.manyCalls[0])
}

func TestMarkBasketProcessed_LegacyUsesDerivedGroup(t *testing.T) {
	c := &domain.CustomerSnapshot{Name: "Ibrahim", Phone: "2250102030405"}
	l1 := line("l1", "", 100, 1, 0)
	l1.Customer = c
	l2 := line("l2", "", 200, 1, time.Second)
	l2.Customer = c
	l3 := line("l3", "", 300, 1, 2*time.Second)

	store := newStubStore(l1, l2, l3)
	v := NewView(store, "", Options{})
	ctx := context.Background()
	snap := v.Load(ctx)

	key := "legacy:customer:Ibrahim2250102030405"
	require.Contains(t, snap.Baskets, key)
	require.NoError(t, v.MarkBasketProcessed(ctx, key))
	assert.Equal(t, [][]string{{"l1", "l2"}}, store.manyCalls)

	snap = v.Snapshot()
	assert.True(t, snap.Baskets[key].Processed())
	assert.False(t, snap.Baskets["legacy:line:l3"].Processed())
}

func TestMarkBasketProcessed_UnknownKey(t *testing.T) {
	v := NewView(newStubStore(threeLineBasket()...), "", Options{})
	ctx := context.Background()
	assert.ErrorIs(t, v.MarkBasketProcessed(ctx, "legacy:line:nope"), domain.ErrNotFound)
	assert.ErrorIs(t, v.MarkBasketProcessed(ctx, "cart-404"), domain.ErrNotFound)
}

func TestToggleLineHidden_RemovesFromBasketAndBack(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	pub := &recordingPublisher{}
	v := NewView(store, "", Options{Events: pub})
	ctx := context.Background()
	v.Load(ctx)

	// hiding does not require the line to be processed
	require.NoError(t, v.ToggleLineHidden(ctx, "c"))
	b := v.Snapshot().Baskets["cart-1"]
	assert.Len(t, b.Lines, 2)
	assert.Equal(t, int64(3000), b.TotalCents)
	assert.Len(t, v.Snapshot().Lines, 3)

	require.NoError(t, v.ToggleLineHidden(ctx, "c"))
	assert.Len(t, v.Snapshot().Baskets["cart-1"].Lines, 3)
	assert.Equal(t, []string{events.TopicLineHidden, events.TopicLineHidden}, pub.topics)
}

func TestToggleLineHidden_RevertsOnFailure(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	store.hiddenErr = errors.New("timeout")
	v := NewView(store, "", Options{})
	ctx := context.Background()
	v.Load(ctx)

	require.Error(t, v.ToggleLineHidden(ctx, "c"))
	assert.Len(t, v.Snapshot().Baskets["cart-1"].Lines, 3)
}

func TestToggleLineHidden_FlipsStoredValueAcrossViews(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	p := New(store, Options{})
	ctx := context.Background()
	all := p.View("")
	byProduct := p.View("p1")
	all.Load(ctx)
	byProduct.Load(ctx)

	require.NoError(t, all.ToggleLineHidden(ctx, "b"))
	require.True(t, store.get("b").Hidden)

	// byProduct still holds b as visible; the toggle must act on the stored flag
	require.NoError(t, byProduct.ToggleLineHidden(ctx, "b"))
	assert.False(t, store.get("b").Hidden)
	for _, l := range byProduct.Snapshot().Lines {
		if l.ID == "b" {
			assert.False(t, l.Hidden)
		}
	}
	assert.Len(t, byProduct.Snapshot().Baskets["cart-1"].Lines, 3)
}

func TestSnapshot_NotMutatedByLaterWrites(t *testing.T) {
	store := newStubStore(threeLineBasket()...)
	v := NewView(store, "", Options{})
	ctx := context.Background()
	before := v.Load(ctx)

	require.NoError(t, v.MarkBasketProcessed(ctx, "cart-1"))
	for _, l := range before.Lines {
		assert.False(t, l.Processed)
	}
	assert.False(t, before.Baskets["cart-1"].Processed())
}

func TestConcurrentWritesOnDifferentLines(t *testing.T) {
	var lines []domain.OrderLine
	for i := 0; i < 40; i++ {
		lines = append(lines, line(fmt.Sprintf("l%02d", i), fmt.Sprintf("cart-%d", i%5), 100, 1, time.Duration(i)*time.Second))
	}
	store := newStubStore(lines...)
	v := NewView(store, "", Options{})
	ctx := context.Background()
	v.Load(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("l%02d", i)
		if i%2 == 0 {
			g.Go(func() error { return v.MarkLineProcessed(gctx, id) })
		} else {
			g.Go(func() error { return v.ToggleLineHidden(gctx, id) })
		}
	}
	require.NoError(t, g.Wait())

	snap := v.Snapshot()
	require.Len(t, snap.Lines, 40)
	members := 0
	for _, l := range snap.Lines {
		var n int
		fmt.Sscanf(l.ID, "l%d", &n)
		assert.Equal(t, n%2 == 0, l.Processed, "line %s", l.ID)
		assert.Equal(t, n%2 == 1, l.Hidden, "line %s", l.ID)
	}
	for _, b := range snap.Baskets {
		members += len(b.Lines)
		assert.True(t, b.Processed())
	}
	assert.Equal(t, 20, members)
}

func TestPanel_ViewPerProduct(t *testing.T) {
	p := New(newStubStore(), Options{Mode: "bogus"})
	assert.Same(t, p.View("p1"), p.View(" p1 "))
	assert.NotSame(t, p.View("p1"), p.View(""))
	assert.Equal(t, ModeAtomic, p.Mode())
}
