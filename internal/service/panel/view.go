// Package panel holds the merchant panel state: the flat order line list for
// one product filter and the baskets derived from it.
//
// A View never mutates a published Snapshot. Every change builds a new line
// slice, re-derives the baskets from scratch and swaps both in under the lock,
// so requests that overlap on different lines cannot corrupt each other.
package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"storefront-panel/internal/basket"
	"storefront-panel/internal/cache"
	"storefront-panel/internal/domain"
	"storefront-panel/internal/events"
)

// maxLoadAttempts bounds how often Load refetches while writes keep landing.
const maxLoadAttempts = 3

// Basket update modes.
const (
	ModeAtomic     = "atomic"
	ModeSequential = "sequential"
)

type lineStore interface {
	ListByProduct(ctx context.Context, productID string) ([]domain.OrderLine, error)
	ListByBasket(ctx context.Context, basketID string) ([]domain.OrderLine, error)
	SetProcessed(ctx context.Context, id string) error
	SetProcessedMany(ctx context.Context, ids []string) error
	// ToggleHidden flips the stored flag and returns the new value.
	ToggleHidden(ctx context.Context, id string) (bool, error)
}

// Options configures the collaborators shared by every view.
type Options struct {
	Mode   string
	Cache  cache.Store
	Events events.Publisher
	Logger *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Mode != ModeSequential {
		o.Mode = ModeAtomic
	}
	if o.Cache == nil {
		o.Cache = cache.Noop{}
	}
	if o.Events == nil {
		o.Events = events.Noop{}
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}
	return o
}

// ErrUnavailable is returned by writes when the view has never loaded.
var ErrUnavailable = errors.New("panel lines unavailable")

// Snapshot is an immutable picture of the view.
type Snapshot struct {
	ProductID string
	Lines     []domain.OrderLine
	Baskets   map[string]domain.Basket
	// Degraded is set when the last load failed and the data is stale.
	Degraded bool
	LoadedAt time.Time
}

// View is the state owned by one panel session.
type View struct {
	productID string
	store     lineStore
	opts      Options

	mu         sync.Mutex
	state      Snapshot
	loaded     bool
	loadSeq    uint64
	appliedSeq uint64
	// writes counts writes in flight; writeGen moves when one starts or ends.
	writes   int
	writeGen uint64
}

func NewView(store lineStore, productID string, opts Options) *View {
	return &View{
		productID: productID,
		store:     store,
		opts:      opts.withDefaults(),
		state: Snapshot{
			ProductID: productID,
			Baskets:   map[string]domain.Basket{},
		},
	}
}

// Snapshot returns the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Degraded reports whether the last load failed.
func (v *View) Degraded() bool {
	return v.Snapshot().Degraded
}

// Load fetches the lines for the view's product and re-derives the baskets.
// A failed fetch keeps the previous state and marks it degraded. Results of a
// load that was cancelled, or overtaken by a newer load, are discarded. Rows
// fetched while a write was in flight may predate it, so they are fetched
// again; when writes keep landing the current state is kept as is.
func (v *View) Load(ctx context.Context) Snapshot {
	v.mu.Lock()
	v.loadSeq++
	seq := v.loadSeq
	v.mu.Unlock()

	for attempt := 0; attempt < maxLoadAttempts; attempt++ {
		v.mu.Lock()
		gen := v.writeGen
		v.mu.Unlock()

		lines, err := v.fetch(ctx)

		v.mu.Lock()
		if ctx.Err() != nil || seq < v.appliedSeq {
			state := v.state
			v.mu.Unlock()
			return state
		}
		if err == nil && (v.writes > 0 || v.writeGen != gen) {
			v.mu.Unlock()
			continue
		}
		v.appliedSeq = seq
		if err != nil {
			v.opts.Logger.Printf("panel: load product_id=%q error=%v", v.productID, err)
			v.state.Degraded = true
		} else {
			v.loaded = true
			v.state = Snapshot{
				ProductID: v.productID,
				Lines:     lines,
				Baskets:   basket.Derive(lines),
				LoadedAt:  time.Now().UTC(),
			}
		}
		state := v.state
		v.mu.Unlock()
		return state
	}

	v.opts.Logger.Printf("panel: load product_id=%q skipped, writes in flight", v.productID)
	return v.Snapshot()
}

func (v *View) fetch(ctx context.Context) ([]domain.OrderLine, error) {
	cached, cacheErr := v.opts.Cache.Lines(ctx, v.productID)
	if cacheErr == nil && cached.Hit {
		return cached.Lines, nil
	}
	lines, err := v.store.ListByProduct(ctx, v.productID)
	if err != nil {
		return nil, err
	}
	if cacheErr != nil {
		// redis unreachable; serve from the database without caching
		return lines, nil
	}
	if err := v.opts.Cache.SetLines(ctx, v.productID, cached.Version, lines); err != nil {
		v.opts.Logger.Printf("panel: cache lines product_id=%q error=%v", v.productID, err)
	}
	return lines, nil
}

// ensureLoaded loads the view on first use. fresh reports that it just did.
func (v *View) ensureLoaded(ctx context.Context) (fresh bool, err error) {
	v.mu.Lock()
	loaded := v.loaded
	v.mu.Unlock()
	if loaded {
		return false, nil
	}
	v.Load(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.loaded {
		return false, ErrUnavailable
	}
	return true, nil
}

// beginWrite marks a write in flight. The returned func must run after the
// store call and the cache invalidation.
func (v *View) beginWrite() func() {
	v.mu.Lock()
	v.writes++
	v.writeGen++
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		v.writes--
		v.writeGen++
		v.mu.Unlock()
	}
}

// MarkLineProcessed sets processed on one line. Other lines of its basket
// are untouched. Marking an already processed line is a no-op.
func (v *View) MarkLineProcessed(ctx context.Context, lineID string) error {
	fresh, err := v.ensureLoaded(ctx)
	if err != nil {
		return err
	}

	line, err := v.findLine(ctx, lineID, fresh)
	if err != nil {
		return err
	}
	if line.Processed {
		return nil
	}

	defer v.beginWrite()()
	v.setProcessed([]string{lineID}, true)
	if err := v.store.SetProcessed(ctx, lineID); err != nil {
		v.setProcessed([]string{lineID}, false)
		v.opts.Logger.Printf("panel: mark line processed id=%s error=%v", lineID, err)
		return fmt.Errorf("mark line %s processed: %w", lineID, err)
	}
	v.afterWrite(ctx)
	v.publishProcessed(ctx, []domain.OrderLine{line})
	return nil
}

// MarkBasketProcessed marks every member of the basket processed. Keyed
// baskets are re-read from the store so lines added since the last load are
// included; legacy baskets use the derived group.
func (v *View) MarkBasketProcessed(ctx context.Context, key string) error {
	fresh, err := v.ensureLoaded(ctx)
	if err != nil {
		return err
	}

	members, err := v.members(ctx, key, fresh)
	if err != nil {
		return err
	}

	var pending []domain.OrderLine
	for _, m := range members {
		if !m.Processed {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	defer v.beginWrite()()
	if v.opts.Mode == ModeSequential {
		return v.markSequential(ctx, key, pending)
	}
	return v.markAtomic(ctx, key, pending)
}

func (v *View) markAtomic(ctx context.Context, key string, pending []domain.OrderLine) error {
	ids := lineIDs(pending)
	v.setProcessed(ids, true)
	if err := v.store.SetProcessedMany(ctx, ids); err != nil {
		v.setProcessed(ids, false)
		v.opts.Logger.Printf("panel: mark basket processed key=%s count=%d error=%v", key, len(ids), err)
		return fmt.Errorf("mark basket %s processed: %w", key, err)
	}
	v.afterWrite(ctx)
	v.publishProcessed(ctx, pending)
	return nil
}

// markSequential attempts every member in order even after a failure. Only
// the members that failed are reverted.
func (v *View) markSequential(ctx context.Context, key string, pending []domain.OrderLine) error {
	ids := lineIDs(pending)
	v.setProcessed(ids, true)

	var (
		errs   []error
		failed []string
		done   []domain.OrderLine
	)
	for _, m := range pending {
		if err := v.store.SetProcessed(ctx, m.ID); err != nil {
			errs = append(errs, fmt.Errorf("line %s: %w", m.ID, err))
			failed = append(failed, m.ID)
			continue
		}
		done = append(done, m)
	}
	if len(failed) > 0 {
		v.setProcessed(failed, false)
		v.opts.Logger.Printf("panel: mark basket processed key=%s failed=%d of=%d", key, len(failed), len(pending))
	}
	if len(done) > 0 {
		v.afterWrite(ctx)
		v.publishProcessed(ctx, done)
	}
	if len(errs) > 0 {
		return fmt.Errorf("mark basket %s processed: %w", key, errors.Join(errs...))
	}
	return nil
}

// ToggleLineHidden flips the stored hidden flag. It does not require the
// line to be processed first. The local state follows whatever the store
// reports, since another view may have toggled the line since this one loaded.
func (v *View) ToggleLineHidden(ctx context.Context, lineID string) error {
	fresh, err := v.ensureLoaded(ctx)
	if err != nil {
		return err
	}

	line, err := v.findLine(ctx, lineID, fresh)
	if err != nil {
		return err
	}

	defer v.beginWrite()()
	v.setHidden(lineID, !line.Hidden)
	hidden, err := v.store.ToggleHidden(ctx, lineID)
	if err != nil {
		v.setHidden(lineID, line.Hidden)
		v.opts.Logger.Printf("panel: toggle hidden id=%s error=%v", lineID, err)
		return fmt.Errorf("toggle line %s hidden: %w", lineID, err)
	}
	if hidden == line.Hidden {
		v.setHidden(lineID, hidden)
	}
	v.afterWrite(ctx)
	if err := v.opts.Events.Publish(ctx, events.TopicLineHidden, lineID, events.LineHidden{LineID: lineID, Hidden: hidden}); err != nil {
		v.opts.Logger.Printf("panel: publish hidden id=%s error=%v", lineID, err)
	}
	return nil
}

func (v *View) members(ctx context.Context, key string, fresh bool) ([]domain.OrderLine, error) {
	b, ok := v.basket(key)
	if !ok && !fresh && basket.IsLegacyKey(key) {
		v.Load(ctx)
		b, ok = v.basket(key)
	}

	if basket.IsLegacyKey(key) {
		if !ok {
			return nil, domain.ErrNotFound
		}
		return b.Lines, nil
	}

	lines, err := v.store.ListByBasket(ctx, key)
	if err != nil {
		v.opts.Logger.Printf("panel: resolve basket key=%s error=%v", key, err)
		return nil, fmt.Errorf("resolve basket %s: %w", key, err)
	}
	var members []domain.OrderLine
	for _, l := range lines {
		if !l.Hidden {
			members = append(members, l)
		}
	}
	if len(members) == 0 {
		if !ok {
			return nil, domain.ErrNotFound
		}
		return b.Lines, nil
	}
	return members, nil
}

// findLine looks the line up in the current state. A line this view has not
// seen yet triggers one reload, unless the state was just loaded.
func (v *View) findLine(ctx context.Context, id string, fresh bool) (domain.OrderLine, error) {
	if l, ok := v.line(id); ok {
		return l, nil
	}
	if !fresh {
		v.Load(ctx)
		if l, ok := v.line(id); ok {
			return l, nil
		}
	}
	return domain.OrderLine{}, domain.ErrNotFound
}

func (v *View) basket(key string) (domain.Basket, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.state.Baskets[key]
	return b, ok
}

func (v *View) line(id string) (domain.OrderLine, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, l := range v.state.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return domain.OrderLine{}, false
}

func (v *View) setProcessed(ids []string, processed bool) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	v.update(func(l *domain.OrderLine) {
		if _, ok := set[l.ID]; ok {
			l.Processed = processed
		}
	})
}

func (v *View) setHidden(id string, hidden bool) {
	v.update(func(l *domain.OrderLine) {
		if l.ID == id {
			l.Hidden = hidden
		}
	})
}

// update copies the line slice, applies fn to each copy and re-derives the
// baskets from the result.
func (v *View) update(fn func(*domain.OrderLine)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	lines := make([]domain.OrderLine, len(v.state.Lines))
	copy(lines, v.state.Lines)
	for i := range lines {
		fn(&lines[i])
	}
	next := v.state
	next.Lines = lines
	next.Baskets = basket.Derive(lines)
	v.state = next
}

func (v *View) afterWrite(ctx context.Context) {
	if err := v.opts.Cache.InvalidateLines(ctx); err != nil {
		v.opts.Logger.Printf("panel: invalidate cache error=%v", err)
	}
}

func (v *View) publishProcessed(ctx context.Context, lines []domain.OrderLine) {
	for _, l := range lines {
		key := basket.KeyFor(l)
		if err := v.opts.Events.Publish(ctx, events.TopicLineProcessed, key, events.LineProcessed{LineID: l.ID, BasketKey: key}); err != nil {
			v.opts.Logger.Printf("panel: publish processed id=%s error=%v", l.ID, err)
		}
	}
}

func lineIDs(lines []domain.OrderLine) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ID)
	}
	return ids
}
