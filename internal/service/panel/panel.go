package panel

import (
	"strings"
	"sync"
)

// Panel owns one View per product filter. The empty product id is the view
// over every product.
type Panel struct {
	store lineStore
	opts  Options

	mu    sync.Mutex
	views map[string]*View
}

func New(store lineStore, opts Options) *Panel {
	return &Panel{
		store: store,
		opts:  opts.withDefaults(),
		views: make(map[string]*View),
	}
}

// View returns the view for productID, creating it on first use.
func (p *Panel) View(productID string) *View {
	productID = strings.TrimSpace(productID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.views[productID]; ok {
		return v
	}
	v := NewView(p.store, productID, p.opts)
	p.views[productID] = v
	return v
}

// Mode reports the basket update mode in use.
func (p *Panel) Mode() string {
	return p.opts.Mode
}
