package domain

import "time"

// Color is a named palette entry used to tint a basket label.
type Color string

// Basket is a derived grouping of order lines submitted together. It is never
// persisted; it only exists as the output of a derivation.
type Basket struct {
	Key        string            `json:"key"`
	Legacy     bool              `json:"legacy"`
	Label      string            `json:"label"`
	Color      Color             `json:"color"`
	Customer   *CustomerSnapshot `json:"customer,omitempty"`
	Lines      []OrderLine       `json:"lines"`
	TotalCents int64             `json:"totalCents"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// LineIDs returns the ids of the basket members in member order.
func (b Basket) LineIDs() []string {
	ids := make([]string, 0, len(b.Lines))
	for _, l := range b.Lines {
		ids = append(ids, l.ID)
	}
	return ids
}

// Processed reports whether every member line is processed.
func (b Basket) Processed() bool {
	for _, l := range b.Lines {
		if !l.Processed {
			return false
		}
	}
	return len(b.Lines) > 0
}
