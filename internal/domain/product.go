package domain

import "time"

type Product struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	PriceCents  int64           `json:"priceCents"`
	Currency    string          `json:"currency"`
	Images      []string        `json:"images,omitempty"`
	Options     []ProductOption `json:"options,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// ProductOption is a customizable choice offered on the product landing page.
type ProductOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Image returns the first product image, or "".
func (p Product) Image() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
