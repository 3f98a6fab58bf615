package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CustomerOptionKey is the reserved key legacy rows used to embed the customer
// inside the options object.
const CustomerOptionKey = "customer"

// CustomerSnapshot is the contact data captured at checkout. It is never
// updated after the line is created.
type CustomerSnapshot struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Fingerprint is the name+phone key used to group legacy lines.
func (c *CustomerSnapshot) Fingerprint() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Name) + strings.TrimSpace(c.Phone)
}

// Option is a single selection made on the product page.
type Option struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Image string `json:"image,omitempty"`
}

// Options keeps selections in the order the customer made them.
type Options []Option

// Get returns the value of the named option.
func (o Options) Get(name string) (string, bool) {
	for _, opt := range o {
		if opt.Name == name {
			return opt.Value, true
		}
	}
	return "", false
}

// OrderLine is one product ordered by a customer in one checkout action.
type OrderLine struct {
	ID             string            `json:"id"`
	ProductID      string            `json:"productId"`
	Name           string            `json:"name"`
	UnitPriceCents int64             `json:"unitPriceCents"`
	Quantity       int               `json:"quantity"`
	Options        Options           `json:"options,omitempty"`
	Customer       *CustomerSnapshot `json:"customer,omitempty"`
	Image          string            `json:"image,omitempty"`
	BasketID       *string           `json:"basketId,omitempty"`
	Processed      bool              `json:"processed"`
	Hidden         bool              `json:"hidden"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// TotalCents is unit price times quantity.
func (l OrderLine) TotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// Legacy reports whether the line predates basket ids.
func (l OrderLine) Legacy() bool {
	return l.BasketID == nil || *l.BasketID == ""
}

// DecodeLegacyOptions splits a legacy options object into the ordered option
// list and the customer stored under the reserved key. Key order is preserved.
func DecodeLegacyOptions(raw []byte) (Options, *CustomerSnapshot, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("decode options: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("decode options: expected object, got %v", tok)
	}

	var (
		opts     Options
		customer *CustomerSnapshot
	)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("decode options key: %w", err)
		}
		key, _ := keyTok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("decode option %q: %w", key, err)
		}
		if key == CustomerOptionKey {
			var c CustomerSnapshot
			if err := json.Unmarshal(value, &c); err != nil {
				// a malformed customer is treated as absent
				continue
			}
			if c != (CustomerSnapshot{}) {
				customer = &c
			}
			continue
		}
		opts = append(opts, optionFromRaw(key, value))
	}
	return opts, customer, nil
}

func optionFromRaw(name string, raw json.RawMessage) Option {
	opt := Option{Name: name}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		opt.Value = s
		return opt
	}
	var withImage struct {
		Value string `json:"value"`
		Label string `json:"label"`
		Image string `json:"image"`
	}
	if err := json.Unmarshal(raw, &withImage); err == nil && (withImage.Value != "" || withImage.Label != "" || withImage.Image != "") {
		opt.Value = withImage.Value
		if opt.Value == "" {
			opt.Value = withImage.Label
		}
		opt.Image = withImage.Image
		return opt
	}
	opt.Value = string(raw)
	return opt
}
