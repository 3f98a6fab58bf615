// Package basket rebuilds customer baskets from a flat list of order lines.
//
// Everything here is a pure function of its input: baskets are recomputed from
// scratch on every call and carry no identity beyond their key.
package basket

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf16"

	"storefront-panel/internal/domain"
)

const (
	// LegacyPrefix marks keys synthesized for lines without a basket id.
	LegacyPrefix = "legacy:"

	legacyCustomerPrefix = LegacyPrefix + "customer:"
	legacyLinePrefix     = LegacyPrefix + "line:"

	keyedLabelPrefix  = "CART-"
	legacyLabelPrefix = "GUEST-"
)

// Palette is the fixed set of label colors.
var Palette = []domain.Color{
	"red",
	"orange",
	"amber",
	"green",
	"teal",
	"blue",
	"indigo",
	"purple",
	"pink",
}

// IsLegacyKey reports whether key was synthesized for legacy lines.
func IsLegacyKey(key string) bool {
	return strings.HasPrefix(key, LegacyPrefix)
}

// Derive partitions the non-hidden lines into baskets keyed by basket id, or
// by a synthesized legacy key for lines that have none.
func Derive(lines []domain.OrderLine) map[string]domain.Basket {
	groups := make(map[string][]domain.OrderLine)
	fragments := make(map[string]string)

	for _, line := range lines {
		if line.Hidden {
			continue
		}
		key, fragment := groupKey(line)
		groups[key] = append(groups[key], line)
		if _, ok := fragments[key]; !ok {
			fragments[key] = fragment
		}
	}

	out := make(map[string]domain.Basket, len(groups))
	for key, members := range groups {
		out[key] = build(key, fragments[key], members)
	}
	return out
}

// Sorted returns baskets newest first, ties broken by key.
func Sorted(baskets map[string]domain.Basket) []domain.Basket {
	out := make([]domain.Basket, 0, len(baskets))
	for _, b := range baskets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// KeyFor returns the key of the basket a line belongs to.
func KeyFor(line domain.OrderLine) string {
	key, _ := groupKey(line)
	return key
}

func groupKey(line domain.OrderLine) (key, fragment string) {
	if !line.Legacy() {
		return *line.BasketID, *line.BasketID
	}
	if fp := line.Customer.Fingerprint(); fp != "" {
		return legacyCustomerPrefix + fp, fp
	}
	return legacyLinePrefix + line.ID, line.ID
}

func build(key, fragment string, members []domain.OrderLine) domain.Basket {
	sort.SliceStable(members, func(i, j int) bool {
		if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		}
		return members[i].ID < members[j].ID
	})

	b := domain.Basket{
		Key:    key,
		Legacy: IsLegacyKey(key),
		Lines:  members,
	}

	var created time.Time
	for _, m := range members {
		b.TotalCents += m.TotalCents()
		if created.IsZero() || m.CreatedAt.Before(created) {
			created = m.CreatedAt
		}
		if m.Customer == nil {
			continue
		}
		if b.Label == "" {
			if label := CustomerLabel(m.Customer); label != "" {
				c := *m.Customer
				b.Customer = &c
				b.Label = label
			}
		}
		if b.Customer == nil {
			c := *m.Customer
			b.Customer = &c
		}
	}
	b.CreatedAt = created

	if b.Label == "" {
		prefix := keyedLabelPrefix
		if b.Legacy {
			prefix = legacyLabelPrefix
		}
		b.Label = prefix + lastRunes(fragment, 3)
	}
	b.Color = LabelColor(b.Label)
	return b
}

// CustomerLabel renders "<first two letters of name, upper>-<last three phone
// digits>". It returns "" when the customer cannot be identified.
func CustomerLabel(c *domain.CustomerSnapshot) string {
	if c == nil {
		return ""
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ""
	}
	var digits []rune
	for _, r := range c.Phone {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return ""
	}
	if len(digits) > 3 {
		digits = digits[len(digits)-3:]
	}
	return strings.ToUpper(firstRunes(name, 2)) + "-" + string(digits)
}

// LabelColor maps a label onto the palette. The hash runs over UTF-16 code
// units with 32-bit wraparound so that every client computes the same color.
func LabelColor(label string) domain.Color {
	var h int32
	for _, u := range utf16.Encode([]rune(label)) {
		h = int32(u) + ((h << 5) - h)
	}
	idx := int64(h)
	if idx < 0 {
		idx = -idx
	}
	return Palette[idx%int64(len(Palette))]
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[len(r)-n:]
	}
	return string(r)
}
