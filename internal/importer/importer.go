// Package importer loads CSV exports from the previous storefront: the
// product catalog and the order lines captured before basket ids existed.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"storefront-panel/internal/domain"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

type LineWriter interface {
	Upsert(ctx context.Context, line domain.OrderLine) (*domain.OrderLine, error)
}

func newReader(r io.Reader) *csv.Reader {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.LazyQuotes = true
	return csvr
}

// ProductImporter reads product exports. A row with only an image column
// belongs to the product above it.
type ProductImporter struct {
	reader *csv.Reader
	repo   ProductWriter
}

func NewProductImporter(r io.Reader, repo ProductWriter) *ProductImporter {
	return &ProductImporter{reader: newReader(r), repo: repo}
}

// Run upserts products by slug and returns how many were saved.
func (i *ProductImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)

	var (
		current  *domain.Product
		imported int
	)
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}

		slug := pick(record, index, "slug")
		image := pick(record, index, "image")
		if slug == "" {
			// continuation rows (images) belong to the current product
			if current != nil && image != "" {
				current.Images = append(current.Images, image)
			}
			continue
		}

		if current != nil {
			if err := i.save(ctx, current); err != nil {
				return imported, err
			}
			imported++
		}
		cents, err := parseCents(pick(record, index, "price"))
		if err != nil {
			return imported, fmt.Errorf("product %q: %w", slug, err)
		}
		current = &domain.Product{
			ID:          pick(record, index, "id"),
			Slug:        slug,
			Name:        pick(record, index, "name"),
			Description: pick(record, index, "description"),
			PriceCents:  cents,
			Currency:    pick(record, index, "currency"),
		}
		if image != "" {
			current.Images = []string{image}
		}
	}

	if current != nil {
		if err := i.save(ctx, current); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

func (i *ProductImporter) save(ctx context.Context, p *domain.Product) error {
	if p.Name == "" || p.PriceCents <= 0 || p.Currency == "" {
		return fmt.Errorf("invalid product row (missing required fields) for slug %q", p.Slug)
	}
	if p.ID != "" && len(p.ID) != 36 {
		return fmt.Errorf("invalid id for slug %q: %s", p.Slug, p.ID)
	}
	if _, err := i.repo.Upsert(ctx, *p); err != nil {
		return fmt.Errorf("upsert product %q: %w", p.Slug, err)
	}
	return nil
}

// LineImporter reads order line exports. The options column holds the old
// options object, customer included; rows with an empty cart_id are legacy
// lines.
type LineImporter struct {
	reader *csv.Reader
	repo   LineWriter
}

func NewLineImporter(r io.Reader, repo LineWriter) *LineImporter {
	return &LineImporter{reader: newReader(r), repo: repo}
}

// Run upserts every row by id and returns how many lines were saved.
func (i *LineImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)

	imported := 0
	for row := 2; ; row++ {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row %d: %w", row, err)
		}
		line, err := parseLine(record, index)
		if err != nil {
			return imported, fmt.Errorf("row %d: %w", row, err)
		}
		if _, err := i.repo.Upsert(ctx, line); err != nil {
			return imported, fmt.Errorf("upsert line %s: %w", line.ID, err)
		}
		imported++
	}
	return imported, nil
}

func parseLine(record []string, index map[string]int) (domain.OrderLine, error) {
	line := domain.OrderLine{
		ID:        pick(record, index, "id"),
		ProductID: pick(record, index, "product_id"),
		Name:      pick(record, index, "name"),
		Image:     pick(record, index, "image"),
	}
	if line.ID == "" || line.ProductID == "" {
		return line, errors.New("id and product_id are required")
	}

	cents, err := parseCents(pick(record, index, "unit_price"))
	if err != nil {
		return line, err
	}
	line.UnitPriceCents = cents

	qty := pick(record, index, "quantity")
	if qty == "" {
		line.Quantity = 1
	} else if line.Quantity, err = strconv.Atoi(qty); err != nil || line.Quantity <= 0 {
		return line, fmt.Errorf("invalid quantity %q", qty)
	}

	opts, customer, err := domain.DecodeLegacyOptions([]byte(pick(record, index, "options")))
	if err != nil {
		return line, err
	}
	line.Options = opts
	line.Customer = customer

	if cart := pick(record, index, "cart_id"); cart != "" {
		line.BasketID = &cart
	}
	if ts := pick(record, index, "created_at"); ts != "" {
		if line.CreatedAt, err = time.Parse(time.RFC3339, ts); err != nil {
			return line, fmt.Errorf("invalid created_at %q: %w", ts, err)
		}
	}
	line.Processed = parseBool(pick(record, index, "processed"))
	line.Hidden = parseBool(pick(record, index, "hidden"))
	return line, nil
}

func parseCents(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return int64(math.Round(f * 100)), nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "t", "true", "yes":
		return true
	}
	return false
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return idx
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
