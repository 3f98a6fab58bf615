// Package checkout captures storefront submissions as order lines that share
// one basket id.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"storefront-panel/internal/basket"
	"storefront-panel/internal/cache"
	"storefront-panel/internal/domain"
	"storefront-panel/internal/events"
)

// Checkout channels.
const (
	ChannelDirect   = "direct"
	ChannelWhatsApp = "whatsapp"
)

// A duplicate submission can arrive while the first is still inserting; the
// replay polls for its lines this many times before giving up.
const (
	replayAttempts = 5
	replayBackoff  = 100 * time.Millisecond
)

type lineRepo interface {
	CreateMany(ctx context.Context, lines []domain.OrderLine) ([]domain.OrderLine, error)
	ListByBasket(ctx context.Context, basketID string) ([]domain.OrderLine, error)
}

type productRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type Options struct {
	Cache          cache.Store
	Events         events.Publisher
	WhatsAppNumber string
	Logger         *log.Logger
}

type Service struct {
	lines    lineRepo
	products productRepo
	cache    cache.Store
	events   events.Publisher
	waNumber string
	logger   *log.Logger
	newID    func() string
	backoff  time.Duration
}

func New(lines lineRepo, products productRepo, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		lines:    lines,
		products: products,
		cache:    opts.Cache,
		events:   opts.Events,
		waNumber: digitsOnly(opts.WhatsAppNumber),
		logger:   opts.Logger,
		newID:    uuid.NewString,
		backoff:  replayBackoff,
	}
}

type PlaceInput struct {
	// SubmissionID makes retries of the same submission return the first basket.
	SubmissionID string                  `json:"submissionId,omitempty"`
	Channel      string                  `json:"channel"`
	Customer     domain.CustomerSnapshot `json:"customer"`
	Items        []ItemInput             `json:"items"`
}

type ItemInput struct {
	ProductID string         `json:"productId"`
	Quantity  int            `json:"quantity"`
	Options   domain.Options `json:"options,omitempty"`
}

type Receipt struct {
	BasketID    string             `json:"basketId"`
	Label       string             `json:"label"`
	Color       domain.Color       `json:"color"`
	Lines       []domain.OrderLine `json:"lines"`
	TotalCents  int64              `json:"totalCents"`
	Currency    string             `json:"currency"`
	WhatsAppURL string             `json:"whatsappUrl,omitempty"`
	Duplicate   bool               `json:"duplicate,omitempty"`
}

// Place validates the submission, prices every item from the catalog and
// stores the lines in one transaction under a freshly generated basket id.
func (s *Service) Place(ctx context.Context, in PlaceInput) (*Receipt, error) {
	channel, err := s.validate(&in)
	if err != nil {
		return nil, err
	}

	lines, currency, err := s.price(ctx, in)
	if err != nil {
		return nil, err
	}

	basketID := s.newID()

	if in.SubmissionID != "" {
		existing, claimed, err := s.cache.ClaimSubmission(ctx, in.SubmissionID, basketID)
		if err != nil {
			// idempotency is best effort when redis is unreachable
			s.logger.Printf("checkout: claim submission=%s error=%v", in.SubmissionID, err)
		} else if !claimed {
			return s.replay(ctx, in.SubmissionID, existing, channel)
		}
	}

	for i := range lines {
		lines[i].BasketID = &basketID
	}
	created, err := s.lines.CreateMany(ctx, lines)
	if err != nil {
		if in.SubmissionID != "" {
			if rerr := s.cache.ReleaseSubmission(ctx, in.SubmissionID); rerr != nil {
				s.logger.Printf("checkout: release submission=%s error=%v", in.SubmissionID, rerr)
			}
		}
		s.logger.Printf("checkout: create basket_id=%s error=%v", basketID, err)
		return nil, fmt.Errorf("create order lines: %w", err)
	}
	s.logger.Printf("checkout: placed basket_id=%s lines=%d channel=%s", basketID, len(created), channel)

	if err := s.cache.InvalidateLines(ctx); err != nil {
		s.logger.Printf("checkout: invalidate cache error=%v", err)
	}
	s.publishPlaced(ctx, created, channel)

	return s.receipt(basketID, created, currency, channel), nil
}

func (s *Service) validate(in *PlaceInput) (string, error) {
	channel := strings.ToLower(strings.TrimSpace(in.Channel))
	if channel == "" {
		channel = ChannelDirect
	}
	switch channel {
	case ChannelDirect:
	case ChannelWhatsApp:
		if s.waNumber == "" {
			return "", fmt.Errorf("%w: whatsapp checkout is not enabled", domain.ErrInvalidInput)
		}
	default:
		return "", fmt.Errorf("%w: unknown channel %q", domain.ErrInvalidInput, in.Channel)
	}

	in.Customer.Name = strings.TrimSpace(in.Customer.Name)
	in.Customer.Phone = strings.TrimSpace(in.Customer.Phone)
	in.Customer.Address = strings.TrimSpace(in.Customer.Address)
	in.Customer.Email = strings.TrimSpace(in.Customer.Email)
	if in.Customer.Name == "" {
		return "", fmt.Errorf("%w: customer name required", domain.ErrInvalidInput)
	}
	if digitsOnly(in.Customer.Phone) == "" {
		return "", fmt.Errorf("%w: customer phone required", domain.ErrInvalidInput)
	}

	in.SubmissionID = strings.TrimSpace(in.SubmissionID)

	if len(in.Items) == 0 {
		return "", fmt.Errorf("%w: at least one item required", domain.ErrInvalidInput)
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return "", fmt.Errorf("%w: item %d: product id required", domain.ErrInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return "", fmt.Errorf("%w: item %d: quantity must be positive", domain.ErrInvalidInput, i)
		}
	}
	return channel, nil
}

func (s *Service) price(ctx context.Context, in PlaceInput) ([]domain.OrderLine, string, error) {
	var currency string
	lines := make([]domain.OrderLine, 0, len(in.Items))
	for i, item := range in.Items {
		p, err := s.products.GetByID(ctx, strings.TrimSpace(item.ProductID))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, "", fmt.Errorf("%w: item %d: unknown product %s", domain.ErrInvalidInput, i, item.ProductID)
			}
			return nil, "", fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		if currency == "" {
			currency = p.Currency
		} else if p.Currency != currency {
			return nil, "", fmt.Errorf("%w: mixed currencies %s and %s", domain.ErrInvalidInput, currency, p.Currency)
		}

		customer := in.Customer
		image := p.Image()
		for _, opt := range item.Options {
			if opt.Image != "" {
				image = opt.Image
			}
		}
		lines = append(lines, domain.OrderLine{
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPriceCents: p.PriceCents,
			Quantity:       item.Quantity,
			Options:        item.Options,
			Customer:       &customer,
			Image:          image,
		})
	}
	return lines, currency, nil
}

// replay answers a repeated submission with the basket of the first one. The
// first may still be inserting, so an empty basket is polled briefly before
// the caller is told to retry.
func (s *Service) replay(ctx context.Context, submissionID, basketID, channel string) (*Receipt, error) {
	var lines []domain.OrderLine
	for attempt := 1; ; attempt++ {
		var err error
		lines, err = s.lines.ListByBasket(ctx, basketID)
		if err != nil {
			return nil, fmt.Errorf("load basket %s: %w", basketID, err)
		}
		if len(lines) > 0 {
			break
		}
		if attempt == replayAttempts {
			s.logger.Printf("checkout: submission=%s basket_id=%s still pending", submissionID, basketID)
			return nil, fmt.Errorf("%w: submission %s is still being placed", domain.ErrAlreadyExists, submissionID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.backoff):
		}
	}
	currency := ""
	if len(lines) > 0 {
		if p, err := s.products.GetByID(ctx, lines[0].ProductID); err == nil {
			currency = p.Currency
		}
	}
	s.logger.Printf("checkout: duplicate submission basket_id=%s", basketID)
	r := s.receipt(basketID, lines, currency, channel)
	r.Duplicate = true
	return r, nil
}

func (s *Service) receipt(basketID string, lines []domain.OrderLine, currency, channel string) *Receipt {
	derived := basket.Derive(lines)[basketID]
	r := &Receipt{
		BasketID:   basketID,
		Label:      derived.Label,
		Color:      derived.Color,
		Lines:      lines,
		TotalCents: derived.TotalCents,
		Currency:   currency,
	}
	if channel == ChannelWhatsApp {
		r.WhatsAppURL = s.whatsAppURL(derived, currency)
	}
	return r
}

func (s *Service) whatsAppURL(b domain.Basket, currency string) string {
	text := strings.ReplaceAll(url.QueryEscape(OrderMessage(b, currency)), "+", "%20")
	return "https://wa.me/" + s.waNumber + "?text=" + text
}

// OrderMessage is the text the customer sends to the merchant.
func OrderMessage(b domain.Basket, currency string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "New order %s\n", b.Label)
	for _, l := range b.Lines {
		fmt.Fprintf(&sb, "- %d x %s", l.Quantity, l.Name)
		if len(l.Options) > 0 {
			parts := make([]string, 0, len(l.Options))
			for _, o := range l.Options {
				parts = append(parts, o.Name+": "+o.Value)
			}
			fmt.Fprintf(&sb, " (%s)", strings.Join(parts, ", "))
		}
		fmt.Fprintf(&sb, " = %s\n", FormatAmount(l.TotalCents(), currency))
	}
	fmt.Fprintf(&sb, "Total: %s\n", FormatAmount(b.TotalCents, currency))
	if c := b.Customer; c != nil {
		fmt.Fprintf(&sb, "Customer: %s, %s", c.Name, c.Phone)
		if c.Address != "" {
			fmt.Fprintf(&sb, ", %s", c.Address)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (s *Service) publishPlaced(ctx context.Context, lines []domain.OrderLine, channel string) {
	for _, l := range lines {
		payload := events.LinePlaced{
			LineID:     l.ID,
			BasketID:   *l.BasketID,
			ProductID:  l.ProductID,
			Name:       l.Name,
			Quantity:   l.Quantity,
			TotalCents: l.TotalCents(),
			Channel:    channel,
			Customer:   basket.CustomerLabel(l.Customer),
		}
		if err := s.events.Publish(ctx, events.TopicLinePlaced, payload.BasketID, payload); err != nil {
			s.logger.Printf("checkout: publish placed line_id=%s error=%v", l.ID, err)
		}
	}
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
