// Package notifier turns order events into the merchant activity feed.
package notifier

import (
	"context"
	"fmt"
	"io"
	"log"

	"storefront-panel/internal/cache"
	"storefront-panel/internal/events"
	"storefront-panel/internal/service/checkout"
)

type Notifier struct {
	feed   *log.Logger
	dedup  cache.Deduper
	logger *log.Logger
}

// New writes one feed entry per event to feed. Redelivered events are
// skipped using dedup.
func New(feed *log.Logger, dedup cache.Deduper, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if dedup == nil {
		dedup = cache.NoopDeduper{}
	}
	return &Notifier{feed: feed, dedup: dedup, logger: logger}
}

// Handle is an events.Handler for every published topic.
func (n *Notifier) Handle(ctx context.Context, env events.Envelope) error {
	first, err := n.dedup.FirstSeen(ctx, env.ID)
	if err != nil {
		// redis trouble must not stall the feed
		n.logger.Printf("notifier: dedup event=%s error=%v", env.ID, err)
	} else if !first {
		n.logger.Printf("notifier: skip duplicate event=%s", env.ID)
		return nil
	}

	entry, err := Format(env)
	if err != nil {
		return err
	}
	n.feed.Println(entry)
	return nil
}

// Format renders one activity feed entry.
func Format(env events.Envelope) (string, error) {
	switch env.Type {
	case events.TopicLinePlaced:
		p, err := events.DecodePayload[events.LinePlaced](env)
		if err != nil {
			return "", err
		}
		who := p.Customer
		if who == "" {
			who = "guest"
		}
		return fmt.Sprintf("new order basket=%s line=%s %d x %s total=%s customer=%s channel=%s",
			p.BasketID, p.LineID, p.Quantity, p.Name, checkout.FormatAmount(p.TotalCents, ""), who, p.Channel), nil
	case events.TopicLineProcessed:
		p, err := events.DecodePayload[events.LineProcessed](env)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("processed basket=%s line=%s", p.BasketKey, p.LineID), nil
	case events.TopicLineHidden:
		p, err := events.DecodePayload[events.LineHidden](env)
		if err != nil {
			return "", err
		}
		verb := "shown"
		if p.Hidden {
			verb = "hidden"
		}
		return fmt.Sprintf("%s line=%s", verb, p.LineID), nil
	default:
		return "", fmt.Errorf("notifier: unknown event type %q", env.Type)
	}
}
