package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message may be committed.
type Handler func(ctx context.Context, env Envelope) error

type Consumer struct {
	r      *kafka.Reader
	logger *log.Logger
}

func NewConsumer(brokers []string, group, topic string, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return &Consumer{r: r, logger: logger}
}

// Run fetches messages until ctx is cancelled. Messages that fail to decode
// are committed and skipped; handler errors leave the offset uncommitted.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	defer c.r.Close()
	topic := c.r.Config().Topic
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetch %s: %w", topic, err)
		}

		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			c.logger.Printf("events: skip malformed message topic=%s offset=%d error=%v", topic, m.Offset, err)
		} else if err := h(ctx, env); err != nil {
			c.logger.Printf("events: handler topic=%s event=%s error=%v", topic, env.ID, err)
			continue
		}

		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit %s: %w", topic, err)
		}
	}
}
