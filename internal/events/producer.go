package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher emits events. Publishing never blocks the caller on the broker.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// ErrProducerClosed is returned by Publish after Close.
var ErrProducerClosed = errors.New("events: producer closed")

// Producer buffers messages in an inbox and writes them from one goroutine.
type Producer struct {
	w      *kafka.Writer
	inbox  chan kafka.Message
	done   chan struct{}
	logger *log.Logger

	// mu guards closed and the inbox send against Close.
	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, buf int, logger *log.Logger) *Producer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if buf <= 0 {
		buf = 256
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
		inbox:  make(chan kafka.Message, buf),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start runs the write loop until Close is called.
func (p *Producer) Start() {
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				p.logger.Printf("events: write topic=%s key=%s error=%v", m.Topic, m.Key, err)
			}
		}
		if err := p.w.Close(); err != nil {
			p.logger.Printf("events: close writer error=%v", err)
		}
	}()
}

// Publish encodes payload in an Envelope and queues it. When the inbox is
// full the event is dropped and logged.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	env, err := NewEnvelope(topic, payload)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(env.ID)},
		},
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Printf("events: producer closed, dropped topic=%s key=%s", topic, key)
		return ErrProducerClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.logger.Printf("events: inbox full, dropped topic=%s key=%s", topic, key)
		return nil
	}
}

// Close flushes queued messages and waits for the writer to finish.
func (p *Producer) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()
	<-p.done
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, string, any) error { return nil }
