package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dedup:{service}:{event_id}
const keyDedup = "dedup:%s:%s"

var TTLDedup = 48 * time.Hour

// Deduper remembers which events a consumer has already handled.
type Deduper interface {
	// FirstSeen records id and reports whether it was new.
	FirstSeen(ctx context.Context, id string) (bool, error)
}

// NewDeduper returns a Redis backed Deduper, or NoopDeduper when addr is empty.
func NewDeduper(addr, service string) Deduper {
	if addr == "" {
		return NoopDeduper{}
	}
	return &redisDeduper{
		rdb:     redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 2 * time.Second}),
		service: service,
	}
}

type redisDeduper struct {
	rdb     *redis.Client
	service string
}

func (d *redisDeduper) FirstSeen(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(keyDedup, d.service, id), 1, TTLDedup).Result()
}

// NoopDeduper treats every event as new.
type NoopDeduper struct{}

func (NoopDeduper) FirstSeen(context.Context, string) (bool, error) { return true, nil }
