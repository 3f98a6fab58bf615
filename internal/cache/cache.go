// Package cache keeps short-lived copies of order line lists and checkout
// idempotency claims in Redis. A Noop store is used when Redis is not
// configured; callers never need to branch on that.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront-panel/internal/domain"
)

// Store is the cache surface used by the services.
type Store interface {
	// Lines returns the cached lines for a product ("" for all products).
	Lines(ctx context.Context, productID string) (LineList, error)
	// SetLines stores lines read from the database after a miss. version must
	// be the one returned by that miss; a write under an older version is
	// dropped so a slow reader cannot restore lines that an invalidation
	// already retired.
	SetLines(ctx context.Context, productID string, version int64, lines []domain.OrderLine) error
	// InvalidateLines retires every cached line list.
	InvalidateLines(ctx context.Context) error
	// ClaimSubmission records basketID for a checkout submission. When the
	// submission was already claimed it returns the first basket id and false.
	ClaimSubmission(ctx context.Context, submissionID, basketID string) (string, bool, error)
	ReleaseSubmission(ctx context.Context, submissionID string) error
}

// LineList is the result of a cache read.
type LineList struct {
	Lines []domain.OrderLine
	// Version is the invalidation generation the read happened under.
	Version int64
	Hit     bool
}

// New connects to addr, or returns a Noop store when addr is empty.
func New(addr string, ttl time.Duration, logger *log.Logger) Store {
	if addr == "" {
		return Noop{}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return NewRedis(rdb, ttl, logger)
}

var errStaleVersion = errors.New("cache: line version moved")

type redisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

func NewRedis(rdb *redis.Client, ttl time.Duration, logger *log.Logger) Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &redisStore{rdb: rdb, ttl: ttl, logger: logger}
}

func (s *redisStore) Lines(ctx context.Context, productID string) (LineList, error) {
	version, err := s.linesVersion(ctx, s.rdb)
	if err != nil {
		s.logger.Printf("cache: get key=%s error=%v", keyLinesVersion, err)
		return LineList{}, err
	}
	key := fmt.Sprintf(keyLines, version, linesScope(productID))
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return LineList{Version: version}, nil
	}
	if err != nil {
		s.logger.Printf("cache: get key=%s error=%v", key, err)
		return LineList{}, err
	}
	var lines []domain.OrderLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		// a corrupt entry is a miss
		s.logger.Printf("cache: decode key=%s error=%v", key, err)
		return LineList{Version: version}, nil
	}
	return LineList{Lines: lines, Version: version, Hit: true}, nil
}

func (s *redisStore) SetLines(ctx context.Context, productID string, version int64, lines []domain.OrderLine) error {
	key := fmt.Sprintf(keyLines, version, linesScope(productID))
	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode lines: %w", err)
	}
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.linesVersion(ctx, tx)
		if err != nil {
			return err
		}
		if current != version {
			return errStaleVersion
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			return nil
		})
		return err
	}, keyLinesVersion)
	switch {
	case errors.Is(err, errStaleVersion), errors.Is(err, redis.TxFailedErr):
		s.logger.Printf("cache: skip stale key=%s", key)
		return nil
	case err != nil:
		s.logger.Printf("cache: set key=%s error=%v", key, err)
		return err
	}
	return nil
}

// InvalidateLines bumps the version; entries under older versions are never
// read again and expire with their TTL.
func (s *redisStore) InvalidateLines(ctx context.Context) error {
	if err := s.rdb.Incr(ctx, keyLinesVersion).Err(); err != nil {
		s.logger.Printf("cache: invalidate lines error=%v", err)
		return err
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *redisStore) linesVersion(ctx context.Context, c getter) (int64, error) {
	v, err := c.Get(ctx, keyLinesVersion).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (s *redisStore) ClaimSubmission(ctx context.Context, submissionID, basketID string) (string, bool, error) {
	key := fmt.Sprintf(keyIdemCheckout, submissionID)
	ok, err := s.rdb.SetNX(ctx, key, basketID, TTLIdempotency).Result()
	if err != nil {
		s.logger.Printf("cache: claim key=%s error=%v", key, err)
		return "", false, err
	}
	if ok {
		return basketID, true, nil
	}
	existing, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

func (s *redisStore) ReleaseSubmission(ctx context.Context, submissionID string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(keyIdemCheckout, submissionID)).Err()
}

// Noop caches nothing and claims every submission.
type Noop struct{}

func (Noop) Lines(context.Context, string) (LineList, error) { return LineList{}, nil }

func (Noop) SetLines(context.Context, string, int64, []domain.OrderLine) error { return nil }

func (Noop) InvalidateLines(context.Context) error { return nil }

func (Noop) ClaimSubmission(_ context.Context, _, basketID string) (string, bool, error) {
	return basketID, true, nil
}

func (Noop) ReleaseSubmission(context.Context, string) error { return nil }
