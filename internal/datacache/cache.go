// Package datacache keeps remotely fetched collections in Redis, keyed by
// resource URL and scoped to the requesting actor.
package datacache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const keyPrefix = "datacache"

// Fetcher loads the raw payload of a resource URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Cache wraps Redis with fetch-on-miss and explicit revalidation.
type Cache struct {
	client  *redis.Client
	fetcher Fetcher
	ttl     time.Duration
	logger  *slog.Logger
	group   singleflight.Group

	mu     sync.Mutex
	seq    uint64
	gens   map[string]uint64
	rounds map[string]*round
}

// round is one revalidation fetch. Callers join it only until it starts
// fetching; later callers queue a new round behind it.
type round struct {
	id       uint64
	started  bool
	finished bool
	prev     chan struct{}
	done     chan struct{}
}

// New instantiates the cache helper.
func New(client *redis.Client, fetcher Fetcher, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		client:  client,
		fetcher: fetcher,
		ttl:     ttl,
		logger:  logger,
		gens:    make(map[string]uint64),
		rounds:  make(map[string]*round),
	}
}

// Get decodes the latest payload for url into dest, fetching it on a miss.
func (c *Cache) Get(ctx context.Context, url string, dest any) error {
	key := c.key(ctx, url)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("datacache read", slog.String("url", url), slog.Any("error", err))
	}
	payload, err = c.load(ctx, key, url)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dest)
}

// Revalidate drops the cached payload for url and refetches it. The refetch
// always starts after the call: revalidations issued while a fetch is in
// flight share the next one instead of joining the stale one.
func (c *Cache) Revalidate(ctx context.Context, url string) error {
	key := c.key(ctx, url)
	if err := c.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	rd := c.joinRound(key)
	_, err, _ := c.group.Do(key+"#"+strconv.FormatUint(rd.id, 10), func() (any, error) {
		// The round already ran after this caller joined it.
		if c.roundFinished(rd) {
			return nil, nil
		}
		defer c.finishRound(key, rd)
		if rd.prev != nil {
			select {
			case <-rd.prev:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		gen := c.startRound(rd, key)
		return c.fetchAndStore(ctx, key, url, gen)
	})
	return err
}

// Invalidate drops the cached payload for url without refetching.
func (c *Cache) Invalidate(ctx context.Context, url string) error {
	err := c.client.Del(ctx, c.key(ctx, url)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (c *Cache) load(ctx context.Context, key, url string) ([]byte, error) {
	result, err, _ := c.group.Do(key, func() (any, error) {
		return c.fetchAndStore(ctx, key, url, c.generation(key))
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// fetchAndStore fetches url and caches the payload unless a revalidation
// started after gen was taken. A write raced by a newer round is undone so
// the stale payload is never served.
func (c *Cache) fetchAndStore(ctx context.Context, key, url string, gen uint64) ([]byte, error) {
	payload, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if !json.Valid(payload) {
		return nil, errors.New("datacache: payload is not json")
	}
	if c.generation(key) != gen {
		return payload, nil
	}
	// A failed write only costs a refetch on the next read.
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("datacache write", slog.String("url", url), slog.Any("error", err))
		return payload, nil
	}
	if c.generation(key) != gen {
		if err := c.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
			c.logger.Warn("datacache drop stale", slog.String("url", url), slog.Any("error", err))
		}
	}
	return payload, nil
}

func (c *Cache) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

// joinRound returns the pending round for key, opening a new one behind the
// running round when none is waiting.
func (c *Cache) joinRound(key string) *round {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.rounds[key]
	if current != nil && !current.started {
		return current
	}
	c.seq++
	rd := &round{id: c.seq, done: make(chan struct{})}
	if current != nil {
		rd.prev = current.done
	}
	c.rounds[key] = rd
	return rd
}

// startRound closes the round to new callers and bumps the key generation so
// older fetches stop writing.
func (c *Cache) startRound(rd *round, key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	rd.started = true
	c.gens[key]++
	return c.gens[key]
}

func (c *Cache) roundFinished(rd *round) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rd.finished
}

func (c *Cache) finishRound(key string, rd *round) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rd.finished {
		return
	}
	rd.started = true
	rd.finished = true
	close(rd.done)
	if c.rounds[key] == rd {
		delete(c.rounds, key)
	}
}

func (c *Cache) key(ctx context.Context, url string) string {
	return strings.Join([]string{keyPrefix, shared.IdentityFromContext(ctx).Key(), url}, ":")
}
