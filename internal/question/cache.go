package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Source yields the raw bank of a competition in bank order.
type Source interface {
	ListByCompetition(ctx context.Context, competitionID int64) ([]Question, error)
}

// CachedSource keeps each competition bank as one JSON value in Redis and
// falls back to the wrapped source on a miss.
type CachedSource struct {
	client *redis.Client
	src    Source
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCachedSource(client *redis.Client, src Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		client: client,
		src:    src,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CachedSource) ListByCompetition(ctx context.Context, competitionID int64) ([]Question, error) {
	key := bankKey(competitionID)
	if qs, ok := c.fromCache(ctx, key); ok {
		return qs, nil
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// another caller may have filled it while we waited
		if qs, ok := c.fromCache(ctx, key); ok {
			return qs, nil
		}
		qs, err := c.src.ListByCompetition(ctx, competitionID)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(qs)
		if err != nil {
			return nil, fmt.Errorf("encode bank: %w", err)
		}
		if err := c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err(); err != nil {
			log.Printf("question cache: store bank %d: %v", competitionID, err)
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneBank(v.([]Question)), nil
}

// Invalidate drops the cached bank after any mutation.
func (c *CachedSource) Invalidate(ctx context.Context, competitionID int64) error {
	if err := c.client.Del(ctx, bankKey(competitionID)).Err(); err != nil {
		return fmt.Errorf("invalidate bank cache: %w", err)
	}
	return nil
}

func (c *CachedSource) fromCache(ctx context.Context, key string) ([]Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("question cache: read %s: %v", key, err)
		}
		return nil, false
	}
	var qs []Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		log.Printf("question cache: decode %s: %v", key, err)
		return nil, false
	}
	return qs, true
}

func (c *CachedSource) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func bankKey(competitionID int64) string {
	return "olympiad:bank:" + strconv.FormatInt(competitionID, 10)
}

func cloneBank(in []Question) []Question {
	out := make([]Question, len(in))
	copy(out, in)
	return out
}
