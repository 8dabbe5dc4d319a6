package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNoSnapshot = errors.New("no persisted session")

// Key identifies one participant's attempt at one competition.
type Key struct {
	CompetitionID int64
	ParticipantID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.CompetitionID, k.ParticipantID)
}

// Scramble is the per-participant presentation order. It is built once per
// attempt and reused on every rehydrate.
type Scramble struct {
	QuestionOrder []int64            `json:"question_order"`
	Choices       map[int64][]string `json:"choices,omitempty"`
	Rights        map[int64][]string `json:"rights,omitempty"`
}

// Snapshot is everything that must survive a reload. EndsAt is committed
// once and never recomputed.
type Snapshot struct {
	EndsAt   time.Time        `json:"ends_at"`
	Answers  map[int64]string `json:"answers"`
	Scramble Scramble         `json:"scramble"`
	Cursor   int              `json:"cursor"`
}

type Store interface {
	Load(ctx context.Context, key Key) (*Snapshot, error)
	// Create commits the first snapshot of an attempt. It reports false and
	// leaves the stored value alone when one already exists.
	Create(ctx context.Context, key Key, snap *Snapshot) (bool, error)
	Save(ctx context.Context, key Key, snap *Snapshot) error
	Delete(ctx context.Context, key Key) error
}

// MemoryStore keeps encoded snapshots in process. Used in tests and when no
// Redis is configured.
type MemoryStore struct {
	mu   sync.Mutex
	data map[Key][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Key][]byte)}
}

func (m *MemoryStore) Load(ctx context.Context, key Key) (*Snapshot, error) {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoSnapshot
	}
	return decodeSnapshot(raw)
}

func (m *MemoryStore) Create(ctx context.Context, key Key, snap *Snapshot) (bool, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("encode session: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = raw
	return true, nil
}

func (m *MemoryStore) Save(ctx context.Context, key Key, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key Key) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// RedisStore keeps one JSON value per attempt with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, key Key) (*Snapshot, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}
	return decodeSnapshot(raw)
}

func (s *RedisStore) Create(ctx context.Context, key Key, snap *Snapshot) (bool, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("encode session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(key), raw, s.expiry(snap)).Result()
	if err != nil {
		return false, fmt.Errorf("create session %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Save(ctx context.Context, key Key, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), raw, s.expiry(snap)).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

// expiry keeps the value at least until the attempt ends so a slow
// participant never loses their end timestamp.
func (s *RedisStore) expiry(snap *Snapshot) time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	if left := time.Until(snap.EndsAt); left > 0 {
		return left + s.ttl
	}
	return s.ttl
}

func (s *RedisStore) key(k Key) string {
	return fmt.Sprintf("olympiad:session:%d:%d", k.CompetitionID, k.ParticipantID)
}

func decodeSnapshot(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if snap.Answers == nil {
		snap.Answers = map[int64]string{}
	}
	return &snap, nil
}
