package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/qrcare/internal/access"
	"github.com/jwalitptl/qrcare/pkg/circuitbreaker"
)

var ErrNotFound = errors.New("session not found")

// Session is the server-side state behind a session cookie.
type Session struct {
	ID        string           `json:"-"`
	Principal access.Principal `json:"principal"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Store persists sessions with an explicit expiry.
type Store interface {
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

const redisKeyPrefix = "qrcare:session:"

type RedisStore struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
}

// NewRedisClient parses url and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-session",
			MaxFailures: 5,
			Timeout:     10 * time.Second,
			IsFailure:   func(err error) bool { return !errors.Is(err, redis.Nil) },
		}),
	}
}

func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return s.cb.Execute(func() error {
		if err := s.client.Set(ctx, redisKeyPrefix+sess.ID, payload, ttl).Err(); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	var payload []byte
	err := s.cb.Execute(func() error {
		var err error
		payload, err = s.client.Get(ctx, redisKeyPrefix+id).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	sess.ID = id
	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.cb.Execute(func() error {
		if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return nil
	})
}

// MemoryStore keeps sessions in process; suitable for a single instance.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) Save(_ context.Context, sess *Session, ttl time.Duration) error {
	c := *sess
	s.cache.Set(sess.ID, &c, ttl)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	v, found := s.cache.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	c := *v.(*Session)
	return &c, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}
