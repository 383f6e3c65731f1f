package credential

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client used by RedisStore.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps credentials under one Redis key so several client
// processes can share a session. A missing key is an empty credential set.
type RedisStore struct {
	client RedisClient
	key    string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store backed by key. A positive ttl expires the
// session that long after the last Save.
func NewRedisStore(client RedisClient, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, key: key, ttl: ttl}
}

// Load reads the session key.
func (s *RedisStore) Load(ctx context.Context) (Credentials, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credentials{}, nil
		}
		return Credentials{}, errors.Wrap(err, "get credentials")
	}
	c, err := decode(data)
	if err != nil {
		return Credentials{}, errors.Wrapf(err, "decode credentials %s", s.key)
	}
	return c, nil
}

// Save replaces the session key.
func (s *RedisStore) Save(ctx context.Context, c Credentials) error {
	if err := s.client.Set(ctx, s.key, encode(c), s.ttl).Err(); err != nil {
		return errors.Wrap(err, "set credentials")
	}
	return nil
}

// Clear deletes the session key.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "delete credentials")
	}
	return nil
}
