package credential

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttl: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	r := newFakeRedis()
	s := NewRedisStore(r, "orderdesk:session", time.Hour)

	c, err := s.Load(ctx)
	require.NoError(t, err, "missing key is an empty credential set")
	assert.Equal(t, Credentials{}, c)

	require.NoError(t, s.Save(ctx, Credentials{Token: "abc", RefreshToken: "r-1"}))
	assert.Equal(t, time.Hour, r.ttl["orderdesk:session"])
	assert.JSONEq(t, `{"token":"abc","refreshToken":"r-1"}`, r.data["orderdesk:session"])

	c, err = NewRedisStore(r, "orderdesk:session", 0).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Credentials{Token: "abc", RefreshToken: "r-1"}, c)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
	c, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.Token)
}

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()
	r := newFakeRedis()
	r.data["k"] = "not json"
	s := NewRedisStore(r, "k", 0)

	_, err := s.Load(ctx)
	require.Error(t, err)

	r.err = errors.New("connection refused")
	_, err = s.Load(ctx)
	require.ErrorIs(t, err, r.err)
	require.ErrorIs(t, s.Save(ctx, Credentials{Token: "t"}), r.err)
	require.ErrorIs(t, s.Clear(ctx), r.err)
}
