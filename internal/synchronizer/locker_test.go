package synchronizer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	release, ok, err := l.Lock(ctx, "sync:a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.Lock(ctx, "sync:a", time.Minute)
	assert.False(t, ok)

	_, ok, _ = l.Lock(ctx, "sync:b", time.Minute)
	assert.True(t, ok)

	release()
	release()
	_, ok, _ = l.Lock(ctx, "sync:a", time.Minute)
	assert.True(t, ok)
}

type fakeRedis struct {
	mu   sync.Mutex
	vals map[string]string
	ttl  time.Duration
	err  error
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, exp time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.vals[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.vals[key] = value.(string)
	f.ttl = exp
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vals[keys[0]] == args[0] {
		delete(f.vals, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisLocker(t *testing.T) {
	rdb := &fakeRedis{vals: map[string]string{}}
	l := NewRedisLocker(rdb, "extmedia:")
	ctx := context.Background()

	release, ok, err := l.Lock(ctx, "sync:a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, rdb.vals, "extmedia:sync:a")
	assert.Equal(t, time.Minute, rdb.ttl)

	_, ok, err = l.Lock(ctx, "sync:a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.NotContains(t, rdb.vals, "extmedia:sync:a")
}

func TestRedisLocker_ReleaseKeepsForeignToken(t *testing.T) {
	rdb := &fakeRedis{vals: map[string]string{}}
	l := NewRedisLocker(rdb, "")

	release, ok, err := l.Lock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// the lock expired and another process took it over
	rdb.vals["k"] = "someone-else"
	release()
	assert.Equal(t, "someone-else", rdb.vals["k"])
}

func TestRedisLocker_Error(t *testing.T) {
	rdb := &fakeRedis{vals: map[string]string{}, err: errors.New("connection refused")}

	_, ok, err := NewRedisLocker(rdb, "").Lock(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.False(t, ok)
}
