package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCaptchaStore(t *testing.T) (*CaptchaStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCaptchaStore(rdb), mr
}

func TestCaptchaLifecycle(t *testing.T) {
	cs, _ := newTestCaptchaStore(t)
	ctx := context.Background()

	require.NoError(t, cs.Begin(ctx, -100, 42, time.Minute))

	pending, err := cs.Pending(ctx, -100, 42)
	require.NoError(t, err)
	assert.True(t, pending)

	// Another member in the same chat is unaffected
	other, err := cs.Pending(ctx, -100, 43)
	require.NoError(t, err)
	assert.False(t, other)

	existed, err := cs.Clear(ctx, -100, 42)
	require.NoError(t, err)
	assert.True(t, existed)

	// Second clear reports nothing was pending
	existed, err = cs.Clear(ctx, -100, 42)
	require.NoError(t, err)
	assert.False(t, existed)

	pending, err = cs.Pending(ctx, -100, 42)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestCaptchaEntryExpires(t *testing.T) {
	cs, mr := newTestCaptchaStore(t)
	ctx := context.Background()

	require.NoError(t, cs.Begin(ctx, -100, 42, 30*time.Second))

	mr.FastForward(31 * time.Second)

	pending, err := cs.Pending(ctx, -100, 42)
	require.NoError(t, err)
	assert.False(t, pending, "entry should expire with its TTL")
}

func TestCaptchaPing(t *testing.T) {
	cs, mr := newTestCaptchaStore(t)
	require.NoError(t, cs.Ping(context.Background()))

	mr.Close()
	assert.Error(t, cs.Ping(context.Background()))
}
