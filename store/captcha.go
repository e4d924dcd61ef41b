package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CaptchaStore keeps pending-verification entries in Redis. Each entry
// carries the captcha window as its TTL, so expiry needs no sweeper.
type CaptchaStore struct {
	rdb *redis.Client
}

// NewCaptchaStore creates a CaptchaStore on top of a Redis client
func NewCaptchaStore(rdb *redis.Client) *CaptchaStore {
	return &CaptchaStore{rdb: rdb}
}

func captchaKey(chatID, userID int64) string {
	return fmt.Sprintf("captcha:%d:%d", chatID, userID)
}

// Begin marks a member as pending verification for the given window
func (c *CaptchaStore) Begin(ctx context.Context, chatID, userID int64, window time.Duration) error {
	return c.rdb.Set(ctx, captchaKey(chatID, userID), "1", window).Err()
}

// Clear removes a pending entry, reporting whether one existed
func (c *CaptchaStore) Clear(ctx context.Context, chatID, userID int64) (bool, error) {
	n, err := c.rdb.Del(ctx, captchaKey(chatID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Pending reports whether a member is still awaiting verification
func (c *CaptchaStore) Pending(ctx context.Context, chatID, userID int64) (bool, error) {
	n, err := c.rdb.Exists(ctx, captchaKey(chatID, userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks Redis connectivity for readiness probes
func (c *CaptchaStore) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
