package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ArowuTest/tutorbot-backend/internal/utils"
	"github.com/go-redis/redis/v8"
)

// setNXer is the part of the Redis client the cooldown needs
type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisCooldown allows one request per chat per window across all
// replicas. The first request in a window sets a key with the window as
// TTL; later requests fail SetNX until it expires.
type RedisCooldown struct {
	client setNXer
	window time.Duration
}

// NewRedisCooldown creates a RedisCooldown
func NewRedisCooldown(client setNXer, window time.Duration) *RedisCooldown {
	return &RedisCooldown{client: client, window: window}
}

// Acquire reports whether chatID may make a request now
func (c *RedisCooldown) Acquire(ctx context.Context, chatID int64) (bool, error) {
	if c.window <= 0 {
		return true, nil
	}
	return c.client.SetNX(ctx, cooldownKey(chatID), 1, c.window).Result()
}

func cooldownKey(chatID int64) string {
	return Key("cooldown", utils.FormatChatID(chatID))
}

// LocalCooldown is the single-process variant used when Redis is not
// configured.
type LocalCooldown struct {
	mu     sync.Mutex
	last   map[int64]time.Time
	window time.Duration
	now    func() time.Time
}

// NewLocalCooldown creates a LocalCooldown
func NewLocalCooldown(window time.Duration) *LocalCooldown {
	return &LocalCooldown{
		last:   make(map[int64]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Acquire reports whether chatID may make a request now
func (c *LocalCooldown) Acquire(ctx context.Context, chatID int64) (bool, error) {
	if c.window <= 0 {
		return true, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[chatID]; ok && now.Sub(last) < c.window {
		return false, nil
	}
	c.last[chatID] = now
	if len(c.last) > 10000 {
		c.evict(now)
	}
	return true, nil
}

// evict forgets chats whose window has passed
func (c *LocalCooldown) evict(now time.Time) {
	for id, last := range c.last {
		if now.Sub(last) >= c.window {
			delete(c.last, id)
		}
	}
}
