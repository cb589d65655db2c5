package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeIndex maps a room code to the session currently holding it. Reserve
// is the uniqueness gate for code generation: only one session can hold a
// code at a time, and End releases it for reuse.
type CodeIndex interface {
	// Reserve claims a code for a session. Returns false if the code is
	// already held.
	Reserve(ctx context.Context, code, sessionID string) (bool, error)
	// Get returns the session id holding the code, or "" if unclaimed.
	Get(ctx context.Context, code string) (string, error)
	Release(ctx context.Context, code string) error
}

type codeIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCodeIndex creates a Redis-backed code index. Reservations carry a TTL
// as a backstop against sessions that were never ended cleanly; the stale
// sweep normally releases codes long before it fires.
func NewCodeIndex(client *redis.Client) CodeIndex {
	return &codeIndex{
		client: client,
		ttl:    24 * time.Hour,
	}
}

func (c *codeIndex) key(code string) string {
	return fmt.Sprintf("roomcode:%s", code)
}

func (c *codeIndex) Reserve(ctx context.Context, code, sessionID string) (bool, error) {
	return c.client.SetNX(ctx, c.key(code), sessionID, c.ttl).Result()
}

func (c *codeIndex) Get(ctx context.Context, code string) (string, error) {
	id, err := c.client.Get(ctx, c.key(code)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *codeIndex) Release(ctx context.Context, code string) error {
	return c.client.Del(ctx, c.key(code)).Err()
}
