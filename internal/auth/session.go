package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

var ErrSessionNotCached = errors.New("no cached session")

const defaultSessionCacheDuration = 30 * time.Minute

// SessionCache holds the last-known user for an actor id, so a restarted process
// can resume a session without hitting the users table on every request.
type SessionCache interface {
	Get(ctx context.Context, actorID string) (domain.Actor, error)
	Set(ctx context.Context, actor domain.Actor, ttl time.Duration) error
	Clear(ctx context.Context, actorID string) error
}

type RedisSessionCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionCache(client redis.UniversalClient) *RedisSessionCache {
	return &RedisSessionCache{client: client, prefix: "fundledger:session:"}
}

func (c *RedisSessionCache) Get(ctx context.Context, actorID string) (domain.Actor, error) {
	raw, err := c.client.Get(ctx, c.prefix+actorID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Actor{}, ErrSessionNotCached
	}
	if err != nil {
		return domain.Actor{}, fmt.Errorf("read session %s: %w", actorID, err)
	}
	var actor domain.Actor
	if err := json.Unmarshal(raw, &actor); err != nil {
		return domain.Actor{}, fmt.Errorf("decode session %s: %w", actorID, err)
	}
	return actor, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, actor domain.Actor, ttl time.Duration) error {
	payload, err := json.Marshal(actor)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+actor.ID, payload, ttl).Err()
}

func (c *RedisSessionCache) Clear(ctx context.Context, actorID string) error {
	return c.client.Del(ctx, c.prefix+actorID).Err()
}

type cachedSession struct {
	actor     domain.Actor
	expiresAt time.Time
}

// MemorySessionCache is used when Redis is not configured.
type MemorySessionCache struct {
	mu       sync.RWMutex
	sessions map[string]cachedSession
}

func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{sessions: make(map[string]cachedSession)}
}

func (c *MemorySessionCache) Get(ctx context.Context, actorID string) (domain.Actor, error) {
	c.mu.RLock()
	session, ok := c.sessions[actorID]
	c.mu.RUnlock()

	if !ok || time.Now().After(session.expiresAt) {
		return domain.Actor{}, ErrSessionNotCached
	}
	return session.actor, nil
}

func (c *MemorySessionCache) Set(ctx context.Context, actor domain.Actor, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[actor.ID] = cachedSession{actor: actor, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *MemorySessionCache) Clear(ctx context.Context, actorID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, actorID)
	return nil
}

func (c *MemorySessionCache) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				for id, session := range c.sessions {
					if time.Now().After(session.expiresAt) {
						delete(c.sessions, id)
					}
				}
				c.mu.Unlock()
			}
		}
	}()
}
