package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"firmadoc/internal/domain"
)

// ContractCache is a read-through cache for contract documents. A miss
// or a redis failure is never fatal; callers fall back to the database.
type ContractCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Entry
}

func NewContractCache(addr, password string, db int, ttl time.Duration, log *logrus.Entry) (*ContractCache, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &ContractCache{client: client, ttl: ttl, log: log}, nil
}

func contractKey(id string) string {
	return "firmadoc:contract:" + id
}

// Get returns the cached contract, or (nil, false) on a miss or error.
func (c *ContractCache) Get(ctx context.Context, id string) (*domain.ContractDocument, bool) {
	raw, err := c.client.Get(ctx, contractKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("contract_id", id).Warn("contract cache read failed")
		}
		return nil, false
	}
	var doc domain.ContractDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.log.WithError(err).WithField("contract_id", id).Warn("discarding corrupt cache entry")
		_ = c.client.Del(ctx, contractKey(id)).Err()
		return nil, false
	}
	return &doc, true
}

func (c *ContractCache) Set(ctx context.Context, doc *domain.ContractDocument) {
	if doc == nil || doc.ID == "" {
		return
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		c.log.WithError(err).WithField("contract_id", doc.ID).Warn("could not encode contract for cache")
		return
	}
	if err := c.client.Set(ctx, contractKey(doc.ID), raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("contract_id", doc.ID).Warn("contract cache write failed")
	}
}

// Invalidate drops the cached entry. Called after any mutation so the
// next read observes persisted state.
func (c *ContractCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, contractKey(id)).Err(); err != nil {
		c.log.WithError(err).WithField("contract_id", id).Warn("contract cache invalidation failed")
	}
}

func (c *ContractCache) Close() error {
	return c.client.Close()
}
