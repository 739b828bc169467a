package summary

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/freshline/internal/shared"
)

const (
	cacheKey         = "freshline:summary"
	refreshedAtField = "refreshed_at"
)

// RedisStore keeps the snapshot in a single hash with a TTL so a stalled
// worker shows up as a cache miss instead of stale badges.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore instantiates the store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Save writes every counter atomically.
func (s *RedisStore) Save(ctx context.Context, c Counters) error {
	values := make(map[string]any, 5)
	for name, v := range c.Fields() {
		values[name] = v
	}
	values[refreshedAtField] = c.RefreshedAt.UTC().Format(time.RFC3339Nano)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, cacheKey, values)
		if s.ttl > 0 {
			pipe.Expire(ctx, cacheKey, s.ttl)
		}
		return nil
	})
	return err
}

// Load reads the cached snapshot.
func (s *RedisStore) Load(ctx context.Context) (Counters, error) {
	raw, err := s.client.HGetAll(ctx, cacheKey).Result()
	if err != nil {
		return Counters{}, err
	}
	if len(raw) == 0 {
		return Counters{}, shared.ErrNotFound
	}
	var c Counters
	targets := map[string]*int64{
		"pending_registrations": &c.PendingRegistrations,
		"unread_messages":       &c.UnreadMessages,
		"open_purchase_orders":  &c.OpenPurchaseOrders,
		"shortfall_items":       &c.ShortfallItems,
	}
	for name, dst := range targets {
		v, err := strconv.ParseInt(raw[name], 10, 64)
		if err != nil {
			return Counters{}, fmt.Errorf("summary: field %s: %w", name, err)
		}
		*dst = v
	}
	if ts := raw[refreshedAtField]; ts != "" {
		c.RefreshedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Counters{}, fmt.Errorf("summary: field %s: %w", refreshedAtField, err)
		}
	}
	return c, nil
}
