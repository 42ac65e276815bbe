// Package cache keeps computed availability in redis. Entries are keyed by a
// per-host version so a single INCR invalidates everything for that host.
// Callers read the version once with HostVersion and use it for both the
// lookup and the store, so a result computed before an invalidation is never
// written under the newer version.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"meetly/backend/internal/domain"
)

const defaultTTL = time.Minute

type AvailabilityKey struct {
	HostID  string
	EventID uuid.UUID
	// At is the instant the slots were computed for. Entries are bucketed by minute.
	At time.Time
	// Version is the host version returned by HostVersion before the lookup.
	Version int64
}

type Redis struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "meetly"
	}
	return &Redis{rdb: rdb, ttl: ttl, prefix: prefix}
}

// HostVersion is the host's current cache version; 0 before the first invalidation.
func (c *Redis) HostVersion(ctx context.Context, hostID string) (int64, error) {
	v, err := c.rdb.Get(ctx, c.versionKey(hostID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *Redis) Availability(ctx context.Context, key AvailabilityKey) ([]domain.DayAvailability, bool, error) {
	raw, err := c.rdb.Get(ctx, c.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var days []domain.DayAvailability
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, false, err
	}
	return days, true, nil
}

// StoreAvailability writes under key.Version. After an invalidation that key is
// never looked up again, so a stale result stays unreachable.
func (c *Redis) StoreAvailability(ctx context.Context, key AvailabilityKey, days []domain.DayAvailability) error {
	raw, err := json.Marshal(days)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.entryKey(key), raw, c.ttl).Err()
}

// InvalidateHost drops every cached entry of the host by moving its version.
func (c *Redis) InvalidateHost(ctx context.Context, hostID string) error {
	return c.rdb.Incr(ctx, c.versionKey(hostID)).Err()
}

func (c *Redis) versionKey(hostID string) string {
	return c.prefix + ":host:" + hostID + ":ver"
}

func (c *Redis) entryKey(key AvailabilityKey) string {
	minute := key.At.UTC().Truncate(time.Minute).Unix()
	return c.prefix + ":avail:" + key.HostID + ":" + strconv.FormatInt(key.Version, 10) + ":" + key.EventID.String() + ":" + strconv.FormatInt(minute, 10)
}

func ReadyCheck(rdb redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
