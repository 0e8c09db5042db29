// Package redis provides a Redis-backed QuotaStore.
//
// Each quota row is a hash. A per-user hash maps period ends to row ids, and
// a sorted set scores every user by the end of their latest period so expired
// users can be found with one range query. Row creation runs as a Lua script
// and is safe for multi-instance deployments.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kai200407/aipostblog"
)

// Store is a Redis-backed QuotaStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
	now       func() time.Time
}

var _ aipostblog.QuotaStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "aipost:quota:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a new Redis-backed QuotaStore.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "aipost:quota:",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) rowKey(id string) string         { return s.keyPrefix + "row:" + id }
func (s *Store) periodsKey(userID string) string { return s.keyPrefix + "user:" + userID }
func (s *Store) latestKey() string               { return s.keyPrefix + "latest" }

// createScript inserts a row unless the user already has one for the period.
// KEYS[1] = user periods hash
// KEYS[2] = latest-period sorted set
// KEYS[3] = new row hash
// ARGV[1] = id, ARGV[2] = user_id, ARGV[3] = plan, ARGV[4] = tokens_total,
// ARGV[5] = reset_at (unix seconds), ARGV[6] = created_at (unix seconds)
//
// Returns the id of the new or existing row.
var createScript = goredis.NewScript(`
local existing = redis.call("HGET", KEYS[1], ARGV[5])
if existing then
    return existing
end

redis.call("HSET", KEYS[3],
    "id", ARGV[1],
    "user_id", ARGV[2],
    "plan", ARGV[3],
    "tokens_total", ARGV[4],
    "tokens_used", "0",
    "reset_at", ARGV[5],
    "created_at", ARGV[6])
redis.call("HSET", KEYS[1], ARGV[5], ARGV[1])

local latest = redis.call("ZSCORE", KEYS[2], ARGV[2])
if (not latest) or tonumber(latest) < tonumber(ARGV[5]) then
    redis.call("ZADD", KEYS[2], ARGV[5], ARGV[2])
end
return ARGV[1]
`)

// incrementScript adds to tokens_used of an existing row.
// KEYS[1] = row hash
// ARGV[1] = tokens
//
// Returns the new tokens_used, or -1 when the row does not exist.
var incrementScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return -1
end
return redis.call("HINCRBY", KEYS[1], "tokens_used", tonumber(ARGV[1]))
`)

func (s *Store) GetCurrent(ctx context.Context, userID string, resetAt time.Time) (aipostblog.Quota, error) {
	id, err := s.client.HGet(ctx, s.periodsKey(userID), unix(resetAt)).Result()
	if errors.Is(err, goredis.Nil) {
		return aipostblog.Quota{}, aipostblog.ErrQuotaNotFound
	}
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/redis: get current: %w", err)
	}
	return s.load(ctx, id)
}

func (s *Store) Create(ctx context.Context, userID string, tier aipostblog.PlanTier, total int64, resetAt time.Time) (aipostblog.Quota, error) {
	return s.create(ctx, userID, string(tier), strconv.FormatInt(total, 10), resetAt)
}

func (s *Store) create(ctx context.Context, userID, plan, total string, resetAt time.Time) (aipostblog.Quota, error) {
	id := uuid.New().String()
	got, err := createScript.Run(ctx, s.client,
		[]string{s.periodsKey(userID), s.latestKey(), s.rowKey(id)},
		id, userID, plan, total, unix(resetAt), unix(s.now()),
	).Text()
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/redis: create: %w", err)
	}
	return s.load(ctx, got)
}

func (s *Store) IncrementUsed(ctx context.Context, quotaID string, tokens int64) (aipostblog.Quota, error) {
	used, err := incrementScript.Run(ctx, s.client, []string{s.rowKey(quotaID)}, tokens).Int64()
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/redis: increment: %w", err)
	}
	if used < 0 {
		return aipostblog.Quota{}, fmt.Errorf("%w: id %s", aipostblog.ErrQuotaNotFound, quotaID)
	}
	return s.load(ctx, quotaID)
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]aipostblog.Quota, error) {
	users, err := s.client.ZRangeByScoreWithScores(ctx, s.latestKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: unix(now),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("aipostblog/redis: list expired: %w", err)
	}

	out := make([]aipostblog.Quota, 0, len(users))
	for _, z := range users {
		userID, _ := z.Member.(string)
		id, err := s.client.HGet(ctx, s.periodsKey(userID), strconv.FormatInt(int64(z.Score), 10)).Result()
		if err != nil {
			return nil, fmt.Errorf("aipostblog/redis: list expired: user %s: %w", userID, err)
		}
		q, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *Store) Rollover(ctx context.Context, quotaID string, newResetAt time.Time) (aipostblog.Quota, error) {
	fields, err := s.client.HGetAll(ctx, s.rowKey(quotaID)).Result()
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/redis: rollover: %w", err)
	}
	if len(fields) == 0 {
		return aipostblog.Quota{}, fmt.Errorf("%w: id %s", aipostblog.ErrQuotaNotFound, quotaID)
	}
	return s.create(ctx, fields["user_id"], fields["plan"], fields["tokens_total"], newResetAt)
}

func (s *Store) load(ctx context.Context, id string) (aipostblog.Quota, error) {
	fields, err := s.client.HGetAll(ctx, s.rowKey(id)).Result()
	if err != nil {
		return aipostblog.Quota{}, fmt.Errorf("aipostblog/redis: load %s: %w", id, err)
	}
	if len(fields) == 0 {
		return aipostblog.Quota{}, fmt.Errorf("%w: id %s", aipostblog.ErrQuotaNotFound, id)
	}
	return parseRow(fields)
}

func parseRow(fields map[string]string) (aipostblog.Quota, error) {
	var nums [4]int64
	for i, name := range []string{"tokens_total", "tokens_used", "reset_at", "created_at"} {
		n, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return aipostblog.Quota{}, fmt.Errorf("aipostblog/redis: row %s: field %s: %w", fields["id"], name, err)
		}
		nums[i] = n
	}
	return aipostblog.Quota{
		ID:          fields["id"],
		UserID:      fields["user_id"],
		Tier:        aipostblog.PlanTier(fields["plan"]),
		TokensTotal: nums[0],
		TokensUsed:  nums[1],
		ResetAt:     time.Unix(nums[2], 0).UTC(),
		CreatedAt:   time.Unix(nums[3], 0).UTC(),
	}, nil
}

func unix(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }
