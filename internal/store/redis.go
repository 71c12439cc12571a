package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Priya8975/leaderboard-ledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Client() *redis.Client {
	return s.client
}

const leaderboardGenerationKey = "leaderboard:gen"

func leaderboardKey(mode domain.RankingMode) string {
	return fmt.Sprintf("leaderboard:%s", mode)
}

// setIfGeneration writes a projection only if no invalidation happened since
// the caller read the generation. KEYS: generation, projection. ARGV:
// expected generation, payload, ttl in milliseconds (0 for none).
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false then current = '0' end
if current ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// LeaderboardCache holds serialized leaderboard projections. It is a read
// cache only; Postgres stays the source of truth.
//
// Every Invalidate bumps a generation counter. A reader takes the
// generation before querying Postgres and passes it to Set, so rows read
// before a commit can never overwrite the invalidation that followed it.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(rs *RedisStore, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: rs.Client(), ttl: ttl}
}

// Get returns the cached rows for mode. ok is false on a cache miss.
func (c *LeaderboardCache) Get(ctx context.Context, mode domain.RankingMode) (rows []domain.LeaderboardRow, ok bool, err error) {
	data, err := c.client.Get(ctx, leaderboardKey(mode)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading leaderboard cache: %w", err)
	}

	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("decoding leaderboard cache: %w", err)
	}
	return rows, true, nil
}

// Generation returns the current invalidation generation.
func (c *LeaderboardCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, leaderboardGenerationKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading leaderboard cache generation: %w", err)
	}
	return gen, nil
}

// Set stores rows for mode if the generation is still gen. stored is false
// when an invalidation happened in between.
func (c *LeaderboardCache) Set(ctx context.Context, mode domain.RankingMode, rows []domain.LeaderboardRow, gen int64) (stored bool, err error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return false, fmt.Errorf("encoding leaderboard cache: %w", err)
	}

	keys := []string{leaderboardGenerationKey, leaderboardKey(mode)}
	n, err := setIfGeneration.Run(ctx, c.client, keys, strconv.FormatInt(gen, 10), data, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("writing leaderboard cache: %w", err)
	}
	return n == 1, nil
}

// Invalidate drops the cached projections for every ranking mode and bumps
// the generation in one transaction.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	keys := []string{leaderboardKey(domain.RankByAmount), leaderboardKey(domain.RankByRecency)}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, leaderboardGenerationKey)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidating leaderboard cache: %w", err)
	}
	return nil
}
