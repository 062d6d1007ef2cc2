package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.UsageRepository = (*UsageRepo)(nil)

const usageUsersKey = "usage:users"

// UsageRepo keeps one hash per user (field: day, value: count) and a sorted set
// of user ids scored by last-seen time. Each hash expires historyDays after its
// last write.
type UsageRepo struct {
	client *Client
	ttl    time.Duration
}

func NewUsageRepo(client *Client, historyDays int) *UsageRepo {
	if historyDays <= 0 {
		historyDays = 7
	}
	return &UsageRepo{client: client, ttl: time.Duration(historyDays) * 24 * time.Hour}
}

func usageKey(userID int64) string {
	return fmt.Sprintf("usage:%d", userID)
}

// KEYS[1] usage hash, ARGV[1] day, ARGV[2] limit, ARGV[3] ttl ms
var luaIncrIfBelow = redis.NewScript(`
local cur = tonumber(redis.call("HGET", KEYS[1], ARGV[1]) or "0")
if cur >= tonumber(ARGV[2]) then
	return {cur, 0}
end
cur = redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {cur, 1}`)

// KEYS[1] usage hash, ARGV[1] day
var luaDecr = redis.NewScript(`
local cur = tonumber(redis.call("HGET", KEYS[1], ARGV[1]) or "0")
if cur <= 1 then
	redis.call("HDEL", KEYS[1], ARGV[1])
	return 0
end
return redis.call("HINCRBY", KEYS[1], ARGV[1], -1)`)

func (r *UsageRepo) Get(ctx context.Context, userID int64, day string) (int, error) {
	n, err := r.client.cli.HGet(ctx, usageKey(userID), day).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (r *UsageRepo) Increment(ctx context.Context, userID int64, day string) (int, error) {
	key := usageKey(userID)
	pipe := r.client.cli.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, day, 1)
	pipe.PExpire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (r *UsageRepo) IncrementIfBelow(ctx context.Context, userID int64, day string, limit int) (int, bool, error) {
	res, err := luaIncrIfBelow.Run(ctx, r.client.cli, []string{usageKey(userID)}, day, limit, r.ttl.Milliseconds()).Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("unexpected script reply: %v", res)
	}
	count, _ := res[0].(int64)
	ok, _ := res[1].(int64)
	return int(count), ok == 1, nil
}

func (r *UsageRepo) Decrement(ctx context.Context, userID int64, day string) error {
	return luaDecr.Run(ctx, r.client.cli, []string{usageKey(userID)}, day).Err()
}

func (r *UsageRepo) Touch(ctx context.Context, userID int64, t time.Time) error {
	return r.client.cli.ZAdd(ctx, usageUsersKey, &redis.Z{
		Score:  float64(t.UnixMilli()),
		Member: strconv.FormatInt(userID, 10),
	}).Err()
}

func (r *UsageRepo) Users(ctx context.Context) ([]int64, error) {
	members, err := r.client.cli.ZRange(ctx, usageUsersKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *UsageRepo) List(ctx context.Context) ([]model.UsageRecord, error) {
	ids, err := r.Users(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.UsageRecord
	for _, id := range ids {
		days, err := r.client.cli.HGetAll(ctx, usageKey(id)).Result()
		if err != nil {
			return nil, err
		}
		for day, v := range days {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				continue
			}
			out = append(out, model.UsageRecord{UserID: id, Day: day, Count: n})
		}
	}
	return out, nil
}

func (r *UsageRepo) Prune(ctx context.Context, oldestDay string, seenBefore time.Time) (int, error) {
	removed := 0

	idle, err := r.client.cli.ZRangeByScore(ctx, usageUsersKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(seenBefore.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	for _, m := range idle {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		if err := r.client.Del(ctx, usageKey(id)); err != nil {
			return removed, err
		}
	}
	if len(idle) > 0 {
		members := make([]interface{}, len(idle))
		for i, m := range idle {
			members[i] = m
		}
		n, err := r.client.cli.ZRem(ctx, usageUsersKey, members...).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}

	ids, err := r.Users(ctx)
	if err != nil {
		return removed, err
	}
	for _, id := range ids {
		days, err := r.client.cli.HKeys(ctx, usageKey(id)).Result()
		if err != nil {
			return removed, err
		}
		var stale []string
		for _, d := range days {
			if d < oldestDay {
				stale = append(stale, d)
			}
		}
		if len(stale) == 0 {
			continue
		}
		n, err := r.client.cli.HDel(ctx, usageKey(id), stale...).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, nil
}
