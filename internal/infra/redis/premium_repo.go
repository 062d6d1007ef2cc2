package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.PremiumRepository = (*PremiumRepo)(nil)

// PremiumRepo stores the expiry (unix ms) under premium:<uid>; the key expires
// together with the grant.
type PremiumRepo struct {
	client *Client
}

func NewPremiumRepo(client *Client) *PremiumRepo {
	return &PremiumRepo{client: client}
}

func premiumKey(userID int64) string {
	return fmt.Sprintf("premium:%d", userID)
}

// KEYS[1] premium key, ARGV[1] now ms, ARGV[2] duration ms, ARGV[3] "1" to stack
var luaExtend = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local now = tonumber(ARGV[1])
local base = now
if ARGV[3] == "1" and cur > now then
	base = cur
end
local exp = base + tonumber(ARGV[2])
redis.call("SET", KEYS[1], string.format("%d", exp))
redis.call("PEXPIREAT", KEYS[1], string.format("%d", exp))
return string.format("%d", exp)`)

func (r *PremiumRepo) Get(ctx context.Context, userID int64) (*model.PremiumGrant, error) {
	v, err := r.client.Get(ctx, premiumKey(userID))
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("premium %d: %w", userID, err)
	}
	return &model.PremiumGrant{UserID: userID, ExpiresAt: time.UnixMilli(ms)}, nil
}

func (r *PremiumRepo) Extend(ctx context.Context, userID int64, now time.Time, d time.Duration, stack bool) (*model.PremiumGrant, error) {
	flag := "0"
	if stack {
		flag = "1"
	}
	v, err := luaExtend.Run(ctx, r.client.cli, []string{premiumKey(userID)}, now.UnixMilli(), d.Milliseconds(), flag).Text()
	if err != nil {
		return nil, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("premium %d: %w", userID, err)
	}
	return &model.PremiumGrant{UserID: userID, ExpiresAt: time.UnixMilli(ms)}, nil
}

// PurgeExpired is a no-op: grant keys expire on their own.
func (r *PremiumRepo) PurgeExpired(context.Context, time.Time) (int, error) { return 0, nil }
