package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.RedeemCodeRepository = (*RedeemCodeRepo)(nil)

const redeemCodePrefix = "redeem_code:"

// RedeemCodeRepo stores each unredeemed code as a JSON value; codes with an
// expiry carry a matching Redis TTL.
type RedeemCodeRepo struct {
	client *Client
}

func NewRedeemCodeRepo(client *Client) *RedeemCodeRepo {
	return &RedeemCodeRepo{client: client}
}

func (r *RedeemCodeRepo) Create(ctx context.Context, code *model.RedeemCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if code.ExpiresAt != nil {
		ttl = time.Until(*code.ExpiresAt)
		if ttl <= 0 {
			return domain.ErrInvalidArgument
		}
	}
	ok, err := r.client.cli.SetNX(ctx, redeemCodePrefix+code.Code, data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *RedeemCodeRepo) Take(ctx context.Context, code string) (*model.RedeemCode, error) {
	data, err := r.client.cli.GetDel(ctx, redeemCodePrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	var rc model.RedeemCode
	if err := json.Unmarshal([]byte(data), &rc); err != nil {
		return nil, err
	}
	if rc.Expired(time.Now()) {
		return nil, domain.ErrCodeNotFound
	}
	return &rc, nil
}

// PurgeExpired is a no-op: expiring codes carry a Redis TTL.
func (r *RedeemCodeRepo) PurgeExpired(context.Context, time.Time) (int, error) { return 0, nil }
