package repository

import (
	"context"
	"time"

	"telegram-api-relay/internal/domain/model"
)

// RedeemCodeRepository is the port for storing unredeemed codes.
type RedeemCodeRepository interface {
	// Create stores a new code; domain.ErrAlreadyExists if the token is taken.
	Create(ctx context.Context, code *model.RedeemCode) error
	// Take atomically removes and returns the code; domain.ErrCodeNotFound if absent.
	Take(ctx context.Context, code string) (*model.RedeemCode, error)
	// PurgeExpired drops codes whose ttl has passed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
