package repository

import (
	"context"
	"time"

	"telegram-api-relay/internal/domain/model"
)

// PremiumRepository is the port for premium grants.
type PremiumRepository interface {
	// Get returns the stored grant or domain.ErrNotFound.
	Get(ctx context.Context, userID int64) (*model.PremiumGrant, error)
	// Extend atomically applies model.ExtendGrant and stores the result.
	Extend(ctx context.Context, userID int64, now time.Time, d time.Duration, stack bool) (*model.PremiumGrant, error)
	// PurgeExpired drops grants that ended before now.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
