package repository

import (
	"context"
	"time"

	"telegram-api-relay/internal/domain/model"
)

// UsageRepository is the port for per-user daily counters.
// Implementations keep at most a bounded window of days per user.
type UsageRepository interface {
	Get(ctx context.Context, userID int64, day string) (int, error)
	Increment(ctx context.Context, userID int64, day string) (int, error)
	// IncrementIfBelow increments only while the current count is below limit.
	// It returns the count after the call and whether the increment happened.
	IncrementIfBelow(ctx context.Context, userID int64, day string, limit int) (int, bool, error)
	Decrement(ctx context.Context, userID int64, day string) error
	// Touch records that the user was seen at t.
	Touch(ctx context.Context, userID int64, t time.Time) error
	List(ctx context.Context) ([]model.UsageRecord, error)
	Users(ctx context.Context) ([]int64, error)
	// Prune removes records older than oldestDay and users not seen since seenBefore.
	Prune(ctx context.Context, oldestDay string, seenBefore time.Time) (int, error)
}
