//go:build !integration

package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageRepo_IncrementIfBelowConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageRepo(7)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.IncrementIfBelow(ctx, 1, "2024-01-01", 20)
			require.NoError(t, err)
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, granted)
	n, _ := repo.Get(ctx, 1, "2024-01-01")
	assert.Equal(t, 20, n)
}

func TestUsageRepo_RingEvictsOldestDay(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageRepo(2)

	_, _ = repo.Increment(ctx, 1, "2024-01-01")
	_, _ = repo.Increment(ctx, 1, "2024-01-02")
	_, _ = repo.Increment(ctx, 1, "2024-01-03")

	recs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	n, _ := repo.Get(ctx, 1, "2024-01-01")
	assert.Equal(t, 0, n)
}

func TestUsageRepo_DecrementAndPrune(t *testing.T) {
	ctx := context.Background()
	repo := NewUsageRepo(7)
	now := time.Now()

	_, _ = repo.Increment(ctx, 1, "2024-01-05")
	require.NoError(t, repo.Decrement(ctx, 1, "2024-01-05"))
	n, _ := repo.Get(ctx, 1, "2024-01-05")
	assert.Equal(t, 0, n)
	require.NoError(t, repo.Decrement(ctx, 99, "2024-01-05"))

	_, _ = repo.Increment(ctx, 1, "2024-01-01")
	_, _ = repo.Increment(ctx, 1, "2024-01-06")
	require.NoError(t, repo.Touch(ctx, 1, now))
	require.NoError(t, repo.Touch(ctx, 2, now.Add(-48*time.Hour)))

	users, _ := repo.Users(ctx)
	assert.Equal(t, []int64{1, 2}, users)

	removed, err := repo.Prune(ctx, "2024-01-03", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	users, _ = repo.Users(ctx)
	assert.Equal(t, []int64{1}, users)
	recs, _ := repo.List(ctx)
	assert.Equal(t, []model.UsageRecord{{UserID: 1, Day: "2024-01-06", Count: 1}}, recs)
}

func TestRedeemCodeRepo_ConcurrentTakeOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewRedeemCodeRepo()
	rc, _ := model.NewRedeemCode("AAAA-BBBB", 3, 1, 0)
	require.NoError(t, repo.Create(ctx, rc))
	assert.ErrorIs(t, repo.Create(ctx, rc), domain.ErrAlreadyExists)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Take(ctx, "AAAA-BBBB"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	_, err := repo.Take(ctx, "AAAA-BBBB")
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestRedeemCodeRepo_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewRedeemCodeRepo()
	rc, _ := model.NewRedeemCode("OLDX-CODE", 3, 1, time.Minute)
	require.NoError(t, repo.Create(ctx, rc))

	n, err := repo.PurgeExpired(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = repo.Take(ctx, "OLDX-CODE")
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestPremiumRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewPremiumRepo()
	now := time.Now()

	_, err := repo.Get(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	g, err := repo.Extend(ctx, 1, now, time.Hour, true)
	require.NoError(t, err)
	assert.True(t, g.ExpiresAt.Equal(now.Add(time.Hour)))

	g, err = repo.Extend(ctx, 1, now, time.Hour, true)
	require.NoError(t, err)
	assert.True(t, g.ExpiresAt.Equal(now.Add(2*time.Hour)))

	n, err := repo.PurgeExpired(ctx, now.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStateRepo_TTL(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepo(time.Minute)
	clock := time.Now()
	repo.now = func() time.Time { return clock }

	st := &repository.ConversationState{Step: "awaiting_endpoint_input", Data: map[string]string{"endpoint": "llama"}}
	require.NoError(t, repo.SetState(ctx, 1, st))
	got, err := repo.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "llama", got.Data["endpoint"])

	clock = clock.Add(2 * time.Minute)
	_, err = repo.GetState(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.SetState(ctx, 2, st))
	n, err := repo.Sweep(ctx, clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := rl.Allow(ctx, "k", 3, time.Minute)
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "other", 3, time.Minute)
	assert.True(t, ok)

	assert.Equal(t, 2, rl.Sweep(time.Now().Add(time.Second)))
}
