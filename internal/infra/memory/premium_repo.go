package memory

import (
	"context"
	"sync"
	"time"

	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/repository"
)

var _ repository.PremiumRepository = (*PremiumRepo)(nil)

type PremiumRepo struct {
	mu     sync.Mutex
	grants map[int64]time.Time
}

func NewPremiumRepo() *PremiumRepo {
	return &PremiumRepo{grants: make(map[int64]time.Time)}
}

func (r *PremiumRepo) Get(_ context.Context, userID int64) (*model.PremiumGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.grants[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &model.PremiumGrant{UserID: userID, ExpiresAt: exp}, nil
}

func (r *PremiumRepo) Extend(_ context.Context, userID int64, now time.Time, d time.Duration, stack bool) (*model.PremiumGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var current *model.PremiumGrant
	if exp, ok := r.grants[userID]; ok {
		current = &model.PremiumGrant{UserID: userID, ExpiresAt: exp}
	}
	g := model.ExtendGrant(current, userID, now, d, stack)
	r.grants[userID] = g.ExpiresAt
	return g, nil
}

func (r *PremiumRepo) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for uid, exp := range r.grants {
		if !now.Before(exp) {
			delete(r.grants, uid)
			n++
		}
	}
	return n, nil
}
