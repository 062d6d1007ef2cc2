package memory

import (
	"context"
	"sync"
	"time"

	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/repository"
)

var _ repository.RedeemCodeRepository = (*RedeemCodeRepo)(nil)

type RedeemCodeRepo struct {
	mu    sync.Mutex
	codes map[string]model.RedeemCode
}

func NewRedeemCodeRepo() *RedeemCodeRepo {
	return &RedeemCodeRepo{codes: make(map[string]model.RedeemCode)}
}

func (r *RedeemCodeRepo) Create(_ context.Context, code *model.RedeemCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.codes[code.Code]; ok && !existing.Expired(time.Now()) {
		return domain.ErrAlreadyExists
	}
	r.codes[code.Code] = *code
	return nil
}

// Take removes the code under the lock, so of two concurrent callers only one
// gets it.
func (r *RedeemCodeRepo) Take(_ context.Context, code string) (*model.RedeemCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.codes[code]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	delete(r.codes, code)
	if rc.Expired(time.Now()) {
		return nil, domain.ErrCodeNotFound
	}
	return &rc, nil
}

func (r *RedeemCodeRepo) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, rc := range r.codes {
		if rc.Expired(now) {
			delete(r.codes, k)
			n++
		}
	}
	return n, nil
}
