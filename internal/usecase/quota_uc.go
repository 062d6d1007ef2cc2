package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"telegram-api-relay/internal/config"
	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/repository"
	"telegram-api-relay/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ QuotaUseCase = (*quotaUC)(nil)

// Reservation is one unit of quota taken by TryConsume.
type Reservation struct {
	UserID int64
	Day    string
	Used   int
}

type QuotaUseCase interface {
	// CheckQuota reports whether the user is below today's limit.
	CheckQuota(ctx context.Context, userID int64) (bool, error)
	Increment(ctx context.Context, userID int64) error
	// TryConsume takes one unit of today's quota, or fails with domain.ErrQuotaExceeded.
	TryConsume(ctx context.Context, userID int64) (*Reservation, error)
	// Refund returns a unit taken by TryConsume.
	Refund(ctx context.Context, r *Reservation) error
	Touch(ctx context.Context, userID int64) error
	Stats(ctx context.Context) (string, error)
	Users(ctx context.Context) ([]int64, error)
	Usage(ctx context.Context, userID int64) (used, limit int, err error)
	// Prune drops days outside the history window and users idle for longer than it.
	Prune(ctx context.Context) (int, error)
}

type QuotaOption func(*quotaUC)

// WithClock overrides time.Now, for day-rollover tests.
func WithClock(now func() time.Time) QuotaOption {
	return func(uc *quotaUC) { uc.now = now }
}

type quotaUC struct {
	repo        repository.UsageRepository
	limit       int
	historyDays int
	now         func() time.Time
	log         *zerolog.Logger
}

func NewQuotaUseCase(repo repository.UsageRepository, cfg config.QuotaConfig, logger *zerolog.Logger, opts ...QuotaOption) *quotaUC {
	uc := &quotaUC{
		repo:        repo,
		limit:       cfg.DailyLimit,
		historyDays: cfg.HistoryDays,
		now:         time.Now,
		log:         logger,
	}
	if uc.limit <= 0 {
		uc.limit = 20
	}
	if uc.historyDays <= 0 {
		uc.historyDays = 7
	}
	for _, o := range opts {
		o(uc)
	}
	return uc
}

func (uc *quotaUC) today() string { return model.DayKey(uc.now()) }

func (uc *quotaUC) CheckQuota(ctx context.Context, userID int64) (bool, error) {
	used, err := uc.repo.Get(ctx, userID, uc.today())
	if err != nil {
		return false, err
	}
	return used < uc.limit, nil
}

func (uc *quotaUC) Increment(ctx context.Context, userID int64) error {
	if _, err := uc.repo.Increment(ctx, userID, uc.today()); err != nil {
		return err
	}
	uc.touch(ctx, userID)
	return nil
}

func (uc *quotaUC) TryConsume(ctx context.Context, userID int64) (*Reservation, error) {
	day := uc.today()
	used, ok, err := uc.repo.IncrementIfBelow(ctx, userID, day, uc.limit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrQuotaExceeded
	}
	uc.touch(ctx, userID)
	return &Reservation{UserID: userID, Day: day, Used: used}, nil
}

func (uc *quotaUC) Refund(ctx context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	return uc.repo.Decrement(ctx, r.UserID, r.Day)
}

func (uc *quotaUC) Touch(ctx context.Context, userID int64) error {
	return uc.repo.Touch(ctx, userID, uc.now())
}

func (uc *quotaUC) touch(ctx context.Context, userID int64) {
	if err := uc.repo.Touch(ctx, userID, uc.now()); err != nil {
		uc.log.Warn().Err(err).Int64("tg_id", userID).Msg("usage touch failed")
	}
}

func (uc *quotaUC) Stats(ctx context.Context) (string, error) {
	defer logging.TraceDuration(uc.log, "QuotaUC.Stats")()

	recs, err := uc.repo.List(ctx)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "No usage recorded.", nil
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].UserID != recs[j].UserID {
			return recs[i].UserID < recs[j].UserID
		}
		return recs[i].Day < recs[j].Day
	})
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, fmt.Sprintf("User %d on %s: %d", r.UserID, r.Day, r.Count))
	}
	return strings.Join(lines, "\n"), nil
}

func (uc *quotaUC) Users(ctx context.Context) ([]int64, error) {
	return uc.repo.Users(ctx)
}

func (uc *quotaUC) Usage(ctx context.Context, userID int64) (int, int, error) {
	used, err := uc.repo.Get(ctx, userID, uc.today())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, uc.limit, err
	}
	return used, uc.limit, nil
}

func (uc *quotaUC) Prune(ctx context.Context) (int, error) {
	now := uc.now()
	oldest := model.DaysAgo(now, uc.historyDays-1)
	seenBefore := now.AddDate(0, 0, -uc.historyDays)
	n, err := uc.repo.Prune(ctx, oldest, seenBefore)
	if err != nil {
		return n, fmt.Errorf("prune usage: %w", err)
	}
	return n, nil
}
