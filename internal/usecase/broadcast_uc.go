package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/ports/adapter"
	"telegram-api-relay/internal/infra/logging"
	"telegram-api-relay/internal/infra/metrics"
	"telegram-api-relay/internal/infra/worker"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Compile-time check
var _ BroadcastUseCase = (*broadcastUC)(nil)

type BroadcastResult struct {
	Recipients int
	Sent       int
	Failed     int
}

type BroadcastUseCase interface {
	// BroadcastMessage sends text to every known user and waits for all
	// deliveries. Per-recipient failures are counted, never returned.
	BroadcastMessage(ctx context.Context, text string) (*BroadcastResult, error)
}

type broadcastUC struct {
	quota      QuotaUseCase
	bot        adapter.TelegramBotAdapter
	workerPool *worker.Pool
	limiter    *rate.Limiter
	log        *zerolog.Logger
}

// NewBroadcastUseCase sends through pool at no more than perSecond messages a
// second. A nil pool sends inline.
func NewBroadcastUseCase(
	quota QuotaUseCase,
	bot adapter.TelegramBotAdapter,
	pool *worker.Pool,
	perSecond int,
	logger *zerolog.Logger,
) *broadcastUC {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &broadcastUC{
		quota:      quota,
		bot:        bot,
		workerPool: pool,
		limiter:    rate.NewLimiter(limit, 1),
		log:        logger,
	}
}

const (
	sendQueued int32 = iota
	sendRunning
	sendAbandoned
)

func (uc *broadcastUC) BroadcastMessage(ctx context.Context, text string) (*BroadcastResult, error) {
	defer logging.TraceDuration(uc.log, "BroadcastUC.BroadcastMessage")()

	users, err := uc.quota.Users(ctx)
	if err != nil {
		uc.log.Error().Err(err).Msg("Failed to fetch users for broadcast")
		return nil, err
	}
	uc.log.Info().Int("user_count", len(users)).Msg("Starting broadcast")

	var (
		wg      sync.WaitGroup
		sent    atomic.Int64
		failed  atomic.Int64
		pending []*atomic.Int32
	)
	for _, tgID := range users {
		tgID := tgID // per-iteration copy (go < 1.22 loop semantics)
		if err := uc.limiter.Wait(ctx); err != nil {
			// cancelled: everything not yet attempted counts as failed
			failed.Add(1)
			continue
		}
		if uc.workerPool == nil {
			uc.record(uc.deliver(ctx, tgID, text), &sent, &failed)
			continue
		}

		state := new(atomic.Int32)
		wg.Add(1)
		err := uc.workerPool.SubmitWait(ctx, func(ctx context.Context) error {
			if !state.CompareAndSwap(sendQueued, sendRunning) {
				return nil
			}
			defer wg.Done()
			uc.record(uc.deliver(ctx, tgID, text), &sent, &failed)
			return nil
		})
		if err != nil {
			wg.Done()
			failed.Add(1)
			uc.log.Warn().Err(err).Int64("tg_id", tgID).Msg("Failed to submit broadcast task to worker pool")
			continue
		}
		pending = append(pending, state)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// Tasks still queued when the caller gives up never run; running
		// ones see the cancelled ctx and finish.
		abandoned := 0
		for _, st := range pending {
			if st.CompareAndSwap(sendQueued, sendAbandoned) {
				failed.Add(1)
				wg.Done()
				abandoned++
			}
		}
		uc.log.Warn().Int("abandoned", abandoned).Msg("Broadcast cancelled")
		<-done
	}

	res := &BroadcastResult{Recipients: len(users), Sent: int(sent.Load()), Failed: int(failed.Load())}
	metrics.AddBroadcastDeliveries("sent", res.Sent)
	metrics.AddBroadcastDeliveries("failed", res.Failed)
	uc.log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Msg("Broadcast finished")
	return res, nil
}

// deliver sends one broadcast message. Failures wrap domain.ErrDeliveryFailure.
func (uc *broadcastUC) deliver(ctx context.Context, telegramID int64, text string) error {
	if err := uc.bot.SendMessage(ctx, telegramID, text); err != nil {
		return fmt.Errorf("%w: tg_id %d: %v", domain.ErrDeliveryFailure, telegramID, err)
	}
	return nil
}

func (uc *broadcastUC) record(err error, sent, failed *atomic.Int64) {
	if err != nil {
		failed.Add(1)
		// e.g. the user blocked the bot
		uc.log.Warn().Err(err).Msg("Failed to send broadcast message to user")
		return
	}
	sent.Add(1)
}
