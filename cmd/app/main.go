// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"telegram-api-relay/internal/application"
	"telegram-api-relay/internal/config"
	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/adapter"
	"telegram-api-relay/internal/domain/ports/repository"
	tele "telegram-api-relay/internal/infra/adapters/telegram"
	"telegram-api-relay/internal/infra/adapters/upstream"
	httpapi "telegram-api-relay/internal/infra/http"
	"telegram-api-relay/internal/infra/i18n"
	"telegram-api-relay/internal/infra/logging"
	"telegram-api-relay/internal/infra/memory"
	"telegram-api-relay/internal/infra/metrics"
	red "telegram-api-relay/internal/infra/redis"
	"telegram-api-relay/internal/infra/sched"
	"telegram-api-relay/internal/infra/worker"
	"telegram-api-relay/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

const pendingInputTTL = 15 * time.Minute

type limiter interface {
	tele.RateLimiter
	sched.LimiterSweeper
}

// stores is the state backend: per-process memory, or Redis when configured.
type stores struct {
	usage   repository.UsageRepository
	codes   repository.RedeemCodeRepository
	premium repository.PremiumRepository
	state   repository.StateRepository
	limiter limiter
	locker  red.Locker
	close   func() error
}

func newStores(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (*stores, error) {
	if strings.TrimSpace(cfg.Redis.URL) == "" {
		log.Info().Msg("using in-memory stores")
		return &stores{
			usage:   memory.NewUsageRepo(cfg.Quota.HistoryDays),
			codes:   memory.NewRedeemCodeRepo(),
			premium: memory.NewPremiumRepo(),
			state:   memory.NewStateRepo(pendingInputTTL),
			limiter: memory.NewRateLimiter(),
			locker:  memory.Locker{},
			close:   func() error { return nil },
		}, nil
	}

	client, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	log.Info().Msg("using redis stores")
	return &stores{
		usage:   red.NewUsageRepo(client, cfg.Quota.HistoryDays),
		codes:   red.NewRedeemCodeRepo(client),
		premium: red.NewPremiumRepo(client),
		state:   red.NewStateRepo(client, pendingInputTTL),
		limiter: red.NewRateLimiter(client),
		locker:  red.NewLocker(client),
		close:   client.Close,
	}, nil
}

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("exiting")
	}
	logger.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().
		Str("version", version).
		Int("daily_limit", cfg.Quota.DailyLimit).
		Int("admins", len(cfg.Bot.AdminIDs)).
		Msg("starting")

	st, err := newStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Warn().Err(err).Msg("close stores")
		}
	}()

	translator, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	// ---- Telegram client ----
	botAPI, err := tele.NewBotClient(cfg.Bot.Token)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("authorized")
	sender := tele.NewSender(botAPI, logger)

	var broadcastBot adapter.TelegramBotAdapter = sender
	if cfg.Broadcast.DryRun {
		broadcastBot = tele.NewNoopBotAdapter(logger)
	}

	// ---- Workers ----
	pool := worker.NewPool(cfg.Broadcast.Workers, logger)
	pool.Start(ctx)
	defer pool.Stop()

	// ---- Usecases ----
	registry := model.DefaultRegistry()
	client := upstream.NewLimitedClient(upstream.NewHTTPClient(cfg.Upstream, logger), cfg.Upstream.ConcurrentLimit)
	quotaUC := usecase.NewQuotaUseCase(st.usage, cfg.Quota, logger)
	entUC := usecase.NewEntitlementUseCase(st.codes, st.premium, cfg.Entitlement, logger)
	dispatchUC := usecase.NewDispatchUseCase(registry, client, quotaUC, entUC, cfg.Quota.CountUsageForPremium, logger)
	broadcastUC := usecase.NewBroadcastUseCase(quotaUC, broadcastBot, pool, cfg.Broadcast.PerSecond, logger)

	// ---- Facade ----
	facade := application.NewBotFacade(registry, dispatchUC, quotaUC, entUC, broadcastUC, st.state, translator)

	// ---- Telegram ----
	botAdapter, err := tele.NewRealTelegramBotAdapter(botAPI, sender, cfg, facade, st.limiter, translator, logger)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	health := httpapi.NewServer(cfg.Health, logger)
	maintenance := sched.NewMaintenanceWorker(cfg.Scheduler.PruneCron, quotaUC, entUC, st.state, st.limiter, st.locker, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return botAdapter.StartPolling(gctx) })
	g.Go(health.Start)
	g.Go(func() error { return maintenance.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return health.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info().Msg("shutdown requested")
	return err
}
