package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-api-relay/internal/application"
	"telegram-api-relay/internal/config"
	"telegram-api-relay/internal/infra/logging"
	"telegram-api-relay/internal/infra/metrics"
)

// RateLimiter caps how often one key may pass within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RealTelegramBotAdapter uses tgbotapi to poll updates and delegates to BotFacade.
type RealTelegramBotAdapter struct {
	bot         botClient
	sender      *Sender
	cfg         *config.Config
	facade      *application.BotFacade
	rateLimiter RateLimiter
	translator  application.Translator
	log         *zerolog.Logger

	adminIDsMap   map[int64]struct{}
	updateWorkers int
}

func NewRealTelegramBotAdapter(
	bot botClient,
	sender *Sender,
	cfg *config.Config,
	facade *application.BotFacade,
	rateLimiter RateLimiter,
	translator application.Translator,
	logger *zerolog.Logger,
) (*RealTelegramBotAdapter, error) {
	if bot == nil {
		return nil, errors.New("bot client is nil")
	}
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if facade == nil {
		return nil, errors.New("bot facade is nil")
	}
	if sender == nil {
		sender = NewSender(bot, logger)
	}

	adminMap := map[int64]struct{}{}
	for _, id := range cfg.Bot.AdminIDs {
		adminMap[id] = struct{}{}
	}
	workers := cfg.Bot.Workers
	if workers <= 0 {
		workers = 5
	}
	l := logger.With().Str("component", "telegram").Logger()

	return &RealTelegramBotAdapter{
		bot:           bot,
		sender:        sender,
		cfg:           cfg,
		facade:        facade,
		rateLimiter:   rateLimiter,
		translator:    translator,
		log:           &l,
		adminIDsMap:   adminMap,
		updateWorkers: workers,
	}, nil
}

// StartPolling blocks until ctx is cancelled, fanning updates out to the
// configured number of workers.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				if err := r.handleUpdate(ctx, up); err != nil {
					r.log.Error().Err(err).Int("worker", id).Int("update_id", up.UpdateID).Msg("update failed")
				}
			}
		}(i)
	}

	r.log.Info().Int("workers", r.updateWorkers).Msg("polling started")
	for {
		select {
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			close(updateChan)
			wg.Wait()
			r.log.Info().Msg("polling stopped")
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				close(updateChan)
				wg.Wait()
				return errors.New("telegram updates channel closed")
			}
			select {
			case updateChan <- up:
			case <-ctx.Done():
			}
		}
	}
}

func (r *RealTelegramBotAdapter) isAdmin(tgID int64) bool {
	_, ok := r.adminIDsMap[tgID]
	return ok
}

// allow applies the per-user flood limit. Limiter errors fail open.
func (r *RealTelegramBotAdapter) allow(ctx context.Context, tgID int64, kind string, limit int) bool {
	if r.rateLimiter == nil || limit <= 0 {
		return true
	}
	ok, err := r.rateLimiter.Allow(ctx, fmt.Sprintf("rl:%s:%d", kind, tgID), limit, time.Minute)
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered()
	}
	return ok
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	ctx = logging.WithTraceID(ctx, uuid.NewString())

	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}

	message := update.Message
	if message == nil || message.From == nil || message.Chat == nil {
		return nil
	}
	tgID := message.From.ID
	ctx = logging.WithTgID(ctx, tgID)

	if err := r.facade.Touch(ctx, tgID); err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("touch user")
	}

	if !r.allow(ctx, tgID, "cmd", r.cfg.RateLimit.CommandsPerMinute) {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T("rate_limited"))
	}

	if message.IsCommand() {
		handler, ok := r.commandRoutes()[message.Command()]
		if !ok {
			logging.With(ctx, r.log).Debug().Str("command", message.Command()).Msg("unknown command ignored")
			return nil
		}
		metrics.IncTelegramCommand("/" + message.Command())
		return handler(ctx, message)
	}

	if message.Text == "" {
		return nil
	}
	text, err := r.facade.HandleFreeform(ctx, tgID, r.isAdmin(tgID), message.Text)
	return r.reply(ctx, message.Chat.ID, text, err)
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query.From == nil {
		return nil
	}
	tgID := query.From.ID
	ctx = logging.WithTgID(ctx, tgID)

	// Stop the client spinner first; the answer carries no text.
	if _, err := r.bot.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		logging.With(ctx, r.log).Debug().Err(err).Msg("answer callback")
	}

	if err := r.facade.Touch(ctx, tgID); err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("touch user")
	}

	chatID := tgID
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	if !r.allow(ctx, tgID, "cb", r.cfg.RateLimit.CallbacksPerMinute) {
		return r.SendMessage(ctx, chatID, r.translator.T("rate_limited"))
	}

	for _, route := range r.cbPrefixRoutes() {
		if payload, ok := strings.CutPrefix(query.Data, route.Prefix); ok {
			return route.Fn(ctx, query, payload)
		}
	}
	logging.With(ctx, r.log).Debug().Str("data", query.Data).Msg("unknown callback ignored")
	return nil
}

// reply sends a facade answer, falling back to a generic message on error.
func (r *RealTelegramBotAdapter) reply(ctx context.Context, chatID int64, text string, err error) error {
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("handler failed")
		return r.SendMessage(ctx, chatID, r.translator.T("generic_error"))
	}
	return r.SendMessage(ctx, chatID, text)
}

// replyHTML is reply for texts the facade marks as HTML.
func (r *RealTelegramBotAdapter) replyHTML(ctx context.Context, chatID int64, text string, err error) error {
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("handler failed")
		return r.SendMessage(ctx, chatID, r.translator.T("generic_error"))
	}
	return r.sender.SendHTML(ctx, chatID, text)
}

func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, tgID int64, text string) error {
	return r.sender.SendMessage(ctx, tgID, text)
}

// SetMenuCommands publishes the command list for one chat, with admin
// commands included for admins.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context, chatID int64, isAdmin bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	names := []string{"start", "help", "terabox", "social", "llama", "gpt", "redeem", "status"}
	if isAdmin {
		names = append(names, "stats", "broadcast", "gen_code")
	}
	cmds := make([]tgbotapi.BotCommand, 0, len(names))
	for _, n := range names {
		cmds = append(cmds, tgbotapi.BotCommand{Command: n, Description: r.translator.T("cmd_" + n)})
	}
	scope := tgbotapi.NewBotCommandScopeChat(chatID)
	_, err := r.bot.Request(tgbotapi.NewSetMyCommandsWithScope(scope, cmds...))
	return err
}
