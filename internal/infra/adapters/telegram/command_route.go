package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-api-relay/internal/infra/logging"
	"telegram-api-relay/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":   r.handleStartCommand,
		"help":    r.handleHelpCommand,
		"terabox": r.apiCommand("terabox", firstArg),
		"social":  r.apiCommand("social", firstArg),
		"llama":   r.apiCommand("llama", joinedArgs),
		"gpt":     r.apiCommand("gpt", joinedArgs),
		"redeem":  r.handleRedeemCommand,
		"status":  r.handleStatusCommand,

		"stats":     r.adminOnly(r.handleStatsCommand),
		"broadcast": r.adminOnly(r.handleBroadcastCommand),
		"gen_code":  r.adminOnly(r.handleGenCodeCommand),
	}
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if err := r.facade.Authorize(r.isAdmin(message.From.ID)); err != nil {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			text, _ := r.facade.ErrorText(err)
			return r.SendMessage(ctx, message.Chat.ID, text)
		}
		metrics.IncAdminCommand("/"+message.Command(), "authorized")
		return next(ctx, message)
	}
}

func firstArg(args string) string {
	f := strings.Fields(args)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

func joinedArgs(args string) string {
	return strings.Join(strings.Fields(args), " ")
}

// apiCommand relays the command argument to the endpoint under key.
func (r *RealTelegramBotAdapter) apiCommand(key string, argOf func(string) string) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		arg := argOf(message.CommandArguments())
		if arg == "" {
			return r.SendMessage(ctx, message.Chat.ID, r.translator.T("usage_"+key))
		}
		tgID := message.From.ID
		text, err := r.facade.HandleAPIRequest(ctx, tgID, r.isAdmin(tgID), key, arg)
		return r.reply(ctx, message.Chat.ID, text, err)
	}
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	isAdmin := r.isAdmin(message.From.ID)
	if err := r.SetMenuCommands(ctx, message.Chat.ID, isAdmin); err != nil {
		// Log the error but don't block the user
		logging.With(ctx, r.log).Warn().Err(err).Msg("failed to set dynamic menu commands")
	}
	text, rows := r.facade.HandleStart(message.From.FirstName)
	return r.sender.SendButtons(ctx, message.Chat.ID, text, rows)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleHelp())
}

func (r *RealTelegramBotAdapter) handleRedeemCommand(ctx context.Context, message *tgbotapi.Message) error {
	code := firstArg(message.CommandArguments())
	if code == "" {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T("usage_redeem"))
	}
	text, err := r.facade.HandleRedeem(ctx, message.From.ID, code)
	return r.reply(ctx, message.Chat.ID, text, err)
}

func (r *RealTelegramBotAdapter) handleStatusCommand(ctx context.Context, message *tgbotapi.Message) error {
	tgID := message.From.ID
	text, err := r.facade.HandleStatus(ctx, tgID, r.isAdmin(tgID))
	return r.reply(ctx, message.Chat.ID, text, err)
}

func (r *RealTelegramBotAdapter) handleStatsCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.facade.HandleStats(ctx)
	return r.reply(ctx, message.Chat.ID, text, err)
}

func (r *RealTelegramBotAdapter) handleBroadcastCommand(ctx context.Context, message *tgbotapi.Message) error {
	msg := joinedArgs(message.CommandArguments())
	if msg == "" {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T("usage_broadcast"))
	}
	text, err := r.facade.HandleBroadcast(ctx, msg)
	return r.reply(ctx, message.Chat.ID, text, err)
}

func (r *RealTelegramBotAdapter) handleGenCodeCommand(ctx context.Context, message *tgbotapi.Message) error {
	days := firstArg(message.CommandArguments())
	if days == "" {
		return r.SendMessage(ctx, message.Chat.ID, r.translator.T("usage_gen_code"))
	}
	text, err := r.facade.HandleGenCode(ctx, message.From.ID, days)
	return r.replyHTML(ctx, message.Chat.ID, text, err)
}
