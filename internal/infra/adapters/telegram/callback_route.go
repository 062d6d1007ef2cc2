package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-api-relay/internal/infra/logging"
)

type cbHandler func(ctx context.Context, query *tgbotapi.CallbackQuery, payload string) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

// Prefix-match callbacks
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: "menu:", Fn: r.handleMenuCallback},
	}
}

// handleMenuCallback turns the menu message into an input prompt for the
// picked endpoint.
func (r *RealTelegramBotAdapter) handleMenuCallback(ctx context.Context, query *tgbotapi.CallbackQuery, key string) error {
	text, err := r.facade.HandleMenuChoice(ctx, query.From.ID, key)
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Str("endpoint", key).Msg("menu choice failed")
		text = r.translator.T("generic_error")
	}
	if query.Message == nil || query.Message.Chat == nil {
		return r.sender.SendHTML(ctx, query.From.ID, text)
	}
	return r.sender.EditHTML(ctx, query.Message.Chat.ID, query.Message.MessageID, text)
}
