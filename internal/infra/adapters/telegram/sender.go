package telegram

import (
	"context"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-api-relay/internal/domain/ports/adapter"
)

// MaxMessageLength is Telegram's limit for one text message.
const MaxMessageLength = 4096

// botClient is the subset of *tgbotapi.BotAPI the adapter uses.
type botClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ botClient = (*tgbotapi.BotAPI)(nil)

// NewBotClient logs in with token.
func NewBotClient(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

var _ adapter.TelegramBotAdapter = (*Sender)(nil)

// Sender is the outbound half of the bot. It is built before the facade so
// use cases (broadcast) can send without depending on the polling adapter.
type Sender struct {
	bot botClient
	log *zerolog.Logger
}

func NewSender(bot botClient, logger *zerolog.Logger) *Sender {
	l := logger.With().Str("component", "tg_sender").Logger()
	return &Sender{bot: bot, log: &l}
}

// SendMessage sends plain text, split into several messages when too long.
func (s *Sender) SendMessage(ctx context.Context, tgID int64, text string) error {
	parts := splitMessage(text, MaxMessageLength)
	if len(parts) > 1 {
		s.log.Debug().Int64("tg_id", tgID).Int("parts", len(parts)).Msg("long reply split")
	}
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(tgID, part)
		if _, err := s.bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// SendHTML sends text with HTML parse mode. Callers escape user input.
func (s *Sender) SendHTML(ctx context.Context, tgID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(tgID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := s.bot.Send(msg)
	return err
}

// SendButtons sends an HTML message with inline buttons.
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else a safe fallback uses btn.Text as callback data
func (s *Sender) SendButtons(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	// Support early cancellation
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg := tgbotapi.NewMessage(telegramID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if kb := keyboard(rows); len(kb.InlineKeyboard) > 0 {
		msg.ReplyMarkup = kb
	}
	_, err := s.bot.Send(msg)
	return err
}

// EditHTML replaces the text of an earlier bot message.
func (s *Sender) EditHTML(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	_, err := s.bot.Send(edit)
	return err
}

func keyboard(rows [][]adapter.InlineButton) tgbotapi.InlineKeyboardMarkup {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			var kb tgbotapi.InlineKeyboardButton
			switch {
			case btn.URL != "":
				kb = tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL)
			case btn.Data != "":
				kb = tgbotapi.NewInlineKeyboardButtonData(label, btn.Data)
			default:
				kb = tgbotapi.NewInlineKeyboardButtonData(label, label)
			}
			r = append(r, kb)
		}
		kbRows = append(kbRows, r)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: kbRows}
}

// splitMessage cuts text into chunks of at most limit runes, preferring to
// break after a newline in the second half of a chunk.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
