//go:build !integration

package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-api-relay/internal/application"
	"telegram-api-relay/internal/config"
	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/infra/i18n"
	"telegram-api-relay/internal/infra/memory"
	"telegram-api-relay/internal/usecase"
)

const adminID = 1

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return f.updates }

func (f *fakeBot) StopReceivingUpdates() {}

func (f *fakeBot) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch v := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, v.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, v.Text)
		}
	}
	return out
}

func (f *fakeBot) last() string {
	t := f.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

type stubUpstream struct {
	mu   sync.Mutex
	urls []string
}

func (s *stubUpstream) Fetch(_ context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, url)
	return "pong", nil
}

func newTestAdapter(t *testing.T, commandsPerMinute int) (*RealTelegramBotAdapter, *fakeBot, *stubUpstream) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	cfg := &config.Config{
		Bot:       config.BotConfig{Workers: 2, AdminIDs: []int64{adminID}},
		RateLimit: config.RateLimitConfig{CommandsPerMinute: commandsPerMinute, CallbacksPerMinute: 30},
	}
	bot := &fakeBot{updates: make(chan tgbotapi.Update)}
	sender := NewSender(bot, &logger)

	registry := model.DefaultRegistry()
	quota := usecase.NewQuotaUseCase(memory.NewUsageRepo(7), config.QuotaConfig{DailyLimit: 20}, &logger)
	ent := usecase.NewEntitlementUseCase(memory.NewRedeemCodeRepo(), memory.NewPremiumRepo(), config.EntitlementConfig{StackRedemptions: true}, &logger)
	up := &stubUpstream{}
	dispatch := usecase.NewDispatchUseCase(registry, up, quota, ent, true, &logger)
	bc := usecase.NewBroadcastUseCase(quota, sender, nil, 0, &logger)
	facade := application.NewBotFacade(registry, dispatch, quota, ent, bc, memory.NewStateRepo(15*time.Minute), tr)

	a, err := NewRealTelegramBotAdapter(bot, sender, cfg, facade, memory.NewRateLimiter(), tr, &logger)
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	return a, bot, up
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	n := strings.IndexByte(text, ' ')
	if n < 0 {
		n = len(text)
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: userID, FirstName: "<Bob>"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}}
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 11,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}}
}

func TestIsAdmin(t *testing.T) {
	adapter := &RealTelegramBotAdapter{
		adminIDsMap: map[int64]struct{}{
			12345: {},
		},
	}

	if !adapter.isAdmin(12345) {
		t.Error("Expected user 12345 to be an admin, but they were not.")
	}

	if adapter.isAdmin(99999) {
		t.Error("Expected user 99999 not to be an admin, but they were.")
	}
}

func TestCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("api command relays the argument", func(t *testing.T) {
		a, bot, up := newTestAdapter(t, 100)
		if err := a.handleUpdate(ctx, commandUpdate(42, "/gpt hello   world")); err != nil {
			t.Fatalf("handleUpdate: %v", err)
		}
		if len(up.urls) != 1 || !strings.HasSuffix(up.urls[0], "hello world") {
			t.Fatalf("unexpected upstream calls %v", up.urls)
		}
		if got := bot.last(); got != "pong" {
			t.Errorf("reply = %q", got)
		}
	})

	t.Run("single-argument commands take the first word", func(t *testing.T) {
		a, _, up := newTestAdapter(t, 100)
		_ = a.handleUpdate(ctx, commandUpdate(42, "/terabox https://x.test/a extra"))
		if len(up.urls) != 1 || strings.Contains(up.urls[0], "extra") {
			t.Fatalf("unexpected upstream calls %v", up.urls)
		}
	})

	t.Run("missing argument shows usage", func(t *testing.T) {
		a, bot, up := newTestAdapter(t, 100)
		_ = a.handleUpdate(ctx, commandUpdate(42, "/terabox"))
		if got := bot.last(); got != "Usage: /terabox <link>" {
			t.Errorf("reply = %q", got)
		}
		if len(up.urls) != 0 {
			t.Errorf("no upstream call expected, got %v", up.urls)
		}
	})

	t.Run("admin commands reject other users", func(t *testing.T) {
		a, bot, _ := newTestAdapter(t, 100)
		_ = a.handleUpdate(ctx, commandUpdate(42, "/gpt hi"))
		_ = a.handleUpdate(ctx, commandUpdate(42, "/stats"))
		if got := bot.last(); got != "Not authorized." {
			t.Errorf("reply = %q", got)
		}
		_ = a.handleUpdate(ctx, commandUpdate(adminID, "/stats"))
		if got := bot.last(); !strings.HasPrefix(got, "User 42 on ") {
			t.Errorf("stats reply = %q", got)
		}
	})

	t.Run("gen_code then redeem", func(t *testing.T) {
		a, bot, _ := newTestAdapter(t, 100)
		_ = a.handleUpdate(ctx, commandUpdate(adminID, "/gen_code 3"))
		reply := bot.last()
		start := strings.Index(reply, "<code>")
		end := strings.Index(reply, "</code>")
		if start < 0 || end < start {
			t.Fatalf("no code in %q", reply)
		}
		code := reply[start+len("<code>") : end]

		_ = a.handleUpdate(ctx, commandUpdate(42, "/redeem "+strings.ToLower(code)))
		if got := bot.last(); !strings.HasPrefix(got, "✅ Premium active until") {
			t.Errorf("redeem reply = %q", got)
		}
		_ = a.handleUpdate(ctx, commandUpdate(43, "/redeem "+code))
		if got := bot.last(); got != "❌ Invalid or already used code." {
			t.Errorf("second redeem reply = %q", got)
		}
	})

	t.Run("broadcast reaches known users", func(t *testing.T) {
		a, bot, _ := newTestAdapter(t, 100)
		_ = a.handleUpdate(ctx, textUpdate(42, "hi"))
		_ = a.handleUpdate(ctx, commandUpdate(adminID, "/broadcast maintenance tonight"))
		texts := bot.texts()
		if got := texts[len(texts)-1]; got != "Broadcast sent to 2 users." {
			t.Errorf("reply = %q", got)
		}
		found := false
		for _, tx := range texts {
			if tx == "📢 maintenance tonight" {
				found = true
			}
		}
		if !found {
			t.Errorf("broadcast text not delivered: %v", texts)
		}
	})

	t.Run("start sends html menu and publishes commands", func(t *testing.T) {
		a, bot, _ := newTestAdapter(t, 100)
		_ = a.handleUpdate(ctx, commandUpdate(adminID, "/start"))

		bot.mu.Lock()
		defer bot.mu.Unlock()
		msg, ok := bot.sent[len(bot.sent)-1].(tgbotapi.MessageConfig)
		if !ok {
			t.Fatalf("expected MessageConfig, got %T", bot.sent[len(bot.sent)-1])
		}
		if msg.ParseMode != tgbotapi.ModeHTML || !strings.Contains(msg.Text, "&lt;Bob&gt;") {
			t.Errorf("welcome = %q (%s)", msg.Text, msg.ParseMode)
		}
		kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		if !ok || len(kb.InlineKeyboard) != 4 {
			t.Fatalf("expected 4 menu rows, got %#v", msg.ReplyMarkup)
		}
		var cmds *tgbotapi.SetMyCommandsConfig
		for _, r := range bot.requests {
			if c, ok := r.(tgbotapi.SetMyCommandsConfig); ok {
				cmds = &c
			}
		}
		if cmds == nil || len(cmds.Commands) != 11 {
			t.Errorf("admin command menu not published: %#v", cmds)
		}
	})

	t.Run("unknown command is ignored", func(t *testing.T) {
		a, bot, _ := newTestAdapter(t, 100)
		_ = a.handleUpdate(ctx, commandUpdate(42, "/nope"))
		if n := len(bot.texts()); n != 0 {
			t.Errorf("expected no reply, got %d", n)
		}
	})
}

func TestRateLimit(t *testing.T) {
	ctx := context.Background()
	a, bot, up := newTestAdapter(t, 3)
	for i := 0; i < 3; i++ {
		_ = a.handleUpdate(ctx, commandUpdate(42, "/llama hi"))
	}
	_ = a.handleUpdate(ctx, commandUpdate(42, "/llama hi"))
	if got := bot.last(); got != "⏳ Too many requests. Please slow down." {
		t.Errorf("reply = %q", got)
	}
	if len(up.urls) != 3 {
		t.Errorf("upstream calls = %d, want 3", len(up.urls))
	}

	// Other users keep their own budget.
	_ = a.handleUpdate(ctx, commandUpdate(43, "/llama hi"))
	if got := bot.last(); got != "pong" {
		t.Errorf("reply = %q", got)
	}
}

func TestMenuFlow(t *testing.T) {
	ctx := context.Background()
	a, bot, up := newTestAdapter(t, 100)

	_ = a.handleUpdate(ctx, textUpdate(42, "hello"))
	if got := bot.last(); got != "Please use commands: /terabox, /social, /llama, /gpt" {
		t.Errorf("hint = %q", got)
	}

	cb := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 42},
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 42}},
		Data:    "menu:llama",
	}}
	if err := a.handleUpdate(ctx, cb); err != nil {
		t.Fatalf("callback: %v", err)
	}
	bot.mu.Lock()
	edit, ok := bot.sent[len(bot.sent)-1].(tgbotapi.EditMessageTextConfig)
	answered := len(bot.requests) == 1
	bot.mu.Unlock()
	if !ok || edit.MessageID != 7 || edit.Text != "Send me input for <b>LLaMA 3.1 Chat</b>" {
		t.Fatalf("unexpected edit %#v", edit)
	}
	if !answered {
		t.Error("callback was not answered")
	}

	_ = a.handleUpdate(ctx, textUpdate(42, "  tell me a joke "))
	if len(up.urls) != 1 || !strings.HasSuffix(up.urls[0], "tell me a joke") {
		t.Fatalf("unexpected upstream calls %v", up.urls)
	}
	if got := bot.last(); got != "pong" {
		t.Errorf("reply = %q", got)
	}

	cb.CallbackQuery.Data = "menu:nope"
	_ = a.handleUpdate(ctx, cb)
	if got := bot.last(); got != "Unknown option." {
		t.Errorf("reply = %q", got)
	}
	if len(up.urls) != 1 {
		t.Errorf("unknown option must not call upstream")
	}
}

func TestStartPolling(t *testing.T) {
	a, bot, _ := newTestAdapter(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.StartPolling(ctx) }()

	bot.updates <- commandUpdate(42, "/help")
	deadline := time.Now().Add(2 * time.Second)
	for len(bot.texts()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := bot.last(); !strings.HasPrefix(got, "/start") {
		t.Errorf("help reply = %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("StartPolling returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StartPolling did not stop")
	}
}

func TestSplitMessage(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long, MaxMessageLength)
	if len(parts) != 2 || len(parts[0]) != MaxMessageLength || len(parts[1]) != 5000-MaxMessageLength {
		t.Fatalf("unexpected split sizes")
	}

	text := strings.Repeat("b", 3000) + "\n" + strings.Repeat("c", 3000)
	parts = splitMessage(text, MaxMessageLength)
	if len(parts) != 2 || !strings.HasSuffix(parts[0], "\n") || parts[1] != strings.Repeat("c", 3000) {
		t.Errorf("expected split on newline")
	}

	if got := splitMessage("short", MaxMessageLength); len(got) != 1 || got[0] != "short" {
		t.Errorf("short text split: %v", got)
	}

	multi := strings.Repeat("é", MaxMessageLength+1)
	parts = splitMessage(multi, MaxMessageLength)
	if len(parts) != 2 || parts[1] != "é" {
		t.Errorf("split must count runes")
	}
}

func TestSendMessageSplitsLongReplies(t *testing.T) {
	bot := &fakeBot{}
	logger := zerolog.Nop()
	s := NewSender(bot, &logger)
	if err := s.SendMessage(context.Background(), 1, strings.Repeat("x", 9000)); err != nil {
		t.Fatal(err)
	}
	if n := len(bot.texts()); n != 3 {
		t.Errorf("sent %d messages, want 3", n)
	}
}
