//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/adapter"
	"telegram-api-relay/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// fixedClock is a settable time source.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// ---- Mock TelegramBotAdapter ----

type sentMessage struct {
	ChatID int64
	Text   string
}

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []sentMessage

	SendMessageFunc func(ctx context.Context, chatID int64, text string) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if m.SendMessageFunc != nil {
		if err := m.SendMessageFunc(ctx, chatID, text); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *MockTelegramBot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	return m.SendMessage(ctx, chatID, text)
}

// ---- Mock UpstreamClient ----

type MockUpstream struct {
	mu    sync.Mutex
	Calls []string

	FetchFunc func(ctx context.Context, url string) (string, error)
}

var _ adapter.UpstreamClient = (*MockUpstream)(nil)

func (m *MockUpstream) Fetch(ctx context.Context, url string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, url)
	m.mu.Unlock()
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, url)
	}
	return "ok", nil
}

func (m *MockUpstream) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// ---- Mock UsageRepository (error injection) ----

type MockUsageRepo struct {
	repository.UsageRepository

	ListFunc  func(ctx context.Context) ([]model.UsageRecord, error)
	UsersFunc func(ctx context.Context) ([]int64, error)
}

func (m *MockUsageRepo) List(ctx context.Context) ([]model.UsageRecord, error) {
	return m.ListFunc(ctx)
}

func (m *MockUsageRepo) Users(ctx context.Context) ([]int64, error) {
	return m.UsersFunc(ctx)
}

// ---- Mock PremiumRepository ----

type MockPremiumRepo struct {
	repository.PremiumRepository

	GetFunc    func(ctx context.Context, userID int64) (*model.PremiumGrant, error)
	ExtendFunc func(ctx context.Context, userID int64, now time.Time, d time.Duration, stack bool) (*model.PremiumGrant, error)
}

func (m *MockPremiumRepo) Get(ctx context.Context, userID int64) (*model.PremiumGrant, error) {
	return m.GetFunc(ctx, userID)
}

func (m *MockPremiumRepo) Extend(ctx context.Context, userID int64, now time.Time, d time.Duration, stack bool) (*model.PremiumGrant, error) {
	return m.ExtendFunc(ctx, userID, now, d, stack)
}
