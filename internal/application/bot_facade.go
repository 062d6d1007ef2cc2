package application

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"telegram-api-relay/internal/domain"
	"telegram-api-relay/internal/domain/model"
	"telegram-api-relay/internal/domain/ports/adapter"
	"telegram-api-relay/internal/domain/ports/repository"
	"telegram-api-relay/internal/usecase"
)

const (
	stepAwaitingInput = "awaiting_endpoint_input"
	expiryLayout      = "2006-01-02 15:04 UTC"
)

// BotFacade composes usecases into high-level bot commands.
// Facade methods return reply text so the Telegram adapter just forwards it to
// the chat. Expected domain failures (quota, unknown endpoint, bad code) come
// back as translated text with a nil error; a non-nil error is unexpected.
type BotFacade struct {
	Registry    *model.Registry
	DispatchUC  usecase.DispatchUseCase
	QuotaUC     usecase.QuotaUseCase
	EntUC       usecase.EntitlementUseCase
	BroadcastUC usecase.BroadcastUseCase
	Pending     PendingInputStore
	T           Translator
}

func NewBotFacade(
	registry *model.Registry,
	dispatchUC usecase.DispatchUseCase,
	quotaUC usecase.QuotaUseCase,
	entUC usecase.EntitlementUseCase,
	broadcastUC usecase.BroadcastUseCase,
	pending PendingInputStore,
	t Translator,
) *BotFacade {
	return &BotFacade{
		Registry:    registry,
		DispatchUC:  dispatchUC,
		QuotaUC:     quotaUC,
		EntUC:       entUC,
		BroadcastUC: broadcastUC,
		Pending:     pending,
		T:           t,
	}
}

// Touch records that the user talked to the bot, making them a broadcast recipient.
func (b *BotFacade) Touch(ctx context.Context, tgID int64) error {
	return b.QuotaUC.Touch(ctx, tgID)
}

// HandleStart returns the HTML welcome text and the endpoint menu.
func (b *BotFacade) HandleStart(firstName string) (string, [][]adapter.InlineButton) {
	return b.T.T("welcome", html.EscapeString(firstName)), b.MenuRows()
}

// MenuRows lists the visible endpoints, one button per row.
func (b *BotFacade) MenuRows() [][]adapter.InlineButton {
	var rows [][]adapter.InlineButton
	for _, e := range b.Registry.Visible() {
		rows = append(rows, []adapter.InlineButton{{Text: e.Title, Data: "menu:" + e.Key}})
	}
	return rows
}

func (b *BotFacade) HandleHelp() string {
	return b.T.T("help")
}

// HandleAPIRequest relays arg to the endpoint under key.
func (b *BotFacade) HandleAPIRequest(ctx context.Context, tgID int64, isAdmin bool, key, arg string) (string, error) {
	res, err := b.DispatchUC.Dispatch(ctx, usecase.DispatchRequest{
		UserID:      tgID,
		IsAdmin:     isAdmin,
		EndpointKey: key,
		Argument:    arg,
	})
	if err == nil {
		return res.Text, nil
	}
	if text, ok := b.ErrorText(err); ok {
		return text, nil
	}
	return "", fmt.Errorf("dispatch %s: %w", key, err)
}

// Authorize gates admin-only commands.
func (b *BotFacade) Authorize(isAdmin bool) error {
	if !isAdmin {
		return domain.ErrUnauthorized
	}
	return nil
}

// ErrorText translates an expected domain error into reply text.
// ok is false when err is not one the user should see.
func (b *BotFacade) ErrorText(err error) (text string, ok bool) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return b.T.T("not_authorized"), true
	case errors.Is(err, domain.ErrQuotaExceeded):
		return b.T.T("quota_exceeded"), true
	case errors.Is(err, domain.ErrUnknownEndpoint):
		return b.T.T("unknown_api"), true
	case errors.Is(err, domain.ErrServiceUnavailable):
		return b.T.T("service_unavailable"), true
	default:
		return "", false
	}
}

// HandleMenuChoice remembers a menu pick so the next plain message goes to
// that endpoint. The returned text is HTML.
func (b *BotFacade) HandleMenuChoice(ctx context.Context, tgID int64, key string) (string, error) {
	ep, ok := b.Registry.Lookup(key)
	if !ok {
		return b.T.T("unknown_option"), nil
	}
	state := &repository.ConversationState{
		Step: stepAwaitingInput,
		Data: map[string]string{"endpoint": ep.Key},
	}
	if err := b.Pending.SetState(ctx, tgID, state); err != nil {
		return "", fmt.Errorf("save menu choice: %w", err)
	}
	return b.T.T("menu_prompt", html.EscapeString(ep.Title)), nil
}

// HandleFreeform answers a plain text message: it feeds a pending menu choice,
// or points the user at the commands.
func (b *BotFacade) HandleFreeform(ctx context.Context, tgID int64, isAdmin bool, text string) (string, error) {
	state, err := b.Pending.GetState(ctx, tgID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && state.Step != stepAwaitingInput) {
		return b.T.T("freeform_hint"), nil
	}
	if err != nil {
		return "", fmt.Errorf("load menu choice: %w", err)
	}
	key := state.Data["endpoint"]
	arg := strings.TrimSpace(text)
	if arg == "" {
		// choice stays pending until real input arrives
		usageKey := "usage_" + key
		if usage := b.T.T(usageKey); usage != usageKey {
			return usage, nil
		}
		return b.T.T("freeform_hint"), nil
	}
	if err := b.Pending.ClearState(ctx, tgID); err != nil {
		return "", fmt.Errorf("clear menu choice: %w", err)
	}
	return b.HandleAPIRequest(ctx, tgID, isAdmin, key, arg)
}

func (b *BotFacade) HandleStats(ctx context.Context) (string, error) {
	s, err := b.QuotaUC.Stats(ctx)
	if err != nil {
		return "", fmt.Errorf("stats: %w", err)
	}
	return s, nil
}

func (b *BotFacade) HandleBroadcast(ctx context.Context, msg string) (string, error) {
	res, err := b.BroadcastUC.BroadcastMessage(ctx, b.T.T("broadcast_prefix", msg))
	if err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}
	return b.T.T("broadcast_sent", res.Sent), nil
}

// HandleGenCode issues a code worth daysArg days. The returned text is HTML.
func (b *BotFacade) HandleGenCode(ctx context.Context, adminID int64, daysArg string) (string, error) {
	days, err := strconv.Atoi(strings.TrimSpace(daysArg))
	if err != nil || days <= 0 {
		return b.T.T("gen_code_invalid_days"), nil
	}
	rc, err := b.EntUC.GenerateCode(ctx, days, adminID)
	if errors.Is(err, domain.ErrInvalidArgument) {
		return b.T.T("gen_code_invalid_days"), nil
	}
	if err != nil {
		return "", fmt.Errorf("gen_code: %w", err)
	}
	return b.T.T("gen_code_created", rc.Code, rc.DaysGranted), nil
}

func (b *BotFacade) HandleRedeem(ctx context.Context, tgID int64, code string) (string, error) {
	g, err := b.EntUC.Redeem(ctx, code, tgID)
	if errors.Is(err, domain.ErrCodeNotFound) {
		return b.T.T("redeem_not_found"), nil
	}
	if err != nil {
		return "", fmt.Errorf("redeem: %w", err)
	}
	return b.T.T("redeem_success", g.ExpiresAt.UTC().Format(expiryLayout)), nil
}

// HandleStatus summarizes today's usage and premium state.
func (b *BotFacade) HandleStatus(ctx context.Context, tgID int64, isAdmin bool) (string, error) {
	used, limit, err := b.QuotaUC.Usage(ctx, tgID)
	if err != nil {
		return "", fmt.Errorf("usage: %w", err)
	}
	if isAdmin {
		return b.T.T("status_admin", used), nil
	}
	g, err := b.EntUC.Grant(ctx, tgID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("grant: %w", err)
	}
	if g.Active(time.Now()) {
		return b.T.T("status_premium", g.ExpiresAt.UTC().Format(expiryLayout), used), nil
	}
	return b.T.T("status_free", used, limit), nil
}
