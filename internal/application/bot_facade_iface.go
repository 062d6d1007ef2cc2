package application

import (
	"context"

	"telegram-api-relay/internal/domain/ports/repository"
)

// ---- small interfaces to decouple the facade from concrete infra ----

// Translator renders user-facing strings.
type Translator interface {
	T(key string, args ...interface{}) string
}

// PendingInputStore remembers which endpoint a user picked from the menu.
type PendingInputStore interface {
	SetState(ctx context.Context, tgID int64, state *repository.ConversationState) error
	GetState(ctx context.Context, tgID int64) (*repository.ConversationState, error)
	ClearState(ctx context.Context, tgID int64) error
}
