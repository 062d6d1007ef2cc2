package repository

import (
	"context"
	"time"
)

// ConversationState holds the user's progress in a multi-step conversation.
type ConversationState struct {
	Step string            `json:"step"` // e.g. "awaiting_endpoint_input"
	Data map[string]string `json:"data"` // e.g. the chosen endpoint key
}

// StateRepository is the port for managing a user's conversational state.
// GetState returns domain.ErrNotFound when nothing (or only an expired entry) is stored.
type StateRepository interface {
	SetState(ctx context.Context, tgID int64, state *ConversationState) error
	GetState(ctx context.Context, tgID int64) (*ConversationState, error)
	ClearState(ctx context.Context, tgID int64) error
	// Sweep drops entries older than now; stores with native expiry may no-op.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
