package model

import (
	"time"

	"telegram-api-relay/internal/domain"
)

// RedeemCode is a single-use token that grants premium status for DaysGranted days.
type RedeemCode struct {
	Code        string     `json:"code"`
	DaysGranted int        `json:"days_granted"`
	IssuerID    int64      `json:"issuer_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"` // nil: never expires
}

func NewRedeemCode(code string, days int, issuerID int64, ttl time.Duration) (*RedeemCode, error) {
	if code == "" || days <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	rc := &RedeemCode{
		Code:        code,
		DaysGranted: days,
		IssuerID:    issuerID,
		CreatedAt:   now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		rc.ExpiresAt = &exp
	}
	return rc, nil
}

// Expired reports whether the code can no longer be redeemed at t.
func (c *RedeemCode) Expired(t time.Time) bool {
	return c.ExpiresAt != nil && !t.Before(*c.ExpiresAt)
}

// Duration is the premium time this code grants.
func (c *RedeemCode) Duration() time.Duration {
	return time.Duration(c.DaysGranted) * 24 * time.Hour
}
