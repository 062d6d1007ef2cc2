package model

import "time"

// PremiumGrant marks a user as unlimited until ExpiresAt.
type PremiumGrant struct {
	UserID    int64
	ExpiresAt time.Time
}

// Active reports whether the grant is still in effect at t.
func (g *PremiumGrant) Active(t time.Time) bool {
	return g != nil && t.Before(g.ExpiresAt)
}

// ExtendGrant computes the new expiry for a redemption of d.
// With stack set, time is added on top of an unexpired grant; otherwise it
// always counts from now, overwriting the previous expiry.
func ExtendGrant(current *PremiumGrant, userID int64, now time.Time, d time.Duration, stack bool) *PremiumGrant {
	base := now
	if stack && current.Active(now) {
		base = current.ExpiresAt
	}
	return &PremiumGrant{UserID: userID, ExpiresAt: base.Add(d)}
}
