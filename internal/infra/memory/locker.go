package memory

import (
	"context"
	"time"
)

// Locker satisfies the job-lock contract for a single replica: it always grants.
type Locker struct{}

func (Locker) TryLock(context.Context, string, time.Duration) (string, error) { return "local", nil }

func (Locker) Unlock(context.Context, string, string) error { return nil }
