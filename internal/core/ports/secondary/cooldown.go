package secondary

import (
	"context"
	"time"
)

// CooldownStore tracks per-identity cooldown windows.
type CooldownStore interface {
	// Acquire starts a cooldown window for identity. When a window is already
	// active it returns the remaining time and domain.ErrCooldown.
	Acquire(ctx context.Context, identity string, cooldown time.Duration) (time.Duration, error)
}
