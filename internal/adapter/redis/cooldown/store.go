package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/secondary"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

var _ secondary.CooldownStore = (*CooldownRepository)(nil)

const cooldownKeyPrefix = "submission:cooldown:"

// CooldownRepository keeps one expiring key per identity in Redis
type CooldownRepository struct {
	redisClient *redis.Client
	logger      primary.Logger
}

func NewCooldownRepository(redisClient *redis.Client, logger primary.Logger) *CooldownRepository {
	return &CooldownRepository{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Acquire starts a cooldown window unless one is active. An active window
// yields its remaining time and domain.ErrCooldown. A zero cooldown never
// blocks.
func (r *CooldownRepository) Acquire(ctx context.Context, identity string, cooldown time.Duration) (time.Duration, error) {
	if cooldown <= 0 {
		return 0, nil
	}
	key := cooldownKeyPrefix + identity

	ok, err := r.redisClient.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), cooldown).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to set cooldown: %w", err)
	}
	if ok {
		return 0, nil
	}

	remaining, err := r.redisClient.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read cooldown: %w", err)
	}
	if remaining < 0 {
		// key vanished or has no expiry
		remaining = cooldown
	}
	r.logger.Debug("Submission cooldown active", "identity", identity, "remaining", remaining)
	return remaining, domain.ErrCooldown
}
