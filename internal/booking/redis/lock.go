package redis

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/logger"

	"github.com/go-redis/redis/v8"
)

const (
	holdKeyPrefix      = "booking_hold:"
	reconcileKeyPrefix = "payment_lock:"
)

// unlockScript deletes a key only while it still belongs to the caller.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Redis{
		Client: client,
		Logger: log,
	}
}

// HoldKey is the key whose expiry ends a pending reservation.
func HoldKey(bookingID string) string {
	return holdKeyPrefix + bookingID
}

// Lock takes key for owner if nobody holds it.
func (r *Redis) Lock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return r.Client.SetNX(ctx, key, owner, ttl).Result()
}

// Unlock releases key if owner still holds it.
func (r *Redis) Unlock(ctx context.Context, key, owner string) error {
	return unlockScript.Run(ctx, r.Client, []string{key}, owner).Err()
}

// LockReconcile serialises concurrent deliveries of one payment outcome.
func (r *Redis) LockReconcile(ctx context.Context, session, owner string, ttl time.Duration) (bool, error) {
	return r.Lock(ctx, reconcileKeyPrefix+session, owner, ttl)
}

func (r *Redis) UnlockReconcile(ctx context.Context, session, owner string) error {
	return r.Unlock(ctx, reconcileKeyPrefix+session, owner)
}

// HoldReservation marks a pending booking as held for ttl. When the key
// expires the booking is cancelled by the expiry subscriber.
func (r *Redis) HoldReservation(ctx context.Context, bookingID string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("hold ttl must be positive, got %s", ttl)
	}
	if err := r.Client.Set(ctx, HoldKey(bookingID), bookingID, ttl).Err(); err != nil {
		return err
	}
	r.Logger.Debug("REDIS", fmt.Sprintf("Holding reservation %s for %s", bookingID, ttl))
	return nil
}

// ReleaseReservation drops the hold without triggering an expiry event.
func (r *Redis) ReleaseReservation(ctx context.Context, bookingID string) error {
	return r.Client.Del(ctx, HoldKey(bookingID)).Err()
}
