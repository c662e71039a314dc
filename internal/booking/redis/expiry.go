package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

// ExpiryHandler is called with the booking id of every expired hold.
type ExpiryHandler func(ctx context.Context, bookingID string)

// EnableExpiryEvents turns on keyspace notifications for expired keys.
// Managed Redis offerings often forbid CONFIG SET; the error is returned so
// the caller can fall back to the periodic sweeper.
func (r *Redis) EnableExpiryEvents(ctx context.Context) error {
	if _, err := r.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Result(); err != nil {
		return err
	}
	r.Logger.Info("REDIS", "Keyspace notifications enabled for expired events")
	return nil
}

// SubscribeHoldExpiry listens for expired reservation holds until ctx is
// done. Messages for other keys are ignored.
func (r *Redis) SubscribeHoldExpiry(ctx context.Context, handler ExpiryHandler) *redis.PubSub {
	channel := fmt.Sprintf("__keyevent@%d__:expired", r.Client.Options().DB)
	pubsub := r.Client.PSubscribe(ctx, channel)
	r.Logger.Info("REDIS", fmt.Sprintf("Subscribed to %s", channel))

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				r.Logger.Info("REDIS", "Hold expiry subscription stopped")
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.HandleExpiredKey(ctx, msg.Payload, handler)
			}
		}
	}()

	return pubsub
}

// HandleExpiredKey dispatches one expired key to handler if it is a
// reservation hold. It reports whether the key was a hold.
func (r *Redis) HandleExpiredKey(ctx context.Context, key string, handler ExpiryHandler) bool {
	if !strings.HasPrefix(key, holdKeyPrefix) {
		return false
	}
	bookingID := strings.TrimPrefix(key, holdKeyPrefix)
	if bookingID == "" {
		return false
	}
	r.Logger.Info("HOLD_EXPIRY", fmt.Sprintf("Reservation hold expired for booking: %s", bookingID))
	handler(ctx, bookingID)
	return true
}
