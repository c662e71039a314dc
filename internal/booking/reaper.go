package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/metrics"
	"ms-booking/internal/models"

	"github.com/go-co-op/gocron/v2"
)

const sweepBatchSize = 100

// ExpireReservation cancels a pending booking whose hold ran out. Bookings
// that are no longer pending are left alone.
func (s *BookingService) ExpireReservation(ctx context.Context, bookingID string) error {
	changed, err := s.DB.TransitionBooking(ctx, bookingID, []models.BookingStatus{models.BookingPending}, models.BookingCancelled, string(models.PaymentExpired))
	if err != nil {
		return storageError("expire booking "+bookingID, err)
	}
	if !changed {
		return nil
	}

	booking, err := s.DB.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return storageError("load expired booking "+bookingID, err)
	}
	if payment, err := s.DB.GetPaymentByReference(ctx, booking.PaymentID); err == nil {
		s.expireSession(ctx, payment.ProviderSessionID)
		s.updatePayment(ctx, payment, models.PaymentExpired, "")
	}
	metrics.TrackExpired(1)
	s.afterCancel(ctx, booking, "expiry")
	return nil
}

// ExpireStaleReservations cancels every pending booking whose deadline is
// before now. It backs up the Redis expiry notifications, which are not
// delivered while the service is down.
func (s *BookingService) ExpireStaleReservations(ctx context.Context) (int, error) {
	expired := 0
	for {
		stale, err := s.DB.ListExpiredPending(ctx, s.now(), sweepBatchSize)
		if err != nil {
			return expired, storageError("list expired reservations", err)
		}
		for _, b := range stale {
			if err := s.ExpireReservation(ctx, b.ID); err != nil {
				return expired, err
			}
			expired++
		}
		if len(stale) < sweepBatchSize {
			return expired, nil
		}
	}
}

// Reaper runs ExpireStaleReservations on a fixed interval.
type Reaper struct {
	scheduler gocron.Scheduler
	service   *BookingService
	logger    *logger.Logger
}

func NewReaper(service *BookingService, interval time.Duration, log *logger.Logger) (*Reaper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	r := &Reaper{scheduler: sched, service: service, logger: log}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(r.sweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := r.service.ExpireStaleReservations(ctx)
	if err != nil {
		r.logger.Error("REAPER", fmt.Sprintf("Reservation sweep failed after %d expiries: %v", n, err))
		return
	}
	if n > 0 {
		r.logger.Info("REAPER", fmt.Sprintf("Expired %d stale reservations", n))
	}
}

func (r *Reaper) Start() {
	r.scheduler.Start()
	r.logger.Info("REAPER", "Reservation sweeper started")
}

func (r *Reaper) Stop() error {
	return r.scheduler.Shutdown()
}
