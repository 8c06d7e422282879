package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/storage"
	"gorm.io/gorm"
)

const (
	// MaxRetryAttempts caps genuine gateway attempts per rent payment.
	MaxRetryAttempts = 3
	// GracePeriod is how long a booking survives after its first payment
	// failure before the expiry sweep cancels it.
	GracePeriod = 48 * time.Hour
)

// SweepSummary reports what one scheduler run did.
type SweepSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// SweepService runs the scheduler-triggered batch jobs. Each job is safe to
// re-run: work is selected by state, so a second run in the same window
// finds nothing left to do.
type SweepService struct {
	Payments *PaymentService
}

func NewSweepService() *SweepService {
	return &SweepService{Payments: NewPaymentService()}
}

// ProcessDuePayments charges every scheduled payment due today (UTC).
func (ss *SweepService) ProcessDuePayments(ctx context.Context) (*SweepSummary, error) {
	today := dateOnly(time.Now().UTC())
	tomorrow := today.AddDate(0, 0, 1)

	var due []models.RentPayment
	err := storage.DB.
		Where("due_date >= ? AND due_date < ?", today, tomorrow).
		Where("status = ? AND is_paid = ? AND cancelled_at IS NULL", models.RentPaymentScheduled, false).
		Order("due_date asc, id asc").
		Find(&due).Error
	if err != nil {
		return nil, err
	}

	log.Printf("💰 SWEEP: Processing %d rent payments due today", len(due))
	return ss.runBatch(ctx, due), nil
}

// RetryFailedPayments re-attempts overdue failed payments, at most once per
// day and never past the retry budget.
func (ss *SweepService) RetryFailedPayments(ctx context.Context) (*SweepSummary, error) {
	today := dateOnly(time.Now().UTC())

	var failed []models.RentPayment
	err := storage.DB.
		Where("status = ? AND is_paid = ? AND cancelled_at IS NULL", models.RentPaymentFailed, false).
		Where("due_date < ?", today.AddDate(0, 0, 1)).
		Where("retry_count < ?", MaxRetryAttempts).
		Where("last_retry_at IS NULL OR last_retry_at < ?", today).
		Order("due_date asc, id asc").
		Find(&failed).Error
	if err != nil {
		return nil, err
	}

	log.Printf("🔄 SWEEP: Retrying %d failed rent payments", len(failed))
	return ss.runBatch(ctx, failed), nil
}

func (ss *SweepService) runBatch(ctx context.Context, payments []models.RentPayment) *SweepSummary {
	summary := &SweepSummary{}
	for _, payment := range payments {
		outcome, err := ss.Payments.ProcessRentPaymentNow(ctx, payment.ID)
		if err != nil {
			if errors.Is(err, ErrPaymentInFlight) ||
				errors.Is(err, ErrPaymentAlreadySettled) ||
				errors.Is(err, ErrPaymentCancelled) ||
				errors.Is(err, ErrNoPaymentMethod) {
				summary.Skipped++
				continue
			}
			// Gateway outage or DB error: leave the payment for the next run.
			log.Printf("❌ SWEEP: rent payment %d attempt errored: %v", payment.ID, err)
			summary.Skipped++
			continue
		}

		summary.Processed++
		switch outcome.Status {
		case ExecutionSucceeded:
			summary.Succeeded++
		case ExecutionProcessing:
			summary.Pending++
		case ExecutionFailed:
			summary.Failed++
		}
	}
	return summary
}

// ExpireUnsettledBookings cancels bookings whose grace window lapsed without
// a settled payment, voids their remaining obligations and releases the
// listing calendar.
func (ss *SweepService) ExpireUnsettledBookings(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-GracePeriod)

	var stale []models.Booking
	err := storage.DB.Preload("Listing").Preload("User").
		Where("status = ? AND payment_failed_at IS NOT NULL AND payment_failed_at <= ?", models.BookingPaymentFailed, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for i := range stale {
		booking := &stale[i]

		raced := false
		txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
			now := time.Now()

			res := tx.Model(&models.Booking{}).
				Where("id = ? AND status = ?", booking.ID, models.BookingPaymentFailed).
				Updates(map[string]interface{}{
					"status":         models.BookingCancelled,
					"payment_status": models.BookingPaymentFailedStr,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// A settlement landed between select and cancel.
				raced = true
				return nil
			}

			if err := tx.Model(&models.RentPayment{}).
				Where("booking_id = ? AND is_paid = ? AND cancelled_at IS NULL", booking.ID, false).
				Update("cancelled_at", now).Error; err != nil {
				return err
			}

			return tx.Where("listing_id = ? AND start_date = ? AND end_date = ?",
				booking.ListingID, booking.StartDate, booking.EndDate).
				Delete(&models.ListingUnavailability{}).Error
		})
		if txErr != nil {
			log.Printf("❌ SWEEP: failed to expire booking %d: %v", booking.ID, txErr)
			continue
		}
		if raced {
			continue
		}
		cancelled++

		notify := ss.Payments.Notifications
		if notify != nil {
			location := bookingLocation(booking)
			if err := notify.SendBookingCancelled(booking, booking.UserID, location); err != nil {
				log.Printf("Failed to send cancellation notification for booking %d: %v", booking.ID, err)
			}
			if booking.Listing != nil {
				if err := notify.SendBookingCancelled(booking, booking.Listing.HostID, location); err != nil {
					log.Printf("Failed to send host cancellation notification for booking %d: %v", booking.ID, err)
				}
			}
		}
	}

	log.Printf("🧹 SWEEP: Cancelled %d expired bookings", cancelled)
	return cancelled, nil
}
