package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/storage"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/utils"
	"gorm.io/gorm"
)

// EventKind is the closed set of gateway event types the engine reacts to.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventPaymentProcessing
	EventPaymentSucceeded
	EventPaymentFailed
)

// EventKindFromType maps the wire event type to an EventKind. Unknown types
// map to EventUnknown and are acknowledged without action.
func EventKindFromType(eventType string) EventKind {
	switch eventType {
	case "payment_processing":
		return EventPaymentProcessing
	case "payment_succeeded":
		return EventPaymentSucceeded
	case "payment_failed":
		return EventPaymentFailed
	default:
		return EventUnknown
	}
}

// Payment purposes carried in intent metadata. A monthly_rent intent
// correlates to a RentPayment row; a lease_payment intent to a Match.
const (
	PurposeMonthlyRent  = "monthly_rent"
	PurposeLeasePayment = "lease_payment"
)

// GatewayEvent is one decoded webhook delivery.
type GatewayEvent struct {
	Kind              EventKind
	IntentID          string
	Amount            int64
	PaymentMethodType string
	Purpose           string
	RentPaymentID     uint
	MatchID           uint
	FailureCode       string
	FailureMessage    string
}

var ErrMissingCorrelation = errors.New("event has no rent payment or match correlation")

// ReconcilerService applies gateway events to local payment state. Every
// handler is idempotent: redelivered and out-of-order events converge on the
// same terminal state without duplicate ledger or failure rows.
type ReconcilerService struct {
	Notifications *NotificationService
}

func NewReconcilerService() *ReconcilerService {
	return &ReconcilerService{Notifications: NewNotificationService()}
}

func (rs *ReconcilerService) HandleEvent(event GatewayEvent) error {
	if event.Kind == EventUnknown {
		log.Printf("⚠️ WEBHOOK: Ignoring unhandled event for intent %s", event.IntentID)
		return nil
	}

	switch {
	case event.RentPaymentID != 0:
		return rs.handleRentPaymentEvent(event)
	case event.MatchID != 0:
		return rs.handleLeaseEvent(event)
	default:
		return ErrMissingCorrelation
	}
}

func (rs *ReconcilerService) handleRentPaymentEvent(event GatewayEvent) error {
	switch event.Kind {
	case EventPaymentProcessing:
		return markRentPaymentProcessing(event.RentPaymentID, event.IntentID, event.PaymentMethodType, rs.Notifications)
	case EventPaymentSucceeded:
		return settleRentPayment(event.RentPaymentID, event.IntentID, event.PaymentMethodType, rs.Notifications)
	case EventPaymentFailed:
		return failRentPayment(event.RentPaymentID, event.IntentID, event.FailureCode, event.FailureMessage, event.PaymentMethodType, rs.Notifications)
	}
	return nil
}

// markRentPaymentProcessing moves a non-terminal payment to PROCESSING and
// records a pending ledger row for the in-flight debit. Late deliveries
// against a settled or failed payment are dropped.
func markRentPaymentProcessing(rentPaymentID uint, intentID, methodType string, notify *NotificationService) error {
	payment, err := loadRentPayment(rentPaymentID)
	if err != nil {
		return err
	}

	if payment.Status == models.RentPaymentSucceeded || payment.Status == models.RentPaymentFailed {
		return nil
	}
	if payment.Status == models.RentPaymentProcessing && payment.GatewayIntentID == intentID {
		return nil
	}

	booking := payment.Booking

	now := time.Now()
	updates := map[string]interface{}{
		"status":            models.RentPaymentProcessing,
		"gateway_intent_id": intentID,
	}
	if payment.PaymentAuthorizedAt == nil {
		updates["payment_authorized_at"] = now
	}
	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.RentPayment{}).Where("id = ?", payment.ID).Updates(updates).Error; err != nil {
			return err
		}
		if booking != nil {
			return ensureLedgerRow(tx, payment, booking, intentID, methodType, "pending")
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}
	if booking != nil && booking.PaymentStatus != models.BookingPaymentSettled {
		storage.DB.Model(&models.Booking{}).Where("id = ?", booking.ID).
			Update("payment_status", models.BookingPaymentProcessing)
	}

	if booking != nil && notify != nil {
		if err := notify.SendRentPaymentProcessing(payment, booking, bookingLocation(booking)); err != nil {
			log.Printf("Failed to send processing notification for rent payment %d: %v", payment.ID, err)
		}
	}
	return nil
}

// settleRentPayment records a successful charge: payment to SUCCEEDED, one
// ledger row, booking confirmation on first settlement. Safe to call any
// number of times per intent.
func settleRentPayment(rentPaymentID uint, intentID, methodType string, notify *NotificationService) error {
	payment, err := loadRentPayment(rentPaymentID)
	if err != nil {
		return err
	}
	booking := payment.Booking
	if booking == nil {
		return fmt.Errorf("rent payment %d has no booking", payment.ID)
	}

	alreadySettled := payment.Status == models.RentPaymentSucceeded

	var newlyConfirmed bool
	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		if !alreadySettled {
			now := time.Now()
			updates := map[string]interface{}{
				"status":              models.RentPaymentSucceeded,
				"is_paid":             true,
				"payment_captured_at": now,
				"gateway_intent_id":   intentID,
				"failure_reason":      "",
			}
			if err := tx.Model(&models.RentPayment{}).Where("id = ?", payment.ID).Updates(updates).Error; err != nil {
				return err
			}
		}

		if err := ensureLedgerRow(tx, payment, booking, intentID, methodType, "succeeded"); err != nil {
			return err
		}

		if booking.Status == models.BookingPendingPayment || booking.Status == models.BookingPaymentFailed {
			now := time.Now()
			if err := tx.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(map[string]interface{}{
				"status":             models.BookingConfirmed,
				"payment_status":     models.BookingPaymentSettled,
				"payment_settled_at": now,
				"payment_failed_at":  nil,
			}).Error; err != nil {
				return err
			}
			newlyConfirmed = true

			if err := ensureUnavailability(tx, booking); err != nil {
				return err
			}
		}

		return nil
	})
	if txErr != nil {
		return txErr
	}

	// Projection only; ledger and payment rows above are authoritative.
	storage.DB.Model(&models.Match{}).
		Where("id = ? AND payment_status <> ?", booking.MatchID, models.MatchPaymentCaptured).
		Updates(map[string]interface{}{"payment_status": models.MatchPaymentCaptured, "payment_captured_at": time.Now()})

	if alreadySettled {
		return nil
	}

	if notify != nil {
		payment.Status = models.RentPaymentSucceeded
		if err := notify.SendRentPaymentSuccess(payment, booking, bookingLocation(booking)); err != nil {
			log.Printf("Failed to send success notification for rent payment %d: %v", payment.ID, err)
		}
		if newlyConfirmed {
			if hostID, renterName := bookingParties(booking); hostID != 0 {
				if err := notify.SendBookingConfirmedToHost(booking, hostID, renterName, bookingLocation(booking)); err != nil {
					log.Printf("Failed to send booking confirmed notification for booking %d: %v", booking.ID, err)
				}
			}
		}
	}
	return nil
}

// failRentPayment records a genuine attempt failure: FAILED status, a bumped
// retry counter, an append-only failure row and a failed ledger row. Webhook
// failure events carry an intent id; a redelivery of the same
// (payment, intent, code) is a no-op. Synchronous declines have no intent and
// always count, since each one is its own attempt. Any failure arriving after
// the payment settled is dropped.
func failRentPayment(rentPaymentID uint, intentID, code, message, methodType string, notify *NotificationService) error {
	payment, err := loadRentPayment(rentPaymentID)
	if err != nil {
		return err
	}

	if payment.Status == models.RentPaymentSucceeded {
		log.Printf("⚠️ WEBHOOK: Dropping failure event for settled rent payment %d (intent %s)", payment.ID, intentID)
		return nil
	}

	if intentID != "" {
		var existing int64
		storage.DB.Model(&models.RentPaymentFailure{}).
			Where("rent_payment_id = ? AND gateway_intent_id = ? AND failure_code = ?", payment.ID, intentID, code).
			Count(&existing)
		if existing > 0 {
			return nil
		}
	}

	reason := utils.FailureReasonForCode(code, message)
	now := time.Now()

	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		failure := models.RentPaymentFailure{
			RentPaymentID:   payment.ID,
			FailureCode:     code,
			FailureMessage:  message,
			FailureType:     utils.FailureTypeForMethod(methodType),
			GatewayIntentID: intentID,
			AttemptNumber:   payment.RetryCount + 1,
		}
		if err := tx.Create(&failure).Error; err != nil {
			return err
		}

		if payment.Booking != nil {
			if err := ensureLedgerRow(tx, payment, payment.Booking, intentID, methodType, "failed"); err != nil {
				return err
			}
		}

		return tx.Model(&models.RentPayment{}).Where("id = ?", payment.ID).Updates(map[string]interface{}{
			"status":            models.RentPaymentFailed,
			"is_paid":           false,
			"retry_count":       payment.RetryCount + 1,
			"last_retry_at":     now,
			"failure_reason":    reason,
			"gateway_intent_id": intentID,
		}).Error
	})
	if txErr != nil {
		return txErr
	}

	booking := payment.Booking
	deadline := now.Add(GracePeriod)
	if booking != nil && booking.Status == models.BookingPendingPayment {
		failedAt := now
		if booking.PaymentFailedAt != nil {
			failedAt = *booking.PaymentFailedAt
			deadline = failedAt.Add(GracePeriod)
		}
		storage.DB.Model(&models.Booking{}).Where("id = ?", booking.ID).Updates(map[string]interface{}{
			"status":            models.BookingPaymentFailed,
			"payment_status":    models.BookingPaymentFailedStr,
			"payment_failed_at": failedAt,
		})
	} else if booking != nil && booking.PaymentFailedAt != nil {
		deadline = booking.PaymentFailedAt.Add(GracePeriod)
	}

	if booking != nil && notify != nil {
		payment.Status = models.RentPaymentFailed
		payment.FailureReason = reason
		if err := notify.SendRentPaymentFailureToRenter(payment, booking, reason, deadline); err != nil {
			log.Printf("Failed to send failure notification for rent payment %d: %v", payment.ID, err)
		}
		if hostID, renterName := bookingParties(booking); hostID != 0 {
			if err := notify.SendRentPaymentFailureToHost(payment, booking, hostID, renterName, bookingLocation(booking)); err != nil {
				log.Printf("Failed to send host failure notification for rent payment %d: %v", payment.ID, err)
			}
		}
	}
	return nil
}

func (rs *ReconcilerService) handleLeaseEvent(event GatewayEvent) error {
	var match models.Match
	err := storage.DB.Preload("Listing").Preload("Listing.Host").Preload("Renter").Preload("Booking").
		First(&match, event.MatchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("match %d not found for intent %s", event.MatchID, event.IntentID)
	}
	if err != nil {
		return err
	}

	switch event.Kind {
	case EventPaymentProcessing:
		return rs.leaseProcessing(&match, event)
	case EventPaymentSucceeded:
		return rs.leaseSucceeded(&match, event)
	case EventPaymentFailed:
		return rs.leaseFailed(&match, event)
	}
	return nil
}

func (rs *ReconcilerService) leaseProcessing(match *models.Match, event GatewayEvent) error {
	if match.PaymentStatus == models.MatchPaymentCaptured {
		return nil
	}

	if err := storage.DB.Model(&models.Match{}).Where("id = ?", match.ID).Updates(map[string]interface{}{
		"payment_status":    models.MatchPaymentProcessing,
		"gateway_intent_id": event.IntentID,
	}).Error; err != nil {
		return err
	}

	if match.Booking != nil && match.Booking.PaymentStatus != models.BookingPaymentSettled {
		storage.DB.Model(&models.Booking{}).Where("id = ?", match.Booking.ID).
			Update("payment_status", models.BookingPaymentProcessing)
	}
	return nil
}

// leaseSucceeded settles the lease's first payment. If no booking exists yet
// this is where it is created, together with its full rent schedule; the
// unique index on match_id collapses concurrent deliveries to one booking.
func (rs *ReconcilerService) leaseSucceeded(match *models.Match, event GatewayEvent) error {
	now := time.Now()

	if match.PaymentStatus != models.MatchPaymentCaptured {
		if err := storage.DB.Model(&models.Match{}).Where("id = ?", match.ID).Updates(map[string]interface{}{
			"payment_status":          models.MatchPaymentCaptured,
			"payment_captured_at":     now,
			"gateway_intent_id":       event.IntentID,
			"payment_failure_code":    "",
			"payment_failure_message": "",
		}).Error; err != nil {
			return err
		}
	}

	if match.Booking != nil {
		// Existing booking: settle its first unpaid obligation through the
		// same path the rent branch uses. A redelivery of an intent that
		// already settled an obligation is a no-op.
		settled, err := intentAlreadyApplied(match.Booking.ID, event.IntentID)
		if err != nil || settled {
			return err
		}
		first, err := firstUnsettledPayment(match.Booking.ID)
		if err != nil {
			return err
		}
		if first == nil {
			return nil
		}
		return settleRentPayment(first.ID, event.IntentID, event.PaymentMethodType, rs.Notifications)
	}

	schedule, err := GenerateRentPayments(match.StartDate, match.EndDate, match.MonthlyRent)
	if err != nil {
		return fmt.Errorf("cannot build schedule for match %d: %w", match.ID, err)
	}

	booking := models.Booking{
		MatchID:          match.ID,
		UserID:           match.RenterID,
		ListingID:        match.ListingID,
		StartDate:        dateOnly(match.StartDate),
		EndDate:          dateOnly(match.EndDate),
		MonthlyRent:      match.MonthlyRent,
		TotalPrice:       ScheduleTotal(schedule),
		Status:           models.BookingConfirmed,
		PaymentStatus:    models.BookingPaymentSettled,
		PaymentSettledAt: &now,
	}

	created := true
	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&booking).Error; err != nil {
			if IsDuplicateBooking(err) {
				created = false
				return nil
			}
			return err
		}

		// The settling intent covers the first obligation.
		schedule[0].Status = models.RentPaymentSucceeded
		schedule[0].IsPaid = true
		schedule[0].GatewayIntentID = event.IntentID
		schedule[0].PaymentCapturedAt = &now
		for i := range schedule {
			schedule[i].BookingID = booking.ID
		}
		if err := tx.Create(&schedule).Error; err != nil {
			return err
		}

		if err := ensureLedgerRow(tx, &schedule[0], &booking, event.IntentID, event.PaymentMethodType, "succeeded"); err != nil {
			return err
		}

		return ensureUnavailability(tx, &booking)
	})
	if txErr != nil {
		return txErr
	}

	if !created {
		// Another delivery created the booking; converge through it.
		var existing models.Booking
		if err := storage.DB.Where("match_id = ?", match.ID).First(&existing).Error; err != nil {
			return err
		}
		settled, err := intentAlreadyApplied(existing.ID, event.IntentID)
		if err != nil || settled {
			return err
		}
		first, err := firstUnsettledPayment(existing.ID)
		if err != nil || first == nil {
			return err
		}
		return settleRentPayment(first.ID, event.IntentID, event.PaymentMethodType, rs.Notifications)
	}

	if rs.Notifications != nil {
		booking.User = match.Renter
		booking.Listing = match.Listing
		location := bookingLocation(&booking)
		if hostID, renterName := bookingParties(&booking); hostID != 0 {
			if err := rs.Notifications.SendBookingConfirmedToHost(&booking, hostID, renterName, location); err != nil {
				log.Printf("Failed to send booking confirmed notification for booking %d: %v", booking.ID, err)
			}
		}
		if err := rs.Notifications.SendRentPaymentSuccess(&schedule[0], &booking, location); err != nil {
			log.Printf("Failed to send success notification for rent payment %d: %v", schedule[0].ID, err)
		}
	}
	return nil
}

// leaseFailed records a failed lease payment. No booking is ever created
// from a failure; an existing one enters the grace window.
func (rs *ReconcilerService) leaseFailed(match *models.Match, event GatewayEvent) error {
	if match.PaymentStatus == models.MatchPaymentCaptured {
		log.Printf("⚠️ WEBHOOK: Dropping failure event for captured match %d (intent %s)", match.ID, event.IntentID)
		return nil
	}
	if match.PaymentStatus == models.MatchPaymentFailed &&
		match.GatewayIntentID == event.IntentID &&
		match.PaymentFailureCode == event.FailureCode {
		return nil
	}

	if err := storage.DB.Model(&models.Match{}).Where("id = ?", match.ID).Updates(map[string]interface{}{
		"payment_status":          models.MatchPaymentFailed,
		"gateway_intent_id":       event.IntentID,
		"payment_failure_code":    event.FailureCode,
		"payment_failure_message": event.FailureMessage,
	}).Error; err != nil {
		return err
	}

	now := time.Now()
	if match.Booking != nil && match.Booking.Status == models.BookingPendingPayment {
		failedAt := now
		if match.Booking.PaymentFailedAt != nil {
			failedAt = *match.Booking.PaymentFailedAt
		}
		storage.DB.Model(&models.Booking{}).Where("id = ?", match.Booking.ID).Updates(map[string]interface{}{
			"status":            models.BookingPaymentFailed,
			"payment_status":    models.BookingPaymentFailedStr,
			"payment_failed_at": failedAt,
		})
	}

	if rs.Notifications != nil {
		reason := utils.FailureReasonForCode(event.FailureCode, event.FailureMessage)
		location := ""
		if match.Listing != nil {
			location = match.Listing.LocationString()
		}
		title := "⚠️ Lease Payment Failed"
		body := fmt.Sprintf("%s Please update your payment method to secure your lease.", reason)
		data := NotificationData{
			Type:   "lease_payment_failed",
			ID:     fmt.Sprintf("%d", match.ID),
			Screen: "PaymentMethods",
			Action: "update_payment_method",
		}
		if err := rs.Notifications.SendNotificationToUser(match.RenterID, title, body, data); err != nil {
			log.Printf("Failed to send lease failure notification for match %d: %v", match.ID, err)
		}
		if match.Listing != nil && match.Listing.Host != nil {
			renterName := ""
			if match.Renter != nil {
				renterName = match.Renter.FullName()
			}
			hostBody := fmt.Sprintf("%s's lease payment for %s failed. They have been asked to update their payment method.", renterName, location)
			hostData := NotificationData{
				Type:   "lease_payment_failed",
				ID:     fmt.Sprintf("%d", match.ID),
				Screen: "HostBookings",
			}
			if err := rs.Notifications.SendNotificationToUser(match.Listing.HostID, "⚠️ Tenant Payment Failed", hostBody, hostData); err != nil {
				log.Printf("Failed to send lease failure notification to host for match %d: %v", match.ID, err)
			}
		}
	}
	return nil
}

func loadRentPayment(id uint) (*models.RentPayment, error) {
	var payment models.RentPayment
	err := storage.DB.
		Preload("Booking").
		Preload("Booking.User").
		Preload("Booking.Listing").
		Preload("Booking.Listing.Host").
		First(&payment, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func intentAlreadyApplied(bookingID uint, intentID string) (bool, error) {
	if intentID == "" {
		return false, nil
	}
	var count int64
	err := storage.DB.Model(&models.RentPayment{}).
		Where("booking_id = ? AND gateway_intent_id = ? AND is_paid = ?", bookingID, intentID, true).
		Count(&count).Error
	return count > 0, err
}

func firstUnsettledPayment(bookingID uint) (*models.RentPayment, error) {
	var payment models.RentPayment
	err := storage.DB.Where("booking_id = ? AND is_paid = ? AND cancelled_at IS NULL", bookingID, false).
		Order("due_date asc").First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ensureLedgerRow appends one PaymentTransaction per gateway attempt and
// state. The dedup key is (gateway intent, status) so a redelivery finds the
// existing row; a row without an intent comes from a synchronous decline,
// which is never redelivered, so it is always appended.
func ensureLedgerRow(tx *gorm.DB, payment *models.RentPayment, booking *models.Booking, intentID, methodType, status string) error {
	if intentID != "" {
		var count int64
		err := tx.Model(&models.PaymentTransaction{}).
			Where("gateway_intent_id = ? AND status = ?", intentID, status).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
	}

	split := SplitFee(payment.Amount, BookingDurationMonths(booking.StartDate, booking.EndDate))
	now := time.Now()
	rentPaymentID := payment.ID
	record := models.PaymentTransaction{
		TransactionNumber: fmt.Sprintf("TXN-%d-%d", payment.ID, now.UnixNano()),
		GatewayIntentID:   intentID,
		Amount:            payment.Amount,
		Currency:          "usd",
		Status:            status,
		PaymentMethod:     methodType,
		PlatformFeeAmount: split.PlatformFee,
		NetAmount:         split.NetPayout,
		ProcessedAt:       &now,
		UserID:            booking.UserID,
		BookingID:         booking.ID,
		RentPaymentID:     &rentPaymentID,
	}
	return tx.Create(&record).Error
}

// ensureUnavailability blocks the booking's span on the listing calendar,
// once.
func ensureUnavailability(tx *gorm.DB, booking *models.Booking) error {
	var count int64
	if err := tx.Model(&models.ListingUnavailability{}).
		Where("listing_id = ? AND start_date = ? AND end_date = ?", booking.ListingID, booking.StartDate, booking.EndDate).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&models.ListingUnavailability{
		ListingID: booking.ListingID,
		StartDate: booking.StartDate,
		EndDate:   booking.EndDate,
		Reason:    "Booking",
	}).Error
}

func bookingLocation(booking *models.Booking) string {
	if booking.Listing != nil {
		return booking.Listing.LocationString()
	}
	return "your rental"
}

func bookingParties(booking *models.Booking) (hostID uint, renterName string) {
	if booking.Listing != nil {
		hostID = booking.Listing.HostID
	}
	if booking.User != nil {
		renterName = booking.User.FullName()
	}
	return hostID, renterName
}

// IsDuplicateBooking reports whether err is the unique index on match_id
// rejecting a second booking for the same match.
func IsDuplicateBooking(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}
