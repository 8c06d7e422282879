package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/storage"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/utils"
)

var (
	ErrPaymentNotFound       = errors.New("rent payment not found")
	ErrPaymentAlreadySettled = errors.New("rent payment already settled")
	ErrPaymentCancelled      = errors.New("rent payment is cancelled")
	ErrPaymentInFlight       = errors.New("rent payment already has an attempt in flight")
	ErrNoPaymentMethod       = errors.New("no payment method on file")
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
)

// Execution outcome statuses. "processing" means the debit was accepted but
// will settle asynchronously; a webhook event finishes the job.
const (
	ExecutionSucceeded  = "succeeded"
	ExecutionProcessing = "processing"
	ExecutionFailed     = "failed"
)

type ExecutionOutcome struct {
	Status        string `json:"status"`
	RentPaymentID uint   `json:"rentPaymentID"`
	IntentID      string `json:"intentID,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

// PaymentService charges rent payments through the gateway. Gateway and
// Notifications are fields so tests can swap in fakes.
type PaymentService struct {
	Gateway       PaymentGateway
	Notifications *NotificationService
}

func NewPaymentService() *PaymentService {
	return &PaymentService{
		Gateway:       NewHTTPGateway(),
		Notifications: NewNotificationService(),
	}
}

// ProcessRentPaymentNow runs one charge attempt for a rent payment. The
// payment is first claimed with a conditional status update so that two
// concurrent attempts cannot both reach the gateway; the loser gets
// ErrPaymentInFlight. Gateway outages roll the claim back without recording
// an attempt; genuine declines count against the retry budget.
func (ps *PaymentService) ProcessRentPaymentNow(ctx context.Context, rentPaymentID uint) (*ExecutionOutcome, error) {
	payment, err := loadRentPayment(rentPaymentID)
	if err != nil {
		return nil, err
	}

	if payment.Settled() {
		return nil, ErrPaymentAlreadySettled
	}
	if payment.CancelledAt != nil {
		return nil, ErrPaymentCancelled
	}

	booking := payment.Booking
	if booking == nil {
		return nil, fmt.Errorf("rent payment %d has no booking", payment.ID)
	}
	renter := booking.User
	if renter == nil {
		return nil, fmt.Errorf("booking %d has no renter", booking.ID)
	}

	methodID := payment.PaymentMethodID
	if methodID == "" {
		methodID = renter.DefaultPaymentMethodID
	}
	if methodID == "" {
		return nil, ErrNoPaymentMethod
	}

	prevStatus := payment.Status
	prevAuthorizedAt := payment.PaymentAuthorizedAt

	claim := storage.DB.Model(&models.RentPayment{}).
		Where("id = ? AND status IN ?", payment.ID, []string{models.RentPaymentScheduled, models.RentPaymentFailed}).
		Updates(map[string]interface{}{
			"status":                models.RentPaymentAuthorized,
			"payment_authorized_at": time.Now(),
			"payment_method_id":     methodID,
		})
	if claim.Error != nil {
		return nil, claim.Error
	}
	if claim.RowsAffected == 0 {
		return nil, ErrPaymentInFlight
	}

	// Only roll back a claim that is still ours: if the charge reached the
	// gateway and a settlement webhook landed in the meantime, the row has
	// already moved on and must keep that state.
	restore := func() {
		storage.DB.Model(&models.RentPayment{}).
			Where("id = ? AND status = ?", payment.ID, models.RentPaymentAuthorized).
			Updates(map[string]interface{}{
				"status":                prevStatus,
				"payment_authorized_at": prevAuthorizedAt,
			})
	}

	method, err := ps.Gateway.RetrievePaymentMethod(ctx, methodID)
	if err != nil {
		restore()
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	split := SplitFee(payment.Amount, BookingDurationMonths(booking.StartDate, booking.EndDate))

	currency := "usd"
	var transferDestination string
	var applicationFee int64
	var hostID uint
	if booking.Listing != nil {
		hostID = booking.Listing.HostID
		if booking.Listing.Currency != "" {
			currency = booking.Listing.Currency
		}
		if host := booking.Listing.Host; host != nil && host.GatewayChargesEnabled && host.GatewayAccountID != "" {
			transferDestination = host.GatewayAccountID
			applicationFee = split.PlatformFee
		}
	}

	// Same key while the attempt number holds: a transient retry replays the
	// identical request, a genuine retry gets a fresh key.
	idempotencyKey := fmt.Sprintf("rent-payment-%d-attempt-%d", payment.ID, payment.RetryCount)

	params := PaymentIntentParams{
		Amount:               payment.Amount,
		Currency:             currency,
		CustomerID:           renter.GatewayCustomerID,
		PaymentMethodID:      methodID,
		ApplicationFeeAmount: applicationFee,
		TransferDestination:  transferDestination,
		ReceiptEmail:         renter.Email,
		Metadata: map[string]string{
			"type":          PurposeMonthlyRent,
			"rentPaymentId": strconv.FormatUint(uint64(payment.ID), 10),
			"bookingId":     strconv.FormatUint(uint64(booking.ID), 10),
			"renterId":      strconv.FormatUint(uint64(renter.ID), 10),
			"hostId":        strconv.FormatUint(uint64(hostID), 10),
		},
	}

	intent, gwErr := ps.Gateway.CreatePaymentIntent(ctx, params, idempotencyKey)
	if gwErr != nil {
		var ge *GatewayError
		if errors.As(gwErr, &ge) && !IsTransientGatewayError(gwErr) {
			if err := failRentPayment(payment.ID, "", ge.Code, ge.Message, method.Type, ps.Notifications); err != nil {
				return nil, err
			}
			return &ExecutionOutcome{
				Status:        ExecutionFailed,
				RentPaymentID: payment.ID,
				FailureReason: utils.FailureReasonForCode(ge.Code, ge.Message),
			}, nil
		}
		restore()
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, gwErr)
	}

	switch intent.Status {
	case IntentSucceeded:
		if err := settleRentPayment(payment.ID, intent.ID, method.Type, ps.Notifications); err != nil {
			return nil, err
		}
		return &ExecutionOutcome{Status: ExecutionSucceeded, RentPaymentID: payment.ID, IntentID: intent.ID}, nil

	case IntentProcessing:
		if err := markRentPaymentProcessing(payment.ID, intent.ID, method.Type, ps.Notifications); err != nil {
			return nil, err
		}
		return &ExecutionOutcome{Status: ExecutionProcessing, RentPaymentID: payment.ID, IntentID: intent.ID}, nil

	default:
		code := intent.FailureCode
		if code == "" {
			code = string(intent.Status)
		}
		if err := failRentPayment(payment.ID, intent.ID, code, intent.FailureMessage, method.Type, ps.Notifications); err != nil {
			return nil, err
		}
		return &ExecutionOutcome{
			Status:        ExecutionFailed,
			RentPaymentID: payment.ID,
			IntentID:      intent.ID,
			FailureReason: utils.FailureReasonForCode(code, intent.FailureMessage),
		}, nil
	}
}
