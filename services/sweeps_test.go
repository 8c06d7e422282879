package services

import (
	"context"
	"testing"
	"time"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
)

func TestProcessDuePaymentsChargesOnlyToday(t *testing.T) {
	db := setupTestDB(t)
	f := seedBooking(t, db)

	today := dateOnly(time.Now().UTC())
	tomorrow := today.AddDate(0, 0, 1)
	db.Model(&models.RentPayment{}).Where("id = ?", f.Payments[0].ID).Update("due_date", today)
	db.Model(&models.RentPayment{}).Where("id = ?", f.Payments[1].ID).Update("due_date", tomorrow)

	gateway := &fakeGateway{intent: &PaymentIntent{ID: "pi_due", Status: IntentSucceeded}}
	sweeps := &SweepService{Payments: testPaymentService(gateway)}

	summary, err := sweeps.ProcessDuePayments(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Processed != 1 || summary.Succeeded != 1 {
		t.Errorf("expected 1 processed/succeeded, got %+v", summary)
	}

	if got := reloadPayment(t, db, f.Payments[0].ID).Status; got != models.RentPaymentSucceeded {
		t.Errorf("today's payment should settle, got %s", got)
	}
	if got := reloadPayment(t, db, f.Payments[1].ID).Status; got != models.RentPaymentScheduled {
		t.Errorf("tomorrow's payment must stay scheduled, got %s", got)
	}
}

func TestRetryFailedPaymentsHonorsBudgetAndBackoff(t *testing.T) {
	db := setupTestDB(t)
	f := seedBooking(t, db)

	today := dateOnly(time.Now().UTC())
	yesterday := today.Add(-24 * time.Hour)

	// Eligible: failed yesterday with budget left.
	db.Model(&models.RentPayment{}).Where("id = ?", f.Payments[0].ID).Updates(map[string]interface{}{
		"status": models.RentPaymentFailed, "due_date": yesterday, "retry_count": 1, "last_retry_at": yesterday,
	})
	// Out of budget.
	db.Model(&models.RentPayment{}).Where("id = ?", f.Payments[1].ID).Updates(map[string]interface{}{
		"status": models.RentPaymentFailed, "due_date": yesterday.Add(-24 * time.Hour), "retry_count": MaxRetryAttempts, "last_retry_at": yesterday,
	})
	// Already retried today.
	db.Model(&models.RentPayment{}).Where("id = ?", f.Payments[2].ID).Updates(map[string]interface{}{
		"status": models.RentPaymentFailed, "due_date": yesterday.Add(-48 * time.Hour), "retry_count": 1, "last_retry_at": time.Now(),
	})

	gateway := &fakeGateway{intent: &PaymentIntent{ID: "pi_retry_sweep", Status: IntentSucceeded}}
	sweeps := &SweepService{Payments: testPaymentService(gateway)}

	summary, err := sweeps.RetryFailedPayments(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Processed != 1 || summary.Succeeded != 1 {
		t.Errorf("expected exactly 1 retry, got %+v", summary)
	}

	if got := reloadPayment(t, db, f.Payments[0].ID).Status; got != models.RentPaymentSucceeded {
		t.Errorf("eligible payment should settle, got %s", got)
	}
	if got := reloadPayment(t, db, f.Payments[1].ID).Status; got != models.RentPaymentFailed {
		t.Errorf("out-of-budget payment must stay FAILED, got %s", got)
	}
	if got := reloadPayment(t, db, f.Payments[2].ID).Status; got != models.RentPaymentFailed {
		t.Errorf("payment retried today must wait until tomorrow, got %s", got)
	}
}

func TestExpireUnsettledBookings(t *testing.T) {
	db := setupTestDB(t)
	f := seedBooking(t, db)

	failedAt := time.Now().Add(-72 * time.Hour)
	db.Model(&models.Booking{}).Where("id = ?", f.Booking.ID).Updates(map[string]interface{}{
		"status": models.BookingPaymentFailed, "payment_status": models.BookingPaymentFailedStr, "payment_failed_at": failedAt,
	})
	db.Create(&models.ListingUnavailability{
		ListingID: f.Listing.ID, StartDate: f.Booking.StartDate, EndDate: f.Booking.EndDate, Reason: "Booking",
	})

	// A second booking still inside its grace window.
	freshMatch := models.Match{
		ListingID: f.Listing.ID, RenterID: f.Renter.ID,
		StartDate: date(2025, time.June, 1), EndDate: date(2025, time.September, 1),
		MonthlyRent: 200000, PaymentStatus: models.MatchPaymentFailed,
	}
	if err := db.Create(&freshMatch).Error; err != nil {
		t.Fatalf("create match: %v", err)
	}
	recent := time.Now().Add(-1 * time.Hour)
	freshBooking := models.Booking{
		MatchID: freshMatch.ID, UserID: f.Renter.ID, ListingID: f.Listing.ID,
		StartDate: freshMatch.StartDate, EndDate: freshMatch.EndDate, MonthlyRent: 200000,
		Status: models.BookingPaymentFailed, PaymentStatus: models.BookingPaymentFailedStr,
		PaymentFailedAt: &recent,
	}
	if err := db.Create(&freshBooking).Error; err != nil {
		t.Fatalf("create booking: %v", err)
	}

	sweeps := &SweepService{Payments: testPaymentService(&fakeGateway{})}

	cancelled, err := sweeps.ExpireUnsettledBookings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancellation, got %d", cancelled)
	}

	booking := reloadBooking(t, db, f.Booking.ID)
	if booking.Status != models.BookingCancelled {
		t.Errorf("expected cancelled booking, got %s", booking.Status)
	}
	for _, payment := range f.Payments {
		if reloadPayment(t, db, payment.ID).CancelledAt == nil {
			t.Errorf("payment %d: unpaid obligations must be voided", payment.ID)
		}
	}
	if n := countRows(t, db, &models.ListingUnavailability{}, "listing_id = ? AND start_date = ?", f.Listing.ID, f.Booking.StartDate); n != 0 {
		t.Errorf("calendar block must be released, got %d", n)
	}

	if got := reloadBooking(t, db, freshBooking.ID).Status; got != models.BookingPaymentFailed {
		t.Errorf("booking inside the grace window must survive, got %s", got)
	}

	// Idempotent: a second run finds nothing.
	cancelled, err = sweeps.ExpireUnsettledBookings(context.Background())
	if err != nil {
		t.Fatalf("second run errored: %v", err)
	}
	if cancelled != 0 {
		t.Errorf("second run must cancel nothing, got %d", cancelled)
	}
}
