package services

import (
	"errors"
	"testing"
	"time"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
)

func testReconciler() *ReconcilerService {
	return &ReconcilerService{Notifications: NewNotificationService()}
}

func TestSucceededEventSettlesAndDeduplicates(t *testing.T) {
	db := setupTestDB(t)
	f := seedBooking(t, db)
	payment := f.Payments[0]
	rs := testReconciler()

	event := GatewayEvent{
		Kind:              EventPaymentSucceeded,
		IntentID:          "pi_evt_1",
		Amount:            payment.Amount,
		PaymentMethodType: PaymentMethodBank,
		Purpose:           PurposeMonthlyRent,
		RentPaymentID:     payment.ID,
	}

	if err := rs.HandleEvent(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded := reloadPayment(t, db, payment.ID)
	if reloaded.Status != models.RentPaymentSucceeded || !reloaded.IsPaid {
		t.Fatalf("expected settled payment, got %s", reloaded.Status)
	}
	booking := reloadBooking(t, db, f.Booking.ID)
	if booking.Status != models.BookingConfirmed {
		t.Errorf("expected confirmed booking, got %s", booking.Status)
	}

	// Redelivery: no extra ledger rows, no state changes.
	if err := rs.HandleEvent(event); err != nil {
		t.Fatalf("redelivery errored: %v", err)
	}
	if n := countRows(t, db, &models.PaymentTransaction{}, "gateway_intent_id = ?", "pi_evt_1"); n != 1 {
		t.Errorf("expected exactly 1 ledger row after redelivery, got %d", n)
	}
	if n := countRows(t, db, &models.ListingUnavailability{}, "listing_id = ?", f.Listing.ID); n != 1 {
		t.Errorf("expected exactly 1 unavailability block, got %d", n)
	}
}

func TestFailedEventRecordsOnceAndNeverAfterSuccess(t *testing.T) {
	db := setupTestDB(t)
	f := seedBooking(t, db)
	payment := f.Payments[0]
	rs := testReconciler()

	failure := GatewayEvent{
		Kind:              EventPaymentFailed,
		IntentID:          "pi_evt_2",
		PaymentMethodType: PaymentMethodBank,
		Purpose:           PurposeMonthlyRent,
		RentPaymentID:     payment.ID,
		FailureCode:       "account_closed",
		FailureMessage:    "the account is closed",
	}

	if err := rs.HandleEvent(failure); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reloaded := reloadPayment(t, db, payment.ID)
	if reloaded.Status != models.RentPaymentFailed || reloaded.RetryCount != 1 {
		t.Fatalf("expected FAILED with retryCount 1, got %s/%d", reloaded.Status, reloaded.RetryCount)
	}

	// Duplicate delivery of the same failure.
	if err := rs.HandleEvent(failure); err != nil {
		t.Fatalf("redelivery errored: %v", err)
	}
	reloaded = reloadPayment(t, db, payment.ID)
	if reloaded.RetryCount != 1 {
		t.Errorf("redelivered failure must not count again, retryCount=%d", reloaded.RetryCount)
	}
	if n := countRows(t, db, &models.RentPaymentFailure{}, "rent_payment_id = ?", payment.ID); n != 1 {
		t.Errorf("expected 1 failure row, got %d", n)
	}

	// A later success wins, and a straggling failure can never undo it.
	success := GatewayEvent{
		Kind: EventPaymentSucceeded, IntentID: "pi_evt_3",
		PaymentMethodType: PaymentMethodBank, Purpose: PurposeMonthlyRent, RentPaymentID: payment.ID,
	}
	if err := rs.HandleEvent(success); err != nil {
		t.Fatalf("success event errored: %v", err)
	}
	lateFailure := failure
	lateFailure.IntentID = "pi_evt_4"
	if err := rs.HandleEvent(lateFailure); err != nil {
		t.Fatalf("late failure errored: %v", err)
	}
	reloaded = reloadPayment(t, db, payment.ID)
	if reloaded.Status != models.RentPaymentSucceeded {
		t.Errorf("SUCCEEDED is terminal, got %s", reloaded.Status)
	}
}

func TestProcessingEventIsNonTerminal(t *testing.T) {
	db := setupTestDB(t)
	f := seedBooking(t, db)
	payment := f.Payments[0]
	rs := testReconciler()

	event := GatewayEvent{
		Kind: EventPaymentProcessing, IntentID: "pi_evt_5",
		PaymentMethodType: PaymentMethodBank, Purpose: PurposeMonthlyRent, RentPaymentID: payment.ID,
	}
	if err := rs.HandleEvent(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded := reloadPayment(t, db, payment.ID)
	if reloaded.Status != models.RentPaymentProcessing {
		t.Errorf("expected PROCESSING, got %s", reloaded.Status)
	}
	booking := reloadBooking(t, db, f.Booking.ID)
	if booking.Status != models.BookingPendingPayment {
		t.Errorf("processing must not confirm the booking, got %s", booking.Status)
	}

	// Late processing event after settlement changes nothing.
	settle := GatewayEvent{Kind: EventPaymentSucceeded, IntentID: "pi_evt_5", PaymentMethodType: PaymentMethodBank, Purpose: PurposeMonthlyRent, RentPaymentID: payment.ID}
	if err := rs.HandleEvent(settle); err != nil {
		t.Fatalf("settle errored: %v", err)
	}
	if err := rs.HandleEvent(event); err != nil {
		t.Fatalf("late processing errored: %v", err)
	}
	if got := reloadPayment(t, db, payment.ID).Status; got != models.RentPaymentSucceeded {
		t.Errorf("late processing must not regress a settled payment, got %s", got)
	}
}

func TestLeaseSucceededCreatesBookingExactlyOnce(t *testing.T) {
	db := setupTestDB(t)
	f := seedBooking(t, db)
	rs := testReconciler()

	// A fresh match with no booking yet.
	match := models.Match{
		ListingID: f.Listing.ID, RenterID: f.Renter.ID,
		StartDate: date(2025, time.May, 1), EndDate: date(2025, time.August, 1),
		MonthlyRent: 200000, PaymentStatus: models.MatchPaymentPending,
	}
	if err := db.Create(&match).Error; err != nil {
		t.Fatalf("create match: %v", err)
	}

	event := GatewayEvent{
		Kind: EventPaymentSucceeded, IntentID: "pi_lease_1", Amount: 200000,
		PaymentMethodType: PaymentMethodCard, Purpose: PurposeLeasePayment, MatchID: match.ID,
	}
	if err := rs.HandleEvent(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var booking models.Booking
	if err := db.Where("match_id = ?", match.ID).First(&booking).Error; err != nil {
		t.Fatalf("expected booking to be created: %v", err)
	}
	if booking.Status != models.BookingConfirmed {
		t.Errorf("expected confirmed booking, got %s", booking.Status)
	}

	var payments []models.RentPayment
	if err := db.Where("booking_id = ?", booking.ID).Order("due_date asc").Find(&payments).Error; err != nil {
		t.Fatalf("load schedule: %v", err)
	}
	if len(payments) != 3 {
		t.Fatalf("expected 3 scheduled months, got %d", len(payments))
	}
	if payments[0].Status != models.RentPaymentSucceeded || payments[0].GatewayIntentID != "pi_lease_1" {
		t.Errorf("first obligation must be settled by the lease intent, got %s", payments[0].Status)
	}
	if payments[1].Status != models.RentPaymentScheduled {
		t.Errorf("later obligations stay scheduled, got %s", payments[1].Status)
	}

	// Redelivery converges without a second booking, ledger row or extra
	// settled month.
	if err := rs.HandleEvent(event); err != nil {
		t.Fatalf("redelivery errored: %v", err)
	}
	if n := countRows(t, db, &models.Booking{}, "match_id = ?", match.ID); n != 1 {
		t.Errorf("expected exactly 1 booking, got %d", n)
	}
	if n := countRows(t, db, &models.PaymentTransaction{}, "gateway_intent_id = ?", "pi_lease_1"); n != 1 {
		t.Errorf("expected exactly 1 ledger row, got %d", n)
	}
	if got := reloadPayment(t, db, payments[1].ID).Status; got != models.RentPaymentScheduled {
		t.Errorf("redelivery must not settle the next month, got %s", got)
	}

	reloadedMatch := models.Match{}
	db.First(&reloadedMatch, match.ID)
	if reloadedMatch.PaymentStatus != models.MatchPaymentCaptured {
		t.Errorf("expected captured match, got %s", reloadedMatch.PaymentStatus)
	}
}

func TestLeaseSucceededLostCreateRaceConverges(t *testing.T) {
	db := setupTestDB(t)
	f := seedBooking(t, db)
	rs := testReconciler()

	// Two deliveries race: this one loaded the match before the other one
	// created the booking, so its insert hits the unique index and it must
	// converge through the existing booking instead.
	match := f.Match
	match.Booking = nil

	event := GatewayEvent{
		Kind: EventPaymentSucceeded, IntentID: "pi_race_1", Amount: 200000,
		PaymentMethodType: PaymentMethodCard, Purpose: PurposeLeasePayment, MatchID: match.ID,
	}
	if err := rs.leaseSucceeded(&match, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := countRows(t, db, &models.Booking{}, "match_id = ?", match.ID); n != 1 {
		t.Fatalf("expected exactly 1 booking, got %d", n)
	}
	first := reloadPayment(t, db, f.Payments[0].ID)
	if first.Status != models.RentPaymentSucceeded || first.GatewayIntentID != "pi_race_1" {
		t.Errorf("first obligation must settle through the existing booking, got %s/%s", first.Status, first.GatewayIntentID)
	}
	if got := reloadPayment(t, db, f.Payments[1].ID).Status; got != models.RentPaymentScheduled {
		t.Errorf("later obligations stay scheduled, got %s", got)
	}
	if n := countRows(t, db, &models.PaymentTransaction{}, "gateway_intent_id = ?", "pi_race_1"); n != 1 {
		t.Errorf("expected exactly 1 ledger row, got %d", n)
	}
	if booking := reloadBooking(t, db, f.Booking.ID); booking.Status != models.BookingConfirmed {
		t.Errorf("expected confirmed booking, got %s", booking.Status)
	}

	// The same delivery retried after the race changes nothing further.
	if err := rs.leaseSucceeded(&match, event); err != nil {
		t.Fatalf("retry errored: %v", err)
	}
	if n := countRows(t, db, &models.PaymentTransaction{}, "gateway_intent_id = ?", "pi_race_1"); n != 1 {
		t.Errorf("retry must not add ledger rows, got %d", n)
	}
	if got := reloadPayment(t, db, f.Payments[1].ID).Status; got != models.RentPaymentScheduled {
		t.Errorf("retry must not settle the next month, got %s", got)
	}
}

func TestLeaseFailedCreatesNoBooking(t *testing.T) {
	db := setupTestDB(t)
	f := seedBooking(t, db)
	rs := testReconciler()

	match := models.Match{
		ListingID: f.Listing.ID, RenterID: f.Renter.ID,
		StartDate: date(2025, time.June, 1), EndDate: date(2025, time.September, 1),
		MonthlyRent: 200000, PaymentStatus: models.MatchPaymentPending,
	}
	if err := db.Create(&match).Error; err != nil {
		t.Fatalf("create match: %v", err)
	}

	event := GatewayEvent{
		Kind: EventPaymentFailed, IntentID: "pi_lease_2",
		PaymentMethodType: PaymentMethodCard, Purpose: PurposeLeasePayment, MatchID: match.ID,
		FailureCode: "card_declined", FailureMessage: "declined",
	}
	if err := rs.HandleEvent(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := countRows(t, db, &models.Booking{}, "match_id = ?", match.ID); n != 0 {
		t.Errorf("a failed payment must never create a booking, got %d", n)
	}

	var reloaded models.Match
	db.First(&reloaded, match.ID)
	if reloaded.PaymentStatus != models.MatchPaymentFailed || reloaded.PaymentFailureCode != "card_declined" {
		t.Errorf("expected failed match with code, got %s/%s", reloaded.PaymentStatus, reloaded.PaymentFailureCode)
	}
}

func TestEventDispatchEdges(t *testing.T) {
	db := setupTestDB(t)
	f := seedBooking(t, db)
	rs := testReconciler()

	// No correlation at all.
	err := rs.HandleEvent(GatewayEvent{Kind: EventPaymentSucceeded, IntentID: "pi_orphan"})
	if !errors.Is(err, ErrMissingCorrelation) {
		t.Errorf("expected ErrMissingCorrelation, got %v", err)
	}

	// Unknown event kinds are acknowledged and ignored.
	if err := rs.HandleEvent(GatewayEvent{Kind: EventUnknown, IntentID: "pi_whatever", RentPaymentID: f.Payments[0].ID}); err != nil {
		t.Errorf("unknown events must be ignored, got %v", err)
	}
	if got := reloadPayment(t, db, f.Payments[0].ID).Status; got != models.RentPaymentScheduled {
		t.Errorf("unknown event must not change state, got %s", got)
	}
}

func TestEventKindFromType(t *testing.T) {
	cases := map[string]EventKind{
		"payment_processing": EventPaymentProcessing,
		"payment_succeeded":  EventPaymentSucceeded,
		"payment_failed":     EventPaymentFailed,
		"account.updated":    EventUnknown,
		"":                   EventUnknown,
	}
	for eventType, want := range cases {
		if got := EventKindFromType(eventType); got != want {
			t.Errorf("%q: expected %v, got %v", eventType, want, got)
		}
	}
}
