package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := storage.MigrateModels(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	storage.DB = db
	return db
}

type fixture struct {
	Renter  models.User
	Host    models.User
	Listing models.Listing
	Match   models.Match
	Booking models.Booking
	// Payments ordered by due date.
	Payments []models.RentPayment
}

// seedBooking creates a renter, host, listing, match and a pending booking
// with its full schedule for a Jan 15 - Apr 1 2025 lease at $2,000/month.
func seedBooking(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()

	f := &fixture{}

	f.Host = models.User{
		FirstName: "Harriet", LastName: "Host", Email: "host@example.com",
		GatewayAccountID: "acct_host_1", GatewayChargesEnabled: true,
	}
	if err := db.Create(&f.Host).Error; err != nil {
		t.Fatalf("create host: %v", err)
	}

	f.Renter = models.User{
		FirstName: "Rita", LastName: "Renter", Email: "renter@example.com",
		GatewayCustomerID: "cus_renter_1", DefaultPaymentMethodID: "pm_default",
	}
	if err := db.Create(&f.Renter).Error; err != nil {
		t.Fatalf("create renter: %v", err)
	}

	f.Listing = models.Listing{
		HostID: f.Host.ID, Title: "Sunny Loft", City: "Austin",
		MonthlyRent: 200000, Currency: "usd",
	}
	if err := db.Create(&f.Listing).Error; err != nil {
		t.Fatalf("create listing: %v", err)
	}

	start := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	f.Match = models.Match{
		ListingID: f.Listing.ID, RenterID: f.Renter.ID,
		StartDate: start, EndDate: end, MonthlyRent: 200000,
		PaymentMethodID: "pm_default", PaymentStatus: models.MatchPaymentPending,
	}
	if err := db.Create(&f.Match).Error; err != nil {
		t.Fatalf("create match: %v", err)
	}

	schedule, err := GenerateRentPayments(start, end, 200000)
	if err != nil {
		t.Fatalf("generate schedule: %v", err)
	}

	f.Booking = models.Booking{
		MatchID: f.Match.ID, UserID: f.Renter.ID, ListingID: f.Listing.ID,
		StartDate: start, EndDate: end, MonthlyRent: 200000,
		TotalPrice: ScheduleTotal(schedule),
		Status:     models.BookingPendingPayment, PaymentStatus: models.BookingPaymentProcessing,
	}
	if err := db.Create(&f.Booking).Error; err != nil {
		t.Fatalf("create booking: %v", err)
	}

	for i := range schedule {
		schedule[i].BookingID = f.Booking.ID
		schedule[i].PaymentMethodID = "pm_default"
	}
	if err := db.Create(&schedule).Error; err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	f.Payments = schedule

	return f
}

func reloadPayment(t *testing.T, db *gorm.DB, id uint) *models.RentPayment {
	t.Helper()
	var payment models.RentPayment
	if err := db.First(&payment, id).Error; err != nil {
		t.Fatalf("reload rent payment %d: %v", id, err)
	}
	return &payment
}

func reloadBooking(t *testing.T, db *gorm.DB, id uint) *models.Booking {
	t.Helper()
	var booking models.Booking
	if err := db.First(&booking, id).Error; err != nil {
		t.Fatalf("reload booking %d: %v", id, err)
	}
	return &booking
}

func timeNowPtr() *time.Time {
	now := time.Now()
	return &now
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}

// fakeGateway scripts gateway responses for the executor tests. beforeCreate
// runs just before CreatePaymentIntent resolves, to model events landing
// while the charge is in flight.
type fakeGateway struct {
	methodType string

	intent       *PaymentIntent
	createErr    error
	beforeCreate func()

	createCalls int
	lastParams  PaymentIntentParams
	lastKey     string
}

func (f *fakeGateway) RetrievePaymentMethod(_ context.Context, id string) (*PaymentMethod, error) {
	methodType := f.methodType
	if methodType == "" {
		methodType = PaymentMethodCard
	}
	return &PaymentMethod{ID: id, Type: methodType}, nil
}

func (f *fakeGateway) CreatePaymentIntent(_ context.Context, params PaymentIntentParams, idempotencyKey string) (*PaymentIntent, error) {
	f.createCalls++
	f.lastParams = params
	f.lastKey = idempotencyKey
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.intent, nil
}

func testPaymentService(gateway PaymentGateway) *PaymentService {
	return &PaymentService{Gateway: gateway, Notifications: NewNotificationService()}
}
