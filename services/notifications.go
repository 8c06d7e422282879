package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/storage"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/utils"
)

// NotificationService handles all push notification logic
type NotificationService struct{}

// NewNotificationService creates a new notification service instance
func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// NotificationData represents the data payload for notifications
type NotificationData struct {
	Type          string `json:"type"`
	ID            string `json:"id"`
	BookingID     string `json:"bookingId,omitempty"`
	RentPaymentID string `json:"rentPaymentId,omitempty"`
	ListingID     string `json:"listingId,omitempty"`
	// Deep linking data
	Screen string `json:"screen"`           // Target screen to navigate to
	Params string `json:"params"`           // JSON string of navigation parameters
	Action string `json:"action,omitempty"` // Specific action to perform
}

// getUserPushTokens retrieves all push tokens for a user
func (ns *NotificationService) getUserPushTokens(userID uint) ([]string, error) {
	var user models.User
	if err := storage.DB.First(&user, userID).Error; err != nil {
		log.Printf("❌ TOKENS ERROR: User %d not found: %v", userID, err)
		return nil, fmt.Errorf("user not found: %v", err)
	}

	if user.AllowsNotifications == nil || !*user.AllowsNotifications || user.PushTokens == nil {
		return nil, fmt.Errorf("user has notifications disabled or no tokens")
	}

	var tokens []string
	if err := json.Unmarshal(user.PushTokens, &tokens); err != nil {
		log.Printf("❌ TOKENS ERROR: Failed to unmarshal push tokens for user %d: %v", userID, err)
		return nil, fmt.Errorf("failed to unmarshal push tokens: %v", err)
	}

	return tokens, nil
}

// SendNotificationToUser persists an in-app notification row and pushes it
// to every registered device of the user. The row is written even when the
// user has no push tokens.
func (ns *NotificationService) SendNotificationToUser(userID uint, title, body string, data NotificationData) error {
	record := models.Notification{
		UserID:  userID,
		Type:    data.Type,
		Title:   title,
		Message: body,
		RefType: refTypeFor(data),
		RefID:   refIDFor(data),
	}
	if err := storage.DB.Create(&record).Error; err != nil {
		log.Printf("❌ NOTIFICATION ERROR: Failed to persist notification for user %d: %v", userID, err)
	}

	tokens, err := ns.getUserPushTokens(userID)
	if err != nil {
		log.Printf("Failed to get push tokens for user %d: %v", userID, err)
		return err
	}

	dataMap := map[string]string{
		"type":          data.Type,
		"id":            data.ID,
		"bookingId":     data.BookingID,
		"rentPaymentId": data.RentPaymentID,
		"listingId":     data.ListingID,
	}

	var lastError error
	for _, token := range tokens {
		if err := utils.SendNotification(token, title, body, dataMap); err != nil {
			log.Printf("Failed to send notification to token %s: %v", token, err)
			lastError = err
		}
	}

	return lastError
}

// SendRentPaymentSuccess tells the renter a rent charge settled.
func (ns *NotificationService) SendRentPaymentSuccess(payment *models.RentPayment, booking *models.Booking, location string) error {
	title := "✅ Rent Payment Successful"
	body := fmt.Sprintf("Your rent payment of %s for %s was processed successfully.", formatCents(payment.Amount), location)

	params := fmt.Sprintf(`{"rentPaymentId": %d, "bookingId": %d}`, payment.ID, booking.ID)

	data := NotificationData{
		Type:          "rent_payment_success",
		ID:            fmt.Sprintf("%d", payment.ID),
		BookingID:     fmt.Sprintf("%d", booking.ID),
		RentPaymentID: fmt.Sprintf("%d", payment.ID),
		ListingID:     fmt.Sprintf("%d", booking.ListingID),
		Screen:        "PaymentHistory",
		Params:        params,
		Action:        "view_payment",
	}

	err := ns.SendNotificationToUser(booking.UserID, title, body, data)
	if err != nil {
		log.Printf("❌ NOTIFICATION ERROR: Failed to send rent payment success notification: %v", err)
	}
	return err
}

// SendRentPaymentProcessing tells the renter a bank debit started and may
// take a few days to settle.
func (ns *NotificationService) SendRentPaymentProcessing(payment *models.RentPayment, booking *models.Booking, location string) error {
	title := "🏦 Rent Payment Processing"
	body := fmt.Sprintf("Your rent payment of %s for %s has started processing. Bank payments typically take 3-5 business days.", formatCents(payment.Amount), location)

	params := fmt.Sprintf(`{"rentPaymentId": %d, "bookingId": %d}`, payment.ID, booking.ID)

	data := NotificationData{
		Type:          "rent_payment_processing",
		ID:            fmt.Sprintf("%d", payment.ID),
		BookingID:     fmt.Sprintf("%d", booking.ID),
		RentPaymentID: fmt.Sprintf("%d", payment.ID),
		Screen:        "PaymentHistory",
		Params:        params,
		Action:        "view_payment",
	}

	return ns.SendNotificationToUser(booking.UserID, title, body, data)
}

// SendRentPaymentFailureToRenter asks the renter to fix their payment method
// before the grace deadline.
func (ns *NotificationService) SendRentPaymentFailureToRenter(payment *models.RentPayment, booking *models.Booking, reason string, deadline time.Time) error {
	title := "⚠️ Rent Payment Failed"
	body := fmt.Sprintf("%s Please update your payment method before %s to keep your booking.", reason, deadline.Format("Jan 2, 3:04 PM MST"))

	params := fmt.Sprintf(`{"rentPaymentId": %d, "bookingId": %d}`, payment.ID, booking.ID)

	data := NotificationData{
		Type:          "rent_payment_failed",
		ID:            fmt.Sprintf("%d", payment.ID),
		BookingID:     fmt.Sprintf("%d", booking.ID),
		RentPaymentID: fmt.Sprintf("%d", payment.ID),
		Screen:        "PaymentMethods",
		Params:        params,
		Action:        "update_payment_method",
	}

	err := ns.SendNotificationToUser(booking.UserID, title, body, data)
	if err != nil {
		log.Printf("❌ NOTIFICATION ERROR: Failed to send rent payment failure notification: %v", err)
	}
	return err
}

// SendRentPaymentFailureToHost tells the host a tenant's payment bounced.
func (ns *NotificationService) SendRentPaymentFailureToHost(payment *models.RentPayment, booking *models.Booking, hostID uint, renterName, location string) error {
	title := "⚠️ Tenant Payment Failed"
	body := fmt.Sprintf("%s's rent payment of %s for %s failed. We are retrying and have notified them.", renterName, formatCents(payment.Amount), location)

	params := fmt.Sprintf(`{"rentPaymentId": %d, "bookingId": %d}`, payment.ID, booking.ID)

	data := NotificationData{
		Type:          "tenant_payment_failed",
		ID:            fmt.Sprintf("%d", payment.ID),
		BookingID:     fmt.Sprintf("%d", booking.ID),
		RentPaymentID: fmt.Sprintf("%d", payment.ID),
		Screen:        "HostBookings",
		Params:        params,
		Action:        "view_booking",
	}

	return ns.SendNotificationToUser(hostID, title, body, data)
}

// SendBookingConfirmedToHost tells the host the first payment settled and
// the booking is locked in.
func (ns *NotificationService) SendBookingConfirmedToHost(booking *models.Booking, hostID uint, renterName, location string) error {
	title := "🏠 Booking Confirmed!"
	body := fmt.Sprintf("%s's payment for %s settled. The booking is confirmed.", renterName, location)

	params := fmt.Sprintf(`{"bookingId": %d, "listingId": %d}`, booking.ID, booking.ListingID)

	data := NotificationData{
		Type:      "booking_confirmed",
		ID:        fmt.Sprintf("%d", booking.ID),
		BookingID: fmt.Sprintf("%d", booking.ID),
		ListingID: fmt.Sprintf("%d", booking.ListingID),
		Screen:    "HostBookings",
		Params:    params,
		Action:    "view_booking",
	}

	err := ns.SendNotificationToUser(hostID, title, body, data)
	if err != nil {
		log.Printf("❌ NOTIFICATION ERROR: Failed to send booking confirmed notification: %v", err)
	}
	return err
}

// SendBookingCancelled tells one party the booking was cancelled after the
// grace period lapsed without a successful payment.
func (ns *NotificationService) SendBookingCancelled(booking *models.Booking, userID uint, location string) error {
	title := "❌ Booking Cancelled"
	body := fmt.Sprintf("The booking for %s was cancelled because payment was not completed in time.", location)

	params := fmt.Sprintf(`{"bookingId": %d, "listingId": %d}`, booking.ID, booking.ListingID)

	data := NotificationData{
		Type:      "booking_cancelled",
		ID:        fmt.Sprintf("%d", booking.ID),
		BookingID: fmt.Sprintf("%d", booking.ID),
		ListingID: fmt.Sprintf("%d", booking.ListingID),
		Screen:    "MyBookings",
		Params:    params,
		Action:    "view_booking",
	}

	return ns.SendNotificationToUser(userID, title, body, data)
}

func refTypeFor(data NotificationData) string {
	if data.RentPaymentID != "" {
		return "rent_payment"
	}
	if data.BookingID != "" {
		return "booking"
	}
	return ""
}

func refIDFor(data NotificationData) uint {
	var id uint
	fmt.Sscanf(data.ID, "%d", &id)
	return id
}

func formatCents(amount int64) string {
	return fmt.Sprintf("$%d.%02d", amount/100, amount%100)
}
