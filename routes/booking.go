package routes

import (
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/storage"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/utils"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/gorm"
)

func GetBooking(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var booking models.Booking
	err := storage.DB.Preload("Listing").Preload("User").Preload("Match").
		Preload("RentPayments", func(db *gorm.DB) *gorm.DB { return db.Order("due_date asc") }).
		First(&booking, id).Error
	if err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	if !canAccessBooking(ctx, &booking) {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	ctx.JSON(iris.Map{"booking": booking})
}

// GetBookingRentPayments lists the booking's schedule, oldest first.
func GetBookingRentPayments(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var booking models.Booking
	if err := storage.DB.Preload("Listing").First(&booking, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	if !canAccessBooking(ctx, &booking) {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	var payments []models.RentPayment
	if err := storage.DB.Where("booking_id = ?", booking.ID).Order("due_date asc").Find(&payments).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"rentPayments": payments, "total": booking.TotalPrice})
}

// GetBookingTransactions returns the booking's ledger rows, newest first.
func GetBookingTransactions(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var booking models.Booking
	if err := storage.DB.Preload("Listing").First(&booking, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	if !canAccessBooking(ctx, &booking) {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	var transactions []models.PaymentTransaction
	if err := storage.DB.Where("booking_id = ?", booking.ID).Order("created_at desc").Find(&transactions).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"transactions": transactions})
}

// GetUserBookings lists a user's bookings; the route's UserIDMiddleware
// already guaranteed the id belongs to the requester.
func GetUserBookings(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var bookings []models.Booking
	err := storage.DB.Preload("Listing").
		Where("user_id = ?", id).Order("start_date desc").Find(&bookings).Error
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"bookings": bookings})
}

func canAccessBooking(ctx iris.Context, booking *models.Booking) bool {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	if claims.Role == "admin" || claims.Role == "super_admin" {
		return true
	}
	if booking.UserID == claims.ID {
		return true
	}
	return booking.Listing != nil && booking.Listing.HostID == claims.ID
}
