package routes

import (
	"errors"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/services"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/storage"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/utils"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// ProcessRentPayment charges one rent payment on demand, e.g. a renter
// retrying from the app after fixing their card. The heavy lifting and all
// state transitions live in the payment service; this handler only does
// authorization and error mapping.
func ProcessRentPayment(payments *services.PaymentService) iris.Handler {
	return func(ctx iris.Context) {
		claims := jwt.Get(ctx).(*utils.AccessToken)
		id := ctx.Params().Get("id")

		var payment models.RentPayment
		if err := storage.DB.Preload("Booking").First(&payment, id).Error; err != nil {
			utils.CreateNotFound(ctx)
			return
		}

		isAdmin := claims.Role == "admin" || claims.Role == "super_admin"
		if !isAdmin && (payment.Booking == nil || payment.Booking.UserID != claims.ID) {
			ctx.StatusCode(iris.StatusForbidden)
			return
		}

		outcome, err := payments.ProcessRentPaymentNow(ctx.Request().Context(), payment.ID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrPaymentNotFound):
				utils.CreateNotFound(ctx)
			case errors.Is(err, services.ErrPaymentAlreadySettled):
				utils.CreateError(iris.StatusConflict, "Already Settled", "This rent payment has already been paid", ctx)
			case errors.Is(err, services.ErrPaymentCancelled):
				utils.CreateError(iris.StatusConflict, "Cancelled", "This rent payment was cancelled with its booking", ctx)
			case errors.Is(err, services.ErrPaymentInFlight):
				utils.CreateError(iris.StatusConflict, "In Flight", "A charge attempt for this rent payment is already running", ctx)
			case errors.Is(err, services.ErrNoPaymentMethod):
				utils.CreateError(iris.StatusBadRequest, "No Payment Method", "Add a payment method before paying rent", ctx)
			case errors.Is(err, services.ErrGatewayUnavailable):
				utils.CreateError(iris.StatusServiceUnavailable, "Gateway Unavailable", "The payment processor is unavailable, please try again shortly", ctx)
			default:
				utils.CreateInternalServerError(ctx)
			}
			return
		}

		if isAdmin {
			utils.Audit(ctx, "process_rent_payment", "rent_payment", payment.ID, nil, outcome)
		}

		if outcome.Status == services.ExecutionFailed {
			ctx.StatusCode(iris.StatusPaymentRequired)
			ctx.JSON(iris.Map{"success": false, "data": outcome})
			return
		}

		ctx.JSON(iris.Map{"success": true, "data": outcome})
	}
}

func GetRentPayment(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var payment models.RentPayment
	err := storage.DB.Preload("Booking").Preload("Booking.Listing").First(&payment, id).Error
	if err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	if payment.Booking == nil || !canAccessBooking(ctx, payment.Booking) {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	var failures []models.RentPaymentFailure
	storage.DB.Where("rent_payment_id = ?", payment.ID).Order("created_at asc").Find(&failures)

	ctx.JSON(iris.Map{"rentPayment": payment, "failures": failures})
}
