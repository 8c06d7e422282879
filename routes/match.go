package routes

import (
	"time"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/services"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/storage"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/utils"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// CreateMatch records an agreed lease between the requesting renter and a
// listing. The rent schedule is validated up front so a lease that cannot
// produce a valid schedule is rejected before any payment is attempted.
func CreateMatch(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input CreateMatchInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	startDate, err := time.Parse(dateLayout, input.StartDate)
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Bad Request", "startDate must be YYYY-MM-DD", ctx)
		return
	}
	endDate, err := time.Parse(dateLayout, input.EndDate)
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Bad Request", "endDate must be YYYY-MM-DD", ctx)
		return
	}

	var listing models.Listing
	if err := storage.DB.First(&listing, input.ListingID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	monthlyRent := input.MonthlyRent
	if monthlyRent == 0 {
		monthlyRent = listing.MonthlyRent
	}

	schedule, err := services.GenerateRentPayments(startDate, endDate, monthlyRent)
	if err != nil {
		utils.CreateError(iris.StatusUnprocessableEntity, "Invalid Lease", err.Error(), ctx)
		return
	}

	match := models.Match{
		ListingID:       listing.ID,
		RenterID:        claims.ID,
		StartDate:       startDate,
		EndDate:         endDate,
		MonthlyRent:     monthlyRent,
		PaymentMethodID: input.PaymentMethodID,
		PaymentStatus:   models.MatchPaymentPending,
	}
	if err := storage.DB.Create(&match).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{
		"match":    match,
		"schedule": schedule,
		"total":    services.ScheduleTotal(schedule),
	})
}

func GetMatch(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var match models.Match
	err := storage.DB.Preload("Listing").Preload("Renter").Preload("Booking").First(&match, id).Error
	if err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	if !canAccessMatch(ctx, &match) {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	ctx.JSON(iris.Map{"match": match})
}

// PreviewMatchSchedule returns the rent schedule with the platform fee split
// each charge would carry, without persisting anything.
func PreviewMatchSchedule(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var match models.Match
	if err := storage.DB.First(&match, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	if !canAccessMatch(ctx, &match) {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	schedule, err := services.GenerateRentPayments(match.StartDate, match.EndDate, match.MonthlyRent)
	if err != nil {
		utils.CreateError(iris.StatusUnprocessableEntity, "Invalid Lease", err.Error(), ctx)
		return
	}

	durationMonths := services.BookingDurationMonths(match.StartDate, match.EndDate)
	items := make([]iris.Map, 0, len(schedule))
	for _, payment := range schedule {
		split := services.SplitFee(payment.Amount, durationMonths)
		items = append(items, iris.Map{
			"dueDate":     payment.DueDate.Format(dateLayout),
			"amount":      payment.Amount,
			"isProrated":  payment.IsProrated,
			"platformFee": split.PlatformFee,
			"netPayout":   split.NetPayout,
			"feeRate":     split.Rate,
		})
	}

	ctx.JSON(iris.Map{
		"durationMonths": durationMonths,
		"payments":       items,
		"total":          services.ScheduleTotal(schedule),
	})
}

// BookMatch creates the booking and its full rent schedule for a match. The
// booking starts in pending_payment; settlement of the first charge confirms
// it. A second call returns the existing booking instead of a duplicate.
func BookMatch(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	id := ctx.Params().Get("id")

	var match models.Match
	if err := storage.DB.Preload("Booking").First(&match, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	isAdmin := claims.Role == "admin" || claims.Role == "super_admin"
	if match.RenterID != claims.ID && !isAdmin {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	if match.Booking != nil {
		ctx.StatusCode(iris.StatusConflict)
		ctx.JSON(iris.Map{"message": "match already has a booking", "booking": match.Booking})
		return
	}

	schedule, err := services.GenerateRentPayments(match.StartDate, match.EndDate, match.MonthlyRent)
	if err != nil {
		utils.CreateError(iris.StatusUnprocessableEntity, "Invalid Lease", err.Error(), ctx)
		return
	}

	booking := models.Booking{
		MatchID:       match.ID,
		UserID:        match.RenterID,
		ListingID:     match.ListingID,
		StartDate:     match.StartDate,
		EndDate:       match.EndDate,
		MonthlyRent:   match.MonthlyRent,
		TotalPrice:    services.ScheduleTotal(schedule),
		Status:        models.BookingPendingPayment,
		PaymentStatus: models.BookingPaymentProcessing,
	}

	duplicate := false
	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&booking).Error; err != nil {
			if services.IsDuplicateBooking(err) {
				duplicate = true
				return nil
			}
			return err
		}
		for i := range schedule {
			schedule[i].BookingID = booking.ID
			if schedule[i].PaymentMethodID == "" {
				schedule[i].PaymentMethodID = match.PaymentMethodID
			}
		}
		return tx.Create(&schedule).Error
	})
	if txErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if duplicate {
		var existing models.Booking
		if err := storage.DB.Preload("RentPayments").Where("match_id = ?", match.ID).First(&existing).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		ctx.StatusCode(iris.StatusConflict)
		ctx.JSON(iris.Map{"message": "match already has a booking", "booking": existing})
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"booking": booking, "rentPayments": schedule})
}

func canAccessMatch(ctx iris.Context, match *models.Match) bool {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	if claims.Role == "admin" || claims.Role == "super_admin" {
		return true
	}
	if match.RenterID == claims.ID {
		return true
	}
	if match.Listing != nil && match.Listing.HostID == claims.ID {
		return true
	}
	var listing models.Listing
	if err := storage.DB.Select("id, host_id").First(&listing, match.ListingID).Error; err == nil {
		return listing.HostID == claims.ID
	}
	return false
}

type CreateMatchInput struct {
	ListingID       uint   `json:"listingID" validate:"required"`
	StartDate       string `json:"startDate" validate:"required"`
	EndDate         string `json:"endDate" validate:"required"`
	MonthlyRent     int64  `json:"monthlyRent"`
	PaymentMethodID string `json:"paymentMethodID"`
}
