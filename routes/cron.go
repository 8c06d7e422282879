package routes

import (
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/services"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/utils"
	"github.com/kataras/iris/v12"
)

// Scheduler-triggered jobs. The party these mount on is guarded by
// CronSecretMiddleware; each run returns a summary for the scheduler's logs.

func ProcessDueRentPayments(sweeps *services.SweepService) iris.Handler {
	return func(ctx iris.Context) {
		summary, err := sweeps.ProcessDuePayments(ctx.Request().Context())
		if err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": summary})
	}
}

func RetryFailedRentPayments(sweeps *services.SweepService) iris.Handler {
	return func(ctx iris.Context) {
		summary, err := sweeps.RetryFailedPayments(ctx.Request().Context())
		if err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": summary})
	}
}

func ExpireUnsettledBookings(sweeps *services.SweepService) iris.Handler {
	return func(ctx iris.Context) {
		cancelled, err := sweeps.ExpireUnsettledBookings(ctx.Request().Context())
		if err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		ctx.JSON(iris.Map{"success": true, "data": iris.Map{"cancelled": cancelled}})
	}
}
