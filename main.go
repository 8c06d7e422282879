package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/routes"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/services"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/storage"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func main() {
	// Only load .env in development
	if os.Getenv("RENDER") == "" {
		godotenv.Load()
	}

	// Initialize services
	storage.InitializeDB()
	storage.InitializeRedis()

	paymentService := services.NewPaymentService()
	reconciler := services.NewReconcilerService()
	sweeps := services.NewSweepService()

	webhookLimiter := utils.NewRateLimiter(storage.Redis, "ratelimit:webhook", 120, time.Minute)
	paymentLimiter := utils.NewRateLimiter(storage.Redis, "ratelimit:payments", 20, time.Minute)

	app := iris.New()
	app.Validator = validator.New()

	// CORS configuration
	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	// Minimal middleware - compression only
	app.Use(iris.Compression)

	// JWT Verifiers
	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		err := ctx.ReadJSON(&tokenInput)
		if err != nil {
			return ""
		}
		return tokenInput.RefreshToken
	})

	// Health check endpoint - CRITICAL for Render
	app.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"status": "ok"})
	})

	// Routes
	user := app.Party("/api/user", accessTokenVerifierMiddleware)
	{
		user.Get("/{id}", utils.UserIDFromTokenMiddleware, routes.GetUser)
		user.Patch("/{id}/pushtoken", utils.UserIDMiddleware, routes.AlterPushToken)
		user.Patch("/{id}/settings/notifications", utils.UserIDMiddleware, routes.AllowsNotifications)
	}

	notifications := app.Party("/api/notifications", accessTokenVerifierMiddleware)
	{
		notifications.Get("/", routes.GetUserNotifications)
		notifications.Patch("/{id:uint}/read", routes.MarkNotificationRead)
	}

	matches := app.Party("/api/matches", accessTokenVerifierMiddleware)
	{
		matches.Post("/", routes.CreateMatch)
		matches.Get("/{id:uint}", routes.GetMatch)
		matches.Get("/{id:uint}/schedule", routes.PreviewMatchSchedule)
		matches.Post("/{id:uint}/book", routes.BookMatch)
	}

	bookings := app.Party("/api/bookings", accessTokenVerifierMiddleware)
	{
		bookings.Get("/{id:uint}", routes.GetBooking)
		bookings.Get("/{id:uint}/rent-payments", routes.GetBookingRentPayments)
		bookings.Get("/{id:uint}/transactions", routes.GetBookingTransactions)
		bookings.Get("/user/{id}", utils.UserIDMiddleware, routes.GetUserBookings)
	}

	payments := app.Party("/api/payments", accessTokenVerifierMiddleware)
	{
		payments.Get("/{id:uint}", routes.GetRentPayment)
		payments.Post("/{id:uint}/process", paymentLimiter.Middleware, routes.ProcessRentPayment(paymentService))
	}

	app.Post("/api/payment-webhook", webhookLimiter.Middleware, routes.PaymentWebhook(reconciler))

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Get("/rent-payments", routes.AdminListRentPayments)
		admin.Get("/transactions", routes.AdminListTransactions)
		admin.Get("/audit-logs", utils.SuperAdminOnlyMiddleware, routes.AdminListAuditLogs)
	}

	cron := app.Party("/api/cron", utils.CronSecretMiddleware)
	{
		cron.Post("/process-rent-payments", routes.ProcessDueRentPayments(sweeps))
		cron.Post("/retry-failed-rent-payments", routes.RetryFailedRentPayments(sweeps))
		cron.Post("/expire-unsettled-bookings", routes.ExpireUnsettledBookings(sweeps))
	}

	app.Post("/api/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)

	// Get port from environment
	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	addr := "0.0.0.0:" + port

	fmt.Printf("🚀 Server starting on %s\n", addr)

	// Start server
	if err := app.Listen(addr); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
