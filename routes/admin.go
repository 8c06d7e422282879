package routes

import (
	"strconv"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/storage"
	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/utils"
	"github.com/kataras/iris/v12"
)

func pageParams(ctx iris.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(ctx.URLParamDefault("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(ctx.URLParamDefault("per_page", "25"))
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}
	return page, perPage, (page - 1) * perPage
}

// AdminListRentPayments lists rent payments across all bookings, optionally
// filtered by status, for support and ops tooling.
func AdminListRentPayments(ctx iris.Context) {
	page, perPage, offset := pageParams(ctx)

	query := storage.DB.Model(&models.RentPayment{})
	if status := ctx.URLParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var payments []models.RentPayment
	err := query.Preload("Booking").
		Order("due_date asc, id asc").Limit(perPage).Offset(offset).
		Find(&payments).Error
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, payments, page, perPage, total)
}

// AdminListTransactions lists ledger rows, newest first.
func AdminListTransactions(ctx iris.Context) {
	page, perPage, offset := pageParams(ctx)

	var total int64
	if err := storage.DB.Model(&models.PaymentTransaction{}).Count(&total).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var transactions []models.PaymentTransaction
	err := storage.DB.Order("created_at desc").Limit(perPage).Offset(offset).
		Find(&transactions).Error
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, transactions, page, perPage, total)
}

// AdminListAuditLogs exposes the admin action trail. Super admin only; wired
// with SuperAdminOnlyMiddleware in main.
func AdminListAuditLogs(ctx iris.Context) {
	page, perPage, offset := pageParams(ctx)

	var total int64
	if err := storage.DB.Model(&models.AuditLog{}).Count(&total).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var logs []models.AuditLog
	err := storage.DB.Order("created_at desc").Limit(perPage).Offset(offset).
		Find(&logs).Error
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, logs, page, perPage, total)
}
