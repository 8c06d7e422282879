package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"
)

var (
	ErrInvalidDateRange  = errors.New("end date must be after start date")
	ErrNonPositiveRent   = errors.New("monthly rent must be positive")
	ErrNonPositiveAmount = errors.New("computed rent amount is not positive")
)

// GenerateRentPayments builds the full schedule of rent charges for a lease.
// The first payment is due on move-in day, every later one on the 1st of its
// month. endDate is the exclusive move-out day: the renter does not pay for
// it. Partial months are prorated by actual days in that calendar month and
// rounded half-up to the cent.
func GenerateRentPayments(startDate time.Time, endDate time.Time, monthlyRent int64) ([]models.RentPayment, error) {
	if monthlyRent <= 0 {
		return nil, ErrNonPositiveRent
	}

	start := dateOnly(startDate)
	end := dateOnly(endDate)
	if !end.After(start) {
		return nil, ErrInvalidDateRange
	}

	var payments []models.RentPayment
	for due := start; due.Before(end); {
		monthStart := time.Date(due.Year(), due.Month(), 1, 0, 0, 0, 0, time.UTC)
		nextMonth := monthStart.AddDate(0, 1, 0)

		periodEnd := nextMonth
		if end.Before(periodEnd) {
			periodEnd = end
		}

		days := int(periodEnd.Sub(due).Hours() / 24)
		monthDays := int(nextMonth.Sub(monthStart).Hours() / 24)

		amount := monthlyRent
		prorated := false
		if days != monthDays {
			amount = prorate(monthlyRent, days, monthDays)
			prorated = true
		}
		if amount <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrNonPositiveAmount, due.Format("2006-01-02"))
		}

		payments = append(payments, models.RentPayment{
			Amount:     amount,
			DueDate:    due,
			Status:     models.RentPaymentScheduled,
			IsProrated: prorated,
		})

		due = nextMonth
	}

	return payments, nil
}

// ScheduleTotal sums the schedule's amounts in cents.
func ScheduleTotal(payments []models.RentPayment) int64 {
	var total int64
	for _, p := range payments {
		total += p.Amount
	}
	return total
}

// prorate computes monthlyRent * days / monthDays rounded half-up, in pure
// integer arithmetic so equal inputs always yield equal cents.
func prorate(monthlyRent int64, days, monthDays int) int64 {
	return (2*monthlyRent*int64(days) + int64(monthDays)) / (2 * int64(monthDays))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
