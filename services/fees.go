package services

import (
	"math"
	"time"
)

// Platform fee schedule. Stays below six months are short-term; longer
// leases get the reduced rate.
const (
	ShortTermFeeRate        = 0.03
	LongTermFeeRate         = 0.015
	LongTermThresholdMonths = 6

	// Average Gregorian month length used to convert lease spans to months.
	daysPerMonth = 30.4375
)

// FeeSplit is the platform's cut of one gross charge and what the host
// receives after it.
type FeeSplit struct {
	Rate        float64 `json:"rate"`
	PlatformFee int64   `json:"platformFee"`
	NetPayout   int64   `json:"netPayout"`
}

// SplitFee applies the fee rate for the lease duration to one gross amount
// in cents. The fee is rounded half-up; the payout is the exact remainder so
// fee + payout always equals the gross amount.
func SplitFee(grossAmount int64, durationMonths int) FeeSplit {
	rate := ShortTermFeeRate
	if durationMonths >= LongTermThresholdMonths {
		rate = LongTermFeeRate
	}

	fee := int64(math.Floor(float64(grossAmount)*rate + 0.5))
	return FeeSplit{
		Rate:        rate,
		PlatformFee: fee,
		NetPayout:   grossAmount - fee,
	}
}

// BookingDurationMonths converts a lease span to whole months, rounding to
// the nearest month so a 5-month-and-29-day stay counts as 6.
func BookingDurationMonths(startDate, endDate time.Time) int {
	days := dateOnly(endDate).Sub(dateOnly(startDate)).Hours() / 24
	return int(math.Round(days / daysPerMonth))
}
