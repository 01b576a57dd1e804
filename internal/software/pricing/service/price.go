package service

import (
	"math"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/domain/tariff"
)

// MinBillableKM is the distance below which a trip pays the base fare
// without a distance charge.
const MinBillableKM = 1.0

// Price computes the fare for km at the given local hour. Enabled
// time-window fees containing hour are added; the result never drops
// below the base fare.
func Price(settings tariff.Settings, km float64, hour int) (float64, []tariff.AppliedFee) {
	total := settings.BaseFare
	if km >= MinBillableKM {
		total += km * settings.PerKMRate
	}

	var applied []tariff.AppliedFee
	for _, fee := range settings.ActiveFees(hour) {
		total += fee.Amount
		applied = append(applied, tariff.AppliedFee{FeeID: fee.ID, Reason: fee.Reason, Amount: fee.Amount})
	}
	return geo.Round2(math.Max(settings.BaseFare, total)), applied
}

// FallbackDuration is used when the trip-time estimator fails.
func FallbackDuration(km float64) int {
	return int(math.Ceil(km * 2.5))
}

// defaultDuration is used when the estimator answers without a duration.
func defaultDuration(km float64) int {
	return int(math.Ceil(km * 2.2))
}
