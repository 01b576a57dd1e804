package tariff

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Default tariff values used when no settings document exists yet.
const (
	DefaultBaseFare                 = 4.00
	DefaultPerKMRate                = 1.50
	DefaultCommissionPercent        = 5.0
	DefaultDevCommissionPercent     = 20.0
	DefaultPartnerCommissionPercent = 80.0
)

// FeeKind classifies custom fees. Only time windows exist today.
type FeeKind string

const FeeKindTimeWindow FeeKind = "time-window"

// CustomFee is an operator-defined surcharge.
type CustomFee struct {
	ID        string  `json:"id"`
	Reason    string  `json:"reason"`
	Amount    float64 `json:"amount"`
	Kind      FeeKind `json:"kind"`
	StartHour int     `json:"startHour"`
	EndHour   int     `json:"endHour"`
	Enabled   bool    `json:"enabled"`
}

// AppliedFee is a fee line item recorded on a quote and its ride.
type AppliedFee struct {
	FeeID  string  `json:"feeId"`
	Reason string  `json:"reason"`
	Amount float64 `json:"amount"`
}

// Settings is the singleton tariff document.
type Settings struct {
	BaseFare                 float64     `json:"baseFare"`
	PerKMRate                float64     `json:"perKmRate"`
	CommissionPercent        float64     `json:"commissionPercent"`
	DevCommissionPercent     float64     `json:"devCommissionPercent"`
	PartnerCommissionPercent float64     `json:"partnerCommissionPercent"`
	CustomFees               []CustomFee `json:"customFees,omitempty"`
}

var (
	ErrNegativeFare         = errors.New("base fare and per-km rate cannot be negative")
	ErrPercentOutOfRange    = errors.New("percentages must be between 0 and 100")
	ErrSplitNot100          = errors.New("dev and partner percentages must add up to 100")
	ErrFeeReasonRequired    = errors.New("fee reason is required")
	ErrFeeAmountNotPositive = errors.New("fee amount must be positive")
	ErrFeeHourOutOfRange    = errors.New("fee hours must be between 0 and 23")
	ErrFeeKind              = errors.New("unsupported fee kind")
	ErrFeeNotFound          = errors.New("fee not found")
	ErrDuplicateFeeID       = errors.New("fee id already exists")
)

// Defaults returns the built-in tariff.
func Defaults() Settings {
	return Settings{
		BaseFare:                 DefaultBaseFare,
		PerKMRate:                DefaultPerKMRate,
		CommissionPercent:        DefaultCommissionPercent,
		DevCommissionPercent:     DefaultDevCommissionPercent,
		PartnerCommissionPercent: DefaultPartnerCommissionPercent,
	}
}

// Validate checks the tariff and each of its fees.
func (settings *Settings) Validate() error {
	if settings.BaseFare < 0 || settings.PerKMRate < 0 {
		return ErrNegativeFare
	}
	for _, p := range []float64{settings.CommissionPercent, settings.DevCommissionPercent, settings.PartnerCommissionPercent} {
		if p < 0 || p > 100 {
			return ErrPercentOutOfRange
		}
	}
	if math.Abs(settings.DevCommissionPercent+settings.PartnerCommissionPercent-100) > 1e-9 {
		return ErrSplitNot100
	}
	seen := make(map[string]struct{}, len(settings.CustomFees))
	for i := range settings.CustomFees {
		fee := &settings.CustomFees[i]
		if err := fee.Validate(); err != nil {
			return fmt.Errorf("fee %q: %w", fee.ID, err)
		}
		if _, dup := seen[fee.ID]; dup {
			return ErrDuplicateFeeID
		}
		seen[fee.ID] = struct{}{}
	}
	return nil
}

// Validate checks a single fee.
func (fee *CustomFee) Validate() error {
	if strings.TrimSpace(fee.Reason) == "" {
		return ErrFeeReasonRequired
	}
	if fee.Amount <= 0 {
		return ErrFeeAmountNotPositive
	}
	if fee.Kind != FeeKindTimeWindow {
		return ErrFeeKind
	}
	if fee.StartHour < 0 || fee.StartHour > 23 || fee.EndHour < 0 || fee.EndHour > 23 {
		return ErrFeeHourOutOfRange
	}
	return nil
}

// Contains reports whether the fee window [start,end) covers hour.
// Windows with start >= end wrap past midnight.
func (fee *CustomFee) Contains(hour int) bool {
	if fee.StartHour < fee.EndHour {
		return fee.StartHour <= hour && hour < fee.EndHour
	}
	return hour >= fee.StartHour || hour < fee.EndHour
}

// ActiveFees returns enabled time-window fees that apply at hour, in list order.
func (settings *Settings) ActiveFees(hour int) []CustomFee {
	var out []CustomFee
	for _, fee := range settings.CustomFees {
		if !fee.Enabled || fee.Kind != FeeKindTimeWindow {
			continue
		}
		if fee.Contains(hour) {
			out = append(out, fee)
		}
	}
	return out
}

// Commission returns price × commissionPercent / 100, rounded to cents.
func (settings *Settings) Commission(price float64) float64 {
	return round2(price * settings.CommissionPercent / 100)
}

// Split divides a commission into its dev and partner shares.
func (settings *Settings) Split(commission float64) (dev, partner float64) {
	dev = round2(commission * settings.DevCommissionPercent / 100)
	partner = round2(commission - dev)
	return dev, partner
}

// FeeIndex returns the index of the fee with id, or -1.
func (settings *Settings) FeeIndex(id string) int {
	for i := range settings.CustomFees {
		if settings.CustomFees[i].ID == id {
			return i
		}
	}
	return -1
}

// Label renders a human-readable fee line.
func (fee AppliedFee) Label() string {
	return fmt.Sprintf("%s (+%.2f)", fee.Reason, fee.Amount)
}
