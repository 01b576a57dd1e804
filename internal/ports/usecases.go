package ports

import (
	"context"
	"time"

	"ridemarket/internal/domain/chat"
	"ridemarket/internal/domain/driver"
	"ridemarket/internal/domain/geo"
	"ridemarket/internal/domain/ride"
	"ridemarket/internal/domain/tariff"
	"ridemarket/internal/domain/user"
)

// ----- Identity -----

// ActorResolver turns an authenticated user id into its effective identity.
type ActorResolver interface {
	Resolve(ctx context.Context, userID string) (user.Actor, error)
}

// ----- Pricing -----

// Distance sources recorded on a quote.
const (
	DistanceSourceRoute     = "route"
	DistanceSourceHaversine = "haversine"
	DistanceSourceDefault   = "default"
)

// EstimateInput is a trip to be priced. Coordinates are optional.
type EstimateInput struct {
	Origin       string     `json:"origin"`
	Destination  string     `json:"destination"`
	OriginCoords *geo.Point `json:"originCoords,omitempty"`
	DestCoords   *geo.Point `json:"destCoords,omitempty"`
}

// Quote is a priced trip, valid until ExpiresAt.
type Quote struct {
	Origin          string              `json:"origin"`
	Destination     string              `json:"destination"`
	DistanceKM      float64             `json:"distanceKm"`
	DurationMin     int                 `json:"durationMin"`
	Price           float64             `json:"price"`
	AppliedFees     []tariff.AppliedFee `json:"appliedFees,omitempty"`
	Explanation     string              `json:"explanation"`
	OriginFull      string              `json:"originFull,omitempty"`
	DestinationFull string              `json:"destinationFull,omitempty"`
	OriginCoords    *geo.Point          `json:"originCoords,omitempty"`
	DestCoords      *geo.Point          `json:"destCoords,omitempty"`
	DistanceSource  string              `json:"distanceSource"`
	IssuedAt        time.Time           `json:"issuedAt"`
	ExpiresAt       time.Time           `json:"expiresAt"`
}

// Expired reports whether the quote can no longer be booked.
func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}

// PricingService quotes trips against the live tariff.
type PricingService interface {
	Estimate(ctx context.Context, in EstimateInput) (*Quote, error)
	Tariff() tariff.Settings
}

// ----- Rides -----

// CreateRideInput requests a ride at a previously quoted price.
type CreateRideInput struct {
	RiderID       string
	Quote         Quote
	PaymentMethod ride.PaymentMethod
}

// RideService drives the ride lifecycle.
type RideService interface {
	Create(ctx context.Context, in CreateRideInput) (string, error)
	Accept(ctx context.Context, rideID, driverID string) error
	Advance(ctx context.Context, rideID, callerID string) (ride.Status, error)
	Cancel(ctx context.Context, rideID, callerID string) error
	Rate(ctx context.Context, rideID, callerID string, score int) error
	Override(ctx context.Context, rideID, operatorID string, target ride.Status) error
	UpdateLiveLocation(ctx context.Context, rideID, driverID string, point geo.Point) error

	Get(ctx context.Context, rideID, callerID string) (*ride.Ride, error)
	List(ctx context.Context, callerID string) ([]ride.Ride, error)
	ETA(ctx context.Context, rideID, callerID string) (minutes int, ok bool, err error)
}

// ----- Chat -----

// ChatService carries messages and typing presence of an active ride.
type ChatService interface {
	Send(ctx context.Context, rideID, senderID, text string) (*chat.Message, error)
	Messages(ctx context.Context, rideID, userID string) ([]chat.Message, error)
	Keystroke(ctx context.Context, rideID, userID string) error
	StopTyping(ctx context.Context, rideID, userID string) error
}

// ----- Accounts -----

// ProfileInput is the self-service part of a user profile.
type ProfileInput struct {
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Role         user.Role `json:"role"`
	VehiclePlate *string   `json:"vehiclePlate,omitempty"`
	PayoutKey    *string   `json:"payoutKey,omitempty"`
	Avatar       *string   `json:"avatar,omitempty"`
}

// AccountService covers profile upkeep and driver self-service.
type AccountService interface {
	UpsertProfile(ctx context.Context, userID string, in ProfileInput) (*user.User, error)
	Me(ctx context.Context, userID string) (user.Actor, error)
	SetOnline(ctx context.Context, driverID string, online bool) error
	Earnings(ctx context.Context, driverID string, period driver.Period) (driver.Earnings, error)
}

// ----- Administration -----

// TariffUpdate changes the scalar tariff values. Nil fields are kept.
type TariffUpdate struct {
	BaseFare                 *float64 `json:"baseFare,omitempty"`
	PerKMRate                *float64 `json:"perKmRate,omitempty"`
	CommissionPercent        *float64 `json:"commissionPercent,omitempty"`
	DevCommissionPercent     *float64 `json:"devCommissionPercent,omitempty"`
	PartnerCommissionPercent *float64 `json:"partnerCommissionPercent,omitempty"`
}

// CommissionReport is the platform's take over completed rides.
type CommissionReport struct {
	CompletedRides           int     `json:"completedRides"`
	TotalCommission          float64 `json:"totalCommission"`
	DevCommissionPercent     float64 `json:"devCommissionPercent"`
	PartnerCommissionPercent float64 `json:"partnerCommissionPercent"`
	DevShare                 float64 `json:"devShare"`
	PartnerShare             float64 `json:"partnerShare"`
}

// AdminService is the operator console.
type AdminService interface {
	Tariff(ctx context.Context, operatorID string) (tariff.Settings, error)
	UpdateTariff(ctx context.Context, operatorID string, in TariffUpdate) (tariff.Settings, error)
	AddFee(ctx context.Context, operatorID string, fee tariff.CustomFee) (tariff.Settings, error)
	RemoveFee(ctx context.Context, operatorID, feeID string) (tariff.Settings, error)
	ToggleFee(ctx context.Context, operatorID, feeID string) (tariff.Settings, error)

	GrantRole(ctx context.Context, operatorID, userID string, role user.Role) error
	RevokeRole(ctx context.Context, operatorID, userID string) error
	SetBlocked(ctx context.Context, operatorID, userID string, blocked bool) error
	ListUsers(ctx context.Context, operatorID string) ([]user.User, error)
	ListStaff(ctx context.Context, operatorID string) ([]user.RoleGrant, error)
	CommissionReport(ctx context.Context, operatorID string) (CommissionReport, error)
}
