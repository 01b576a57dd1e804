package ride

import (
	"errors"
	"strings"
	"time"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/domain/tariff"
)

// Ride is the document stored under rides/{id}.
// Optional fields are pointers so that absent stays absent across stores.
type Ride struct {
	ID         string `json:"id"`
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName"`

	// Driver identity, all nil until accepted
	DriverID    *string `json:"driverId,omitempty"`
	DriverName  *string `json:"driverName,omitempty"`
	DriverPlate *string `json:"driverPlate,omitempty"`
	DriverPhoto *string `json:"driverPhoto,omitempty"`
	DriverPhone *string `json:"driverPhone,omitempty"`

	// Route
	Origin              string     `json:"origin"`
	OriginFull          *string    `json:"originFull,omitempty"`
	Destination         string     `json:"destination"`
	DestinationFull     *string    `json:"destinationFull,omitempty"`
	OriginCoords        *geo.Point `json:"originCoords,omitempty"`
	DestCoords          *geo.Point `json:"destCoords,omitempty"`
	DriverCurrentCoords *geo.Point `json:"driverCurrentCoords,omitempty"`

	// Price
	DistanceKM       float64             `json:"distanceKm"`
	DurationMin      *int                `json:"durationMin,omitempty"`
	TotalPrice       float64             `json:"totalPrice"`
	CommissionAmount float64             `json:"commissionAmount"`
	AppliedFees      []tariff.AppliedFee `json:"appliedFees,omitempty"`
	PaymentMethod    PaymentMethod       `json:"paymentMethod"`

	// Lifecycle
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CancelledBy *string    `json:"cancelledBy,omitempty"`

	// Presence and feedback
	Typing map[string]bool `json:"typing,omitempty"`
	Rating *int            `json:"rating,omitempty"`
}

var (
	ErrClientRequired          = errors.New("client id is required")
	ErrAddressRequired         = errors.New("origin and destination are required")
	ErrInvalidStatusTransition = errors.New("invalid ride status transition")
	ErrAlreadyAssigned         = errors.New("driver already assigned")
	ErrNoDriverAssigned        = errors.New("no driver assigned")
	ErrDriverIdentity          = errors.New("driver id and name must be set together")
	ErrAlreadyRated            = errors.New("ride already rated")
	ErrInvalidScore            = errors.New("rating must be between 1 and 5")
	ErrNotCompleted            = errors.New("ride is not completed")
)

// NewRide builds a PENDING ride from a priced request.
func NewRide(clientID, clientName, origin, destination string, method PaymentMethod, now time.Time) (*Ride, error) {
	if clientID = strings.TrimSpace(clientID); clientID == "" {
		return nil, ErrClientRequired
	}
	origin = strings.TrimSpace(origin)
	destination = strings.TrimSpace(destination)
	if origin == "" || destination == "" {
		return nil, ErrAddressRequired
	}
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	now = now.UTC()
	return &Ride{
		ClientID:      clientID,
		ClientName:    strings.TrimSpace(clientName),
		Origin:        origin,
		Destination:   destination,
		PaymentMethod: method,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Validate checks cross-field invariants.
func (ride *Ride) Validate() error {
	if ride.ClientID == "" {
		return ErrClientRequired
	}
	if !ride.Status.Valid() {
		return ErrInvalidStatus
	}
	if (ride.DriverID == nil) != (ride.DriverName == nil) {
		return ErrDriverIdentity
	}
	if ride.Status != StatusPending && ride.Status != StatusCancelled && !ride.HasDriver() {
		return ErrNoDriverAssigned
	}
	if ride.Rating != nil && (*ride.Rating < 1 || *ride.Rating > 5) {
		return ErrInvalidScore
	}
	return nil
}

// HasDriver reports whether a driver is attached.
func (ride *Ride) HasDriver() bool {
	return ride.DriverID != nil && *ride.DriverID != ""
}

// IsDriver reports whether userID is the assigned driver.
func (ride *Ride) IsDriver(userID string) bool {
	return ride.HasDriver() && *ride.DriverID == userID
}

// IsClient reports whether userID requested the ride.
func (ride *Ride) IsClient(userID string) bool {
	return ride.ClientID == userID
}

// IsParticipant reports whether userID is the rider or the assigned driver.
func (ride *Ride) IsParticipant(userID string) bool {
	return ride.IsClient(userID) || ride.IsDriver(userID)
}

// Counterpart returns the other participant's id, or "" if none.
func (ride *Ride) Counterpart(userID string) string {
	switch {
	case ride.IsClient(userID) && ride.HasDriver():
		return *ride.DriverID
	case ride.IsDriver(userID):
		return ride.ClientID
	default:
		return ""
	}
}

// OtherTyping reports whether the counterpart of userID is typing.
func (ride *Ride) OtherTyping(userID string) bool {
	other := ride.Counterpart(userID)
	if other == "" {
		return false
	}
	return ride.Typing[other]
}

// Waypoint returns where the driver is heading in the current phase.
func (ride *Ride) Waypoint() (*geo.Point, bool) {
	switch ride.Status {
	case StatusAccepted:
		return ride.OriginCoords, ride.OriginCoords != nil
	case StatusInProgress:
		return ride.DestCoords, ride.DestCoords != nil
	default:
		return nil, false
	}
}

// ETA returns minutes until the driver reaches the current waypoint.
// ok is false when the ride is not active or coordinates are missing.
func (ride *Ride) ETA(speedKMH float64) (minutes int, ok bool) {
	if ride.DriverCurrentCoords == nil {
		return 0, false
	}
	waypoint, ok := ride.Waypoint()
	if !ok {
		return 0, false
	}
	return geo.ETAMinutes(*ride.DriverCurrentCoords, *waypoint, speedKMH), true
}

// NetEarnings is the driver's share after platform commission.
func (ride *Ride) NetEarnings() float64 {
	return geo.Round2(ride.TotalPrice - ride.CommissionAmount)
}

// ValidateScore checks a post-trip rating value.
func ValidateScore(score int) error {
	if score < 1 || score > 5 {
		return ErrInvalidScore
	}
	return nil
}
