package service

import (
	"ridemarket/internal/domain/geo"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/synclayer"
)

// rideService is the ride state machine. Every operation resolves the
// caller, checks its policy against the stored ride and commits with a
// conditional write on the status it read.
type rideService struct {
	logger   *logger.Logger
	clock    clock.Clock
	layer    *synclayer.Layer
	actors   ports.ActorResolver
	pricing  ports.PricingService
	notifier ports.Notifier
	speedKMH float64
}

// NewRideService creates a new instance of the RideService with the provided dependencies.
func NewRideService(
	logger *logger.Logger,
	clk clock.Clock,
	layer *synclayer.Layer,
	actors ports.ActorResolver,
	pricing ports.PricingService,
	notifier ports.Notifier,
	speedKMH float64,
) ports.RideService {
	if speedKMH <= 0 {
		speedKMH = geo.DefaultAverageSpeedKMH
	}
	return &rideService{
		logger:   logger,
		clock:    clk,
		layer:    layer,
		actors:   actors,
		pricing:  pricing,
		notifier: notifier,
		speedKMH: speedKMH,
	}
}
