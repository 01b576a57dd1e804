package service

import (
	"context"
	"strings"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/synclayer"
)

// Create books a PENDING ride at the quoted price. The quote is reused
// verbatim; only its freshness and sanity are checked here.
func (service *rideService) Create(ctx context.Context, in ports.CreateRideInput) (string, error) {
	actor, err := service.actors.Resolve(ctx, in.RiderID)
	if err != nil {
		return "", err
	}
	if err := canCreate(actor); err != nil {
		return "", err
	}

	now := service.clock.Now()
	q := in.Quote
	settings := service.pricing.Tariff()
	switch {
	case q.Expired(now):
		return "", apperr.E(apperr.KindInvalidQuote, "ride.create", "quote expired, request a new one", nil)
	case q.DistanceKM <= 0:
		return "", apperr.E(apperr.KindInvalidQuote, "ride.create", "quote has no distance", nil)
	case q.Price < settings.BaseFare:
		return "", apperr.E(apperr.KindInvalidQuote, "ride.create", "quote is below the base fare", nil)
	}

	r, err := ride.NewRide(actor.ID, actor.Name, q.Origin, q.Destination, in.PaymentMethod, now)
	if err != nil {
		return "", apperr.E(apperr.KindInvalid, "ride.create", err.Error(), err)
	}
	if strings.TrimSpace(q.OriginFull) != "" {
		r.OriginFull = ptr(q.OriginFull)
	}
	if strings.TrimSpace(q.DestinationFull) != "" {
		r.DestinationFull = ptr(q.DestinationFull)
	}
	r.OriginCoords = q.OriginCoords
	r.DestCoords = q.DestCoords
	r.DistanceKM = q.DistanceKM
	if q.DurationMin > 0 {
		r.DurationMin = ptr(q.DurationMin)
	}
	r.TotalPrice = q.Price
	r.CommissionAmount = settings.Commission(q.Price)
	r.AppliedFees = q.AppliedFees

	fields, err := synclayer.Encode(r)
	if err != nil {
		return "", apperr.E(apperr.KindPersistenceFailure, "ride.create", "could not encode ride", err)
	}
	doc, err := service.layer.Create(ctx, ports.CollectionRides, fields)
	if err != nil {
		service.logger.Error(ctx, "ride_create_failed", "Failed to store ride", err, map[string]any{"client_id": actor.ID})
		return "", err
	}

	ctx = service.logger.WithRideID(ctx, doc.ID)
	service.logger.Info(ctx, "ride_created", "Ride requested", map[string]any{
		"client_id":   actor.ID,
		"price":       r.TotalPrice,
		"distance_km": r.DistanceKM,
		"payment":     r.PaymentMethod.String(),
	})
	return doc.ID, nil
}
