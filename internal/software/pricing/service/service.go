package service

import (
	"context"
	"strings"
	"time"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/domain/tariff"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
)

const (
	fallbackExplanation = "Estimated offline from distance."
	defaultExplanation  = "Route calculated."
	defaultQuoteTTL     = 5 * time.Minute
)

// TariffSource supplies the tariff in effect.
type TariffSource interface {
	Current() tariff.Settings
}

// Config tunes the engine.
type Config struct {
	QuoteTTL         time.Duration
	EstimatorTimeout time.Duration
	Location         *time.Location
}

// pricingEngine quotes trips: distance chain, then price, then duration.
type pricingEngine struct {
	logger     *logger.Logger
	clock      clock.Clock
	tariffs    TariffSource
	strategies []DistanceStrategy
	estimator  ports.TripEstimator
	cfg        Config
}

// NewPricingEngine wires an engine. Strategies are tried in order; the
// last one should always answer.
func NewPricingEngine(
	logger *logger.Logger,
	clk clock.Clock,
	tariffs TariffSource,
	estimator ports.TripEstimator,
	cfg Config,
	strategies ...DistanceStrategy,
) ports.PricingService {
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = defaultQuoteTTL
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &pricingEngine{
		logger:     logger,
		clock:      clk,
		tariffs:    tariffs,
		strategies: strategies,
		estimator:  estimator,
		cfg:        cfg,
	}
}

// Tariff returns the live tariff.
func (engine *pricingEngine) Tariff() tariff.Settings {
	return engine.tariffs.Current()
}

// Estimate prices a trip. Collaborator failures degrade the distance and
// duration but never prevent a quote.
func (engine *pricingEngine) Estimate(ctx context.Context, in ports.EstimateInput) (*ports.Quote, error) {
	in.Origin = strings.TrimSpace(in.Origin)
	in.Destination = strings.TrimSpace(in.Destination)
	if in.Origin == "" || in.Destination == "" {
		return nil, apperr.E(apperr.KindInvalid, "pricing.estimate", "origin and destination are required", nil)
	}
	for _, p := range []*geo.Point{in.OriginCoords, in.DestCoords} {
		if p != nil {
			if err := p.Validate(); err != nil {
				return nil, apperr.E(apperr.KindInvalid, "pricing.estimate", err.Error(), err)
			}
		}
	}

	m := engine.measure(ctx, in)
	km := geo.Round2(m.KM)

	now := engine.clock.Now()
	settings := engine.tariffs.Current()
	price, fees := Price(settings, km, now.In(engine.cfg.Location).Hour())
	duration, explanation := engine.duration(ctx, km, in)

	q := &ports.Quote{
		Origin:          in.Origin,
		Destination:     in.Destination,
		DistanceKM:      km,
		DurationMin:     duration,
		Price:           price,
		AppliedFees:     fees,
		Explanation:     explanation,
		OriginFull:      firstNonEmpty(m.OriginFull, in.Origin),
		DestinationFull: firstNonEmpty(m.DestinationFull, in.Destination),
		OriginCoords:    m.OriginCoords,
		DestCoords:      m.DestCoords,
		DistanceSource:  m.Source,
		IssuedAt:        now.UTC(),
		ExpiresAt:       now.Add(engine.cfg.QuoteTTL).UTC(),
	}

	engine.logger.Info(ctx, "quote_issued", "Trip quoted", map[string]any{
		"distance_km": q.DistanceKM,
		"source":      q.DistanceSource,
		"price":       q.Price,
		"fees":        len(q.AppliedFees),
	})
	return q, nil
}

func (engine *pricingEngine) measure(ctx context.Context, in ports.EstimateInput) Measure {
	for _, s := range engine.strategies {
		if m, ok := s.Measure(ctx, in); ok {
			return m
		}
	}
	return Measure{KM: 3.0, Source: ports.DistanceSourceDefault, OriginCoords: in.OriginCoords, DestCoords: in.DestCoords}
}

func (engine *pricingEngine) duration(ctx context.Context, km float64, in ports.EstimateInput) (int, string) {
	if engine.estimator == nil {
		return FallbackDuration(km), fallbackExplanation
	}
	callCtx, cancel := withTimeout(ctx, engine.cfg.EstimatorTimeout)
	defer cancel()

	est, err := engine.estimator.Estimate(callCtx, km, in.Origin, in.Destination)
	if err != nil {
		engine.logger.Warn(ctx, "quote_estimator_unavailable", "Trip-time estimator failed, using distance", err, nil)
		return FallbackDuration(km), fallbackExplanation
	}

	duration := defaultDuration(km)
	if est.DurationMin != nil && *est.DurationMin > 0 {
		duration = *est.DurationMin
	}
	explanation := strings.TrimSpace(est.Explanation)
	if explanation == "" {
		explanation = defaultExplanation
	}
	return duration, explanation
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
