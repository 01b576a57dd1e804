package service

import (
	"context"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/domain/ride"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/records"
)

// CommissionReport sums the platform commission over every completed ride
// and splits it with the current tariff percentages.
func (service *adminService) CommissionReport(ctx context.Context, operatorID string) (ports.CommissionReport, error) {
	if _, err := service.operator(ctx, "admin.commission_report", operatorID, adminOnly...); err != nil {
		return ports.CommissionReport{}, err
	}
	settings, err := records.Tariff(ctx, service.layer)
	if err != nil {
		return ports.CommissionReport{}, err
	}
	docs, err := service.layer.Query(ctx, ports.CollectionRides, ports.Query{
		Filters: []ports.Filter{ports.Where(ride.FieldStatus, ports.OpEq, ride.StatusCompleted.String())},
	})
	if err != nil {
		return ports.CommissionReport{}, err
	}
	rides, err := records.Rides(docs)
	if err != nil {
		return ports.CommissionReport{}, err
	}

	var total float64
	for i := range rides {
		total += rides[i].CommissionAmount
	}
	total = geo.Round2(total)
	dev, partner := settings.Split(total)
	return ports.CommissionReport{
		CompletedRides:           len(rides),
		TotalCommission:          total,
		DevCommissionPercent:     settings.DevCommissionPercent,
		PartnerCommissionPercent: settings.PartnerCommissionPercent,
		DevShare:                 dev,
		PartnerShare:             partner,
	}, nil
}
