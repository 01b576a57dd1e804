package tariff

import "ridemarket/internal/domain/geo"

func round2(v float64) float64 { return geo.Round2(v) }
