package driver

import (
	"sort"
	"time"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/domain/ride"
)

// DayEarnings aggregates completed rides for one calendar day.
type DayEarnings struct {
	Day   string  `json:"day"` // YYYY-MM-DD in the reporting location
	Rides int     `json:"rides"`
	Gross float64 `json:"gross"`
	Net   float64 `json:"net"`
}

// Earnings is a driver's income over a period.
type Earnings struct {
	Period     Period        `json:"period"`
	Since      time.Time     `json:"since"`
	Rides      int           `json:"rides"`
	Gross      float64       `json:"gross"`
	Commission float64       `json:"commission"`
	Net        float64       `json:"net"`
	Days       []DayEarnings `json:"days"`
}

// Summarize folds the driver's completed rides inside the period into Earnings.
// Rides are bucketed by completion time, falling back to creation time.
func Summarize(driverID string, rides []ride.Ride, period Period, now time.Time) Earnings {
	since := period.Since(now)
	out := Earnings{Period: period, Since: since, Days: []DayEarnings{}}
	byDay := make(map[string]*DayEarnings)

	for i := range rides {
		r := &rides[i]
		if r.Status != ride.StatusCompleted || !r.IsDriver(driverID) {
			continue
		}
		at := r.CreatedAt
		if r.CompletedAt != nil {
			at = *r.CompletedAt
		}
		at = at.In(now.Location())
		if at.Before(since) || at.After(now) {
			continue
		}

		out.Rides++
		out.Gross += r.TotalPrice
		out.Commission += r.CommissionAmount

		key := at.Format(time.DateOnly)
		day, ok := byDay[key]
		if !ok {
			day = &DayEarnings{Day: key}
			byDay[key] = day
		}
		day.Rides++
		day.Gross += r.TotalPrice
		day.Net += r.NetEarnings()
	}

	out.Gross = round2(out.Gross)
	out.Commission = round2(out.Commission)
	out.Net = round2(out.Gross - out.Commission)
	for _, day := range byDay {
		day.Gross = round2(day.Gross)
		day.Net = round2(day.Net)
		out.Days = append(out.Days, *day)
	}
	sort.Slice(out.Days, func(i, j int) bool { return out.Days[i].Day < out.Days[j].Day })
	return out
}

func round2(v float64) float64 { return geo.Round2(v) }
