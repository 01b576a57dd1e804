package geo

import "math"

// DefaultAverageSpeedKMH is the assumed city speed for ETA estimates.
const DefaultAverageSpeedKMH = 30.0

// ETAMinutes returns the straight-line travel time from driver to waypoint
// at speedKMH, rounded up to whole minutes and never below one minute.
func ETAMinutes(driver, waypoint Point, speedKMH float64) int {
	if speedKMH <= 0 {
		speedKMH = DefaultAverageSpeedKMH
	}
	minutes := int(math.Ceil(HaversineKM(driver, waypoint) / speedKMH * 60))
	if minutes < 1 {
		return 1
	}
	return minutes
}
