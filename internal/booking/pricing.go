package booking

import (
	"math"
	"strings"
)

var vehicleMultipliers = map[string]float64{
	"motorcycle": 0.6,
	"hatchback":  0.9,
	"sedan":      1.0,
	"coupe":      1.0,
	"suv":        1.3,
	"van":        1.4,
	"truck":      1.5,
}

// Multiplier returns the price factor for a vehicle type. Unknown types price as a sedan.
func Multiplier(vehicleType string) float64 {
	if m, ok := vehicleMultipliers[strings.ToLower(strings.TrimSpace(vehicleType))]; ok {
		return m
	}
	return 1.0
}

// FinalPrice is round(basePrice × multiplier).
func FinalPrice(basePrice float64, vehicleType string) float64 {
	return math.Round(basePrice * Multiplier(vehicleType))
}
