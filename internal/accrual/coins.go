package accrual

import (
	"math"
	"time"
)

// floatSlack absorbs binary float noise such as 300 * 0.1 = 30.000000000000004
// or 100 * 0.29 = 28.999999999999996 before flooring.
const floatSlack = 1e-9

// Coins converts a duration into currency: floor(seconds * rate), then
// floor(raw * multiplier). Invalid multipliers count as 1.0.
func Coins(d time.Duration, rate, multiplier float64) int64 {
	if d <= 0 || rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}
	raw := math.Floor(d.Seconds()*rate + floatSlack)
	return int64(math.Floor(raw*sanitizeMultiplier(multiplier) + floatSlack))
}

func sanitizeMultiplier(m float64) float64 {
	if math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
		return 1.0
	}
	return m
}
