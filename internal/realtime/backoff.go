package realtime

import (
	"math"
	"time"
)

// reconnectDelay computes the wait before reconnect attempt number `attempt`
// (zero-based): base * growth^attempt, capped at max.
func reconnectDelay(base time.Duration, growth float64, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := time.Duration(float64(base) * math.Pow(growth, float64(attempt)))
	if d > max || d < 0 {
		return max
	}
	return d
}
