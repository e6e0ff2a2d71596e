package geolocate

import (
	"context"
	"sync"
	"time"

	"meditrack/internal/domain/geo"
)

// staticAccuracyMeters marks static fixes as coarse: the position is
// configured, not measured.
const staticAccuracyMeters = 1000

// staticWatchInterval is how often a static watch re-emits its position.
const staticWatchInterval = 30 * time.Second

// StaticSource reports a fixed position, for deployments without a receiver
// (a wall-mounted panic button knows where it is installed).
type StaticSource struct {
	Latitude  float64
	Longitude float64
}

func (s StaticSource) fix() (geo.Fix, error) {
	return geo.NewFix(s.Latitude, s.Longitude, staticAccuracyMeters, time.Now())
}

func (s StaticSource) Current(context.Context, RequestOptions) (geo.Fix, error) {
	return s.fix()
}

func (s StaticSource) Watch(context.Context, RequestOptions) (<-chan geo.Fix, func(), error) {
	first, err := s.fix()
	if err != nil {
		return nil, nil, ErrPositionUnavailable
	}

	fixes := make(chan geo.Fix, 1)
	fixes <- first
	done := make(chan struct{})

	go func() {
		defer close(fixes)
		ticker := time.NewTicker(staticWatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fix, err := s.fix()
				if err != nil {
					continue
				}
				select {
				case fixes <- fix:
				default:
				}
			}
		}
	}()

	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(done) }) }
	return fixes, stop, nil
}
