package geo

import (
	"errors"
	"time"
)

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
	ErrZeroTimestamp    = errors.New("fix timestamp cannot be zero")
)

// Fix is a single geolocation reading: where the device was and how sure we
// are about it.
type Fix struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewFix constructs a validated Fix captured at the given time.
func NewFix(latitude, longitude, accuracyMeters float64, capturedAt time.Time) (Fix, error) {
	fix := Fix{
		Latitude:       latitude,
		Longitude:      longitude,
		AccuracyMeters: accuracyMeters,
		Timestamp:      capturedAt.UTC(),
	}
	if err := fix.Validate(); err != nil {
		return Fix{}, err
	}
	return fix, nil
}

// Validate checks coordinate ranges and the capture time.
func (fix Fix) Validate() error {
	if fix.Latitude < -90 || fix.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if fix.Longitude < -180 || fix.Longitude > 180 {
		return ErrInvalidLongitude
	}
	if fix.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	return nil
}

// Age reports how old the fix is relative to now.
func (fix Fix) Age(now time.Time) time.Duration {
	return now.Sub(fix.Timestamp)
}

// FresherThan reports whether the fix was captured within the given window.
func (fix Fix) FresherThan(now time.Time, window time.Duration) bool {
	return fix.Age(now) <= window
}
