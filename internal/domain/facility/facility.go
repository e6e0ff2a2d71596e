package facility

import (
	"errors"
	"strings"
	"time"

	"meditrack/internal/domain/geo"
)

// Type classifies a medical facility.
type Type string

const (
	TypeHospital Type = "hospital"
	TypeClinic   Type = "clinic"
	TypePharmacy Type = "pharmacy"
)

var ErrInvalidType = errors.New("invalid facility type")

// ParseType normalizes and validates a facility type string.
func ParseType(s string) (Type, error) {
	typ := Type(strings.ToLower(strings.TrimSpace(s)))
	switch typ {
	case TypeHospital, TypeClinic, TypePharmacy:
		return typ, nil
	default:
		return "", ErrInvalidType
	}
}

// String returns the string representation of the Type.
func (typ Type) String() string { return string(typ) }

// Facility is the domain entity corresponding to the `medical_facilities`
// table.
type Facility struct {
	ID           string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Name         string
	Type         Type
	Address      string
	Phone        string
	Latitude     float64
	Longitude    float64
	OpeningHours string
}

var ErrEmptyFacilityName = errors.New("facility name cannot be empty")

// NewFacility constructs a validated Facility entity.
func NewFacility(name string, typ Type, address, phone string, latitude, longitude float64, openingHours string) (*Facility, error) {
	now := time.Now().UTC()
	fac := &Facility{
		CreatedAt:    now,
		UpdatedAt:    now,
		Name:         strings.TrimSpace(name),
		Type:         typ,
		Address:      strings.TrimSpace(address),
		Phone:        strings.TrimSpace(phone),
		Latitude:     latitude,
		Longitude:    longitude,
		OpeningHours: strings.TrimSpace(openingHours),
	}
	if err := fac.Validate(); err != nil {
		return nil, err
	}
	return fac, nil
}

// Validate checks invariants of the Facility entity.
func (fac *Facility) Validate() error {
	if fac.Name == "" {
		return ErrEmptyFacilityName
	}
	if _, err := ParseType(fac.Type.String()); err != nil {
		return err
	}
	if fac.Latitude < -90 || fac.Latitude > 90 {
		return geo.ErrInvalidLatitude
	}
	if fac.Longitude < -180 || fac.Longitude > 180 {
		return geo.ErrInvalidLongitude
	}
	return nil
}

// DistanceKM returns the straight-line distance from the given point.
func (fac *Facility) DistanceKM(lat, lng float64) float64 {
	return geo.HaversineKM(lat, lng, fac.Latitude, fac.Longitude)
}
