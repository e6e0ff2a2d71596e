package ports

import (
	"context"
	"time"

	"meditrack/internal/domain/contact"
	"meditrack/internal/domain/emergency"
	"meditrack/internal/domain/facility"
	"meditrack/internal/domain/user"
)

// ----- Auth -----

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Name     string
	Phone    string
	Role     user.Role
	Medical  user.MedicalProfile
}

type AuthResult struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService registers and authenticates users.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, username, password string) (*AuthResult, error)
}

// ----- Profile -----

// ProfileService reads and updates the caller's medical profile.
type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (*user.User, error)
	UpdateProfile(ctx context.Context, userID, name, phone string, medical user.MedicalProfile) (*user.User, error)
}

// ----- Contacts -----

type ContactInput struct {
	Name         string
	Phone        string
	Relationship string
}

// ContactService manages a user's emergency contacts.
type ContactService interface {
	AddContact(ctx context.Context, userID string, in ContactInput) (*contact.Contact, error)
	ListContacts(ctx context.Context, userID string) ([]*contact.Contact, error)
	UpdateContact(ctx context.Context, userID, contactID string, in ContactInput) (*contact.Contact, error)
	RemoveContact(ctx context.Context, userID, contactID string) error
}

// ----- Facilities -----

type FacilityInput struct {
	Name         string
	Type         facility.Type
	Address      string
	Phone        string
	Latitude     float64
	Longitude    float64
	OpeningHours string
}

// NearbyFacility pairs a facility with its distance from the query point.
type NearbyFacility struct {
	Facility   *facility.Facility
	DistanceKM float64
}

// FacilityService manages medical facilities and nearby lookups.
type FacilityService interface {
	CreateFacility(ctx context.Context, in FacilityInput) (*facility.Facility, error)
	GetFacility(ctx context.Context, id string) (*facility.Facility, error)
	ListFacilities(ctx context.Context) ([]*facility.Facility, error)
	FindNearby(ctx context.Context, lat, lng, radiusKM float64) ([]NearbyFacility, error)
	UpdateFacility(ctx context.Context, id string, in FacilityInput) (*facility.Facility, error)
	DeleteFacility(ctx context.Context, id string) error
}

// ----- Emergency requests -----

type CreateEmergencyInput struct {
	UserID        string
	Latitude      float64
	Longitude     float64
	Description   string
	CorrelationID string
}

type UpdateEmergencyInput struct {
	Status            *emergency.Status // nil means unchanged
	Description       *string
	MedicalFacilityID *string
	AssignedResponder *string
}

// EmergencyService manages durable emergency requests. Status changes
// publish a notification event for the notifier service.
type EmergencyService interface {
	CreateRequest(ctx context.Context, in CreateEmergencyInput) (*emergency.Request, error)
	GetRequest(ctx context.Context, callerID string, isAdmin bool, id string) (*emergency.Request, error)
	ListRequests(ctx context.Context, callerID string, isAdmin bool) ([]*emergency.Request, error)
	UpdateRequest(ctx context.Context, callerID string, isAdmin bool, id string, in UpdateEmergencyInput) (*emergency.Request, error)
	DeleteRequest(ctx context.Context, callerID string, isAdmin bool, id string) error
}
