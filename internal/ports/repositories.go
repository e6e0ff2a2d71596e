package ports

import (
	"context"

	"meditrack/internal/domain/contact"
	"meditrack/internal/domain/emergency"
	"meditrack/internal/domain/facility"
	"meditrack/internal/domain/user"
)

// UnitOfWork manages transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository defines the methods for managing user data.
type UserRepository interface {
	CreateUser(ctx context.Context, usr *user.User) error
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByUsername(ctx context.Context, username string) (*user.User, error)
	UpdateProfile(ctx context.Context, usr *user.User) error
}

// ContactRepository defines the methods for managing emergency contacts.
type ContactRepository interface {
	Create(ctx context.Context, cnt *contact.Contact) error
	GetByID(ctx context.Context, id string) (*contact.Contact, error)
	ListForUser(ctx context.Context, userID string) ([]*contact.Contact, error)
	Update(ctx context.Context, cnt *contact.Contact) error
	Delete(ctx context.Context, id string) error
}

// FacilityRepository defines the methods for managing medical facilities.
type FacilityRepository interface {
	Create(ctx context.Context, fac *facility.Facility) error
	GetByID(ctx context.Context, id string) (*facility.Facility, error)
	List(ctx context.Context) ([]*facility.Facility, error)
	Update(ctx context.Context, fac *facility.Facility) error
	Delete(ctx context.Context, id string) error
}

// EmergencyRepository defines the methods for managing emergency requests.
type EmergencyRepository interface {
	Create(ctx context.Context, req *emergency.Request) error
	GetByID(ctx context.Context, id string) (*emergency.Request, error)
	ListAll(ctx context.Context) ([]*emergency.Request, error)
	ListForUser(ctx context.Context, userID string) ([]*emergency.Request, error)
	Update(ctx context.Context, req *emergency.Request) error
	Delete(ctx context.Context, id string) error
}
