package service

import (
	"errors"

	"meditrack/internal/jwt"
	"meditrack/internal/logger"
	"meditrack/internal/ports"
)

// Shared service-level sentinel errors.
var (
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactiveAccount    = errors.New("account is not active")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrForbidden          = errors.New("operation not permitted for this user")
	ErrNotFound           = errors.New("record not found")
)

// Publisher is the messaging side the service publishes status events to.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// Service implements the emergency-service application logic: auth, medical
// profiles, emergency contacts, facilities and durable emergency requests.
type Service struct {
	uow         ports.UnitOfWork
	users       ports.UserRepository
	contacts    ports.ContactRepository
	facilities  ports.FacilityRepository
	emergencies ports.EmergencyRepository
	tokens      *jwt.Manager
	publisher   Publisher
	logger      *logger.Logger
}

// New wires the emergency service. publisher may be nil; status changes then
// skip the notification event.
func New(
	uow ports.UnitOfWork,
	users ports.UserRepository,
	contacts ports.ContactRepository,
	facilities ports.FacilityRepository,
	emergencies ports.EmergencyRepository,
	tokens *jwt.Manager,
	publisher Publisher,
	log *logger.Logger,
) *Service {
	return &Service{
		uow:         uow,
		users:       users,
		contacts:    contacts,
		facilities:  facilities,
		emergencies: emergencies,
		tokens:      tokens,
		publisher:   publisher,
		logger:      log,
	}
}

// compile-time interface checks
var (
	_ ports.AuthService      = (*Service)(nil)
	_ ports.ProfileService   = (*Service)(nil)
	_ ports.ContactService   = (*Service)(nil)
	_ ports.FacilityService  = (*Service)(nil)
	_ ports.EmergencyService = (*Service)(nil)
)
