package user

import (
	"errors"
	"strings"
	"time"
)

// MedicalProfile holds the medical details shown to responders during an
// emergency. All fields are free text provided by the patient.
type MedicalProfile struct {
	BloodType         string `json:"blood_type,omitempty"`
	Allergies         string `json:"allergies,omitempty"`
	MedicalConditions string `json:"medical_conditions,omitempty"`
	Weight            string `json:"weight,omitempty"`
	BloodPressure     string `json:"blood_pressure,omitempty"`
}

// User is the domain entity corresponding to the `users` table.
type User struct {
	ID           string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Username     string
	Email        string
	Name         string
	Phone        string
	Role         Role
	Status       Status
	PasswordHash string
	Medical      MedicalProfile
}

var (
	ErrEmptyUsername     = errors.New("username cannot be empty")
	ErrShortUsername     = errors.New("username must be at least 3 characters")
	ErrEmptyName         = errors.New("name cannot be empty")
	ErrInvalidEmail      = errors.New("email address is not valid")
	ErrEmptyPasswordHash = errors.New("password hash cannot be empty")
	ErrBadTimestamps     = errors.New("updated_at cannot be before created_at")
)

// NewUser constructs a new User entity. The caller provides an
// already-hashed password.
func NewUser(username, email, name string, role Role, passwordHash string) (*User, error) {
	now := time.Now().UTC()
	usr := &User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Username:     strings.TrimSpace(username),
		Email:        strings.TrimSpace(email),
		Name:         strings.TrimSpace(name),
		Role:         role,
		Status:       StatusActive,
		PasswordHash: strings.TrimSpace(passwordHash),
	}
	if err := usr.Validate(); err != nil {
		return nil, err
	}
	return usr, nil
}

// Validate checks invariants of the User entity.
func (usr *User) Validate() error {
	if usr.Username == "" {
		return ErrEmptyUsername
	}
	if len(usr.Username) < 3 {
		return ErrShortUsername
	}
	if usr.Email == "" || !strings.Contains(usr.Email, "@") {
		return ErrInvalidEmail
	}
	if usr.Name == "" {
		return ErrEmptyName
	}
	if !usr.Role.Valid() {
		return ErrInvalidRole
	}
	if !usr.Status.Valid() {
		return ErrInvalidStatus
	}
	if usr.PasswordHash == "" {
		return ErrEmptyPasswordHash
	}
	if !usr.CreatedAt.IsZero() && !usr.UpdatedAt.IsZero() && usr.UpdatedAt.Before(usr.CreatedAt) {
		return ErrBadTimestamps
	}
	return nil
}

// UpdateMedical replaces the medical profile and touches UpdatedAt.
func (usr *User) UpdateMedical(profile MedicalProfile) {
	usr.Medical = profile
	usr.touch()
}

// SetStatus transitions the account status. Updates UpdatedAt timestamp.
func (usr *User) SetStatus(status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	usr.Status = status
	usr.touch()
	return nil
}

// touch sets UpdatedAt to now (UTC).
func (usr *User) touch() {
	usr.UpdatedAt = time.Now().UTC()
}

// Convenience helpers.
func (usr *User) IsActive() bool { return usr.Status.IsActive() }
func (usr *User) IsAdmin() bool  { return usr.Role.IsAdmin() }
