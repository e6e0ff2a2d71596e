package contact

import (
	"errors"
	"strings"
	"time"
)

// Contact is an emergency contact of a user, corresponding to the
// `emergency_contacts` table.
type Contact struct {
	ID           string
	CreatedAt    time.Time
	UserID       string
	Name         string
	Phone        string
	Relationship string
}

var (
	ErrEmptyUserID = errors.New("user_id cannot be empty")
	ErrEmptyName   = errors.New("contact name cannot be empty")
	ErrEmptyPhone  = errors.New("contact phone cannot be empty")
)

// NewContact constructs a validated Contact entity.
func NewContact(userID, name, phone, relationship string) (*Contact, error) {
	cnt := &Contact{
		CreatedAt:    time.Now().UTC(),
		UserID:       strings.TrimSpace(userID),
		Name:         strings.TrimSpace(name),
		Phone:        strings.TrimSpace(phone),
		Relationship: strings.TrimSpace(relationship),
	}
	if err := cnt.Validate(); err != nil {
		return nil, err
	}
	return cnt, nil
}

// Validate checks invariants of the Contact entity.
func (cnt *Contact) Validate() error {
	if cnt.UserID == "" {
		return ErrEmptyUserID
	}
	if cnt.Name == "" {
		return ErrEmptyName
	}
	if cnt.Phone == "" {
		return ErrEmptyPhone
	}
	return nil
}
