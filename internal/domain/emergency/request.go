package emergency

import (
	"errors"
	"strings"
	"time"

	"meditrack/internal/domain/geo"
)

// Request is the durable record of an emergency, corresponding to the
// `emergency_requests` table. The realtime alert that announced it is
// ephemeral; the two are linked by CorrelationID.
type Request struct {
	ID                string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	UserID            string
	Status            Status
	Latitude          float64
	Longitude         float64
	Description       string
	CorrelationID     string
	MedicalFacilityID string // empty until a facility is assigned
	AssignedResponder string // empty until a responder is assigned
}

var (
	ErrEmptyUserID       = errors.New("user_id cannot be empty")
	ErrBadTransition     = errors.New("status transition not allowed")
	ErrTerminalRequest   = errors.New("request is already in a terminal state")
	ErrBadRequestLatLng  = errors.New("request location is invalid")
	ErrBadTimestampOrder = errors.New("updated_at cannot be before created_at")
)

// NewRequest constructs a pending emergency request at the given location.
func NewRequest(userID string, latitude, longitude float64, description, correlationID string) (*Request, error) {
	now := time.Now().UTC()
	req := &Request{
		CreatedAt:     now,
		UpdatedAt:     now,
		UserID:        strings.TrimSpace(userID),
		Status:        StatusPending,
		Latitude:      latitude,
		Longitude:     longitude,
		Description:   strings.TrimSpace(description),
		CorrelationID: strings.TrimSpace(correlationID),
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// Validate checks invariants of the Request entity.
func (req *Request) Validate() error {
	if req.UserID == "" {
		return ErrEmptyUserID
	}
	if !req.Status.Valid() {
		return ErrInvalidStatus
	}
	if req.Latitude < -90 || req.Latitude > 90 {
		return geo.ErrInvalidLatitude
	}
	if req.Longitude < -180 || req.Longitude > 180 {
		return geo.ErrInvalidLongitude
	}
	if !req.CreatedAt.IsZero() && !req.UpdatedAt.IsZero() && req.UpdatedAt.Before(req.CreatedAt) {
		return ErrBadTimestampOrder
	}
	return nil
}

// Transition moves the request to the next status, enforcing the lifecycle.
func (req *Request) Transition(next Status) error {
	if req.Status.Terminal() {
		return ErrTerminalRequest
	}
	if !req.Status.CanTransitionTo(next) {
		return ErrBadTransition
	}
	req.Status = next
	req.touch()
	return nil
}

// Assign records the responder and facility handling the request.
func (req *Request) Assign(responderID, facilityID string) {
	if responderID != "" {
		req.AssignedResponder = responderID
	}
	if facilityID != "" {
		req.MedicalFacilityID = facilityID
	}
	req.touch()
}

// touch sets UpdatedAt to now (UTC).
func (req *Request) touch() {
	req.UpdatedAt = time.Now().UTC()
}
