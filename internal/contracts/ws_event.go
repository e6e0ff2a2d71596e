package contracts

import "encoding/json"

// EventType tags a realtime envelope. Clients send the inbound types; the
// relay rebroadcasts them under the outbound types.
type EventType string

const (
	// Client -> server
	EventEmergency      EventType = "emergency"
	EventLocationUpdate EventType = "location_update"

	// Server -> client broadcast
	EventEmergencyAlert  EventType = "emergency_alert"
	EventLocationUpdated EventType = "location_updated"

	// Server -> client direct
	EventConnection EventType = "connection"
	EventError      EventType = "error"
)

// WSEnvelope is the typed message wrapper exchanged over the realtime
// channel. Data is left raw so each listener decodes only the payloads it
// cares about.
type WSEnvelope struct {
	Type    EventType       `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"` // connection/error envelopes only
}

// NewEnvelope marshals payload into a WSEnvelope of the given type.
func NewEnvelope(typ EventType, payload any) (WSEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return WSEnvelope{}, err
	}
	return WSEnvelope{Type: typ, Data: raw}, nil
}
