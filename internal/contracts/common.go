package contracts

import "time"

// Meta adds cross-cutting headers all messages may carry.
type Meta struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // links a realtime alert to its durable record
	Producer      string    `json:"producer,omitempty"`       // producer service name, e.g. "beacon-service"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

// LocationPayload is the location shape carried over the realtime channel.
type LocationPayload struct {
	UserID         string    `json:"user_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// EmergencyPayload is the emergency event shape carried over the realtime
// channel. A corresponding durable emergency request is created separately
// through the HTTP API; CorrelationID in Meta ties the two together.
type EmergencyPayload struct {
	UserID      string          `json:"user_id"`
	Location    LocationPayload `json:"location"`
	Description string          `json:"description,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Meta
}
