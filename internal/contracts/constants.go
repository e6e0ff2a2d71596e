package contracts

// Exchanges
const (
	ExchangeEmergencyTopic = "emergency_topic"
)

// Queues
const (
	QueueEmergencyNotifications = "emergency_notifications"
)

// Routing patterns
const (
	RouteEmergencyStatusPrefix = "emergency.status." // {status}
)

// StatusChangedMessage is published on ExchangeEmergencyTopic whenever an
// emergency request changes status. The notifier service consumes it and
// emails the requester.
type StatusChangedMessage struct {
	RequestID    string `json:"request_id"`
	UserID       string `json:"user_id"`
	Status       string `json:"status"`
	Description  string `json:"description,omitempty"`
	FacilityName string `json:"facility_name,omitempty"`
	Meta
}
