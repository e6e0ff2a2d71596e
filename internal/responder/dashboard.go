package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"meditrack/internal/apiclient"
	"meditrack/internal/contracts"
	"meditrack/internal/logger"
	"meditrack/internal/realtime"
)

// Channel is the realtime subscription surface the dashboard consumes.
type Channel interface {
	Connect(ctx context.Context) error
	Disconnect()
	Subscribe(typ contracts.EventType, fn realtime.ListenerFunc) *realtime.Subscription
}

// Fetcher re-fetches the durable emergency-request list. Realtime messages
// only trigger the fetch; they are never the source of truth.
type Fetcher interface {
	ListEmergencyRequests(ctx context.Context) ([]apiclient.EmergencyRecord, error)
}

// Notification is one operator-visible alert line.
type Notification struct {
	Message    string
	UserID     string
	ReceivedAt time.Time
}

// Dashboard keeps the responder view current: live alerts raise a
// notification and refresh the stored request list, live locations update
// the per-user position map.
type Dashboard struct {
	channel Channel
	fetcher Fetcher
	log     *logger.Logger

	mu            sync.Mutex
	requests      []apiclient.EmergencyRecord
	locations     map[string]contracts.LocationPayload
	notifications []Notification
	newEmergency  bool
	subs          []*realtime.Subscription
	started       bool
}

// NewDashboard wires the consumer; Start attaches it to the channel.
func NewDashboard(channel Channel, fetcher Fetcher, log *logger.Logger) *Dashboard {
	if log == nil {
		log = logger.New("responder")
	}
	return &Dashboard{
		channel:   channel,
		fetcher:   fetcher,
		log:       log,
		locations: make(map[string]contracts.LocationPayload),
	}
}

// Start connects, subscribes to the alert and location streams, and primes
// the request list from the durable store.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.mu.Unlock()

	if err := d.channel.Connect(ctx); err != nil {
		return fmt.Errorf("responder: connect realtime channel: %w", err)
	}

	subAlert := d.channel.Subscribe(contracts.EventEmergencyAlert, d.onEmergencyAlert)
	subLoc := d.channel.Subscribe(contracts.EventLocationUpdated, d.onLocationUpdated)

	d.mu.Lock()
	d.subs = append(d.subs, subAlert, subLoc)
	d.mu.Unlock()

	if err := d.Refresh(ctx); err != nil {
		// the dashboard still works live; the list fills in on the next alert
		d.log.Error(ctx, "initial_fetch_failed", "Failed to prime emergency-request list", err, nil)
	}
	return nil
}

// Stop unsubscribes everything and disconnects the channel.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	subs := d.subs
	d.subs = nil
	d.started = false
	d.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	d.channel.Disconnect()
}

// Refresh reloads the durable emergency-request list.
func (d *Dashboard) Refresh(ctx context.Context) error {
	recs, err := d.fetcher.ListEmergencyRequests(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.requests = recs
	d.mu.Unlock()
	return nil
}

// Requests returns the last fetched durable request list.
func (d *Dashboard) Requests() []apiclient.EmergencyRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]apiclient.EmergencyRecord, len(d.requests))
	copy(out, d.requests)
	return out
}

// Notifications returns the alert lines raised so far.
func (d *Dashboard) Notifications() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Notification, len(d.notifications))
	copy(out, d.notifications)
	return out
}

// HasNewEmergency reports the new-emergency indicator.
func (d *Dashboard) HasNewEmergency() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newEmergency
}

// AcknowledgeNewEmergency clears the indicator.
func (d *Dashboard) AcknowledgeNewEmergency() {
	d.mu.Lock()
	d.newEmergency = false
	d.mu.Unlock()
}

// LastLocation returns the latest live position reported for a user.
func (d *Dashboard) LastLocation(userID string) (contracts.LocationPayload, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	loc, ok := d.locations[userID]
	return loc, ok
}

func (d *Dashboard) onEmergencyAlert(data json.RawMessage) {
	var alert contracts.EmergencyPayload
	if err := json.Unmarshal(data, &alert); err != nil {
		d.log.Error(context.Background(), "alert_decode_failed", "Dropping undecodable emergency alert", err, nil)
		return
	}

	msg := "Emergency alert received"
	if alert.Description != "" {
		msg = "Emergency alert: " + alert.Description
	}

	d.mu.Lock()
	d.notifications = append(d.notifications, Notification{
		Message:    msg,
		UserID:     alert.UserID,
		ReceivedAt: time.Now().UTC(),
	})
	d.newEmergency = true
	d.mu.Unlock()

	ctx := d.log.WithRequestID(context.Background(), alert.CorrelationID)
	d.log.Info(ctx, "emergency_alert_received", msg, map[string]any{"user_id": alert.UserID})

	if err := d.Refresh(ctx); err != nil {
		d.log.Error(ctx, "alert_refetch_failed", "Failed to re-fetch emergency requests after alert", err, nil)
	}
}

func (d *Dashboard) onLocationUpdated(data json.RawMessage) {
	var loc contracts.LocationPayload
	if err := json.Unmarshal(data, &loc); err != nil {
		d.log.Error(context.Background(), "location_decode_failed", "Dropping undecodable location update", err, nil)
		return
	}
	if loc.UserID == "" {
		return
	}

	d.mu.Lock()
	d.locations[loc.UserID] = loc
	d.mu.Unlock()
}
