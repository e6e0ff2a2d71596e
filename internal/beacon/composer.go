package beacon

import (
	"context"
	"errors"
	"sync"
	"time"

	"meditrack/internal/apiclient"
	"meditrack/internal/contracts"
	"meditrack/internal/domain/geo"
	"meditrack/internal/logger"

	"github.com/google/uuid"
)

// Precondition failures, checked in this order.
var (
	ErrNoIdentity  = errors.New("beacon: no authenticated identity")
	ErrNoFix       = errors.New("beacon: no location fix available")
	ErrAlreadySent = errors.New("beacon: emergency alert already sent this session")
)

// Channel is the realtime side of an alert dispatch.
type Channel interface {
	SendLocationUpdate(ctx context.Context, loc contracts.LocationPayload) error
	SendEmergency(ctx context.Context, alert contracts.EmergencyPayload) error
}

// Recorder is the durable side: creating the emergency request record.
type Recorder interface {
	CreateEmergencyRequest(ctx context.Context, in apiclient.CreateEmergencyInput) (*apiclient.EmergencyRecord, error)
}

// Locator supplies the current best-known fix.
type Locator interface {
	Current() (geo.Fix, bool)
}

// Result reports the two independent effects of a dispatched alert. The
// realtime broadcast and the durable write are deliberately not transactional:
// either may fail while the other succeeds, and both outcomes are surfaced.
type Result struct {
	CorrelationID string
	RequestID     string // durable record id, empty when the write failed
	RealtimeErr   error
	DurableErr    error
}

// Composer assembles and dispatches an emergency alert at most once per
// session.
type Composer struct {
	channel  Channel
	recorder Recorder
	locator  Locator
	log      *logger.Logger
	newID    func() string

	mu     sync.Mutex
	userID string
	sent   bool
}

// NewComposer wires the composer. The identity is set later, after login.
func NewComposer(channel Channel, recorder Recorder, locator Locator, log *logger.Logger) *Composer {
	if log == nil {
		log = logger.New("beacon")
	}
	return &Composer{
		channel:  channel,
		recorder: recorder,
		locator:  locator,
		log:      log,
		newID:    uuid.NewString,
	}
}

// SetIdentity records the authenticated user on whose behalf alerts go out.
func (c *Composer) SetIdentity(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// Reset clears the sent guard, starting a new session.
func (c *Composer) Reset() {
	c.mu.Lock()
	c.sent = false
	c.mu.Unlock()
}

// AlertSent reports whether this session already dispatched an alert.
func (c *Composer) AlertSent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// SendEmergencyAlert checks the preconditions, then fires both effects: a
// location_update plus emergency envelope over the channel, and a durable
// POST with status pending. The sent guard is set before dispatch and stays
// set regardless of how the effects turn out.
func (c *Composer) SendEmergencyAlert(ctx context.Context, description string) (Result, error) {
	c.mu.Lock()
	if c.userID == "" {
		c.mu.Unlock()
		return Result{}, ErrNoIdentity
	}
	userID := c.userID

	fix, ok := c.locator.Current()
	if !ok {
		c.mu.Unlock()
		return Result{}, ErrNoFix
	}

	if c.sent {
		c.mu.Unlock()
		return Result{}, ErrAlreadySent
	}
	c.sent = true
	c.mu.Unlock()

	correlationID := c.newID()
	ctx = c.log.WithRequestID(ctx, correlationID)
	now := time.Now().UTC()

	loc := contracts.LocationPayload{
		UserID:         userID,
		Latitude:       fix.Latitude,
		Longitude:      fix.Longitude,
		AccuracyMeters: fix.AccuracyMeters,
		Timestamp:      fix.Timestamp,
	}

	res := Result{CorrelationID: correlationID}

	// realtime leg
	if err := c.channel.SendLocationUpdate(ctx, loc); err != nil {
		res.RealtimeErr = err
	} else if err := c.channel.SendEmergency(ctx, contracts.EmergencyPayload{
		UserID:      userID,
		Location:    loc,
		Description: description,
		Timestamp:   now,
		Meta: contracts.Meta{
			CorrelationID: correlationID,
			Producer:      "beacon-service",
			SentAt:        now,
		},
	}); err != nil {
		res.RealtimeErr = err
	}

	// durable leg, independent of the realtime outcome
	rec, err := c.recorder.CreateEmergencyRequest(ctx, apiclient.CreateEmergencyInput{
		Latitude:      fix.Latitude,
		Longitude:     fix.Longitude,
		Description:   description,
		CorrelationID: correlationID,
	})
	if err != nil {
		res.DurableErr = err
	} else {
		res.RequestID = rec.ID
	}

	switch {
	case res.RealtimeErr != nil && res.DurableErr != nil:
		c.log.Error(ctx, "alert_dispatch_failed", "Both alert legs failed", errors.Join(res.RealtimeErr, res.DurableErr), nil)
	case res.RealtimeErr != nil:
		c.log.Error(ctx, "alert_realtime_failed", "Durable record created but realtime broadcast failed", res.RealtimeErr,
			map[string]any{"request_id": res.RequestID})
	case res.DurableErr != nil:
		c.log.Error(ctx, "alert_record_failed", "Realtime broadcast sent but durable write failed", res.DurableErr, nil)
	default:
		c.log.Info(ctx, "alert_dispatched", "Emergency alert dispatched",
			map[string]any{"request_id": res.RequestID, "correlation_id": correlationID})
	}

	return res, nil
}
