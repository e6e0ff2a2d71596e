package beacon

import (
	"context"
	"errors"
	"testing"
	"time"

	"meditrack/internal/apiclient"
	"meditrack/internal/contracts"
	"meditrack/internal/domain/geo"
)

type fakeChannel struct {
	locations   []contracts.LocationPayload
	emergencies []contracts.EmergencyPayload
	sendErr     error
}

func (f *fakeChannel) SendLocationUpdate(_ context.Context, loc contracts.LocationPayload) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.locations = append(f.locations, loc)
	return nil
}

func (f *fakeChannel) SendEmergency(_ context.Context, alert contracts.EmergencyPayload) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.emergencies = append(f.emergencies, alert)
	return nil
}

type fakeRecorder struct {
	inputs    []apiclient.CreateEmergencyInput
	createErr error
}

func (f *fakeRecorder) CreateEmergencyRequest(_ context.Context, in apiclient.CreateEmergencyInput) (*apiclient.EmergencyRecord, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.inputs = append(f.inputs, in)
	return &apiclient.EmergencyRecord{ID: "req-1", Status: "pending"}, nil
}

type fakeLocator struct {
	fix geo.Fix
	ok  bool
}

func (f fakeLocator) Current() (geo.Fix, bool) { return f.fix, f.ok }

func validLocator(t *testing.T) fakeLocator {
	t.Helper()
	fix, err := geo.NewFix(48.2, 16.37, 20, time.Now())
	if err != nil {
		t.Fatalf("build fix: %v", err)
	}
	return fakeLocator{fix: fix, ok: true}
}

func TestSendEmergencyAlertDispatchesBothLegsOnce(t *testing.T) {
	ch := &fakeChannel{}
	rec := &fakeRecorder{}
	c := NewComposer(ch, rec, validLocator(t), nil)
	c.SetIdentity("user-9")

	res, err := c.SendEmergencyAlert(context.Background(), "fall detected")
	if err != nil {
		t.Fatalf("SendEmergencyAlert: %v", err)
	}
	if res.CorrelationID == "" {
		t.Error("no correlation id minted")
	}
	if res.RequestID != "req-1" {
		t.Errorf("request id = %q, want req-1", res.RequestID)
	}
	if res.RealtimeErr != nil || res.DurableErr != nil {
		t.Errorf("unexpected effect errors: %v / %v", res.RealtimeErr, res.DurableErr)
	}

	if len(ch.locations) != 1 || len(ch.emergencies) != 1 {
		t.Fatalf("channel sends = %d location / %d emergency, want 1/1", len(ch.locations), len(ch.emergencies))
	}
	if len(rec.inputs) != 1 {
		t.Fatalf("durable creates = %d, want 1", len(rec.inputs))
	}

	// correlation id threads through both legs
	if got := ch.emergencies[0].CorrelationID; got != res.CorrelationID {
		t.Errorf("wire correlation id = %q, want %q", got, res.CorrelationID)
	}
	if got := rec.inputs[0].CorrelationID; got != res.CorrelationID {
		t.Errorf("durable correlation id = %q, want %q", got, res.CorrelationID)
	}
	if ch.emergencies[0].UserID != "user-9" {
		t.Errorf("alert user = %q, want user-9", ch.emergencies[0].UserID)
	}

	// second call is a no-op that reports the guard
	if _, err := c.SendEmergencyAlert(context.Background(), "again"); !errors.Is(err, ErrAlreadySent) {
		t.Fatalf("second call err = %v, want ErrAlreadySent", err)
	}
	if len(ch.emergencies) != 1 || len(rec.inputs) != 1 {
		t.Errorf("guard leaked a duplicate dispatch: %d emergencies, %d creates", len(ch.emergencies), len(rec.inputs))
	}
}

func TestPreconditionsCheckedInOrder(t *testing.T) {
	ch := &fakeChannel{}
	rec := &fakeRecorder{}

	// identity missing wins even when the fix is also missing
	c := NewComposer(ch, rec, fakeLocator{}, nil)
	if _, err := c.SendEmergencyAlert(context.Background(), ""); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("err = %v, want ErrNoIdentity", err)
	}

	// identity present, fix missing
	c.SetIdentity("user-9")
	if _, err := c.SendEmergencyAlert(context.Background(), ""); !errors.Is(err, ErrNoFix) {
		t.Fatalf("err = %v, want ErrNoFix", err)
	}

	// a failed precondition never sets the guard
	if c.AlertSent() {
		t.Error("guard set by a failed precondition")
	}
	if len(ch.emergencies) != 0 || len(rec.inputs) != 0 {
		t.Error("failed preconditions must not dispatch anything")
	}
}

func TestDurableWriteProceedsWhenRealtimeFails(t *testing.T) {
	ch := &fakeChannel{sendErr: errors.New("socket closed")}
	rec := &fakeRecorder{}
	c := NewComposer(ch, rec, validLocator(t), nil)
	c.SetIdentity("user-9")

	res, err := c.SendEmergencyAlert(context.Background(), "")
	if err != nil {
		t.Fatalf("SendEmergencyAlert: %v", err)
	}
	if res.RealtimeErr == nil {
		t.Error("realtime failure not surfaced")
	}
	if res.DurableErr != nil {
		t.Errorf("durable leg failed unexpectedly: %v", res.DurableErr)
	}
	if len(rec.inputs) != 1 {
		t.Fatalf("durable creates = %d, want 1 despite the realtime failure", len(rec.inputs))
	}
	if !c.AlertSent() {
		t.Error("guard must stay set even when an effect fails")
	}
}

func TestRealtimeProceedsWhenDurableWriteFails(t *testing.T) {
	ch := &fakeChannel{}
	rec := &fakeRecorder{createErr: errors.New("api down")}
	c := NewComposer(ch, rec, validLocator(t), nil)
	c.SetIdentity("user-9")

	res, err := c.SendEmergencyAlert(context.Background(), "")
	if err != nil {
		t.Fatalf("SendEmergencyAlert: %v", err)
	}
	if res.DurableErr == nil {
		t.Error("durable failure not surfaced")
	}
	if len(ch.emergencies) != 1 {
		t.Fatalf("emergency envelopes = %d, want 1 despite the durable failure", len(ch.emergencies))
	}
	if res.RequestID != "" {
		t.Errorf("request id = %q, want empty on durable failure", res.RequestID)
	}
}

func TestResetAllowsNewSession(t *testing.T) {
	ch := &fakeChannel{}
	rec := &fakeRecorder{}
	c := NewComposer(ch, rec, validLocator(t), nil)
	c.SetIdentity("user-9")

	if _, err := c.SendEmergencyAlert(context.Background(), ""); err != nil {
		t.Fatalf("first alert: %v", err)
	}
	c.Reset()
	if _, err := c.SendEmergencyAlert(context.Background(), ""); err != nil {
		t.Fatalf("alert after reset: %v", err)
	}
	if len(ch.emergencies) != 2 {
		t.Errorf("emergency envelopes = %d, want 2 across two sessions", len(ch.emergencies))
	}
}
