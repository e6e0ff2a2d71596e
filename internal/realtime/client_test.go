package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"meditrack/internal/contracts"
)

// fakeConn is an in-memory stand-in for a websocket connection.
type fakeConn struct {
	closeOnce sync.Once
	closed    chan struct{}
	inbound   chan []byte

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		closed:  make(chan struct{}),
		inbound: make(chan []byte, 8),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.inbound:
		return 1, data, nil
	case <-f.closed:
		return 0, nil, errors.New("fake conn closed")
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("fake conn closed")
	default:
	}
	f.mu.Lock()
	f.writes = append(f.writes, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func TestReconnectDelayGrowsAndCaps(t *testing.T) {
	base := 1000 * time.Millisecond
	growth := 1.5
	max := 15 * time.Second

	want := []time.Duration{
		1000 * time.Millisecond,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
	}
	for attempt, expected := range want {
		if got := reconnectDelay(base, growth, max, attempt); got != expected {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, got, expected)
		}
	}

	// never decreasing
	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := reconnectDelay(base, growth, max, attempt)
		if d < prev {
			t.Fatalf("delay shrank at attempt %d: %v < %v", attempt, d, prev)
		}
		prev = d
	}

	// capped well past the crossover point
	if got := reconnectDelay(base, growth, max, 50); got != max {
		t.Errorf("attempt 50: delay = %v, want cap %v", got, max)
	}
}

func TestReconnectStopsAfterMaxAttempts(t *testing.T) {
	var dials atomic.Int32
	c := NewClient(Options{
		URL:                  "ws://unreachable.invalid/ws",
		BaseDelay:            time.Millisecond,
		MaxDelay:             5 * time.Millisecond,
		MaxReconnectAttempts: 3,
		Dial: func(string) (conn, error) {
			dials.Add(1)
			return nil, errors.New("refused")
		},
	})

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect should fail when every dial fails")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if errors.Is(c.LastError(), ErrMaxReconnectAttempts) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never reached terminal state; last error: %v", c.LastError())
		}
		time.Sleep(2 * time.Millisecond)
	}

	// initial attempt plus the three automatic retries, then silence
	got := dials.Load()
	if got != 4 {
		t.Errorf("dial count = %d, want 4", got)
	}
	time.Sleep(20 * time.Millisecond)
	if after := dials.Load(); after != got {
		t.Errorf("dials continued after terminal state: %d -> %d", got, after)
	}

	if c.State() != StateDisconnected {
		t.Errorf("state = %s, want %s", c.State(), StateDisconnected)
	}
}

func TestConnectMemoizesInflightAttempt(t *testing.T) {
	var dials atomic.Int32
	proceed := make(chan struct{})
	c := NewClient(Options{
		URL: "ws://relay/ws",
		Dial: func(string) (conn, error) {
			dials.Add(1)
			<-proceed
			return newFakeConn(), nil
		},
	})
	defer c.Disconnect()

	const callers = 5
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() { errs <- c.Connect(context.Background()) }()
	}

	time.Sleep(20 * time.Millisecond) // let callers pile onto the pending attempt
	close(proceed)

	for i := 0; i < callers; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Connect returned %v", err)
		}
	}
	if got := dials.Load(); got != 1 {
		t.Errorf("dial count = %d, want 1 shared attempt", got)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %s, want %s", c.State(), StateConnected)
	}
}

func TestListenerIsolationAndRemoval(t *testing.T) {
	c := NewClient(Options{URL: "ws://relay/ws"})

	var first, second, other atomic.Int32
	c.Subscribe(contracts.EventEmergencyAlert, func(json.RawMessage) {
		first.Add(1)
		panic("listener exploded")
	})
	subSecond := c.Subscribe(contracts.EventEmergencyAlert, func(json.RawMessage) { second.Add(1) })
	c.Subscribe(contracts.EventLocationUpdated, func(json.RawMessage) { other.Add(1) })

	c.dispatch(contracts.WSEnvelope{Type: contracts.EventEmergencyAlert, Data: json.RawMessage(`{}`)})

	if first.Load() != 1 || second.Load() != 1 {
		t.Errorf("alert listeners ran %d/%d times, want 1/1 despite the panic", first.Load(), second.Load())
	}
	if other.Load() != 0 {
		t.Errorf("location listener ran %d times for an alert envelope", other.Load())
	}

	subSecond.Unsubscribe()
	subSecond.Unsubscribe() // second call is a no-op
	c.dispatch(contracts.WSEnvelope{Type: contracts.EventEmergencyAlert, Data: json.RawMessage(`{}`)})

	if second.Load() != 1 {
		t.Errorf("unsubscribed listener still ran (count %d)", second.Load())
	}
	if first.Load() != 2 {
		t.Errorf("remaining listener ran %d times, want 2", first.Load())
	}
}

func TestDisconnectClearsListenersAndAllowsReconnect(t *testing.T) {
	var dials atomic.Int32
	c := NewClient(Options{
		URL: "ws://relay/ws",
		Dial: func(string) (conn, error) {
			dials.Add(1)
			return newFakeConn(), nil
		},
	})

	var seen atomic.Int32
	c.Subscribe(contracts.EventEmergencyAlert, func(json.RawMessage) { seen.Add(1) })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.Disconnect()

	if c.State() != StateDisconnected {
		t.Fatalf("state after Disconnect = %s", c.State())
	}
	c.dispatch(contracts.WSEnvelope{Type: contracts.EventEmergencyAlert})
	if seen.Load() != 0 {
		t.Error("listener survived Disconnect")
	}

	// the client remains usable
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect after Disconnect: %v", err)
	}
	defer c.Disconnect()
	if dials.Load() != 2 {
		t.Errorf("dial count = %d, want 2", dials.Load())
	}
}

func TestSendMessageWritesEnvelope(t *testing.T) {
	fc := newFakeConn()
	c := NewClient(Options{
		URL:  "ws://relay/ws",
		Dial: func(string) (conn, error) { return fc, nil },
	})
	defer c.Disconnect()

	loc := contracts.LocationPayload{UserID: "u-1", Latitude: 48.2, Longitude: 16.3, Timestamp: time.Now().UTC()}
	if err := c.SendLocationUpdate(context.Background(), loc); err != nil {
		t.Fatalf("SendLocationUpdate: %v", err)
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.writes) != 1 {
		t.Fatalf("wrote %d frames, want 1", len(fc.writes))
	}

	var env contracts.WSEnvelope
	if err := json.Unmarshal(fc.writes[0], &env); err != nil {
		t.Fatalf("frame is not a valid envelope: %v", err)
	}
	if env.Type != contracts.EventLocationUpdate {
		t.Errorf("envelope type = %s, want %s", env.Type, contracts.EventLocationUpdate)
	}

	var got contracts.LocationPayload
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.UserID != loc.UserID || got.Latitude != loc.Latitude {
		t.Errorf("payload = %+v, want %+v", got, loc)
	}
}
