package relay

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"meditrack/internal/contracts"
	"meditrack/internal/logger"

	"github.com/gorilla/websocket"
)

func startRelay(t *testing.T) (*Relay, string) {
	t.Helper()
	r := New(logger.New("relay-test"))
	srv := httptest.NewServer(http.HandlerFunc(r.Handle))
	t.Cleanup(srv.Close)
	t.Cleanup(r.Close)
	return r, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// dialPeer connects and consumes the connection acknowledgement.
func dialPeer(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { c.Close() })

	ack := readEnvelope(t, c, time.Second)
	if ack.Type != contracts.EventConnection {
		t.Fatalf("first frame type = %s, want %s", ack.Type, contracts.EventConnection)
	}
	return c
}

func readEnvelope(t *testing.T, c *websocket.Conn, timeout time.Duration) contracts.WSEnvelope {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env contracts.WSEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

// expectSilence fails if c receives any frame within the window.
func expectSilence(t *testing.T, c *websocket.Conn, window time.Duration) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(window))
	if _, data, err := c.ReadMessage(); err == nil {
		t.Fatalf("expected no frame, got: %s", data)
	}
}

func sendEnvelope(t *testing.T, c *websocket.Conn, typ contracts.EventType, payload any) {
	t.Helper()
	env, err := contracts.NewEnvelope(typ, payload)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if err := c.WriteJSON(env); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
}

func TestEmergencyBroadcastExcludesSender(t *testing.T) {
	_, url := startRelay(t)

	sender := dialPeer(t, url)
	peerA := dialPeer(t, url)
	peerB := dialPeer(t, url)

	alert := contracts.EmergencyPayload{
		UserID:      "u-42",
		Description: "chest pain",
		Location:    contracts.LocationPayload{UserID: "u-42", Latitude: 48.21, Longitude: 16.37},
		Timestamp:   time.Now().UTC(),
	}
	sendEnvelope(t, sender, contracts.EventEmergency, alert)

	for name, c := range map[string]*websocket.Conn{"peerA": peerA, "peerB": peerB} {
		env := readEnvelope(t, c, time.Second)
		if env.Type != contracts.EventEmergencyAlert {
			t.Errorf("%s received type %s, want %s", name, env.Type, contracts.EventEmergencyAlert)
		}
		var got contracts.EmergencyPayload
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatalf("%s: decode payload: %v", name, err)
		}
		if got.UserID != alert.UserID || got.Description != alert.Description {
			t.Errorf("%s payload = %+v, want %+v", name, got, alert)
		}
	}

	expectSilence(t, sender, 150*time.Millisecond)
}

func TestLocationUpdateRebroadcast(t *testing.T) {
	_, url := startRelay(t)

	sender := dialPeer(t, url)
	watcher := dialPeer(t, url)

	loc := contracts.LocationPayload{UserID: "u-7", Latitude: 52.52, Longitude: 13.40, AccuracyMeters: 12}
	sendEnvelope(t, sender, contracts.EventLocationUpdate, loc)

	env := readEnvelope(t, watcher, time.Second)
	if env.Type != contracts.EventLocationUpdated {
		t.Fatalf("watcher received type %s, want %s", env.Type, contracts.EventLocationUpdated)
	}
	var got contracts.LocationPayload
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.UserID != loc.UserID || got.Latitude != loc.Latitude || got.Longitude != loc.Longitude {
		t.Errorf("payload = %+v, want %+v", got, loc)
	}
}

func TestMalformedFrameAnswersSenderOnly(t *testing.T) {
	_, url := startRelay(t)

	sender := dialPeer(t, url)
	bystander := dialPeer(t, url)

	if err := sender.WriteMessage(websocket.TextMessage, []byte("this is not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	env := readEnvelope(t, sender, time.Second)
	if env.Type != contracts.EventError {
		t.Fatalf("sender received type %s, want %s", env.Type, contracts.EventError)
	}
	if env.Message == "" {
		t.Error("error envelope has no message")
	}
	expectSilence(t, bystander, 150*time.Millisecond)

	// a timed-out read leaves the bystander socket unusable, so check on a
	// fresh peer that the relay keeps rebroadcasting after the bad frame
	watcher := dialPeer(t, url)
	sendEnvelope(t, sender, contracts.EventLocationUpdate, contracts.LocationPayload{UserID: "u-1"})
	if env := readEnvelope(t, watcher, time.Second); env.Type != contracts.EventLocationUpdated {
		t.Fatalf("relay stopped rebroadcasting after a malformed frame (got %s)", env.Type)
	}
}

func TestUnknownTypeAnswersSender(t *testing.T) {
	_, url := startRelay(t)

	sender := dialPeer(t, url)
	sendEnvelope(t, sender, contracts.EventType("telemetry"), map[string]any{"x": 1})

	env := readEnvelope(t, sender, time.Second)
	if env.Type != contracts.EventError {
		t.Fatalf("sender received type %s, want %s", env.Type, contracts.EventError)
	}
}

// syncBuffer lets the test read captured log lines while relay goroutines
// are still writing them.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDisconnectLogCountsRemainingPeers(t *testing.T) {
	out := &syncBuffer{}
	r := New(logger.NewWithOutput("relay-test", out))
	srv := httptest.NewServer(http.HandlerFunc(r.Handle))
	t.Cleanup(srv.Close)
	t.Cleanup(r.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c := dialPeer(t, url)
	c.Close()

	var line string
	deadline := time.Now().Add(time.Second)
	for line == "" && time.Now().Before(deadline) {
		for _, l := range strings.Split(out.String(), "\n") {
			if strings.Contains(l, "ws_peer_disconnected") {
				line = l
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if line == "" {
		t.Fatal("no disconnect log observed")
	}

	var entry struct {
		Details struct {
			Peers int `json:"peers"`
		} `json:"details"`
	}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", line, err)
	}
	if entry.Details.Peers != 0 {
		t.Errorf("disconnect log peers = %d, want 0", entry.Details.Peers)
	}
}

func TestPeerRegistrationLifecycle(t *testing.T) {
	r, url := startRelay(t)

	c := dialPeer(t, url)
	deadline := time.Now().Add(time.Second)
	for r.PeerCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := r.PeerCount(); got != 1 {
		t.Fatalf("PeerCount = %d after connect, want 1", got)
	}

	c.Close()
	deadline = time.Now().Add(time.Second)
	for r.PeerCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := r.PeerCount(); got != 0 {
		t.Fatalf("PeerCount = %d after close, want 0", got)
	}
}
