package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"meditrack/internal/contracts"
	"meditrack/internal/logger"

	"github.com/gorilla/websocket"
)

// State is the lifecycle phase of the realtime channel client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

var (
	// ErrChannelNotOpen is returned when a send resolved a connection attempt
	// but the socket is no longer open.
	ErrChannelNotOpen = errors.New("realtime: channel is not open")

	// ErrMaxReconnectAttempts is the terminal error after the automatic
	// reconnect budget is exhausted. An explicit Connect call starts over.
	ErrMaxReconnectAttempts = errors.New("realtime: max reconnection attempts reached")

	errConnectAborted = errors.New("realtime: connection attempt aborted")
)

// conn is the subset of *websocket.Conn the client uses; tests substitute it.
type conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a websocket connection to url.
type Dialer func(url string) (conn, error)

func gorillaDial(url string) (conn, error) {
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Options configures a channel client. Zero fields fall back to the
// defaults below.
type Options struct {
	URL                  string
	BaseDelay            time.Duration // default 1s
	GrowthFactor         float64       // default 1.5
	MaxDelay             time.Duration // default 15s
	MaxReconnectAttempts int           // default 5
	Logger               *logger.Logger
	Dial                 Dialer
}

// ListenerFunc receives the raw payload of an envelope of the subscribed type.
type ListenerFunc func(data json.RawMessage)

// Subscription is the removable handle returned by Subscribe.
type Subscription struct {
	client *Client
	typ    contracts.EventType
	id     uint64
}

// Unsubscribe removes this listener. Removing the last listener for a type
// releases the type entry. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.client == nil {
		return
	}
	s.client.unsubscribe(s.typ, s.id)
	s.client = nil
}

// pendingConnect memoizes one in-flight connection attempt so concurrent
// Connect callers share a single dial.
type pendingConnect struct {
	done chan struct{}
	err  error // written before done is closed
}

// Client maintains a single websocket to the relay with automatic,
// exponentially backed-off reconnection and typed subscriptions.
type Client struct {
	opts Options
	log  *logger.Logger

	mu         sync.Mutex
	state      State
	sock       conn
	pending    *pendingConnect
	attempts   int
	retryTimer *time.Timer
	lastErr    error
	listeners  map[contracts.EventType]map[uint64]ListenerFunc
	nextSubID  uint64

	writeMu sync.Mutex
}

// NewClient builds a client for the given relay URL. The socket is not opened
// until Connect (or a send) is called.
func NewClient(opts Options) *Client {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.GrowthFactor <= 1 {
		opts.GrowthFactor = 1.5
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 15 * time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("realtime-client")
	}
	if opts.Dial == nil {
		opts.Dial = gorillaDial
	}

	return &Client{
		opts:      opts,
		log:       opts.Logger,
		state:     StateDisconnected,
		listeners: make(map[contracts.EventType]map[uint64]ListenerFunc),
	}
}

// State reports the current lifecycle phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent connection-level failure, including the
// terminal ErrMaxReconnectAttempts.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect opens the socket if needed. A second caller while an attempt is in
// flight waits on the same attempt instead of dialing again. An explicit call
// resets an exhausted reconnect budget.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected && c.sock != nil {
		c.mu.Unlock()
		return nil
	}

	if c.pending == nil {
		// a deliberate Connect starts a fresh budget
		if errors.Is(c.lastErr, ErrMaxReconnectAttempts) {
			c.attempts = 0
			c.lastErr = nil
		}
		c.pending = &pendingConnect{done: make(chan struct{})}
		go c.dial(c.pending)
	}
	att := c.pending
	c.mu.Unlock()

	select {
	case <-att.done:
		return att.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect tears the client down: cancels any pending reconnect, closes the
// socket and clears every listener. The client may be connected again later.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	sock := c.sock
	c.sock = nil
	c.pending = nil // in-flight dial notices and discards its socket
	c.state = StateDisconnected
	c.attempts = 0
	c.lastErr = nil
	c.listeners = make(map[contracts.EventType]map[uint64]ListenerFunc)
	c.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	c.log.Info(context.Background(), "channel_disconnected", "Realtime channel torn down", nil)
}

// SendMessage marshals payload into an envelope of the given type and writes
// it, connecting first if necessary.
func (c *Client) SendMessage(ctx context.Context, typ contracts.EventType, payload any) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}

	env, err := contracts.NewEnvelope(typ, payload)
	if err != nil {
		return fmt.Errorf("realtime: encode %s payload: %w", typ, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime: encode %s envelope: %w", typ, err)
	}

	c.mu.Lock()
	sock := c.sock
	open := c.state == StateConnected && sock != nil
	c.mu.Unlock()
	if !open {
		// the connection resolved but the socket dropped since
		return ErrChannelNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := sock.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("realtime: write %s: %w", typ, err)
	}
	return nil
}

// SendLocationUpdate publishes a location fix over the channel.
func (c *Client) SendLocationUpdate(ctx context.Context, loc contracts.LocationPayload) error {
	return c.SendMessage(ctx, contracts.EventLocationUpdate, loc)
}

// SendEmergency publishes an emergency alert over the channel.
func (c *Client) SendEmergency(ctx context.Context, alert contracts.EmergencyPayload) error {
	return c.SendMessage(ctx, contracts.EventEmergency, alert)
}

// Subscribe registers fn for envelopes of the given type and returns a handle
// that removes exactly this registration.
func (c *Client) Subscribe(typ contracts.EventType, fn ListenerFunc) *Subscription {
	if fn == nil {
		return &Subscription{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	set, ok := c.listeners[typ]
	if !ok {
		set = make(map[uint64]ListenerFunc)
		c.listeners[typ] = set
	}
	set[id] = fn

	return &Subscription{client: c, typ: typ, id: id}
}

func (c *Client) unsubscribe(typ contracts.EventType, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.listeners[typ]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(c.listeners, typ)
	}
}

// --- internals ---

func (c *Client) dial(att *pendingConnect) {
	c.mu.Lock()
	if c.pending != att {
		c.mu.Unlock()
		att.err = errConnectAborted
		close(att.done)
		return
	}
	c.state = StateConnecting
	url := c.opts.URL
	c.mu.Unlock()

	sock, err := c.opts.Dial(url)

	c.mu.Lock()
	if c.pending != att {
		// Disconnect happened while dialing
		c.mu.Unlock()
		if sock != nil {
			_ = sock.Close()
		}
		att.err = errConnectAborted
		close(att.done)
		return
	}
	c.pending = nil

	if err != nil {
		c.state = StateDisconnected
		c.lastErr = err
		c.mu.Unlock()

		c.log.Error(context.Background(), "channel_connect_failed", "Failed to open realtime channel", err, map[string]any{"url": url})
		att.err = err
		close(att.done)
		c.scheduleReconnect()
		return
	}

	c.sock = sock
	c.state = StateConnected
	c.attempts = 0
	c.lastErr = nil
	c.mu.Unlock()

	c.log.Info(context.Background(), "channel_connected", "Realtime channel established", map[string]any{"url": url})
	att.err = nil
	close(att.done)

	go c.readLoop(sock)
}

// readLoop pumps inbound frames until the socket dies, then hands control to
// the reconnect scheduler.
func (c *Client) readLoop(sock conn) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			break
		}

		var env contracts.WSEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			// malformed frames are dropped; the stream keeps going
			c.log.Debug(context.Background(), "channel_frame_dropped", "Dropped malformed realtime frame", map[string]any{"size": len(data)})
			continue
		}

		c.dispatch(env)
	}

	c.mu.Lock()
	if c.sock != sock {
		// Disconnect (or a replacement socket) already handled this one
		c.mu.Unlock()
		return
	}
	c.sock = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	_ = sock.Close()
	c.scheduleReconnect()
}

// dispatch fans an envelope out to the listeners of its type. A panicking
// listener never prevents the others from running.
func (c *Client) dispatch(env contracts.WSEnvelope) {
	c.mu.Lock()
	set := c.listeners[env.Type]
	fns := make([]ListenerFunc, 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error(context.Background(), "listener_panicked", "Realtime listener panicked",
						fmt.Errorf("panic: %v", r), map[string]any{"type": string(env.Type)})
				}
			}()
			fn(env.Data)
		}()
	}
}

// scheduleReconnect arms the backoff timer for the next automatic attempt,
// or records the terminal error once the budget is spent.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retryTimer != nil || c.pending != nil || c.state == StateConnected {
		return
	}

	if c.attempts >= c.opts.MaxReconnectAttempts {
		c.lastErr = ErrMaxReconnectAttempts
		c.log.Error(context.Background(), "channel_reconnect_exhausted",
			"Giving up on automatic reconnection", ErrMaxReconnectAttempts,
			map[string]any{"attempts": c.attempts})
		return
	}

	delay := reconnectDelay(c.opts.BaseDelay, c.opts.GrowthFactor, c.opts.MaxDelay, c.attempts)
	c.attempts++
	c.log.Info(context.Background(), "channel_reconnect_scheduled", "Scheduling realtime reconnect",
		map[string]any{"attempt": c.attempts, "delay_ms": delay.Milliseconds()})

	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.retryTimer = nil
		if c.pending != nil || c.state == StateConnected {
			c.mu.Unlock()
			return
		}
		att := &pendingConnect{done: make(chan struct{})}
		c.pending = att
		c.mu.Unlock()

		c.dial(att)
	})
}
