package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meditrack/internal/config"
	"meditrack/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	heartbeatInterval = 10 * time.Second
	dialTimeout       = 30 * time.Second
	maxRetryBackoff   = 30 * time.Second
)

// Client wraps one AMQP connection shared by the status-event publisher and
// the notifier consumer. It re-dials and re-declares topology whenever the
// broker drops the connection.
type Client struct {
	url    string
	logger *logger.Logger
	logCtx context.Context // detached from the caller's cancel

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	pubMu       sync.Mutex
	pubConfirms chan amqp.Confirmation

	closed    chan struct{}
	reconnect chan struct{}
}

// Connect dials the broker once and starts the reconnect watcher. Later
// failures are retried in the background; only the first dial is fatal.
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	client := &Client{
		url: fmt.Sprintf("amqp://%s:%s@%s:%d/",
			cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port),
		logger:    log,
		logCtx:    context.WithoutCancel(ctx),
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	if err := client.establish(); err != nil {
		return nil, err
	}
	go client.watch()
	return client, nil
}

// Close stops the watcher and tears down AMQP resources. Safe to call twice.
func (client *Client) Close() {
	select {
	case <-client.closed:
	default:
		close(client.closed)
	}

	client.mu.Lock()
	if client.pubChan != nil {
		_ = client.pubChan.Close()
		client.pubChan = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.mu.Unlock()

	client.pubMu.Lock()
	if client.pubConfirms != nil {
		close(client.pubConfirms)
		client.pubConfirms = nil
	}
	client.pubMu.Unlock()
}

// establish dials, declares topology, enables confirms, and installs the new
// connection and publish channel, then arms the close monitor.
func (client *Client) establish() error {
	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat: heartbeatInterval,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: open publish channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: declare topology: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq: enable publisher confirms: %w", err)
	}

	client.swapConfirms(ch.NotifyPublish(make(chan amqp.Confirmation, 1)))
	go client.logReturns(ch.NotifyReturn(make(chan amqp.Return, 1)))

	client.mu.Lock()
	if client.pubChan != nil && !client.pubChan.IsClosed() {
		_ = client.pubChan.Close()
	}
	client.conn = conn
	client.pubChan = ch
	client.mu.Unlock()

	go client.monitor(conn, ch)

	client.logger.Info(client.logCtx, "rabbitmq_connected", "RabbitMQ connection established", nil)
	return nil
}

// swapConfirms installs a fresh confirm stream and releases any waiter stuck
// on the old one.
func (client *Client) swapConfirms(confirms chan amqp.Confirmation) {
	client.pubMu.Lock()
	old := client.pubConfirms
	client.pubConfirms = confirms
	client.pubMu.Unlock()
	if old != nil {
		close(old)
	}
}

// logReturns records messages the broker could not route. Publishes use
// mandatory=true, so a missing binding surfaces here instead of vanishing.
func (client *Client) logReturns(returns chan amqp.Return) {
	for r := range returns {
		client.logger.Error(client.logCtx, "rabbitmq_unroutable", "Message returned by broker",
			fmt.Errorf("code=%d text=%s", r.ReplyCode, r.ReplyText),
			map[string]any{"exchange": r.Exchange, "routing_key": r.RoutingKey, "size": len(r.Body)})
	}
}

// monitor signals the watcher when the connection or publish channel dies.
func (client *Client) monitor(conn *amqp.Connection, ch *amqp.Channel) {
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-client.closed:
		return
	case <-connClosed:
	case <-chClosed:
	}

	select {
	case client.reconnect <- struct{}{}:
	default: // a reconnect is already pending
	}
}

// watch re-establishes the connection with doubling backoff until Close.
func (client *Client) watch() {
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
		}

		backoff := time.Second
		for {
			select {
			case <-client.closed:
				return
			default:
			}

			if err := client.establish(); err == nil {
				client.logger.Info(client.logCtx, "rabbitmq_reconnected", "Reconnected and re-declared topology", nil)
				break
			} else {
				client.logger.Error(client.logCtx, "rabbitmq_reconnect_failed", "Reconnect attempt failed", err,
					map[string]any{"next_retry_ms": backoff.Milliseconds()})
			}

			time.Sleep(backoff)
			if backoff < maxRetryBackoff {
				backoff = min(backoff*2, maxRetryBackoff)
			}
		}
	}
}
