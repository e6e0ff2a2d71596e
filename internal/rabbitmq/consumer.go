package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// handlerTimeout bounds one message's processing, including the mail send
// in the notifier.
const handlerTimeout = 30 * time.Second

// DeliveryHandler processes one message. A non-nil error drops the message
// without requeue; requeueing a poison status event would loop forever.
type DeliveryHandler func(ctx context.Context, d amqp.Delivery) error

// Consume reads queue with manual acks until ctx is cancelled or the channel
// dies. Each consumer gets its own channel so a failing handler cannot take
// the publish channel down with it.
func (client *Client) Consume(ctx context.Context, queue, consumerTag string, prefetch int, handle DeliveryHandler) error {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()
	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not ready")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: open consumer channel: %w", err)
	}
	defer ch.Close()

	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: set prefetch=%d: %w", prefetch, err)
	}

	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume %s: %w", queue, err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			if consumerTag != "" {
				_ = ch.Cancel(consumerTag, false)
			}
			return ctx.Err()

		case cerr := <-closed:
			if cerr != nil {
				return fmt.Errorf("rabbitmq: channel closed while consuming %s: %w", queue, cerr)
			}
			return nil

		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			client.handleDelivery(ctx, queue, d, handle)
		}
	}
}

func (client *Client) handleDelivery(ctx context.Context, queue string, d amqp.Delivery, handle DeliveryHandler) {
	hCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	err := handle(hCtx, d)
	cancel()

	if err != nil {
		client.logger.Error(client.logCtx, "message_rejected", "Dropping message after handler failure", err,
			map[string]any{"queue": queue, "routing_key": d.RoutingKey})
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
