package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const confirmTimeout = 5 * time.Second

// MQPublisher adapts the Client to the service layer's Publisher interface.
type MQPublisher struct {
	Client *Client
}

func NewMQPublisher(client *Client) *MQPublisher {
	return &MQPublisher{Client: client}
}

func (publisher *MQPublisher) Publish(exchange, routingKey string, body []byte) error {
	return publisher.Client.PublishMessage(exchange, routingKey, body)
}

// PublishMessage publishes a persistent JSON message and waits for the broker
// confirm. pubMu serializes publishers so each waits on its own confirm.
func (client *Client) PublishMessage(exchange, routingKey string, body []byte) error {
	client.mu.RLock()
	conn := client.conn
	ch := client.pubChan
	client.mu.RUnlock()

	switch {
	case conn == nil || conn.IsClosed():
		return errors.New("rabbitmq: connection is not open")
	case ch == nil || ch.IsClosed():
		return errors.New("rabbitmq: publish channel is not open")
	}

	client.pubMu.Lock()
	defer client.pubMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, exchange, routingKey, true /* mandatory */, false, msg); err != nil {
		return err
	}

	return client.awaitConfirm(ctx)
}

// awaitConfirm consumes exactly one confirmation for the message just
// published. On timeout it still tries briefly to drain that confirm so the
// stream stays aligned with future publishes.
func (client *Client) awaitConfirm(ctx context.Context) error {
	select {
	case c := <-client.pubConfirms:
		if !c.Ack {
			return fmt.Errorf("rabbitmq: publish not acknowledged")
		}
		return nil
	case <-ctx.Done():
		select {
		case c := <-client.pubConfirms:
			if !c.Ack {
				return fmt.Errorf("rabbitmq: publish not acknowledged after timeout")
			}
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	}
}
