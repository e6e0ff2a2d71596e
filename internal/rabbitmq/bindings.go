package rabbitmq

import (
	"fmt"

	"meditrack/internal/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

func declareTopology(ch *amqp.Channel) error {
	// 1. Exchanges
	if err := ch.ExchangeDeclare(contracts.ExchangeEmergencyTopic, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", contracts.ExchangeEmergencyTopic, err)
	}

	// 2. Queues
	if _, err := ch.QueueDeclare(contracts.QueueEmergencyNotifications, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", contracts.QueueEmergencyNotifications, err)
	}

	// 3. Bindings
	if err := ch.QueueBind(
		contracts.QueueEmergencyNotifications,
		contracts.RouteEmergencyStatusPrefix+"*",
		contracts.ExchangeEmergencyTopic,
		false, nil,
	); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", contracts.QueueEmergencyNotifications, contracts.ExchangeEmergencyTopic, err)
	}

	return nil
}
