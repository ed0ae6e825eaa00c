package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/InboxRelay/internal/telemetry"
)

// Publisher публикует JSON-сообщения в RabbitMQ.
//
// Publisher confirms не используются: успешный Publish означает, что
// фрейм передан транспорту, а не что брокер сохранил сообщение.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish сериализует payload в JSON и отправляет его в топологию.
//
// При каждом вызове топология объявляется заново (идемпотентно).
// Ошибки логируются вместе с payload и возвращаются без retry.
func (p *Publisher) Publish(ctx context.Context, topo Topology, payload any) error {
	if err := p.publish(ctx, topo, payload); err != nil {
		telemetry.PublishErrorsTotal.WithLabelValues(topo.Name).Inc()
		p.logger.Error("failed to publish message",
			"topology", topo.Name,
			"mode", topo.Mode.String(),
			"payload", payload,
			"error", err,
		)
		return err
	}

	telemetry.PublishedTotal.WithLabelValues(topo.Name).Inc()
	return nil
}

func (p *Publisher) publish(ctx context.Context, topo Topology, payload any) error {
	if err := topo.Validate(); err != nil {
		return err
	}

	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return err
	}

	if err := declareForPublish(ch, topo); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	deliveryMode := amqp.Transient
	if topo.Options.Durable {
		// сообщение переживёт рестарт RabbitMQ
		deliveryMode = amqp.Persistent
	}

	exchange, routingKey := topo.target()
	messageID := uuid.NewString()

	err = ch.PublishWithContext(
		ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: deliveryMode,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %q/%q: %w", exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"topology", topo.Name,
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", messageID,
	)

	return nil
}
