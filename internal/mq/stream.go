package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/InboxRelay/internal/telemetry"
)

// Envelope — декодированная доставка.
//
// Value содержит результат JSON-декодирования тела, а если тело
// не является JSON — исходный текст (Raw=true). Ошибка декодирования
// наружу не передаётся.
type Envelope struct {
	// Value — map[string]any, []any, string, float64, bool или nil.
	Value any

	// Raw — тело не распарсилось как JSON, Value содержит текст.
	Raw bool

	// Body — исходные байты сообщения.
	Body []byte

	MessageID   string
	Exchange    string
	RoutingKey  string
	Redelivered bool
	Timestamp   time.Time

	delivery amqp.Delivery
}

// Decode декодирует тело сообщения в v.
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	return nil
}

// Ack подтверждает доставку.
func (e *Envelope) Ack() error {
	return e.delivery.Ack(false)
}

// Reject отклоняет доставку.
// requeue=false — отбросить (или в DLX, если он настроен у очереди).
func (e *Envelope) Reject(requeue bool) error {
	return e.delivery.Nack(false, requeue)
}

// newEnvelope декодирует доставку с fallback на текст.
func newEnvelope(d amqp.Delivery) *Envelope {
	env := &Envelope{
		Body:        d.Body,
		MessageID:   d.MessageId,
		Exchange:    d.Exchange,
		RoutingKey:  d.RoutingKey,
		Redelivered: d.Redelivered,
		Timestamp:   d.Timestamp,
		delivery:    d,
	}

	var value any
	if err := json.Unmarshal(d.Body, &value); err != nil {
		env.Value = string(d.Body)
		env.Raw = true
		return env
	}

	env.Value = value
	return env
}

// Stream — поток доставок одного consumer.
//
// Next блокируется до следующей доставки. После Close брокер
// дочищает уже отправленные доставки и закрывает поток,
// после чего Next возвращает ErrStreamClosed.
type Stream struct {
	ch         Channel
	topology   Topology
	tag        string
	deliveries <-chan amqp.Delivery
	logger     *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func newStream(ch Channel, topo Topology, tag string, deliveries <-chan amqp.Delivery, logger *slog.Logger) *Stream {
	return &Stream{
		ch:         ch,
		topology:   topo,
		tag:        tag,
		deliveries: deliveries,
		logger:     logger,
	}
}

// Topology возвращает топологию, из которой читает поток.
func (s *Stream) Topology() Topology {
	return s.topology
}

// ConsumerTag возвращает тег consumer на брокере.
func (s *Stream) ConsumerTag() string {
	return s.tag
}

// Next возвращает следующую доставку.
func (s *Stream) Next(ctx context.Context) (*Envelope, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case d, ok := <-s.deliveries:
		if !ok {
			return nil, ErrStreamClosed
		}

		env := newEnvelope(d)
		if env.Raw {
			telemetry.DecodeFallbacksTotal.WithLabelValues(s.topology.Name).Inc()
			s.logger.Debug("message body is not JSON, passing raw text",
				"topology", s.topology.Name,
				"message_id", env.MessageID,
			)
		}
		return env, nil
	}
}

// Close отменяет consumer на брокере. Повторные вызовы возвращают
// результат первого.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if err := s.ch.Cancel(s.tag, false); err != nil {
			s.closeErr = fmt.Errorf("cancel consumer %s: %w", s.tag, err)
			return
		}
		s.logger.Info("consumer cancelled", "topology", s.topology.Name, "consumer_tag", s.tag)
	})
	return s.closeErr
}
