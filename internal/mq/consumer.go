package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/InboxRelay/internal/telemetry"
)

// Handler — функция обработки доставки.
// Возвращает error, если обработка не удалась: доставка не будет подтверждена.
type Handler func(ctx context.Context, env *Envelope) error

// FailurePolicy — что делать с доставкой, если обработчик вернул ошибку.
type FailurePolicy int

const (
	// FailureReject — Nack без requeue: сообщение отбрасывается
	// или уходит в DLX очереди.
	FailureReject FailurePolicy = iota

	// FailureLeaveUnacked — не подтверждать и не отклонять. Доставка
	// висит unacked до закрытия канала, затем брокер вернёт её в очередь.
	FailureLeaveUnacked
)

func (p FailurePolicy) String() string {
	switch p {
	case FailureReject:
		return "reject"
	case FailureLeaveUnacked:
		return "leave-unacked"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Consumer подписывается на топологии и обрабатывает доставки с ручным ack.
type Consumer struct {
	conn        *Connection
	logger      *slog.Logger
	prefetch    int
	concurrency int
	policy      FailurePolicy
	tagPrefix   string
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithPrefetch задаёт QoS канала. 0 — без ограничения.
func WithPrefetch(n int) ConsumerOption {
	return func(c *Consumer) {
		if n >= 0 {
			c.prefetch = n
		}
	}
}

// WithConcurrency задаёт максимум одновременно выполняющихся обработчиков.
func WithConcurrency(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithFailurePolicy задаёт реакцию на ошибку обработчика.
func WithFailurePolicy(p FailurePolicy) ConsumerOption {
	return func(c *Consumer) {
		c.policy = p
	}
}

// WithConsumerTagPrefix задаёт префикс тега consumer.
func WithConsumerTagPrefix(prefix string) ConsumerOption {
	return func(c *Consumer) {
		if prefix != "" {
			c.tagPrefix = prefix
		}
	}
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Consumer{
		conn:        conn,
		logger:      logger,
		concurrency: 1,
		policy:      FailureReject,
		tagPrefix:   defaultConnectionName,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Consume объявляет топологию и начинает потребление.
// Ошибка настройки логируется и возвращается: доставки ещё не начались.
func (c *Consumer) Consume(ctx context.Context, topo Topology) (*Stream, error) {
	stream, err := c.consume(ctx, topo)
	if err != nil {
		c.logger.Error("failed to consume messages",
			"topology", topo.Name,
			"mode", topo.Mode.String(),
			"error", err,
		)
		return nil, err
	}

	c.logger.Info("consumer started",
		"topology", topo.Name,
		"mode", topo.Mode.String(),
		"consumer_tag", stream.tag,
		"prefetch", c.prefetch,
	)

	return stream, nil
}

func (c *Consumer) consume(ctx context.Context, topo Topology) (*Stream, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}

	ch, err := c.conn.Channel(ctx)
	if err != nil {
		return nil, err
	}

	if err := declareForConsume(ch, topo); err != nil {
		return nil, err
	}

	if c.prefetch > 0 {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}

	tag := c.tagPrefix + "-" + uuid.NewString()

	deliveries, err := ch.Consume(
		topo.Name, // queue
		tag,       // consumer tag
		false,     // auto-ack (мы ack вручную)
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", topo.Name, err)
	}

	return newStream(ch, topo, tag, deliveries, c.logger), nil
}

// Serve читает поток и вызывает handler для каждой доставки.
//
// Одновременно выполняется не больше concurrency обработчиков; при
// достижении лимита чтение потока приостанавливается. Ack отправляется
// только после успешного завершения обработчика этой доставки.
//
// Serve возвращает nil, когда поток закрыт, и ctx.Err() при отмене
// контекста. В обоих случаях сначала дожидается выполняющихся обработчиков.
func (c *Consumer) Serve(ctx context.Context, stream *Stream, handler Handler) error {
	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for {
		env, err := stream.Next(ctx)
		if err != nil {
			g.Wait()
			if errors.Is(err, ErrStreamClosed) {
				c.logger.Info("delivery stream drained", "topology", stream.topology.Name)
				return nil
			}
			return err
		}

		g.Go(func() error {
			c.handle(ctx, stream.topology.Name, env, handler)
			return nil
		})
	}
}

// handle обрабатывает одну доставку.
func (c *Consumer) handle(ctx context.Context, topology string, env *Envelope, handler Handler) {
	logger := telemetry.WithMessageID(telemetry.WithTopology(c.logger, topology), env.MessageID)

	// Обработчик получает логгер доставки через telemetry.FromContext.
	start := time.Now()
	err := c.call(telemetry.WithLogger(ctx, logger), logger, env, handler)
	telemetry.HandlerDuration.WithLabelValues(topology).Observe(time.Since(start).Seconds())

	if err == nil {
		if ackErr := env.Ack(); ackErr != nil {
			logger.Error("failed to ack delivery", "error", ackErr)
			return
		}
		telemetry.DeliveriesTotal.WithLabelValues(topology, telemetry.OutcomeAcked).Inc()
		return
	}

	switch c.policy {
	case FailureLeaveUnacked:
		logger.Error("handler failed, delivery left unacknowledged", "error", err)
		telemetry.DeliveriesTotal.WithLabelValues(topology, telemetry.OutcomeUnacked).Inc()

	default:
		logger.Error("handler failed, delivery rejected",
			"error", err,
			"redelivered", env.Redelivered,
		)
		if nackErr := env.Reject(false); nackErr != nil {
			logger.Error("failed to reject delivery", "error", nackErr)
			return
		}
		telemetry.DeliveriesTotal.WithLabelValues(topology, telemetry.OutcomeRejected).Inc()
	}
}

// call вызывает handler, превращая панику в ошибку.
func (c *Consumer) call(ctx context.Context, logger *slog.Logger, env *Envelope, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic recovered",
				"error", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	return handler(ctx, env)
}
