package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shaiso/InboxRelay/internal/mq"
)

// Publisher публикует payload в топологию.
type Publisher interface {
	Publish(ctx context.Context, topo mq.Topology, payload any) error
}

// Relay пересылает события из Source в Destination.
type Relay struct {
	source      mq.Topology
	destination mq.Topology

	publisher Publisher
	consumer  *mq.Consumer
	logger    *slog.Logger

	mu     sync.Mutex
	stream *mq.Stream
	served chan struct{}
	err    error

	// closing выставляется в Close до отмены consumer: конец потока
	// после этого считается штатным.
	closing atomic.Bool
}

// Config — конфигурация Relay.
type Config struct {
	// Source — откуда читать события (обычно mq.ExchangeTopology).
	Source mq.Topology

	// Destination — куда публиковать команды (обычно mq.ResultQueue).
	Destination mq.Topology

	Publisher Publisher
	Consumer  *mq.Consumer
	Logger    *slog.Logger
}

// New создаёт новый Relay.
func New(cfg Config) *Relay {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Relay{
		source:      cfg.Source,
		destination: cfg.Destination,
		publisher:   cfg.Publisher,
		consumer:    cfg.Consumer,
		logger:      logger,
	}
}

// Start объявляет топологию-источник и запускает обработку в горутине.
// Ошибка означает, что доставки не начались; вызывающий считает её фатальной.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		select {
		case <-r.served:
			if r.err != nil {
				return fmt.Errorf("%w: %w", ErrStopped, r.err)
			}
			return ErrStopped
		default:
			return nil
		}
	}

	stream, err := r.consumer.Consume(ctx, r.source)
	if err != nil {
		return fmt.Errorf("start relay from %s: %w", r.source.Name, err)
	}

	r.stream = stream
	r.served = make(chan struct{})

	go r.serve(ctx, stream, r.served)

	r.logger.Info("relay started",
		"source", r.source.Name,
		"destination", r.destination.Name,
	)
	return nil
}

// serve обрабатывает доставки до конца потока и фиксирует причину остановки.
func (r *Relay) serve(ctx context.Context, stream *mq.Stream, served chan struct{}) {
	err := r.consumer.Serve(ctx, stream, r.Handle)

	switch {
	case r.closing.Load():
		err = nil
	case err == nil:
		err = ErrStreamLost
	case errors.Is(err, context.Canceled):
		err = nil
	}

	if err != nil {
		r.logger.Error("relay stopped unexpectedly", "source", r.source.Name, "error", err)
	}

	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	close(served)
}

// Done закрывается, когда обработка доставок остановилась: после Close
// или потому что брокер завершил поток. До Start возвращает nil.
func (r *Relay) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.served
}

// Err возвращает причину остановки. nil, пока Relay работает
// или если он остановлен через Close.
func (r *Relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Running сообщает, что Relay запущен и обрабатывает доставки.
func (r *Relay) Running() bool {
	done := r.Done()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Close отменяет consumer и ждёт, пока выполняющиеся обработчики
// завершатся и подтвердят свои доставки. ctx ограничивает ожидание.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	stream, served := r.stream, r.served
	r.mu.Unlock()

	if stream == nil {
		return ErrNotStarted
	}

	r.closing.Store(true)

	select {
	case <-served:
		// поток уже завершён брокером, отменять нечего
		return nil
	default:
	}

	if err := stream.Close(); err != nil {
		return err
	}

	select {
	case <-served:
		r.logger.Info("relay drained", "source", r.source.Name)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain relay: %w", ctx.Err())
	}
}
