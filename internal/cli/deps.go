package cli

import (
	"context"
	"fmt"

	"github.com/shaiso/InboxRelay/internal/mq"
)

// Publisher публикует payload в топологию.
type Publisher interface {
	Publish(ctx context.Context, topo mq.Topology, payload any) error
}

// Consumer открывает поток доставок.
type Consumer interface {
	Consume(ctx context.Context, topo mq.Topology) (*mq.Stream, error)
}

// AppStore читает данные приложений.
type AppStore interface {
	GetToken(ctx context.Context, appID string) (string, error)
	GetTitle(ctx context.Context, appID string) (string, error)
}

// Broker — клиенты брокера для команд publish и consume.
type Broker struct {
	Publisher Publisher

	// NewConsumer создаёт Consumer поверх общего соединения;
	// команда дополняет базовые опции своими (например, prefetch).
	NewConsumer func(opts ...mq.ConsumerOption) Consumer
}

// Deps — фабрики зависимостей, вызываемые после парсинга флагов.
type Deps struct {
	Broker func(ctx context.Context) (*Broker, error)
	Apps   func(ctx context.Context) (AppStore, error)
	Output func() *Output
}

// topologyFlags — общие флаги выбора топологии.
type topologyFlags struct {
	mode      string
	kind      string
	durable   bool
	exclusive bool
}

// build собирает топологию; durable/exclusive применяются, только если заданы явно.
func (f *topologyFlags) build(name string, changed func(string) bool) (mq.Topology, error) {
	mode, err := mq.ParseMode(f.mode)
	if err != nil {
		return mq.Topology{}, err
	}

	var topo mq.Topology
	switch mode {
	case mq.ModeExchange:
		topo = mq.ExchangeTopology(name, f.kind)
	default:
		topo = mq.DirectQueue(name)
	}

	var opts []mq.Option
	if changed("durable") {
		opts = append(opts, mq.WithDurable(f.durable))
	}
	if changed("exclusive") {
		opts = append(opts, mq.WithExclusive(f.exclusive))
	}
	topo = topo.With(opts...)

	if err := topo.Validate(); err != nil {
		return mq.Topology{}, fmt.Errorf("topology %q: %w", name, err)
	}
	return topo, nil
}
