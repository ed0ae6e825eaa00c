package mq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Mode — режим топологии.
type Mode int

const (
	// ModeDirect — сообщения идут напрямую в именованную очередь.
	ModeDirect Mode = iota

	// ModeExchange — сообщения идут в exchange с routing key = имя топологии,
	// к exchange привязана одноимённая очередь.
	ModeExchange
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeExchange:
		return "exchange"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode разбирает режим из строки ("direct", "queue", "exchange").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "queue":
		return ModeDirect, nil
	case "exchange":
		return ModeExchange, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Типы exchange.
const (
	KindDirect  = amqp.ExchangeDirect
	KindFanout  = amqp.ExchangeFanout
	KindTopic   = amqp.ExchangeTopic
	KindHeaders = amqp.ExchangeHeaders
)

// Options — флаги объявления очереди и exchange.
type Options struct {
	Durable    bool
	Exclusive  bool
	AutoDelete bool

	// Args — дополнительные аргументы очереди (x-message-ttl, x-dead-letter-exchange, ...).
	Args amqp.Table
}

// Option переопределяет значение по умолчанию.
type Option func(*Options)

// WithDurable задаёт durable.
func WithDurable(v bool) Option {
	return func(o *Options) { o.Durable = v }
}

// WithExclusive задаёт exclusive (только для очередей).
func WithExclusive(v bool) Option {
	return func(o *Options) { o.Exclusive = v }
}

// WithAutoDelete задаёт auto-delete.
func WithAutoDelete(v bool) Option {
	return func(o *Options) { o.AutoDelete = v }
}

// WithArgs задаёт аргументы очереди.
func WithArgs(args amqp.Table) Option {
	return func(o *Options) { o.Args = args }
}

// Topology — дескриптор очереди или exchange.
type Topology struct {
	Name string
	Mode Mode

	// Kind — тип exchange для ModeExchange (direct, fanout, topic, headers).
	Kind string

	Options Options
}

// DirectQueue — долговечная очередь для входящих сообщений:
// durable=true, exclusive=false.
func DirectQueue(name string, opts ...Option) Topology {
	t := Topology{
		Name:    name,
		Mode:    ModeDirect,
		Options: Options{Durable: true},
	}
	return t.With(opts...)
}

// ResultQueue — приватная эфемерная очередь результатов:
// durable=false, exclusive=true.
func ResultQueue(name string, opts ...Option) Topology {
	t := Topology{
		Name:    name,
		Mode:    ModeDirect,
		Options: Options{Exclusive: true},
	}
	return t.With(opts...)
}

// ExchangeTopology — exchange указанного типа с одноимённой очередью.
// Пустой kind означает direct exchange.
func ExchangeTopology(name, kind string, opts ...Option) Topology {
	if kind == "" {
		kind = KindDirect
	}
	t := Topology{
		Name:    name,
		Mode:    ModeExchange,
		Kind:    kind,
		Options: Options{Durable: true},
	}
	return t.With(opts...)
}

// With возвращает копию топологии с применёнными переопределениями.
func (t Topology) With(opts ...Option) Topology {
	for _, opt := range opts {
		opt(&t.Options)
	}
	return t
}

// Validate проверяет дескриптор.
func (t Topology) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyTopology
	}
	if t.Mode != ModeDirect && t.Mode != ModeExchange {
		return fmt.Errorf("%w: %s", ErrUnknownMode, t.Mode)
	}
	return nil
}

// target возвращает exchange и routing key для публикации.
func (t Topology) target() (exchange, routingKey string) {
	if t.Mode == ModeExchange {
		return t.Name, t.Name
	}
	// Default exchange маршрутизирует по имени очереди.
	return "", t.Name
}

// declareForPublish объявляет то, во что публикуем:
// exchange в режиме Exchange, очередь в режиме Direct.
func declareForPublish(ch Channel, t Topology) error {
	if t.Mode == ModeExchange {
		return declareExchange(ch, t)
	}
	return declareQueue(ch, t)
}

// declareForConsume объявляет очередь, а в режиме Exchange ещё
// exchange и binding queue → exchange по routing key = имя.
func declareForConsume(ch Channel, t Topology) error {
	if t.Mode == ModeDirect {
		return declareQueue(ch, t)
	}

	if err := declareExchange(ch, t); err != nil {
		return err
	}
	if err := declareQueue(ch, t); err != nil {
		return err
	}

	err := ch.QueueBind(
		t.Name, // queue name
		t.Name, // routing key
		t.Name, // exchange
		false,  // no-wait
		nil,    // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", t.Name, t.Name, err)
	}
	return nil
}

func declareExchange(ch Channel, t Topology) error {
	err := ch.ExchangeDeclare(
		t.Name,               // name
		t.Kind,               // type
		t.Options.Durable,    // durable
		t.Options.AutoDelete, // auto-deleted
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Name, err)
	}
	return nil
}

func declareQueue(ch Channel, t Topology) error {
	_, err := ch.QueueDeclare(
		t.Name,               // name
		t.Options.Durable,    // durable
		t.Options.AutoDelete, // delete when unused
		t.Options.Exclusive,  // exclusive
		false,                // no-wait
		t.Options.Args,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Name, err)
	}
	return nil
}
