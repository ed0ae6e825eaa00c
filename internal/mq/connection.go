package mq

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Значения по умолчанию для соединения.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultConnectionName = "inbox-relay"
)

// Channel — подмножество методов *amqp.Channel, которыми пользуется пакет.
// Один канал обслуживает и публикацию, и потребление.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Session — установленное соединение с брокером.
type Session interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer открывает новое соединение по AMQP URI.
type Dialer func(url string) (Session, error)

// Connection — единственное соединение процесса с RabbitMQ.
//
// Соединение и канал создаются при первом вызове Channel и
// переиспользуются до конца жизни процесса. Reconnect не выполняется:
// ошибка подключения возвращается вызывающему.
type Connection struct {
	url            string
	name           string
	connectTimeout time.Duration
	dial           Dialer
	logger         *slog.Logger

	// mu сериализует первое подключение: конкурентные вызовы Channel
	// ждут одну попытку dial, а не запускают свои.
	mu      sync.Mutex
	session Session
	channel Channel
}

// ConnectionOption настраивает Connection.
type ConnectionOption func(*Connection)

// WithDialer подменяет функцию подключения.
func WithDialer(dial Dialer) ConnectionOption {
	return func(c *Connection) {
		c.dial = dial
	}
}

// WithConnectTimeout ограничивает время TCP-подключения к брокеру.
func WithConnectTimeout(timeout time.Duration) ConnectionOption {
	return func(c *Connection) {
		if timeout > 0 {
			c.connectTimeout = timeout
		}
	}
}

// WithConnectionName задаёт имя соединения, видимое в management UI.
func WithConnectionName(name string) ConnectionOption {
	return func(c *Connection) {
		if name != "" {
			c.name = name
		}
	}
}

// NewConnection создаёт Connection. Сетевых операций не выполняет.
func NewConnection(url string, logger *slog.Logger, opts ...ConnectionOption) *Connection {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:            url,
		name:           defaultConnectionName,
		connectTimeout: defaultConnectTimeout,
		logger:         logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.dial == nil {
		c.dial = DialAMQP(c.connectTimeout, c.name)
	}

	return c
}

// Channel возвращает общий канал, подключаясь при первом вызове.
func (c *Connection) Channel(ctx context.Context) (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		return c.channel, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session, err := c.dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp %s: %w", SanitizeURL(c.url), err)
	}

	ch, err := session.Channel()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c.session = session
	c.channel = ch

	c.logger.Info("connected to RabbitMQ", "url", SanitizeURL(c.url), "connection_name", c.name)

	return ch, nil
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.session != nil && !c.session.IsClosed()
}

// Close закрывает соединение вместе с каналом. Без соединения — no-op.
// После Close следующий вызов Channel подключается заново.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}

	err := c.session.Close()
	c.session = nil
	c.channel = nil
	if err != nil {
		return fmt.Errorf("close amqp connection: %w", err)
	}

	c.logger.Info("disconnected from RabbitMQ", "url", SanitizeURL(c.url))
	return nil
}

// resetForTest закрывает соединение, игнорируя ошибки закрытия.
func (c *Connection) resetForTest() {
	_ = c.Close()
}

// DialAMQP возвращает Dialer поверх amqp.DialConfig.
func DialAMQP(connectTimeout time.Duration, connectionName string) Dialer {
	return func(url string) (Session, error) {
		props := amqp.NewConnectionProperties()
		props.SetClientConnectionName(connectionName)

		conn, err := amqp.DialConfig(url, amqp.Config{
			Dial:       amqp.DefaultDial(connectTimeout),
			Properties: props,
			Locale:     "en_US",
		})
		if err != nil {
			return nil, err
		}
		return &amqpSession{Connection: conn}, nil
	}
}

// amqpSession адаптирует *amqp.Connection к Session.
type amqpSession struct {
	*amqp.Connection
}

func (s *amqpSession) Channel() (Channel, error) {
	ch, err := s.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// SanitizeURL скрывает пароль в AMQP URI для логов.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
