package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки доставки.
const (
	OutcomeAcked    = "acked"
	OutcomeRejected = "rejected"
	OutcomeUnacked  = "unacked"
)

var (
	// PublishedTotal — опубликованные сообщения по топологии.
	PublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_relay_mq_published_total",
		Help: "Messages handed to the broker transport, by topology",
	}, []string{"topology"})

	// PublishErrorsTotal — ошибки публикации (declare, marshal, transport).
	PublishErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_relay_mq_publish_errors_total",
		Help: "Failed publish attempts, by topology",
	}, []string{"topology"})

	// DeliveriesTotal — обработанные доставки по исходу (acked, rejected, unacked).
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_relay_mq_deliveries_total",
		Help: "Consumed deliveries, by topology and outcome",
	}, []string{"topology", "outcome"})

	// DecodeFallbacksTotal — доставки, не распарсенные как JSON.
	DecodeFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_relay_mq_decode_fallbacks_total",
		Help: "Deliveries passed to the handler as raw text",
	}, []string{"topology"})

	// HandlerDuration — время выполнения обработчика.
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inbox_relay_mq_handler_duration_seconds",
		Help:    "Delivery handler latency, by topology",
		Buckets: prometheus.DefBuckets,
	}, []string{"topology"})

	// RelayedTotal — результаты relay по исходу.
	RelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_relay_relayed_total",
		Help: "Inbox events relayed, by outcome",
	}, []string{"outcome"})

	// ShutdownResourceErrorsTotal — ошибки закрытия ресурсов при shutdown.
	ShutdownResourceErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inbox_relay_shutdown_resource_errors_total",
		Help: "Registered resources that failed to close during shutdown",
	})
)

// HTTPRequestsTotal — запросы к служебному HTTP серверу.
var HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "inbox_relay_http_requests_total",
	Help: "Total HTTP requests handled by the ops server, by path and status code",
}, []string{"path", "code"})
