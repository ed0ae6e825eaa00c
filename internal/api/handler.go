package api

import (
	"log/slog"
)

// ShutdownState сообщает, начался ли graceful shutdown.
type ShutdownState interface {
	IsShuttingDown() bool
}

// BrokerState сообщает о состоянии соединения с брокером.
type BrokerState interface {
	IsConnected() bool
}

// RelayState сообщает, обрабатывает ли relay доставки.
type RelayState interface {
	Running() bool
}

// Handler — обработчик служебного API с зависимостями.
type Handler struct {
	shutdown ShutdownState
	broker   BrokerState
	relay    RelayState
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Shutdown ShutdownState
	Broker   BrokerState
	Relay    RelayState
	Logger   *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		shutdown: cfg.Shutdown,
		broker:   cfg.Broker,
		relay:    cfg.Relay,
		logger:   logger,
	}
}
