// Inbox Relay — пересылает события inbox в очередь команд Discord.
//
// Worker:
//   - Получает события из exchange-топологии (RELAY_SOURCE)
//   - Строит команду sendMessage с автором и текстом
//   - Публикует её в очередь результатов (RELAY_DESTINATION)
//   - Отдаёт /healthz и /metrics
//
// Завершается по SIGTERM/SIGINT/SIGHUP с закрытием ресурсов.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/shaiso/InboxRelay/internal/api"
	"github.com/shaiso/InboxRelay/internal/config"
	"github.com/shaiso/InboxRelay/internal/mq"
	"github.com/shaiso/InboxRelay/internal/relay"
	"github.com/shaiso/InboxRelay/internal/shutdown"
	"github.com/shaiso/InboxRelay/internal/telemetry"
)

func main() {
	// .env читается до логгера: там могут быть LOG_LEVEL и LOG_FORMAT
	cfg, cfgErr := config.Load()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	if cfgErr != nil {
		logger.Error("invalid configuration", "error", cfgErr)
		os.Exit(1)
	}
	logger.Info("starting inbox-relay")

	ctx := context.Background()

	// graceful shutdown
	coord := shutdown.New(shutdown.Config{
		Logger:       logger,
		Signals:      cfg.Shutdown.Signals,
		CloseTimeout: cfg.Shutdown.Timeout,
	})
	coord.Listen(ctx)

	// RabbitMQ
	mqConn := mq.NewConnection(cfg.Broker.URL(), logger,
		mq.WithConnectTimeout(cfg.Broker.ConnectTimeout),
	)
	if _, err := mqConn.Channel(ctx); err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	// регистрируется первым: закрывается после relay и HTTP сервера
	coord.RegisterCloser("rabbitmq", mqConn)

	policy := mq.FailureReject
	if !cfg.Relay.RejectOnFailure {
		policy = mq.FailureLeaveUnacked
	}

	publisher := mq.NewPublisher(mqConn, logger)
	consumer := mq.NewConsumer(mqConn, logger,
		mq.WithPrefetch(cfg.Relay.Prefetch),
		mq.WithConcurrency(cfg.Relay.Concurrency),
		mq.WithFailurePolicy(policy),
	)

	// Создаём relay
	r := relay.New(relay.Config{
		Source:      mq.ExchangeTopology(cfg.Relay.Source, cfg.Relay.SourceKind),
		Destination: mq.ResultQueue(cfg.Relay.Destination),
		Publisher:   publisher,
		Consumer:    consumer,
		Logger:      logger,
	})

	// Запускаем relay
	if err := r.Start(ctx); err != nil {
		logger.Error("failed to start relay", "error", err)
		os.Exit(1)
	}
	coord.Register("relay", r.Close)

	// Брокер может завершить поток сам (basic.cancel, ошибка канала).
	// Reconnect не выполняется: процесс завершается с кодом 1.
	go func() {
		select {
		case <-r.Done():
			if err := r.Err(); err != nil {
				logger.Error("relay stopped, shutting down", "error", err)
				coord.Abort("relay stopped")
			}
		case <-coord.Done():
		}
	}()

	// HTTP mux: /healthz + /metrics
	handler := api.NewHandler(api.Config{
		Shutdown: coord,
		Broker:   mqConn,
		Relay:    r,
		Logger:   logger,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: mux,
	}
	coord.Register("http server", srv.Shutdown)

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			coord.Shutdown("http server error")
		}
	}()

	// Ожидаем завершения shutdown
	coord.Wait()
}
