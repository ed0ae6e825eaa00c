// Package shutdown координирует graceful shutdown процесса.
//
// Coordinator переходит из Running в ShuttingDown ровно один раз,
// по сигналу ОС или прямому вызову Shutdown. При переходе закрываются
// все зарегистрированные ресурсы (в обратном порядке регистрации),
// после чего процесс завершается с кодом 0.
//
//	coord := shutdown.New(shutdown.Config{Logger: logger})
//	coord.Listen(ctx)
//	coord.Register("http server", srv.Shutdown)
//	coord.Wait()
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shaiso/InboxRelay/internal/telemetry"
)

const defaultCloseTimeout = 10 * time.Second

// ErrCloseTimeout — ресурс не закрылся за отведённое время.
var ErrCloseTimeout = errors.New("close timed out")

// CloseFunc закрывает ресурс. ctx ограничивает время закрытия.
type CloseFunc func(ctx context.Context) error

// Config — конфигурация Coordinator.
type Config struct {
	Logger *slog.Logger

	// Signals — сигналы, запускающие shutdown (default: SIGTERM, SIGINT, SIGHUP).
	Signals []os.Signal

	// CloseTimeout — лимит на закрытие одного ресурса (default: 10s).
	CloseTimeout time.Duration

	// Exit завершает процесс (default: os.Exit).
	Exit func(code int)
}

// DefaultSignals возвращает сигналы завершения по умолчанию.
func DefaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP}
}

type resource struct {
	name  string
	close CloseFunc
}

// Coordinator — состояние shutdown процесса и реестр ресурсов.
type Coordinator struct {
	logger       *slog.Logger
	signals      []os.Signal
	closeTimeout time.Duration
	exit         func(code int)

	shuttingDown atomic.Bool
	done         chan struct{}
	finished     chan struct{}

	mu        sync.Mutex
	resources []resource
}

// New создаёт Coordinator в состоянии Running.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	signals := cfg.Signals
	if len(signals) == 0 {
		signals = DefaultSignals()
	}

	closeTimeout := cfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = defaultCloseTimeout
	}

	exit := cfg.Exit
	if exit == nil {
		exit = os.Exit
	}

	return &Coordinator{
		logger:       logger,
		signals:      signals,
		closeTimeout: closeTimeout,
		exit:         exit,
		done:         make(chan struct{}),
		finished:     make(chan struct{}),
	}
}

// Register добавляет ресурс, который нужно закрыть при shutdown.
// Ресурсы, зарегистрированные после начала shutdown, не закрываются.
func (c *Coordinator) Register(name string, fn CloseFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shuttingDown.Load() {
		c.logger.Warn("resource registered during shutdown, it will not be closed", "resource", name)
		return
	}

	c.resources = append(c.resources, resource{name: name, close: fn})
}

// RegisterCloser регистрирует синхронный io.Closer.
func (c *Coordinator) RegisterCloser(name string, closer io.Closer) {
	c.Register(name, func(context.Context) error {
		return closer.Close()
	})
}

// IsShuttingDown сообщает, начался ли shutdown.
func (c *Coordinator) IsShuttingDown() bool {
	return c.shuttingDown.Load()
}

// Done закрывается в момент перехода в ShuttingDown.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Wait блокируется до завершения shutdown.
// С os.Exit в качестве Exit управление не возвращается.
func (c *Coordinator) Wait() {
	<-c.finished
}

// Listen подписывается на сигналы и запускает Shutdown на каждый из них.
// Подписка активна к моменту возврата; снимается при отмене ctx.
func (c *Coordinator) Listen(ctx context.Context) {
	sigCh := make(chan os.Signal, len(c.signals))
	signal.Notify(sigCh, c.signals...)

	go func() {
		defer signal.Stop(sigCh)

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				go c.Shutdown(SignalName(sig))
			}
		}
	}()
}

// Shutdown выполняет переход Running → ShuttingDown.
//
// Первый вызов закрывает ресурсы и вызывает Exit(0). Повторные вызовы
// только пишут предупреждение с именем сигнала.
func (c *Coordinator) Shutdown(sig string) {
	c.shutdown(sig, 0)
}

// Abort — аварийный вариант Shutdown: ресурсы закрываются так же,
// но процесс завершается с кодом 1. Используется, когда рабочая часть
// процесса остановилась сама и продолжать работу нет смысла.
func (c *Coordinator) Abort(reason string) {
	c.shutdown(reason, 1)
}

func (c *Coordinator) shutdown(sig string, code int) {
	c.mu.Lock()
	if !c.shuttingDown.CompareAndSwap(false, true) {
		c.mu.Unlock()
		c.logger.Warn("signal received again, already shutting down", "signal", sig)
		return
	}
	close(c.done)

	resources := make([]resource, len(c.resources))
	copy(resources, c.resources)
	c.mu.Unlock()

	c.logger.Info("shutting down gracefully", "signal", sig, "resources", len(resources))

	// Закрываем в обратном порядке: последним открыт — первым закрыт.
	for i := len(resources) - 1; i >= 0; i-- {
		r := resources[i]
		start := time.Now()

		if err := c.closeResource(r); err != nil {
			telemetry.ShutdownResourceErrorsTotal.Inc()
			c.logger.Error("failed to close resource",
				"resource", r.name,
				"duration", time.Since(start),
				"error", err,
			)
			continue
		}

		c.logger.Info("resource closed", "resource", r.name, "duration", time.Since(start))
	}

	c.logger.Info("shutdown complete", "signal", sig, "exit_code", code)
	c.exit(code)
	close(c.finished)
}

// closeResource закрывает ресурс с таймаутом; паника превращается в ошибку.
func (c *Coordinator) closeResource(r resource) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.closeTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				errCh <- fmt.Errorf("close panicked: %v", rec)
			}
		}()
		errCh <- r.close(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %s", ErrCloseTimeout, c.closeTimeout)
	}
}

// signalNames — имена сигналов в привычной записи.
var signalNames = map[os.Signal]string{
	syscall.SIGTERM: "SIGTERM",
	syscall.SIGINT:  "SIGINT",
	syscall.SIGHUP:  "SIGHUP",
	syscall.SIGQUIT: "SIGQUIT",
	syscall.SIGUSR1: "SIGUSR1",
	syscall.SIGUSR2: "SIGUSR2",
}

// SignalName возвращает имя сигнала вида "SIGTERM".
func SignalName(sig os.Signal) string {
	if name, ok := signalNames[sig]; ok {
		return name
	}
	return sig.String()
}
