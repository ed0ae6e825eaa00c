package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Политика пула фиксирована и не настраивается через окружение.
const (
	maxConns          = 10
	healthCheckPeriod = 30 * time.Second
	pingTimeout       = 5 * time.Second
)

// ErrNotConfigured — DSN базы данных не задан.
var ErrNotConfigured = errors.New("database not configured")

// NewPool открывает пул соединений к БД приложений и проверяет его ping'ом.
// Когда все maxConns соединений заняты, запрос ждёт освобождения.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, ErrNotConfigured
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db %s@%s: %w", cfg.ConnConfig.User, cfg.ConnConfig.Host, err)
	}
	return pool, nil
}
