package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// querier — часть pgxpool.Pool, нужная репозиторию.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AppRepo — чтение токена и названия приложения из таблицы apps.
type AppRepo struct {
	db querier
}

// NewAppRepo создаёт новый AppRepo. Принимает *pgxpool.Pool.
func NewAppRepo(db querier) *AppRepo {
	return &AppRepo{db: db}
}

// GetToken возвращает токен приложения.
// Если приложения нет — ("", ErrNotFound).
func (r *AppRepo) GetToken(ctx context.Context, appID string) (string, error) {
	return r.getColumn(ctx, `SELECT token FROM apps WHERE id = $1`, "token", appID)
}

// GetTitle возвращает название приложения.
func (r *AppRepo) GetTitle(ctx context.Context, appID string) (string, error) {
	return r.getColumn(ctx, `SELECT title FROM apps WHERE id = $1`, "title", appID)
}

func (r *AppRepo) getColumn(ctx context.Context, query, column, appID string) (string, error) {
	// NULL в колонке читается как пустая строка.
	var value *string
	err := r.db.QueryRow(ctx, query, appID).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get app %s: %w", column, err)
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}
