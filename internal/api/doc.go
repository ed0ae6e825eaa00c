// Package api содержит служебный HTTP сервер воркера.
//
// Структура:
//   - handler.go    — Handler с DI (проверки состояния, logger)
//   - routes.go     — регистрация маршрутов
//   - middleware.go — middleware (logging, recovery)
//   - response.go   — унифицированные JSON-ответы
//   - health.go     — обработчик /healthz
//
// Endpoints:
//   - GET /healthz — 200, если процесс работает и брокер подключён; иначе 503
//   - GET /metrics — метрики Prometheus
package api
