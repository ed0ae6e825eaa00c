package relay

import "errors"

// Ошибки relay.
var (
	// ErrMalformedEvent — доставка не является JSON-объектом события.
	ErrMalformedEvent = errors.New("malformed inbox event")

	// ErrNotStarted — Relay ещё не запущен.
	ErrNotStarted = errors.New("relay not started")

	// ErrStreamLost — брокер завершил поток доставок без вызова Close
	// (basic.cancel, закрытие канала или соединения).
	ErrStreamLost = errors.New("source stream ended unexpectedly")

	// ErrStopped — Relay уже остановился; повторный запуск не поддерживается.
	ErrStopped = errors.New("relay stopped")
)
