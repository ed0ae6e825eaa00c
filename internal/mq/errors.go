package mq

import "errors"

// Ошибки пакета mq.
var (
	// ErrEmptyTopology — у топологии не задано имя.
	ErrEmptyTopology = errors.New("topology name is empty")

	// ErrUnknownMode — неизвестный режим топологии.
	ErrUnknownMode = errors.New("unknown topology mode")

	// ErrStreamClosed — брокер закрыл канал доставок (consumer отменён или канал упал).
	ErrStreamClosed = errors.New("delivery stream closed")

	// ErrHandlerPanic — обработчик доставки запаниковал.
	ErrHandlerPanic = errors.New("handler panicked")
)
