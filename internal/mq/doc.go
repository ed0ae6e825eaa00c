// Package mq предоставляет клиентский слой RabbitMQ для relay-воркера.
//
// Структура:
//   - connection.go — одно соединение и один канал на процесс, создаются лениво
//   - topology.go   — дескрипторы топологии (Direct / Exchange) и их объявление
//   - publisher.go  — публикация JSON payload в очередь или exchange
//   - consumer.go   — подписка на топологию и цикл обработки с ручным ack
//   - stream.go     — поток доставок и декодирование envelope
//
// Режимы топологии:
//   - Direct   — одна именованная очередь для отправки и получения
//   - Exchange — exchange + одноимённая очередь, привязанная по routing key = имя
//
// Гарантии: at-least-once через ручной ack, publisher confirms не используются.
package mq
