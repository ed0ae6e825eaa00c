// Package cli реализует инструмент командной строки relayctl.
//
// # Обзор
//
// relayctl — утилита для ручной работы с брокером и БД приложений:
// опубликовать событие, прочитать сообщения из топологии, посмотреть
// токен или название приложения.
//
// # Ключевые компоненты
//
// ## Deps
//
// Ленивые фабрики зависимостей. Соединение с брокером и пул БД
// создаются только командами, которым они нужны:
//
//	deps := cli.Deps{Broker: brokerFn, Apps: appsFn, Output: outputFn}
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: relayctl consume discord --json | jq .
//
// ## Commands
//
//   - publish TOPOLOGY JSON: --mode, --kind, --durable, --exclusive
//   - consume TOPOLOGY: --mode, --kind, --count
//   - app: token ID, title ID
package cli
