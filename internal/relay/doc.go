// Package relay пересылает события inbox в команды отправки сообщений.
//
// # Обзор
//
// Relay — склеивающий компонент воркера:
//
//   - Потребляет события из топологии-источника (режим Exchange)
//   - Извлекает автора и текст с безопасными fallback
//   - Публикует команду sendMessage в топологию-приёмник (режим Direct,
//     durable=false, exclusive=true)
//
// # Маппинг
//
//	{"authorNickname":"Ann","guildId":"g","channelId":"c","message":{"content":"hi"}}
//	→ {"method":"sendMessage","guildId":"g","channelId":"c","content":"Ann said: hi"}
//
// Автор: authorNickname, иначе authorUsername, иначе "Unknown".
// guildId и channelId передаются как есть (строка, число или null).
//
// # Жизненный цикл
//
//	r := relay.New(relay.Config{...})
//	if err := r.Start(ctx); err != nil {
//	    // ошибка объявления топологии — фатальна
//	}
//	coord.Register("relay", r.Close)
//
// Close отменяет consumer и ждёт завершения выполняющихся обработчиков.
package relay
