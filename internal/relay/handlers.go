package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/InboxRelay/internal/mq"
	"github.com/shaiso/InboxRelay/internal/telemetry"
)

// Исходы relay для метрик.
const (
	outcomeRelayed       = "relayed"
	outcomeMalformed     = "malformed"
	outcomePublishFailed = "publish_failed"
)

const (
	methodSendMessage = "sendMessage"
	unknownAuthor     = "Unknown"
)

// InboxEvent — входящее событие о сообщении.
type InboxEvent struct {
	AuthorNickname string          `json:"authorNickname"`
	AuthorUsername string          `json:"authorUsername"`
	GuildID        json.RawMessage `json:"guildId"`
	ChannelID      json.RawMessage `json:"channelId"`
	Message        struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Author возвращает ник, иначе имя пользователя, иначе "Unknown".
func (e *InboxEvent) Author() string {
	switch {
	case e.AuthorNickname != "":
		return e.AuthorNickname
	case e.AuthorUsername != "":
		return e.AuthorUsername
	default:
		return unknownAuthor
	}
}

// SendMessageCommand — исходящая команда. Порядок полей фиксирован.
// Отсутствующие guildId/channelId не сериализуются.
type SendMessageCommand struct {
	Method    string          `json:"method"`
	GuildID   json.RawMessage `json:"guildId,omitempty"`
	ChannelID json.RawMessage `json:"channelId,omitempty"`
	Content   string          `json:"content"`
}

// BuildCommand строит команду sendMessage из события.
func BuildCommand(event *InboxEvent) SendMessageCommand {
	return SendMessageCommand{
		Method:    methodSendMessage,
		GuildID:   event.GuildID,
		ChannelID: event.ChannelID,
		Content:   fmt.Sprintf("%s said: %s", event.Author(), event.Message.Content),
	}
}

// Handle обрабатывает одну доставку из топологии-источника.
func (r *Relay) Handle(ctx context.Context, env *mq.Envelope) error {
	if _, ok := env.Value.(map[string]any); !ok {
		telemetry.RelayedTotal.WithLabelValues(outcomeMalformed).Inc()
		return fmt.Errorf("%w: expected JSON object, got %T", ErrMalformedEvent, env.Value)
	}

	var event InboxEvent
	if err := env.Decode(&event); err != nil {
		telemetry.RelayedTotal.WithLabelValues(outcomeMalformed).Inc()
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	cmd := BuildCommand(&event)

	if err := r.publisher.Publish(ctx, r.destination, cmd); err != nil {
		telemetry.RelayedTotal.WithLabelValues(outcomePublishFailed).Inc()
		return fmt.Errorf("publish to %s: %w", r.destination.Name, err)
	}

	telemetry.RelayedTotal.WithLabelValues(outcomeRelayed).Inc()
	telemetry.FromContext(ctx).Debug("message relayed",
		"destination", r.destination.Name,
		"author", event.Author(),
	)

	return nil
}
