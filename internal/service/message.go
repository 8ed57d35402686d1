package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pawboard/pawboard/internal/events"
	"github.com/pawboard/pawboard/internal/models"
	"github.com/pawboard/pawboard/internal/repo"
	"github.com/pawboard/pawboard/pkg/logging"
)

const editWindow = 15 * time.Minute

// EventSink receives persisted messages for delivery to live connections.
// Delivery is best-effort; a sink must never block.
type EventSink interface {
	MessageCreated(chat *models.Chat, msg *models.Message)
	MessageUpdated(chat *models.Chat, msg *models.Message)
}

// MessageService is the single entry point for sending a chat message.
// Both the websocket handler and the REST fallback call Submit, so the
// persist-then-fan-out contract cannot diverge between the two paths.
type MessageService struct {
	Repo     repo.GormRepo
	Sink     EventSink
	Producer *events.Producer
}

func (s *MessageService) Submit(ctx context.Context, senderID, chatID uuid.UUID, content string) (*models.Message, error) {
	l := logging.FromContext(ctx).With("svc", "message.submit", "chat_id", chatID.String())

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrInvalidMessage
	}

	chat, err := s.chatForParticipant(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}

	msg := models.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
	}
	if err := s.Repo.CreateMessage(ctx, &msg); err != nil {
		return nil, err
	}

	// Fan out the persisted record, never the pre-persistence draft.
	s.Sink.MessageCreated(chat, &msg)
	s.publish(ctx, l, "chat_message_created", chat, &msg)

	return &msg, nil
}

func (s *MessageService) Edit(ctx context.Context, senderID, chatID, messageID uuid.UUID, content string) (*models.Message, error) {
	l := logging.FromContext(ctx).With("svc", "message.edit", "chat_id", chatID.String())

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrInvalidMessage
	}

	chat, err := s.chatForParticipant(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}

	msg, err := s.Repo.MessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidMessage
		}
		return nil, err
	}
	if msg.ChatID != chatID {
		return nil, ErrInvalidMessage
	}
	if msg.SenderID != senderID {
		return nil, ErrForbidden
	}
	if time.Since(msg.CreatedAt) > editWindow {
		return nil, ErrEditWindowClosed
	}

	editedAt := time.Now().UTC()
	if err := s.Repo.UpdateMessageContent(ctx, messageID, content, editedAt); err != nil {
		return nil, err
	}
	msg.Content = content
	msg.EditedAt = &editedAt

	s.Sink.MessageUpdated(chat, msg)
	s.publish(ctx, l, "chat_message_updated", chat, msg)

	return msg, nil
}

func (s *MessageService) chatForParticipant(ctx context.Context, chatID, userID uuid.UUID) (*models.Chat, error) {
	chat, err := s.Repo.ChatByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, ErrForbidden
	}
	return chat, nil
}

func (s *MessageService) publish(ctx context.Context, l *slog.Logger, eventType string, chat *models.Chat, msg *models.Message) {
	event := map[string]any{
		"type":         eventType,
		"chat_id":      chat.ID.String(),
		"message_id":   msg.ID.String(),
		"sender_id":    msg.SenderID.String(),
		"recipient_id": recipientOf(chat, msg.SenderID).String(),
	}
	if err := s.Producer.PublishEvent(ctx, chat.ID.String(), event); err != nil {
		l.Warn("event_publish_failed", "error", err)
	}
}

func recipientOf(chat *models.Chat, senderID uuid.UUID) uuid.UUID {
	if chat.User1ID == senderID {
		return chat.User2ID
	}
	return chat.User1ID
}
