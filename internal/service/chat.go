package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"receipt-overseer/internal/events"
	"receipt-overseer/internal/models"
	"receipt-overseer/internal/repositories"
	"receipt-overseer/internal/telemetry"
)

const maxMessageLength = 2000

// ChatService applies chat actions and publishes the resulting events.
type ChatService struct {
	messages  repositories.MessageRepository
	publisher events.Publisher
	audit     *telemetry.AuditEmitter
	locks     *keyedLocker
}

func NewChatService(messages repositories.MessageRepository, publisher events.Publisher, audit *telemetry.AuditEmitter) *ChatService {
	return &ChatService{
		messages:  messages,
		publisher: publisher,
		audit:     audit,
		locks:     newKeyedLocker(),
	}
}

// Post stores a message and delivers it to everyone, the author's own sessions included.
func (s *ChatService) Post(ctx context.Context, actor Actor, content string) (models.ChatMessage, error) {
	content, err := normalizeContent(content)
	if err != nil {
		return models.ChatMessage{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, actor.UserID, content)
	if err != nil {
		return models.ChatMessage{}, classify(err)
	}
	slog.Debug("chat message stored", "message_id", msg.ID, "user_id", actor.UserID)

	s.publisher.Publish(ctx, events.MessageCreated{
		ID:       msg.ID,
		AuthorID: msg.AuthorID,
		Author:   msg.Author,
		Content:  msg.Content,
		Time:     msg.CreatedAt,
	}, events.All())
	return msg, nil
}

func (s *ChatService) Edit(ctx context.Context, actor Actor, messageID int, content string) (models.ChatMessage, error) {
	content, err := normalizeContent(content)
	if err != nil {
		return models.ChatMessage{}, err
	}

	unlock := s.locks.Lock(messageKey(messageID))
	defer unlock()

	msg, err := s.messages.UpdateMessage(ctx, messageID, actor.UserID, content)
	if err != nil {
		err = classify(err)
		s.auditDenied(ctx, actor, err, "edit message", messageID)
		return models.ChatMessage{}, err
	}

	s.publisher.Publish(ctx, events.MessageUpdated{ID: msg.ID, Content: msg.Content}, events.All())
	return msg, nil
}

func (s *ChatService) Delete(ctx context.Context, actor Actor, messageID int) error {
	unlock := s.locks.Lock(messageKey(messageID))
	defer unlock()

	if err := s.messages.DeleteMessage(ctx, messageID, actor.UserID); err != nil {
		err = classify(err)
		s.auditDenied(ctx, actor, err, "delete message", messageID)
		return err
	}
	s.audit.Emit(ctx, telemetry.LevelInfo, fmt.Sprintf("message %d deleted", messageID), actor.UserID)

	s.publisher.Publish(ctx, events.MessageDeleted{ID: messageID}, events.All())
	return nil
}

// History returns the latest messages, oldest first.
func (s *ChatService) History(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	if limit < 0 {
		return nil, validationError("limit must not be negative")
	}
	return s.messages.ListRecentMessages(ctx, limit)
}

func (s *ChatService) auditDenied(ctx context.Context, actor Actor, err error, action string, id int) {
	if Code(err) != CodeForbidden {
		return
	}
	slog.Warn("forbidden chat action", "action", action, "message_id", id, "user_id", actor.UserID)
	s.audit.Emit(ctx, telemetry.LevelWarn, fmt.Sprintf("%s %d denied: not the author", action, id), actor.UserID)
}

func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", validationError("message content is required")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return "", validationError("message exceeds %d characters", maxMessageLength)
	}
	return content, nil
}

func messageKey(id int) string {
	return "message:" + strconv.Itoa(id)
}
