// Package chat はユーザー間のメッセージ送受信を提供する。
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/movaschool/movaschool/internal/model"
	"github.com/movaschool/movaschool/internal/repository"
	"github.com/movaschool/movaschool/internal/security"
)

// defaultConversationLimit は会話取得の既定件数。
const defaultConversationLimit = 50

// Service はチャットに関するビジネスロジックを提供する。
type Service struct {
	messageRepo repository.MessageRepository
	profileRepo repository.ProfileRepository
	sanitizer   security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	messageRepo repository.MessageRepository,
	profileRepo repository.ProfileRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		messageRepo: messageRepo,
		profileRepo: profileRepo,
		sanitizer:   sanitizer,
	}
}

// Send はメッセージを送信する。本文はプレーンテキスト化され、
// サニタイズ後に空になった場合は拒否される。
func (s *Service) Send(ctx context.Context, sender *model.Profile, recipientID, body string) (*model.Message, error) {
	clean := s.sanitizer.SanitizePlain(body)
	if clean == "" {
		return nil, model.NewEmptyMessageError()
	}

	recipient, err := s.profileRepo.FindByID(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to find recipient: %w", err)
	}
	if recipient == nil {
		return nil, model.NewRecipientNotFoundError()
	}

	message := &model.Message{
		ID:          uuid.New().String(),
		SenderID:    sender.ID,
		RecipientID: recipientID,
		Body:        clean,
		CreatedAt:   time.Now(),
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	slog.Info("message sent",
		slog.String("message_id", message.ID),
		slog.String("sender_id", sender.ID),
		slog.String("recipient_id", recipientID),
	)
	return message, nil
}

// Conversation は2ユーザー間のメッセージをsince以降、作成昇順で返す。
func (s *Service) Conversation(ctx context.Context, user *model.Profile, otherID string, since time.Time, limit int) ([]*model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultConversationLimit
	}

	messages, err := s.messageRepo.ListConversation(ctx, user.ID, otherID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	return messages, nil
}
