// Package service holds the persistence-facing services built on gorm.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/chat-orchestrator/internal/errs"
	"github.com/psds-microservice/chat-orchestrator/internal/model"
	"gorm.io/gorm"
)

// ConversationService owns conversations, their messages and the routing
// decision log.
type ConversationService struct {
	db *gorm.DB
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

func (s *ConversationService) Create(ctx context.Context, customerID string) (*model.Conversation, error) {
	conv := &model.Conversation{
		CustomerID: customerID,
		Status:     model.ConversationStatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *ConversationService) Get(ctx context.Context, id uint64) (*model.Conversation, error) {
	var conv model.Conversation
	if err := s.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// AppendMessage persists one message and bumps the conversation's updated_at.
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID uint64, sender model.Sender, senderID, content string) (*model.Message, error) {
	msg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender,
		SenderID:       senderID,
		Content:        content,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, fmt.Errorf("append message to conversation %d: %w", conversationID, err)
	}
	return msg, nil
}

// RecentMessages returns the last limit messages in chronological order.
func (s *ConversationService) RecentMessages(ctx context.Context, conversationID uint64, limit int) ([]model.Message, error) {
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListMessages returns the full transcript, oldest first.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID uint64) ([]model.Message, error) {
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&msgs).Error
	return msgs, err
}

func (s *ConversationService) SaveDecision(ctx context.Context, d *model.RoutingDecision) error {
	return s.db.WithContext(ctx).Create(d).Error
}

// ReturnToAI clears the staff assignment and reopens the conversation.
func (s *ConversationService) ReturnToAI(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            model.ConversationStatusOpen,
			"assigned_staff_id": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrConversationNotFound
	}
	return nil
}

// Close marks the conversation closed. Closing twice keeps the first
// closed_at stamp.
func (s *ConversationService) Close(ctx context.Context, id uint64) error {
	res := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ? AND status <> ?", id, model.ConversationStatusClosed).
		Updates(map[string]interface{}{
			"status":            model.ConversationStatusClosed,
			"assigned_staff_id": "",
			"closed_at":         time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either missing or already closed; distinguish for the caller.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
