package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pawboard/pawboard/internal/models"
)

const historyLimit = 300

func (r GormRepo) ChatByID(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &chat, nil
}

func (r GormRepo) ChatsForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.DB.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

// CreateChat returns the existing chat when the pair already has one.
func (r GormRepo) CreateChat(ctx context.Context, user1ID, user2ID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(
			"(user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)",
			user1ID, user2ID, user2ID, user1ID,
		).First(&chat).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		chat = models.Chat{ID: uuid.New(), User1ID: user1ID, User2ID: user2ID}
		return tx.Create(&chat).Error
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r GormRepo) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	return r.DB.WithContext(ctx).Create(msg).Error
}

func (r GormRepo) MessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &msg, nil
}

func (r GormRepo) MessagesForChat(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := r.DB.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Limit(historyLimit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r GormRepo) UpdateMessageContent(ctx context.Context, id uuid.UUID, content string, editedAt time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{"content": content, "edited_at": editedAt}).Error
}
