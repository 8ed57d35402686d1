package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"     json:"id"`
	Email        string    `gorm:"uniqueIndex;not null"     json:"email"`
	Name         string    `                                json:"name"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         string    `gorm:"not null;default:USER"    json:"role"`
	Blocked      bool      `gorm:"not null;default:false"   json:"blocked"`
	CreatedAt    time.Time `                                json:"created_at"`
}

// Chat is a two-party conversation. Participant order carries no meaning.
type Chat struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"             json:"id"`
	User1ID   uuid.UUID `gorm:"type:uuid;index;not null"         json:"user1_id"`
	User2ID   uuid.UUID `gorm:"type:uuid;index;not null"         json:"user2_id"`
	CreatedAt time.Time `                                        json:"created_at"`
}

func (c *Chat) HasParticipant(userID uuid.UUID) bool {
	return c.User1ID == userID || c.User2ID == userID
}

type Message struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"     json:"id"`
	ChatID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"chat_id"`
	SenderID  uuid.UUID  `gorm:"type:uuid;not null"       json:"sender_id"`
	Content   string     `gorm:"not null"                 json:"content"`
	CreatedAt time.Time  `                                json:"created_at"`
	EditedAt  *time.Time `                                json:"edited_at,omitempty"`
}
