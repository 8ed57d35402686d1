package ws

import "github.com/pawboard/pawboard/internal/models"

// Frame is the single wire shape for both directions; unused fields are
// omitted from the encoded JSON.
type Frame struct {
	Type    string          `json:"type"`
	ChatID  string          `json:"chatId,omitempty"`
	Content string          `json:"content,omitempty"`
	Message *models.Message `json:"message,omitempty"`
	Count   int             `json:"count,omitempty"`
	Code    string          `json:"code,omitempty"`
}

const (
	TypePing        = "ping"
	TypePong        = "pong"
	TypeChatJoin    = "chat:join"
	TypeChatJoined  = "chat:joined"
	TypeChatSend    = "chat:send"
	TypeChatNew     = "chat:new"
	TypeChatUpdated = "chat:updated"
	TypeError       = "error"
	TypeOnlineCount = "online:count"
)

const (
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeChatNotFound   = "CHAT_NOT_FOUND"
	CodeForbidden      = "FORBIDDEN"
	CodeBadRequest     = "BAD_REQUEST"
)
