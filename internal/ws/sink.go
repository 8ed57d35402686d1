package ws

import "github.com/pawboard/pawboard/internal/models"

// MessageCreated fans the persisted message out to both participants, once
// per participant id, so every device of both users sees it.
func (r *Registry) MessageCreated(chat *models.Chat, msg *models.Message) {
	r.fanOut(TypeChatNew, chat, msg)
}

func (r *Registry) MessageUpdated(chat *models.Chat, msg *models.Message) {
	r.fanOut(TypeChatUpdated, chat, msg)
}

func (r *Registry) fanOut(frameType string, chat *models.Chat, msg *models.Message) {
	frame := Frame{Type: frameType, ChatID: chat.ID.String(), Message: msg}
	r.SendTo(chat.User1ID.String(), frame)
	if chat.User2ID != chat.User1ID {
		r.SendTo(chat.User2ID.String(), frame)
	}
}
