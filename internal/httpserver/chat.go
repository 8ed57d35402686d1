package httpserver

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pawboard/pawboard/internal/models"
	"github.com/pawboard/pawboard/internal/repo"
	"github.com/pawboard/pawboard/internal/service"
	"github.com/pawboard/pawboard/pkg/logging"
)

type ChatHTTP struct {
	Repo     repo.GormRepo
	Messages *service.MessageService
}

func (h *ChatHTTP) ListChats(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	chats, err := h.Repo.ChatsForUser(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("list_chats_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list chats")
	}
	return c.JSON(http.StatusOK, chats)
}

func (h *ChatHTTP) CreateChat(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	var req struct {
		OtherUserID string `json:"other_user_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	otherID, err := uuid.Parse(req.OtherUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "other_user_id is required")
	}
	if otherID == userID {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot open a chat with yourself")
	}
	if _, err := h.Repo.UserByID(ctx, otherID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot load user")
	}

	chat, err := h.Repo.CreateChat(ctx, userID, otherID)
	if err != nil {
		logging.FromContext(ctx).Error("create_chat_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create chat")
	}
	return c.JSON(http.StatusCreated, chat)
}

func (h *ChatHTTP) GetChat(c echo.Context) error {
	chat, err := h.chatForParticipant(c, currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, chat)
}

func (h *ChatHTTP) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	chat, err := h.chatForParticipant(c, userID)
	if err != nil {
		return err
	}

	msgs, err := h.Repo.MessagesForChat(ctx, chat.ID)
	if err != nil {
		logging.FromContext(ctx).Error("list_messages_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list messages")
	}
	return c.JSON(http.StatusOK, msgs)
}

// SendMessage is the fallback delivery path: same Submit call as the
// websocket route, but the persisted message also comes back as the
// response body so the sender observes it even with zero live connections.
func (h *ChatHTTP) SendMessage(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	msg, err := h.Messages.Submit(ctx, userID, chatID, req.Content)
	if err != nil {
		return messageError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *ChatHTTP) EditMessage(c echo.Context) error {
	ctx := c.Request().Context()
	userID := currentUserID(c)

	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	msg, err := h.Messages.Edit(ctx, userID, chatID, messageID, req.Content)
	if err != nil {
		return messageError(c, err)
	}
	return c.JSON(http.StatusOK, msg)
}

func (h *ChatHTTP) chatForParticipant(c echo.Context, userID uuid.UUID) (*models.Chat, error) {
	ctx := c.Request().Context()

	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}
	chat, err := h.Repo.ChatByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, echo.NewHTTPError(http.StatusNotFound, "chat not found")
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "cannot load chat")
	}
	if !chat.HasParticipant(userID) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "not a chat participant")
	}
	return chat, nil
}

func messageError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidMessage):
		return echo.NewHTTPError(http.StatusBadRequest, "message content is required")
	case errors.Is(err, service.ErrChatNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	case errors.Is(err, service.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "not allowed")
	case errors.Is(err, service.ErrEditWindowClosed):
		return echo.NewHTTPError(http.StatusForbidden, "edit window closed")
	default:
		logging.FromContext(c.Request().Context()).Error("message_failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot process message")
	}
}

func currentUserID(c echo.Context) uuid.UUID {
	id, _ := uuid.Parse(c.Get("user_id").(string))
	return id
}
