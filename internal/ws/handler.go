package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/pawboard/pawboard/internal/service"
	"github.com/pawboard/pawboard/pkg/logging"
)

type Handler struct {
	Registry *Registry
	Tokens   *service.TokenService
	Messages *service.MessageService

	upgrader websocket.Upgrader
}

func NewHandler(registry *Registry, tokens *service.TokenService, messages *service.MessageService) *Handler {
	return &Handler{
		Registry: registry,
		Tokens:   tokens,
		Messages: messages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and runs the connection until the transport
// drops. An absent or invalid token yields an unauthenticated connection,
// not a rejected handshake.
func (h *Handler) Serve(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "ws")

	wsConn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		l.Warn("ws_upgrade_failed", "error", err)
		return err
	}

	var userID, role string
	if token := c.QueryParam("token"); token != "" {
		if claims, vErr := h.Tokens.VerifyAccess(token); vErr == nil {
			userID = claims.UserID()
			role = claims.Role
		}
	}

	conn := newConn(wsConn, userID, role)
	go conn.writePump()

	h.Registry.Register(conn)
	count := h.Registry.Count()
	h.Registry.BroadcastAll(Frame{Type: TypeOnlineCount, Count: count})
	conn.sendFrame(Frame{Type: TypeOnlineCount, Count: count})

	l.Info("ws_connected", "authenticated", conn.Authenticated())

	for {
		_, raw, readErr := wsConn.ReadMessage()
		if readErr != nil {
			break
		}
		h.handleFrame(ctx, conn, raw)
	}

	conn.Close()
	h.Registry.Unregister(conn)
	h.Registry.BroadcastAll(Frame{Type: TypeOnlineCount, Count: h.Registry.Count()})
	l.Info("ws_disconnected")

	return nil
}

// handleFrame dispatches one inbound frame. Logical failures are answered
// with an error frame on the same connection; only transport failures end
// the connection.
func (h *Handler) handleFrame(ctx context.Context, conn *Conn, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		conn.sendFrame(Frame{Type: TypeError, Code: CodeBadRequest})
		return
	}

	switch frame.Type {
	case TypePing:
		conn.sendFrame(Frame{Type: TypePong})

	case TypeChatJoin:
		if frame.ChatID != "" {
			conn.joinChat(frame.ChatID)
		}
		conn.sendFrame(Frame{Type: TypeChatJoined, ChatID: frame.ChatID})

	case TypeChatSend:
		h.handleChatSend(ctx, conn, frame)
	}
}

func (h *Handler) handleChatSend(ctx context.Context, conn *Conn, frame Frame) {
	if !conn.Authenticated() {
		conn.sendFrame(Frame{Type: TypeError, Code: CodeUnauthorized})
		return
	}

	senderID, err := uuid.Parse(conn.userID)
	if err != nil {
		conn.sendFrame(Frame{Type: TypeError, Code: CodeUnauthorized})
		return
	}
	chatID, err := uuid.Parse(frame.ChatID)
	if err != nil {
		conn.sendFrame(Frame{Type: TypeError, Code: CodeChatNotFound})
		return
	}

	// Delivery to this connection happens through the fan-out, same as for
	// every other device of the sender.
	if _, err := h.Messages.Submit(ctx, senderID, chatID, frame.Content); err != nil {
		conn.sendFrame(Frame{Type: TypeError, Code: errorCode(err)})
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidMessage):
		return CodeInvalidMessage
	case errors.Is(err, service.ErrChatNotFound):
		return CodeChatNotFound
	case errors.Is(err, service.ErrForbidden):
		return CodeForbidden
	default:
		return CodeBadRequest
	}
}
