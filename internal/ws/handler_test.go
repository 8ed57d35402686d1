package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pawboard/pawboard/internal/hash"
	"github.com/pawboard/pawboard/internal/models"
	"github.com/pawboard/pawboard/internal/repo"
	"github.com/pawboard/pawboard/internal/service"
	"github.com/pawboard/pawboard/internal/tokenstore"
	"github.com/pawboard/pawboard/pkg/logging"
)

type wsFixture struct {
	server   *httptest.Server
	tokenSvc *service.TokenService
	repo     repo.GormRepo
	u1, u2   *models.User
	chat     *models.Chat
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repo.AutoMigrate(db))

	r := repo.New(db)
	tokenSvc := &service.TokenService{
		Repo:       r,
		Store:      tokenstore.NewMemoryStore(),
		Secret:     []byte("test-access-secret"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}

	registry := NewRegistry(logging.New("error"))
	messageSvc := &service.MessageService{Repo: r, Sink: registry}

	e := echo.New()
	e.GET("/ws", NewHandler(registry, tokenSvc, messageSvc).Serve)

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	t.Cleanup(registry.Shutdown)

	f := &wsFixture{server: server, tokenSvc: tokenSvc, repo: r}
	f.u1 = f.createUser(t, "u1@example.com")
	f.u2 = f.createUser(t, "u2@example.com")

	chat, err := r.CreateChat(context.Background(), f.u1.ID, f.u2.ID)
	require.NoError(t, err)
	f.chat = chat

	return f
}

func (f *wsFixture) createUser(t *testing.T, email string) *models.User {
	t.Helper()

	pwHash, err := hash.HashPassword("password")
	require.NoError(t, err)
	user := models.User{Email: email, PasswordHash: pwHash, Role: models.RoleUser}
	require.NoError(t, f.repo.CreateUser(context.Background(), &user))
	return &user
}

func (f *wsFixture) accessToken(t *testing.T, user *models.User) string {
	t.Helper()

	pair, err := f.tokenSvc.IssuePair(context.Background(), user)
	require.NoError(t, err)
	return pair.AccessToken
}

func (f *wsFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var f Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

// readUntil skips unrelated frames (online:count churn mostly) until one of
// the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) Frame {
	t.Helper()

	for i := 0; i < 20; i++ {
		f := readFrame(t, conn)
		if f.Type == frameType {
			return f
		}
	}
	t.Fatalf("no %s frame received", frameType)
	return Frame{}
}

func sendFrame(t *testing.T, conn *websocket.Conn, f Frame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(f))
}

func expectSilence(t *testing.T, conn *websocket.Conn, frameType string) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return // timeout: nothing unwanted arrived
		}
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		require.NotEqual(t, frameType, f.Type)
	}
}

func TestHandler_OnlineCountOnConnect(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)

	c1 := f.dial(t, "")
	first := readUntil(t, c1, TypeOnlineCount)
	assert.GreaterOrEqual(t, first.Count, 1)

	// The broadcast and the direct copy to the new connection both carry
	// the updated count; wait until the second connect becomes visible.
	f.dial(t, "")
	for i := 0; i < 20; i++ {
		if readUntil(t, c1, TypeOnlineCount).Count == 2 {
			return
		}
	}
	t.Fatal("online count never reached 2")
}

func TestHandler_PingPong(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	conn := f.dial(t, "")

	sendFrame(t, conn, Frame{Type: TypePing})
	readUntil(t, conn, TypePong)
}

func TestHandler_ChatJoinAck(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	conn := f.dial(t, f.accessToken(t, f.u1))

	sendFrame(t, conn, Frame{Type: TypeChatJoin, ChatID: f.chat.ID.String()})
	joined := readUntil(t, conn, TypeChatJoined)
	assert.Equal(t, f.chat.ID.String(), joined.ChatID)
}

func TestHandler_UnauthenticatedCannotSend(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	conn := f.dial(t, "")

	sendFrame(t, conn, Frame{Type: TypeChatSend, ChatID: f.chat.ID.String(), Content: "hi"})
	errFrame := readUntil(t, conn, TypeError)
	assert.Equal(t, CodeUnauthorized, errFrame.Code)
}

func TestHandler_InvalidTokenYieldsUnauthenticatedConnection(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)

	// Handshake succeeds; the connection just has no identity.
	conn := f.dial(t, "not-a-jwt")
	readUntil(t, conn, TypeOnlineCount)

	sendFrame(t, conn, Frame{Type: TypeChatSend, ChatID: f.chat.ID.String(), Content: "hi"})
	errFrame := readUntil(t, conn, TypeError)
	assert.Equal(t, CodeUnauthorized, errFrame.Code)
}

func TestHandler_ChatSend_FanOutToAllDevices(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)

	u1a := f.dial(t, f.accessToken(t, f.u1))
	u1b := f.dial(t, f.accessToken(t, f.u1))
	u2a := f.dial(t, f.accessToken(t, f.u2))
	anon := f.dial(t, "")

	sendFrame(t, u1a, Frame{Type: TypeChatSend, ChatID: f.chat.ID.String(), Content: "hello"})

	// Every device of both participants gets the persisted message, the
	// sender's own other tab included.
	for _, conn := range []*websocket.Conn{u1a, u1b, u2a} {
		frame := readUntil(t, conn, TypeChatNew)
		assert.Equal(t, f.chat.ID.String(), frame.ChatID)
		require.NotNil(t, frame.Message)
		assert.Equal(t, "hello", frame.Message.Content)
		assert.Equal(t, f.u1.ID, frame.Message.SenderID)
		assert.NotZero(t, frame.Message.ID)
	}
	expectSilence(t, anon, TypeChatNew)
}

func TestHandler_ChatSend_Errors(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	outsider := f.createUser(t, "outsider@example.com")

	tests := []struct {
		name     string
		user     *models.User
		chatID   string
		content  string
		wantCode string
	}{
		{
			name:     "empty content",
			user:     f.u1,
			chatID:   f.chat.ID.String(),
			content:  "   ",
			wantCode: CodeInvalidMessage,
		},
		{
			name:     "unknown chat",
			user:     f.u1,
			chatID:   uuid.NewString(),
			content:  "hi",
			wantCode: CodeChatNotFound,
		},
		{
			name:     "not a participant",
			user:     outsider,
			chatID:   f.chat.ID.String(),
			content:  "hi",
			wantCode: CodeForbidden,
		},
		{
			name:     "malformed chat id",
			user:     f.u1,
			chatID:   "not-a-uuid",
			content:  "hi",
			wantCode: CodeChatNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := f.dial(t, f.accessToken(t, tt.user))
			sendFrame(t, conn, Frame{Type: TypeChatSend, ChatID: tt.chatID, Content: tt.content})
			errFrame := readUntil(t, conn, TypeError)
			assert.Equal(t, tt.wantCode, errFrame.Code)
		})
	}
}

func TestHandler_MalformedFrame(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	conn := f.dial(t, "")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	errFrame := readUntil(t, conn, TypeError)
	assert.Equal(t, CodeBadRequest, errFrame.Code)

	// Logical errors never close the connection.
	sendFrame(t, conn, Frame{Type: TypePing})
	readUntil(t, conn, TypePong)
}
