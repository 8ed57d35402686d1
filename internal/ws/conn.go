package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 32
	writeWait      = 10 * time.Second
)

// Conn wraps one websocket connection. UserID is empty for connections
// that presented no (or an invalid) access token at upgrade time; there is
// no re-authentication later.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	userID string
	role   string

	mu    sync.Mutex
	chats map[string]struct{}
}

func newConn(wsConn *websocket.Conn, userID, role string) *Conn {
	return &Conn{
		ws:     wsConn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		userID: userID,
		role:   role,
		chats:  make(map[string]struct{}),
	}
}

func (c *Conn) Authenticated() bool { return c.userID != "" }

func (c *Conn) joinChat(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats[chatID] = struct{}{}
}

// enqueue hands a payload to the writer goroutine without blocking; a full
// buffer drops the frame for this connection only.
func (c *Conn) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	case <-c.done:
	default:
	}
}

func (c *Conn) sendFrame(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

func (c *Conn) writePump() {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
