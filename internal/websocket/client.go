package websocket

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// 제출 코드가 포함될 수 있으므로 넉넉하게
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// NewUpgrader 허용 origin 목록으로 Upgrader 생성 (비어 있으면 모두 허용)
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// Client WebSocket 클라이언트
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan *Message
	userID      string
	connectedAt time.Time
	logger      *zap.Logger
}

// NewClient 클라이언트 생성
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return newClient(hub, conn, userID, sendBufferSize)
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, buffer int) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan *Message, buffer),
		userID:      userID,
		connectedAt: time.Now(),
		logger:      hub.logger.With(zap.String("userId", userID)),
	}
}

// UserID 연결된 사용자
func (c *Client) UserID() string {
	return c.userID
}

// readPump 클라이언트 메시지를 읽어 Hub 의 핸들러로 전달
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}
		// 애플리케이션 메시지도 연결이 살아있다는 신호
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		c.dispatch(data)
	}
}

// dispatch 수신 프레임 하나 처리
func (c *Client) dispatch(data []byte) {
	if !c.hub.allow(c.userID) {
		c.hub.SendToUser(c.userID, TypeError, TextPayload{Message: "Too many messages, slow down"})
		return
	}

	msg, err := DecodeInbound(data)
	if err != nil {
		text := "Invalid message format"
		if errors.Is(err, ErrUnknownMessage) {
			text = "Unknown message type"
		}
		c.logger.Debug("Rejected inbound message", zap.Error(err))
		c.hub.SendToUser(c.userID, TypeError, TextPayload{Message: text})
		return
	}

	c.hub.handle(c.userID, msg)
}

// writePump Hub 로부터 메시지를 받아 클라이언트에게 전송
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 가 채널을 닫음
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := message.Encode()
			if err != nil {
				c.logger.Error("Failed to marshal message", zap.Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			// Ping 전송
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs WebSocket 연결 업그레이드 및 클라이언트 시작
func ServeWs(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := NewClient(hub, conn, userID)
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	// 고루틴 시작
	go client.writePump()
	go client.readPump()
}
