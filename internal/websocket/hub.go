package websocket

import (
	"context"
	"sync"

	"github.com/codeduel/duel-backend/pkg/ratelimit"
	"go.uber.org/zap"
)

// SessionHandler 연결 수명주기와 수신 메시지 처리
type SessionHandler interface {
	OnConnect(ctx context.Context, userID string)
	OnDisconnect(ctx context.Context, userID string)
	HandleMessage(ctx context.Context, userID string, msg *InboundMessage)
}

type lifecycleEvent struct {
	userID    string
	connected bool
}

// Hub WebSocket 연결 관리
// 사용자당 연결은 하나. 새 연결이 들어오면 이전 연결은 닫힘
type Hub struct {
	// 사용자별 연결 저장 (userID -> *Client)
	clients map[string]*Client
	mu      sync.RWMutex

	// 송신 채널
	outbound chan *Message

	// 등록/해제 채널
	register   chan *Client
	unregister chan *Client

	// 연결/해제 훅은 순서대로 별도 고루틴에서 실행
	lifecycle chan lifecycleEvent

	handler SessionHandler
	limiter *ratelimit.RateLimiter
	logger  *zap.Logger

	ctx  context.Context
	done chan struct{}
}

// NewHub Hub 생성
// limiter: 사용자별 수신 메시지 제한 (nil 이면 제한 없음)
func NewHub(limiter *ratelimit.RateLimiter, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		outbound:   make(chan *Message, 1024),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		lifecycle:  make(chan lifecycleEvent, 256),
		limiter:    limiter,
		logger:     logger,
		ctx:        context.Background(),
		done:       make(chan struct{}),
	}
}

// SetHandler 세션 핸들러 지정 (Run 이전에 호출)
func (h *Hub) SetHandler(handler SessionHandler) {
	h.handler = handler
}

// Run Hub 실행. ctx 가 취소되면 모든 연결을 닫고 반환
func (h *Hub) Run(ctx context.Context) {
	h.ctx = ctx
	defer close(h.done)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.lifecycleLoop(ctx)
	}()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.outbound:
			h.deliver(message)

		case <-ctx.Done():
			h.closeAll()
			wg.Wait()
			return
		}
	}
}

func (h *Hub) lifecycleLoop(ctx context.Context) {
	for {
		select {
		case ev := <-h.lifecycle:
			if h.handler == nil {
				continue
			}
			if ev.connected {
				h.handler.OnConnect(ctx, ev.userID)
			} else {
				h.handler.OnDisconnect(ctx, ev.userID)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) emit(ev lifecycleEvent) {
	select {
	case h.lifecycle <- ev:
	default:
		h.logger.Warn("Lifecycle queue full, dropping event",
			zap.String("userId", ev.userID),
			zap.Bool("connected", ev.connected))
	}
}

// registerClient 클라이언트 등록
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	// 기존 연결이 있으면 닫기
	if old, exists := h.clients[client.userID]; exists && old != client {
		close(old.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("userId", client.userID))
	}
	h.clients[client.userID] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("WebSocket client registered",
		zap.String("userId", client.userID),
		zap.Int("totalClients", total))

	h.emit(lifecycleEvent{userID: client.userID, connected: true})
}

// unregisterClient 클라이언트 해제
// 이미 새 연결로 교체된 클라이언트면 아무것도 하지 않음
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	current, exists := h.clients[client.userID]
	if !exists || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.userID)
	close(client.send)
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("WebSocket client unregistered",
		zap.String("userId", client.userID),
		zap.Int("totalClients", total))

	h.emit(lifecycleEvent{userID: client.userID, connected: false})
}

// deliver 특정 사용자에게 전송. 연결이 없거나 버퍼가 가득 차면 버림
func (h *Hub) deliver(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[message.UserID]
	if !exists {
		h.logger.Debug("Dropping message for disconnected user",
			zap.String("userId", message.UserID),
			zap.String("type", message.Type))
		return
	}

	select {
	case client.send <- message:
	default:
		h.logger.Warn("Client send channel full",
			zap.String("userId", message.UserID),
			zap.String("type", message.Type))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, client := range h.clients {
		close(client.send)
		delete(h.clients, userID)
	}
}

// SendToUser 특정 사용자에게 메시지 전송
func (h *Hub) SendToUser(userID string, msgType string, payload interface{}) {
	h.enqueue(&Message{UserID: userID, Type: msgType, Payload: payload})
}

// SendRaw 이미 인코딩된 메시지 전송
func (h *Hub) SendRaw(userID string, data []byte) {
	h.enqueue(&Message{UserID: userID, raw: data})
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.outbound <- message:
	case <-h.done:
	default:
		h.logger.Warn("Hub outbound queue full, dropping message",
			zap.String("userId", message.UserID),
			zap.String("type", message.Type))
	}
}

// IsConnected 사용자가 이 인스턴스에 연결되어 있는지
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// ConnectedCount 현재 연결 수
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// allow 사용자별 수신 메시지 제한
func (h *Hub) allow(userID string) bool {
	if h.limiter == nil {
		return true
	}
	return h.limiter.Allow(userID)
}

func (h *Hub) handle(userID string, msg *InboundMessage) {
	if h.handler == nil {
		return
	}
	h.handler.HandleMessage(h.ctx, userID, msg)
}
