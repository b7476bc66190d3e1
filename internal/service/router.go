package service

import (
	"context"

	"github.com/codeduel/duel-backend/internal/websocket"
	"go.uber.org/zap"
)

// LocalConnections 이 인스턴스의 연결 (websocket.Hub)
type LocalConnections interface {
	IsConnected(userID string) bool
	SendToUser(userID string, msgType string, payload interface{})
	SendRaw(userID string, data []byte)
}

// SessionLocator 사용자의 연결을 보유한 인스턴스 조회
type SessionLocator interface {
	Lookup(ctx context.Context, userID string) (string, bool, error)
}

// RemoteDelivery 다른 인스턴스로 인코딩된 메시지 전달
type RemoteDelivery interface {
	Deliver(ctx context.Context, instanceID, userID string, payload []byte) error
}

// Router 사용자가 연결된 곳으로 메시지 전송
// 로컬 연결이 있으면 바로 보내고, 없으면 디렉터리를 보고 이벤트 버스로 전달
type Router struct {
	local      LocalConnections
	locator    SessionLocator
	remote     RemoteDelivery
	instanceID string
	logger     *zap.Logger
}

// NewRouter 라우터 생성 (locator/remote 가 nil 이면 로컬 전용)
func NewRouter(local LocalConnections, locator SessionLocator, remote RemoteDelivery, instanceID string, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		local:      local,
		locator:    locator,
		remote:     remote,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Send 연결이 어디에도 없으면 버림
func (r *Router) Send(ctx context.Context, userID, msgType string, payload interface{}) {
	if r.local.IsConnected(userID) {
		r.local.SendToUser(userID, msgType, payload)
		return
	}
	if r.locator == nil || r.remote == nil {
		return
	}

	instance, found, err := r.locator.Lookup(ctx, userID)
	if err != nil {
		r.logger.Warn("Session lookup failed", zap.String("userId", userID), zap.Error(err))
		return
	}
	if !found || instance == r.instanceID {
		r.logger.Debug("Dropping message for offline user",
			zap.String("userId", userID),
			zap.String("type", msgType))
		return
	}

	data, err := websocket.NewMessage(msgType, payload).Encode()
	if err != nil {
		r.logger.Error("Failed to encode message", zap.String("type", msgType), zap.Error(err))
		return
	}
	if err := r.remote.Deliver(ctx, instance, userID, data); err != nil {
		r.logger.Warn("Remote delivery failed",
			zap.String("userId", userID),
			zap.String("instance", instance),
			zap.Error(err))
	}
}

// DeliverLocal 다른 인스턴스에서 온 메시지를 로컬 연결에 전달
func (r *Router) DeliverLocal(userID string, data []byte) {
	r.local.SendRaw(userID, data)
}
