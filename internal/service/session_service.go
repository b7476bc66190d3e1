package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/codeduel/duel-backend/internal/websocket"
	"github.com/codeduel/duel-backend/pkg/distributed"
	"go.uber.org/zap"
)

// SessionRegistry 인스턴스 간 연결 위치 기록
type SessionRegistry interface {
	Register(ctx context.Context, userID string) error
	Unregister(ctx context.Context, userID string) (bool, error)
}

// SessionService websocket.SessionHandler 구현
// 연결/해제 처리와 수신 메시지 분기
type SessionService struct {
	registry    SessionRegistry
	local       LocalConnections
	router      *Router
	matchmaking *MatchmakingService
	matches     *MatchService
	logger      *zap.Logger
}

var _ websocket.SessionHandler = (*SessionService)(nil)

func NewSessionService(
	registry SessionRegistry,
	local LocalConnections,
	router *Router,
	matchmaking *MatchmakingService,
	matches *MatchService,
	logger *zap.Logger,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		registry:    registry,
		local:       local,
		router:      router,
		matchmaking: matchmaking,
		matches:     matches,
		logger:      logger,
	}
}

// OnConnect 디렉터리 등록, connected 전송, 진행 중 매치 복구
func (s *SessionService) OnConnect(ctx context.Context, userID string) {
	if s.registry != nil {
		if err := s.registry.Register(ctx, userID); err != nil {
			s.logger.Error("Failed to register session", zap.String("userId", userID), zap.Error(err))
		}
	}

	s.router.Send(ctx, userID, websocket.TypeConnected, websocket.TextPayload{
		Message: "Connected to matchmaking server",
	})

	restored, err := s.matches.Resync(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to restore active match", zap.String("userId", userID), zap.Error(err))
		return
	}
	if restored {
		s.logger.Info("Restored active match on reconnect", zap.String("userId", userID))
	}
}

// OnDisconnect 큐에서 제거, 디렉터리 항목 삭제
// 진행 중 매치는 그대로 유지 (자동 기권 없음)
func (s *SessionService) OnDisconnect(ctx context.Context, userID string) {
	// 이미 새 연결로 재접속함
	if s.local.IsConnected(userID) {
		return
	}

	s.matchmaking.Remove(ctx, userID)

	if s.registry != nil {
		if _, err := s.registry.Unregister(ctx, userID); err != nil {
			s.logger.Warn("Failed to unregister session", zap.String("userId", userID), zap.Error(err))
		}
	}
}

// HandleMessage 수신 메시지 분기. 거절된 동작은 error 메시지로 응답
// 이미 끝난 매치에 대한 늦은 제출/기권은 조용히 무시
func (s *SessionService) HandleMessage(ctx context.Context, userID string, msg *websocket.InboundMessage) {
	var err error

	switch msg.Type {
	case websocket.TypeJoinQueue:
		_, err = s.matchmaking.Join(ctx, userID)

	case websocket.TypeLeaveQueue:
		err = s.matchmaking.Leave(ctx, userID)

	case websocket.TypeSubmitSolution:
		var p websocket.SubmitSolutionPayload
		if err = decodePayload(msg, &p); err == nil {
			err = s.matches.SubmitSolution(ctx, userID, p)
		}

	case websocket.TypeResignMatch:
		var p websocket.ResignMatchPayload
		if err = decodePayload(msg, &p); err == nil {
			err = s.matches.Resign(ctx, userID, p)
		}

	case websocket.TypePing:
		s.router.Send(ctx, userID, websocket.TypePong, nil)

	default:
		err = fmt.Errorf("%w: unsupported message %q", ErrInvalidInput, msg.Type)
	}

	if err == nil || errors.Is(err, ErrMatchFinished) {
		return
	}

	s.logger.Debug("Rejected client action",
		zap.String("userId", userID),
		zap.String("type", msg.Type),
		zap.Error(err))
	s.router.Send(ctx, userID, websocket.TypeError, websocket.TextPayload{Message: ClientMessage(err)})
}

// HandleEvent 이벤트 버스 수신 처리
func (s *SessionService) HandleEvent(ctx context.Context, event distributed.Event) error {
	switch event.Type {
	case distributed.EventDeliver:
		s.router.DeliverLocal(event.UserID, event.Payload)
	case distributed.EventMatchAction:
		s.matches.HandleMatchAction(ctx, event.UserID, event.MatchID, event.Payload)
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	return nil
}

func decodePayload(msg *websocket.InboundMessage, v interface{}) error {
	if err := msg.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
