package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 이벤트 타입
const (
	// EventDeliver 다른 인스턴스에 연결된 사용자에게 메시지 전달
	EventDeliver = "deliver"
	// EventMatchAction 매치를 소유한 인스턴스로 제출/기권 전달
	EventMatchAction = "match_action"
)

const defaultEventChannel = "duel:events"

// Event 인스턴스 간 이벤트
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Target    string          `json:"target,omitempty"` // 비어 있으면 모든 인스턴스
	UserID    string          `json:"user_id,omitempty"`
	MatchID   string          `json:"match_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventHandler 수신 이벤트 처리 함수
type EventHandler func(ctx context.Context, event Event) error

// EventBus Redis Pub/Sub 기반 인스턴스 간 이벤트 버스
type EventBus struct {
	client     *redis.Client
	logger     *zap.Logger
	instanceID string
	channel    string

	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEventBus 이벤트 버스 생성
func NewEventBus(client *redis.Client, instanceID string, logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		client:     client,
		logger:     logger,
		instanceID: instanceID,
		channel:    defaultEventChannel,
	}
}

// InstanceID 현재 인스턴스 ID
func (b *EventBus) InstanceID() string {
	return b.instanceID
}

// Start 구독 후 수신 루프를 백그라운드로 실행
// 구독이 확인된 뒤에 반환하므로 이후 발행된 이벤트는 놓치지 않음
func (b *EventBus) Start(ctx context.Context, handler EventHandler) error {
	subCtx, cancel := context.WithCancel(ctx)

	// Redis Pub/Sub 구독
	pubsub := b.client.Subscribe(subCtx, b.channel)

	// 구독 확인
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		pubsub.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	b.pubsub = pubsub
	b.cancel = cancel

	b.logger.Info("Event bus started",
		zap.String("instance_id", b.instanceID),
		zap.String("channel", b.channel))

	b.wg.Add(1)
	go b.loop(subCtx, pubsub.Channel(), handler)

	return nil
}

func (b *EventBus) loop(ctx context.Context, ch <-chan *redis.Message, handler EventHandler) {
	defer b.wg.Done()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Error("Failed to unmarshal event", zap.Error(err))
				continue
			}

			if !b.accepts(event) {
				continue
			}

			if err := handler(ctx, event); err != nil {
				b.logger.Error("Failed to handle event",
					zap.String("type", event.Type),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}

		case <-ctx.Done():
			return
		}
	}
}

// accepts 자신이 보낸 이벤트와 다른 인스턴스 대상 이벤트는 무시
func (b *EventBus) accepts(event Event) bool {
	if event.Source == b.instanceID {
		return false
	}
	return event.Target == "" || event.Target == b.instanceID
}

// Stop 수신 중지
func (b *EventBus) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.pubsub != nil {
		b.pubsub.Close()
	}
	b.wg.Wait()
	b.logger.Info("Event bus stopped")
}

// Publish 이벤트 발행
func (b *EventBus) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Source = b.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Published event",
		zap.String("type", event.Type),
		zap.String("target", event.Target))

	return nil
}

// Deliver 특정 인스턴스에 연결된 사용자에게 메시지 전달
func (b *EventBus) Deliver(ctx context.Context, instanceID, userID string, payload []byte) error {
	return b.Publish(ctx, Event{
		Type:    EventDeliver,
		Target:  instanceID,
		UserID:  userID,
		Payload: payload,
	})
}

// ForwardMatchAction 매치를 소유한 인스턴스로 동작 전달
func (b *EventBus) ForwardMatchAction(ctx context.Context, matchID, userID string, payload []byte) error {
	return b.Publish(ctx, Event{
		Type:    EventMatchAction,
		UserID:  userID,
		MatchID: matchID,
		Payload: payload,
	})
}
