package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codeduel/duel-backend/internal/models"
)

// 클라이언트 → 서버
const (
	TypeJoinQueue      = "join_queue"
	TypeLeaveQueue     = "leave_queue"
	TypeSubmitSolution = "submit_solution"
	TypeResignMatch    = "resign_match"
	TypePing           = "ping"
)

// 서버 → 클라이언트
const (
	TypeConnected            = "connected"
	TypeQueueJoined          = "queue_joined"
	TypeQueueLeft            = "queue_left"
	TypeQueueStatus          = "queue_status"
	TypeMatchFound           = "match_found"
	TypeMatchError           = "match_error"
	TypeTimerUpdate          = "timer_update"
	TypeMatchResult          = "match_result"
	TypeMatchRequestReceived = "match_request_received"
	TypeMatchRequestUpdated  = "match_request_updated"
	TypeError                = "error"
	TypePong                 = "pong"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownMessage   = errors.New("unknown message type")
)

// Message 송신 메시지 {"type": ..., "payload": {...}}
type Message struct {
	UserID  string      `json:"-"` // 수신자
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`

	raw []byte // 이미 인코딩된 메시지 (다른 인스턴스에서 전달된 경우)
}

// NewMessage 송신 메시지 생성
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{Type: msgType, Payload: payload}
}

// Encode JSON 인코딩
func (m *Message) Encode() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	return json.Marshal(m)
}

// InboundMessage 수신 메시지
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeInbound 수신 프레임 해석 (알 수 없는 타입은 에러)
func DecodeInbound(data []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case TypeJoinQueue, TypeLeaveQueue, TypeSubmitSolution, TypeResignMatch, TypePing:
		return &msg, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Type)
	}
}

// Decode payload 를 v 로 해석
func (m *InboundMessage) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformedMessage)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

// SubmitSolutionPayload submit_solution
type SubmitSolutionPayload struct {
	MatchID              string  `json:"match_id"`
	Runtime              int     `json:"runtime"`
	Memory               float64 `json:"memory"`
	ClientElapsedSeconds int     `json:"client_elapsed_seconds"`
	Code                 *string `json:"code,omitempty"`
}

// ResignMatchPayload resign_match
type ResignMatchPayload struct {
	MatchID              string `json:"match_id"`
	ClientElapsedSeconds int    `json:"client_elapsed_seconds"`
}

// TextPayload connected / error / match_error 등 단순 메시지
type TextPayload struct {
	Message string `json:"message"`
}

// QueuePayload queue_joined / queue_left
type QueuePayload struct {
	Message string `json:"message"`
	Elo     int    `json:"elo,omitempty"`
}

// MatchFoundPayload match_found
type MatchFoundPayload struct {
	MatchID  string          `json:"match_id"`
	Problem  *models.Problem `json:"problem"`
	Opponent models.Opponent `json:"opponent"`
}

// 타이머 단계
const (
	PhaseCountdown = "countdown"
	PhaseActive    = "active"
)

// TimerUpdatePayload timer_update
type TimerUpdatePayload struct {
	MatchID        string  `json:"match_id"`
	Phase          string  `json:"phase"`
	Countdown      int     `json:"countdown,omitempty"`
	StartTimestamp float64 `json:"start_timestamp,omitempty"` // unix 초
}

// MatchResultPayload match_result
type MatchResultPayload struct {
	MatchID         string  `json:"match_id"`
	Won             bool    `json:"won"`
	WinnerID        string  `json:"winner_id"`
	LoserID         string  `json:"loser_id"`
	EloChange       int     `json:"elo_change"`
	NewElo          int     `json:"new_elo"`
	Resigned        bool    `json:"resigned"`
	DurationSeconds int     `json:"duration_seconds"`
	ProblemSlug     string  `json:"problem_slug"`
	Runtime         int     `json:"runtime"`
	Memory          float64 `json:"memory"`
}

// MatchRequestUpdatedPayload match_request_updated
type MatchRequestUpdatedPayload struct {
	RequestID string  `json:"request_id"`
	Status    string  `json:"status"`
	MatchID   *string `json:"match_id,omitempty"`
}
