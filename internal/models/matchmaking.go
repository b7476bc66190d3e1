package models

import "time"

// QueueEntry 매칭 큐 항목 (사용자당 최대 하나)
type QueueEntry struct {
	UserID   string    `json:"userId"`
	Elo      int       `json:"elo"`
	JoinedAt time.Time `json:"joinedAt"`
}

// WaitTime 큐 대기 시간
func (e QueueEntry) WaitTime(now time.Time) time.Duration {
	return now.Sub(e.JoinedAt)
}

// QueueStatus queue_status 메시지 내용
type QueueStatus struct {
	QueueSize        int    `json:"queueSize"`
	WaitSeconds      int    `json:"waitSeconds"`
	PotentialMatches int    `json:"potentialMatches"`
	Message          string `json:"message"`
}

// UserMatchState 사용자의 매칭 관련 상태 요약
type UserMatchState struct {
	UserID                  string          `json:"userId"`
	InActiveMatch           bool            `json:"inActiveMatch"`
	ActiveMatchID           *string         `json:"activeMatchId,omitempty"`
	InQueue                 bool            `json:"inQueue"`
	HasPendingSentRequest   bool            `json:"hasPendingSentRequest"`
	PendingSentRequestID    *string         `json:"pendingSentRequestId,omitempty"`
	PendingReceivedRequests []*MatchRequest `json:"pendingReceivedRequests"`
	CanSendMatchRequest     bool            `json:"canSendMatchRequest"`
	CanJoinQueue            bool            `json:"canJoinQueue"`
}
