package models

import "time"

type MatchRequestStatus string

const (
	MatchRequestPending   MatchRequestStatus = "PENDING"
	MatchRequestAccepted  MatchRequestStatus = "ACCEPTED"
	MatchRequestRejected  MatchRequestStatus = "REJECTED"
	MatchRequestCancelled MatchRequestStatus = "CANCELLED"
	MatchRequestExpired   MatchRequestStatus = "EXPIRED"
)

// MatchRequest 친구 대전 신청
type MatchRequest struct {
	ID          string             `json:"id" db:"request_id"`
	SenderID    string             `json:"senderId" db:"sender_id"`
	ReceiverID  string             `json:"receiverId" db:"receiver_id"`
	Status      MatchRequestStatus `json:"status" db:"status"`
	CreatedAt   time.Time          `json:"createdAt" db:"created_at"`
	ExpiresAt   time.Time          `json:"expiresAt" db:"expires_at"`
	RespondedAt *time.Time         `json:"respondedAt,omitempty" db:"responded_at"`
	MatchID     *string            `json:"matchId,omitempty" db:"match_id"`
}

// IsExpired PENDING 상태에서 만료 시각이 지났는지 확인
func (r *MatchRequest) IsExpired(now time.Time) bool {
	return r.Status == MatchRequestPending && now.After(r.ExpiresAt)
}

// Involves 사용자가 신청의 당사자인지 확인
func (r *MatchRequest) Involves(userID string) bool {
	return r.SenderID == userID || r.ReceiverID == userID
}

// MatchRequestView 신청과 상대방 정보
type MatchRequestView struct {
	*MatchRequest
	Counterpart Opponent `json:"user"`
}

// PendingRequests 보낸/받은 대기 중 신청 목록
type PendingRequests struct {
	Sent     []MatchRequestView `json:"sent"`
	Received []MatchRequestView `json:"received"`
}
