package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrStaleUpdate 조건부 UPDATE 가 아무 행도 바꾸지 못함 (다른 요청이 먼저 처리)
var ErrStaleUpdate = errors.New("row was modified concurrently")

// PENDING 신청 부분 unique 인덱스 위반
var (
	ErrPendingPair     = errors.New("pending request between users already exists")
	ErrPendingSender   = errors.New("sender already has a pending request")
	ErrPendingReceiver = errors.New("receiver already has a pending request")
)

var pendingConstraints = map[string]error{
	"uq_friend_match_requests_pending_pair":     ErrPendingPair,
	"uq_friend_match_requests_pending_sender":   ErrPendingSender,
	"uq_friend_match_requests_pending_receiver": ErrPendingReceiver,
}

// IsUniqueViolation PostgreSQL unique 제약 위반(23505) 여부
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// pendingConflict 위반된 PENDING 인덱스에 해당하는 에러 (해당 없으면 nil)
func pendingConflict(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	return pendingConstraints[pqErr.Constraint]
}
