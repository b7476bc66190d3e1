package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codeduel/duel-backend/internal/models"
	"github.com/codeduel/duel-backend/pkg/database"
)

type MatchRequestRepository struct {
	db *database.DB
}

func NewMatchRequestRepository(db *database.DB) *MatchRequestRepository {
	return &MatchRequestRepository{db: db}
}

const matchRequestColumns = `
	request_id, sender_id, receiver_id, status, created_at, expires_at, responded_at, match_id`

func scanMatchRequest(row interface{ Scan(...interface{}) error }) (*models.MatchRequest, error) {
	req := &models.MatchRequest{}
	err := row.Scan(
		&req.ID,
		&req.SenderID,
		&req.ReceiverID,
		&req.Status,
		&req.CreatedAt,
		&req.ExpiresAt,
		&req.RespondedAt,
		&req.MatchID,
	)
	return req, err
}

// Create PENDING 신청 생성
// PENDING 인덱스와 충돌하면 ErrPendingPair, ErrPendingSender, ErrPendingReceiver 중 하나를 감쌈
func (r *MatchRequestRepository) Create(ctx context.Context, senderID, receiverID string, createdAt, expiresAt time.Time) (*models.MatchRequest, error) {
	query := `
		INSERT INTO friend_match_requests (sender_id, receiver_id, status, created_at, expires_at)
		VALUES ($1, $2, 'PENDING', $3, $4)
		RETURNING ` + matchRequestColumns

	req, err := scanMatchRequest(r.db.QueryRowContext(ctx, query, senderID, receiverID, createdAt, expiresAt))
	if conflict := pendingConflict(err); conflict != nil {
		return nil, fmt.Errorf("failed to create match request: %w: %w", conflict, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create match request: %w", err)
	}
	return req, nil
}

// FindByID ID로 신청 찾기 (없으면 nil)
func (r *MatchRequestRepository) FindByID(ctx context.Context, id string) (*models.MatchRequest, error) {
	query := `SELECT ` + matchRequestColumns + ` FROM friend_match_requests WHERE request_id = $1`

	req, err := scanMatchRequest(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match request: %w", err)
	}
	return req, nil
}

// FindPendingBetween sender → receiver 방향의 PENDING 신청
func (r *MatchRequestRepository) FindPendingBetween(ctx context.Context, senderID, receiverID string) (*models.MatchRequest, error) {
	query := `
		SELECT ` + matchRequestColumns + `
		FROM friend_match_requests
		WHERE sender_id = $1 AND receiver_id = $2 AND status = 'PENDING'
		LIMIT 1
	`

	req, err := scanMatchRequest(r.db.QueryRowContext(ctx, query, senderID, receiverID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending request: %w", err)
	}
	return req, nil
}

// FindPendingSent 사용자가 보낸 PENDING 신청 (없으면 nil)
func (r *MatchRequestRepository) FindPendingSent(ctx context.Context, senderID string) (*models.MatchRequest, error) {
	query := `
		SELECT ` + matchRequestColumns + `
		FROM friend_match_requests
		WHERE sender_id = $1 AND status = 'PENDING'
		ORDER BY created_at DESC
		LIMIT 1
	`

	req, err := scanMatchRequest(r.db.QueryRowContext(ctx, query, senderID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sent request: %w", err)
	}
	return req, nil
}

// FindPendingReceived 사용자가 받은 PENDING 신청
func (r *MatchRequestRepository) FindPendingReceived(ctx context.Context, receiverID string) ([]*models.MatchRequest, error) {
	query := `
		SELECT ` + matchRequestColumns + `
		FROM friend_match_requests
		WHERE receiver_id = $1 AND status = 'PENDING'
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to query received requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.MatchRequest
	for rows.Next() {
		req, err := scanMatchRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// ListPending 사용자가 보내거나 받은 PENDING 신청
func (r *MatchRequestRepository) ListPending(ctx context.Context, userID string) ([]*models.MatchRequest, error) {
	query := `
		SELECT ` + matchRequestColumns + `
		FROM friend_match_requests
		WHERE (sender_id = $1 OR receiver_id = $1) AND status = 'PENDING'
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.MatchRequest
	for rows.Next() {
		req, err := scanMatchRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// Transition 상태가 from 일 때만 to 로 변경 (compare-and-set)
// 다른 요청이 먼저 바꿨으면 ErrStaleUpdate
func (r *MatchRequestRepository) Transition(ctx context.Context, id string, from, to models.MatchRequestStatus, at time.Time) (*models.MatchRequest, error) {
	query := `
		UPDATE friend_match_requests
		SET status = $1,
		    responded_at = CASE WHEN $1 = 'PENDING' THEN NULL ELSE $2::timestamptz END
		WHERE request_id = $3 AND status = $4
		RETURNING ` + matchRequestColumns

	req, err := scanMatchRequest(r.db.QueryRowContext(ctx, query, string(to), at, id, string(from)))
	if err == sql.ErrNoRows {
		return nil, ErrStaleUpdate
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update match request: %w", err)
	}
	return req, nil
}

// SetMatch 수락된 신청에 매치 ID 기록
func (r *MatchRequestRepository) SetMatch(ctx context.Context, id, matchID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE friend_match_requests SET match_id = $1 WHERE request_id = $2`,
		matchID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set match id: %w", err)
	}
	return nil
}

// ExpireDue 만료 시각이 지난 PENDING 신청을 EXPIRED 로 변경하고 반환
func (r *MatchRequestRepository) ExpireDue(ctx context.Context, now time.Time) ([]*models.MatchRequest, error) {
	query := `
		UPDATE friend_match_requests
		SET status = 'EXPIRED', responded_at = $1
		WHERE status = 'PENDING' AND expires_at < $1
		RETURNING ` + matchRequestColumns

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire match requests: %w", err)
	}
	defer rows.Close()

	var expired []*models.MatchRequest
	for rows.Next() {
		req, err := scanMatchRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match request: %w", err)
		}
		expired = append(expired, req)
	}
	return expired, rows.Err()
}
