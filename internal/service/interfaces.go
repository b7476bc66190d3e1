package service

import (
	"context"
	"time"

	"github.com/codeduel/duel-backend/internal/models"
)

// UserStore 사용자 조회
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
	GetElo(ctx context.Context, id string) (int, error)
	Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error)
}

// FriendStore 친구 관계 조회
type FriendStore interface {
	AreFriends(ctx context.Context, userID, friendID string) (bool, error)
}

// MatchStore 매치 기록 저장소
type MatchStore interface {
	CreatePlaceholder(ctx context.Context, m *models.MatchHistory) error
	DeletePendingForUsers(ctx context.Context, userIDs ...string) (int64, error)
	DeletePending(ctx context.Context, matchID string) error
	Complete(ctx context.Context, o models.MatchOutcome) (*models.MatchHistory, error)
	FindByID(ctx context.Context, id string) (*models.MatchHistory, error)
	FindCompletedByUser(ctx context.Context, userID string, limit, offset int) ([]*models.MatchHistory, error)
	CompletedProblemSlugs(ctx context.Context, userID string) ([]string, error)
}

// MatchRequestStore 친구 대전 신청 저장소
type MatchRequestStore interface {
	Create(ctx context.Context, senderID, receiverID string, createdAt, expiresAt time.Time) (*models.MatchRequest, error)
	FindByID(ctx context.Context, id string) (*models.MatchRequest, error)
	FindPendingBetween(ctx context.Context, senderID, receiverID string) (*models.MatchRequest, error)
	FindPendingSent(ctx context.Context, senderID string) (*models.MatchRequest, error)
	FindPendingReceived(ctx context.Context, receiverID string) ([]*models.MatchRequest, error)
	ListPending(ctx context.Context, userID string) ([]*models.MatchRequest, error)
	Transition(ctx context.Context, id string, from, to models.MatchRequestStatus, at time.Time) (*models.MatchRequest, error)
	SetMatch(ctx context.Context, id, matchID string) error
	ExpireDue(ctx context.Context, now time.Time) ([]*models.MatchRequest, error)
}

// QueueStore 공유 매칭 큐
type QueueStore interface {
	Join(ctx context.Context, userID string, elo int) (*models.QueueEntry, error)
	Leave(ctx context.Context, userID string) (bool, error)
	Snapshot(ctx context.Context) ([]models.QueueEntry, error)
	ClaimPair(ctx context.Context, a, b string) (bool, error)
	Get(ctx context.Context, userID string) (*models.QueueEntry, error)
	Contains(ctx context.Context, userID string) (bool, error)
	Size(ctx context.Context) (int, error)
	CountInRange(ctx context.Context, minElo, maxElo int) (int, error)
}

// PlayerClaims 사용자별 진행 중 매치 점유
type PlayerClaims interface {
	ClaimPlayers(ctx context.Context, matchID, a, b string, ttl time.Duration) (bool, error)
	ReleasePlayers(ctx context.Context, matchID string, userIDs ...string) error
	ActiveMatch(ctx context.Context, userID string) (string, bool, error)
}

// Presence 어느 인스턴스에든 연결된 사용자 확인
type Presence interface {
	Online(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// PassLocker 인스턴스 간 상호 배제
type PassLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error)
}

// Notifier 사용자에게 실시간 메시지 전송 (연결이 없으면 버림)
type Notifier interface {
	Send(ctx context.Context, userID, msgType string, payload interface{})
}
