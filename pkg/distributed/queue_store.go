package distributed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/codeduel/duel-backend/internal/models"
	"github.com/redis/go-redis/v9"
)

var (
	ErrEntryExists = errors.New("user is already in queue")
	ErrUserInMatch = errors.New("user is already in a match")
)

const (
	defaultQueueKey  = "matchmaking:queue"
	defaultJoinedKey = defaultQueueKey + ":joined"
)

// KEYS: queue, joined, active claim / ARGV: user, elo, joinedAt
var joinQueueScript = redis.NewScript(`
	if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
		return -1
	end
	if redis.call('EXISTS', KEYS[3]) == 1 then
		return -2
	end
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
	redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
	return 1
`)

// 두 사용자가 모두 큐에 있을 때만 둘 다 제거
var claimPairScript = redis.NewScript(`
	if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
		return 0
	end
	if not redis.call('ZSCORE', KEYS[1], ARGV[2]) then
		return 0
	end
	redis.call('ZREM', KEYS[1], ARGV[1], ARGV[2])
	redis.call('HDEL', KEYS[2], ARGV[1], ARGV[2])
	return 1
`)

// QueueStore 모든 인스턴스가 공유하는 매칭 대기열
// Sorted Set (member=userID, score=Elo) + Hash (userID → 참가 시각 unix nano)
type QueueStore struct {
	client    *redis.Client
	queueKey  string
	joinedKey string
	claims    *MatchClaims
	now       func() time.Time
}

// NewQueueStore 대기열 생성
// claims: Join 시 진행 중인 매치 여부 확인에 사용
func NewQueueStore(client *redis.Client, claims *MatchClaims) *QueueStore {
	return &QueueStore{
		client:    client,
		queueKey:  defaultQueueKey,
		joinedKey: defaultJoinedKey,
		claims:    claims,
		now:       time.Now,
	}
}

// Join 대기열에 추가
// 이미 대기 중이면 ErrEntryExists, 매치 중이면 ErrUserInMatch
func (q *QueueStore) Join(ctx context.Context, userID string, elo int) (*models.QueueEntry, error) {
	joinedAt := q.now()

	keys := []string{q.queueKey, q.joinedKey, q.claims.key(userID)}
	result, err := joinQueueScript.Run(ctx, q.client, keys, userID, elo, joinedAt.UnixNano()).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to join queue: %w", err)
	}

	switch result {
	case -1:
		return nil, ErrEntryExists
	case -2:
		return nil, ErrUserInMatch
	}

	return &models.QueueEntry{UserID: userID, Elo: elo, JoinedAt: joinedAt}, nil
}

// Leave 대기열에서 제거 (멱등)
// 실제로 제거했는지 여부 반환
func (q *QueueStore) Leave(ctx context.Context, userID string) (bool, error) {
	var removed *redis.IntCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, q.queueKey, userID)
		pipe.HDel(ctx, q.joinedKey, userID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to leave queue: %w", err)
	}

	return removed.Val() > 0, nil
}

// Snapshot 현재 대기열 전체 (제거하지 않음), 참가 시각 순 정렬
func (q *QueueStore) Snapshot(ctx context.Context) ([]models.QueueEntry, error) {
	var members *redis.ZSliceCmd
	var joined *redis.MapStringStringCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members = pipe.ZRangeWithScores(ctx, q.queueKey, 0, -1)
		joined = pipe.HGetAll(ctx, q.joinedKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot queue: %w", err)
	}

	joinedAt := joined.Val()
	entries := make([]models.QueueEntry, 0, len(members.Val()))
	for _, z := range members.Val() {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, models.QueueEntry{
			UserID:   userID,
			Elo:      int(z.Score),
			JoinedAt: parseUnixNano(joinedAt[userID]),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})

	return entries, nil
}

// ClaimPair 두 사용자를 원자적으로 대기열에서 제거
// 둘 중 하나라도 없으면 아무것도 제거하지 않고 false 반환
func (q *QueueStore) ClaimPair(ctx context.Context, a, b string) (bool, error) {
	if a == b {
		return false, nil
	}

	result, err := claimPairScript.Run(ctx, q.client, []string{q.queueKey, q.joinedKey}, a, b).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim pair: %w", err)
	}
	return result == 1, nil
}

// Get 사용자의 대기열 항목 (없으면 nil)
func (q *QueueStore) Get(ctx context.Context, userID string) (*models.QueueEntry, error) {
	score, err := q.client.ZScore(ctx, q.queueKey, userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	joined, err := q.client.HGet(ctx, q.joinedKey, userID).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get join time: %w", err)
	}

	return &models.QueueEntry{UserID: userID, Elo: int(score), JoinedAt: parseUnixNano(joined)}, nil
}

// Contains 대기열 포함 여부
func (q *QueueStore) Contains(ctx context.Context, userID string) (bool, error) {
	entry, err := q.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// Size 대기열 크기
func (q *QueueStore) Size(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue size: %w", err)
	}
	return int(n), nil
}

// CountInRange Elo 범위 내 대기 인원
func (q *QueueStore) CountInRange(ctx context.Context, minElo, maxElo int) (int, error) {
	n, err := q.client.ZCount(ctx, q.queueKey, strconv.Itoa(minElo), strconv.Itoa(maxElo)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count queue range: %w", err)
	}
	return int(n), nil
}

func parseUnixNano(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}
