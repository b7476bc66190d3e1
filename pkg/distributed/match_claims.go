package distributed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultClaimPrefix = "match:active:"

// 두 점유 키가 모두 비어 있을 때만 둘 다 설정하고, 같은 스크립트 안에서 대기열에서도 제거
// KEYS: claim a, claim b, queue, joined / ARGV: matchID, ttl(ms), a, b
var claimPlayersScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 or redis.call('EXISTS', KEYS[2]) == 1 then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
	redis.call('ZREM', KEYS[3], ARGV[3], ARGV[4])
	redis.call('HDEL', KEYS[4], ARGV[3], ARGV[4])
	return 1
`)

// 해당 매치가 보유한 키만 삭제
var releaseClaimScript = redis.NewScript(`
	local released = 0
	for i, key in ipairs(KEYS) do
		if redis.call('GET', key) == ARGV[1] then
			redis.call('DEL', key)
			released = released + 1
		end
	end
	return released
`)

// MatchClaims 사용자별 진행 중인 매치 표시 (match:active:<userID> → matchID)
// 한 사용자는 동시에 하나의 매치에만 속할 수 있고, 매치 중에는 대기열에 없음
type MatchClaims struct {
	client    *redis.Client
	prefix    string
	queueKey  string
	joinedKey string
}

// NewMatchClaims 매치 점유 저장소 생성
func NewMatchClaims(client *redis.Client) *MatchClaims {
	return &MatchClaims{
		client:    client,
		prefix:    defaultClaimPrefix,
		queueKey:  defaultQueueKey,
		joinedKey: defaultJoinedKey,
	}
}

func (c *MatchClaims) key(userID string) string {
	return c.prefix + userID
}

// ClaimPlayers 두 사용자를 matchID로 점유하고 대기열에서 제거
// 둘 중 하나라도 이미 매치 중이면 아무것도 바꾸지 않고 false 반환
func (c *MatchClaims) ClaimPlayers(ctx context.Context, matchID, a, b string, ttl time.Duration) (bool, error) {
	if a == b {
		return false, nil
	}

	keys := []string{c.key(a), c.key(b), c.queueKey, c.joinedKey}
	result, err := claimPlayersScript.Run(ctx, c.client, keys, matchID, ttl.Milliseconds(), a, b).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim players: %w", err)
	}
	return result == 1, nil
}

// ReleasePlayers matchID가 보유한 점유 해제
func (c *MatchClaims) ReleasePlayers(ctx context.Context, matchID string, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = c.key(id)
	}

	if err := releaseClaimScript.Run(ctx, c.client, keys, matchID).Err(); err != nil {
		return fmt.Errorf("failed to release players: %w", err)
	}
	return nil
}

// ActiveMatch 사용자가 속한 매치 ID
func (c *MatchClaims) ActiveMatch(ctx context.Context, userID string) (string, bool, error) {
	matchID, err := c.client.Get(ctx, c.key(userID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get active match: %w", err)
	}
	return matchID, true, nil
}
