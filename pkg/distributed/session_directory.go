package distributed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultSessionKey = "sessions:online"

// 같은 인스턴스가 보유한 항목만 삭제
var unregisterSessionScript = redis.NewScript(`
	if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
		return redis.call('HDEL', KEYS[1], ARGV[1])
	end
	return 0
`)

// SessionDirectory 사용자별 실시간 연결을 보유한 인스턴스 (userID → instanceID)
type SessionDirectory struct {
	client     *redis.Client
	key        string
	instanceID string
}

// NewSessionDirectory 세션 디렉터리 생성
func NewSessionDirectory(client *redis.Client, instanceID string) *SessionDirectory {
	return &SessionDirectory{
		client:     client,
		key:        defaultSessionKey,
		instanceID: instanceID,
	}
}

// InstanceID 현재 인스턴스 ID
func (d *SessionDirectory) InstanceID() string {
	return d.instanceID
}

// Register 현재 인스턴스를 사용자의 연결 보유자로 기록
func (d *SessionDirectory) Register(ctx context.Context, userID string) error {
	if err := d.client.HSet(ctx, d.key, userID, d.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	return nil
}

// Unregister 현재 인스턴스가 보유한 경우에만 항목 삭제
// 다른 인스턴스로 재연결된 사용자는 그대로 둠
func (d *SessionDirectory) Unregister(ctx context.Context, userID string) (bool, error) {
	n, err := unregisterSessionScript.Run(ctx, d.client, []string{d.key}, userID, d.instanceID).Int()
	if err != nil {
		return false, fmt.Errorf("failed to unregister session: %w", err)
	}
	return n > 0, nil
}

// Lookup 사용자의 연결을 보유한 인스턴스
func (d *SessionDirectory) Lookup(ctx context.Context, userID string) (string, bool, error) {
	instance, err := d.client.HGet(ctx, d.key, userID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to lookup session: %w", err)
	}
	return instance, true, nil
}

// Online 주어진 사용자들의 접속 여부
func (d *SessionDirectory) Online(ctx context.Context, userIDs []string) (map[string]bool, error) {
	online := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return online, nil
	}

	values, err := d.client.HMGet(ctx, d.key, userIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check sessions: %w", err)
	}

	for i, v := range values {
		online[userIDs[i]] = v != nil
	}
	return online, nil
}

// PurgeInstance 현재 인스턴스가 보유한 모든 항목 삭제 (종료 시)
func (d *SessionDirectory) PurgeInstance(ctx context.Context) (int, error) {
	all, err := d.client.HGetAll(ctx, d.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	purged := 0
	for userID, instance := range all {
		if instance != d.instanceID {
			continue
		}
		ok, err := d.Unregister(ctx, userID)
		if err != nil {
			return purged, err
		}
		if ok {
			purged++
		}
	}
	return purged, nil
}
