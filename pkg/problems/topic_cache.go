package problems

import (
	"context"
	"sync"
	"time"

	"github.com/codeduel/duel-backend/internal/models"
)

// TopicCache 토픽별로 제공되지 않는 난이도 캐시
// 모든 난이도를 제공하는 토픽은 저장하지 않음
type TopicCache struct {
	source TopicSource

	mu          sync.RWMutex
	missing     map[string]map[string]struct{}
	refreshedAt time.Time
}

// NewTopicCache 캐시 생성 (Refresh 전에는 아무 토픽도 걸러내지 않음)
func NewTopicCache(source TopicSource) *TopicCache {
	return &TopicCache{source: source}
}

// Refresh 제공자에서 다시 읽어오기
func (c *TopicCache) Refresh(ctx context.Context) error {
	available, err := c.source.TopicDifficulties(ctx)
	if err != nil {
		return err
	}

	missing := make(map[string]map[string]struct{})
	for topic, diffs := range available {
		have := make(map[string]struct{}, len(diffs))
		for _, d := range diffs {
			have[d] = struct{}{}
		}
		for _, d := range models.AllDifficulties {
			if _, ok := have[d]; ok {
				continue
			}
			if missing[topic] == nil {
				missing[topic] = make(map[string]struct{})
			}
			missing[topic][d] = struct{}{}
		}
	}

	c.mu.Lock()
	c.missing = missing
	c.refreshedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// Invalidate 캐시 비우기
func (c *TopicCache) Invalidate() {
	c.mu.Lock()
	c.missing = nil
	c.refreshedAt = time.Time{}
	c.mu.Unlock()
}

// Loaded 캐시가 채워져 있는지
func (c *TopicCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.refreshedAt.IsZero()
}

// Allowed 요청 난이도 중 하나라도 제공되는 토픽만 남김
// 난이도 제한이 없거나 캐시가 비어 있으면 그대로 반환
func (c *TopicCache) Allowed(topics, difficulties []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.missing == nil || len(difficulties) == 0 {
		return topics
	}

	allowed := make([]string, 0, len(topics))
	for _, topic := range topics {
		missing := c.missing[topic]
		for _, d := range difficulties {
			if _, gone := missing[d]; !gone {
				allowed = append(allowed, topic)
				break
			}
		}
	}
	return allowed
}
