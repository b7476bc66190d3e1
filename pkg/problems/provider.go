package problems

import (
	"context"
	"errors"

	"github.com/codeduel/duel-backend/internal/models"
)

var (
	// ErrNotFound 필터에 맞는 문제가 없음
	ErrNotFound = errors.New("no problem matches the filters")
)

// Filter 문제 선택 조건. 빈 슬라이스는 제한 없음
type Filter struct {
	Topics        []string
	Difficulties  []string
	ExcludedSlugs map[string]struct{}
}

// Excludes 제외 대상 여부
func (f Filter) Excludes(slug string) bool {
	_, ok := f.ExcludedSlugs[slug]
	return ok
}

// Provider 외부 문제 제공자
type Provider interface {
	RandomProblem(ctx context.Context, filter Filter) (*models.Problem, error)
}

// TopicSource 토픽별 제공 가능한 난이도 조회
type TopicSource interface {
	TopicDifficulties(ctx context.Context) (map[string][]string, error)
}
