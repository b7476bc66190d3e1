package service

import (
	"context"
	"fmt"
	"time"

	"github.com/codeduel/duel-backend/internal/models"
	"github.com/codeduel/duel-backend/pkg/problems"
	"go.uber.org/zap"
)

const (
	maxFallbackTopics     = 5
	defaultAttemptTimeout = 8 * time.Second
)

var (
	defaultTopics       = []string{"array", "string", "hash-table"}
	defaultDifficulties = []string{models.DifficultyMedium}
)

// RelaxationPolicy 문제 선택 실패 시 필터를 완화하는 단계
type RelaxationPolicy struct {
	Name  string
	Relax func(problems.Filter) problems.Filter
}

// RelaxationLadder 순서대로 시도할 완화 단계 목록
type RelaxationLadder []RelaxationPolicy

// DefaultRelaxationLadder 선호 조건 → 토픽 제거 → 제한 없음
func DefaultRelaxationLadder() RelaxationLadder {
	return RelaxationLadder{
		{
			Name:  "preferred",
			Relax: func(f problems.Filter) problems.Filter { return f },
		},
		{
			Name: "any-topic",
			Relax: func(f problems.Filter) problems.Filter {
				f.Topics = nil
				return f
			},
		},
		{
			Name: "unrestricted",
			Relax: func(f problems.Filter) problems.Filter {
				return problems.Filter{}
			},
		},
	}
}

// ProblemSelector 두 참가자에게 맞는 문제 선택
type ProblemSelector struct {
	provider       problems.Provider
	history        MatchStore
	topics         *problems.TopicCache
	ladder         RelaxationLadder
	attemptTimeout time.Duration
	logger         *zap.Logger
}

// NewProblemSelector 선택기 생성
// topics 는 nil 가능 (토픽 가지치기 생략)
func NewProblemSelector(
	provider problems.Provider,
	history MatchStore,
	topics *problems.TopicCache,
	attemptTimeout time.Duration,
	logger *zap.Logger,
) *ProblemSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	return &ProblemSelector{
		provider:       provider,
		history:        history,
		topics:         topics,
		ladder:         DefaultRelaxationLadder(),
		attemptTimeout: attemptTimeout,
		logger:         logger,
	}
}

// WithLadder 완화 단계 교체
func (s *ProblemSelector) WithLadder(ladder RelaxationLadder) *ProblemSelector {
	s.ladder = ladder
	return s
}

// ResolveFilter 두 사용자의 선호를 합쳐 토픽/난이도 결정
// 1. 교집합  2. 둘 다 비면 합집합 (토픽 최대 5개)  3. 그래도 비면 기본값
func ResolveFilter(a, b *models.User) problems.Filter {
	topics := intersect(a.Topics, b.Topics)
	difficulties := intersect(a.Difficulties, b.Difficulties)

	if len(topics) == 0 && len(difficulties) == 0 {
		topics = union(a.Topics, b.Topics)
		if len(topics) > maxFallbackTopics {
			topics = topics[:maxFallbackTopics]
		}
		difficulties = union(a.Difficulties, b.Difficulties)

		if len(topics) == 0 && len(difficulties) == 0 {
			topics = append([]string(nil), defaultTopics...)
			difficulties = append([]string(nil), defaultDifficulties...)
		}
	}

	return problems.Filter{Topics: topics, Difficulties: difficulties}
}

// Select 완화 단계를 차례로 시도해 문제 선택
// 모든 단계가 실패하면 ErrNoCompatibleProblem
func (s *ProblemSelector) Select(ctx context.Context, a, b *models.User) (*models.Problem, error) {
	filter := ResolveFilter(a, b)

	excluded, err := s.exclusions(ctx, a, b)
	if err != nil {
		return nil, err
	}
	filter.ExcludedSlugs = excluded

	if s.topics != nil && len(filter.Topics) > 0 {
		filter.Topics = s.topics.Allowed(filter.Topics, filter.Difficulties)
	}

	var lastErr error
	for _, policy := range s.ladder {
		attempt := policy.Relax(filter)

		problem, err := s.attempt(ctx, attempt)
		if err == nil {
			s.logger.Debug("Problem selected",
				zap.String("policy", policy.Name),
				zap.String("slug", problem.Slug))
			return problem, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		s.logger.Info("Problem selection attempt failed",
			zap.String("policy", policy.Name),
			zap.Strings("topics", attempt.Topics),
			zap.Strings("difficulties", attempt.Difficulties),
			zap.Error(err))
	}

	return nil, fmt.Errorf("%w: %v", ErrNoCompatibleProblem, lastErr)
}

func (s *ProblemSelector) attempt(ctx context.Context, filter problems.Filter) (*models.Problem, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	problem, err := s.provider.RandomProblem(attemptCtx, filter)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, problems.ErrNotFound
	}
	return problem, nil
}

// exclusions 재출제를 끈 사용자가 이미 푼 문제
func (s *ProblemSelector) exclusions(ctx context.Context, users ...*models.User) (map[string]struct{}, error) {
	excluded := make(map[string]struct{})
	for _, u := range users {
		if u.AllowRepeats {
			continue
		}
		slugs, err := s.history.CompletedProblemSlugs(ctx, u.ID)
		if err != nil {
			return nil, persistenceError("load completed problems", err)
		}
		for _, slug := range slugs {
			excluded[slug] = struct{}{}
		}
	}
	return excluded, nil
}

func intersect(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, v := range b {
		in[v] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, v := range a {
		if _, ok := in[v]; !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func union(a, b []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
