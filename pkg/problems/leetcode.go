package problems

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codeduel/duel-backend/internal/models"
	"github.com/machinebox/graphql"
	"go.uber.org/zap"
)

const (
	randomQuestionQuery = `query randomQuestion($categorySlug: String, $filtersV2: QuestionFilterInput) {
  randomQuestionV2(categorySlug: $categorySlug, filtersV2: $filtersV2) {
    titleSlug
  }
}`

	questionQuery = `query questionDetail($titleSlug: String!) {
  question(titleSlug: $titleSlug) {
    questionId
    title
    titleSlug
    difficulty
    isPaidOnly
    stats
    topicTags { name slug }
  }
}`

	topicMappingQuery = `query problemsetQuestionListV2($categorySlug: String, $limit: Int, $skip: Int) {
  problemsetQuestionListV2(categorySlug: $categorySlug, limit: $limit, skip: $skip) {
    questions {
      difficulty
      topicTags { slug }
    }
  }
}`
)

const defaultMaxAttempts = 10

// LeetCodeClient LeetCode GraphQL 기반 문제 제공자
type LeetCodeClient struct {
	gql         *graphql.Client
	cookie      string
	maxAttempts int
	logger      *zap.Logger
}

// NewLeetCodeClient 클라이언트 생성
// cookie: "csrftoken=...; LEETCODE_SESSION=..." 형식 (선택)
func NewLeetCodeClient(endpoint, cookie string, timeout time.Duration, logger *zap.Logger) *LeetCodeClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	gql := graphql.NewClient(endpoint, graphql.WithHTTPClient(&http.Client{Timeout: timeout}))
	gql.Log = func(s string) { logger.Debug(s) }

	return &LeetCodeClient{
		gql:         gql,
		cookie:      cookie,
		maxAttempts: defaultMaxAttempts,
		logger:      logger,
	}
}

func (c *LeetCodeClient) query(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	req := graphql.NewRequest(query)
	for key, value := range variables {
		req.Var(key, value)
	}
	req.Header.Set("Referer", "https://leetcode.com")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
		if token := csrfToken(c.cookie); token != "" {
			req.Header.Set("X-CSRFToken", token)
		}
	}

	if err := c.gql.Run(ctx, req, out); err != nil {
		return fmt.Errorf("problem provider request failed: %w", err)
	}
	return nil
}

func csrfToken(cookie string) string {
	for _, part := range strings.Split(cookie, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "csrftoken=") {
			return strings.TrimPrefix(part, "csrftoken=")
		}
	}
	return ""
}

// RandomProblem 필터에 맞는 무작위 문제
// 제외 목록에 있는 문제가 나오면 maxAttempts 까지 다시 뽑음
func (c *LeetCodeClient) RandomProblem(ctx context.Context, filter Filter) (*models.Problem, error) {
	variables := map[string]interface{}{
		"categorySlug": "all-code-essentials",
		"filtersV2":    buildFilters(filter),
	}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var data struct {
			RandomQuestionV2 *struct {
				TitleSlug string `json:"titleSlug"`
			} `json:"randomQuestionV2"`
		}
		if err := c.query(ctx, randomQuestionQuery, variables, &data); err != nil {
			return nil, err
		}

		// 조건에 맞는 문제가 하나도 없음
		if data.RandomQuestionV2 == nil || data.RandomQuestionV2.TitleSlug == "" {
			return nil, ErrNotFound
		}

		slug := data.RandomQuestionV2.TitleSlug
		if filter.Excludes(slug) {
			c.logger.Debug("Excluded problem drawn, retrying",
				zap.String("slug", slug),
				zap.Int("attempt", attempt))
			continue
		}

		problem, paid, err := c.problem(ctx, slug)
		if err != nil {
			return nil, err
		}
		if paid {
			continue
		}
		return problem, nil
	}

	return nil, ErrNotFound
}

func buildFilters(filter Filter) map[string]interface{} {
	difficulties := make([]string, 0, len(filter.Difficulties))
	for _, d := range filter.Difficulties {
		difficulties = append(difficulties, strings.ToUpper(d))
	}
	topics := filter.Topics
	if topics == nil {
		topics = []string{}
	}

	return map[string]interface{}{
		"filterCombineType": "ALL",
		"topicFilter": map[string]interface{}{
			"topicSlugs": topics,
			"operator":   "IS",
		},
		"difficultyFilter": map[string]interface{}{
			"difficulties": difficulties,
			"operator":     "IS",
		},
		"premiumFilter": map[string]interface{}{
			"premiumStatus": []string{"NOT_PREMIUM"},
			"operator":      "IS",
		},
	}
}

func (c *LeetCodeClient) problem(ctx context.Context, slug string) (*models.Problem, bool, error) {
	var data struct {
		Question *struct {
			QuestionID string `json:"questionId"`
			Title      string `json:"title"`
			TitleSlug  string `json:"titleSlug"`
			Difficulty string `json:"difficulty"`
			IsPaidOnly bool   `json:"isPaidOnly"`
			Stats      string `json:"stats"`
			TopicTags  []struct {
				Name string `json:"name"`
				Slug string `json:"slug"`
			} `json:"topicTags"`
		} `json:"question"`
	}
	if err := c.query(ctx, questionQuery, map[string]interface{}{"titleSlug": slug}, &data); err != nil {
		return nil, false, err
	}
	if data.Question == nil {
		return nil, false, fmt.Errorf("problem %s not found", slug)
	}

	q := data.Question
	problem := &models.Problem{
		ID:         q.QuestionID,
		Title:      q.Title,
		Slug:       q.TitleSlug,
		Difficulty: strings.ToUpper(q.Difficulty),
		Tags:       make([]string, 0, len(q.TopicTags)),
	}
	for _, tag := range q.TopicTags {
		problem.Tags = append(problem.Tags, tag.Name)
	}

	// stats 는 JSON 문자열 ("acRate": "52.3%")
	if q.Stats != "" {
		var stats struct {
			ACRate string `json:"acRate"`
		}
		if err := json.Unmarshal([]byte(q.Stats), &stats); err == nil {
			if rate, err := strconv.ParseFloat(strings.TrimSuffix(stats.ACRate, "%"), 64); err == nil {
				problem.AcceptanceRate = rate
			}
		}
	}

	return problem, q.IsPaidOnly, nil
}

// TopicDifficulties 토픽 slug 별 제공되는 난이도
func (c *LeetCodeClient) TopicDifficulties(ctx context.Context) (map[string][]string, error) {
	var data struct {
		List struct {
			Questions []struct {
				Difficulty string `json:"difficulty"`
				TopicTags  []struct {
					Slug string `json:"slug"`
				} `json:"topicTags"`
			} `json:"questions"`
		} `json:"problemsetQuestionListV2"`
	}
	variables := map[string]interface{}{
		"categorySlug": "all-code-essentials",
		"limit":        5000,
		"skip":         0,
	}
	if err := c.query(ctx, topicMappingQuery, variables, &data); err != nil {
		return nil, err
	}

	seen := make(map[string]map[string]struct{})
	for _, q := range data.List.Questions {
		difficulty := strings.ToUpper(q.Difficulty)
		for _, tag := range q.TopicTags {
			if seen[tag.Slug] == nil {
				seen[tag.Slug] = make(map[string]struct{})
			}
			seen[tag.Slug][difficulty] = struct{}{}
		}
	}

	result := make(map[string][]string, len(seen))
	for topic, diffs := range seen {
		for _, d := range models.AllDifficulties {
			if _, ok := diffs[d]; ok {
				result[topic] = append(result[topic], d)
			}
		}
	}
	return result, nil
}
