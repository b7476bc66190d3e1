package problems

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTopicSource struct {
	topics map[string][]string
	err    error
}

func (s staticTopicSource) TopicDifficulties(ctx context.Context) (map[string][]string, error) {
	return s.topics, s.err
}

func TestTopicCache_Allowed(t *testing.T) {
	cache := NewTopicCache(staticTopicSource{topics: map[string][]string{
		"array":  {"EASY", "MEDIUM", "HARD"},
		"trie":   {"MEDIUM", "HARD"},
		"design": {"MEDIUM"},
	}})

	// Refresh 전에는 그대로
	assert.Equal(t, []string{"trie"}, cache.Allowed([]string{"trie"}, []string{"EASY"}))
	assert.False(t, cache.Loaded())

	require.NoError(t, cache.Refresh(context.Background()))
	assert.True(t, cache.Loaded())

	tests := []struct {
		name         string
		topics       []string
		difficulties []string
		want         []string
	}{
		{"모든 난이도 제공", []string{"array"}, []string{"EASY"}, []string{"array"}},
		{"요청 난이도 없음", []string{"array", "trie"}, []string{"EASY"}, []string{"array"}},
		{"하나라도 있으면 유지", []string{"design"}, []string{"EASY", "MEDIUM"}, []string{"design"}},
		{"난이도 제한 없음", []string{"trie", "design"}, nil, []string{"trie", "design"}},
		{"모르는 토픽은 유지", []string{"graph"}, []string{"HARD"}, []string{"graph"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cache.Allowed(tt.topics, tt.difficulties))
		})
	}
}

func TestTopicCache_Invalidate(t *testing.T) {
	cache := NewTopicCache(staticTopicSource{topics: map[string][]string{"trie": {"HARD"}}})
	require.NoError(t, cache.Refresh(context.Background()))
	assert.Empty(t, cache.Allowed([]string{"trie"}, []string{"EASY"}))

	cache.Invalidate()
	assert.Equal(t, []string{"trie"}, cache.Allowed([]string{"trie"}, []string{"EASY"}))
}

func TestTopicCache_RefreshErrorKeepsOldData(t *testing.T) {
	source := &staticTopicSource{topics: map[string][]string{"trie": {"HARD"}}}
	cache := NewTopicCache(source)
	require.NoError(t, cache.Refresh(context.Background()))

	source.err = errors.New("down")
	assert.Error(t, cache.Refresh(context.Background()))
	assert.Empty(t, cache.Allowed([]string{"trie"}, []string{"EASY"}))
}
