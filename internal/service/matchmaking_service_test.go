package service

import (
	"context"
	"testing"
	"time"

	"github.com/codeduel/duel-backend/internal/models"
	"github.com/codeduel/duel-backend/internal/websocket"
	"github.com/codeduel/duel-backend/pkg/distributed"
	"github.com/codeduel/duel-backend/pkg/problems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatchmaking(t *testing.T, env *testEnv, presence Presence, locker PassLocker) *MatchmakingService {
	t.Helper()
	mm := NewMatchmakingService(env.queue, env.users, env.requests, presence, locker, env.matchSvc, env.notifier,
		MatchmakingConfig{Interval: 20 * time.Millisecond, CreateTimeout: 2 * time.Second}, nil)
	t.Cleanup(func() {
		mm.Stop()
		mm.wg.Wait()
	})
	return mm
}

func entry(id string, elo int) models.QueueEntry {
	return models.QueueEntry{UserID: id, Elo: elo}
}

func TestPairEntries(t *testing.T) {
	tests := []struct {
		name     string
		entries  []models.QueueEntry
		pairs    [][2]string
		unpaired []string
	}{
		{
			name:     "Closest Elo wins",
			entries:  []models.QueueEntry{entry("a", 1200), entry("b", 1500), entry("c", 1210), entry("d", 1490), entry("e", 1000)},
			pairs:    [][2]string{{"a", "c"}, {"b", "d"}},
			unpaired: []string{"e"},
		},
		{
			name:     "Tie goes to earlier entry",
			entries:  []models.QueueEntry{entry("x", 1200), entry("y", 1250), entry("z", 1150)},
			pairs:    [][2]string{{"x", "y"}},
			unpaired: []string{"z"},
		},
		{
			name:     "No Elo cutoff",
			entries:  []models.QueueEntry{entry("low", 800), entry("high", 2400)},
			pairs:    [][2]string{{"low", "high"}},
			unpaired: nil,
		},
		{
			name:     "Single entry",
			entries:  []models.QueueEntry{entry("solo", 1200)},
			pairs:    nil,
			unpaired: []string{"solo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, unpaired := PairEntries(tt.entries)

			var gotPairs [][2]string
			for _, p := range pairs {
				gotPairs = append(gotPairs, [2]string{p[0].UserID, p[1].UserID})
			}
			var gotUnpaired []string
			for _, e := range unpaired {
				gotUnpaired = append(gotUnpaired, e.UserID)
			}

			assert.Equal(t, tt.pairs, gotPairs)
			assert.Equal(t, tt.unpaired, gotUnpaired)
		})
	}
}

func TestMatchmaking_JoinAndLeave(t *testing.T) {
	env := newTestEnv(t, MatchServiceConfig{}, duelists()...)
	mm := newTestMatchmaking(t, env, nil, nil)
	ctx := context.Background()

	queued, err := mm.Join(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1200, queued.Elo)

	_, err = mm.Join(ctx, "alice")
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	assert.Len(t, env.notifier.sent("alice", websocket.TypeQueueJoined), 1)

	statuses := env.notifier.sent("alice", websocket.TypeQueueStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, 1, statuses[0].Payload.(*models.QueueStatus).QueueSize)

	inQueue, err := mm.InQueue(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, inQueue)

	require.NoError(t, mm.Leave(ctx, "alice"))
	require.NoError(t, mm.Leave(ctx, "alice"))
	assert.Len(t, env.notifier.sent("alice", websocket.TypeQueueLeft), 2)

	inQueue, err = mm.InQueue(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, inQueue)

	_, err = mm.Join(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMatchmaking_JoinGuards(t *testing.T) {
	env := newTestEnv(t, MatchServiceConfig{}, duelists()...)
	mm := newTestMatchmaking(t, env, nil, nil)
	ctx := context.Background()
	now := time.Now()

	_, err := env.requests.Create(ctx, "carol", "alice", now, now.Add(5*time.Minute))
	require.NoError(t, err)
	_, err = mm.Join(ctx, "carol")
	assert.ErrorIs(t, err, ErrPendingOutgoing)

	// 만료된 신청은 막지 않음
	_, err = env.requests.Create(ctx, "bob", "carol", now.Add(-10*time.Minute), now.Add(-5*time.Minute))
	require.NoError(t, err)
	_, err = mm.Join(ctx, "bob")
	assert.NoError(t, err)
	require.NoError(t, mm.Leave(ctx, "bob"))

	env.startedMatch(t, "alice", "bob")
	_, err = mm.Join(ctx, "alice")
	assert.ErrorIs(t, err, ErrAlreadyInMatch)
}

// racingQueue 참가 직전에 친구 신청이 끼어드는 대기열
type racingQueue struct {
	*distributed.QueueStore
	before func()
}

func (q *racingQueue) Join(ctx context.Context, userID string, elo int) (*models.QueueEntry, error) {
	if q.before != nil {
		q.before()
	}
	return q.QueueStore.Join(ctx, userID, elo)
}

func TestMatchmaking_SendDuringJoinUndoesJoin(t *testing.T) {
	env := newTestEnv(t, MatchServiceConfig{}, duelists()...)
	ctx := context.Background()
	now := time.Now()

	queue := &racingQueue{QueueStore: env.queue}
	queue.before = func() {
		_, err := env.requests.Create(ctx, "alice", "bob", now, now.Add(5*time.Minute))
		require.NoError(t, err)
	}
	mm := NewMatchmakingService(queue, env.users, env.requests, nil, nil, env.matchSvc, env.notifier,
		MatchmakingConfig{Interval: 20 * time.Millisecond, CreateTimeout: 2 * time.Second}, nil)
	t.Cleanup(mm.Stop)

	_, err := mm.Join(ctx, "alice")
	assert.ErrorIs(t, err, ErrPendingOutgoing)

	queued, err := env.queue.Contains(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, queued)
}

func TestMatchmaking_RunOnceCreatesMatch(t *testing.T) {
	env := newTestEnv(t, MatchServiceConfig{}, duelists()...)
	mm := newTestMatchmaking(t, env, nil, nil)
	ctx := context.Background()

	for _, u := range []string{"alice", "carol", "bob"} {
		_, err := mm.Join(ctx, u)
		require.NoError(t, err)
	}

	mm.RunOnce(ctx)

	found := env.notifier.waitFor(t, "alice", websocket.TypeMatchFound, 1)
	assert.Equal(t, "bob", found[0].Payload.(websocket.MatchFoundPayload).Opponent.ID)
	env.notifier.waitFor(t, "bob", websocket.TypeMatchFound, 1)
	assert.Empty(t, env.notifier.sent("carol", websocket.TypeMatchFound))

	// 남은 사용자는 상태를 받음
	assert.Len(t, env.notifier.sent("carol", websocket.TypeQueueStatus), 2)

	size, err := env.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestMatchmaking_FailedCreationRequeues(t *testing.T) {
	env := newTestEnv(t, MatchServiceConfig{}, duelists()...)
	env.provider.pick = func(f problems.Filter) (*models.Problem, error) {
		return nil, problems.ErrNotFound
	}
	mm := newTestMatchmaking(t, env, nil, nil)
	ctx := context.Background()

	for _, u := range []string{"alice", "bob"} {
		_, err := mm.Join(ctx, u)
		require.NoError(t, err)
	}

	mm.RunOnce(ctx)

	for _, u := range []string{"alice", "bob"} {
		msgs := env.notifier.waitFor(t, u, websocket.TypeMatchError, 1)
		assert.Equal(t, "Failed to create match, returning to queue", msgs[0].Payload.(websocket.TextPayload).Message)

		queued, err := env.queue.Get(ctx, u)
		require.NoError(t, err)
		require.NotNil(t, queued)
		assert.Equal(t, env.users.elo(u), queued.Elo)

		_, ok, err := env.claims.ActiveMatch(ctx, u)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestMatchmaking_DisjointPreferencesStillMatch(t *testing.T) {
	alice := newUser("alice", 1200)
	alice.Topics, alice.Difficulties = []string{"array"}, []string{models.DifficultyEasy}
	bob := newUser("bob", 1250)
	bob.Topics, bob.Difficulties = []string{"tree"}, []string{models.DifficultyHard}

	env := newTestEnv(t, MatchServiceConfig{}, alice, bob)
	mm := newTestMatchmaking(t, env, nil, nil)
	ctx := context.Background()

	for _, u := range []string{"alice", "bob"} {
		_, err := mm.Join(ctx, u)
		require.NoError(t, err)
	}
	mm.RunOnce(ctx)

	env.notifier.waitFor(t, "bob", websocket.TypeMatchFound, 1)
	calls := env.provider.filters()
	require.NotEmpty(t, calls)
	assert.Equal(t, []string{"array", "tree"}, calls[0].Topics)
	assert.Equal(t, []string{models.DifficultyEasy, models.DifficultyHard}, calls[0].Difficulties)
}

func TestMatchmaking_PurgesOfflineUsers(t *testing.T) {
	env := newTestEnv(t, MatchServiceConfig{}, duelists()...)
	directory := distributed.NewSessionDirectory(env.client, "instance-a")
	mm := newTestMatchmaking(t, env, directory, nil)
	ctx := context.Background()

	for _, u := range []string{"alice", "bob", "carol"} {
		_, err := mm.Join(ctx, u)
		require.NoError(t, err)
	}
	require.NoError(t, directory.Register(ctx, "alice"))
	require.NoError(t, directory.Register(ctx, "carol"))

	mm.RunOnce(ctx)

	// bob 은 연결이 없어 제거되고 alice 는 carol 과 짝
	found := env.notifier.waitFor(t, "alice", websocket.TypeMatchFound, 1)
	assert.Equal(t, "carol", found[0].Payload.(websocket.MatchFoundPayload).Opponent.ID)

	inQueue, err := mm.InQueue(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, inQueue)
	assert.Empty(t, env.notifier.sent("bob", websocket.TypeMatchFound))
}

func TestMatchmaking_SkipsPassWhenLockHeld(t *testing.T) {
	env := newTestEnv(t, MatchServiceConfig{}, duelists()...)
	locks := distributed.NewRedisLockManager(env.client, "instance-a")
	mm := newTestMatchmaking(t, env, nil, locks)
	ctx := context.Background()

	for _, u := range []string{"alice", "bob"} {
		_, err := mm.Join(ctx, u)
		require.NoError(t, err)
	}

	held, err := distributed.NewRedisLockManager(env.client, "instance-b").AcquireLock(ctx, matchmakingLockKey, time.Minute)
	require.NoError(t, err)

	mm.RunOnce(ctx)
	size, err := env.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
	assert.Empty(t, env.notifier.sent("alice", websocket.TypeMatchFound))

	require.NoError(t, held.Release(ctx))

	mm.RunOnce(ctx)
	env.notifier.waitFor(t, "alice", websocket.TypeMatchFound, 1)
}

func TestMatchmaking_StartStop(t *testing.T) {
	env := newTestEnv(t, MatchServiceConfig{}, duelists()...)
	mm := newTestMatchmaking(t, env, nil, nil)
	ctx := context.Background()

	mm.Start()
	mm.Start()

	for _, u := range []string{"bob", "carol"} {
		_, err := mm.Join(ctx, u)
		require.NoError(t, err)
	}
	env.notifier.waitFor(t, "carol", websocket.TypeMatchFound, 1)

	mm.Stop()
	mm.Stop()
}

func TestMatchmaking_Status(t *testing.T) {
	env := newTestEnv(t, MatchServiceConfig{}, duelists()...)
	mm := newTestMatchmaking(t, env, nil, nil)
	ctx := context.Background()

	base := time.Now()
	mm.now = func() time.Time { return base.Add(30 * time.Second) }

	for _, u := range []string{"alice", "bob", "carol"} {
		_, err := mm.Join(ctx, u)
		require.NoError(t, err)
	}

	status, err := mm.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, status.QueueSize)
	assert.Equal(t, 2, status.PotentialMatches)
	assert.GreaterOrEqual(t, status.WaitSeconds, 29)

	status, err = mm.Status(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 3, status.QueueSize)
	assert.Zero(t, status.WaitSeconds)
}
