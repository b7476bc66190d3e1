package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/codeduel/duel-backend/internal/models"
	"github.com/codeduel/duel-backend/internal/repository"
	"github.com/codeduel/duel-backend/pkg/distributed"
	"github.com/codeduel/duel-backend/pkg/problems"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store unavailable")

// --- users ---

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) FindByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *fakeUserStore) GetElo(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u.Elo, nil
	}
	return 0, nil
}

func (s *fakeUserStore) Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Elo > all[j].Elo })

	var out []models.LeaderboardEntry
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, models.LeaderboardEntry{Rank: i + 1, UserID: all[i].ID, Username: all[i].DisplayName(), Elo: all[i].Elo})
	}
	return out, nil
}

func (s *fakeUserStore) elo(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].Elo
}

func (s *fakeUserStore) addElo(id string, delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].Elo += delta
	return s.users[id].Elo
}

// --- matches ---

type fakeMatchStore struct {
	mu            sync.Mutex
	users         *fakeUserStore
	records       map[string]*models.MatchHistory
	solved        map[string][]string
	failCompletes int
	completeCalls int
	completeDelay time.Duration

	// CreatePlaceholder 직후 호출
	afterPlaceholder func(m *models.MatchHistory)
}

func newFakeMatchStore(users *fakeUserStore) *fakeMatchStore {
	return &fakeMatchStore{
		users:   users,
		records: make(map[string]*models.MatchHistory),
		solved:  make(map[string][]string),
	}
}

func (s *fakeMatchStore) CreatePlaceholder(ctx context.Context, m *models.MatchHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Status = models.MatchStatusPending
	m.CreatedAt = time.Now()
	m.WinnerEloAfter, m.LoserEloAfter = m.WinnerEloBefore, m.LoserEloBefore
	cp := *m
	s.records[m.ID] = &cp
	if s.afterPlaceholder != nil {
		s.afterPlaceholder(&cp)
	}
	return nil
}

func (s *fakeMatchStore) DeletePendingForUsers(ctx context.Context, userIDs ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.records {
		if m.Status != models.MatchStatusPending {
			continue
		}
		for _, u := range userIDs {
			if m.WinnerID == u || m.LoserID == u {
				delete(s.records, id)
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *fakeMatchStore) DeletePending(ctx context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.records[matchID]; ok && m.Status == models.MatchStatusPending {
		delete(s.records, matchID)
	}
	return nil
}

func (s *fakeMatchStore) Complete(ctx context.Context, o models.MatchOutcome) (*models.MatchHistory, error) {
	if s.completeDelay > 0 {
		time.Sleep(s.completeDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.completeCalls++
	if s.failCompletes > 0 {
		s.failCompletes--
		return nil, errStoreDown
	}

	m, ok := s.records[o.MatchID]
	if !ok || m.Status != models.MatchStatusPending {
		return nil, repository.ErrStaleUpdate
	}

	now := time.Now()
	m.Status = models.MatchStatusCompleted
	m.WinnerID, m.LoserID = o.WinnerID, o.LoserID
	m.WinnerEloBefore, m.LoserEloBefore = o.WinnerEloBefore, o.LoserEloBefore
	m.WinnerEloAfter = s.users.addElo(o.WinnerID, o.EloDelta)
	m.LoserEloAfter = s.users.addElo(o.LoserID, -o.EloDelta)
	m.EloChange = o.EloDelta
	m.WinnerRuntime, m.LoserRuntime = o.Winner.Runtime, o.Loser.Runtime
	m.WinnerMemory, m.LoserMemory = o.Winner.Memory, o.Loser.Memory
	m.WinnerCode, m.LoserCode = o.Winner.Code, o.Loser.Code
	m.DurationSeconds = o.DurationSeconds
	m.ClientDurationSeconds = o.ClientDurationSeconds
	m.CompletedAt = &now

	s.solved[o.WinnerID] = append(s.solved[o.WinnerID], o.ProblemSlug)
	s.solved[o.LoserID] = append(s.solved[o.LoserID], o.ProblemSlug)

	cp := *m
	return &cp, nil
}

func (s *fakeMatchStore) FindByID(ctx context.Context, id string) (*models.MatchHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *fakeMatchStore) FindCompletedByUser(ctx context.Context, userID string, limit, offset int) ([]*models.MatchHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MatchHistory
	for _, m := range s.records {
		if m.Status == models.MatchStatusCompleted && (m.WinnerID == userID || m.LoserID == userID) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(*out[j].CompletedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeMatchStore) CompletedProblemSlugs(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.solved[userID]...), nil
}

func (s *fakeMatchStore) record(id string) *models.MatchHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.records[id]; ok {
		cp := *m
		return &cp
	}
	return nil
}

func (s *fakeMatchStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeCalls
}

// --- match requests ---

type fakeRequestStore struct {
	mu        sync.Mutex
	requests  map[string]*models.MatchRequest
	seq       int
	beforeAdd func() // 삽입 직전 훅 (동시성 테스트용)
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: make(map[string]*models.MatchRequest)}
}

func (s *fakeRequestStore) Create(ctx context.Context, senderID, receiverID string, createdAt, expiresAt time.Time) (*models.MatchRequest, error) {
	if s.beforeAdd != nil {
		s.beforeAdd()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 부분 unique 인덱스 흉내: 쌍당, 보낸 사람당, 받는 사람당 PENDING 하나
	for _, r := range s.requests {
		if r.Status != models.MatchRequestPending {
			continue
		}
		samePair := (r.SenderID == senderID && r.ReceiverID == receiverID) ||
			(r.SenderID == receiverID && r.ReceiverID == senderID)
		switch {
		case samePair:
			return nil, pendingViolation(repository.ErrPendingPair, "uq_friend_match_requests_pending_pair")
		case r.SenderID == senderID:
			return nil, pendingViolation(repository.ErrPendingSender, "uq_friend_match_requests_pending_sender")
		case r.ReceiverID == receiverID:
			return nil, pendingViolation(repository.ErrPendingReceiver, "uq_friend_match_requests_pending_receiver")
		}
	}

	s.seq++
	req := &models.MatchRequest{
		ID:         fmt.Sprintf("req-%d", s.seq),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.MatchRequestPending,
		CreatedAt:  createdAt,
		ExpiresAt:  expiresAt,
	}
	s.requests[req.ID] = req
	cp := *req
	return &cp, nil
}

func pendingViolation(conflict error, constraint string) error {
	return fmt.Errorf("failed to create match request: %w: %w", conflict, &pq.Error{Code: "23505", Constraint: constraint})
}

func (s *fakeRequestStore) FindByID(ctx context.Context, id string) (*models.MatchRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.requests[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeRequestStore) find(match func(*models.MatchRequest) bool) []*models.MatchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MatchRequest
	for _, r := range s.requests {
		if match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeRequestStore) FindPendingBetween(ctx context.Context, senderID, receiverID string) (*models.MatchRequest, error) {
	found := s.find(func(r *models.MatchRequest) bool {
		return r.Status == models.MatchRequestPending && r.SenderID == senderID && r.ReceiverID == receiverID
	})
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (s *fakeRequestStore) FindPendingSent(ctx context.Context, senderID string) (*models.MatchRequest, error) {
	found := s.find(func(r *models.MatchRequest) bool {
		return r.Status == models.MatchRequestPending && r.SenderID == senderID
	})
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

func (s *fakeRequestStore) FindPendingReceived(ctx context.Context, receiverID string) ([]*models.MatchRequest, error) {
	return s.find(func(r *models.MatchRequest) bool {
		return r.Status == models.MatchRequestPending && r.ReceiverID == receiverID
	}), nil
}

func (s *fakeRequestStore) ListPending(ctx context.Context, userID string) ([]*models.MatchRequest, error) {
	return s.find(func(r *models.MatchRequest) bool {
		return r.Status == models.MatchRequestPending && r.Involves(userID)
	}), nil
}

func (s *fakeRequestStore) Transition(ctx context.Context, id string, from, to models.MatchRequestStatus, at time.Time) (*models.MatchRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok || r.Status != from {
		return nil, repository.ErrStaleUpdate
	}
	r.Status = to
	if to == models.MatchRequestPending {
		r.RespondedAt = nil
	} else {
		t := at
		r.RespondedAt = &t
	}
	cp := *r
	return &cp, nil
}

func (s *fakeRequestStore) SetMatch(ctx context.Context, id, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.requests[id]; ok {
		m := matchID
		r.MatchID = &m
	}
	return nil
}

func (s *fakeRequestStore) ExpireDue(ctx context.Context, now time.Time) ([]*models.MatchRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MatchRequest
	for _, r := range s.requests {
		if r.Status == models.MatchRequestPending && r.ExpiresAt.Before(now) {
			r.Status = models.MatchRequestExpired
			t := now
			r.RespondedAt = &t
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeRequestStore) status(id string) models.MatchRequestStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id].Status
}

// --- friends ---

type fakeFriendStore struct {
	pairs map[[2]string]bool
}

func newFakeFriendStore(pairs ...[2]string) *fakeFriendStore {
	s := &fakeFriendStore{pairs: make(map[[2]string]bool)}
	for _, p := range pairs {
		s.pairs[p] = true
		s.pairs[[2]string{p[1], p[0]}] = true
	}
	return s
}

func (s *fakeFriendStore) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	return s.pairs[[2]string{userID, friendID}], nil
}

// --- problems ---

type fakeProvider struct {
	mu    sync.Mutex
	calls []problems.Filter
	pick  func(f problems.Filter) (*models.Problem, error)
}

func (p *fakeProvider) RandomProblem(ctx context.Context, f problems.Filter) (*models.Problem, error) {
	p.mu.Lock()
	p.calls = append(p.calls, f)
	pick := p.pick
	p.mu.Unlock()

	if pick == nil {
		return &models.Problem{ID: "1", Slug: "two-sum", Title: "Two Sum", Difficulty: models.DifficultyEasy}, nil
	}
	return pick(f)
}

func (p *fakeProvider) filters() []problems.Filter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]problems.Filter(nil), p.calls...)
}

// --- notifications ---

type sentMessage struct {
	UserID  string
	Type    string
	Payload interface{}
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []sentMessage
}

func (n *recordingNotifier) Send(ctx context.Context, userID, msgType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, sentMessage{UserID: userID, Type: msgType, Payload: payload})
}

func (n *recordingNotifier) sent(userID, msgType string) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, m := range n.msgs {
		if m.UserID == userID && m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (n *recordingNotifier) types(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.msgs {
		if m.UserID == userID {
			out = append(out, m.Type)
		}
	}
	return out
}

func (n *recordingNotifier) waitFor(t *testing.T, userID, msgType string, count int) []sentMessage {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(n.sent(userID, msgType)) >= count
	}, 3*time.Second, 10*time.Millisecond, "waiting for %d %s to %s", count, msgType, userID)
	return n.sent(userID, msgType)
}

// --- redis ---

func setupRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func newUser(id string, elo int) *models.User {
	return &models.User{
		ID:           id,
		Username:     id,
		Elo:          elo,
		Topics:       []string{"array"},
		Difficulties: []string{models.DifficultyEasy},
		AllowRepeats: true,
	}
}

// testEnv 서비스 테스트 공통 구성 (Redis 는 miniredis)
type testEnv struct {
	users    *fakeUserStore
	matches  *fakeMatchStore
	requests *fakeRequestStore
	provider *fakeProvider
	notifier *recordingNotifier
	client   *redis.Client
	queue    *distributed.QueueStore
	claims   *distributed.MatchClaims
	matchSvc *MatchService
}

func newTestEnv(t *testing.T, cfg MatchServiceConfig, users ...*models.User) *testEnv {
	t.Helper()

	client, _ := setupRedisClient(t)
	env := &testEnv{
		users:    newFakeUserStore(users...),
		requests: newFakeRequestStore(),
		provider: &fakeProvider{},
		notifier: &recordingNotifier{},
		client:   client,
	}
	env.matches = newFakeMatchStore(env.users)
	env.claims = distributed.NewMatchClaims(client)
	env.queue = distributed.NewQueueStore(client, env.claims)

	if cfg.TickInterval == 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	if cfg.ResolutionBackoff == 0 {
		cfg.ResolutionBackoff = time.Millisecond
	}

	selector := NewProblemSelector(env.provider, env.matches, nil, time.Second, nil)
	env.matchSvc = NewMatchService(env.users, env.matches, env.claims, selector, NewELOService(32), env.notifier, cfg, nil)
	t.Cleanup(env.matchSvc.Stop)
	return env
}

// startedMatch countdown 없이 바로 active 인 매치 생성
func (e *testEnv) startedMatch(t *testing.T, a, b string) *LiveMatch {
	t.Helper()
	live, err := e.matchSvc.CreateMatch(context.Background(), a, b)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return live.Phase() == PhaseActive }, 3*time.Second, 5*time.Millisecond)
	return live
}
