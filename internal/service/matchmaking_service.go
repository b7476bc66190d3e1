package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codeduel/duel-backend/internal/models"
	"github.com/codeduel/duel-backend/internal/websocket"
	"github.com/codeduel/duel-backend/pkg/distributed"
	"go.uber.org/zap"
)

const matchmakingLockKey = "lock:matchmaking:pass"

// MatchCreator 짝지어진 두 사용자의 매치 생성
type MatchCreator interface {
	CreateMatch(ctx context.Context, userA, userB string) (*LiveMatch, error)
}

// MatchmakingConfig 매칭 루프 설정
type MatchmakingConfig struct {
	Interval       time.Duration
	LockTTL        time.Duration
	CreateTimeout  time.Duration // 매치 생성 (문제 선택 포함) 제한 시간
	StatusEloRange int           // queue_status 의 비슷한 상대 수 계산 범위
}

func (c MatchmakingConfig) withDefaults() MatchmakingConfig {
	if c.Interval <= 0 {
		c.Interval = 3 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	if c.CreateTimeout <= 0 {
		c.CreateTimeout = 30 * time.Second
	}
	if c.StatusEloRange <= 0 {
		c.StatusEloRange = 200
	}
	return c
}

type MatchmakingService struct {
	queue    QueueStore
	users    UserStore
	requests MatchRequestStore
	presence Presence
	locker   PassLocker
	creator  MatchCreator
	notifier Notifier
	cfg      MatchmakingConfig
	logger   *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
	now      func() time.Time
}

// NewMatchmakingService 매칭 서비스 생성
// presence, locker, requests 는 nil 가능 (단일 인스턴스 / 테스트)
func NewMatchmakingService(
	queue QueueStore,
	users UserStore,
	requests MatchRequestStore,
	presence Presence,
	locker PassLocker,
	creator MatchCreator,
	notifier Notifier,
	cfg MatchmakingConfig,
	logger *zap.Logger,
) *MatchmakingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &MatchmakingService{
		queue:    queue,
		users:    users,
		requests: requests,
		presence: presence,
		locker:   locker,
		creator:  creator,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start 매칭 시스템 시작
func (s *MatchmakingService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting MatchmakingService", zap.Duration("interval", s.cfg.Interval))

	s.wg.Add(1)
	go s.matchmakingLoop()
}

// Stop 매칭 시스템 중지. 진행 중인 매치 생성이 끝날 때까지 대기
func (s *MatchmakingService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping MatchmakingService")
	close(s.stopChan)
	s.cancel()
	s.wg.Wait()
	s.logger.Info("MatchmakingService stopped")
}

// matchmakingLoop 주기적 매칭 실행
func (s *MatchmakingService) matchmakingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// 시작 시 한번 실행
	s.RunOnce(s.ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(s.ctx)
		case <-s.stopChan:
			return
		}
	}
}

// RunOnce 매칭 한 회 실행. 다른 인스턴스가 실행 중이면 건너뜀
func (s *MatchmakingService) RunOnce(ctx context.Context) {
	if s.locker == nil {
		if err := s.pass(ctx); err != nil {
			s.logger.Error("Matchmaking pass failed", zap.Error(err))
		}
		return
	}

	acquired, err := s.locker.WithLock(ctx, matchmakingLockKey, s.cfg.LockTTL, s.pass)
	if err != nil {
		s.logger.Error("Matchmaking pass failed", zap.Error(err))
		return
	}
	if !acquired {
		s.logger.Debug("Matchmaking pass running elsewhere, skipping")
	}
}

// pass 1. 연결 없는 사용자 정리  2. 가입 순 스냅샷  3. Elo 가 가장 가까운 상대와 짝
// 4. 두 항목을 원자적으로 꺼냄  5. 매치 생성은 별도 고루틴
func (s *MatchmakingService) pass(ctx context.Context) error {
	entries, err := s.queue.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot queue: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	entries = s.purgeOffline(ctx, entries)
	if len(entries) < 2 {
		s.sendStatuses(ctx, entries)
		return nil
	}

	pairs, unpaired := PairEntries(entries)

	matched := 0
	for _, pair := range pairs {
		a, b := pair[0], pair[1]

		claimed, err := s.queue.ClaimPair(ctx, a.UserID, b.UserID)
		if err != nil {
			s.logger.Error("Failed to claim pair",
				zap.String("user1", a.UserID),
				zap.String("user2", b.UserID),
				zap.Error(err))
			continue
		}
		if !claimed {
			// 그 사이 한쪽이 큐를 떠남
			s.logger.Debug("Pair no longer queued",
				zap.String("user1", a.UserID),
				zap.String("user2", b.UserID))
			continue
		}

		s.logger.Debug("Paired users",
			zap.String("user1", a.UserID),
			zap.Int("user1Elo", a.Elo),
			zap.String("user2", b.UserID),
			zap.Int("user2Elo", b.Elo),
			zap.Int("eloDiff", abs(a.Elo-b.Elo)))

		matched++
		s.wg.Add(1)
		go s.createMatch(a, b)
	}

	if matched > 0 {
		s.logger.Info("Matchmaking completed",
			zap.Int("queued", len(entries)),
			zap.Int("matches", matched))
	}

	s.sendStatuses(ctx, unpaired)
	return nil
}

// PairEntries 가입 순으로 돌며 아직 짝이 없는 항목끼리 Elo 가 가장 가까운 상대와 짝지음
// 차이가 같으면 먼저 들어온 상대. Elo 차이 상한은 없음
func PairEntries(entries []models.QueueEntry) (pairs [][2]models.QueueEntry, unpaired []models.QueueEntry) {
	taken := make([]bool, len(entries))

	for i := range entries {
		if taken[i] {
			continue
		}
		best := -1
		for j := range entries {
			if j == i || taken[j] {
				continue
			}
			if best == -1 || abs(entries[i].Elo-entries[j].Elo) < abs(entries[i].Elo-entries[best].Elo) {
				best = j
			}
		}
		if best == -1 {
			unpaired = append(unpaired, entries[i])
			continue
		}
		taken[i], taken[best] = true, true
		pairs = append(pairs, [2]models.QueueEntry{entries[i], entries[best]})
	}
	return pairs, unpaired
}

// purgeOffline 어느 인스턴스에도 연결이 없는 사용자를 큐에서 제거
func (s *MatchmakingService) purgeOffline(ctx context.Context, entries []models.QueueEntry) []models.QueueEntry {
	if s.presence == nil {
		return entries
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	online, err := s.presence.Online(ctx, ids)
	if err != nil {
		s.logger.Warn("Presence lookup failed, skipping purge", zap.Error(err))
		return entries
	}

	kept := entries[:0]
	for _, e := range entries {
		if online[e.UserID] {
			kept = append(kept, e)
			continue
		}
		if _, err := s.queue.Leave(ctx, e.UserID); err != nil {
			s.logger.Warn("Failed to remove offline user", zap.String("userId", e.UserID), zap.Error(err))
			continue
		}
		s.logger.Info("Removed offline user from queue", zap.String("userId", e.UserID))
	}
	return kept
}

// createMatch 실패하면 두 사용자를 다시 큐에 넣고 match_error 전송
func (s *MatchmakingService) createMatch(a, b models.QueueEntry) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CreateTimeout)
	defer cancel()

	if _, err := s.creator.CreateMatch(ctx, a.UserID, b.UserID); err != nil {
		s.logger.Error("Failed to create match",
			zap.String("user1", a.UserID),
			zap.String("user2", b.UserID),
			zap.Error(err))

		s.requeue(a)
		s.requeue(b)
	}
}

// requeue 원래 가입 시각은 잃고 Elo 는 유지
func (s *MatchmakingService) requeue(entry models.QueueEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.queue.Join(ctx, entry.UserID, entry.Elo)
	switch {
	case err == nil:
		s.notifier.Send(ctx, entry.UserID, websocket.TypeMatchError, websocket.TextPayload{
			Message: "Failed to create match, returning to queue",
		})
	case errors.Is(err, distributed.ErrUserInMatch):
		// 그 사이 다른 매치에 들어감
	case errors.Is(err, distributed.ErrEntryExists):
	default:
		s.logger.Error("Failed to requeue user", zap.String("userId", entry.UserID), zap.Error(err))
		s.notifier.Send(ctx, entry.UserID, websocket.TypeMatchError, websocket.TextPayload{
			Message: "Failed to create match, please join the queue again",
		})
	}
}

// Join 큐 참가. 진행 중 매치나 보낸 친구 신청이 있으면 거절
func (s *MatchmakingService) Join(ctx context.Context, userID string) (*models.QueueEntry, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, persistenceError("load user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if err := s.checkPendingSent(ctx, userID); err != nil {
		return nil, err
	}

	entry, err := s.queue.Join(ctx, userID, user.Elo)
	switch {
	case errors.Is(err, distributed.ErrEntryExists):
		return nil, ErrAlreadyQueued
	case errors.Is(err, distributed.ErrUserInMatch):
		return nil, ErrAlreadyInMatch
	case err != nil:
		return nil, fmt.Errorf("failed to join queue: %w", err)
	}

	// 확인과 참가 사이에 보낸 신청이 생겼으면 참가 취소
	if err := s.checkPendingSent(ctx, userID); err != nil {
		if _, leaveErr := s.queue.Leave(ctx, userID); leaveErr != nil {
			s.logger.Warn("Failed to undo queue join", zap.String("userId", userID), zap.Error(leaveErr))
		}
		return nil, err
	}

	s.logger.Info("User joined queue", zap.String("userId", userID), zap.Int("elo", user.Elo))

	s.notifier.Send(ctx, userID, websocket.TypeQueueJoined, websocket.QueuePayload{
		Message: "Joined matchmaking queue",
		Elo:     user.Elo,
	})
	if status, err := s.Status(ctx, userID); err == nil {
		s.notifier.Send(ctx, userID, websocket.TypeQueueStatus, status)
	}
	return entry, nil
}

func (s *MatchmakingService) checkPendingSent(ctx context.Context, userID string) error {
	if s.requests == nil {
		return nil
	}
	req, err := s.requests.FindPendingSent(ctx, userID)
	if err != nil {
		return persistenceError("load match requests", err)
	}
	if req != nil && !req.IsExpired(s.now()) {
		return ErrPendingOutgoing
	}
	return nil
}

// Leave 큐에서 나가기 (여러 번 호출해도 안전)
func (s *MatchmakingService) Leave(ctx context.Context, userID string) error {
	removed, err := s.queue.Leave(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to leave queue: %w", err)
	}
	if removed {
		s.logger.Info("User left queue", zap.String("userId", userID))
	}

	s.notifier.Send(ctx, userID, websocket.TypeQueueLeft, websocket.QueuePayload{Message: "Left matchmaking queue"})
	return nil
}

// Remove 연결 종료 시 조용히 큐에서 제거
func (s *MatchmakingService) Remove(ctx context.Context, userID string) {
	if _, err := s.queue.Leave(ctx, userID); err != nil {
		s.logger.Warn("Failed to remove user from queue", zap.String("userId", userID), zap.Error(err))
	}
}

// InQueue 큐 참가 여부
func (s *MatchmakingService) InQueue(ctx context.Context, userID string) (bool, error) {
	return s.queue.Contains(ctx, userID)
}

// Status 큐 상태 요약
func (s *MatchmakingService) Status(ctx context.Context, userID string) (*models.QueueStatus, error) {
	size, err := s.queue.Size(ctx)
	if err != nil {
		return nil, err
	}
	status := &models.QueueStatus{QueueSize: size, Message: "Searching for opponent..."}

	entry, err := s.queue.Get(ctx, userID)
	if err != nil || entry == nil {
		return status, err
	}
	status.WaitSeconds = int(entry.WaitTime(s.now()).Seconds())

	nearby, err := s.queue.CountInRange(ctx, entry.Elo-s.cfg.StatusEloRange, entry.Elo+s.cfg.StatusEloRange)
	if err != nil {
		return status, err
	}
	if nearby > 0 {
		// 자기 자신 제외
		status.PotentialMatches = nearby - 1
	}
	return status, nil
}

func (s *MatchmakingService) sendStatuses(ctx context.Context, entries []models.QueueEntry) {
	for _, e := range entries {
		status, err := s.Status(ctx, e.UserID)
		if err != nil {
			continue
		}
		s.notifier.Send(ctx, e.UserID, websocket.TypeQueueStatus, status)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
