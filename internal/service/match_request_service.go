package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codeduel/duel-backend/internal/models"
	"github.com/codeduel/duel-backend/internal/repository"
	"github.com/codeduel/duel-backend/internal/websocket"
	"go.uber.org/zap"
)

const (
	defaultRequestTTL    = 5 * time.Minute
	defaultSweepInterval = 30 * time.Second
	maxCreateRetries     = 3
)

// ActiveMatchLookup 사용자의 진행 중 매치 조회
type ActiveMatchLookup interface {
	ActiveMatch(ctx context.Context, userID string) (string, bool, error)
}

// MatchCoordinator 매치 생성과 진행 중 매치 조회 (MatchService)
type MatchCoordinator interface {
	MatchCreator
	ActiveMatchLookup
}

// MatchRequestService 친구 대전 신청
type MatchRequestService struct {
	requests MatchRequestStore
	friends  FriendStore
	users    UserStore
	queue    QueueStore
	matches  MatchCoordinator
	notifier Notifier
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
	now      func() time.Time
	backoff  time.Duration
}

func NewMatchRequestService(
	requests MatchRequestStore,
	friends FriendStore,
	users UserStore,
	queue QueueStore,
	matches MatchCoordinator,
	notifier Notifier,
	ttl, sweepInterval time.Duration,
	logger *zap.Logger,
) *MatchRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultRequestTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	return &MatchRequestService{
		requests: requests,
		friends:  friends,
		users:    users,
		queue:    queue,
		matches:  matches,
		notifier: notifier,
		ttl:      ttl,
		interval: sweepInterval,
		logger:   logger,
		stopChan: make(chan struct{}),
		now:      time.Now,
		backoff:  100 * time.Millisecond,
	}
}

// Send 대전 신청
// 상대가 이미 나에게 보낸 신청이 있으면 새로 만들지 않고 그 신청을 수락
func (s *MatchRequestService) Send(ctx context.Context, senderID, receiverID string) (*models.MatchRequest, error) {
	if senderID == receiverID {
		return nil, ErrSelfRequest
	}

	users, err := s.users.FindByIDs(ctx, []string{senderID, receiverID})
	if err != nil {
		return nil, persistenceError("load users", err)
	}
	sender, receiver := users[senderID], users[receiverID]
	if sender == nil || receiver == nil {
		return nil, ErrUserNotFound
	}

	friends, err := s.friends.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return nil, persistenceError("load friends", err)
	}
	if !friends {
		return nil, ErrNotFriends
	}

	// 보낸 신청은 하나만
	sent, err := s.pendingSent(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if sent != nil {
		return nil, ErrPendingRequestExists
	}

	// 상대가 받은 신청에 먼저 응답해야 함
	received, err := s.pendingReceived(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if len(received) > 0 {
		return nil, ErrReceiverBusy
	}

	if err := s.checkAvailable(ctx, senderID, ErrAlreadyInMatch, ErrInQueue); err != nil {
		return nil, err
	}
	if err := s.checkAvailable(ctx, receiverID, ErrReceiverBusy, ErrReceiverBusy); err != nil {
		return nil, err
	}

	// 서로 동시에 신청한 경우
	if mutual, err := s.requests.FindPendingBetween(ctx, receiverID, senderID); err != nil {
		return nil, persistenceError("load match requests", err)
	} else if mutual != nil && !mutual.IsExpired(s.now()) {
		s.logger.Info("Mutual match request, auto-accepting",
			zap.String("requestId", mutual.ID),
			zap.String("userId", senderID))
		return s.Accept(ctx, mutual.ID, senderID)
	}

	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		now := s.now()
		req, err := s.requests.Create(ctx, senderID, receiverID, now, now.Add(s.ttl))
		if err == nil {
			// 확인과 삽입 사이에 큐에 참가했으면 신청 취소
			if err := s.withdrawIfQueued(ctx, req); err != nil {
				return nil, err
			}

			s.logger.Info("Match request sent",
				zap.String("requestId", req.ID),
				zap.String("sender", senderID),
				zap.String("receiver", receiverID))

			s.notifier.Send(ctx, receiverID, websocket.TypeMatchRequestReceived, models.MatchRequestView{
				MatchRequest: req,
				Counterpart:  sender.AsOpponent(),
			})
			return req, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, persistenceError("create match request", err)
		}

		// 상대가 방금 신청함
		mutual, lookupErr := s.requests.FindPendingBetween(ctx, receiverID, senderID)
		if lookupErr != nil {
			return nil, persistenceError("load match requests", lookupErr)
		}
		if mutual != nil {
			return s.Accept(ctx, mutual.ID, senderID)
		}

		// 다른 사용자가 먼저 신청함
		switch {
		case errors.Is(err, repository.ErrPendingReceiver):
			return nil, ErrReceiverBusy
		case errors.Is(err, repository.ErrPendingSender):
			return nil, ErrPendingRequestExists
		}

		select {
		case <-time.After(s.backoff * time.Duration(attempt+1)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, ErrPendingRequestExists
}

func (s *MatchRequestService) withdrawIfQueued(ctx context.Context, req *models.MatchRequest) error {
	queued, err := s.queue.Contains(ctx, req.SenderID)
	if err != nil {
		return fmt.Errorf("failed to check queue: %w", err)
	}
	if !queued {
		return nil
	}
	if _, err := s.requests.Transition(ctx, req.ID, models.MatchRequestPending, models.MatchRequestCancelled, s.now()); err != nil {
		s.logger.Warn("Failed to withdraw match request", zap.String("requestId", req.ID), zap.Error(err))
	}
	return ErrInQueue
}

// checkAvailable 진행 중 매치나 큐에 있으면 각각의 에러
func (s *MatchRequestService) checkAvailable(ctx context.Context, userID string, inMatch, inQueue error) error {
	_, active, err := s.matches.ActiveMatch(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check active match: %w", err)
	}
	if active {
		return inMatch
	}

	queued, err := s.queue.Contains(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check queue: %w", err)
	}
	if queued {
		return inQueue
	}
	return nil
}

// Accept 받은 신청 수락 후 매치 생성. 생성에 실패하면 PENDING 으로 되돌림
func (s *MatchRequestService) Accept(ctx context.Context, requestID, userID string) (*models.MatchRequest, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != userID {
		return nil, ErrUnauthorizedAction
	}
	if req.Status != models.MatchRequestPending {
		return nil, ErrAlreadyResponded
	}
	if req.IsExpired(s.now()) {
		s.expire(ctx, req)
		return nil, ErrExpired
	}

	accepted, err := s.requests.Transition(ctx, requestID, models.MatchRequestPending, models.MatchRequestAccepted, s.now())
	if errors.Is(err, repository.ErrStaleUpdate) {
		return nil, ErrAlreadyResponded
	}
	if err != nil {
		return nil, persistenceError("accept match request", err)
	}

	// 수락한 쪽이 그 사이 큐에 들어갔을 수 있음
	for _, id := range []string{req.SenderID, req.ReceiverID} {
		if _, err := s.queue.Leave(ctx, id); err != nil {
			s.logger.Warn("Failed to remove user from queue", zap.String("userId", id), zap.Error(err))
		}
	}

	live, err := s.matches.CreateMatch(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		if _, revertErr := s.requests.Transition(ctx, requestID, models.MatchRequestAccepted, models.MatchRequestPending, s.now()); revertErr != nil {
			s.logger.Error("Failed to revert match request",
				zap.String("requestId", requestID),
				zap.Error(revertErr))
		}
		return nil, err
	}

	matchID := live.ID
	accepted.MatchID = &matchID
	if err := s.requests.SetMatch(ctx, requestID, matchID); err != nil {
		s.logger.Warn("Failed to record match on request", zap.String("requestId", requestID), zap.Error(err))
	}

	s.notifier.Send(ctx, req.SenderID, websocket.TypeMatchRequestUpdated, websocket.MatchRequestUpdatedPayload{
		RequestID: requestID,
		Status:    string(models.MatchRequestAccepted),
		MatchID:   &matchID,
	})

	s.logger.Info("Match request accepted",
		zap.String("requestId", requestID),
		zap.String("matchId", matchID))

	return accepted, nil
}

// Reject 받은 신청 거절
func (s *MatchRequestService) Reject(ctx context.Context, requestID, userID string) (*models.MatchRequest, error) {
	return s.respond(ctx, requestID, userID, false, models.MatchRequestRejected)
}

// Cancel 보낸 신청 취소
func (s *MatchRequestService) Cancel(ctx context.Context, requestID, userID string) (*models.MatchRequest, error) {
	return s.respond(ctx, requestID, userID, true, models.MatchRequestCancelled)
}

func (s *MatchRequestService) respond(ctx context.Context, requestID, userID string, bySender bool, to models.MatchRequestStatus) (*models.MatchRequest, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	actor, counterpart := req.ReceiverID, req.SenderID
	if bySender {
		actor, counterpart = req.SenderID, req.ReceiverID
	}
	if actor != userID {
		return nil, ErrUnauthorizedAction
	}
	if req.Status != models.MatchRequestPending {
		return nil, ErrAlreadyResponded
	}

	updated, err := s.requests.Transition(ctx, requestID, models.MatchRequestPending, to, s.now())
	if errors.Is(err, repository.ErrStaleUpdate) {
		return nil, ErrAlreadyResponded
	}
	if err != nil {
		return nil, persistenceError("update match request", err)
	}

	s.notifier.Send(ctx, counterpart, websocket.TypeMatchRequestUpdated, websocket.MatchRequestUpdatedPayload{
		RequestID: requestID,
		Status:    string(to),
	})
	return updated, nil
}

func (s *MatchRequestService) load(ctx context.Context, requestID string) (*models.MatchRequest, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, persistenceError("load match request", err)
	}
	if req == nil {
		return nil, ErrMatchRequestNotFound
	}
	return req, nil
}

// expire 만료 처리 후 양쪽에 알림 (이미 바뀐 경우는 무시)
func (s *MatchRequestService) expire(ctx context.Context, req *models.MatchRequest) bool {
	_, err := s.requests.Transition(ctx, req.ID, models.MatchRequestPending, models.MatchRequestExpired, s.now())
	if err != nil {
		if !errors.Is(err, repository.ErrStaleUpdate) {
			s.logger.Warn("Failed to expire match request", zap.String("requestId", req.ID), zap.Error(err))
		}
		return false
	}
	s.notifyExpired(ctx, req)
	return true
}

func (s *MatchRequestService) notifyExpired(ctx context.Context, req *models.MatchRequest) {
	payload := websocket.MatchRequestUpdatedPayload{
		RequestID: req.ID,
		Status:    string(models.MatchRequestExpired),
	}
	s.notifier.Send(ctx, req.SenderID, websocket.TypeMatchRequestUpdated, payload)
	s.notifier.Send(ctx, req.ReceiverID, websocket.TypeMatchRequestUpdated, payload)
}

// pendingSent 만료되지 않은 보낸 신청 (만료된 것은 정리)
func (s *MatchRequestService) pendingSent(ctx context.Context, userID string) (*models.MatchRequest, error) {
	req, err := s.requests.FindPendingSent(ctx, userID)
	if err != nil {
		return nil, persistenceError("load match requests", err)
	}
	if req != nil && req.IsExpired(s.now()) {
		s.expire(ctx, req)
		return nil, nil
	}
	return req, nil
}

// pendingReceived 만료되지 않은 받은 신청 목록
func (s *MatchRequestService) pendingReceived(ctx context.Context, userID string) ([]*models.MatchRequest, error) {
	reqs, err := s.requests.FindPendingReceived(ctx, userID)
	if err != nil {
		return nil, persistenceError("load match requests", err)
	}
	return s.dropExpired(ctx, reqs), nil
}

func (s *MatchRequestService) dropExpired(ctx context.Context, reqs []*models.MatchRequest) []*models.MatchRequest {
	now := s.now()
	live := make([]*models.MatchRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.IsExpired(now) {
			s.expire(ctx, r)
			continue
		}
		live = append(live, r)
	}
	return live
}

// ListPending 보낸/받은 대기 중 신청. 만료된 신청은 조회하면서 정리
func (s *MatchRequestService) ListPending(ctx context.Context, userID string) (*models.PendingRequests, error) {
	reqs, err := s.requests.ListPending(ctx, userID)
	if err != nil {
		return nil, persistenceError("load match requests", err)
	}
	reqs = s.dropExpired(ctx, reqs)

	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if r.SenderID == userID {
			ids = append(ids, r.ReceiverID)
		} else {
			ids = append(ids, r.SenderID)
		}
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, persistenceError("load users", err)
	}

	result := &models.PendingRequests{
		Sent:     []models.MatchRequestView{},
		Received: []models.MatchRequestView{},
	}
	for i, r := range reqs {
		view := models.MatchRequestView{MatchRequest: r, Counterpart: models.Opponent{ID: ids[i]}}
		if u := users[ids[i]]; u != nil {
			view.Counterpart = u.AsOpponent()
		}
		if r.SenderID == userID {
			result.Sent = append(result.Sent, view)
		} else {
			result.Received = append(result.Received, view)
		}
	}
	return result, nil
}

// MatchState 사용자의 매칭 관련 상태
func (s *MatchRequestService) MatchState(ctx context.Context, userID string) (*models.UserMatchState, error) {
	state := &models.UserMatchState{UserID: userID, PendingReceivedRequests: []*models.MatchRequest{}}

	matchID, active, err := s.matches.ActiveMatch(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active match: %w", err)
	}
	if active {
		state.InActiveMatch = true
		state.ActiveMatchID = &matchID
	}

	if state.InQueue, err = s.queue.Contains(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to check queue: %w", err)
	}

	sent, err := s.pendingSent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sent != nil {
		state.HasPendingSentRequest = true
		state.PendingSentRequestID = &sent.ID
	}

	received, err := s.pendingReceived(ctx, userID)
	if err != nil {
		return nil, err
	}
	state.PendingReceivedRequests = received

	state.CanSendMatchRequest = !(state.InActiveMatch || state.InQueue || state.HasPendingSentRequest)
	state.CanJoinQueue = !(state.InActiveMatch || state.HasPendingSentRequest || len(received) > 0)
	return state, nil
}

// SweepExpired 만료된 신청 일괄 정리
func (s *MatchRequestService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.requests.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, persistenceError("expire match requests", err)
	}
	for _, req := range expired {
		s.notifyExpired(ctx, req)
	}
	if len(expired) > 0 {
		s.logger.Info("Expired match requests", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

// Start 만료 정리 루프 시작
func (s *MatchRequestService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop 만료 정리 루프 중지
func (s *MatchRequestService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
}

func (s *MatchRequestService) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if _, err := s.SweepExpired(ctx); err != nil {
				s.logger.Error("Failed to sweep expired match requests", zap.Error(err))
			}
			cancel()
		case <-s.stopChan:
			return
		}
	}
}
