package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codeduel/duel-backend/internal/models"
	"github.com/codeduel/duel-backend/internal/repository"
	"github.com/codeduel/duel-backend/internal/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 다른 인스턴스에 재연결한 사용자의 상태 재전송 요청
const matchActionResync = "resync"

// MatchActionForwarder 매치를 소유한 인스턴스로 동작 전달
type MatchActionForwarder interface {
	ForwardMatchAction(ctx context.Context, matchID, userID string, payload []byte) error
}

// MatchServiceConfig 매치 진행 설정
type MatchServiceConfig struct {
	CountdownSeconds  int
	TickInterval      time.Duration
	ResolutionRetries int
	ResolutionBackoff time.Duration
	ClaimTTL          time.Duration // 참가자 점유 최대 유지 시간
}

func (c MatchServiceConfig) withDefaults() MatchServiceConfig {
	if c.CountdownSeconds < 0 {
		c.CountdownSeconds = 0
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.ResolutionRetries < 1 {
		c.ResolutionRetries = 1
	}
	if c.ResolutionBackoff <= 0 {
		c.ResolutionBackoff = 200 * time.Millisecond
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 3 * time.Hour
	}
	return c
}

// MatchService 매치 생성, 타이머, 결과 처리
type MatchService struct {
	users     UserStore
	matches   MatchStore
	claims    PlayerClaims
	selector  *ProblemSelector
	rating    RatingPolicy
	notifier  Notifier
	forwarder MatchActionForwarder
	cfg       MatchServiceConfig
	logger    *zap.Logger

	mu     sync.RWMutex
	live   map[string]*LiveMatch // matchID -> 매치
	byUser map[string]string     // userID -> matchID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewMatchService(
	users UserStore,
	matches MatchStore,
	claims PlayerClaims,
	selector *ProblemSelector,
	rating RatingPolicy,
	notifier Notifier,
	cfg MatchServiceConfig,
	logger *zap.Logger,
) *MatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &MatchService{
		users:    users,
		matches:  matches,
		claims:   claims,
		selector: selector,
		rating:   rating,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		live:     make(map[string]*LiveMatch),
		byUser:   make(map[string]string),
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

// SetForwarder 다른 인스턴스가 소유한 매치로 동작을 넘길 forwarder 지정 (nil 이면 로컬에서만 처리)
func (s *MatchService) SetForwarder(forwarder MatchActionForwarder) {
	s.forwarder = forwarder
}

// CreateMatch 두 사용자의 매치 생성
// 1. 참가자 점유(대기열에서도 제거)  2. 남은 pending 레코드 정리  3. 문제 선택  4. 자리표시 레코드 저장
// 5. 진행 상태 등록 후 match_found 전송, 타이머 시작
func (s *MatchService) CreateMatch(ctx context.Context, userA, userB string) (*LiveMatch, error) {
	if userA == userB {
		return nil, ErrInvalidInput
	}

	users, err := s.users.FindByIDs(ctx, []string{userA, userB})
	if err != nil {
		return nil, persistenceError("load players", err)
	}
	a, b := users[userA], users[userB]
	if a == nil || b == nil {
		return nil, ErrUserNotFound
	}

	matchID := uuid.NewString()
	claimed, err := s.claims.ClaimPlayers(ctx, matchID, userA, userB, s.cfg.ClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim players: %w", err)
	}
	if !claimed {
		return nil, ErrAlreadyInMatch
	}

	if n, err := s.matches.DeletePendingForUsers(ctx, userA, userB); err != nil {
		s.logger.Warn("Failed to clean up stale pending matches", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("Removed stale pending matches",
			zap.String("user1", userA),
			zap.String("user2", userB),
			zap.Int64("count", n))
	}

	problem, err := s.selector.Select(ctx, a, b)
	if err != nil {
		s.releaseClaims(matchID, userA, userB)
		return nil, err
	}

	record := &models.MatchHistory{
		ID:              matchID,
		WinnerID:        a.ID,
		LoserID:         b.ID,
		WinnerEloBefore: a.Elo,
		LoserEloBefore:  b.Elo,
		ProblemSlug:     problem.Slug,
		ProblemTitle:    problem.Title,
	}
	if err := s.matches.CreatePlaceholder(ctx, record); err != nil {
		s.releaseClaims(matchID, userA, userB)
		return nil, persistenceError("create match", err)
	}
	if err := ctx.Err(); err != nil {
		// 호출자가 떠났으면 등록하지 않고 되돌림
		s.dropPlaceholder(matchID)
		s.releaseClaims(matchID, userA, userB)
		return nil, err
	}

	live := newLiveMatch(matchID, a, b, problem, s.cfg.CountdownSeconds, s.now())

	s.mu.Lock()
	s.live[matchID] = live
	s.byUser[userA] = matchID
	s.byUser[userB] = matchID
	s.mu.Unlock()

	for _, player := range live.Players {
		s.notifier.Send(ctx, player, websocket.TypeMatchFound, s.matchFoundPayload(live, player))
	}
	s.startTimer(live)

	s.logger.Info("Match created",
		zap.String("matchId", matchID),
		zap.String("user1", userA),
		zap.Int("user1Elo", a.Elo),
		zap.String("user2", userB),
		zap.Int("user2Elo", b.Elo),
		zap.String("problem", problem.Slug))

	return live, nil
}

// SubmitSolution 풀이 제출. 먼저 제출한 참가자가 승리
func (s *MatchService) SubmitSolution(ctx context.Context, userID string, p websocket.SubmitSolutionPayload) error {
	trigger := resolutionTrigger{
		UserID: userID,
		Result: models.SubmissionResult{
			Runtime:              p.Runtime,
			Memory:               p.Memory,
			Code:                 p.Code,
			CompletedAt:          s.now(),
			ClientElapsedSeconds: p.ClientElapsedSeconds,
		},
	}
	return s.act(ctx, userID, p.MatchID, trigger, websocket.TypeSubmitSolution, p)
}

// Resign 기권. 상대가 승리
func (s *MatchService) Resign(ctx context.Context, userID string, p websocket.ResignMatchPayload) error {
	trigger := resolutionTrigger{
		UserID: userID,
		Resign: true,
		Result: models.SubmissionResult{ClientElapsedSeconds: p.ClientElapsedSeconds},
	}
	return s.act(ctx, userID, p.MatchID, trigger, websocket.TypeResignMatch, p)
}

func (s *MatchService) act(ctx context.Context, userID, matchID string, trigger resolutionTrigger, msgType string, payload interface{}) error {
	if matchID == "" {
		return ErrInvalidInput
	}

	live := s.get(matchID)
	if live == nil {
		// 다른 인스턴스가 소유했거나 이미 끝난 매치
		return s.forward(ctx, userID, matchID, msgType, payload)
	}
	if !live.HasPlayer(userID) {
		return ErrUnauthorizedAction
	}
	return s.resolve(ctx, live, trigger)
}

func (s *MatchService) forward(ctx context.Context, userID, matchID, msgType string, payload interface{}) error {
	if s.forwarder != nil {
		active, ok, err := s.claims.ActiveMatch(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to look up active match: %w", err)
		}
		if ok && active == matchID {
			data, err := websocket.NewMessage(msgType, payload).Encode()
			if err != nil {
				return fmt.Errorf("failed to encode match action: %w", err)
			}
			if err := s.forwarder.ForwardMatchAction(ctx, matchID, userID, data); err != nil {
				return fmt.Errorf("failed to forward match action: %w", err)
			}
			return nil
		}
	}

	// 이미 끝난 매치에 늦게 도착한 동작
	record, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		return persistenceError("load match", err)
	}
	if record != nil && record.Status == models.MatchStatusCompleted {
		if record.WinnerID != userID && record.LoserID != userID {
			return ErrUnauthorizedAction
		}
		return ErrMatchFinished
	}
	return ErrMatchNotFound
}

// HandleMatchAction 다른 인스턴스에서 전달된 동작 처리
// 이 인스턴스가 소유하지 않은 매치면 무시
func (s *MatchService) HandleMatchAction(ctx context.Context, userID, matchID string, data []byte) {
	live := s.get(matchID)
	if live == nil || !live.HasPlayer(userID) {
		return
	}

	var msg websocket.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("Malformed forwarded match action", zap.String("matchId", matchID), zap.Error(err))
		return
	}

	var err error
	switch msg.Type {
	case matchActionResync:
		s.sendMatchState(ctx, live, userID)
	case websocket.TypeSubmitSolution:
		var p websocket.SubmitSolutionPayload
		if err = msg.Decode(&p); err == nil {
			err = s.SubmitSolution(ctx, userID, p)
		}
	case websocket.TypeResignMatch:
		var p websocket.ResignMatchPayload
		if err = msg.Decode(&p); err == nil {
			err = s.Resign(ctx, userID, p)
		}
	default:
		s.logger.Warn("Unknown forwarded match action", zap.String("type", msg.Type))
	}

	if err != nil && !errors.Is(err, ErrMatchFinished) {
		s.notifier.Send(ctx, userID, websocket.TypeError, websocket.TextPayload{Message: ClientMessage(err)})
	}
}

// resolve 결과 확정. active → resolving 전환에 성공한 동작 하나만 진행
func (s *MatchService) resolve(ctx context.Context, live *LiveMatch, t resolutionTrigger) error {
	winner, loser, err := live.beginResolution(t)
	if err != nil {
		return err
	}

	outcome, err := s.buildOutcome(ctx, live, t, winner, loser)
	if err == nil {
		var record *models.MatchHistory
		record, err = s.persist(ctx, outcome)
		if err == nil {
			s.complete(ctx, live, outcome, record)
			return nil
		}
		if errors.Is(err, repository.ErrStaleUpdate) {
			// 이미 확정된 매치
			s.discard(live)
			return ErrMatchFinished
		}
	}

	live.abortResolution()
	s.logger.Error("Failed to resolve match",
		zap.String("matchId", live.ID),
		zap.String("trigger", t.UserID),
		zap.Error(err))
	return persistenceError("resolve match", err)
}

func (s *MatchService) buildOutcome(ctx context.Context, live *LiveMatch, t resolutionTrigger, winner, loser string) (models.MatchOutcome, error) {
	users, err := s.users.FindByIDs(ctx, []string{winner, loser})
	if err != nil {
		return models.MatchOutcome{}, err
	}
	w, l := users[winner], users[loser]
	if w == nil || l == nil {
		return models.MatchOutcome{}, ErrUserNotFound
	}

	duration := 0
	if startedAt, ok := live.StartedAt(); ok {
		duration = int(s.now().Sub(startedAt).Seconds())
	}

	return models.MatchOutcome{
		MatchID:               live.ID,
		WinnerID:              winner,
		LoserID:               loser,
		WinnerEloBefore:       w.Elo,
		LoserEloBefore:        l.Elo,
		EloDelta:              s.rating.Delta(w.Elo, l.Elo),
		Winner:                live.result(winner),
		Loser:                 live.result(loser),
		ProblemSlug:           live.Problem.Slug,
		ProblemTitle:          live.Problem.Title,
		DurationSeconds:       duration,
		ClientDurationSeconds: t.Result.ClientElapsedSeconds,
		Resigned:              t.Resign,
	}, nil
}

// persist 재시도하며 저장. 이미 확정된 매치는 재시도하지 않음
func (s *MatchService) persist(ctx context.Context, outcome models.MatchOutcome) (*models.MatchHistory, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.ResolutionRetries; attempt++ {
		record, err := s.matches.Complete(ctx, outcome)
		if err == nil || errors.Is(err, repository.ErrStaleUpdate) {
			return record, err
		}
		lastErr = err

		s.logger.Warn("Match persistence failed",
			zap.String("matchId", outcome.MatchID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < s.cfg.ResolutionRetries {
			select {
			case <-time.After(s.cfg.ResolutionBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// complete 저장 후 결과 전송, 진행 상태와 점유 해제
func (s *MatchService) complete(ctx context.Context, live *LiveMatch, o models.MatchOutcome, record *models.MatchHistory) {
	s.discard(live)

	winnerElo, loserElo := o.WinnerEloBefore+o.EloDelta, o.LoserEloBefore-o.EloDelta
	if record != nil {
		winnerElo, loserElo = record.WinnerEloAfter, record.LoserEloAfter
	}

	base := websocket.MatchResultPayload{
		MatchID:         o.MatchID,
		WinnerID:        o.WinnerID,
		LoserID:         o.LoserID,
		Resigned:        o.Resigned,
		DurationSeconds: o.DurationSeconds,
		ProblemSlug:     o.ProblemSlug,
	}

	toWinner := base
	toWinner.Won = true
	toWinner.EloChange = o.EloDelta
	toWinner.NewElo = winnerElo
	toWinner.Runtime = o.Winner.Runtime
	toWinner.Memory = o.Winner.Memory
	s.notifier.Send(ctx, o.WinnerID, websocket.TypeMatchResult, toWinner)

	toLoser := base
	toLoser.EloChange = -o.EloDelta
	toLoser.NewElo = loserElo
	toLoser.Runtime = o.Loser.Runtime
	toLoser.Memory = o.Loser.Memory
	s.notifier.Send(ctx, o.LoserID, websocket.TypeMatchResult, toLoser)

	s.logger.Info("Match completed",
		zap.String("matchId", o.MatchID),
		zap.String("winner", o.WinnerID),
		zap.String("loser", o.LoserID),
		zap.Int("eloChange", o.EloDelta),
		zap.Bool("resigned", o.Resigned),
		zap.Int("duration", o.DurationSeconds))
}

// discard 진행 상태 제거와 점유 해제
func (s *MatchService) discard(live *LiveMatch) {
	live.finish()

	s.mu.Lock()
	delete(s.live, live.ID)
	for _, p := range live.Players {
		if s.byUser[p] == live.ID {
			delete(s.byUser, p)
		}
	}
	s.mu.Unlock()

	s.releaseClaims(live.ID, live.Players[0], live.Players[1])
}

// dropPlaceholder 결과 없이 끝난 매치의 pending 레코드 삭제
func (s *MatchService) dropPlaceholder(matchID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.matches.DeletePending(ctx, matchID); err != nil {
		s.logger.Warn("Failed to delete pending match",
			zap.String("matchId", matchID),
			zap.Error(err))
	}
}

func (s *MatchService) releaseClaims(matchID string, userIDs ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.claims.ReleasePlayers(ctx, matchID, userIDs...); err != nil {
		s.logger.Error("Failed to release match claims",
			zap.String("matchId", matchID),
			zap.Error(err))
	}
}

// Resync 재연결한 사용자에게 진행 중 매치 상태 재전송
// 다른 인스턴스가 소유한 매치면 그쪽으로 요청을 넘김
func (s *MatchService) Resync(ctx context.Context, userID string) (bool, error) {
	if live := s.forUser(userID); live != nil {
		s.sendMatchState(ctx, live, userID)
		return true, nil
	}

	if s.forwarder == nil {
		return false, nil
	}
	matchID, ok, err := s.claims.ActiveMatch(ctx, userID)
	if err != nil || !ok {
		return false, err
	}

	data, err := websocket.NewMessage(matchActionResync, nil).Encode()
	if err != nil {
		return false, err
	}
	if err := s.forwarder.ForwardMatchAction(ctx, matchID, userID, data); err != nil {
		return false, fmt.Errorf("failed to forward resync: %w", err)
	}
	return true, nil
}

// sendMatchState countdown 중이면 match_found 만, 이후엔 시작 시각도 전송
func (s *MatchService) sendMatchState(ctx context.Context, live *LiveMatch, userID string) {
	s.notifier.Send(ctx, userID, websocket.TypeMatchFound, s.matchFoundPayload(live, userID))

	if startedAt, ok := live.StartedAt(); ok {
		s.notifier.Send(ctx, userID, websocket.TypeTimerUpdate, startPayload(live.ID, startedAt))
	}
}

func (s *MatchService) matchFoundPayload(live *LiveMatch, userID string) websocket.MatchFoundPayload {
	return websocket.MatchFoundPayload{
		MatchID:  live.ID,
		Problem:  live.Problem,
		Opponent: live.OpponentInfo(userID),
	}
}

// ActiveMatch 사용자의 진행 중 매치 ID (다른 인스턴스 소유 포함)
func (s *MatchService) ActiveMatch(ctx context.Context, userID string) (string, bool, error) {
	if live := s.forUser(userID); live != nil {
		return live.ID, true, nil
	}
	return s.claims.ActiveMatch(ctx, userID)
}

// Get 이 인스턴스의 진행 중 매치
func (s *MatchService) Get(matchID string) *LiveMatch {
	return s.get(matchID)
}

func (s *MatchService) get(matchID string) *LiveMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live[matchID]
}

func (s *MatchService) forUser(userID string) *LiveMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byUser[userID]; ok {
		return s.live[id]
	}
	return nil
}

// LiveCount 이 인스턴스의 진행 중 매치 수
func (s *MatchService) LiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// Stop 타이머 중지. 진행 중 매치의 pending 레코드와 점유 해제
func (s *MatchService) Stop() {
	s.cancel()
	s.wg.Wait()

	s.mu.RLock()
	remaining := make([]*LiveMatch, 0, len(s.live))
	for _, live := range s.live {
		remaining = append(remaining, live)
	}
	s.mu.RUnlock()

	for _, live := range remaining {
		s.dropPlaceholder(live.ID)
		s.discard(live)
	}
	s.logger.Info("MatchService stopped", zap.Int("abandoned", len(remaining)))
}
