package service

import (
	"sync"
	"time"

	"github.com/codeduel/duel-backend/internal/models"
)

// MatchPhase 진행 중인 매치 단계
type MatchPhase string

const (
	PhaseCountdown MatchPhase = "countdown"
	PhaseActive    MatchPhase = "active"
	PhaseResolving MatchPhase = "resolving" // 결과 저장 중
	PhaseFinished  MatchPhase = "finished"
)

// resolutionTrigger 매치를 끝내는 동작 (제출 또는 기권)
type resolutionTrigger struct {
	UserID string
	Resign bool
	Result models.SubmissionResult
}

// LiveMatch 인스턴스 메모리에 있는 진행 중 매치 상태
type LiveMatch struct {
	ID        string
	Players   [2]string
	Problem   *models.Problem
	CreatedAt time.Time

	// 참가자별 상대 정보 (재연결 시 match_found 재전송용)
	opponents map[string]models.Opponent

	mu        sync.Mutex
	phase     MatchPhase
	countdown int
	startedAt time.Time
	results   map[string]models.SubmissionResult
	resigned  bool
	done      chan struct{}
}

func newLiveMatch(id string, a, b *models.User, problem *models.Problem, countdown int, now time.Time) *LiveMatch {
	m := &LiveMatch{
		ID:        id,
		Players:   [2]string{a.ID, b.ID},
		Problem:   problem,
		CreatedAt: now,
		opponents: map[string]models.Opponent{
			a.ID: b.AsOpponent(),
			b.ID: a.AsOpponent(),
		},
		phase:     PhaseCountdown,
		countdown: countdown,
		results:   make(map[string]models.SubmissionResult, 2),
		done:      make(chan struct{}),
	}
	if countdown <= 0 {
		m.activate(now)
	}
	return m
}

// HasPlayer 참가자 여부
func (m *LiveMatch) HasPlayer(userID string) bool {
	return m.Players[0] == userID || m.Players[1] == userID
}

// OpponentOf 상대 참가자 ID
func (m *LiveMatch) OpponentOf(userID string) string {
	if m.Players[0] == userID {
		return m.Players[1]
	}
	return m.Players[0]
}

// OpponentInfo 상대 정보
func (m *LiveMatch) OpponentInfo(userID string) models.Opponent {
	return m.opponents[userID]
}

// Phase 현재 단계
func (m *LiveMatch) Phase() MatchPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Countdown 남은 카운트다운 (countdown 단계가 아니면 false)
func (m *LiveMatch) Countdown() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countdown, m.phase == PhaseCountdown
}

// StartedAt 시작 시각 (active 진입 전이면 false)
func (m *LiveMatch) StartedAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt, !m.startedAt.IsZero()
}

// Done 매치 종료 시 닫힘
func (m *LiveMatch) Done() <-chan struct{} {
	return m.done
}

// tick 카운트다운 1 감소. 0 이 되면 active 로 전환하고 true
func (m *LiveMatch) tick(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseCountdown {
		return false
	}
	m.countdown--
	if m.countdown > 0 {
		return false
	}
	m.activate(now)
	return true
}

// activate 시작 시각은 한 번만 기록 (mu 보유 상태에서 호출)
func (m *LiveMatch) activate(now time.Time) {
	m.countdown = 0
	m.phase = PhaseActive
	if m.startedAt.IsZero() {
		m.startedAt = now
	}
}

// beginResolution active → resolving 전환 (compare-and-set)
// 먼저 도착한 동작 하나만 성공. 승자/패자 반환
func (m *LiveMatch) beginResolution(t resolutionTrigger) (winner, loser string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case PhaseCountdown:
		return "", "", ErrMatchNotStarted
	case PhaseResolving, PhaseFinished:
		return "", "", ErrMatchFinished
	}

	m.phase = PhaseResolving
	m.resigned = t.Resign

	if t.Resign {
		// 기권한 쪽이 패자
		return m.OpponentOf(t.UserID), t.UserID, nil
	}
	m.results[t.UserID] = t.Result
	return t.UserID, m.OpponentOf(t.UserID), nil
}

// result 참가자의 제출 결과 (제출하지 않았으면 0 값)
func (m *LiveMatch) result(userID string) models.SubmissionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[userID]
}

// abortResolution 저장 실패 시 active 로 되돌림
func (m *LiveMatch) abortResolution() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseResolving {
		m.phase = PhaseActive
		m.resigned = false
	}
}

// finish 종료 처리. 여러 번 호출해도 안전
func (m *LiveMatch) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseFinished {
		return
	}
	m.phase = PhaseFinished
	close(m.done)
}
