package service

import (
	"time"

	"github.com/codeduel/duel-backend/internal/websocket"
	"go.uber.org/zap"
)

func (s *MatchService) startTimer(live *LiveMatch) {
	s.wg.Add(1)
	go s.runTimer(live)
}

// runTimer countdown 을 틱마다 전송하고 0 이 되면 시작 시각 전송 후 종료
func (s *MatchService) runTimer(live *LiveMatch) {
	defer s.wg.Done()

	if _, counting := live.Countdown(); !counting {
		if startedAt, ok := live.StartedAt(); ok {
			s.broadcast(live, websocket.TypeTimerUpdate, startPayload(live.ID, startedAt))
		}
		return
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		remaining, counting := live.Countdown()
		if !counting {
			return
		}
		s.broadcast(live, websocket.TypeTimerUpdate, websocket.TimerUpdatePayload{
			MatchID:   live.ID,
			Phase:     websocket.PhaseCountdown,
			Countdown: remaining,
		})

		select {
		case <-ticker.C:
		case <-live.Done():
			return
		case <-s.ctx.Done():
			return
		}

		if live.tick(s.now()) {
			startedAt, _ := live.StartedAt()
			s.broadcast(live, websocket.TypeTimerUpdate, startPayload(live.ID, startedAt))
			s.logger.Debug("Match started", zap.String("matchId", live.ID))
			return
		}
	}
}

func (s *MatchService) broadcast(live *LiveMatch, msgType string, payload interface{}) {
	for _, player := range live.Players {
		s.notifier.Send(s.ctx, player, msgType, payload)
	}
}

func startPayload(matchID string, startedAt time.Time) websocket.TimerUpdatePayload {
	return websocket.TimerUpdatePayload{
		MatchID:        matchID,
		Phase:          websocket.PhaseActive,
		StartTimestamp: float64(startedAt.UnixNano()) / float64(time.Second),
	}
}
