package service

import (
	"context"
	"strings"

	"github.com/codeduel/duel-backend/internal/models"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// GetMatchResult 완료된 매치 결과 조회
func (s *MatchService) GetMatchResult(ctx context.Context, matchID string) (*models.MatchResultView, error) {
	m, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		return nil, persistenceError("load match", err)
	}
	// 진행 중인 매치는 결과가 없음
	if m == nil || m.Status != models.MatchStatusCompleted {
		return nil, ErrMatchNotFound
	}

	users, err := s.users.FindByIDs(ctx, []string{m.WinnerID, m.LoserID})
	if err != nil {
		return nil, persistenceError("load players", err)
	}

	problem := models.Problem{Slug: m.ProblemSlug, Title: m.ProblemTitle}
	if problem.Title == "" {
		problem.Title = titleFromSlug(m.ProblemSlug)
	}

	return &models.MatchResultView{
		MatchID: m.ID,
		Winner: playerResult(users[m.WinnerID], m.WinnerID,
			m.WinnerEloBefore, m.WinnerEloAfter, m.WinnerRuntime, m.WinnerMemory, m.WinnerCode),
		Loser: playerResult(users[m.LoserID], m.LoserID,
			m.LoserEloBefore, m.LoserEloAfter, m.LoserRuntime, m.LoserMemory, m.LoserCode),
		Problem: models.ProblemReference{
			Slug:  problem.Slug,
			Title: problem.Title,
			URL:   problem.URL(),
		},
		EloChange:       m.EloChange,
		DurationSeconds: m.DurationSeconds,
		CompletedAt:     m.CompletedAt,
	}, nil
}

func playerResult(u *models.User, id string, before, after, runtime int, memory float64, code *string) models.PlayerResultView {
	view := models.PlayerResultView{
		ID:        id,
		Username:  "Player " + id,
		EloBefore: before,
		EloAfter:  after,
		EloChange: after - before,
		Runtime:   runtime,
		Memory:    memory,
		Code:      code,
	}
	if u != nil {
		view.Username = u.DisplayName()
		view.ProfilePictureURL = u.ProfilePictureURL
	}
	return view
}

// GetUserHistory 사용자의 완료된 매치 목록 (최신순)
func (s *MatchService) GetUserHistory(ctx context.Context, userID string, limit, offset int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	matches, err := s.matches.FindCompletedByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, persistenceError("load match history", err)
	}

	opponentIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.WinnerID == userID {
			opponentIDs = append(opponentIDs, m.LoserID)
		} else {
			opponentIDs = append(opponentIDs, m.WinnerID)
		}
	}
	opponents, err := s.users.FindByIDs(ctx, opponentIDs)
	if err != nil {
		return nil, persistenceError("load opponents", err)
	}

	history := make([]models.HistoryEntry, 0, len(matches))
	for i, m := range matches {
		won := m.WinnerID == userID
		entry := models.HistoryEntry{
			MatchID:         m.ID,
			Won:             won,
			OpponentID:      opponentIDs[i],
			ProblemSlug:     m.ProblemSlug,
			DurationSeconds: m.DurationSeconds,
		}
		if m.CompletedAt != nil {
			entry.CompletedAt = *m.CompletedAt
		}
		if won {
			entry.EloChange = m.EloChange
			entry.FinalElo = m.WinnerEloAfter
			entry.UserRuntime, entry.OpponentRuntime = m.WinnerRuntime, m.LoserRuntime
			entry.UserMemory, entry.OpponentMemory = m.WinnerMemory, m.LoserMemory
		} else {
			entry.EloChange = -m.EloChange
			entry.FinalElo = m.LoserEloAfter
			entry.UserRuntime, entry.OpponentRuntime = m.LoserRuntime, m.WinnerRuntime
			entry.UserMemory, entry.OpponentMemory = m.LoserMemory, m.WinnerMemory
		}
		if o := opponents[entry.OpponentID]; o != nil {
			entry.OpponentUsername = o.DisplayName()
		}
		history = append(history, entry)
	}
	return history, nil
}

// titleFromSlug "two-sum" → "Two Sum"
func titleFromSlug(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
