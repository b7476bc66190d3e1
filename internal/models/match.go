package models

import "time"

type MatchStatus string

const (
	// MatchStatusPending 진행 중인 매치의 자리표시 레코드
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusCompleted MatchStatus = "completed"
)

// MatchHistory 매치 기록. completed 이후에는 변경되지 않음
type MatchHistory struct {
	ID                    string      `json:"id" db:"id"`
	Status                MatchStatus `json:"status" db:"status"`
	WinnerID              string      `json:"winnerId" db:"winner_id"`
	LoserID               string      `json:"loserId" db:"loser_id"`
	WinnerEloBefore       int         `json:"winnerEloBefore" db:"winner_elo_before"`
	WinnerEloAfter        int         `json:"winnerEloAfter" db:"winner_elo"`
	LoserEloBefore        int         `json:"loserEloBefore" db:"loser_elo_before"`
	LoserEloAfter         int         `json:"loserEloAfter" db:"loser_elo"`
	EloChange             int         `json:"eloChange" db:"elo_change"`
	WinnerRuntime         int         `json:"winnerRuntime" db:"winner_runtime"`
	LoserRuntime          int         `json:"loserRuntime" db:"loser_runtime"`
	WinnerMemory          float64     `json:"winnerMemory" db:"winner_memory"`
	LoserMemory           float64     `json:"loserMemory" db:"loser_memory"`
	WinnerCode            *string     `json:"winnerCode,omitempty" db:"winner_code"`
	LoserCode             *string     `json:"loserCode,omitempty" db:"loser_code"`
	ProblemSlug           string      `json:"problemSlug" db:"problem_slug"`
	ProblemTitle          string      `json:"problemTitle" db:"problem_title"`
	DurationSeconds       int         `json:"durationSeconds" db:"match_seconds"`
	ClientDurationSeconds int         `json:"clientDurationSeconds" db:"client_match_seconds"`
	CreatedAt             time.Time   `json:"createdAt" db:"created_at"`
	CompletedAt           *time.Time  `json:"completedAt,omitempty" db:"completed_at"`
}

// Participants 두 참가자 ID
func (m *MatchHistory) Participants() (string, string) {
	return m.WinnerID, m.LoserID
}

// SubmissionResult 참가자의 제출 결과
type SubmissionResult struct {
	Runtime              int       `json:"runtime"`
	Memory               float64   `json:"memory"`
	Code                 *string   `json:"code,omitempty"`
	CompletedAt          time.Time `json:"completedAt"`
	ClientElapsedSeconds int       `json:"clientElapsedSeconds"`
}

// MatchOutcome 매치 종료 시 저장할 결과
type MatchOutcome struct {
	MatchID               string
	WinnerID              string
	LoserID               string
	WinnerEloBefore       int
	LoserEloBefore        int
	EloDelta              int
	Winner                SubmissionResult
	Loser                 SubmissionResult
	ProblemSlug           string
	ProblemTitle          string
	DurationSeconds       int
	ClientDurationSeconds int
	Resigned              bool
}

// MatchResultView 매치 결과 조회 응답
type MatchResultView struct {
	MatchID         string           `json:"matchId"`
	Winner          PlayerResultView `json:"winner"`
	Loser           PlayerResultView `json:"loser"`
	Problem         ProblemReference `json:"problem"`
	EloChange       int              `json:"eloChange"`
	DurationSeconds int              `json:"matchDuration"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
}

type PlayerResultView struct {
	ID                string  `json:"id"`
	Username          string  `json:"username"`
	ProfilePictureURL *string `json:"profilePictureUrl,omitempty"`
	EloBefore         int     `json:"eloBefore"`
	EloAfter          int     `json:"eloAfter"`
	EloChange         int     `json:"eloChange"`
	Runtime           int     `json:"runtime"`
	Memory            float64 `json:"memory"`
	Code              *string `json:"code,omitempty"`
}

type ProblemReference struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// HistoryEntry 사용자 관점의 매치 기록
type HistoryEntry struct {
	MatchID          string    `json:"matchId"`
	Won              bool      `json:"won"`
	OpponentID       string    `json:"opponentId"`
	OpponentUsername string    `json:"opponentUsername"`
	EloChange        int       `json:"eloChange"`
	FinalElo         int       `json:"finalElo"`
	ProblemSlug      string    `json:"problem"`
	DurationSeconds  int       `json:"matchDuration"`
	UserRuntime      int       `json:"userRuntime"`
	OpponentRuntime  int       `json:"opponentRuntime"`
	UserMemory       float64   `json:"userMemory"`
	OpponentMemory   float64   `json:"opponentMemory"`
	CompletedAt      time.Time `json:"completedAt"`
}
