package models

// Difficulty 문제 난이도
const (
	DifficultyEasy   = "EASY"
	DifficultyMedium = "MEDIUM"
	DifficultyHard   = "HARD"
)

// AllDifficulties 제공자가 지원하는 모든 난이도
var AllDifficulties = []string{DifficultyEasy, DifficultyMedium, DifficultyHard}

type Problem struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Slug           string   `json:"slug"`
	Difficulty     string   `json:"difficulty"`
	Tags           []string `json:"tags"`
	AcceptanceRate float64  `json:"acceptanceRate"`
}

// URL 문제 페이지 주소
func (p *Problem) URL() string {
	return "https://leetcode.com/problems/" + p.Slug + "/"
}
