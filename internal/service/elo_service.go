package service

import "math"

const defaultKFactor = 32.0

// RatingPolicy 매치 결과에 따른 Elo 변동 계산
// 반환값은 승자가 얻고 패자가 잃는 점수 (합은 항상 0)
type RatingPolicy interface {
	Delta(winnerElo, loserElo int) int
}

// ELOService ELO 레이팅 계산 서비스
type ELOService struct {
	kFactor float64 // K-factor: 레이팅 변동 폭
}

// NewELOService ELO 서비스 생성 (kFactor <= 0 이면 32)
func NewELOService(kFactor float64) *ELOService {
	if kFactor <= 0 {
		kFactor = defaultKFactor
	}
	return &ELOService{kFactor: kFactor}
}

// KFactor 현재 K-factor
func (s *ELOService) KFactor() float64 {
	return s.kFactor
}

// Delta 승자 기준 Elo 변동량
func (s *ELOService) Delta(winnerElo, loserElo int) int {
	expected := s.expectedScore(float64(winnerElo), float64(loserElo))
	return int(math.Round(s.kFactor * (1.0 - expected)))
}

// CalculateNewRatings 승패 결과에 따른 새로운 ELO 레이팅 계산
func (s *ELOService) CalculateNewRatings(winnerElo, loserElo int) (newWinnerElo, newLoserElo, delta int) {
	delta = s.Delta(winnerElo, loserElo)
	return winnerElo + delta, loserElo - delta, delta
}

// ExpectedScore ratingA 가 ratingB 를 이길 기대 승률
func (s *ELOService) ExpectedScore(ratingA, ratingB int) float64 {
	return s.expectedScore(float64(ratingA), float64(ratingB))
}

// expectedScore ELO에 기반한 기대 승률 계산
func (s *ELOService) expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}
