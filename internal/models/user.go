package models

import "time"

type User struct {
	ID                string    `json:"id" db:"id"`
	Username          string    `json:"username" db:"username"`
	LeetcodeUsername  string    `json:"leetcodeUsername" db:"leetcode_username"`
	Email             string    `json:"-" db:"email"`
	Elo               int       `json:"elo" db:"user_elo"`
	Topics            []string  `json:"topics" db:"topics"`
	Difficulties      []string  `json:"difficulties" db:"difficulty"`
	AllowRepeats      bool      `json:"allowRepeats" db:"repeating_questions"`
	ProfilePictureURL *string   `json:"profilePictureUrl,omitempty" db:"profile_picture_url"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
}

// DisplayName 상대방에게 보여줄 이름 (LeetCode 이름 우선)
func (u *User) DisplayName() string {
	if u.LeetcodeUsername != "" {
		return u.LeetcodeUsername
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// Opponent match_found 메시지에 포함되는 상대 정보
type Opponent struct {
	ID                string  `json:"id"`
	Username          string  `json:"username"`
	Elo               int     `json:"elo"`
	ProfilePictureURL *string `json:"profilePictureUrl,omitempty"`
}

func (u *User) AsOpponent() Opponent {
	return Opponent{
		ID:                u.ID,
		Username:          u.DisplayName(),
		Elo:               u.Elo,
		ProfilePictureURL: u.ProfilePictureURL,
	}
}

// LeaderboardEntry Elo 순위 항목
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Elo      int    `json:"elo"`
}
