package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userRowColumns = []string{
	"id", "username", "email", "leetcode_username", "user_elo",
	"topics", "difficulty", "repeating_questions", "profile_picture_url", "created_at",
}

func TestUserRepository_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u1", "alice", "a@x.io", "alice_lc", 1200, "{array,string}", "{MEDIUM}", false, nil, created))

	user, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, 1200, user.Elo)
	assert.Equal(t, []string{"array", "string"}, user.Topics)
	assert.Equal(t, []string{"MEDIUM"}, user.Difficulties)
	assert.False(t, user.AllowRepeats)
	assert.Equal(t, "alice_lc", user.DisplayName())
}

func TestUserRepository_FindByIDMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	user, err := repo.FindByID(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserRepository_Leaderboard(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`ORDER BY user_elo DESC`).
		WithArgs(2, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "user_elo"}).
			AddRow("u1", "alice", 1500).
			AddRow("u2", "bob", 1400))

	entries, err := repo.Leaderboard(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 11, entries[0].Rank)
	assert.Equal(t, 12, entries[1].Rank)
	assert.Equal(t, 1400, entries[1].Elo)
}

func TestFriendRepository_AreFriends(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFriendRepository(db)

	mock.ExpectQuery(`ANY\(current_friends\)`).
		WithArgs("u1", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))
	mock.ExpectQuery(`ANY\(current_friends\)`).
		WithArgs("u1", "u3").
		WillReturnRows(sqlmock.NewRows([]string{"ok"}))

	ok, err := repo.AreFriends(context.Background(), "u1", "u2")
	require.NoError(t, err)
	assert.True(t, ok)

	// 친구 목록 자체가 없는 사용자
	ok, err = repo.AreFriends(context.Background(), "u1", "u3")
	require.NoError(t, err)
	assert.False(t, ok)
}
