package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/codeduel/duel-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var matchRowColumns = []string{
	"id", "status", "winner_id", "loser_id",
	"winner_elo_before", "winner_elo", "loser_elo_before", "loser_elo", "elo_change",
	"winner_runtime", "loser_runtime", "winner_memory", "loser_memory",
	"winner_code", "loser_code", "problem_slug", "problem_title",
	"match_seconds", "client_match_seconds", "created_at", "completed_at",
}

func testOutcome() models.MatchOutcome {
	code := "print(1)"
	return models.MatchOutcome{
		MatchID:         "m1",
		WinnerID:        "u1",
		LoserID:         "u2",
		WinnerEloBefore: 1200,
		LoserEloBefore:  1205,
		EloDelta:        16,
		Winner:          models.SubmissionResult{Runtime: 40, Memory: 17.5, Code: &code},
		ProblemSlug:     "two-sum",
		ProblemTitle:    "Two Sum",
		DurationSeconds: 300,
	}
}

func TestMatchRepository_CreatePlaceholder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)

	created := time.Now()
	mock.ExpectQuery(`INSERT INTO match_history`).
		WithArgs("m1", "u1", "u2", 1200, 1205, "two-sum", "Two Sum").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	m := &models.MatchHistory{
		ID:              "m1",
		WinnerID:        "u1",
		LoserID:         "u2",
		WinnerEloBefore: 1200,
		LoserEloBefore:  1205,
		ProblemSlug:     "two-sum",
		ProblemTitle:    "Two Sum",
	}
	require.NoError(t, repo.CreatePlaceholder(context.Background(), m))
	assert.Equal(t, models.MatchStatusPending, m.Status)
	assert.Equal(t, 1205, m.LoserEloAfter)
}

func TestMatchRepository_Complete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)
	o := testOutcome()
	completed := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE users SET user_elo = user_elo \+ \$1`).
		WithArgs(16, "u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_elo"}).AddRow(1216))
	mock.ExpectQuery(`UPDATE users SET user_elo = user_elo - \$1`).
		WithArgs(16, "u2").
		WillReturnRows(sqlmock.NewRows([]string{"user_elo"}).AddRow(1189))
	mock.ExpectQuery(`UPDATE match_history`).
		WillReturnRows(sqlmock.NewRows(matchRowColumns).AddRow(
			"m1", "completed", "u1", "u2",
			1200, 1216, 1205, 1189, 16,
			40, 0, 17.5, 0.0,
			"print(1)", nil, "two-sum", "Two Sum",
			300, 0, completed, completed,
		))
	mock.ExpectCommit()

	m, err := repo.Complete(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, m.Status)
	assert.Equal(t, 1216, m.WinnerEloAfter)
	assert.Equal(t, 1189, m.LoserEloAfter)
	// 합이 보존됨
	assert.Equal(t, m.WinnerEloBefore+m.LoserEloBefore, m.WinnerEloAfter+m.LoserEloAfter)
}

func TestMatchRepository_CompleteAlreadyCompletedRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE users SET user_elo = user_elo \+`).
		WillReturnRows(sqlmock.NewRows([]string{"user_elo"}).AddRow(1216))
	mock.ExpectQuery(`UPDATE users SET user_elo = user_elo -`).
		WillReturnRows(sqlmock.NewRows([]string{"user_elo"}).AddRow(1189))
	mock.ExpectQuery(`UPDATE match_history`).
		WillReturnRows(sqlmock.NewRows(matchRowColumns))
	mock.ExpectRollback()

	_, err := repo.Complete(context.Background(), testOutcome())
	assert.ErrorIs(t, err, ErrStaleUpdate)
}

func TestMatchRepository_CompleteFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE users SET user_elo = user_elo \+`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.Complete(context.Background(), testOutcome())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStaleUpdate)
}

func TestMatchRepository_DeletePendingForUsers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)

	mock.ExpectExec(`DELETE FROM match_history`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeletePendingForUsers(context.Background(), "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMatchRepository_CompletedProblemSlugs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMatchRepository(db)

	mock.ExpectQuery(`SELECT DISTINCT problem_slug`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"problem_slug"}).AddRow("two-sum").AddRow("3sum"))

	slugs, err := repo.CompletedProblemSlugs(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"two-sum", "3sum"}, slugs)
}
