package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codeduel/duel-backend/internal/models"
	"github.com/codeduel/duel-backend/pkg/database"
	"github.com/lib/pq"
)

type MatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

const matchColumns = `
	id, status, winner_id, loser_id,
	winner_elo_before, winner_elo, loser_elo_before, loser_elo, elo_change,
	winner_runtime, loser_runtime, winner_memory, loser_memory,
	winner_code, loser_code, problem_slug, problem_title,
	match_seconds, client_match_seconds, created_at, completed_at`

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.MatchHistory, error) {
	m := &models.MatchHistory{}
	err := row.Scan(
		&m.ID,
		&m.Status,
		&m.WinnerID,
		&m.LoserID,
		&m.WinnerEloBefore,
		&m.WinnerEloAfter,
		&m.LoserEloBefore,
		&m.LoserEloAfter,
		&m.EloChange,
		&m.WinnerRuntime,
		&m.LoserRuntime,
		&m.WinnerMemory,
		&m.LoserMemory,
		&m.WinnerCode,
		&m.LoserCode,
		&m.ProblemSlug,
		&m.ProblemTitle,
		&m.DurationSeconds,
		&m.ClientDurationSeconds,
		&m.CreatedAt,
		&m.CompletedAt,
	)
	return m, err
}

// CreatePlaceholder 진행 중인 매치의 자리표시 레코드 생성
// 승패는 아직 정해지지 않았으므로 winner/loser 에 두 참가자를 임시로 기록
func (r *MatchRepository) CreatePlaceholder(ctx context.Context, m *models.MatchHistory) error {
	query := `
		INSERT INTO match_history (
			id, status, winner_id, loser_id, winner_elo_before, loser_elo_before,
			winner_elo, loser_elo, problem_slug, problem_title
		)
		VALUES ($1, 'pending', $2, $3, $4, $5, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		m.ID,
		m.WinnerID,
		m.LoserID,
		m.WinnerEloBefore,
		m.LoserEloBefore,
		m.ProblemSlug,
		m.ProblemTitle,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match placeholder: %w", err)
	}

	m.Status = models.MatchStatusPending
	m.WinnerEloAfter = m.WinnerEloBefore
	m.LoserEloAfter = m.LoserEloBefore
	return nil
}

// DeletePendingForUsers 사용자들이 참가한 pending 레코드 삭제
func (r *MatchRepository) DeletePendingForUsers(ctx context.Context, userIDs ...string) (int64, error) {
	query := `
		DELETE FROM match_history
		WHERE status = 'pending'
		  AND (winner_id = ANY($1) OR loser_id = ANY($1))
	`

	result, err := r.db.ExecContext(ctx, query, pq.Array(userIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending matches: %w", err)
	}
	return result.RowsAffected()
}

// DeletePending 결과 없이 끝난 매치의 pending 레코드 삭제
func (r *MatchRepository) DeletePending(ctx context.Context, matchID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM match_history WHERE id = $1 AND status = 'pending'`, matchID)
	if err != nil {
		return fmt.Errorf("failed to delete pending match: %w", err)
	}
	return nil
}

// Complete 매치 결과를 하나의 트랜잭션으로 저장
// 1. 승자/패자 Elo 갱신  2. 매치 레코드를 completed 로 변경 (pending 일 때만)
// 이미 completed 면 ErrStaleUpdate 를 반환하고 아무것도 바꾸지 않음
func (r *MatchRepository) Complete(ctx context.Context, o models.MatchOutcome) (*models.MatchHistory, error) {
	var result *models.MatchHistory

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var winnerElo, loserElo int

		// 1. Elo 갱신
		if err := tx.QueryRowContext(ctx,
			`UPDATE users SET user_elo = user_elo + $1 WHERE id = $2 RETURNING user_elo`,
			o.EloDelta, o.WinnerID,
		).Scan(&winnerElo); err != nil {
			return fmt.Errorf("failed to update winner elo: %w", err)
		}

		if err := tx.QueryRowContext(ctx,
			`UPDATE users SET user_elo = user_elo - $1 WHERE id = $2 RETURNING user_elo`,
			o.EloDelta, o.LoserID,
		).Scan(&loserElo); err != nil {
			return fmt.Errorf("failed to update loser elo: %w", err)
		}

		// 2. 매치 레코드 확정
		query := `
			UPDATE match_history
			SET status = 'completed',
			    winner_id = $1,
			    loser_id = $2,
			    winner_elo_before = $3,
			    winner_elo = $4,
			    loser_elo_before = $5,
			    loser_elo = $6,
			    elo_change = $7,
			    winner_runtime = $8,
			    loser_runtime = $9,
			    winner_memory = $10,
			    loser_memory = $11,
			    winner_code = $12,
			    loser_code = $13,
			    problem_slug = $14,
			    problem_title = $15,
			    match_seconds = $16,
			    client_match_seconds = $17,
			    completed_at = NOW()
			WHERE id = $18 AND status = 'pending'
			RETURNING ` + matchColumns

		m, err := scanMatch(tx.QueryRowContext(ctx, query,
			o.WinnerID,
			o.LoserID,
			o.WinnerEloBefore,
			winnerElo,
			o.LoserEloBefore,
			loserElo,
			o.EloDelta,
			o.Winner.Runtime,
			o.Loser.Runtime,
			o.Winner.Memory,
			o.Loser.Memory,
			o.Winner.Code,
			o.Loser.Code,
			o.ProblemSlug,
			o.ProblemTitle,
			o.DurationSeconds,
			o.ClientDurationSeconds,
			o.MatchID,
		))
		if err == sql.ErrNoRows {
			return ErrStaleUpdate
		}
		if err != nil {
			return fmt.Errorf("failed to complete match: %w", err)
		}

		result = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// FindByID ID로 매치 찾기 (없으면 nil)
func (r *MatchRepository) FindByID(ctx context.Context, id string) (*models.MatchHistory, error) {
	query := `SELECT ` + matchColumns + ` FROM match_history WHERE id = $1`

	m, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}

	return m, nil
}

// FindCompletedByUser 사용자의 완료된 매치 (최신순)
func (r *MatchRepository) FindCompletedByUser(ctx context.Context, userID string, limit, offset int) ([]*models.MatchHistory, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM match_history
		WHERE status = 'completed' AND (winner_id = $1 OR loser_id = $1)
		ORDER BY completed_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.MatchHistory
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// CompletedProblemSlugs 사용자가 완료한 매치의 문제 slug
func (r *MatchRepository) CompletedProblemSlugs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT DISTINCT problem_slug
		FROM match_history
		WHERE status = 'completed'
		  AND (winner_id = $1 OR loser_id = $1)
		  AND problem_slug <> ''
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed problems: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("failed to scan slug: %w", err)
		}
		slugs = append(slugs, slug)
	}

	return slugs, rows.Err()
}
