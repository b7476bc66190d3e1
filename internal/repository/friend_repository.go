package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codeduel/duel-backend/pkg/database"
)

type FriendRepository struct {
	db *database.DB
}

func NewFriendRepository(db *database.DB) *FriendRepository {
	return &FriendRepository{db: db}
}

// AreFriends friendID 가 userID 의 친구 목록에 있는지
func (r *FriendRepository) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	query := `SELECT $2::uuid = ANY(current_friends) FROM friends WHERE user_id = $1`

	var ok bool
	err := r.db.QueryRowContext(ctx, query, userID, friendID).Scan(&ok)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return ok, nil
}
