package db

import (
	"context"
	"fmt"
	"time"

	"blogshop/internal/models"
)

// relation names a (user, target) pair table. Only the values below are
// ever interpolated into SQL.
type relation struct {
	table  string
	target string
}

var (
	relLike        = relation{table: "likes", target: "post_id"}
	relFavorite    = relation{table: "favorites", target: "post_id"}
	relCommentLike = relation{table: "comment_likes", target: "comment_id"}
)

// toggle removes the pair if present, otherwise inserts it. The primary key
// on (user_id, target) decides races: an insert that collides with a
// concurrent insert fails with ErrConflict.
func (s *Store) toggle(ctx context.Context, rel relation, userID, targetID int64) (models.ToggleOutcome, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND %s = ?`, rel.table, rel.target), userID, targetID)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return models.ToggleRemoved, nil
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(user_id,%s,created_at) VALUES(?,?,?)`, rel.table, rel.target),
		userID, targetID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("toggle %s: %w", rel.table, translate(err))
	}
	return models.ToggleCreated, nil
}

func (s *Store) exists(ctx context.Context, rel relation, userID, targetID int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE user_id = ? AND %s = ?`, rel.table, rel.target), userID, targetID)
	return n > 0, err
}

func (s *Store) count(ctx context.Context, rel relation, targetID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, rel.table, rel.target), targetID)
	return n, err
}

func (s *Store) ToggleLike(ctx context.Context, userID, postID int64) (models.ToggleOutcome, error) {
	return s.toggle(ctx, relLike, userID, postID)
}

func (s *Store) ToggleFavorite(ctx context.Context, userID, postID int64) (models.ToggleOutcome, error) {
	return s.toggle(ctx, relFavorite, userID, postID)
}

func (s *Store) ToggleCommentLike(ctx context.Context, userID, commentID int64) (models.ToggleOutcome, error) {
	return s.toggle(ctx, relCommentLike, userID, commentID)
}

func (s *Store) HasLiked(ctx context.Context, userID, postID int64) (bool, error) {
	return s.exists(ctx, relLike, userID, postID)
}

func (s *Store) HasFavorited(ctx context.Context, userID, postID int64) (bool, error) {
	return s.exists(ctx, relFavorite, userID, postID)
}

func (s *Store) HasLikedComment(ctx context.Context, userID, commentID int64) (bool, error) {
	return s.exists(ctx, relCommentLike, userID, commentID)
}

func (s *Store) CountLikes(ctx context.Context, postID int64) (int, error) {
	return s.count(ctx, relLike, postID)
}

func (s *Store) CountCommentLikes(ctx context.Context, commentID int64) (int, error) {
	return s.count(ctx, relCommentLike, commentID)
}
