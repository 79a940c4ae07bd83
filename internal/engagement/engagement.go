// Package engagement computes like, favorite and comment counters for a
// viewer and applies like/favorite toggles.
package engagement

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"blogshop/internal/comments"
	"blogshop/internal/metrics"
	"blogshop/internal/models"
)

// Store is the slice of persistence the aggregator needs.
type Store interface {
	PostByID(ctx context.Context, id int64) (*models.Post, error)
	CommentByID(ctx context.Context, id int64) (*models.Comment, error)
	CommentsByPost(ctx context.Context, postID int64) ([]models.Comment, error)
	CountLikes(ctx context.Context, postID int64) (int, error)
	CountComments(ctx context.Context, postID int64) (int, error)
	HasLiked(ctx context.Context, userID, postID int64) (bool, error)
	HasFavorited(ctx context.Context, userID, postID int64) (bool, error)
	HasLikedComment(ctx context.Context, userID, commentID int64) (bool, error)
	CountCommentLikes(ctx context.Context, commentID int64) (int, error)
	ToggleLike(ctx context.Context, userID, postID int64) (models.ToggleOutcome, error)
	ToggleFavorite(ctx context.Context, userID, postID int64) (models.ToggleOutcome, error)
	ToggleCommentLike(ctx context.Context, userID, commentID int64) (models.ToggleOutcome, error)
}

// PostStats is what a viewer sees next to a post.
type PostStats struct {
	LikeCount        int  `json:"like_count"`
	CommentCount     int  `json:"comment_count"`
	UserHasLiked     bool `json:"user_has_liked"`
	UserHasFavorited bool `json:"user_has_favorited"`
}

// CommentStats is what a viewer sees next to a comment.
type CommentStats struct {
	LikeCount    int  `json:"like_count"`
	UserHasLiked bool `json:"user_has_liked"`
}

// Thread is a post with its stats and reply tree.
type Thread struct {
	Post     *models.Post     `json:"post"`
	Stats    PostStats        `json:"stats"`
	Comments []*comments.Node `json:"comments"`
}

type Aggregator struct {
	store Store
	log   logrus.FieldLogger
}

func New(store Store, log logrus.FieldLogger) *Aggregator {
	return &Aggregator{store: store, log: log}
}

// PostStats recomputes the counters on every call. viewerID 0 means an
// anonymous viewer.
func (a *Aggregator) PostStats(ctx context.Context, postID, viewerID int64) (PostStats, error) {
	var st PostStats
	var err error
	if st.LikeCount, err = a.store.CountLikes(ctx, postID); err != nil {
		return st, fmt.Errorf("count likes: %w", err)
	}
	if st.CommentCount, err = a.store.CountComments(ctx, postID); err != nil {
		return st, fmt.Errorf("count comments: %w", err)
	}
	if viewerID == 0 {
		return st, nil
	}
	if st.UserHasLiked, err = a.store.HasLiked(ctx, viewerID, postID); err != nil {
		return st, fmt.Errorf("has liked: %w", err)
	}
	if st.UserHasFavorited, err = a.store.HasFavorited(ctx, viewerID, postID); err != nil {
		return st, fmt.Errorf("has favorited: %w", err)
	}
	return st, nil
}

// Thread loads a post, its stats for the viewer and its reply tree.
func (a *Aggregator) Thread(ctx context.Context, postID, viewerID int64) (*Thread, error) {
	post, err := a.store.PostByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("post %d: %w", postID, err)
	}
	stats, err := a.PostStats(ctx, postID, viewerID)
	if err != nil {
		return nil, err
	}
	flat, err := a.store.CommentsByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("comments of post %d: %w", postID, err)
	}
	tree := comments.BuildTree(flat)
	if viewerID != 0 {
		var walkErr error
		comments.Walk(tree, func(n *comments.Node, _ int) {
			if walkErr != nil {
				return
			}
			n.Comment.UserHasLiked, walkErr = a.store.HasLikedComment(ctx, viewerID, n.Comment.ID)
		})
		if walkErr != nil {
			return nil, fmt.Errorf("comment likes of post %d: %w", postID, walkErr)
		}
	}
	return &Thread{Post: post, Stats: stats, Comments: tree}, nil
}

// CommentStats recomputes a comment's counter. viewerID 0 means anonymous.
func (a *Aggregator) CommentStats(ctx context.Context, commentID, viewerID int64) (CommentStats, error) {
	var st CommentStats
	var err error
	if st.LikeCount, err = a.store.CountCommentLikes(ctx, commentID); err != nil {
		return st, fmt.Errorf("count comment likes: %w", err)
	}
	if viewerID == 0 {
		return st, nil
	}
	if st.UserHasLiked, err = a.store.HasLikedComment(ctx, viewerID, commentID); err != nil {
		return st, fmt.Errorf("has liked comment: %w", err)
	}
	return st, nil
}

func (a *Aggregator) ToggleLike(ctx context.Context, userID, postID int64) (models.ToggleOutcome, error) {
	if _, err := a.store.PostByID(ctx, postID); err != nil {
		return "", fmt.Errorf("post %d: %w", postID, err)
	}
	return a.toggle(ctx, "like", userID, postID, a.store.ToggleLike)
}

func (a *Aggregator) ToggleFavorite(ctx context.Context, userID, postID int64) (models.ToggleOutcome, error) {
	if _, err := a.store.PostByID(ctx, postID); err != nil {
		return "", fmt.Errorf("post %d: %w", postID, err)
	}
	return a.toggle(ctx, "favorite", userID, postID, a.store.ToggleFavorite)
}

func (a *Aggregator) ToggleCommentLike(ctx context.Context, userID, commentID int64) (models.ToggleOutcome, error) {
	if _, err := a.store.CommentByID(ctx, commentID); err != nil {
		return "", fmt.Errorf("comment %d: %w", commentID, err)
	}
	return a.toggle(ctx, "comment_like", userID, commentID, a.store.ToggleCommentLike)
}

type toggleFunc func(ctx context.Context, userID, targetID int64) (models.ToggleOutcome, error)

func (a *Aggregator) toggle(ctx context.Context, kind string, userID, targetID int64, fn toggleFunc) (models.ToggleOutcome, error) {
	out, err := fn(ctx, userID, targetID)
	if err != nil {
		metrics.RecordToggle(kind, "error")
		a.log.WithFields(logrus.Fields{"kind": kind, "user_id": userID, "target_id": targetID}).
			WithError(err).Warn("toggle failed")
		return "", err
	}
	metrics.RecordToggle(kind, string(out))
	return out, nil
}
