package db

import (
	"context"
	"fmt"
	"time"

	"blogshop/internal/models"
)

const commentColumns = `c.id, c.post_id, c.user_id, c.parent_id, c.content, c.created_at, u.username AS author,
	(SELECT COUNT(*) FROM comment_likes cl WHERE cl.comment_id = c.id) AS likes`

// CreateComment inserts a comment or reply. A reply's parent must be a
// comment on the same post.
func (s *Store) CreateComment(ctx context.Context, c *models.Comment) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.ParentID != nil {
		var parentPost int64
		err := s.db.GetContext(ctx, &parentPost, `SELECT post_id FROM comments WHERE id = ?`, *c.ParentID)
		if err != nil {
			return fmt.Errorf("parent comment %d: %w", *c.ParentID, translate(err))
		}
		if parentPost != c.PostID {
			return fmt.Errorf("%w: parent comment %d belongs to another post", models.ErrInvalid, *c.ParentID)
		}
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO comments(post_id,user_id,parent_id,content,created_at) VALUES(?,?,?,?,?)`,
		c.PostID, c.UserID, c.ParentID, c.Content, c.CreatedAt)
	if err != nil {
		return translate(err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *Store) CommentByID(ctx context.Context, id int64) (*models.Comment, error) {
	var c models.Comment
	err := s.db.GetContext(ctx, &c, `SELECT `+commentColumns+` FROM comments c JOIN users u ON u.id = c.user_id WHERE c.id = ?`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// CommentsByPost returns a post's comments oldest first.
func (s *Store) CommentsByPost(ctx context.Context, postID int64) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := s.db.SelectContext(ctx, &comments, `SELECT `+commentColumns+`
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.post_id = ? ORDER BY c.created_at, c.id`, postID)
	return comments, err
}

func (s *Store) CountComments(ctx context.Context, postID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM comments WHERE post_id = ?`, postID)
	return n, err
}
