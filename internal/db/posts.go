package db

import (
	"context"
	"strings"
	"time"

	"blogshop/internal/models"
)

const postColumns = `p.id, p.user_id, p.title, p.content, p.image, p.created_at, u.username AS author,
	(SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id) AS likes`

// PostFilter narrows ListPosts. Zero values mean "no filter".
type PostFilter struct {
	AuthorID    int64
	FavoritedBy int64
	Limit       int
}

func (s *Store) ListPosts(ctx context.Context, f PostFilter) ([]models.Post, error) {
	q := `SELECT ` + postColumns + ` FROM posts p JOIN users u ON p.user_id = u.id`
	var args []any
	var joins, wheres []string

	if f.FavoritedBy != 0 {
		joins = append(joins, "JOIN favorites f ON f.post_id = p.id AND f.user_id = ?")
		args = append(args, f.FavoritedBy)
	}
	if f.AuthorID != 0 {
		wheres = append(wheres, "p.user_id = ?")
		args = append(args, f.AuthorID)
	}
	if len(joins) > 0 {
		q += " " + strings.Join(joins, " ")
	}
	if len(wheres) > 0 {
		q += " WHERE " + strings.Join(wheres, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	q += " ORDER BY p.created_at DESC, p.id DESC LIMIT ?"
	args = append(args, limit)

	posts := []models.Post{}
	if err := s.db.SelectContext(ctx, &posts, q, args...); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Store) PostByID(ctx context.Context, id int64) (*models.Post, error) {
	var p models.Post
	err := s.db.GetContext(ctx, &p, `SELECT `+postColumns+` FROM posts p JOIN users u ON p.user_id = u.id WHERE p.id = ?`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) CreatePost(ctx context.Context, p *models.Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO posts(user_id,title,content,image,created_at) VALUES(?,?,?,?,?)`,
		p.UserID, p.Title, p.Content, p.Image, p.CreatedAt)
	if err != nil {
		return translate(err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// UpdatePost rewrites title, content and image of a post owned by p.UserID.
func (s *Store) UpdatePost(ctx context.Context, p *models.Post) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET title = ?, content = ?, image = ? WHERE id = ? AND user_id = ?`,
		p.Title, p.Content, p.Image, p.ID, p.UserID)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}
