package db

import (
	"context"
	"errors"
	"time"

	"blogshop/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(email,username,password_hash,is_staff,created_at) VALUES(?,?,?,?,?)`,
		u.Email, u.Username, u.PasswordHash, u.IsStaff, u.CreatedAt)
	if err != nil {
		return translate(err)
	}
	u.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT id,email,username,password_hash,is_staff,created_at FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT id,email,username,password_hash,is_staff,created_at FROM users WHERE username = ?`, username)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE id = ?`, id)
	return n > 0, err
}

// Profile returns the user's profile, or an empty one if it was never saved.
func (s *Store) Profile(ctx context.Context, userID int64) (*models.Profile, error) {
	var p models.Profile
	err := s.db.GetContext(ctx, &p, `SELECT user_id,first_name,last_name,bio,birth_date,avatar FROM profiles WHERE user_id = ?`, userID)
	if err == nil {
		return &p, nil
	}
	err = translate(err)
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if ok, err := s.UserExists(ctx, userID); err != nil {
		return nil, err
	} else if !ok {
		return nil, models.ErrNotFound
	}
	return &models.Profile{UserID: userID}, nil
}

func (s *Store) SaveProfile(ctx context.Context, p *models.Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles(user_id,first_name,last_name,bio,birth_date,avatar) VALUES(?,?,?,?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET first_name=excluded.first_name, last_name=excluded.last_name,
			bio=excluded.bio, birth_date=excluded.birth_date, avatar=excluded.avatar`,
		p.UserID, p.FirstName, p.LastName, p.Bio, p.BirthDate, p.Avatar)
	return translate(err)
}

// -------- Sessions

func (s *Store) CreateSession(ctx context.Context, id string, userID int64, expires time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions(id,user_id,expires_at) VALUES(?,?,?)`, id, userID, expires.UTC())
	return translate(err)
}

// SessionUser returns the user owning an unexpired session.
func (s *Store) SessionUser(ctx context.Context, id string, now time.Time) (int64, error) {
	var row struct {
		UserID    int64     `db:"user_id"`
		ExpiresAt time.Time `db:"expires_at"`
	}
	if err := s.db.GetContext(ctx, &row, `SELECT user_id, expires_at FROM sessions WHERE id = ?`, id); err != nil {
		return 0, translate(err)
	}
	if now.After(row.ExpiresAt) {
		return 0, models.ErrNotFound
	}
	return row.UserID, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

// PurgeSessions removes sessions that expired before now.
func (s *Store) PurgeSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
