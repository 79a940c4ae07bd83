package db

import (
	"context"
	"time"

	"blogshop/internal/models"
)

const messageColumns = `id, sender_id, recipient_id, subject, body, created_at, is_read`

func (s *Store) CreateMessage(ctx context.Context, m *models.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(sender_id,recipient_id,subject,body,created_at,is_read) VALUES(?,?,?,?,?,0)`,
		m.SenderID, m.RecipientID, m.Subject, m.Body, m.CreatedAt)
	if err != nil {
		return translate(err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

func (s *Store) MessageByID(ctx context.Context, id int64) (*models.Message, error) {
	var m models.Message
	if err := s.db.GetContext(ctx, &m, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id); err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// MessagesInvolving returns every message the user sent or received.
func (s *Store) MessagesInvolving(ctx context.Context, userID int64) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
		WHERE sender_id = ? OR recipient_id = ? ORDER BY created_at, id`, userID, userID)
	return msgs, err
}

// Conversation returns the messages between two users oldest first.
func (s *Store) Conversation(ctx context.Context, a, b int64) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at, id`, a, b, b, a)
	return msgs, err
}

// MarkConversationRead flags every unread message from sender to recipient
// as read in one statement and reports how many changed.
func (s *Store) MarkConversationRead(ctx context.Context, recipientID, senderID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_read = 1 WHERE recipient_id = ? AND sender_id = ? AND is_read = 0`,
		recipientID, senderID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) MarkMessageRead(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET is_read = 1 WHERE id = ?`, id)
	return err
}

func (s *Store) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE recipient_id = ? AND is_read = 0`, recipientID)
	return n, err
}
