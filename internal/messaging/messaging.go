// Package messaging indexes a user's direct-message correspondents and
// serves conversations between two users.
package messaging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"blogshop/internal/models"
)

type Store interface {
	UserExists(ctx context.Context, id int64) (bool, error)
	CreateMessage(ctx context.Context, m *models.Message) error
	MessageByID(ctx context.Context, id int64) (*models.Message, error)
	MessagesInvolving(ctx context.Context, userID int64) ([]models.Message, error)
	Conversation(ctx context.Context, a, b int64) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, recipientID, senderID int64) (int64, error)
	MarkMessageRead(ctx context.Context, id int64) error
	CountUnread(ctx context.Context, recipientID int64) (int, error)
}

// Contact is one correspondent in the inbox.
type Contact struct {
	UserID        int64     `json:"user_id"`
	LastMessageAt time.Time `json:"last_message_at"`
	Unread        int       `json:"unread"`
}

type Service struct {
	store Store
	log   logrus.FieldLogger
	now   func() time.Time
}

func New(store Store, log logrus.FieldLogger) *Service {
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Contacts lists everyone the user exchanged messages with, most recent
// conversation first. A contact without a timestamp sorts last; ties fall
// back to user id.
func (s *Service) Contacts(ctx context.Context, userID int64) ([]Contact, error) {
	msgs, err := s.store.MessagesInvolving(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("messages of user %d: %w", userID, err)
	}
	return index(userID, msgs), nil
}

func index(userID int64, msgs []models.Message) []Contact {
	byUser := map[int64]*Contact{}
	for _, m := range msgs {
		other := m.SenderID
		if other == userID {
			other = m.RecipientID
		}
		if other == userID {
			continue
		}
		c, ok := byUser[other]
		if !ok {
			c = &Contact{UserID: other}
			byUser[other] = c
		}
		if m.CreatedAt.After(c.LastMessageAt) {
			c.LastMessageAt = m.CreatedAt
		}
		if m.SenderID == other && m.RecipientID == userID && !m.IsRead {
			c.Unread++
		}
	}

	out := make([]Contact, 0, len(byUser))
	for _, c := range byUser {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessageAt, out[j].LastMessageAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Open marks everything other sent to userID as read, then returns their
// conversation oldest first.
func (s *Service) Open(ctx context.Context, userID, otherID int64) ([]models.Message, error) {
	if ok, err := s.store.UserExists(ctx, otherID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("user %d: %w", otherID, models.ErrNotFound)
	}
	n, err := s.store.MarkConversationRead(ctx, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if n > 0 {
		s.log.WithFields(logrus.Fields{"user_id": userID, "from": otherID, "count": n}).Debug("conversation marked read")
	}
	return s.store.Conversation(ctx, userID, otherID)
}

// Message returns a single message to its sender or recipient. The
// recipient reading it flips the read flag.
func (s *Service) Message(ctx context.Context, userID, messageID int64) (*models.Message, error) {
	m, err := s.store.MessageByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("message %d: %w", messageID, err)
	}
	if m.SenderID != userID && m.RecipientID != userID {
		return nil, fmt.Errorf("message %d: %w", messageID, models.ErrForbidden)
	}
	if m.RecipientID == userID && !m.IsRead {
		if err := s.store.MarkMessageRead(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("mark read: %w", err)
		}
		m.IsRead = true
	}
	return m, nil
}

func (s *Service) Send(ctx context.Context, senderID, recipientID int64, subject, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message body is required", models.ErrInvalid)
	}
	if senderID == recipientID {
		return nil, fmt.Errorf("%w: cannot message yourself", models.ErrInvalid)
	}
	if ok, err := s.store.UserExists(ctx, recipientID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("recipient %d: %w", recipientID, models.ErrNotFound)
	}
	m := &models.Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		Subject:     strings.TrimSpace(subject),
		Body:        body,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

func (s *Service) UnreadTotal(ctx context.Context, userID int64) (int, error) {
	return s.store.CountUnread(ctx, userID)
}
