package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"blogshop/internal/models"
)

const sessionCookie = "blogshop_session"

type SessionStore interface {
	CreateSession(ctx context.Context, id string, userID int64, expires time.Time) error
	SessionUser(ctx context.Context, id string, now time.Time) (int64, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID int64) error
}

// Manager issues and resolves cookie sessions.
type Manager struct {
	store  SessionStore
	maxAge time.Duration
	secure bool
}

func NewManager(store SessionStore, maxAge time.Duration, secure bool) *Manager {
	return &Manager{store: store, maxAge: maxAge, secure: secure}
}

// Create starts a new session for userID, dropping any previous ones.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, userID int64) error {
	if err := m.store.DeleteUserSessions(ctx, userID); err != nil {
		return err
	}
	id := uuid.New().String()
	expires := time.Now().Add(m.maxAge)
	if err := m.store.CreateSession(ctx, id, userID, expires); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	return nil
}

func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) {
	if c, _ := r.Cookie(sessionCookie); c != nil && c.Value != "" {
		m.store.DeleteSession(r.Context(), c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
	})
}

func (m *Manager) CurrentUserID(r *http.Request) (int64, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return 0, false
	}
	uid, err := m.store.SessionUser(r.Context(), c.Value, time.Now())
	if err != nil {
		return 0, false
	}
	return uid, true
}

// -------- request identity

type ctxKey struct{}

// WithUserID returns a context carrying the authenticated user.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user, or 0 for anonymous requests.
func UserID(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxKey{}).(int64)
	return id
}

// Identify attaches the session's user, if any, to the request context.
func (m *Manager) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid, ok := m.CurrentUserID(r); ok {
			r = r.WithContext(WithUserID(r.Context(), uid))
		}
		next.ServeHTTP(w, r)
	})
}

// -------- passwords and credentials

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(pw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Registration is the sign-up form.
type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

func (r *Registration) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	var problems []string
	if n := len(r.Username); n < 3 || n > 150 {
		problems = append(problems, "username must be 3-150 characters")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil || !strings.Contains(r.Email, "@") {
		problems = append(problems, "email is not valid")
	}
	if len(r.Password) < 8 {
		problems = append(problems, "password must be at least 8 characters")
	}
	if r.Password != r.Password2 {
		problems = append(problems, "passwords do not match")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", models.ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

var ErrBadCredentials = errors.New("wrong username or password")
