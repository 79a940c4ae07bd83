package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogshop/internal/db"
	"blogshop/internal/models"
)

func TestRegistrationValidate(t *testing.T) {
	cases := []struct {
		reg Registration
		ok  bool
	}{
		{Registration{"tester", "user@example.com", "secret123", "secret123"}, true},
		{Registration{"  tester  ", " user@example.com ", "secret123", "secret123"}, true},
		{Registration{"tester", "bad", "secret123", "secret123"}, false},
		{Registration{"x", "user@example.com", "secret123", "secret123"}, false},
		{Registration{"tester", "user@example.com", "123", "123"}, false},
		{Registration{"tester", "user@example.com", "secret123", "secret124"}, false},
	}
	for i, c := range cases {
		err := c.reg.Validate()
		if c.ok {
			assert.NoError(t, err, "case %d", i)
		} else {
			assert.ErrorIs(t, err, models.ErrInvalid, "case %d", i)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("super-secret")
	require.NoError(t, err)
	assert.True(t, CheckPassword("super-secret", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestSessionLifecycle(t *testing.T) {
	dbc, err := db.Open(":memory:")
	require.NoError(t, err)
	defer dbc.Close()
	require.NoError(t, db.Migrate(dbc))
	store := db.New(dbc)
	u := &models.User{Email: "s@example.com", Username: "sess", PasswordHash: "x"}
	require.NoError(t, store.CreateUser(context.Background(), u))

	m := NewManager(store, time.Hour, false)
	rec := httptest.NewRecorder()
	require.NoError(t, m.Create(context.Background(), rec, u.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	uid, ok := m.CurrentUserID(req)
	require.True(t, ok)
	assert.Equal(t, u.ID, uid)

	var seen int64
	m.Identify(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, u.ID, seen)

	m.Destroy(httptest.NewRecorder(), req)
	_, ok = m.CurrentUserID(req)
	assert.False(t, ok)

	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok = m.CurrentUserID(anon)
	assert.False(t, ok)
	assert.Zero(t, UserID(anon.Context()))
}
