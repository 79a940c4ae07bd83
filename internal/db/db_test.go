package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogshop/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbc, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbc.Close() })
	require.NoError(t, Migrate(dbc))
	return New(dbc)
}

func mustUser(t *testing.T, s *Store, name string) *models.User {
	t.Helper()
	u := &models.User{Email: name + "@example.com", Username: name, PasswordHash: "x"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func mustPost(t *testing.T, s *Store, userID int64, title string) *models.Post {
	t.Helper()
	p := &models.Post{UserID: userID, Title: title, Content: "body"}
	require.NoError(t, s.CreatePost(context.Background(), p))
	return p
}

func TestMigrateIsRepeatable(t *testing.T) {
	dbc, err := Open(":memory:")
	require.NoError(t, err)
	defer dbc.Close()

	require.NoError(t, Migrate(dbc))
	require.NoError(t, Migrate(dbc))
}

func TestCreateUserDuplicateIsConflict(t *testing.T) {
	s := setupTestStore(t)
	mustUser(t, s, "alice")

	err := s.CreateUser(context.Background(), &models.User{Email: "other@example.com", Username: "alice", PasswordHash: "x"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestProfileDefaultsAndSave(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "bob")

	p, err := s.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)
	assert.Empty(t, p.Bio)

	born := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)
	p.Bio, p.BirthDate = "hello", &born
	require.NoError(t, s.SaveProfile(ctx, p))
	p.Bio = "updated"
	require.NoError(t, s.SaveProfile(ctx, p))

	got, err := s.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Bio)
	require.NotNil(t, got.BirthDate)
	assert.True(t, born.Equal(*got.BirthDate))

	_, err = s.Profile(ctx, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSessions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "carol")
	now := time.Now().UTC()

	require.NoError(t, s.CreateSession(ctx, "live", u.ID, now.Add(time.Hour)))
	require.NoError(t, s.CreateSession(ctx, "dead", u.ID, now.Add(-time.Hour)))

	uid, err := s.SessionUser(ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)

	_, err = s.SessionUser(ctx, "dead", now)
	assert.ErrorIs(t, err, models.ErrNotFound)

	n, err := s.PurgeSessions(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestListPostsFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "author")
	b := mustUser(t, s, "reader")
	p1 := mustPost(t, s, a.ID, "first")
	mustPost(t, s, b.ID, "second")

	all, err := s.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := s.ListPosts(ctx, PostFilter{AuthorID: a.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "author", mine[0].Author)

	_, err = s.ToggleFavorite(ctx, b.ID, p1.ID)
	require.NoError(t, err)
	_, err = s.ToggleLike(ctx, b.ID, p1.ID)
	require.NoError(t, err)
	favs, err := s.ListPosts(ctx, PostFilter{FavoritedBy: b.ID})
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, p1.ID, favs[0].ID)
	assert.Equal(t, 1, favs[0].Likes)
}

func TestUpdatePostRequiresOwner(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "owner")
	p := mustPost(t, s, a.ID, "title")

	p.Title = "changed"
	require.NoError(t, s.UpdatePost(ctx, p))

	stranger := *p
	stranger.UserID = a.ID + 100
	assert.ErrorIs(t, s.UpdatePost(ctx, &stranger), models.ErrNotFound)

	got, err := s.PostByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Title)

	require.NoError(t, s.DeletePost(ctx, p.ID))
	assert.ErrorIs(t, s.DeletePost(ctx, p.ID), models.ErrNotFound)
}

func TestCreateCommentRejectsParentFromOtherPost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "dave")
	p1 := mustPost(t, s, u.ID, "one")
	p2 := mustPost(t, s, u.ID, "two")

	root := &models.Comment{PostID: p1.ID, UserID: u.ID, Content: "root"}
	require.NoError(t, s.CreateComment(ctx, root))

	reply := &models.Comment{PostID: p1.ID, UserID: u.ID, ParentID: &root.ID, Content: "reply"}
	require.NoError(t, s.CreateComment(ctx, reply))

	stray := &models.Comment{PostID: p2.ID, UserID: u.ID, ParentID: &root.ID, Content: "stray"}
	assert.ErrorIs(t, s.CreateComment(ctx, stray), models.ErrInvalid)

	missing := int64(4242)
	orphan := &models.Comment{PostID: p1.ID, UserID: u.ID, ParentID: &missing, Content: "orphan"}
	assert.ErrorIs(t, s.CreateComment(ctx, orphan), models.ErrNotFound)

	list, err := s.CommentsByPost(ctx, p1.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, list[1].ParentID)
	assert.Equal(t, root.ID, *list[1].ParentID)

	n, err := s.CountComments(ctx, p2.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestToggleRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "erin")
	p := mustPost(t, s, u.ID, "post")

	out, err := s.ToggleLike(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ToggleCreated, out)
	liked, err := s.HasLiked(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	out, err = s.ToggleLike(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ToggleRemoved, out)
	n, err := s.CountLikes(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.ToggleLike(ctx, u.ID, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestToggleLostRaceIsConflict(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	s := &Store{db: sqlx.NewDb(mockDB, "sqlmock")}

	mock.ExpectExec("DELETE FROM likes").WithArgs(int64(1), int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO likes").WillReturnError(errors.New("boom"))

	_, err = s.ToggleLike(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "toggle likes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessagesReadFlag(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "sender")
	b := mustUser(t, s, "recipient")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateMessage(ctx, &models.Message{SenderID: a.ID, RecipientID: b.ID, Body: "hi"}))
	}
	require.NoError(t, s.CreateMessage(ctx, &models.Message{SenderID: b.ID, RecipientID: a.ID, Body: "yo"}))

	unread, err := s.CountUnread(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	n, err := s.MarkConversationRead(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	n, err = s.MarkConversationRead(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	conv, err := s.Conversation(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Len(t, conv, 4)

	_, err = s.MessageByID(ctx, 12345)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCatalogAndOrders(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "shopper")

	cat := &models.Category{Name: "Books"}
	require.NoError(t, s.CreateCategory(ctx, cat))
	p := &models.Product{CategoryID: cat.ID, Name: "Go Book", Description: "learn go", Price: decimal.RequireFromString("19.99")}
	require.NoError(t, s.CreateProduct(ctx, p))
	require.NoError(t, s.AddProductImage(ctx, &models.ProductImage{ProductID: p.ID, File: "a.png", Position: 1}))
	require.NoError(t, s.AddProductImage(ctx, &models.ProductImage{ProductID: p.ID, File: "b.png", Position: 2, IsPrimary: true}))

	got, err := s.ProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("19.99")))
	require.Len(t, got.Images, 2)
	assert.Equal(t, "b.png", got.Images[0].File)

	found, err := s.Products(ctx, ProductFilter{Search: "learn"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	found, err = s.Products(ctx, ProductFilter{CategoryID: 1})
	require.NoError(t, err)
	assert.Empty(t, found)

	o := &models.Order{UserID: u.ID, ProductID: p.ID, Quantity: 2, TotalPrice: got.Price.Mul(decimal.NewFromInt(2))}
	require.NoError(t, s.CreateOrder(ctx, o))
	assert.Equal(t, models.OrderCreated, o.Status)

	require.NoError(t, s.TransitionOrder(ctx, o.ID, models.OrderCreated, models.OrderPaymentPending, "cs_123", ""))
	err = s.TransitionOrder(ctx, o.ID, models.OrderCreated, models.OrderFailed, "", "late")
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.ErrorIs(t, s.TransitionOrder(ctx, 777, models.OrderCreated, models.OrderFailed, "", ""), models.ErrNotFound)

	stored, err := s.OrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaymentPending, stored.Status)
	assert.Equal(t, "cs_123", stored.PaymentID)
	assert.Equal(t, "39.98", stored.TotalPrice.StringFixed(2))

	n, err := s.AbandonStaleOrders(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	stored, err = s.OrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderAbandoned, stored.Status)
}
