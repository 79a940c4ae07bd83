package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"blogshop/internal/auth"
	"blogshop/internal/db"
	"blogshop/internal/engagement"
	"blogshop/internal/models"
)

// -------- feeds

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.listPosts(w, r, db.PostFilter{})
}

func (h *Handler) MyPosts(w http.ResponseWriter, r *http.Request) {
	h.listPosts(w, r, db.PostFilter{AuthorID: auth.UserID(r.Context())})
}

func (h *Handler) Favorites(w http.ResponseWriter, r *http.Request) {
	h.listPosts(w, r, db.PostFilter{FavoritedBy: auth.UserID(r.Context())})
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request, f db.PostFilter) {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		f.Limit, _ = strconv.Atoi(raw)
	}
	posts, err := h.Store.ListPosts(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// PostByID returns the post with its counters and comment tree.
func (h *Handler) PostByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.NotFound(w, r)
		return
	}
	thread, err := h.Engagement.Thread(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// -------- authoring

func postForm(r *http.Request) (title, content string, err error) {
	title = strings.TrimSpace(r.FormValue("title"))
	content = strings.TrimSpace(r.FormValue("content"))
	if title == "" || content == "" {
		return "", "", fmt.Errorf("%w: title and content required", models.ErrInvalid)
	}
	if len(title) > 200 {
		return "", "", fmt.Errorf("%w: title longer than 200 characters", models.ErrInvalid)
	}
	return title, content, nil
}

// upload stores the multipart file in field under dir. It returns "" when
// the request carries no such file.
func (h *Handler) upload(r *http.Request, field, dir string) (string, error) {
	file, _, err := r.FormFile(field)
	if noFile(err) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalid, err)
	}
	defer file.Close()
	return h.Media.Save(dir, file)
}

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)
	title, content, err := postForm(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	image, err := h.upload(r, "image", "posts")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p := &models.Post{UserID: auth.UserID(r.Context()), Title: title, Content: content, Image: image}
	if err := h.Store.CreatePost(r.Context(), p); err != nil {
		h.removeFile(image)
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/posts/"+strconv.FormatInt(p.ID, 10))
	writeJSON(w, http.StatusCreated, p)
}

// ownPost loads the post in the path and checks the caller wrote it.
func (h *Handler) ownPost(r *http.Request) (*models.Post, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	p, err := h.Store.PostByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if p.UserID != auth.UserID(r.Context()) {
		return nil, models.ErrForbidden
	}
	return p, nil
}

// UpdatePost edits title and content. A new "image" file replaces the old
// one and remove_image=1 drops it.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)
	p, err := h.ownPost(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	title, content, err := postForm(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	image, err := h.upload(r, "image", "posts")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	old := p.Image
	p.Title, p.Content = title, content
	switch {
	case image != "":
		p.Image = image
	case r.FormValue("remove_image") == "1":
		p.Image = ""
	}
	if err := h.Store.UpdatePost(r.Context(), p); err != nil {
		h.removeFile(image)
		h.fail(w, r, err)
		return
	}
	if old != "" && old != p.Image {
		h.removeFile(old)
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	p, err := h.ownPost(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Store.DeletePost(r.Context(), p.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.removeFile(p.Image)
	w.WriteHeader(http.StatusNoContent)
}

// -------- engagement

type toggleFunc func(ctx context.Context, userID, targetID int64) (models.ToggleOutcome, error)

type postToggle struct {
	Outcome models.ToggleOutcome `json:"outcome"`
	Stats   engagement.PostStats `json:"stats"`
}

type commentToggle struct {
	Outcome models.ToggleOutcome    `json:"outcome"`
	Stats   engagement.CommentStats `json:"stats"`
}

func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	h.togglePost(w, r, h.Engagement.ToggleLike)
}

func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	h.togglePost(w, r, h.Engagement.ToggleFavorite)
}

// togglePost applies fn and answers with the refreshed counters.
func (h *Handler) togglePost(w http.ResponseWriter, r *http.Request, fn toggleFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		h.NotFound(w, r)
		return
	}
	uid := auth.UserID(r.Context())
	out, err := fn(r.Context(), uid, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.Engagement.PostStats(r.Context(), id, uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postToggle{Outcome: out, Stats: stats})
}

func (h *Handler) ToggleCommentLike(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.NotFound(w, r)
		return
	}
	uid := auth.UserID(r.Context())
	out, err := h.Engagement.ToggleCommentLike(r.Context(), uid, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.Engagement.CommentStats(r.Context(), id, uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commentToggle{Outcome: out, Stats: stats})
}

// CreateComment adds a comment, or a reply when parent_id is set.
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	postID, err := pathID(r, "id")
	if err != nil {
		h.NotFound(w, r)
		return
	}
	content := strings.TrimSpace(r.FormValue("content"))
	if content == "" {
		h.fail(w, r, fmt.Errorf("%w: comment is empty", models.ErrInvalid))
		return
	}
	c := &models.Comment{PostID: postID, UserID: auth.UserID(r.Context()), Content: content}
	if raw := strings.TrimSpace(r.FormValue("parent_id")); raw != "" {
		parent, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parent <= 0 {
			h.fail(w, r, fmt.Errorf("%w: bad parent_id", models.ErrInvalid))
			return
		}
		c.ParentID = &parent
	}
	if err := h.Store.CreateComment(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// noFile reports whether a FormFile error only means nothing was uploaded.
func noFile(err error) bool {
	return errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart)
}
