package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"blogshop/internal/auth"
	"blogshop/internal/db"
	"blogshop/internal/models"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	reg := auth.Registration{
		Username:  r.FormValue("username"),
		Email:     r.FormValue("email"),
		Password:  r.FormValue("password"),
		Password2: r.FormValue("password2"),
	}
	if err := reg.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u := &models.User{Email: reg.Email, Username: reg.Username, PasswordHash: hash}
	if err := h.Store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, models.ErrConflict) {
			writeError(w, http.StatusConflict, "email or username already taken")
			return
		}
		h.fail(w, r, err)
		return
	}
	if err := h.Sessions.Create(r.Context(), w, u.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.WithField("user_id", u.ID).Info("user registered")
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	pass := r.FormValue("password")

	u, err := h.Store.UserByUsername(r.Context(), username)
	if errors.Is(err, models.ErrNotFound) {
		h.fail(w, r, auth.ErrBadCredentials)
		return
	} else if err != nil {
		h.fail(w, r, err)
		return
	}
	if !auth.CheckPassword(pass, u.PasswordHash) {
		h.fail(w, r, auth.ErrBadCredentials)
		return
	}
	if err := h.Sessions.Create(r.Context(), w, u.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Destroy(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Store.UserByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// -------- profiles

type profileView struct {
	User    *models.User    `json:"user"`
	Profile *models.Profile `json:"profile"`
	Posts   []models.Post   `json:"posts"`
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request, u *models.User) {
	p, err := h.Store.Profile(r.Context(), u.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	posts, err := h.Store.ListPosts(r.Context(), db.PostFilter{AuthorID: u.ID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileView{User: u, Profile: p, Posts: posts})
}

func (h *Handler) MyProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.Store.UserByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.profile(w, r, u)
}

func (h *Handler) ProfileByUsername(w http.ResponseWriter, r *http.Request) {
	u, err := h.Store.UserByUsername(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.profile(w, r, u)
}

// EditProfile updates the text fields and, when an "avatar" file is sent,
// replaces the avatar with a resized copy.
func (h *Handler) EditProfile(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)

	p, err := h.Store.Profile(r.Context(), uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p.FirstName = strings.TrimSpace(r.FormValue("first_name"))
	p.LastName = strings.TrimSpace(r.FormValue("last_name"))
	p.Bio = strings.TrimSpace(r.FormValue("bio"))
	p.BirthDate = nil
	if raw := strings.TrimSpace(r.FormValue("birth_date")); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: birth_date must be YYYY-MM-DD", models.ErrInvalid))
			return
		}
		p.BirthDate = &d
	}

	oldAvatar := p.Avatar
	file, _, err := r.FormFile("avatar")
	switch {
	case err == nil:
		defer file.Close()
		name, err := h.Media.SaveAvatar(file)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		p.Avatar = name
	case !noFile(err):
		h.fail(w, r, fmt.Errorf("%w: %v", models.ErrInvalid, err))
		return
	}

	if err := h.Store.SaveProfile(r.Context(), p); err != nil {
		if p.Avatar != oldAvatar {
			h.removeFile(p.Avatar)
		}
		h.fail(w, r, err)
		return
	}
	if oldAvatar != "" && p.Avatar != oldAvatar {
		h.removeFile(oldAvatar)
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) removeFile(name string) {
	if err := h.Media.Delete(name); err != nil {
		h.Log.WithError(err).WithField("file", name).Warn("could not remove media file")
	}
}
