package handlers

import (
	"net/http"

	"blogshop/internal/auth"
	"blogshop/internal/messaging"
	"blogshop/internal/models"
)

type inbox struct {
	Contacts []messaging.Contact `json:"contacts"`
	Unread   int                 `json:"unread"`
}

// Inbox lists the caller's contacts, most recent conversation first.
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	contacts, err := h.Messages.Contacts(r.Context(), uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	unread, err := h.Messages.UnreadTotal(r.Context(), uid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inbox{Contacts: contacts, Unread: unread})
}

type conversation struct {
	With     *models.User     `json:"with"`
	Messages []models.Message `json:"messages"`
}

func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	other, err := pathID(r, "user")
	if err != nil {
		h.NotFound(w, r)
		return
	}
	msgs, err := h.Messages.Open(r.Context(), auth.UserID(r.Context()), other)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.Store.UserByID(r.Context(), other)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversation{With: u, Messages: msgs})
}

func (h *Handler) MessageDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.NotFound(w, r)
		return
	}
	m, err := h.Messages.Message(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	to, err := pathID(r, "user")
	if err != nil {
		h.NotFound(w, r)
		return
	}
	m, err := h.Messages.Send(r.Context(), auth.UserID(r.Context()), to, r.FormValue("subject"), r.FormValue("body"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
