package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"blogshop/internal/auth"
	"blogshop/internal/checkout"
	"blogshop/internal/db"
	"blogshop/internal/engagement"
	"blogshop/internal/media"
	"blogshop/internal/messaging"
	"blogshop/internal/metrics"
	"blogshop/internal/models"
)

// Deps are the collaborators the HTTP layer calls into. Orchestrator may be
// nil when no payment gateway is configured.
type Deps struct {
	Store        *db.Store
	Sessions     *auth.Manager
	Engagement   *engagement.Aggregator
	Messages     *messaging.Service
	Orchestrator *checkout.Orchestrator
	Media        *media.Storage
	Log          logrus.FieldLogger
	RateLimit    rate.Limit
	RateBurst    int
	MaxUpload    int64
}

type Handler struct {
	Deps
	limiter *RateLimiter
}

func New(d Deps) *Handler {
	if d.MaxUpload <= 0 {
		d.MaxUpload = 8 << 20
	}
	h := &Handler{Deps: d}
	if d.RateLimit > 0 {
		h.limiter = NewRateLimiter(d.RateLimit, d.RateBurst, d.Log)
	}
	return h
}

// Routes builds the router with middleware in place.
func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(h.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.Use(metrics.Middleware, h.Sessions.Identify)
	if h.limiter != nil {
		r.Use(h.limiter.Handler)
	}

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", http.FileServer(http.Dir(h.Media.Root())))).Methods(http.MethodGet)

	// account
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/me", h.RequireAuth(h.Me)).Methods(http.MethodGet)
	r.HandleFunc("/profile", h.RequireAuth(h.MyProfile)).Methods(http.MethodGet)
	r.HandleFunc("/profile", h.RequireAuth(h.EditProfile)).Methods(http.MethodPost)
	r.HandleFunc("/users/{username}", h.ProfileByUsername).Methods(http.MethodGet)

	// blog
	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/posts", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/posts", h.RequireAuth(h.CreatePost)).Methods(http.MethodPost)
	r.HandleFunc("/posts/mine", h.RequireAuth(h.MyPosts)).Methods(http.MethodGet)
	r.HandleFunc("/favorites", h.RequireAuth(h.Favorites)).Methods(http.MethodGet)
	r.HandleFunc("/posts/{id:[0-9]+}", h.PostByID).Methods(http.MethodGet)
	r.HandleFunc("/posts/{id:[0-9]+}", h.RequireAuth(h.UpdatePost)).Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/posts/{id:[0-9]+}", h.RequireAuth(h.DeletePost)).Methods(http.MethodDelete)
	r.HandleFunc("/posts/{id:[0-9]+}/like", h.RequireAuth(h.ToggleLike)).Methods(http.MethodPost)
	r.HandleFunc("/posts/{id:[0-9]+}/favorite", h.RequireAuth(h.ToggleFavorite)).Methods(http.MethodPost)
	r.HandleFunc("/posts/{id:[0-9]+}/comments", h.RequireAuth(h.CreateComment)).Methods(http.MethodPost)
	r.HandleFunc("/comments/{id:[0-9]+}/like", h.RequireAuth(h.ToggleCommentLike)).Methods(http.MethodPost)

	// messages
	r.HandleFunc("/messages", h.RequireAuth(h.Inbox)).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id:[0-9]+}", h.RequireAuth(h.MessageDetail)).Methods(http.MethodGet)
	r.HandleFunc("/messages/with/{user:[0-9]+}", h.RequireAuth(h.Conversation)).Methods(http.MethodGet)
	r.HandleFunc("/messages/send/{user:[0-9]+}", h.RequireAuth(h.SendMessage)).Methods(http.MethodPost)

	// shop
	r.HandleFunc("/categories", h.Categories).Methods(http.MethodGet)
	r.HandleFunc("/categories", h.RequireStaff(h.CreateCategory)).Methods(http.MethodPost)
	r.HandleFunc("/products", h.Products).Methods(http.MethodGet)
	r.HandleFunc("/products", h.RequireStaff(h.CreateProduct)).Methods(http.MethodPost)
	r.HandleFunc("/products/{id:[0-9]+}", h.Product).Methods(http.MethodGet)
	r.HandleFunc("/products/{id:[0-9]+}/images", h.RequireStaff(h.AddProductImage)).Methods(http.MethodPost)
	r.HandleFunc("/products/{id:[0-9]+}/checkout", h.RequireAuth(h.Checkout)).Methods(http.MethodPost)
	r.HandleFunc("/checkout/return", h.RequireAuth(h.CheckoutReturn)).Methods(http.MethodGet)
	r.HandleFunc("/checkout/cancel", h.RequireAuth(h.CheckoutCancel)).Methods(http.MethodGet)
	r.HandleFunc("/orders", h.RequireAuth(h.Orders)).Methods(http.MethodGet)

	return WithRecover(RequestLogger(h.Log)(r), h.Log)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DB().PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

// -------- helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a domain error onto an HTTP status. Unexpected errors are
// logged and hidden from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrForbidden):
		writeError(w, http.StatusForbidden, "you are not allowed to do that")
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrConflict):
		writeError(w, http.StatusConflict, "conflicting update, try again")
	case errors.Is(err, checkout.ErrGateway):
		writeError(w, http.StatusBadGateway, "payment provider unavailable, your order was not charged")
	default:
		h.Log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[key], 10, 64)
	if err != nil || id <= 0 {
		return 0, models.ErrNotFound
	}
	return id, nil
}
