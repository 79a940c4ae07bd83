package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"blogshop/internal/auth"
	"blogshop/internal/db"
	"blogshop/internal/models"
)

// -------- catalog

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Store.Categories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// Products lists the catalog, optionally narrowed by ?category= and ?q=.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	f := db.ProductFilter{Search: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("category"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: bad category", models.ErrInvalid))
			return
		}
		f.CategoryID = id
	}
	products, err := h.Store.Products(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.NotFound(w, r)
		return
	}
	p, err := h.Store.ProductByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// -------- staff catalog management

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	c := &models.Category{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	if c.Name == "" {
		h.fail(w, r, fmt.Errorf("%w: name required", models.ErrInvalid))
		return
	}
	if err := h.Store.CreateCategory(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	p := &models.Product{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}
	var problems []string
	if p.Name == "" {
		problems = append(problems, "name required")
	}
	cat, err := strconv.ParseInt(r.FormValue("category_id"), 10, 64)
	if err != nil {
		problems = append(problems, "bad category_id")
	}
	p.CategoryID = cat
	price, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("price")))
	if err != nil || price.IsNegative() || price.Exponent() < -2 {
		problems = append(problems, "price must be a non-negative amount with at most 2 decimals")
	}
	p.Price = price
	if len(problems) > 0 {
		h.fail(w, r, fmt.Errorf("%w: %s", models.ErrInvalid, strings.Join(problems, "; ")))
		return
	}
	if err := h.Store.CreateProduct(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) AddProductImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)
	id, err := pathID(r, "id")
	if err != nil {
		h.NotFound(w, r)
		return
	}
	file, err := h.upload(r, "image", "products")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if file == "" {
		h.fail(w, r, fmt.Errorf("%w: image file required", models.ErrInvalid))
		return
	}
	img := &models.ProductImage{ProductID: id, File: file, IsPrimary: r.FormValue("is_primary") == "1"}
	if raw := r.FormValue("position"); raw != "" {
		img.Position, _ = strconv.Atoi(raw)
	}
	if err := h.Store.AddProductImage(r.Context(), img); err != nil {
		h.removeFile(file)
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

// -------- checkout

var errPaymentsDisabled = errors.New("payments are not configured")

func (h *Handler) payments(w http.ResponseWriter) bool {
	if h.Orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, errPaymentsDisabled.Error())
		return false
	}
	return true
}

// Checkout places an order and answers with the payment page to send the
// buyer to.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if !h.payments(w) {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.NotFound(w, r)
		return
	}
	res, err := h.Orchestrator.Checkout(r.Context(), auth.UserID(r.Context()), id, r.FormValue("quantity"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) CheckoutReturn(w http.ResponseWriter, r *http.Request) {
	if !h.payments(w) {
		return
	}
	h.settle(w, r, h.Orchestrator.Complete)
}

func (h *Handler) CheckoutCancel(w http.ResponseWriter, r *http.Request) {
	if !h.payments(w) {
		return
	}
	h.settle(w, r, h.Orchestrator.Cancel)
}

type settleFunc func(ctx context.Context, userID int64, token string) (*models.Order, error)

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, fn settleFunc) {
	order, err := fn(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Store.OrdersByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}
