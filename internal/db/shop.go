package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blogshop/internal/models"
)

// -------- Catalog

func (s *Store) Categories(ctx context.Context) ([]models.Category, error) {
	cats := []models.Category{}
	err := s.db.SelectContext(ctx, &cats, `SELECT id,name,description FROM categories ORDER BY name`)
	return cats, err
}

func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO categories(name,description) VALUES(?,?)`, c.Name, c.Description)
	if err != nil {
		return translate(err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

// ProductFilter narrows Products. Search matches name or description.
type ProductFilter struct {
	CategoryID int64
	Search     string
}

func (s *Store) Products(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	q := `SELECT id,category_id,name,description,price,created_at FROM products`
	var wheres []string
	var args []any
	if f.CategoryID != 0 {
		wheres = append(wheres, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		wheres = append(wheres, "(name LIKE ? OR description LIKE ?)")
		like := "%" + term + "%"
		args = append(args, like, like)
	}
	if len(wheres) > 0 {
		q += " WHERE " + strings.Join(wheres, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, q, args...); err != nil {
		return nil, err
	}
	return products, nil
}

// ProductByID loads a product with its images, primary image first.
func (s *Store) ProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := s.db.GetContext(ctx, &p, `SELECT id,category_id,name,description,price,created_at FROM products WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err)
	}
	p.Images = []models.ProductImage{}
	err = s.db.SelectContext(ctx, &p.Images, `SELECT id,product_id,file,is_primary,position FROM product_images
		WHERE product_id = ? ORDER BY is_primary DESC, position, id`, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO products(category_id,name,description,price,created_at) VALUES(?,?,?,?,?)`,
		p.CategoryID, p.Name, p.Description, p.Price.StringFixed(2), p.CreatedAt)
	if err != nil {
		return translate(err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// AddProductImage attaches an image. Marking it primary clears the flag on
// the product's other images.
func (s *Store) AddProductImage(ctx context.Context, img *models.ProductImage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if img.IsPrimary {
		if _, err := tx.ExecContext(ctx, `UPDATE product_images SET is_primary = 0 WHERE product_id = ?`, img.ProductID); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO product_images(product_id,file,is_primary,position) VALUES(?,?,?,?)`,
		img.ProductID, img.File, img.IsPrimary, img.Position)
	if err != nil {
		return translate(err)
	}
	if img.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	return tx.Commit()
}

// -------- Orders

const orderColumns = `id,user_id,product_id,quantity,total_price,payment_id,status,failure_reason,created_at,updated_at`

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	if o.Status == "" {
		o.Status = models.OrderCreated
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO orders(user_id,product_id,quantity,total_price,payment_id,status,failure_reason,created_at,updated_at)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		o.UserID, o.ProductID, o.Quantity, o.TotalPrice.StringFixed(2), o.PaymentID, o.Status, o.FailureReason, now, now)
	if err != nil {
		return translate(err)
	}
	o.ID, err = res.LastInsertId()
	return err
}

func (s *Store) OrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	if err := s.db.GetContext(ctx, &o, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id); err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *Store) OrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, `SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	return orders, err
}

// TransitionOrder moves an order from one status to another. It fails with
// ErrConflict if the order is no longer in the expected status. paymentID
// and reason are written only when non-empty. A paid order loses any
// earlier failure reason.
func (s *Store) TransitionOrder(ctx context.Context, id int64, from, to models.OrderStatus, paymentID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?,
			payment_id = CASE WHEN ? <> '' THEN ? ELSE payment_id END,
			failure_reason = CASE WHEN ? <> '' THEN ? WHEN ? = ? THEN '' ELSE failure_reason END,
			updated_at = ?
		WHERE id = ? AND status = ?`,
		to, paymentID, paymentID, reason, reason, to, models.OrderPaid, time.Now().UTC(), id, from)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.OrderByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: order %d is not %s", models.ErrConflict, id, from)
	}
	return nil
}

// AbandonStaleOrders marks orders stuck in created or payment_pending since
// before cutoff as abandoned.
func (s *Store) AbandonStaleOrders(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, failure_reason = 'no payment confirmation', updated_at = ?
		WHERE status IN (?, ?) AND updated_at < ?`,
		models.OrderAbandoned, time.Now().UTC(), models.OrderCreated, models.OrderPaymentPending, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
