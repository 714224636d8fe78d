package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"medcanna/m/domain"
	"medcanna/m/internal/ledger"
)

const productColumns = `id, name, category, price, stock_quantity, minimum_stock, supplier, active, created_at, updated_at`

// Service is the product catalog. It never writes stock_quantity itself:
// initial stock is recorded through the ledger.
type Service struct {
	db     *sqlx.DB
	ledger *ledger.Ledger
	now    func() time.Time
}

func New(db *sqlx.DB, l *ledger.Ledger) *Service {
	return &Service{db: db, ledger: l, now: func() time.Time { return time.Now().UTC() }}
}

type CreateRequest struct {
	Name         string
	Category     string
	Supplier     string
	Price        decimal.Decimal
	MinimumStock int64
	InitialStock int64
	CreatedBy    *int64
}

type UpdateRequest struct {
	Name         string
	Category     string
	Supplier     string
	Price        decimal.Decimal
	MinimumStock int64
	Active       *bool
}

type Filter struct {
	Query      string
	Category   string
	ActiveOnly bool
}

func validate(name string, price decimal.Decimal, minimum int64) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", domain.ErrInvalidInput)
	}
	if minimum < 0 {
		return fmt.Errorf("%w: minimum_stock must not be negative", domain.ErrInvalidInput)
	}
	return nil
}

// Create inserts a product at zero stock and, when InitialStock is set,
// records the opening "in" movement in the same transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Product, error) {
	if err := validate(req.Name, req.Price, req.MinimumStock); err != nil {
		return nil, err
	}
	if req.InitialStock < 0 {
		return nil, fmt.Errorf("%w: initial_stock must not be negative", domain.ErrInvalidQuantity)
	}

	var id int64
	_, err := s.ledger.Apply(ctx, func(rec *ledger.Recorder) error {
		tx := rec.Tx()
		now := s.now()
		err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO products (name, category, price, stock_quantity, minimum_stock, supplier, active, created_at, updated_at)
                VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?) RETURNING id`),
			strings.TrimSpace(req.Name), strings.TrimSpace(req.Category), req.Price, req.MinimumStock, strings.TrimSpace(req.Supplier), true, now, now).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		if req.InitialStock == 0 {
			return nil
		}
		_, err = rec.Move(ctx, ledger.MovementRequest{
			ProductID: id,
			Type:      domain.MovementIn,
			Quantity:  req.InitialStock,
			Reason:    "initial stock",
			CreatedBy: req.CreatedBy,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load product %d: %w", id, err)
	}
	return &p, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]domain.Product, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ActiveOnly {
		clauses = append(clauses, "active = ?")
		args = append(args, true)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		clauses = append(clauses, "(LOWER(name) LIKE ? OR LOWER(supplier) LIKE ?)")
		like := "%" + strings.ToLower(q) + "%"
		args = append(args, like, like)
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		clauses = append(clauses, "LOWER(category) = ?")
		args = append(args, strings.ToLower(c))
	}
	query := `SELECT ` + productColumns + ` FROM products`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY name ASC, id ASC"

	list := []domain.Product{}
	if err := s.db.SelectContext(ctx, &list, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return list, nil
}

// Update edits catalog fields. Stock is left to the ledger.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*domain.Product, error) {
	if err := validate(req.Name, req.Price, req.MinimumStock); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	active := current.Active
	if req.Active != nil {
		active = *req.Active
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`UPDATE products SET name = ?, category = ?, price = ?, minimum_stock = ?, supplier = ?, active = ?, updated_at = ? WHERE id = ?`),
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Category), req.Price, req.MinimumStock, strings.TrimSpace(req.Supplier), active, s.now(), id)
	if err != nil {
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	return s.Get(ctx, id)
}

// Deactivate hides a product from the catalog. Its ledger history is kept.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE products SET active = ?, updated_at = ? WHERE id = ?`), false, s.now(), id)
	if err != nil {
		return fmt.Errorf("deactivate product %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: product %d", domain.ErrNotFound, id)
	}
	return nil
}

// FindByName returns the first product with the exact name, if any.
func (s *Service) FindByName(ctx context.Context, name string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE name = ? ORDER BY id LIMIT 1`), strings.TrimSpace(name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("find product %q: %w", name, err)
	}
	return &p, nil
}
