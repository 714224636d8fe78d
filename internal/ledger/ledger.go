// Package ledger owns products.stock_quantity. Every change to on-hand stock
// goes through an append-only stock_movements row written in the same
// transaction as a compare-and-swap on the product counter.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"medcanna/m/domain"
)

const productColumns = `id, name, category, price, stock_quantity, minimum_stock, supplier, active, created_at, updated_at`

const movementColumns = `id, product_id, type, quantity, previous_quantity, new_quantity, reason, reference, notes, movement_date, created_at, created_by`

// errStale marks a compare-and-swap miss; the whole unit of work is retried.
var errStale = errors.New("stale stock quantity")

// Ledger serialises stock changes through the movement log.
type Ledger struct {
	db          *sqlx.DB
	maxAttempts int
	now         func() time.Time

	// afterRead runs between reading and swapping the counter. Tests use it
	// to simulate a concurrent writer.
	afterRead func(tx *sqlx.Tx, productID int64) error
}

// New returns a Ledger that tries each unit of work at most maxAttempts times.
func New(db *sqlx.DB, maxAttempts int) *Ledger {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Ledger{db: db, maxAttempts: maxAttempts, now: func() time.Time { return time.Now().UTC() }}
}

type MovementRequest struct {
	ProductID    int64
	Type         domain.MovementType
	Quantity     int64
	Reason       string
	Reference    string
	Notes        string
	MovementDate time.Time
	CreatedBy    *int64
}

type AdjustmentRequest struct {
	ProductID   int64
	NewQuantity int64
	Reason      string
	Notes       string
	CreatedBy   *int64
}

// Result is a committed movement together with the product as it stands
// after the write.
type Result struct {
	Movement domain.StockMovement `json:"movement"`
	Product  domain.Product       `json:"product"`
}

func (req MovementRequest) validate() error {
	if strings.TrimSpace(req.Reason) == "" {
		return domain.ErrMissingReason
	}
	switch req.Type {
	case domain.MovementIn, domain.MovementOut:
		if req.Quantity <= 0 {
			return fmt.Errorf("%w: %s quantity must be positive, got %d", domain.ErrInvalidQuantity, req.Type, req.Quantity)
		}
	case domain.MovementAdjustment:
		if req.Quantity == 0 {
			return fmt.Errorf("%w: adjustment delta must not be zero", domain.ErrInvalidQuantity)
		}
	default:
		return fmt.Errorf("%w: unknown movement type %q", domain.ErrInvalidInput, req.Type)
	}
	return nil
}

func (req AdjustmentRequest) validate() error {
	if strings.TrimSpace(req.Reason) == "" {
		return domain.ErrMissingReason
	}
	if req.NewQuantity < 0 {
		return fmt.Errorf("%w: target quantity must not be negative, got %d", domain.ErrInvalidQuantity, req.NewQuantity)
	}
	return nil
}

// RecordMovement applies a relative in, out or adjustment movement.
func (l *Ledger) RecordMovement(ctx context.Context, req MovementRequest) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var res Result
	_, err := l.Apply(ctx, func(rec *Recorder) error {
		m, p, err := rec.move(ctx, req)
		if err != nil {
			return err
		}
		res = Result{Movement: m, Product: p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// RecordAdjustment sets a product to an absolute quantity, typically after a
// physical count. The ledger row carries the implied delta.
func (l *Ledger) RecordAdjustment(ctx context.Context, req AdjustmentRequest) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var res Result
	_, err := l.Apply(ctx, func(rec *Recorder) error {
		m, p, err := rec.adjust(ctx, req)
		if err != nil {
			return err
		}
		res = Result{Movement: m, Product: p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Apply runs fn in one transaction. Movements recorded through the Recorder,
// and any other writes made on its Tx, commit or roll back together. When a
// counter swap loses a race the transaction is rolled back and fn runs again
// on fresh reads, up to the ledger's attempt limit.
func (l *Ledger) Apply(ctx context.Context, fn func(rec *Recorder) error) ([]domain.StockMovement, error) {
	for attempt := 1; ; attempt++ {
		movements, err := l.attempt(ctx, fn)
		if !errors.Is(err, errStale) {
			return movements, err
		}
		if attempt >= l.maxAttempts {
			return nil, fmt.Errorf("%w: stock changed during %d attempts", domain.ErrConcurrentModification, attempt)
		}
		slog.Warn("stock movement retried after concurrent update", "attempt", attempt)
	}
}

func (l *Ledger) attempt(ctx context.Context, fn func(rec *Recorder) error) ([]domain.StockMovement, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin stock transaction: %w", err)
	}
	defer tx.Rollback()

	rec := &Recorder{l: l, tx: tx}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stock transaction: %w", err)
	}
	for _, m := range rec.movements {
		slog.Info("stock movement recorded",
			"movement_id", m.ID,
			"product_id", m.ProductID,
			"type", m.Type,
			"previous", m.PreviousQuantity,
			"new", m.NewQuantity,
			"reason", m.Reason)
	}
	return rec.movements, nil
}

// Recorder writes ledger rows inside an Apply transaction.
type Recorder struct {
	l         *Ledger
	tx        *sqlx.Tx
	movements []domain.StockMovement
}

// Tx exposes the surrounding transaction for writes that must commit with
// the movements. It must not be used to write products.stock_quantity.
func (r *Recorder) Tx() *sqlx.Tx { return r.tx }

// Product reads a product inside the transaction.
func (r *Recorder) Product(ctx context.Context, id int64) (domain.Product, error) {
	var p domain.Product
	err := r.tx.GetContext(ctx, &p, r.tx.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("%w: product %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return p, fmt.Errorf("load product %d: %w", id, err)
	}
	return p, nil
}

// Move records a relative movement.
func (r *Recorder) Move(ctx context.Context, req MovementRequest) (domain.StockMovement, error) {
	if err := req.validate(); err != nil {
		return domain.StockMovement{}, err
	}
	m, _, err := r.move(ctx, req)
	return m, err
}

// Adjust records an absolute adjustment.
func (r *Recorder) Adjust(ctx context.Context, req AdjustmentRequest) (domain.StockMovement, error) {
	if err := req.validate(); err != nil {
		return domain.StockMovement{}, err
	}
	m, _, err := r.adjust(ctx, req)
	return m, err
}

// stockable loads a product that may take movements. Deactivated products
// are reported as not found.
func (r *Recorder) stockable(ctx context.Context, id int64) (domain.Product, error) {
	p, err := r.Product(ctx, id)
	if err != nil {
		return p, err
	}
	if !p.Active {
		return p, fmt.Errorf("%w: product %d is inactive", domain.ErrNotFound, id)
	}
	return p, nil
}

func (r *Recorder) move(ctx context.Context, req MovementRequest) (domain.StockMovement, domain.Product, error) {
	p, err := r.stockable(ctx, req.ProductID)
	if err != nil {
		return domain.StockMovement{}, p, err
	}
	delta := req.Quantity
	if req.Type == domain.MovementOut {
		delta = -req.Quantity
	}
	next := p.StockQuantity + delta
	if next < 0 {
		return domain.StockMovement{}, p, fmt.Errorf("%w: product %d has %d, requested %d",
			domain.ErrInsufficientStock, p.ID, p.StockQuantity, -delta)
	}
	m := domain.StockMovement{
		ProductID:    p.ID,
		Type:         req.Type,
		Quantity:     req.Quantity,
		Reason:       strings.TrimSpace(req.Reason),
		Reference:    optional(req.Reference),
		Notes:        optional(req.Notes),
		MovementDate: req.MovementDate,
		CreatedBy:    req.CreatedBy,
	}
	return r.write(ctx, p, next, m)
}

func (r *Recorder) adjust(ctx context.Context, req AdjustmentRequest) (domain.StockMovement, domain.Product, error) {
	p, err := r.stockable(ctx, req.ProductID)
	if err != nil {
		return domain.StockMovement{}, p, err
	}
	m := domain.StockMovement{
		ProductID: p.ID,
		Type:      domain.MovementAdjustment,
		Quantity:  req.NewQuantity - p.StockQuantity,
		Reason:    strings.TrimSpace(req.Reason),
		Notes:     optional(req.Notes),
		CreatedBy: req.CreatedBy,
	}
	return r.write(ctx, p, req.NewQuantity, m)
}

// write swaps the counter from p.StockQuantity to next and appends m.
func (r *Recorder) write(ctx context.Context, p domain.Product, next int64, m domain.StockMovement) (domain.StockMovement, domain.Product, error) {
	if r.l.afterRead != nil {
		if err := r.l.afterRead(r.tx, p.ID); err != nil {
			return m, p, err
		}
	}

	now := r.l.now()
	res, err := r.tx.ExecContext(ctx, r.tx.Rebind(`UPDATE products SET stock_quantity = ?, updated_at = ? WHERE id = ? AND stock_quantity = ?`),
		next, now, p.ID, p.StockQuantity)
	if err != nil {
		return m, p, fmt.Errorf("update stock for product %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return m, p, fmt.Errorf("update stock for product %d: %w", p.ID, err)
	}
	if n == 0 {
		return m, p, errStale
	}

	m.PreviousQuantity = p.StockQuantity
	m.NewQuantity = next
	m.CreatedAt = now
	if m.MovementDate.IsZero() {
		m.MovementDate = now
	}
	err = r.tx.QueryRowxContext(ctx, r.tx.Rebind(`INSERT INTO stock_movements
            (product_id, type, quantity, previous_quantity, new_quantity, reason, reference, notes, movement_date, created_at, created_by)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		m.ProductID, m.Type, m.Quantity, m.PreviousQuantity, m.NewQuantity, m.Reason, m.Reference, m.Notes, m.MovementDate, m.CreatedAt, m.CreatedBy).Scan(&m.ID)
	if err != nil {
		return m, p, fmt.Errorf("insert stock movement: %w", err)
	}

	p.StockQuantity = next
	p.UpdatedAt = now
	r.movements = append(r.movements, m)
	return m, p, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
