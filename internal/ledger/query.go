package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"medcanna/m/domain"
)

// Movements returns the newest movements first. A productID of 0 lists all
// products.
func (l *Ledger) Movements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + movementColumns + ` FROM stock_movements`
	args := []any{}
	if productID > 0 {
		query += ` WHERE product_id = ?`
		args = append(args, productID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	movements := []domain.StockMovement{}
	if err := l.db.SelectContext(ctx, &movements, l.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	return movements, nil
}

// Summary aggregates the live product table. It is recomputed on every call.
func (l *Ledger) Summary(ctx context.Context) (domain.StockSummary, error) {
	var rows []struct {
		StockQuantity int64           `db:"stock_quantity"`
		MinimumStock  int64           `db:"minimum_stock"`
		Price         decimal.Decimal `db:"price"`
	}
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(`SELECT stock_quantity, minimum_stock, price FROM products WHERE active = ?`), true); err != nil {
		return domain.StockSummary{}, fmt.Errorf("load stock summary: %w", err)
	}

	s := domain.StockSummary{TotalValue: decimal.Zero}
	for _, r := range rows {
		s.TotalProducts++
		if r.StockQuantity <= r.MinimumStock {
			s.LowStockProducts++
		}
		if r.StockQuantity == 0 {
			s.OutOfStockProducts++
		}
		s.TotalValue = s.TotalValue.Add(r.Price.Mul(decimal.NewFromInt(r.StockQuantity)))
	}
	return s, nil
}

// LowStock lists active products at or below their minimum stock, emptiest
// first.
func (l *Ledger) LowStock(ctx context.Context) ([]domain.Product, error) {
	products := []domain.Product{}
	err := l.db.SelectContext(ctx, &products, l.db.Rebind(`SELECT `+productColumns+` FROM products
            WHERE active = ? AND stock_quantity <= minimum_stock
            ORDER BY stock_quantity ASC, name ASC`), true)
	if err != nil {
		return nil, fmt.Errorf("list low stock products: %w", err)
	}
	return products, nil
}

// Discrepancy is a product whose counter disagrees with its movement history.
type Discrepancy struct {
	ProductID     int64 `db:"product_id" json:"product_id"`
	StockQuantity int64 `db:"stock_quantity" json:"stock_quantity"`
	LedgerTotal   int64 `db:"ledger_total" json:"ledger_total"`
}

// Audit replays the movement log and reports every product whose
// stock_quantity differs from the sum of its movement deltas.
func (l *Ledger) Audit(ctx context.Context) ([]Discrepancy, error) {
	out := []Discrepancy{}
	err := l.db.SelectContext(ctx, &out, `SELECT p.id AS product_id, p.stock_quantity,
            COALESCE(SUM(m.new_quantity - m.previous_quantity), 0) AS ledger_total
            FROM products p
            LEFT JOIN stock_movements m ON m.product_id = p.id
            GROUP BY p.id, p.stock_quantity
            HAVING p.stock_quantity <> COALESCE(SUM(m.new_quantity - m.previous_quantity), 0)
            ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("audit stock ledger: %w", err)
	}
	return out, nil
}
