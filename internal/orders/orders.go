package orders

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"medcanna/m/domain"
	"medcanna/m/internal/gate"
	"medcanna/m/internal/ledger"
)

type ItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type Service struct {
	db     *sqlx.DB
	ledger *ledger.Ledger
	now    func() time.Time
}

func New(db *sqlx.DB, l *ledger.Ledger) *Service {
	return &Service{db: db, ledger: l, now: func() time.Time { return time.Now().UTC() }}
}

// Place checks out a cart for user. The purchase gate is evaluated against the
// flags on the freshly loaded account, and every line ships through an "out"
// ledger movement in the same transaction as the order rows.
func (s *Service) Place(ctx context.Context, user *domain.User, items []ItemRequest) (*domain.Order, error) {
	decision := gate.Evaluate(gate.InputFor(user))
	if !decision.CanAddToCart {
		return nil, fmt.Errorf("%w: tier %s cannot purchase", domain.ErrPurchaseLocked, decision.Tier)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", domain.ErrInvalidInput)
	}
	merged := make([]ItemRequest, 0, len(items))
	index := make(map[int64]int)
	for _, item := range items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product_id and a positive quantity are required for each item", domain.ErrInvalidQuantity)
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}

	var order domain.Order
	_, err := s.ledger.Apply(ctx, func(rec *ledger.Recorder) error {
		tx := rec.Tx()
		order = domain.Order{UserID: user.ID, TotalAmount: decimal.Zero, CreatedAt: s.now()}
		err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO orders (user_id, total_amount, created_at) VALUES (?, ?, ?) RETURNING id`),
			order.UserID, order.TotalAmount, order.CreatedAt).Scan(&order.ID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range merged {
			p, err := rec.Product(ctx, item.ProductID)
			if err != nil {
				return err
			}
			m, err := rec.Move(ctx, ledger.MovementRequest{
				ProductID: p.ID,
				Type:      domain.MovementOut,
				Quantity:  item.Quantity,
				Reason:    "order",
				Reference: "order:" + strconv.FormatInt(order.ID, 10),
				CreatedBy: &user.ID,
			})
			if err != nil {
				return err
			}
			line := domain.OrderItem{
				OrderID:    order.ID,
				ProductID:  p.ID,
				MovementID: m.ID,
				Quantity:   item.Quantity,
				UnitPrice:  p.Price,
				Subtotal:   p.Price.Mul(decimal.NewFromInt(item.Quantity)),
			}
			err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO order_items (order_id, product_id, movement_id, quantity, unit_price, subtotal) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
				line.OrderID, line.ProductID, line.MovementID, line.Quantity, line.UnitPrice, line.Subtotal).Scan(&line.ID)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
			order.Items = append(order.Items, line)
			order.TotalAmount = order.TotalAmount.Add(line.Subtotal)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE orders SET total_amount = ? WHERE id = ?`), order.TotalAmount, order.ID); err != nil {
			return fmt.Errorf("update order total: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListForUser returns a user's orders with their lines, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders := []domain.Order{}
	err := s.db.SelectContext(ctx, &orders, s.db.Rebind(`SELECT id, user_id, total_amount, created_at FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	query, args, err := sqlx.In(`SELECT id, order_id, product_id, movement_id, quantity, unit_price, subtotal FROM order_items WHERE order_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("prepare order items query: %w", err)
	}
	var rows []domain.OrderItem
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	byOrder := make(map[int64][]domain.OrderItem)
	for _, row := range rows {
		byOrder[row.OrderID] = append(byOrder[row.OrderID], row)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
	}
	return orders, nil
}

type Revenue struct {
	Revenue    decimal.Decimal `json:"revenue"`
	OrderCount int64           `json:"order_count"`
	Since      time.Time       `json:"since"`
}

// RevenueSince totals orders created at or after since.
func (s *Service) RevenueSince(ctx context.Context, since time.Time) (Revenue, error) {
	var totals []decimal.Decimal
	err := s.db.SelectContext(ctx, &totals, s.db.Rebind(`SELECT total_amount FROM orders WHERE created_at >= ?`), since.UTC())
	if err != nil {
		return Revenue{}, fmt.Errorf("load revenue: %w", err)
	}
	r := Revenue{Revenue: decimal.Zero, Since: since}
	for _, t := range totals {
		r.Revenue = r.Revenue.Add(t)
		r.OrderCount++
	}
	return r, nil
}

// StartOfDay and StartOfMonth give the report windows in UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
