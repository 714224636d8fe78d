package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medcanna/m/domain"
	"medcanna/m/internal/database"
	"medcanna/m/internal/migrations"
)

func setupLedger(t *testing.T) (*Ledger, *sqlx.DB) {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))
	return New(db, 3), db
}

// createProduct inserts an empty product and stocks it through the ledger.
func createProduct(t *testing.T, l *Ledger, db *sqlx.DB, name, price string, minimum, initial int64) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRowx(`INSERT INTO products (name, category, price, stock_quantity, minimum_stock, supplier, active, created_at, updated_at)
        VALUES (?, 'oil', ?, 0, ?, 'Acme', TRUE, ?, ?) RETURNING id`, name, price, minimum, now, now).Scan(&id)
	require.NoError(t, err)
	if initial > 0 {
		_, err := l.RecordMovement(context.Background(), MovementRequest{ProductID: id, Type: domain.MovementIn, Quantity: initial, Reason: "initial stock"})
		require.NoError(t, err)
	}
	return id
}

func stockOf(t *testing.T, db *sqlx.DB, id int64) int64 {
	t.Helper()
	var q int64
	require.NoError(t, db.Get(&q, `SELECT stock_quantity FROM products WHERE id = ?`, id))
	return q
}

func movementCount(t *testing.T, db *sqlx.DB, id int64) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM stock_movements WHERE product_id = ?`, id))
	return n
}

func TestRecordMovement_In(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	id := createProduct(t, l, db, "CBD Oil 10%", "250.00", 5, 0)

	res, err := l.RecordMovement(ctx, MovementRequest{ProductID: id, Type: domain.MovementIn, Quantity: 40, Reason: "purchase order", Reference: "PO-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Movement.PreviousQuantity)
	assert.Equal(t, int64(40), res.Movement.NewQuantity)
	assert.Equal(t, int64(40), res.Product.StockQuantity)
	require.NotNil(t, res.Movement.Reference)
	assert.Equal(t, "PO-1", *res.Movement.Reference)
	assert.Nil(t, res.Movement.Notes)
	assert.NotZero(t, res.Movement.ID)
	assert.False(t, res.Movement.MovementDate.IsZero())
	assert.Equal(t, int64(40), stockOf(t, db, id))
}

func TestRecordMovement_OutInsufficientStock(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	id := createProduct(t, l, db, "THC Gummies", "80.00", 1, 5)
	before := movementCount(t, db, id)

	_, err := l.RecordMovement(ctx, MovementRequest{ProductID: id, Type: domain.MovementOut, Quantity: 10, Reason: "sale"})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, "insufficient_stock", domain.Kind(err))
	assert.Equal(t, int64(5), stockOf(t, db, id))
	assert.Equal(t, before, movementCount(t, db, id))
}

func TestRecordMovement_Validation(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	id := createProduct(t, l, db, "Balm", "30.00", 0, 10)

	tests := []struct {
		name string
		req  MovementRequest
		want error
	}{
		{"zero in", MovementRequest{ProductID: id, Type: domain.MovementIn, Quantity: 0, Reason: "x"}, domain.ErrInvalidQuantity},
		{"negative out", MovementRequest{ProductID: id, Type: domain.MovementOut, Quantity: -3, Reason: "x"}, domain.ErrInvalidQuantity},
		{"zero adjustment", MovementRequest{ProductID: id, Type: domain.MovementAdjustment, Quantity: 0, Reason: "x"}, domain.ErrInvalidQuantity},
		{"blank reason", MovementRequest{ProductID: id, Type: domain.MovementIn, Quantity: 1, Reason: "   "}, domain.ErrMissingReason},
		{"unknown type", MovementRequest{ProductID: id, Type: "transfer", Quantity: 1, Reason: "x"}, domain.ErrInvalidInput},
		{"unknown product", MovementRequest{ProductID: 999, Type: domain.MovementIn, Quantity: 1, Reason: "x"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.RecordMovement(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, int64(10), stockOf(t, db, id))
	assert.Equal(t, 1, movementCount(t, db, id))
}

func TestRecordMovement_AdjustmentDelta(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	id := createProduct(t, l, db, "Flower", "55.00", 0, 10)

	res, err := l.RecordMovement(ctx, MovementRequest{ProductID: id, Type: domain.MovementAdjustment, Quantity: -4, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Product.StockQuantity)
	assert.Equal(t, int64(-4), res.Movement.Delta())

	res, err = l.RecordMovement(ctx, MovementRequest{ProductID: id, Type: domain.MovementAdjustment, Quantity: 3, Reason: "found in storage"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), res.Product.StockQuantity)

	_, err = l.RecordMovement(ctx, MovementRequest{ProductID: id, Type: domain.MovementAdjustment, Quantity: -10, Reason: "write off"})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, int64(9), stockOf(t, db, id))
}

func TestRecordAdjustment_NegativeTarget(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	id := createProduct(t, l, db, "Spray", "42.00", 0, 7)

	_, err := l.RecordAdjustment(ctx, AdjustmentRequest{ProductID: id, NewQuantity: -1, Reason: "count"})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
	_, err = l.RecordAdjustment(ctx, AdjustmentRequest{ProductID: id, NewQuantity: 3})
	require.ErrorIs(t, err, domain.ErrMissingReason)

	assert.Equal(t, int64(7), stockOf(t, db, id))
	assert.Equal(t, 1, movementCount(t, db, id))
}

func TestScenario_LowStockAfterOut(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	id := createProduct(t, l, db, "CBD Oil 20%", "300.00", 20, 100)

	res, err := l.RecordMovement(ctx, MovementRequest{ProductID: id, Type: domain.MovementOut, Quantity: 85, Reason: "wholesale"})
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.Product.StockQuantity)

	low, err := l.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, id, low[0].ID)

	summary, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.LowStockProducts)
}

func TestScenario_InventoryCountToZero(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	id := createProduct(t, l, db, "CBD Oil 20%", "300.00", 20, 100)
	_, err := l.RecordMovement(ctx, MovementRequest{ProductID: id, Type: domain.MovementOut, Quantity: 85, Reason: "wholesale"})
	require.NoError(t, err)

	res, err := l.RecordAdjustment(ctx, AdjustmentRequest{ProductID: id, NewQuantity: 0, Reason: "Inventário"})
	require.NoError(t, err)
	assert.Equal(t, domain.MovementAdjustment, res.Movement.Type)
	assert.Equal(t, int64(15), res.Movement.PreviousQuantity)
	assert.Equal(t, int64(0), res.Movement.NewQuantity)
	assert.Equal(t, int64(-15), res.Movement.Quantity)
	assert.Equal(t, "Inventário", res.Movement.Reason)

	_, err = l.RecordMovement(ctx, MovementRequest{ProductID: id, Type: domain.MovementOut, Quantity: 1, Reason: "sale"})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	summary, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.OutOfStockProducts)
}

func TestLedger_CounterMatchesMovementHistory(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	a := createProduct(t, l, db, "A", "10.00", 0, 50)
	b := createProduct(t, l, db, "B", "20.00", 0, 0)

	steps := []MovementRequest{
		{ProductID: a, Type: domain.MovementOut, Quantity: 12, Reason: "sale"},
		{ProductID: b, Type: domain.MovementIn, Quantity: 30, Reason: "restock"},
		{ProductID: a, Type: domain.MovementAdjustment, Quantity: -3, Reason: "expired"},
		{ProductID: b, Type: domain.MovementOut, Quantity: 31, Reason: "sale"}, // rejected
		{ProductID: b, Type: domain.MovementOut, Quantity: 30, Reason: "sale"},
	}
	for _, s := range steps {
		_, _ = l.RecordMovement(ctx, s)
	}
	_, err := l.RecordAdjustment(ctx, AdjustmentRequest{ProductID: a, NewQuantity: 40, Reason: "recount"})
	require.NoError(t, err)

	for _, id := range []int64{a, b} {
		history, err := l.Movements(ctx, id, 0)
		require.NoError(t, err)
		var sum int64
		for _, m := range history {
			sum += m.Delta()
		}
		assert.Equal(t, stockOf(t, db, id), sum, "product %d", id)
	}

	discrepancies, err := l.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)

	// A direct write behind the ledger's back shows up in the audit.
	_, err = db.Exec(`UPDATE products SET stock_quantity = 99 WHERE id = ?`, b)
	require.NoError(t, err)
	discrepancies, err = l.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, discrepancies, 1)
	assert.Equal(t, Discrepancy{ProductID: b, StockQuantity: 99, LedgerTotal: 0}, discrepancies[0])
}

func TestLedger_ConcurrentMovements(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	id := createProduct(t, l, db, "Capsules", "15.00", 0, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			typ := domain.MovementIn
			if i%2 == 0 {
				typ = domain.MovementOut
			}
			_, err := l.RecordMovement(ctx, MovementRequest{ProductID: id, Type: typ, Quantity: 3, Reason: "load"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(100), stockOf(t, db, id))
	assert.Equal(t, 21, movementCount(t, db, id))
	discrepancies, err := l.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestApply_RetriesAfterStaleRead(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	id := createProduct(t, l, db, "Tincture", "60.00", 0, 10)

	calls := 0
	l.afterRead = func(tx *sqlx.Tx, productID int64) error {
		calls++
		if calls == 1 {
			_, err := tx.Exec(`UPDATE products SET stock_quantity = stock_quantity + 1 WHERE id = ?`, productID)
			return err
		}
		return nil
	}

	res, err := l.RecordMovement(ctx, MovementRequest{ProductID: id, Type: domain.MovementOut, Quantity: 4, Reason: "sale"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(10), res.Movement.PreviousQuantity)
	assert.Equal(t, int64(6), stockOf(t, db, id))
	assert.Equal(t, 2, movementCount(t, db, id))
}

func TestApply_ConcurrentModificationAfterRetries(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	id := createProduct(t, l, db, "Tincture", "60.00", 0, 10)

	calls := 0
	l.afterRead = func(tx *sqlx.Tx, productID int64) error {
		calls++
		_, err := tx.Exec(`UPDATE products SET stock_quantity = stock_quantity + 1 WHERE id = ?`, productID)
		return err
	}

	_, err := l.RecordAdjustment(ctx, AdjustmentRequest{ProductID: id, NewQuantity: 2, Reason: "count"})
	require.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.Equal(t, "concurrent_modification", domain.Kind(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(10), stockOf(t, db, id))
	assert.Equal(t, 1, movementCount(t, db, id))
}

func TestApply_RollsBackWholeUnit(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	a := createProduct(t, l, db, "A", "10.00", 0, 5)
	b := createProduct(t, l, db, "B", "10.00", 0, 1)

	_, err := l.Apply(ctx, func(rec *Recorder) error {
		if _, err := rec.Move(ctx, MovementRequest{ProductID: a, Type: domain.MovementOut, Quantity: 5, Reason: "order"}); err != nil {
			return err
		}
		_, err := rec.Move(ctx, MovementRequest{ProductID: b, Type: domain.MovementOut, Quantity: 2, Reason: "order"})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, int64(5), stockOf(t, db, a))
	assert.Equal(t, int64(1), stockOf(t, db, b))
	assert.Equal(t, 1, movementCount(t, db, a))
}

func TestInactiveProductRejectsMovements(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	id := createProduct(t, l, db, "Retired Oil", "90.00", 0, 10)
	_, err := db.Exec(`UPDATE products SET active = FALSE WHERE id = ?`, id)
	require.NoError(t, err)

	_, err = l.RecordMovement(ctx, MovementRequest{ProductID: id, Type: domain.MovementOut, Quantity: 3, Reason: "sale"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = l.RecordAdjustment(ctx, AdjustmentRequest{ProductID: id, NewQuantity: 50, Reason: "count"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, int64(10), stockOf(t, db, id))
	assert.Equal(t, 1, movementCount(t, db, id))
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	createProduct(t, l, db, "A", "12.50", 5, 10)
	createProduct(t, l, db, "B", "3.10", 5, 5)
	createProduct(t, l, db, "C", "99.99", 0, 0)
	inactive := createProduct(t, l, db, "D", "1000.00", 0, 10)
	_, err := db.Exec(`UPDATE products SET active = FALSE WHERE id = ?`, inactive)
	require.NoError(t, err)

	s, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.TotalProducts)
	assert.Equal(t, int64(2), s.LowStockProducts)
	assert.Equal(t, int64(1), s.OutOfStockProducts)
	assert.True(t, decimal.RequireFromString("140.50").Equal(s.TotalValue), "got %s", s.TotalValue)
}

func TestMovements_NewestFirst(t *testing.T) {
	ctx := context.Background()
	l, db := setupLedger(t)
	a := createProduct(t, l, db, "A", "1.00", 0, 3)
	b := createProduct(t, l, db, "B", "1.00", 0, 4)
	_, err := l.RecordMovement(ctx, MovementRequest{ProductID: a, Type: domain.MovementOut, Quantity: 1, Reason: "sale"})
	require.NoError(t, err)

	history, err := l.Movements(ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.MovementOut, history[0].Type)
	assert.Equal(t, domain.MovementIn, history[1].Type)

	all, err := l.Movements(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, b, all[1].ProductID)
}
