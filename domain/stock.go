package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementAdjustment MovementType = "adjustment"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment:
		return true
	}
	return false
}

// StockMovement is an immutable ledger row. For adjustment rows Quantity holds
// the signed delta NewQuantity - PreviousQuantity.
type StockMovement struct {
	ID               int64        `db:"id" json:"id"`
	ProductID        int64        `db:"product_id" json:"product_id"`
	Type             MovementType `db:"type" json:"type"`
	Quantity         int64        `db:"quantity" json:"quantity"`
	PreviousQuantity int64        `db:"previous_quantity" json:"previous_quantity"`
	NewQuantity      int64        `db:"new_quantity" json:"new_quantity"`
	Reason           string       `db:"reason" json:"reason"`
	Reference        *string      `db:"reference" json:"reference,omitempty"`
	Notes            *string      `db:"notes" json:"notes,omitempty"`
	MovementDate     time.Time    `db:"movement_date" json:"movement_date"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	CreatedBy        *int64       `db:"created_by" json:"created_by,omitempty"`
}

// Delta is the signed change this movement applied to the product.
func (m StockMovement) Delta() int64 {
	return m.NewQuantity - m.PreviousQuantity
}

type StockSummary struct {
	TotalProducts      int64           `json:"total_products"`
	LowStockProducts   int64           `json:"low_stock_products"`
	OutOfStockProducts int64           `json:"out_of_stock_products"`
	TotalValue         decimal.Decimal `json:"total_value"`
}
