package migrations

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

type dialect struct {
	pk        string
	timestamp string
	money     string
}

var (
	sqliteDialect   = dialect{pk: "INTEGER PRIMARY KEY AUTOINCREMENT", timestamp: "DATETIME", money: "TEXT"}
	postgresDialect = dialect{pk: "BIGSERIAL PRIMARY KEY", timestamp: "TIMESTAMPTZ", money: "NUMERIC(14,2)"}
)

func schema(d dialect) []string {
	r := strings.NewReplacer("{{pk}}", d.pk, "{{ts}}", d.timestamp, "{{money}}", d.money)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id {{pk}},
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL,
            has_uploaded_prescription BOOLEAN NOT NULL DEFAULT FALSE,
            has_anvisa_document BOOLEAN NOT NULL DEFAULT FALSE,
            admin_approved BOOLEAN NOT NULL DEFAULT FALSE,
            created_at {{ts}} NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS products (
            id {{pk}},
            name TEXT NOT NULL,
            category TEXT NOT NULL DEFAULT '',
            price {{money}} NOT NULL,
            stock_quantity BIGINT NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0),
            minimum_stock BIGINT NOT NULL DEFAULT 0 CHECK (minimum_stock >= 0),
            supplier TEXT NOT NULL DEFAULT '',
            active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at {{ts}} NOT NULL,
            updated_at {{ts}} NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
            id {{pk}},
            product_id BIGINT NOT NULL REFERENCES products(id),
            type TEXT NOT NULL CHECK (type IN ('in', 'out', 'adjustment')),
            quantity BIGINT NOT NULL,
            previous_quantity BIGINT NOT NULL,
            new_quantity BIGINT NOT NULL CHECK (new_quantity >= 0),
            reason TEXT NOT NULL,
            reference TEXT,
            notes TEXT,
            movement_date {{ts}} NOT NULL,
            created_at {{ts}} NOT NULL,
            created_by BIGINT REFERENCES users(id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements(product_id, id);`,
		`CREATE TABLE IF NOT EXISTS documents (
            id TEXT PRIMARY KEY,
            user_id BIGINT NOT NULL REFERENCES users(id),
            kind TEXT NOT NULL,
            url TEXT NOT NULL,
            original_name TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            review_note TEXT,
            reviewed_by BIGINT REFERENCES users(id),
            created_at {{ts}} NOT NULL,
            reviewed_at {{ts}}
        );`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status, created_at);`,
		`CREATE TABLE IF NOT EXISTS orders (
            id {{pk}},
            user_id BIGINT NOT NULL REFERENCES users(id),
            total_amount {{money}} NOT NULL,
            created_at {{ts}} NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS order_items (
            id {{pk}},
            order_id BIGINT NOT NULL REFERENCES orders(id),
            product_id BIGINT NOT NULL REFERENCES products(id),
            movement_id BIGINT NOT NULL REFERENCES stock_movements(id),
            quantity BIGINT NOT NULL,
            unit_price {{money}} NOT NULL,
            subtotal {{money}} NOT NULL
        );`,
	}
	for i, s := range stmts {
		stmts[i] = r.Replace(s)
	}
	return stmts
}

// Run creates the database schema for the driver behind db. It is safe to
// call on every start.
func Run(db *sqlx.DB) error {
	d := sqliteDialect
	if db.DriverName() == "pgx" {
		d = postgresDialect
	}
	for _, stmt := range schema(d) {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
