package pgorders

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  restaurant_id TEXT NOT NULL,
  courier_id TEXT NULL,
  status TEXT NOT NULL,
  subtotal_cents BIGINT NOT NULL,
  tax_cents BIGINT NOT NULL,
  delivery_fee_cents BIGINT NOT NULL,
  tip_cents BIGINT NOT NULL,
  total_cents BIGINT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`
CREATE TABLE IF NOT EXISTS deliveries (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id),
  courier_id TEXT NOT NULL,
  status TEXT NOT NULL,
  pickup_lat DOUBLE PRECISION NOT NULL DEFAULT 0,
  pickup_lon DOUBLE PRECISION NOT NULL DEFAULT 0,
  dropoff_lat DOUBLE PRECISION NOT NULL DEFAULT 0,
  dropoff_lon DOUBLE PRECISION NOT NULL DEFAULT 0,
  assigned_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// Инвариант "не больше одной активной доставки на курьера" держит БД:
		// in-memory лок — только быстрый путь одного процесса.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_deliveries_active_courier
  ON deliveries(courier_id) WHERE status NOT IN ('delivered','cancelled')`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_deliveries_active_order
  ON deliveries(order_id) WHERE status NOT IN ('delivered','cancelled')`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
