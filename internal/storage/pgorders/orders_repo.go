package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/OrderHub/internal/models"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `
  id, customer_id, restaurant_id, courier_id, status,
  subtotal_cents, tax_cents, delivery_fee_cents, tip_cents, total_cents,
  created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.RestaurantID, &o.CourierID, &o.Status,
		&o.SubtotalCents, &o.TaxCents, &o.DeliveryFeeCents, &o.TipCents, &o.TotalCents,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Storage) CreateOrder(ctx context.Context, o *models.Order) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO orders (
  id, customer_id, restaurant_id, courier_id, status,
  subtotal_cents, tax_cents, delivery_fee_cents, tip_cents, total_cents,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
`, o.ID, o.CustomerID, o.RestaurantID, o.CourierID, o.Status,
		o.SubtotalCents, o.TaxCents, o.DeliveryFeeCents, o.TipCents, o.TotalCents,
		o.CreatedAt)
	if err != nil {
		return backendErr(err, "insert order")
	}
	return nil
}

func (s *Storage) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, backendErr(err, "select order")
	}
	return o, nil
}

// SaveOrderStatus — compare-and-set по текущему статусу. Ноль затронутых
// строк означает, что заказ либо не существует, либо уже ушёл из from —
// это и есть межпроцессная сериализация переходов.
func (s *Storage) SaveOrderStatus(ctx context.Context, id, from, to string, ts time.Time) (*models.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `
UPDATE orders SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
RETURNING`+orderColumns, id, from, to, ts))
	if err == nil {
		return o, nil
	}
	if err != pgx.ErrNoRows {
		return nil, backendErr(err, "update order status")
	}

	// CAS не прошёл: различаем "нет заказа" и "статус уже другой".
	if _, getErr := s.GetOrder(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, models.ErrInvalidTransition
}
