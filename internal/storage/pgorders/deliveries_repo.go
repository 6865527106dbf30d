package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/OrderHub/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const deliveryColumns = `
  id, order_id, courier_id, status,
  pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
  assigned_at, updated_at`

func scanDelivery(row pgx.Row) (*models.Delivery, error) {
	var d models.Delivery
	err := row.Scan(
		&d.ID, &d.OrderID, &d.CourierID, &d.Status,
		&d.PickupLat, &d.PickupLon, &d.DropoffLat, &d.DropoffLon,
		&d.AssignedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDelivery атомарно создаёт доставку и привязывает курьера к заказу.
// Нарушение частичного уникального индекса по активным доставкам курьера
// превращается в ErrCourierBusy.
func (s *Storage) CreateDelivery(ctx context.Context, d *models.Delivery) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return backendErr(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
INSERT INTO deliveries (
  id, order_id, courier_id, status,
  pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
  assigned_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
`, d.ID, d.OrderID, d.CourierID, d.Status,
		d.PickupLat, d.PickupLon, d.DropoffLat, d.DropoffLon,
		d.AssignedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.ErrCourierBusy
		}
		return backendErr(err, "insert delivery")
	}

	tag, err := tx.Exec(ctx, `UPDATE orders SET courier_id = $2, updated_at = $3 WHERE id = $1`,
		d.OrderID, d.CourierID, d.AssignedAt)
	if err != nil {
		return backendErr(err, "bind courier to order")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return backendErr(err, "commit tx")
	}
	return nil
}

func (s *Storage) GetDelivery(ctx context.Context, id string) (*models.Delivery, error) {
	d, err := scanDelivery(s.db.QueryRow(ctx, `SELECT`+deliveryColumns+` FROM deliveries WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, backendErr(err, "select delivery")
	}
	return d, nil
}

// GetActiveDeliveryForCourier возвращает (nil, nil), если активной доставки нет.
func (s *Storage) GetActiveDeliveryForCourier(ctx context.Context, courierID string) (*models.Delivery, error) {
	d, err := scanDelivery(s.db.QueryRow(ctx, `
SELECT`+deliveryColumns+`
FROM deliveries
WHERE courier_id = $1 AND status NOT IN ($2, $3)
`, courierID, models.DeliveryStatusDelivered, models.DeliveryStatusCancelled))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, backendErr(err, "select active delivery")
	}
	return d, nil
}

// SaveDeliveryStatus — тот же compare-and-set, что и для заказов.
func (s *Storage) SaveDeliveryStatus(ctx context.Context, id, from, to string, ts time.Time) (*models.Delivery, error) {
	d, err := scanDelivery(s.db.QueryRow(ctx, `
UPDATE deliveries SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
RETURNING`+deliveryColumns, id, from, to, ts))
	if err == nil {
		return d, nil
	}
	if err != pgx.ErrNoRows {
		return nil, backendErr(err, "update delivery status")
	}

	if _, getErr := s.GetDelivery(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, models.ErrInvalidTransition
}
