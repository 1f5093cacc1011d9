package postgres

import (
	"context"

	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
)

type pgTx struct{ q querier }

func (t *pgTx) LockProduct(ctx context.Context, sku string) (*inventory.Product, error) {
	return scanProduct(t.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku=$1 FOR UPDATE`, sku))
}

func (t *pgTx) InsertProduct(ctx context.Context, p *inventory.Product) error {
	ct, err := t.q.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT DO NOTHING`,
		p.SKU, p.TotalQuantity, p.ReservedQuantity, p.SoldQuantity,
		p.Price, p.Unit, p.ImageURL, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return inventory.ErrDuplicateKey
	}
	return nil
}

func (t *pgTx) UpdateProduct(ctx context.Context, p *inventory.Product) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE products
		SET total_quantity=$2, reserved_quantity=$3, sold_quantity=$4,
		    price=$5, unit=$6, image_url=$7, updated_at=$8
		WHERE sku=$1`,
		p.SKU, p.TotalQuantity, p.ReservedQuantity, p.SoldQuantity,
		p.Price, p.Unit, p.ImageURL, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return inventory.ErrRowNotFound
	}
	return nil
}

func (t *pgTx) DeleteProduct(ctx context.Context, sku string) error {
	ct, err := t.q.Exec(ctx, `DELETE FROM products WHERE sku=$1`, sku)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return inventory.ErrRowNotFound
	}
	return nil
}

func (t *pgTx) CountOrderLines(ctx context.Context, sku string) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM order_lines WHERE sku=$1`, sku).Scan(&n)
	return n, err
}

func (t *pgTx) LockReservation(ctx context.Context, id string) (*inventory.Reservation, error) {
	return scanReservation(t.q.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1 FOR UPDATE`, id))
}

// InsertReservation uses ON CONFLICT DO NOTHING so an id collision leaves the
// transaction usable for another attempt.
func (t *pgTx) InsertReservation(ctx context.Context, r *inventory.Reservation) error {
	ct, err := t.q.Exec(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.SKU, r.Quantity, r.ReservedAt, r.ExpiresAt, string(r.Status),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return inventory.ErrDuplicateKey
	}
	return nil
}

func (t *pgTx) UpdateReservationStatus(ctx context.Context, id string, status inventory.ReservationStatus) error {
	ct, err := t.q.Exec(ctx, `UPDATE reservations SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return inventory.ErrRowNotFound
	}
	return nil
}

func (t *pgTx) DeleteReservationsBySKU(ctx context.Context, sku string) (int, error) {
	ct, err := t.q.Exec(ctx, `DELETE FROM reservations WHERE sku=$1`, sku)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (*inventory.Order, error) {
	return loadOrder(ctx, t.q, `SELECT `+orderColumns+` FROM shop_orders WHERE id=$1 FOR UPDATE`, id)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *inventory.Order) error {
	ct, err := t.q.Exec(ctx, `
		INSERT INTO shop_orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING`,
		o.ID, o.UserRef, o.TotalAmount, o.OrderDate, o.ExpiresAt, string(o.Status),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return inventory.ErrDuplicateKey
	}
	for i, it := range o.Items {
		if _, err := t.q.Exec(ctx, `
			INSERT INTO order_lines (order_id, line_no, sku, quantity, price_at_purchase)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, i+1, it.SKU, it.Quantity, it.PriceAtPurchase,
		); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, id string, status inventory.OrderStatus) error {
	ct, err := t.q.Exec(ctx, `UPDATE shop_orders SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return inventory.ErrRowNotFound
	}
	return nil
}
