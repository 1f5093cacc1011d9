package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
)

const (
	productColumns     = `sku, total_quantity, reserved_quantity, sold_quantity, price, unit, image_url, created_at, updated_at`
	reservationColumns = `id, sku, quantity, reserved_at, expires_at, status`
	orderColumns       = `id, user_ref, total_amount, order_date, expires_at, status`
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements inventory.Store on Postgres. Row locks are
// SELECT ... FOR UPDATE inside one pgx transaction.
type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) WithTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) FindProduct(ctx context.Context, sku string) (*inventory.Product, error) {
	return scanProduct(s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku=$1`, sku))
}

func (s *Store) FindProductsFold(ctx context.Context, sku string) ([]inventory.Product, error) {
	return queryProducts(ctx, s.DB, `SELECT `+productColumns+` FROM products WHERE LOWER(sku)=LOWER($1) ORDER BY sku`, sku)
}

func (s *Store) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	return queryProducts(ctx, s.DB, `SELECT `+productColumns+` FROM products ORDER BY sku`)
}

func (s *Store) FindReservation(ctx context.Context, id string) (*inventory.Reservation, error) {
	return scanReservation(s.DB.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1`, id))
}

func (s *Store) StaleReservations(ctx context.Context, status inventory.ReservationStatus, cutoff time.Time) ([]inventory.Reservation, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
	                              WHERE status=$1 AND expires_at < $2 ORDER BY expires_at`, string(status), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) FindOrder(ctx context.Context, id string) (*inventory.Order, error) {
	return loadOrder(ctx, s.DB, `SELECT `+orderColumns+` FROM shop_orders WHERE id=$1`, id)
}

func (s *Store) ListOrders(ctx context.Context) ([]inventory.Order, error) {
	return queryOrders(ctx, s.DB, `SELECT `+orderColumns+` FROM shop_orders ORDER BY order_date DESC, id`)
}

func (s *Store) ListOrdersByUser(ctx context.Context, userRef string) ([]inventory.Order, error) {
	return queryOrders(ctx, s.DB, `SELECT `+orderColumns+` FROM shop_orders WHERE user_ref=$1 ORDER BY order_date DESC, id`, userRef)
}

func (s *Store) StaleOrders(ctx context.Context, status inventory.OrderStatus, cutoff time.Time) ([]inventory.Order, error) {
	return queryOrders(ctx, s.DB, `SELECT `+orderColumns+` FROM shop_orders
	                               WHERE status=$1 AND expires_at < $2 ORDER BY expires_at`, string(status), cutoff)
}

// ---- scanning ----

func scanProduct(row pgx.Row) (*inventory.Product, error) {
	var p inventory.Product
	err := row.Scan(&p.SKU, &p.TotalQuantity, &p.ReservedQuantity, &p.SoldQuantity,
		&p.Price, &p.Unit, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func queryProducts(ctx context.Context, q querier, sql string, args ...any) ([]inventory.Product, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanReservation(row pgx.Row) (*inventory.Reservation, error) {
	var (
		r      inventory.Reservation
		status string
	)
	if err := row.Scan(&r.ID, &r.SKU, &r.Quantity, &r.ReservedAt, &r.ExpiresAt, &status); err != nil {
		return nil, notFound(err)
	}
	r.Status = inventory.ReservationStatus(status)
	return &r, nil
}

func scanOrder(row pgx.Row) (*inventory.Order, error) {
	var (
		o      inventory.Order
		status string
	)
	if err := row.Scan(&o.ID, &o.UserRef, &o.TotalAmount, &o.OrderDate, &o.ExpiresAt, &status); err != nil {
		return nil, notFound(err)
	}
	o.Status = inventory.OrderStatus(status)
	return &o, nil
}

func loadOrder(ctx context.Context, q querier, sql string, args ...any) (*inventory.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, q, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = lines[o.ID]
	return o, nil
}

func queryOrders(ctx context.Context, q querier, sql string, args ...any) ([]inventory.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var out []inventory.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, len(out))
	for i, o := range out {
		ids[i] = o.ID
	}
	lines, err := loadLines(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = lines[out[i].ID]
	}
	return out, nil
}

func loadLines(ctx context.Context, q querier, orderIDs []string) (map[string][]inventory.OrderLine, error) {
	rows, err := q.Query(ctx, `SELECT order_id, sku, quantity, price_at_purchase FROM order_lines
	                           WHERE order_id = ANY($1) ORDER BY order_id, line_no`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]inventory.OrderLine, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			line    inventory.OrderLine
		)
		if err := rows.Scan(&orderID, &line.SKU, &line.Quantity, &line.PriceAtPurchase); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], line)
	}
	return out, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.ErrRowNotFound
	}
	return err
}
