package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on Postgres.
type PGStore struct{ DB *pgxpool.Pool }

const uniqueViolation = "23505"

func (r *PGStore) Create(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// external_id is NULL rather than '' when absent so the unique index
	// only bites on real idempotency keys.
	var ext any
	if o.ExternalID != "" {
		ext = o.ExternalID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, order_no, user_id, full_name, phone1, phone2,
			division, district, upazila, address_line, note, payment_method,
			sub_total_cents, delivery_charge_cents, total_cents, status,
			created_at, updated_at, external_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		o.ID, o.OrderNo, o.UserID,
		o.Shipping.FullName, o.Shipping.Phone1, o.Shipping.Phone2,
		o.Shipping.Division, o.Shipping.District, o.Shipping.Upazila,
		o.Shipping.AddressLine, o.Shipping.Note, string(o.PaymentMethod),
		o.SubTotalCents, o.DeliveryChargeCents, o.TotalCents, string(o.Status),
		o.CreatedAt, o.UpdatedAt, ext)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "orders_external_id_key" {
				return ErrDuplicateExternalID
			}
			return ErrDuplicateOrderNo
		}
		return err
	}

	for i, ln := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, product_id, title, image,
				variant, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			o.ID, i, ln.ProductID, ln.Title, ln.Image, ln.Variant, ln.Qty, ln.PriceCents); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

const orderCols = `id, order_no, user_id, full_name, phone1, phone2, division,
	district, upazila, address_line, note, payment_method, sub_total_cents,
	delivery_charge_cents, total_cents, status, created_at, updated_at,
	COALESCE(external_id, '')`

func scanOrder(row pgx.Row, o *Order) error {
	var payment, status string
	err := row.Scan(&o.ID, &o.OrderNo, &o.UserID,
		&o.Shipping.FullName, &o.Shipping.Phone1, &o.Shipping.Phone2,
		&o.Shipping.Division, &o.Shipping.District, &o.Shipping.Upazila,
		&o.Shipping.AddressLine, &o.Shipping.Note, &payment,
		&o.SubTotalCents, &o.DeliveryChargeCents, &o.TotalCents, &status,
		&o.CreatedAt, &o.UpdatedAt, &o.ExternalID)
	if err != nil {
		return err
	}
	o.PaymentMethod = PaymentMethod(payment)
	o.Status = Status(status)
	return nil
}

func (r *PGStore) Get(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id), &o)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGStore) GetByExternalID(ctx context.Context, externalID string) (*Order, error) {
	var o Order
	err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE external_id=$1`, externalID), &o)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateStatus is a compare-and-swap: the write lands only when the
// stored status still equals from, so concurrent transitions serialize
// on the row the same way TryReserve serializes on the stock counter.
func (r *PGStore) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=now()
		WHERE id=$1 AND status=$2`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	var cur string
	err = r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	return ErrStatusConflict
}

func (r *PGStore) ListByUser(ctx context.Context, userID string, st Status) ([]Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if st == "" {
		rows, err = r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders
			WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	} else {
		rows, err = r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders
			WHERE user_id=$1 AND status=$2 ORDER BY created_at DESC`, userID, string(st))
	}
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *PGStore) ListAll(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *PGStore) collect(ctx context.Context, rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	refs := make([]*Order, len(out))
	for i := range out {
		refs[i] = &out[i]
	}
	if err := r.loadItems(ctx, refs); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PGStore) loadItems(ctx context.Context, os []*Order) error {
	byID := make(map[string]*Order, len(os))
	args := make([]any, 0, len(os))
	params := ""
	for i, o := range os {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		args = append(args, o.ID)
		byID[o.ID] = o
	}
	if len(args) == 0 {
		return nil
	}
	rows, err := r.DB.Query(ctx, `SELECT order_id, product_id, title, image, variant,
		qty, price_cents FROM order_items
		WHERE order_id IN (`+params+`) ORDER BY order_id, line_no`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var oid string
		var ln Line
		if err := rows.Scan(&oid, &ln.ProductID, &ln.Title, &ln.Image, &ln.Variant,
			&ln.Qty, &ln.PriceCents); err != nil {
			return err
		}
		if o, ok := byID[oid]; ok {
			o.Items = append(o.Items, ln)
		}
	}
	return rows.Err()
}
