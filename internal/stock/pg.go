package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger implements Ledger on Postgres. The check-and-decrement is a
// single conditional UPDATE, so two instances racing on the same row
// cannot both win the last unit: the row predicate rechecks stock under
// the row lock the UPDATE takes.
type PGLedger struct{ DB *pgxpool.Pool }

func (l *PGLedger) Read(ctx context.Context, productID, variant string) (int, error) {
	var stock int
	var err error
	if variant == "" {
		err = l.DB.QueryRow(ctx, `
			SELECT stock FROM products WHERE id=$1 AND is_active`, productID).Scan(&stock)
	} else {
		err = l.DB.QueryRow(ctx, `
			SELECT v.stock FROM product_variants v
			JOIN products p ON p.id = v.product_id
			WHERE v.product_id=$1 AND v.name=$2 AND p.is_active`, productID, variant).Scan(&stock)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInvalidTarget
	}
	if err != nil {
		return 0, err
	}
	return stock, nil
}

func (l *PGLedger) TryReserve(ctx context.Context, productID, variant string, qty int) error {
	if qty < 1 {
		return ErrInvalidQty
	}
	var ct pgconn.CommandTag
	var err error
	if variant == "" {
		ct, err = l.DB.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id=$1 AND is_active AND stock >= $2`, productID, qty)
	} else {
		ct, err = l.DB.Exec(ctx, `
			UPDATE product_variants v SET stock = v.stock - $3
			FROM products p
			WHERE v.product_id=$1 AND v.name=$2 AND p.id = v.product_id
			  AND p.is_active AND v.stock >= $3`, productID, variant, qty)
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	// Zero rows matched: either the target is bad or the stock check
	// failed. Probe existence to pick the error; a reservation that lost
	// a race lands on ErrInsufficientStock like genuine exhaustion.
	return l.classifyMiss(ctx, productID, variant)
}

func (l *PGLedger) Release(ctx context.Context, productID, variant string, qty int) error {
	if qty < 1 {
		return ErrInvalidQty
	}
	var ct pgconn.CommandTag
	var err error
	if variant == "" {
		// No is_active predicate: stock is restored even to a product
		// that was deactivated after the order was placed.
		ct, err = l.DB.Exec(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now()
			WHERE id=$1`, productID, qty)
	} else {
		ct, err = l.DB.Exec(ctx, `
			UPDATE product_variants SET stock = stock + $3
			WHERE product_id=$1 AND name=$2`, productID, variant, qty)
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrInvalidTarget
	}
	return nil
}

func (l *PGLedger) classifyMiss(ctx context.Context, productID, variant string) error {
	var active bool
	var err error
	if variant == "" {
		err = l.DB.QueryRow(ctx, `
			SELECT is_active FROM products WHERE id=$1`, productID).Scan(&active)
	} else {
		err = l.DB.QueryRow(ctx, `
			SELECT p.is_active FROM product_variants v
			JOIN products p ON p.id = v.product_id
			WHERE v.product_id=$1 AND v.name=$2`, productID, variant).Scan(&active)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInvalidTarget
	}
	if err != nil {
		return err
	}
	if !active {
		return ErrInvalidTarget
	}
	return ErrInsufficientStock
}
