package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrProductNotFound = errors.New("product not found")

type Repo struct{ DB *pgxpool.Pool }

const productCols = `id, title, category_id, price_cents, compare_at_cents,
	images, description, delivery_days, is_active, stock, created_at, updated_at`

func scanProduct(row pgx.Row, p *Product) error {
	return row.Scan(&p.ID, &p.Title, &p.CategoryID, &p.PriceCents, &p.CompareAtCents,
		&p.Images, &p.Description, &p.DeliveryDays, &p.IsActive, &p.Stock,
		&p.CreatedAt, &p.UpdatedAt)
}

func (r *Repo) Get(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id), &p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadVariants(ctx, map[string]*Product{p.ID: &p}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ListActive(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products
		WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byID := make(map[string]*Product, len(out))
	for i := range out {
		byID[out[i].ID] = &out[i]
	}
	if err := r.loadVariants(ctx, byID); err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveByIDs returns the active products among ids, keyed by id.
// Missing and inactive products are simply absent from the result; the
// caller decides whether that is an error.
func (r *Repo) ActiveByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	if len(ids) == 0 {
		return map[string]Product{}, nil
	}
	args := make([]any, 0, len(ids))
	params := ""
	for i, id := range ids {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products
		WHERE is_active AND id IN (`+params+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*Product)
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadVariants(ctx, byID); err != nil {
		return nil, err
	}

	out := make(map[string]Product, len(byID))
	for id, p := range byID {
		out[id] = *p
	}
	return out, nil
}

func (r *Repo) loadVariants(ctx context.Context, byID map[string]*Product) error {
	if len(byID) == 0 {
		return nil
	}
	args := make([]any, 0, len(byID))
	params := ""
	i := 0
	for id := range byID {
		if i > 0 {
			params += ","
		}
		i++
		params += fmt.Sprintf("$%d", i)
		args = append(args, id)
	}
	rows, err := r.DB.Query(ctx, `SELECT product_id, name, stock FROM product_variants
		WHERE product_id IN (`+params+`) ORDER BY product_id, name`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var pid string
		var v Variant
		if err := rows.Scan(&pid, &v.Name, &v.Stock); err != nil {
			return err
		}
		if p, ok := byID[pid]; ok {
			p.Variants = append(p.Variants, v)
		}
	}
	return rows.Err()
}

// Create inserts a product with its variants. This is the only place
// initial stock values are written outside the stock package.
func (r *Repo) Create(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO products(id, title, category_id, price_cents, compare_at_cents,
			images, description, delivery_days, is_active, stock)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.Title, p.CategoryID, p.PriceCents, p.CompareAtCents,
		p.Images, p.Description, p.DeliveryDays, p.IsActive, p.Stock)
	if err != nil {
		return err
	}
	for _, v := range p.Variants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO product_variants(product_id, name, stock)
			VALUES ($1,$2,$3)`, p.ID, v.Name, v.Stock); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Update rewrites catalog fields and reconciles the variant set without
// ever touching stock counters: removed variants are deleted, new names
// are inserted with their initial stock, existing ones are left alone.
func (r *Repo) Update(ctx context.Context, p *Product) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE products SET title=$2, category_id=$3, price_cents=$4,
			compare_at_cents=$5, images=$6, description=$7, delivery_days=$8,
			is_active=$9, updated_at=now()
		WHERE id=$1`,
		p.ID, p.Title, p.CategoryID, p.PriceCents, p.CompareAtCents,
		p.Images, p.Description, p.DeliveryDays, p.IsActive)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	names := make([]any, 0, len(p.Variants)+1)
	names = append(names, p.ID)
	params := ""
	for i, v := range p.Variants {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+2)
		names = append(names, v.Name)
	}
	if len(p.Variants) == 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM product_variants WHERE product_id=$1`, p.ID); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(ctx, `DELETE FROM product_variants
			WHERE product_id=$1 AND name NOT IN (`+params+`)`, names...); err != nil {
			return err
		}
		for _, v := range p.Variants {
			if _, err := tx.Exec(ctx, `
				INSERT INTO product_variants(product_id, name, stock)
				VALUES ($1,$2,$3)
				ON CONFLICT (product_id, name) DO NOTHING`, p.ID, v.Name, v.Stock); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
