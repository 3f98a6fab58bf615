package orderline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-panel/internal/domain"
)

const lineColumns = `id::text, product_id::text, name, unit_price_cents, quantity, options, customer, COALESCE(image, ''), basket_id, processed, hidden, created_at`

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) ListByProduct(ctx context.Context, productID string) ([]domain.OrderLine, error) {
	q := `SELECT ` + lineColumns + ` FROM order_lines`
	var args []any
	if productID != "" {
		q += ` WHERE product_id = $1`
		args = append(args, productID)
	}
	q += ` ORDER BY created_at ASC, id ASC`

	lines, err := r.query(ctx, q, args...)
	if err != nil {
		if isInvalidID(err) {
			return nil, nil
		}
		r.logger.Printf("order line repo: list product_id=%q error=%v", productID, err)
		return nil, err
	}
	r.logger.Printf("order line repo: list product_id=%q count=%d", productID, len(lines))
	return lines, nil
}

func (r *postgresRepo) ListByBasket(ctx context.Context, basketID string) ([]domain.OrderLine, error) {
	q := `SELECT ` + lineColumns + ` FROM order_lines WHERE basket_id = $1 ORDER BY created_at ASC, id ASC`
	lines, err := r.query(ctx, q, basketID)
	if err != nil {
		r.logger.Printf("order line repo: list basket_id=%s error=%v", basketID, err)
		return nil, err
	}
	r.logger.Printf("order line repo: list basket_id=%s count=%d", basketID, len(lines))
	return lines, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.OrderLine, error) {
	q := `SELECT ` + lineColumns + ` FROM order_lines WHERE id = $1`
	line, err := scanLine(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("order line repo: get id=%s error=%v", id, err)
		return nil, err
	}
	return &line, nil
}

func (r *postgresRepo) CreateMany(ctx context.Context, lines []domain.OrderLine) ([]domain.OrderLine, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `
INSERT INTO order_lines (product_id, name, unit_price_cents, quantity, options, customer, image, basket_id)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
RETURNING ` + lineColumns

	out := make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		opts, customer, err := encodeJSON(l)
		if err != nil {
			return nil, err
		}
		created, err := scanLine(tx.QueryRow(ctx, q, l.ProductID, l.Name, l.UnitPriceCents, l.Quantity, opts, customer, l.Image, l.BasketID))
		if err != nil {
			r.logger.Printf("order line repo: create product_id=%s error=%v", l.ProductID, err)
			return nil, err
		}
		out = append(out, created)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	r.logger.Printf("order line repo: created count=%d", len(out))
	return out, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, l domain.OrderLine) (*domain.OrderLine, error) {
	const q = `
INSERT INTO order_lines (id, product_id, name, unit_price_cents, quantity, options, customer, image, basket_id, processed, hidden, created_at)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, COALESCE($12, now()))
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    unit_price_cents = EXCLUDED.unit_price_cents,
    quantity = EXCLUDED.quantity,
    options = EXCLUDED.options,
    customer = EXCLUDED.customer,
    image = EXCLUDED.image,
    basket_id = EXCLUDED.basket_id,
    processed = EXCLUDED.processed,
    hidden = EXCLUDED.hidden
RETURNING ` + lineColumns

	opts, customer, err := encodeJSON(l)
	if err != nil {
		return nil, err
	}
	var createdAt any
	if !l.CreatedAt.IsZero() {
		createdAt = l.CreatedAt
	}
	res, err := scanLine(r.pool.QueryRow(ctx, q, l.ID, l.ProductID, l.Name, l.UnitPriceCents, l.Quantity, opts, customer, l.Image, l.BasketID, l.Processed, l.Hidden, createdAt))
	if err != nil {
		r.logger.Printf("order line repo: upsert id=%s error=%v", l.ID, err)
		return nil, err
	}
	return &res, nil
}

func (r *postgresRepo) SetProcessed(ctx context.Context, id string) error {
	if err := setProcessed(ctx, r.pool, id); err != nil {
		r.logger.Printf("order line repo: set processed id=%s error=%v", id, err)
		return err
	}
	r.logger.Printf("order line repo: processed id=%s", id)
	return nil
}

func (r *postgresRepo) SetProcessedMany(ctx context.Context, ids []string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, id := range ids {
		if err := setProcessed(ctx, tx, id); err != nil {
			r.logger.Printf("order line repo: set processed batch id=%s error=%v", id, err)
			return fmt.Errorf("line %s: %w", id, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.logger.Printf("order line repo: processed batch count=%d", len(ids))
	return nil
}

func (r *postgresRepo) ToggleHidden(ctx context.Context, id string) (bool, error) {
	var hidden bool
	err := r.pool.QueryRow(ctx, `UPDATE order_lines SET hidden = NOT hidden WHERE id = $1 RETURNING hidden`, id).Scan(&hidden)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return false, domain.ErrNotFound
		}
		r.logger.Printf("order line repo: toggle hidden id=%s error=%v", id, err)
		return false, err
	}
	r.logger.Printf("order line repo: hidden id=%s value=%t", id, hidden)
	return hidden, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func setProcessed(ctx context.Context, db execer, id string) error {
	cmd, err := db.Exec(ctx, `UPDATE order_lines SET processed = true WHERE id = $1`, id)
	if err != nil {
		if isInvalidID(err) {
			return domain.ErrNotFound
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) query(ctx context.Context, q string, args ...any) ([]domain.OrderLine, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanLine(row pgx.Row) (domain.OrderLine, error) {
	var (
		line     domain.OrderLine
		opts     []byte
		customer []byte
	)
	if err := row.Scan(
		&line.ID,
		&line.ProductID,
		&line.Name,
		&line.UnitPriceCents,
		&line.Quantity,
		&opts,
		&customer,
		&line.Image,
		&line.BasketID,
		&line.Processed,
		&line.Hidden,
		&line.CreatedAt,
	); err != nil {
		return line, err
	}
	if len(opts) > 0 {
		if err := json.Unmarshal(opts, &line.Options); err != nil {
			return line, fmt.Errorf("decode options for line %s: %w", line.ID, err)
		}
	}
	if len(customer) > 0 && string(customer) != "null" {
		var c domain.CustomerSnapshot
		// a malformed snapshot is treated as absent
		if err := json.Unmarshal(customer, &c); err == nil {
			line.Customer = &c
		}
	}
	return line, nil
}

func encodeJSON(l domain.OrderLine) (opts []byte, customer any, err error) {
	options := l.Options
	if options == nil {
		options = domain.Options{}
	}
	opts, err = json.Marshal(options)
	if err != nil {
		return nil, nil, fmt.Errorf("encode options: %w", err)
	}
	if l.Customer != nil {
		raw, err := json.Marshal(l.Customer)
		if err != nil {
			return nil, nil, fmt.Errorf("encode customer: %w", err)
		}
		customer = raw
	}
	return opts, customer, nil
}

// isInvalidID reports a malformed uuid, which can never match a row.
func isInvalidID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
