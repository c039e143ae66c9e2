package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// INVENTORY STORE
// =============================================================================

const productColumns = `id, code, name, category, unit_cost_cents, sale_price_cents,
	stock_quantity, low_stock_threshold, created_at, created_by`

func (c *conn) CreateProduct(ctx context.Context, p ledger.Product) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Code, p.Name, p.Category, toCents(p.UnitCost), toCents(p.SalePrice),
		p.StockQuantity, p.LowStockThreshold, formatTime(p.CreatedAt), p.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (c *conn) GetProduct(ctx context.Context, id ledger.ProductID) (ledger.Product, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Product{}, notFound("product", id)
	}
	return p, err
}

func (c *conn) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	rows, err := c.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY code, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []ledger.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row scanner) (ledger.Product, error) {
	var (
		p                   ledger.Product
		unitCost, salePrice int64
		createdAt           string
	)
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &unitCost, &salePrice,
		&p.StockQuantity, &p.LowStockThreshold, &createdAt, &p.CreatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan product: %w", err)
	}
	p.UnitCost = fromCents(unitCost)
	p.SalePrice = fromCents(salePrice)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	return p, nil
}

// ApplyMovement increments stock and appends the movement. The increment
// happens in SQL; the returned quantity is what the row holds afterwards.
func (c *conn) ApplyMovement(ctx context.Context, m ledger.StockMovement) (int64, error) {
	var qty int64
	err := c.q.QueryRowContext(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + ?
		WHERE id = ?
		RETURNING stock_quantity`,
		m.Delta, m.ProductID,
	).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("product", m.ProductID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment stock: %w", err)
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO stock_movements
		(id, product_id, delta, kind, reason, ref_kind, ref_id, unit_cost_cents,
		 quantity_after, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProductID, m.Delta, m.Kind, m.Reason, m.Reference.Kind, m.Reference.ID,
		toCents(m.UnitCost), qty, m.ActorID, formatTime(m.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert movement: %w", err)
	}
	return qty, nil
}

func (c *conn) SetUnitCost(ctx context.Context, id ledger.ProductID, cost decimal.Decimal) error {
	res, err := c.q.ExecContext(ctx, `UPDATE products SET unit_cost_cents = ? WHERE id = ?`, toCents(cost), id)
	if err != nil {
		return fmt.Errorf("failed to update unit cost: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("product", id)
	}
	return nil
}

func (c *conn) Movements(ctx context.Context, id ledger.ProductID) ([]ledger.StockMovement, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, product_id, delta, kind, reason, ref_kind, ref_id, unit_cost_cents,
		       quantity_after, actor_id, created_at
		FROM stock_movements
		WHERE product_id = ?
		ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var out []ledger.StockMovement
	for rows.Next() {
		var (
			m         ledger.StockMovement
			unitCost  int64
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Delta, &m.Kind, &m.Reason,
			&m.Reference.Kind, &m.Reference.ID, &unitCost, &m.QuantityAfter,
			&m.ActorID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		m.UnitCost = fromCents(unitCost)
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
