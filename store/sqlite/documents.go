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
// SALES
// =============================================================================

func (c *conn) CreateSale(ctx context.Context, s ledger.Sale) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO sales
		(id, status, customer_id, reseller_id, subtotal_cents, total_cents, is_taxed,
		 tax_cents, commission_cents, payment_method, notes, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Status, s.CustomerID, s.ResellerID, toCents(s.Subtotal), toCents(s.TotalAmount),
		boolInt(s.IsTaxed), toCents(s.TaxAmount), toCents(s.Commission), s.PaymentMethod,
		s.Notes, s.ActorID, formatTime(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}

	for i, it := range s.Items {
		_, err := c.q.ExecContext(ctx, `
			INSERT INTO sale_items
			(sale_id, line_no, product_id, quantity, unit_price_cents, dealership_price_cents, line_total_cents)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.ID, i+1, it.ProductID, it.Quantity, toCents(it.UnitPrice),
			toCents(it.DealershipPrice), toCents(it.LineTotal),
		)
		if err != nil {
			return fmt.Errorf("failed to insert sale item %d: %w", i+1, err)
		}
	}
	return nil
}

func (c *conn) GetSale(ctx context.Context, id ledger.SaleID) (ledger.Sale, error) {
	var (
		s                                       ledger.Sale
		subtotal, total, tax, commission, taxed int64
		createdAt                               string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT id, status, customer_id, reseller_id, subtotal_cents, total_cents, is_taxed,
		       tax_cents, commission_cents, payment_method, notes, actor_id, created_at
		FROM sales WHERE id = ?`, id,
	).Scan(&s.ID, &s.Status, &s.CustomerID, &s.ResellerID, &subtotal, &total, &taxed,
		&tax, &commission, &s.PaymentMethod, &s.Notes, &s.ActorID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Sale{}, notFound("sale", id)
	}
	if err != nil {
		return ledger.Sale{}, fmt.Errorf("failed to scan sale: %w", err)
	}
	s.Subtotal = fromCents(subtotal)
	s.TotalAmount = fromCents(total)
	s.IsTaxed = taxed != 0
	s.TaxAmount = fromCents(tax)
	s.Commission = fromCents(commission)
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Sale{}, err
	}

	rows, err := c.q.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price_cents, dealership_price_cents, line_total_cents
		FROM sale_items WHERE sale_id = ? ORDER BY line_no`, id)
	if err != nil {
		return ledger.Sale{}, fmt.Errorf("failed to query sale items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it                      ledger.SaleItem
			price, dealership, line int64
		)
		if err := rows.Scan(&it.ProductID, &it.Quantity, &price, &dealership, &line); err != nil {
			return ledger.Sale{}, fmt.Errorf("failed to scan sale item: %w", err)
		}
		it.UnitPrice = fromCents(price)
		it.DealershipPrice = fromCents(dealership)
		it.LineTotal = fromCents(line)
		s.Items = append(s.Items, it)
	}
	return s, rows.Err()
}

// UpdateSaleStatus is a compare-and-set on the current status.
func (c *conn) UpdateSaleStatus(ctx context.Context, id ledger.SaleID, from, to ledger.SaleStatus) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE sales SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update sale status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		if _, err := c.GetSale(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("sale %s is no longer %s: %w", id, from, ledger.ErrStaleStatus)
	}
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (c *conn) CreatePayment(ctx context.Context, p ledger.Payment) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO payments
		(id, party_kind, party_id, invoice_id, amount_cents, method, reference, notes, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Party.Kind, p.Party.ID, p.InvoiceID, toCents(p.Amount), p.Method,
		p.Reference, p.Notes, p.ActorID, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (c *conn) InvoicePaymentsTotal(ctx context.Context, id ledger.InvoiceID) (decimal.Decimal, error) {
	var cents int64
	err := c.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE invoice_id = ?`, id,
	).Scan(&cents)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payments for invoice %s: %w", id, err)
	}
	return fromCents(cents), nil
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `id, number, customer_id, subtotal_cents, tax_cents, total_cents,
	status, issued_at, due_date, notes, actor_id`

func (c *conn) CreateInvoice(ctx context.Context, inv ledger.Invoice) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Number, inv.CustomerID, toCents(inv.Subtotal), toCents(inv.TaxAmount),
		toCents(inv.Total), inv.Status, formatTime(inv.IssuedAt), formatTime(inv.DueDate),
		inv.Notes, inv.ActorID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("invoice %s: %w", inv.Number, ledger.ErrDuplicateNumber)
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	for i, it := range inv.Items {
		_, err := c.q.ExecContext(ctx, `
			INSERT INTO invoice_items
			(invoice_id, line_no, product_id, description, quantity, unit_price_cents, line_total_cents)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, i+1, it.ProductID, it.Description, it.Quantity,
			toCents(it.UnitPrice), toCents(it.LineTotal),
		)
		if err != nil {
			return fmt.Errorf("failed to insert invoice item %d: %w", i+1, err)
		}
	}
	return nil
}

func (c *conn) GetInvoice(ctx context.Context, id ledger.InvoiceID) (ledger.Invoice, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Invoice{}, notFound("invoice", id)
	}
	if err != nil {
		return ledger.Invoice{}, err
	}
	if inv.Items, err = c.invoiceItems(ctx, id); err != nil {
		return ledger.Invoice{}, err
	}
	return inv, nil
}

// ListInvoices returns invoices in number order. An empty status lists all.
func (c *conn) ListInvoices(ctx context.Context, status ledger.InvoiceStatus) ([]ledger.Invoice, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE ? = '' OR status = ?
		ORDER BY number`, status, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}

	var out []ledger.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Items are loaded after the cursor is closed; an in-memory database has a
	// single connection.
	for i := range out {
		if out[i].Items, err = c.invoiceItems(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanInvoice(row scanner) (ledger.Invoice, error) {
	var (
		inv                  ledger.Invoice
		subtotal, tax, total int64
		issuedAt, dueDate    string
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &subtotal, &tax, &total,
		&inv.Status, &issuedAt, &dueDate, &inv.Notes, &inv.ActorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return inv, err
		}
		return inv, fmt.Errorf("failed to scan invoice: %w", err)
	}
	inv.Subtotal = fromCents(subtotal)
	inv.TaxAmount = fromCents(tax)
	inv.Total = fromCents(total)
	if inv.IssuedAt, err = parseTime(issuedAt); err != nil {
		return inv, err
	}
	if inv.DueDate, err = parseTime(dueDate); err != nil {
		return inv, err
	}
	return inv, nil
}

func (c *conn) invoiceItems(ctx context.Context, id ledger.InvoiceID) ([]ledger.InvoiceItem, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT product_id, description, quantity, unit_price_cents, line_total_cents
		FROM invoice_items WHERE invoice_id = ? ORDER BY line_no`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice items: %w", err)
	}
	defer rows.Close()

	var out []ledger.InvoiceItem
	for rows.Next() {
		var (
			it          ledger.InvoiceItem
			price, line int64
		)
		if err := rows.Scan(&it.ProductID, &it.Description, &it.Quantity, &price, &line); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		it.UnitPrice = fromCents(price)
		it.LineTotal = fromCents(line)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (c *conn) UpdateInvoiceStatus(ctx context.Context, id ledger.InvoiceID, from, to ledger.InvoiceStatus) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE invoices SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		var exists int
		err := c.q.QueryRowContext(ctx, `SELECT 1 FROM invoices WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("invoice", id)
		}
		return fmt.Errorf("invoice %s is no longer %s: %w", id, from, ledger.ErrStaleStatus)
	}
	return nil
}

// =============================================================================
// RECEIPTS, STOCK TAKES, LOSSES
// =============================================================================

func (c *conn) CreateReceipt(ctx context.Context, r ledger.Receipt) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO receipts (id, number, sale_id, amount_cents, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Number, r.SaleID, toCents(r.Amount), r.ActorID, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

func (c *conn) ReceiptForSale(ctx context.Context, id ledger.SaleID) (ledger.Receipt, error) {
	var (
		r         ledger.Receipt
		amount    int64
		createdAt string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT id, number, sale_id, amount_cents, actor_id, created_at
		FROM receipts WHERE sale_id = ?`, id,
	).Scan(&r.ID, &r.Number, &r.SaleID, &amount, &r.ActorID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Receipt{}, notFound("receipt for sale", id)
	}
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to scan receipt: %w", err)
	}
	r.Amount = fromCents(amount)
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Receipt{}, err
	}
	return r, nil
}

func (c *conn) CreateStockTake(ctx context.Context, st ledger.StockTake) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO stock_takes
		(id, product_id, system_quantity, counted_quantity, difference, notes, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.ProductID, st.SystemQuantity, st.CountedQuantity, st.Difference,
		st.Notes, st.ActorID, formatTime(st.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert stock take: %w", err)
	}
	return nil
}

func (c *conn) CreateLoss(ctx context.Context, l ledger.Loss) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO losses
		(id, loss_type, product_id, customer_id, quantity, unit_cost_cents, total_cents,
		 description, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Type, l.ProductID, l.CustomerID, l.Quantity, toCents(l.UnitCost),
		toCents(l.Total), l.Description, l.ActorID, formatTime(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert loss: %w", err)
	}
	return nil
}

func (c *conn) CreateExpense(ctx context.Context, e ledger.Expense) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO expenses
		(id, expense_type, category, description, amount_cents, reference, notes,
		 recurring, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Category, e.Description, toCents(e.Amount), e.Reference,
		e.Notes, e.Recurring, e.ActorID, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return nil
}
