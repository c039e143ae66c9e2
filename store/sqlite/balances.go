package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// BALANCE STORE
// =============================================================================

const partyColumns = `kind, id, name, phone, email, account_code, payment_terms_days,
	credit_limit_cents, commission_rate, balance_cents, balance_since, created_at, created_by`

func (c *conn) CreateParty(ctx context.Context, p ledger.Party) error {
	var rate sql.NullString
	if p.CommissionRate.Valid {
		rate = sql.NullString{String: p.CommissionRate.Decimal.String(), Valid: true}
	}
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO parties (`+partyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Kind, p.ID, p.Name, p.Phone, p.Email, p.AccountCode, p.PaymentTermsDays,
		toCents(p.CreditLimit), rate, toCents(p.Balance), formatNullTime(p.BalanceSince),
		formatTime(p.CreatedAt), p.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", p.Kind, err)
	}
	return nil
}

func (c *conn) GetParty(ctx context.Context, ref ledger.PartyRef) (ledger.Party, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE kind = ? AND id = ?`, ref.Kind, ref.ID)
	p, err := scanParty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Party{}, notFound(string(ref.Kind), ref.ID)
	}
	return p, err
}

func (c *conn) ListParties(ctx context.Context, kind ledger.PartyKind) ([]ledger.Party, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+partyColumns+` FROM parties WHERE kind = ? ORDER BY account_code, id`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query parties: %w", err)
	}
	defer rows.Close()

	var out []ledger.Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanParty(row scanner) (ledger.Party, error) {
	var (
		p                    ledger.Party
		creditLimit, balance int64
		rate, balanceSince   sql.NullString
		createdAt            string
	)
	err := row.Scan(&p.Kind, &p.ID, &p.Name, &p.Phone, &p.Email, &p.AccountCode,
		&p.PaymentTermsDays, &creditLimit, &rate, &balance, &balanceSince,
		&createdAt, &p.CreatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan party: %w", err)
	}
	p.CreditLimit = fromCents(creditLimit)
	p.Balance = fromCents(balance)
	if rate.Valid {
		d, err := decimal.NewFromString(rate.String)
		if err != nil {
			return p, fmt.Errorf("failed to parse commission rate %q: %w", rate.String, err)
		}
		p.CommissionRate = decimal.NewNullDecimal(d)
	}
	if p.BalanceSince, err = parseNullTime(balanceSince); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	return p, nil
}

// ApplyBalanceEntry increments the balance and appends the entry. SET
// expressions see the pre-update row, so balance_since is set when the
// balance crosses from <= 0 to > 0 and cleared when it drops to <= 0.
func (c *conn) ApplyBalanceEntry(ctx context.Context, e ledger.BalanceEntry) (decimal.Decimal, error) {
	delta := toCents(e.Delta)
	var after int64
	err := c.q.QueryRowContext(ctx, `
		UPDATE parties SET
			balance_cents = balance_cents + ?,
			balance_since = CASE
				WHEN balance_cents + ? <= 0 THEN NULL
				WHEN balance_cents <= 0 THEN ?
				ELSE balance_since
			END
		WHERE kind = ? AND id = ?
		RETURNING balance_cents`,
		delta, delta, formatTime(e.CreatedAt), e.Party.Kind, e.Party.ID,
	).Scan(&after)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, notFound(string(e.Party.Kind), e.Party.ID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to increment balance: %w", err)
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO balance_entries
		(id, party_kind, party_id, delta_cents, reason, ref_kind, ref_id,
		 balance_after_cents, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Party.Kind, e.Party.ID, delta, e.Reason, e.Reference.Kind, e.Reference.ID,
		after, e.ActorID, formatTime(e.CreatedAt),
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to insert balance entry: %w", err)
	}
	return fromCents(after), nil
}

func (c *conn) BalanceEntries(ctx context.Context, ref ledger.PartyRef) ([]ledger.BalanceEntry, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, party_kind, party_id, delta_cents, reason, ref_kind, ref_id,
		       balance_after_cents, actor_id, created_at
		FROM balance_entries
		WHERE party_kind = ? AND party_id = ?
		ORDER BY seq`, ref.Kind, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.BalanceEntry
	for rows.Next() {
		var (
			e            ledger.BalanceEntry
			delta, after int64
			createdAt    string
		)
		if err := rows.Scan(&e.ID, &e.Party.Kind, &e.Party.ID, &delta, &e.Reason,
			&e.Reference.Kind, &e.Reference.ID, &after, &e.ActorID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance entry: %w", err)
		}
		e.Delta = fromCents(delta)
		e.BalanceAfter = fromCents(after)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// NUMBER STORE
// =============================================================================

// NextSequence advances the scope's counter. The transaction holds SQLite's
// write lock from BEGIN IMMEDIATE, so the read and the update can't
// interleave with another writer.
func (c *conn) NextSequence(ctx context.Context, scope string, seed func() (int64, error)) (int64, error) {
	var last int64
	err := c.q.QueryRowContext(ctx,
		`SELECT last_value FROM number_sequences WHERE scope = ?`, scope).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if last, err = seed(); err != nil {
			return 0, fmt.Errorf("failed to seed sequence %s: %w", scope, err)
		}
		if _, err := c.q.ExecContext(ctx,
			`INSERT INTO number_sequences (scope, last_value) VALUES (?, ?)`, scope, last); err != nil {
			return 0, fmt.Errorf("failed to create sequence %s: %w", scope, err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to read sequence %s: %w", scope, err)
	}

	var next int64
	err = c.q.QueryRowContext(ctx, `
		UPDATE number_sequences SET last_value = last_value + 1
		WHERE scope = ?
		RETURNING last_value`, scope).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", scope, err)
	}
	return next, nil
}

func (c *conn) MaxRegisteredSuffix(ctx context.Context, prefix string) (int64, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT number FROM document_numbers WHERE substr(number, 1, ?) = ?`, len(prefix), prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to query document numbers: %w", err)
	}
	defer rows.Close()

	var highest int64
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return 0, fmt.Errorf("failed to scan document number: %w", err)
		}
		if n, ok := ledger.ParseSuffix(number, prefix); ok && n > highest {
			highest = n
		}
	}
	return highest, rows.Err()
}

func (c *conn) RegisterNumber(ctx context.Context, number, scope string, at time.Time) error {
	_, err := c.q.ExecContext(ctx,
		`INSERT INTO document_numbers (number, scope, issued_at) VALUES (?, ?, ?)`,
		number, scope, formatTime(at))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%s: %w", number, ledger.ErrDuplicateNumber)
		}
		return fmt.Errorf("failed to register number: %w", err)
	}
	return nil
}
