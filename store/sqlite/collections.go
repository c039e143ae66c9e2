package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// COLLECTION STORE
// =============================================================================

const collectionColumns = `id, party_kind, party_id, collection_type, reason_key, amount_cents,
	due_date, status, sale_id, invoice_id, notes, created_at, resolved_at, resolved_by`

// InsertCollection relies on idx_collections_pending to reject a second
// pending obligation for the same key.
func (c *conn) InsertCollection(ctx context.Context, col ledger.PaymentCollection) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO payment_collections (`+collectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		col.ID, col.Party.Kind, col.Party.ID, col.Type, col.ReasonKey, toCents(col.Amount),
		formatTime(col.DueDate), col.Status, col.SaleID, col.InvoiceID, col.Notes,
		formatTime(col.CreatedAt), formatNullTime(col.ResolvedAt), col.ResolvedBy,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%s/%s/%s: %w", col.Party, col.Type, col.ReasonKey, ledger.ErrDuplicateObligation)
		}
		return fmt.Errorf("failed to insert collection: %w", err)
	}
	return nil
}

func (c *conn) GetCollection(ctx context.Context, id ledger.CollectionID) (ledger.PaymentCollection, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM payment_collections WHERE id = ?`, id)
	col, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.PaymentCollection{}, notFound("collection", id)
	}
	return col, err
}

func (c *conn) FindPendingCollection(ctx context.Context, party ledger.PartyRef, typ ledger.CollectionType, reasonKey string) (ledger.PaymentCollection, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT `+collectionColumns+` FROM payment_collections
		WHERE party_kind = ? AND party_id = ? AND collection_type = ? AND reason_key = ?
		  AND status = 'pending'`,
		party.Kind, party.ID, typ, reasonKey)
	col, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.PaymentCollection{}, notFound("pending collection", reasonKey)
	}
	return col, err
}

func (c *conn) Collections(ctx context.Context, filter ledger.CollectionFilter) ([]ledger.PaymentCollection, error) {
	var (
		where []string
		args  []any
	)
	if filter.Party != nil {
		where = append(where, "party_kind = ? AND party_id = ?")
		args = append(args, filter.Party.Kind, filter.Party.ID)
	}
	if filter.Type != "" {
		where = append(where, "collection_type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + collectionColumns + ` FROM payment_collections`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}
	defer rows.Close()

	var out []ledger.PaymentCollection
	for rows.Next() {
		col, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

func scanCollection(row scanner) (ledger.PaymentCollection, error) {
	var (
		col                ledger.PaymentCollection
		amount             int64
		dueDate, createdAt string
		resolvedAt         sql.NullString
	)
	err := row.Scan(&col.ID, &col.Party.Kind, &col.Party.ID, &col.Type, &col.ReasonKey, &amount,
		&dueDate, &col.Status, &col.SaleID, &col.InvoiceID, &col.Notes, &createdAt,
		&resolvedAt, &col.ResolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return col, err
		}
		return col, fmt.Errorf("failed to scan collection: %w", err)
	}
	col.Amount = fromCents(amount)
	if col.DueDate, err = parseTime(dueDate); err != nil {
		return col, err
	}
	if col.CreatedAt, err = parseTime(createdAt); err != nil {
		return col, err
	}
	if col.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return col, err
	}
	return col, nil
}

// ResolveCollection only moves pending rows; anything else is stale.
func (c *conn) ResolveCollection(ctx context.Context, id ledger.CollectionID, status ledger.CollectionStatus, at time.Time, actorID string) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE payment_collections
		SET status = ?, resolved_at = ?, resolved_by = ?
		WHERE id = ? AND status = 'pending'`,
		status, formatTime(at), actorID, id)
	if err != nil {
		return fmt.Errorf("failed to resolve collection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		if _, err := c.GetCollection(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("collection %s is no longer pending: %w", id, ledger.ErrStaleStatus)
	}
	return nil
}

// =============================================================================
// NOTIFICATION STORE
// =============================================================================

// ClaimAlert stamps the cooldown slot when it is free or older than window.
// The conditional upsert touches no row while the slot is cooling down.
func (c *conn) ClaimAlert(ctx context.Context, key ledger.AlertKey, now time.Time, window time.Duration) (bool, error) {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO alert_cooldowns (alert_key, last_raised_at) VALUES (?, ?)
		ON CONFLICT(alert_key) DO UPDATE SET last_raised_at = excluded.last_raised_at
		WHERE alert_cooldowns.last_raised_at <= ?`,
		key.String(), formatTime(now), formatTime(now.Add(-window)))
	if err != nil {
		return false, fmt.Errorf("failed to claim alert slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (c *conn) InsertNotification(ctx context.Context, n ledger.Notification) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO notifications (id, type, title, message, related_kind, related_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Type, n.Title, n.Message, n.Related.Kind, n.Related.ID, boolInt(n.Read),
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// Notifications returns newest first.
func (c *conn) Notifications(ctx context.Context, unreadOnly bool) ([]ledger.Notification, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, type, title, message, related_kind, related_id, is_read, created_at
		FROM notifications
		WHERE ? = 0 OR is_read = 0
		ORDER BY seq DESC`, boolInt(unreadOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []ledger.Notification
	for rows.Next() {
		var (
			n         ledger.Notification
			read      int
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.Related.Kind,
			&n.Related.ID, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Read = read != 0
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (c *conn) MarkNotificationRead(ctx context.Context, id ledger.NotificationID) error {
	res, err := c.q.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("notification", id)
	}
	return nil
}

func (c *conn) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	res, err := c.q.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE is_read = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}
