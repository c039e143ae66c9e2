/*
alert.go - Alert Deduplicator

PURPOSE:
  Raises notifications while suppressing repeats of the same logical alert.
  A repeat is the same (type, related entity) within the cooldown window
  (24h by default). The cooldown slot is claimed in the store with a
  conditional upsert inside the caller's transaction, so two concurrent
  operations can't both raise the same alert.

TYPES:
  low_stock    after a stock-decreasing movement leaves qty <= threshold;
               keyed on the product, so a multi-item sale checks each product
  payment_due  balance > 0 and balance_since + terms days has passed
  stock_alert  raised for each recorded loss; keyed on the product, else the
               customer, else the loss, so repeat losses of one product cool down
  general      informational; never deduplicated

Alerts without a related entity are never deduplicated either: there is no
identity to key the slot on.
*/
package ledger

import (
	"context"
	"fmt"
)

// AlertDeduplicator raises notifications.
type AlertDeduplicator struct {
	params  Params
	clock   Clock
	metrics *Metrics
}

// Raise inserts a notification unless its slot is cooling down. A suppressed
// alert returns (nil, nil).
func (a *AlertDeduplicator) Raise(ctx context.Context, s Store, typ NotificationType, title, message string, related Reference) (*Notification, error) {
	now := a.clock.Now()

	if typ != NotifyGeneral && !related.IsZero() {
		key := AlertKey{Type: typ, Related: related}
		claimed, err := s.ClaimAlert(ctx, key, now, a.params.AlertCooldown)
		if err != nil {
			return nil, fmt.Errorf("failed to claim alert slot %s: %w", key, err)
		}
		if !claimed {
			a.metrics.alert(typ, false)
			return nil, nil
		}
	}

	n := Notification{
		ID:        NotificationID(newID()),
		Type:      typ,
		Title:     title,
		Message:   message,
		Related:   related,
		CreatedAt: now,
	}
	if err := s.InsertNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}
	a.metrics.alert(typ, true)
	return &n, nil
}

// CheckLowStock raises a low-stock alert when qty is at or below threshold.
func (a *AlertDeduplicator) CheckLowStock(ctx context.Context, s Store, p Product, qty int64) (*Notification, error) {
	if !p.IsLowStock(qty) {
		return nil, nil
	}
	return a.Raise(ctx, s, NotifyLowStock, "Low Stock Alert",
		fmt.Sprintf("%s is running low. Current stock: %d", p.Name, qty),
		Reference{Kind: RefProduct, ID: string(p.ID)})
}

// CheckPaymentDue raises a payment-due alert once the party's payment terms
// have elapsed since its balance became positive.
func (a *AlertDeduplicator) CheckPaymentDue(ctx context.Context, s Store, p Party) (*Notification, error) {
	due, ok := p.PaymentDueAt()
	if !ok || a.clock.Now().Before(due) {
		return nil, nil
	}
	return a.Raise(ctx, s, NotifyPaymentDue, "Payment Due",
		fmt.Sprintf("%s has an outstanding balance of $%s, due %s",
			p.Name, p.Balance.StringFixed(MoneyPlaces), due.Format("2006-01-02")),
		Reference{Kind: RefParty, ID: string(p.ID)})
}

// General raises an informational notification.
func (a *AlertDeduplicator) General(ctx context.Context, s Store, title, message string, related Reference) (*Notification, error) {
	return a.Raise(ctx, s, NotifyGeneral, title, message, related)
}
