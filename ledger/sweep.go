package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SweeperActor is the actor recorded for background sweeps.
var SweeperActor = Actor{ID: "system:sweeper", Name: "Sweeper"}

// SweepReport summarises one sweep. Notifications only include alerts that
// were actually raised; cooling-down alerts are skipped silently.
type SweepReport struct {
	LowStock           []Notification
	PaymentDue         []Notification
	OverdueInvoices    []Invoice
	CatchUp            []PaymentCollection
	OverdueCollections int
	OverdueAmount      decimal.Decimal
}

// SweepLowStock checks every product against its threshold. Time-based
// alerts can't be raised by an event, so this is how an unchanged low
// product gets re-alerted once its cooldown expires.
func (d *Dispatcher) SweepLowStock(ctx context.Context, actor Actor) (SweepReport, error) {
	var rep SweepReport
	err := d.atomically(ctx, "sweep_low_stock", actor, func(ctx context.Context, s Store) error {
		rep = SweepReport{}
		products, err := s.ListProducts(ctx)
		if err != nil {
			return fmt.Errorf("failed to list products: %w", err)
		}
		for _, p := range products {
			n, err := d.Alerts.CheckLowStock(ctx, s, p, p.StockQuantity)
			if err != nil {
				return err
			}
			rep.LowStock = appendNotification(rep.LowStock, n)
		}
		return nil
	})
	return rep, err
}

// SweepOverdue raises payment-due alerts, marks pending invoices past their
// due date overdue, and makes sure every positive balance has a pending
// collection.
func (d *Dispatcher) SweepOverdue(ctx context.Context, actor Actor) (SweepReport, error) {
	var rep SweepReport
	err := d.atomically(ctx, "sweep_overdue", actor, func(ctx context.Context, s Store) error {
		rep = SweepReport{}
		now := d.clock.Now()

		invoices, err := s.ListInvoices(ctx, InvoicePending)
		if err != nil {
			return fmt.Errorf("failed to list pending invoices: %w", err)
		}
		for _, inv := range invoices {
			if !inv.DueDate.Before(now) {
				continue
			}
			if err := s.UpdateInvoiceStatus(ctx, inv.ID, InvoicePending, InvoiceOverdue); err != nil {
				return fmt.Errorf("failed to mark invoice %s overdue: %w", inv.ID, err)
			}
			inv.Status = InvoiceOverdue
			rep.OverdueInvoices = append(rep.OverdueInvoices, inv)
		}

		for _, kind := range []PartyKind{PartyCustomer, PartyReseller} {
			parties, err := s.ListParties(ctx, kind)
			if err != nil {
				return fmt.Errorf("failed to list %ss: %w", kind, err)
			}
			for _, p := range parties {
				catchUp, err := d.Collections.EnsureOutstanding(ctx, s, p)
				if err != nil {
					return err
				}
				if catchUp != nil {
					rep.CatchUp = append(rep.CatchUp, *catchUp)
				}
				if kind != PartyCustomer {
					continue
				}
				n, err := d.Alerts.CheckPaymentDue(ctx, s, p)
				if err != nil {
					return err
				}
				rep.PaymentDue = appendNotification(rep.PaymentDue, n)
			}
		}

		pending, err := s.Collections(ctx, CollectionFilter{Status: CollectionPending})
		if err != nil {
			return fmt.Errorf("failed to list pending collections: %w", err)
		}
		overdue := dueBy(pending, now)
		rep.OverdueCollections = len(overdue)
		rep.OverdueAmount = decimal.Zero
		for _, col := range overdue {
			owed, err := d.Collections.Outstanding(ctx, s, col)
			if err != nil {
				return err
			}
			rep.OverdueAmount = rep.OverdueAmount.Add(owed)
		}
		return nil
	})
	return rep, err
}

// Sweep runs both sweeps, each in its own unit of work.
func (d *Dispatcher) Sweep(ctx context.Context, actor Actor) (SweepReport, error) {
	low, err := d.SweepLowStock(ctx, actor)
	if err != nil {
		return SweepReport{}, err
	}
	rep, err := d.SweepOverdue(ctx, actor)
	if err != nil {
		return SweepReport{}, err
	}
	rep.LowStock = low.LowStock

	d.log.Info("sweep finished",
		zap.Int("low_stock", len(rep.LowStock)),
		zap.Int("payment_due", len(rep.PaymentDue)),
		zap.Int("overdue_invoices", len(rep.OverdueInvoices)),
		zap.Int("catch_up", len(rep.CatchUp)),
		zap.Int("overdue_collections", rep.OverdueCollections),
		zap.String("overdue_amount", rep.OverdueAmount.StringFixed(MoneyPlaces)),
	)
	return rep, nil
}
