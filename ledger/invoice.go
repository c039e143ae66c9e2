package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InvoiceItemDraft is one invoice line. Lines without a product need a
// description and a unit price.
type InvoiceItemDraft struct {
	ProductID   ProductID           `json:"product_id"`
	Description string              `json:"description" validate:"required_without=ProductID"`
	Quantity    int64               `json:"quantity" validate:"min=1"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
}

type InvoiceDraft struct {
	Actor      Actor              `json:"actor"`
	CustomerID PartyID            `json:"customer_id" validate:"required"`
	Items      []InvoiceItemDraft `json:"items" validate:"required,min=1,dive"`
	// DueDate defaults to the issue date plus Params.InvoiceDueDays.
	DueDate *time.Time `json:"due_date,omitempty"`
	Notes   string     `json:"notes"`
}

type InvoiceResult struct {
	Invoice       Invoice
	Entry         *BalanceEntry
	Collection    *PaymentCollection
	Notifications []Notification
}

func (d *Dispatcher) validateInvoice(draft InvoiceDraft) error {
	if err := d.check(draft); err != nil {
		return err
	}
	for i, it := range draft.Items {
		field := fmt.Sprintf("items[%d].unit_price", i)
		if it.ProductID == "" && !it.UnitPrice.Valid {
			return invalid(field, "is required for lines without a product")
		}
		if it.UnitPrice.Valid && it.UnitPrice.Decimal.IsNegative() {
			return invalid(field, "cannot be negative")
		}
	}
	return nil
}

// RecordInvoice numbers a pending invoice, accrues it on the customer's
// balance and schedules the customer debt.
func (d *Dispatcher) RecordInvoice(ctx context.Context, draft InvoiceDraft) (InvoiceResult, error) {
	if err := d.validateInvoice(draft); err != nil {
		return InvoiceResult{}, err
	}

	var res InvoiceResult
	err := d.atomically(ctx, "record_invoice", draft.Actor, func(ctx context.Context, s Store) error {
		res = InvoiceResult{}
		now := d.clock.Now()

		customer, err := optionalParty(ctx, s, PartyCustomer, draft.CustomerID, "customer_id")
		if err != nil {
			return err
		}

		// 1. primary fact
		inv := Invoice{
			ID:         InvoiceID(newID()),
			CustomerID: customer.ID,
			Status:     InvoicePending,
			IssuedAt:   now,
			DueDate:    AddDays(now, d.params.InvoiceDueDays),
			Notes:      draft.Notes,
			ActorID:    draft.Actor.ID,
		}
		if draft.DueDate != nil {
			inv.DueDate = draft.DueDate.UTC()
		}
		for i, it := range draft.Items {
			line := InvoiceItem{ProductID: it.ProductID, Description: it.Description, Quantity: it.Quantity}
			price := it.UnitPrice.Decimal
			if it.ProductID != "" {
				p, err := s.GetProduct(ctx, it.ProductID)
				if err != nil {
					if errors.Is(err, ErrNotFound) {
						return invalid(fmt.Sprintf("items[%d].product_id", i), "product %s not found", it.ProductID)
					}
					return fmt.Errorf("failed to load product %s: %w", it.ProductID, err)
				}
				if !it.UnitPrice.Valid {
					price = p.SalePrice
				}
				if line.Description == "" {
					line.Description = p.Name
				}
			}
			line.UnitPrice = Money(price)
			line.LineTotal = Money(line.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
			inv.Items = append(inv.Items, line)
			inv.Subtotal = inv.Subtotal.Add(line.LineTotal)
		}
		if d.params.TaxInvoices {
			inv.TaxAmount = Money(inv.Subtotal.Mul(d.params.TaxRate))
		}
		inv.Total = inv.Subtotal.Add(inv.TaxAmount)

		if inv.Number, err = d.Numbers.Next(ctx, s, InvoiceScope(now)); err != nil {
			return err
		}
		if err := s.CreateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		res.Invoice = inv

		// 3. balance
		if inv.Total.IsPositive() {
			e, err := d.Balances.ApplyBalanceDelta(ctx, s, BalanceInput{
				Party:     customer.Ref(),
				Amount:    inv.Total,
				Reason:    BalanceInvoice,
				Reference: Reference{Kind: RefInvoice, ID: string(inv.ID)},
				Actor:     draft.Actor,
			})
			if err != nil {
				return err
			}
			res.Entry = &e
		}

		// 4. collections
		if res.Collection, err = d.Collections.OnInvoiceCreated(ctx, s, inv); err != nil {
			return err
		}

		// 5. alerts
		fresh, err := s.GetParty(ctx, customer.Ref())
		if err != nil {
			return fmt.Errorf("failed to reload %s: %w", customer.Ref(), err)
		}
		n, err := d.Alerts.CheckPaymentDue(ctx, s, fresh)
		if err != nil {
			return err
		}
		res.Notifications = appendNotification(res.Notifications, n)
		return nil
	})
	if err != nil {
		return InvoiceResult{}, err
	}

	d.log.Info("invoice recorded",
		zap.String("invoice_id", string(res.Invoice.ID)),
		zap.String("number", res.Invoice.Number),
		zap.String("total", res.Invoice.Total.StringFixed(MoneyPlaces)),
		zap.String("actor", draft.Actor.ID),
	)
	return res, nil
}
