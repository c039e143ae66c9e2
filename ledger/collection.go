/*
collection.go - Collection Scheduler

PURPOSE:
  Derives follow-up obligations from sale and invoice events and resolves
  them. Obligations are keyed by (party, type, reason key); the store keeps at
  most one pending collection per key, so a repeated trigger returns the
  existing obligation instead of creating a second one.

RULES:
  sale paid_to_collect      item_to_collect  total       now + item-collect days
  sale collected_to_pay     customer_debt    total       now + customer terms
  reseller commission > 0   reseller_payment commission  now + reseller terms
  pending invoice           customer_debt    total       invoice due date
  positive balance, no pending of the matching type
                            catch-up         balance     now + terms

RESOLUTION:
  paid       customer_debt / reseller_payment; balance reduced by what is
             still outstanding, clamped at 0; a linked collected_to_pay sale
             becomes sold; a linked invoice becomes paid
  collected  item_to_collect; a linked paid_to_collect sale becomes sold
  cancelled  any pending collection; no balance change

PAYMENTS:
  A recorded payment has already moved the balance, so the obligations it
  covers are resolved as paid without a second balance entry:
  - a payment tagged with an invoice covers that invoice once the tagged
    payments reach its total; until then they reduce what marking the
    invoice collection paid will settle
  - a payment that leaves the party owing nothing covers every pending
    obligation of the matching type
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CollectionScheduler creates and resolves payment collections.
type CollectionScheduler struct {
	params   Params
	clock    Clock
	balances *BalanceLedger
}

// Resolution is the outcome of resolving a collection.
type Resolution struct {
	Collection PaymentCollection
	Entry      *BalanceEntry
	Sale       *Sale
	Invoice    *Invoice
}

func saleReason(id SaleID) string       { return Reference{Kind: RefSale, ID: string(id)}.String() }
func invoiceReason(id InvoiceID) string { return Reference{Kind: RefInvoice, ID: string(id)}.String() }

func (c *CollectionScheduler) termsDays(p *Party) int {
	if p != nil && p.PaymentTermsDays > 0 {
		return p.PaymentTermsDays
	}
	return c.params.PaymentTermsDays
}

// OnSaleStatusSet returns the obligations implied by a sale's status.
func (c *CollectionScheduler) OnSaleStatusSet(ctx context.Context, s Store, sale Sale, customer, reseller *Party) ([]PaymentCollection, error) {
	now := c.clock.Now()
	var out []PaymentCollection

	if customer != nil && sale.TotalAmount.IsPositive() {
		var col *PaymentCollection
		switch sale.Status {
		case SalePaidToCollect:
			col = &PaymentCollection{
				Party:   customer.Ref(),
				Type:    CollectionItemToCollect,
				DueDate: AddDays(now, c.params.ItemCollectDays),
				Notes:   "Items paid for, awaiting collection",
			}
		case SaleCollectedToPay:
			col = &PaymentCollection{
				Party:   customer.Ref(),
				Type:    CollectionCustomerDebt,
				DueDate: AddDays(now, c.termsDays(customer)),
				Notes:   "Items collected, payment outstanding",
			}
		}
		if col != nil {
			col.ReasonKey = saleReason(sale.ID)
			col.Amount = sale.TotalAmount
			col.SaleID = sale.ID
			got, err := c.ensure(ctx, s, *col)
			if err != nil {
				return nil, err
			}
			out = append(out, got)
		}
	}

	if reseller != nil && sale.Commission.IsPositive() {
		got, err := c.ensure(ctx, s, PaymentCollection{
			Party:     reseller.Ref(),
			Type:      CollectionResellerPayment,
			ReasonKey: saleReason(sale.ID),
			Amount:    sale.Commission,
			DueDate:   AddDays(now, c.termsDays(reseller)),
			SaleID:    sale.ID,
			Notes:     "Reseller commission",
		})
		if err != nil {
			return nil, err
		}
		out = append(out, got)
	}

	return out, nil
}

// OnInvoiceCreated returns the customer debt for a pending invoice.
func (c *CollectionScheduler) OnInvoiceCreated(ctx context.Context, s Store, inv Invoice) (*PaymentCollection, error) {
	if inv.Status != InvoicePending || !inv.Total.IsPositive() {
		return nil, nil
	}
	due := inv.DueDate
	if due.IsZero() {
		due = AddDays(inv.IssuedAt, c.params.InvoiceDueDays)
	}
	got, err := c.ensure(ctx, s, PaymentCollection{
		Party:     PartyRef{Kind: PartyCustomer, ID: inv.CustomerID},
		Type:      CollectionCustomerDebt,
		ReasonKey: invoiceReason(inv.ID),
		Amount:    inv.Total,
		DueDate:   due,
		InvoiceID: inv.ID,
		Notes:     "Invoice " + inv.Number,
	})
	if err != nil {
		return nil, err
	}
	return &got, nil
}

// EnsureOutstanding creates a catch-up collection for a party with a positive
// balance and no pending collection of the matching type.
func (c *CollectionScheduler) EnsureOutstanding(ctx context.Context, s Store, party Party) (*PaymentCollection, error) {
	if !party.Balance.IsPositive() {
		return nil, nil
	}
	typ := CollectionCustomerDebt
	if party.Kind == PartyReseller {
		typ = CollectionResellerPayment
	}

	ref := party.Ref()
	pending, err := s.Collections(ctx, CollectionFilter{Party: &ref, Type: typ, Status: CollectionPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending collections for %s: %w", ref, err)
	}
	if len(pending) > 0 {
		return nil, nil
	}

	got, err := c.ensure(ctx, s, PaymentCollection{
		Party:     ref,
		Type:      typ,
		ReasonKey: ReasonOutstanding,
		Amount:    party.Balance,
		DueDate:   AddDays(c.clock.Now(), c.termsDays(&party)),
		Notes:     "Outstanding balance",
	})
	if err != nil {
		return nil, err
	}
	return &got, nil
}

// ensure inserts col unless a pending collection already holds its key, in
// which case the existing one is returned.
func (c *CollectionScheduler) ensure(ctx context.Context, s Store, col PaymentCollection) (PaymentCollection, error) {
	col.ID = CollectionID(newID())
	col.Amount = Money(col.Amount)
	col.Status = CollectionPending
	col.CreatedAt = c.clock.Now()

	err := s.InsertCollection(ctx, col)
	if err == nil {
		return col, nil
	}
	if !errors.Is(err, ErrDuplicateObligation) {
		return PaymentCollection{}, fmt.Errorf("failed to insert collection: %w", err)
	}

	existing, ferr := s.FindPendingCollection(ctx, col.Party, col.Type, col.ReasonKey)
	if ferr != nil {
		return PaymentCollection{}, &ConflictError{
			Resource: "collection",
			Key:      fmt.Sprintf("%s/%s/%s", col.Party, col.Type, col.ReasonKey),
			Err:      errors.Join(err, ferr),
		}
	}
	return existing, nil
}

// =============================================================================
// RESOLUTION
// =============================================================================

func (c *CollectionScheduler) loadPending(ctx context.Context, s Store, id CollectionID) (PaymentCollection, error) {
	col, err := s.GetCollection(ctx, id)
	if err != nil {
		return PaymentCollection{}, err
	}
	if col.Status != CollectionPending {
		return PaymentCollection{}, fmt.Errorf("collection %s is %s: %w", id, col.Status, ErrInvalidTransition)
	}
	return col, nil
}

// MarkPaid settles a debt or reseller payout.
func (c *CollectionScheduler) MarkPaid(ctx context.Context, s Store, id CollectionID, actor Actor) (Resolution, error) {
	col, err := c.loadPending(ctx, s, id)
	if err != nil {
		return Resolution{}, err
	}
	if col.Type != CollectionCustomerDebt && col.Type != CollectionResellerPayment {
		return Resolution{}, fmt.Errorf("%s collections are collected, not paid: %w", col.Type, ErrInvalidTransition)
	}

	res := Resolution{}
	party, err := s.GetParty(ctx, col.Party)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to load %s: %w", col.Party, err)
	}
	owed, err := c.Outstanding(ctx, s, col)
	if err != nil {
		return Resolution{}, err
	}
	if delta := SettlementDelta(party.Balance, owed); !delta.IsZero() {
		entry, err := c.balances.ApplyBalanceDelta(ctx, s, BalanceInput{
			Party:     col.Party,
			Amount:    delta,
			Reason:    BalanceCollectionPaid,
			Reference: Reference{Kind: RefCollection, ID: string(col.ID)},
			Actor:     actor,
		})
		if err != nil {
			return Resolution{}, err
		}
		res.Entry = &entry
	}

	if err := c.settle(ctx, s, col, actor, &res); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// settle resolves col as paid and flips the sale or invoice it was raised for.
func (c *CollectionScheduler) settle(ctx context.Context, s Store, col PaymentCollection, actor Actor, res *Resolution) error {
	var err error
	if res.Collection, err = c.resolve(ctx, s, col, CollectionPaid, actor); err != nil {
		return err
	}
	if col.Type == CollectionCustomerDebt && col.SaleID != "" {
		if res.Sale, err = c.flipSale(ctx, s, col.SaleID, SaleCollectedToPay); err != nil {
			return err
		}
	}
	if col.InvoiceID != "" {
		if res.Invoice, err = c.flipInvoice(ctx, s, col.InvoiceID); err != nil {
			return err
		}
	}
	return nil
}

// Outstanding is what is still owed on col. Payments tagged with the
// collection's invoice count against it.
func (c *CollectionScheduler) Outstanding(ctx context.Context, s Store, col PaymentCollection) (decimal.Decimal, error) {
	if col.InvoiceID == "" {
		return col.Amount, nil
	}
	paid, err := s.InvoicePaymentsTotal(ctx, col.InvoiceID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to total payments for invoice %s: %w", col.InvoiceID, err)
	}
	rest := col.Amount.Sub(paid)
	if rest.IsNegative() {
		return decimal.Zero, nil
	}
	return rest, nil
}

// OnPayment resolves the obligations a just-recorded payment covers. party
// must be loaded after the payment's balance entry; inv is the invoice the
// payment was tagged with, if any.
func (c *CollectionScheduler) OnPayment(ctx context.Context, s Store, party Party, inv *Invoice, actor Actor) ([]Resolution, error) {
	var out []Resolution
	covered := make(map[CollectionID]bool)

	if inv != nil {
		paid, err := s.InvoicePaymentsTotal(ctx, inv.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to total payments for invoice %s: %w", inv.ID, err)
		}
		if paid.GreaterThanOrEqual(inv.Total) {
			res := Resolution{}
			col, err := s.FindPendingCollection(ctx, party.Ref(), CollectionCustomerDebt, invoiceReason(inv.ID))
			switch {
			case err == nil:
				if err := c.settle(ctx, s, col, actor, &res); err != nil {
					return nil, err
				}
				covered[col.ID] = true
			case errors.Is(err, ErrNotFound):
				// Debt already cancelled; the invoice itself is still settled.
				if res.Invoice, err = c.flipInvoice(ctx, s, inv.ID); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("failed to find collection for invoice %s: %w", inv.ID, err)
			}
			out = append(out, res)
		}
	}

	if party.Balance.IsPositive() {
		return out, nil
	}
	typ := CollectionCustomerDebt
	if party.Kind == PartyReseller {
		typ = CollectionResellerPayment
	}
	ref := party.Ref()
	pending, err := s.Collections(ctx, CollectionFilter{Party: &ref, Type: typ, Status: CollectionPending})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending collections for %s: %w", ref, err)
	}
	for _, col := range pending {
		if covered[col.ID] {
			continue
		}
		res := Resolution{}
		if err := c.settle(ctx, s, col, actor, &res); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// MarkCollected records that paid-for items were handed over.
func (c *CollectionScheduler) MarkCollected(ctx context.Context, s Store, id CollectionID, actor Actor) (Resolution, error) {
	col, err := c.loadPending(ctx, s, id)
	if err != nil {
		return Resolution{}, err
	}
	if col.Type != CollectionItemToCollect {
		return Resolution{}, fmt.Errorf("%s collections are paid, not collected: %w", col.Type, ErrInvalidTransition)
	}

	res := Resolution{}
	if res.Collection, err = c.resolve(ctx, s, col, CollectionCollected, actor); err != nil {
		return Resolution{}, err
	}
	if col.SaleID != "" {
		if res.Sale, err = c.flipSale(ctx, s, col.SaleID, SalePaidToCollect); err != nil {
			return Resolution{}, err
		}
	}
	return res, nil
}

// Cancel drops a pending collection without touching balances.
func (c *CollectionScheduler) Cancel(ctx context.Context, s Store, id CollectionID, actor Actor) (Resolution, error) {
	col, err := c.loadPending(ctx, s, id)
	if err != nil {
		return Resolution{}, err
	}
	resolved, err := c.resolve(ctx, s, col, CollectionCancelled, actor)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Collection: resolved}, nil
}

func (c *CollectionScheduler) resolve(ctx context.Context, s Store, col PaymentCollection, status CollectionStatus, actor Actor) (PaymentCollection, error) {
	now := c.clock.Now()
	if err := s.ResolveCollection(ctx, col.ID, status, now, actor.ID); err != nil {
		return PaymentCollection{}, fmt.Errorf("failed to resolve collection %s: %w", col.ID, err)
	}
	col.Status = status
	col.ResolvedAt = &now
	col.ResolvedBy = actor.ID
	return col, nil
}

// flipSale moves a sale from the given deferred status to sold. A sale in any
// other status is left alone.
func (c *CollectionScheduler) flipSale(ctx context.Context, s Store, id SaleID, from SaleStatus) (*Sale, error) {
	sale, err := s.GetSale(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sale %s: %w", id, err)
	}
	if sale.Status != from {
		return nil, nil
	}
	if err := s.UpdateSaleStatus(ctx, id, from, SaleSold); err != nil {
		return nil, fmt.Errorf("failed to mark sale %s sold: %w", id, err)
	}
	sale.Status = SaleSold
	return &sale, nil
}

// flipInvoice marks a pending or overdue invoice paid. Any other status is
// left alone.
func (c *CollectionScheduler) flipInvoice(ctx context.Context, s Store, id InvoiceID) (*Invoice, error) {
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice %s: %w", id, err)
	}
	if inv.Status != InvoicePending && inv.Status != InvoiceOverdue {
		return nil, nil
	}
	if err := s.UpdateInvoiceStatus(ctx, id, inv.Status, InvoicePaid); err != nil {
		return nil, fmt.Errorf("failed to mark invoice %s paid: %w", id, err)
	}
	inv.Status = InvoicePaid
	return &inv, nil
}

// dueBy reports collections due on or before t.
func dueBy(cols []PaymentCollection, t time.Time) []PaymentCollection {
	var out []PaymentCollection
	for _, c := range cols {
		if !c.DueDate.After(t) {
			out = append(out, c)
		}
	}
	return out
}
