package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentDraft is the input to RecordPayment. Exactly one of CustomerID
// (payment received) or ResellerID (payout to the reseller) is set.
type PaymentDraft struct {
	Actor      Actor           `json:"actor"`
	CustomerID PartyID         `json:"customer_id" validate:"required_without=ResellerID"`
	ResellerID PartyID         `json:"reseller_id"`
	InvoiceID  InvoiceID       `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method" validate:"omitempty,oneof=cash ecocash one_money mukuru inbucks mama_money bank card other"`
	Reference  string          `json:"reference"`
	Notes      string          `json:"notes"`
}

func (p PaymentDraft) party() PartyRef {
	if p.CustomerID != "" {
		return PartyRef{Kind: PartyCustomer, ID: p.CustomerID}
	}
	return PartyRef{Kind: PartyReseller, ID: p.ResellerID}
}

// PaymentResult carries the recorded payment and its consequences. Settled
// holds the pending obligations the payment covered; Invoice is set when the
// tagged invoice became paid.
type PaymentResult struct {
	Payment       Payment
	Entry         BalanceEntry
	Settled       []PaymentCollection
	Invoice       *Invoice
	Collections   []PaymentCollection
	Notifications []Notification
}

func (d *Dispatcher) validatePayment(draft PaymentDraft) error {
	if err := d.check(draft); err != nil {
		return err
	}
	if draft.CustomerID != "" && draft.ResellerID != "" {
		return invalid("reseller_id", "a payment is either from a customer or to a reseller, not both")
	}
	if !Money(draft.Amount).IsPositive() {
		return invalid("amount", "payment amount must be positive")
	}
	if draft.InvoiceID != "" && draft.CustomerID == "" {
		return invalid("invoice_id", "only customer payments can settle an invoice")
	}
	return nil
}

// RecordPayment records money received from a customer or paid to a
// reseller and reduces that party's balance. Obligations the payment covers
// are resolved in the same unit of work without touching the balance again.
// A payment tagged with an invoice counts against that invoice.
func (d *Dispatcher) RecordPayment(ctx context.Context, draft PaymentDraft) (PaymentResult, error) {
	if err := d.validatePayment(draft); err != nil {
		return PaymentResult{}, err
	}

	var res PaymentResult
	err := d.atomically(ctx, "record_payment", draft.Actor, func(ctx context.Context, s Store) error {
		res = PaymentResult{}
		ref := draft.party()

		party, err := s.GetParty(ctx, ref)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalid(string(ref.Kind)+"_id", "%s not found", ref)
			}
			return fmt.Errorf("failed to load %s: %w", ref, err)
		}
		var invoice *Invoice
		if draft.InvoiceID != "" {
			inv, err := s.GetInvoice(ctx, draft.InvoiceID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return invalid("invoice_id", "invoice %s not found", draft.InvoiceID)
				}
				return fmt.Errorf("failed to load invoice %s: %w", draft.InvoiceID, err)
			}
			if inv.CustomerID != party.ID {
				return invalid("invoice_id", "invoice %s belongs to another customer", inv.Number)
			}
			if inv.Status != InvoicePending && inv.Status != InvoiceOverdue {
				return invalid("invoice_id", "invoice %s is %s", inv.Number, inv.Status)
			}
			invoice = &inv
		}

		// 1. primary fact
		payment := Payment{
			ID:        newID(),
			Party:     ref,
			InvoiceID: draft.InvoiceID,
			Amount:    Money(draft.Amount),
			Method:    draft.Method,
			Reference: draft.Reference,
			Notes:     draft.Notes,
			ActorID:   draft.Actor.ID,
			CreatedAt: d.clock.Now(),
		}
		if payment.Method == "" {
			payment.Method = MethodCash
		}
		if err := s.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		res.Payment = payment
		docRef := Reference{Kind: RefPayment, ID: payment.ID}

		// 3. balance
		res.Entry, err = d.Balances.ApplyBalanceDelta(ctx, s, BalanceInput{
			Party: ref, Amount: payment.Amount.Neg(), Reason: BalancePayment, Reference: docRef, Actor: draft.Actor,
		})
		if err != nil {
			return err
		}

		// 4. collections
		fresh, err := s.GetParty(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to reload %s: %w", ref, err)
		}
		covered, err := d.Collections.OnPayment(ctx, s, fresh, invoice, draft.Actor)
		if err != nil {
			return err
		}
		for _, r := range covered {
			if r.Collection.ID != "" {
				res.Settled = append(res.Settled, r.Collection)
			}
			if r.Invoice != nil && invoice != nil && r.Invoice.ID == invoice.ID {
				res.Invoice = r.Invoice
			}
		}
		catchUp, err := d.Collections.EnsureOutstanding(ctx, s, fresh)
		if err != nil {
			return err
		}
		if catchUp != nil {
			res.Collections = append(res.Collections, *catchUp)
		}

		// 5. alerts
		verb := "received from"
		if ref.Kind == PartyReseller {
			verb = "paid to"
		}
		n, err := d.Alerts.General(ctx, s, "Payment Recorded",
			fmt.Sprintf("Payment of $%s %s %s via %s", payment.Amount.StringFixed(MoneyPlaces), verb, party.Name, payment.Method),
			docRef)
		if err != nil {
			return err
		}
		res.Notifications = appendNotification(res.Notifications, n)
		if fresh.Kind == PartyCustomer {
			n, err := d.Alerts.CheckPaymentDue(ctx, s, fresh)
			if err != nil {
				return err
			}
			res.Notifications = appendNotification(res.Notifications, n)
		}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	d.log.Info("payment recorded",
		zap.String("payment_id", res.Payment.ID),
		zap.Stringer("party", res.Payment.Party),
		zap.String("amount", res.Payment.Amount.StringFixed(MoneyPlaces)),
		zap.String("balance_after", res.Entry.BalanceAfter.StringFixed(MoneyPlaces)),
		zap.Int("settled", len(res.Settled)),
		zap.String("actor", draft.Actor.ID),
	)
	return res, nil
}
