/*
balance.go - Balance Ledger

PURPOSE:
  Owns customer outstanding balances and reseller current balances. Each
  change is a BalanceEntry appended together with an additive increment of
  the cached balance, so a balance always equals the sum of its entries.

SIGNS:
  Customer: credit sale, pending invoice, opening balance  +
            payment, settled collection                    -
  Reseller: commission                                     +
            payment to the reseller, settled collection    -

COMMISSION:
  Per sale item:
    dealership price > 0   line_total - dealership_price * quantity
    otherwise              line_total * (1 - system price share)
  The system price share defaults to 0.75 and is configurable. A reseller's
  own commission rate, when set, replaces the default remainder.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceLedger applies balance deltas.
type BalanceLedger struct {
	clock Clock
}

// BalanceInput is one requested balance change.
type BalanceInput struct {
	Party     PartyRef
	Amount    decimal.Decimal // signed
	Reason    BalanceReason
	Reference Reference
	Actor     Actor
}

// ApplyBalanceDelta appends an entry and increments the party's balance.
// The amount is rounded to cents first; a zero amount is rejected.
func (l *BalanceLedger) ApplyBalanceDelta(ctx context.Context, s Store, in BalanceInput) (BalanceEntry, error) {
	amount := Money(in.Amount)
	if amount.IsZero() {
		return BalanceEntry{}, invalid("amount", "balance delta must be non-zero")
	}
	if in.Party.IsZero() {
		return BalanceEntry{}, invalid("party", "balance delta requires a customer or reseller")
	}
	if in.Actor.ID == "" {
		return BalanceEntry{}, invalid("actor", "balance delta requires an actor")
	}

	if _, err := s.GetParty(ctx, in.Party); err != nil {
		if errors.Is(err, ErrNotFound) {
			return BalanceEntry{}, invalid("party", "%s not found", in.Party)
		}
		return BalanceEntry{}, fmt.Errorf("failed to load %s: %w", in.Party, err)
	}

	e := BalanceEntry{
		ID:        newID(),
		Party:     in.Party,
		Delta:     amount,
		Reason:    in.Reason,
		Reference: in.Reference,
		ActorID:   in.Actor.ID,
		CreatedAt: l.clock.Now(),
	}

	after, err := s.ApplyBalanceEntry(ctx, e)
	if err != nil {
		return BalanceEntry{}, fmt.Errorf("failed to apply balance entry to %s: %w", in.Party, err)
	}
	e.BalanceAfter = after
	return e, nil
}

// SettlementDelta returns the (non-positive) delta that settles amount
// against balance without taking the balance below zero.
func SettlementDelta(balance, amount decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() || !amount.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(amount, balance).Neg()
}

// Commission computes a reseller's margin on items. share is the reseller's
// fraction of items sold without a dealership price.
func Commission(items []SaleItem, share decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if it.DealershipPrice.IsPositive() {
			system := it.DealershipPrice.Mul(decimal.NewFromInt(it.Quantity))
			total = total.Add(it.LineTotal.Sub(system))
			continue
		}
		total = total.Add(it.LineTotal.Mul(share))
	}
	return Money(total)
}

// commissionShare picks the reseller's rate over the configured default.
func commissionShare(p Params, reseller *Party) decimal.Decimal {
	if reseller != nil && reseller.CommissionRate.Valid {
		return reseller.CommissionRate.Decimal
	}
	return p.CommissionShare()
}
