package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AuditReport lists every cached value that disagrees with its log.
type AuditReport struct {
	ProductsChecked int
	PartiesChecked  int
	Violations      []*InvariantViolation
}

// Err joins the violations, or returns nil for a clean report.
func (r AuditReport) Err() error {
	if len(r.Violations) == 0 {
		return nil
	}
	errs := make([]error, len(r.Violations))
	for i, v := range r.Violations {
		errs[i] = v
	}
	return errors.Join(errs...)
}

// Audit replays the movement and balance entry logs and compares them with
// the cached stock quantities and balances. It reads inside one transaction
// so it sees a consistent snapshot; it writes nothing.
func (d *Dispatcher) Audit(ctx context.Context) (AuditReport, error) {
	var rep AuditReport
	err := d.store.WithTx(ctx, func(s Store) error {
		rep = AuditReport{}

		products, err := s.ListProducts(ctx)
		if err != nil {
			return fmt.Errorf("failed to list products: %w", err)
		}
		for _, p := range products {
			ms, err := s.Movements(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("failed to load movements for %s: %w", p.ID, err)
			}
			rep.ProductsChecked++
			rep.Violations = append(rep.Violations, auditProduct(p, ms)...)
		}

		for _, kind := range []PartyKind{PartyCustomer, PartyReseller} {
			parties, err := s.ListParties(ctx, kind)
			if err != nil {
				return fmt.Errorf("failed to list %ss: %w", kind, err)
			}
			for _, p := range parties {
				es, err := s.BalanceEntries(ctx, p.Ref())
				if err != nil {
					return fmt.Errorf("failed to load entries for %s: %w", p.Ref(), err)
				}
				rep.PartiesChecked++
				rep.Violations = append(rep.Violations, auditParty(p, es)...)
			}
		}
		return nil
	})
	if err != nil {
		return AuditReport{}, err
	}

	if len(rep.Violations) > 0 {
		d.log.Error("ledger audit found drift",
			zap.Int("violations", len(rep.Violations)),
			zap.Error(rep.Err()),
		)
	}
	return rep, nil
}

func auditProduct(p Product, ms []StockMovement) []*InvariantViolation {
	var out []*InvariantViolation
	subject := Reference{Kind: RefProduct, ID: string(p.ID)}.String()

	var sum int64
	for i, m := range ms {
		sum += m.Delta
		if m.QuantityAfter != sum {
			out = append(out, &InvariantViolation{
				Subject:  subject,
				Detail:   fmt.Sprintf("movement %d quantity_after", i+1),
				Expected: strconv.FormatInt(sum, 10),
				Actual:   strconv.FormatInt(m.QuantityAfter, 10),
			})
			break
		}
	}
	if sum != p.StockQuantity {
		out = append(out, &InvariantViolation{
			Subject:  subject,
			Detail:   "stock quantity differs from sum of movements",
			Expected: strconv.FormatInt(sum, 10),
			Actual:   strconv.FormatInt(p.StockQuantity, 10),
		})
	}
	return out
}

func auditParty(p Party, es []BalanceEntry) []*InvariantViolation {
	var out []*InvariantViolation
	subject := p.Ref().String()

	sum := decimal.Zero
	for _, e := range es {
		sum = sum.Add(e.Delta)
	}
	if !sum.Equal(p.Balance) {
		out = append(out, &InvariantViolation{
			Subject:  subject,
			Detail:   "balance differs from sum of entries",
			Expected: sum.StringFixed(MoneyPlaces),
			Actual:   p.Balance.StringFixed(MoneyPlaces),
		})
	}
	if p.Balance.IsPositive() != (p.BalanceSince != nil) {
		out = append(out, &InvariantViolation{
			Subject:  subject,
			Detail:   "balance_since set iff balance is positive",
			Expected: strconv.FormatBool(p.Balance.IsPositive()),
			Actual:   strconv.FormatBool(p.BalanceSince != nil),
		})
	}
	return out
}
