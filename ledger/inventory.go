/*
inventory.go - Inventory Ledger

PURPOSE:
  Owns product stock. Every change is a StockMovement appended together with
  an additive increment of the cached stock quantity. The ledger exposes the
  resulting quantity so callers can evaluate alerts after the write; it never
  decides alerts itself.

SIGN CONVENTION:
  receipt, adjustment_in, return_in      delta > 0
  sale, adjustment_out, return_out       delta < 0

OVERSELL:
  Negative resulting stock is allowed. It is a recorded business fact, not an
  error. Callers that want strict non-negative stock must guard before
  calling ApplyMovement.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// InventoryLedger applies stock movements.
type InventoryLedger struct {
	clock Clock
}

// MovementInput is one requested stock change.
type MovementInput struct {
	ProductID ProductID
	Delta     int64
	Kind      MovementKind
	Reason    MovementReason
	Reference Reference
	// UnitCost, when positive on a receipt, feeds the moving-average cost.
	UnitCost decimal.Decimal
	Actor    Actor
}

func (in MovementInput) validate() error {
	if in.ProductID == "" {
		return invalid("product_id", "stock movement requires a product")
	}
	if in.Actor.ID == "" {
		return invalid("actor", "stock movement requires an actor")
	}
	if !in.Kind.Valid() {
		return invalid("kind", "unknown movement kind %q", in.Kind)
	}
	if in.Delta == 0 {
		return invalid("delta", "stock movement delta must be non-zero")
	}
	if in.Kind.Inbound() != (in.Delta > 0) {
		return invalid("delta", "delta %d does not match movement kind %s", in.Delta, in.Kind)
	}
	if in.UnitCost.IsNegative() {
		return invalid("unit_cost", "unit cost cannot be negative")
	}
	return nil
}

// ApplyMovement persists the movement and increments the product's stock in
// the same unit of work. The returned movement carries the quantity after.
func (l *InventoryLedger) ApplyMovement(ctx context.Context, s Store, in MovementInput) (StockMovement, error) {
	if err := in.validate(); err != nil {
		return StockMovement{}, err
	}

	product, err := s.GetProduct(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return StockMovement{}, invalid("product_id", "product %s not found", in.ProductID)
		}
		return StockMovement{}, fmt.Errorf("failed to load product %s: %w", in.ProductID, err)
	}

	m := StockMovement{
		ID:        newID(),
		ProductID: in.ProductID,
		Delta:     in.Delta,
		Kind:      in.Kind,
		Reason:    in.Reason,
		Reference: in.Reference,
		UnitCost:  Money(in.UnitCost),
		ActorID:   in.Actor.ID,
		CreatedAt: l.clock.Now(),
	}

	qty, err := s.ApplyMovement(ctx, m)
	if err != nil {
		return StockMovement{}, fmt.Errorf("failed to apply movement to %s: %w", in.ProductID, err)
	}
	m.QuantityAfter = qty

	if in.Kind == MovementReceipt && in.UnitCost.IsPositive() {
		avg := MovingAverageCost(qty-in.Delta, product.UnitCost, in.Delta, in.UnitCost)
		if err := s.SetUnitCost(ctx, in.ProductID, avg); err != nil {
			return StockMovement{}, fmt.Errorf("failed to update unit cost of %s: %w", in.ProductID, err)
		}
	}

	return m, nil
}

// Reconcile applies a stock count. The delta is counted minus the quantity
// the product holds at the time of the count. Returns nil when they agree.
func (l *InventoryLedger) Reconcile(ctx context.Context, s Store, product Product, counted int64, ref Reference, actor Actor) (*StockMovement, error) {
	delta := counted - product.StockQuantity
	if delta == 0 {
		return nil, nil
	}

	kind := MovementAdjustmentIn
	if delta < 0 {
		kind = MovementAdjustmentOut
	}

	m, err := l.ApplyMovement(ctx, s, MovementInput{
		ProductID: product.ID,
		Delta:     delta,
		Kind:      kind,
		Reason:    ReasonCountDifference,
		Reference: ref,
		Actor:     actor,
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MovingAverageCost blends the cost of stock on hand with a receipt. Stock on
// hand below zero is treated as zero.
func MovingAverageCost(onHand int64, currentCost decimal.Decimal, received int64, receivedCost decimal.Decimal) decimal.Decimal {
	if onHand < 0 {
		onHand = 0
	}
	total := onHand + received
	if total <= 0 {
		return Money(receivedCost)
	}
	value := currentCost.Mul(decimal.NewFromInt(onHand)).
		Add(receivedCost.Mul(decimal.NewFromInt(received)))
	return Money(value.Div(decimal.NewFromInt(total)))
}
