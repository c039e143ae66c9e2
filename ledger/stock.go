package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// STOCK TAKE
// =============================================================================

type StockTakeDraft struct {
	Actor           Actor     `json:"actor"`
	ProductID       ProductID `json:"product_id" validate:"required"`
	CountedQuantity int64     `json:"counted_quantity" validate:"min=0"`
	Notes           string    `json:"notes"`
}

type StockTakeResult struct {
	StockTake     StockTake
	Movement      *StockMovement
	Notifications []Notification
}

// RecordStockTake reconciles a physical count. The system quantity is read
// inside the unit of work, so the adjustment is relative to the stock at the
// moment the count is recorded.
func (d *Dispatcher) RecordStockTake(ctx context.Context, draft StockTakeDraft) (StockTakeResult, error) {
	if err := d.check(draft); err != nil {
		return StockTakeResult{}, err
	}

	var res StockTakeResult
	err := d.atomically(ctx, "record_stock_take", draft.Actor, func(ctx context.Context, s Store) error {
		res = StockTakeResult{}

		product, err := s.GetProduct(ctx, draft.ProductID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalid("product_id", "product %s not found", draft.ProductID)
			}
			return fmt.Errorf("failed to load product %s: %w", draft.ProductID, err)
		}

		// 1. primary fact
		st := StockTake{
			ID:              newID(),
			ProductID:       product.ID,
			SystemQuantity:  product.StockQuantity,
			CountedQuantity: draft.CountedQuantity,
			Difference:      draft.CountedQuantity - product.StockQuantity,
			Notes:           draft.Notes,
			ActorID:         draft.Actor.ID,
			CreatedAt:       d.clock.Now(),
		}
		if err := s.CreateStockTake(ctx, st); err != nil {
			return fmt.Errorf("failed to create stock take: %w", err)
		}
		res.StockTake = st

		// 2. inventory
		m, err := d.Inventory.Reconcile(ctx, s, product, draft.CountedQuantity,
			Reference{Kind: RefStockTake, ID: st.ID}, draft.Actor)
		if err != nil {
			return err
		}
		res.Movement = m

		// 5. alerts
		if m != nil && m.Delta < 0 {
			n, err := d.Alerts.CheckLowStock(ctx, s, product, m.QuantityAfter)
			if err != nil {
				return err
			}
			res.Notifications = appendNotification(res.Notifications, n)
		}
		return nil
	})
	if err != nil {
		return StockTakeResult{}, err
	}

	d.log.Info("stock take recorded",
		zap.String("stock_take_id", res.StockTake.ID),
		zap.String("product_id", string(res.StockTake.ProductID)),
		zap.Int64("system", res.StockTake.SystemQuantity),
		zap.Int64("counted", res.StockTake.CountedQuantity),
		zap.String("actor", draft.Actor.ID),
	)
	return res, nil
}

// =============================================================================
// LOSS
// =============================================================================

// LossDraft is the input to RecordLoss. UnitCost defaults to the product's
// moving-average cost; without a product it is required.
type LossDraft struct {
	Actor       Actor               `json:"actor"`
	Type        LossType            `json:"loss_type" validate:"required,oneof=damage theft expiry write_off bad_debt other"`
	ProductID   ProductID           `json:"product_id" validate:"required_with=Quantity"`
	CustomerID  PartyID             `json:"customer_id"`
	Quantity    int64               `json:"quantity" validate:"min=0"`
	UnitCost    decimal.NullDecimal `json:"unit_cost"`
	Description string              `json:"description"`
}

type LossResult struct {
	Loss          Loss
	Movement      *StockMovement
	Notifications []Notification
}

func (d *Dispatcher) validateLoss(draft LossDraft) error {
	if err := d.check(draft); err != nil {
		return err
	}
	if draft.UnitCost.Valid && draft.UnitCost.Decimal.IsNegative() {
		return invalid("unit_cost", "cannot be negative")
	}
	if draft.ProductID == "" && !draft.UnitCost.Valid {
		return invalid("unit_cost", "is required when no product is given")
	}
	return nil
}

// RecordLoss records damage, theft, expiry or a write-off. Lost units leave
// stock through an adjustment_out movement.
func (d *Dispatcher) RecordLoss(ctx context.Context, draft LossDraft) (LossResult, error) {
	if err := d.validateLoss(draft); err != nil {
		return LossResult{}, err
	}

	var res LossResult
	err := d.atomically(ctx, "record_loss", draft.Actor, func(ctx context.Context, s Store) error {
		res = LossResult{}

		var product *Product
		if draft.ProductID != "" {
			p, err := s.GetProduct(ctx, draft.ProductID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return invalid("product_id", "product %s not found", draft.ProductID)
				}
				return fmt.Errorf("failed to load product %s: %w", draft.ProductID, err)
			}
			product = &p
		}
		customer, err := optionalParty(ctx, s, PartyCustomer, draft.CustomerID, "customer_id")
		if err != nil {
			return err
		}

		// 1. primary fact
		unitCost := draft.UnitCost.Decimal
		if !draft.UnitCost.Valid {
			unitCost = product.UnitCost
		}
		loss := Loss{
			ID:          newID(),
			Type:        draft.Type,
			ProductID:   draft.ProductID,
			CustomerID:  draft.CustomerID,
			Quantity:    draft.Quantity,
			UnitCost:    Money(unitCost),
			Description: draft.Description,
			ActorID:     draft.Actor.ID,
			CreatedAt:   d.clock.Now(),
		}
		loss.Total = Money(loss.UnitCost.Mul(decimal.NewFromInt(loss.Quantity)))
		if loss.Quantity == 0 && product == nil {
			// Write-offs without units carry their value in UnitCost.
			loss.Total = loss.UnitCost
		}
		if err := s.CreateLoss(ctx, loss); err != nil {
			return fmt.Errorf("failed to create loss: %w", err)
		}
		res.Loss = loss
		ref := Reference{Kind: RefLoss, ID: loss.ID}

		// 2. inventory
		if product != nil && loss.Quantity > 0 {
			m, err := d.Inventory.ApplyMovement(ctx, s, MovementInput{
				ProductID: product.ID,
				Delta:     -loss.Quantity,
				Kind:      MovementAdjustmentOut,
				Reason:    loss.Type.MovementReason(),
				Reference: ref,
				Actor:     draft.Actor,
			})
			if err != nil {
				return err
			}
			res.Movement = &m
		}

		// 5. alerts
		subject, related := "unspecified item", ref
		switch {
		case product != nil:
			subject, related = product.Name, Reference{Kind: RefProduct, ID: string(product.ID)}
		case customer != nil:
			subject, related = customer.Name, Reference{Kind: RefParty, ID: string(customer.ID)}
		}
		n, err := d.Alerts.Raise(ctx, s, NotifyStockAlert, "Loss Recorded",
			fmt.Sprintf("Loss recorded: %s - $%s for %s", loss.Type, loss.Total.StringFixed(MoneyPlaces), subject),
			related)
		if err != nil {
			return err
		}
		res.Notifications = appendNotification(res.Notifications, n)

		if res.Movement != nil {
			n, err := d.Alerts.CheckLowStock(ctx, s, *product, res.Movement.QuantityAfter)
			if err != nil {
				return err
			}
			res.Notifications = appendNotification(res.Notifications, n)
		}
		return nil
	})
	if err != nil {
		return LossResult{}, err
	}

	d.log.Info("loss recorded",
		zap.String("loss_id", res.Loss.ID),
		zap.String("type", string(res.Loss.Type)),
		zap.String("total", res.Loss.Total.StringFixed(MoneyPlaces)),
		zap.String("actor", draft.Actor.ID),
	)
	return res, nil
}
