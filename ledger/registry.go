package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// PRODUCTS
// =============================================================================

type ProductDraft struct {
	Actor     Actor           `json:"actor"`
	Name      string          `json:"name" validate:"required,max=200"`
	Category  string          `json:"category"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	SalePrice decimal.Decimal `json:"sale_price"`
	// LowStockThreshold defaults to Params.LowStockThreshold.
	LowStockThreshold *int64 `json:"low_stock_threshold,omitempty" validate:"omitempty,min=0"`
	OpeningStock      int64  `json:"opening_stock" validate:"min=0"`
}

type ProductResult struct {
	Product       Product
	Movement      *StockMovement
	Notifications []Notification
}

// RegisterProduct creates a product with a category-scoped code. Opening
// stock enters through a receipt movement like any other stock.
func (d *Dispatcher) RegisterProduct(ctx context.Context, draft ProductDraft) (ProductResult, error) {
	if err := d.check(draft); err != nil {
		return ProductResult{}, err
	}
	if draft.UnitCost.IsNegative() || draft.SalePrice.IsNegative() {
		return ProductResult{}, invalid("sale_price", "prices cannot be negative")
	}

	var res ProductResult
	err := d.atomically(ctx, "register_product", draft.Actor, func(ctx context.Context, s Store) error {
		res = ProductResult{}
		now := d.clock.Now()

		code, err := d.Numbers.Next(ctx, s, ProductScope(draft.Category, now))
		if err != nil {
			return err
		}
		p := Product{
			ID:                ProductID(newID()),
			Code:              code,
			Name:              draft.Name,
			Category:          draft.Category,
			UnitCost:          Money(draft.UnitCost),
			SalePrice:         Money(draft.SalePrice),
			LowStockThreshold: d.params.LowStockThreshold,
			CreatedAt:         now,
			CreatedBy:         draft.Actor.ID,
		}
		if draft.LowStockThreshold != nil {
			p.LowStockThreshold = *draft.LowStockThreshold
		}
		if err := s.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}

		if draft.OpeningStock > 0 {
			m, err := d.Inventory.ApplyMovement(ctx, s, MovementInput{
				ProductID: p.ID,
				Delta:     draft.OpeningStock,
				Kind:      MovementReceipt,
				Reason:    ReasonOpening,
				Reference: Reference{Kind: RefProduct, ID: string(p.ID)},
				UnitCost:  p.UnitCost,
				Actor:     draft.Actor,
			})
			if err != nil {
				return err
			}
			res.Movement = &m
		}
		if res.Product, err = s.GetProduct(ctx, p.ID); err != nil {
			return fmt.Errorf("failed to reload product: %w", err)
		}

		n, err := d.Alerts.General(ctx, s, "New Product Added",
			fmt.Sprintf("Product %s (%s) was added", p.Name, p.Code),
			Reference{Kind: RefProduct, ID: string(p.ID)})
		if err != nil {
			return err
		}
		res.Notifications = appendNotification(res.Notifications, n)
		return nil
	})
	if err != nil {
		return ProductResult{}, err
	}

	d.log.Info("product registered",
		zap.String("product_id", string(res.Product.ID)),
		zap.String("code", res.Product.Code),
		zap.Int64("stock", res.Product.StockQuantity),
	)
	return res, nil
}

// =============================================================================
// CUSTOMERS & RESELLERS
// =============================================================================

type PartyDraft struct {
	Actor Actor  `json:"actor"`
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone"`
	Email string `json:"email" validate:"omitempty,email"`
	// PaymentTermsDays defaults to Params.PaymentTermsDays.
	PaymentTermsDays int             `json:"payment_terms_days" validate:"min=0"`
	CreditLimit      decimal.Decimal `json:"credit_limit"`
	// CommissionRate is the reseller's share of sales without a dealership
	// price, in [0, 1]. Ignored for customers.
	CommissionRate decimal.NullDecimal `json:"commission_rate"`
	OpeningBalance decimal.Decimal     `json:"opening_balance"`
}

type PartyResult struct {
	Party         Party
	Entry         *BalanceEntry
	Collection    *PaymentCollection
	Notifications []Notification
}

func (d *Dispatcher) RegisterCustomer(ctx context.Context, draft PartyDraft) (PartyResult, error) {
	return d.registerParty(ctx, PartyCustomer, draft)
}

func (d *Dispatcher) RegisterReseller(ctx context.Context, draft PartyDraft) (PartyResult, error) {
	return d.registerParty(ctx, PartyReseller, draft)
}

func (d *Dispatcher) registerParty(ctx context.Context, kind PartyKind, draft PartyDraft) (PartyResult, error) {
	if err := d.check(draft); err != nil {
		return PartyResult{}, err
	}
	if draft.CreditLimit.IsNegative() {
		return PartyResult{}, invalid("credit_limit", "cannot be negative")
	}
	if kind == PartyReseller && draft.CommissionRate.Valid {
		r := draft.CommissionRate.Decimal
		if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
			return PartyResult{}, invalid("commission_rate", "must be between 0 and 1")
		}
	}

	var res PartyResult
	err := d.atomically(ctx, "register_"+string(kind), draft.Actor, func(ctx context.Context, s Store) error {
		res = PartyResult{}
		now := d.clock.Now()

		scope, title := CustomerScope(now), "New Customer Added"
		if kind == PartyReseller {
			scope, title = ResellerScope(now), "New Reseller Added"
		}
		code, err := d.Numbers.Next(ctx, s, scope)
		if err != nil {
			return err
		}

		p := Party{
			ID:               PartyID(newID()),
			Kind:             kind,
			Name:             draft.Name,
			Phone:            draft.Phone,
			Email:            draft.Email,
			AccountCode:      code,
			PaymentTermsDays: draft.PaymentTermsDays,
			CreditLimit:      Money(draft.CreditLimit),
			CreatedAt:        now,
			CreatedBy:        draft.Actor.ID,
		}
		if p.PaymentTermsDays == 0 {
			p.PaymentTermsDays = d.params.PaymentTermsDays
		}
		if kind == PartyReseller {
			p.CommissionRate = draft.CommissionRate
		}
		if err := s.CreateParty(ctx, p); err != nil {
			return fmt.Errorf("failed to create %s: %w", kind, err)
		}

		if !Money(draft.OpeningBalance).IsZero() {
			e, err := d.Balances.ApplyBalanceDelta(ctx, s, BalanceInput{
				Party:     p.Ref(),
				Amount:    draft.OpeningBalance,
				Reason:    BalanceOpening,
				Reference: Reference{Kind: RefParty, ID: string(p.ID)},
				Actor:     draft.Actor,
			})
			if err != nil {
				return err
			}
			res.Entry = &e
		}
		if res.Party, err = s.GetParty(ctx, p.Ref()); err != nil {
			return fmt.Errorf("failed to reload %s: %w", p.Ref(), err)
		}
		if res.Collection, err = d.Collections.EnsureOutstanding(ctx, s, res.Party); err != nil {
			return err
		}

		n, err := d.Alerts.General(ctx, s, title,
			fmt.Sprintf("%s (%s) was added", p.Name, p.AccountCode),
			Reference{Kind: RefParty, ID: string(p.ID)})
		if err != nil {
			return err
		}
		res.Notifications = appendNotification(res.Notifications, n)
		return nil
	})
	if err != nil {
		return PartyResult{}, err
	}

	d.log.Info(string(kind)+" registered",
		zap.String("party_id", string(res.Party.ID)),
		zap.String("account_code", res.Party.AccountCode),
	)
	return res, nil
}
