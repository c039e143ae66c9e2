package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaleItemDraft is one requested sale line. UnitPrice defaults to the
// product's sale price.
type SaleItemDraft struct {
	ProductID       ProductID           `json:"product_id" validate:"required"`
	Quantity        int64               `json:"quantity" validate:"min=1"`
	UnitPrice       decimal.NullDecimal `json:"unit_price"`
	DealershipPrice decimal.Decimal     `json:"dealership_price"`
}

// SaleDraft is the input to RecordSale.
type SaleDraft struct {
	Actor         Actor           `json:"actor"`
	Status        SaleStatus      `json:"status" validate:"required,oneof=received sold paid_to_collect collected_to_pay"`
	CustomerID    PartyID         `json:"customer_id"`
	ResellerID    PartyID         `json:"reseller_id"`
	Items         []SaleItemDraft `json:"items" validate:"required,min=1,dive"`
	IsTaxed       bool            `json:"is_taxed"`
	PaymentMethod PaymentMethod   `json:"payment_method" validate:"omitempty,oneof=cash ecocash one_money mukuru inbucks mama_money bank card other"`
	Notes         string          `json:"notes"`
	// IssueReceipt overrides Params.IssueReceipts for this sale.
	IssueReceipt *bool `json:"issue_receipt,omitempty"`
}

// SaleResult is everything RecordSale produced.
type SaleResult struct {
	Sale           Sale
	Movements      []StockMovement
	BalanceEntries []BalanceEntry
	Collections    []PaymentCollection
	Notifications  []Notification
	Receipt        *Receipt
}

func (d *Dispatcher) validateSale(draft SaleDraft) error {
	if err := d.check(draft); err != nil {
		return err
	}
	if (draft.Status == SalePaidToCollect || draft.Status == SaleCollectedToPay) && draft.CustomerID == "" {
		return invalid("customer_id", "a customer is required for %s sales", draft.Status)
	}
	for i, it := range draft.Items {
		if it.UnitPrice.Valid && it.UnitPrice.Decimal.IsNegative() {
			return invalid(fmt.Sprintf("items[%d].unit_price", i), "cannot be negative")
		}
		if it.DealershipPrice.IsNegative() {
			return invalid(fmt.Sprintf("items[%d].dealership_price", i), "cannot be negative")
		}
	}
	return nil
}

// RecordSale records a sale and all of its consequences.
//
// A sale with status received is a goods-in: its items are added to stock at
// the given unit price as cost and no money moves. Every other status takes
// the items out of stock.
func (d *Dispatcher) RecordSale(ctx context.Context, draft SaleDraft) (SaleResult, error) {
	if err := d.validateSale(draft); err != nil {
		return SaleResult{}, err
	}

	var res SaleResult
	err := d.atomically(ctx, "record_sale", draft.Actor, func(ctx context.Context, s Store) error {
		res = SaleResult{}
		now := d.clock.Now()

		customer, err := optionalParty(ctx, s, PartyCustomer, draft.CustomerID, "customer_id")
		if err != nil {
			return err
		}
		reseller, err := optionalParty(ctx, s, PartyReseller, draft.ResellerID, "reseller_id")
		if err != nil {
			return err
		}

		// 1. primary fact
		sale := Sale{
			ID:            SaleID(newID()),
			Status:        draft.Status,
			CustomerID:    draft.CustomerID,
			ResellerID:    draft.ResellerID,
			IsTaxed:       draft.IsTaxed,
			PaymentMethod: draft.PaymentMethod,
			Notes:         draft.Notes,
			ActorID:       draft.Actor.ID,
			CreatedAt:     now,
		}
		if sale.PaymentMethod == "" {
			sale.PaymentMethod = MethodCash
		}
		products := make(map[ProductID]Product, len(draft.Items))
		for i, it := range draft.Items {
			p, err := s.GetProduct(ctx, it.ProductID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return invalid(fmt.Sprintf("items[%d].product_id", i), "product %s not found", it.ProductID)
				}
				return fmt.Errorf("failed to load product %s: %w", it.ProductID, err)
			}
			products[p.ID] = p

			price := p.SalePrice
			if it.UnitPrice.Valid {
				price = it.UnitPrice.Decimal
			}
			item := SaleItem{
				ProductID:       it.ProductID,
				Quantity:        it.Quantity,
				UnitPrice:       Money(price),
				DealershipPrice: Money(it.DealershipPrice),
			}
			item.LineTotal = Money(item.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
			sale.Items = append(sale.Items, item)
			sale.Subtotal = sale.Subtotal.Add(item.LineTotal)
		}
		sale.TotalAmount = sale.Subtotal
		if sale.IsTaxed {
			sale.TaxAmount = Money(sale.TotalAmount.Mul(d.params.TaxRate))
		}
		if reseller != nil && sale.Status.MovesStockOut() {
			sale.Commission = Commission(sale.Items, commissionShare(d.params, reseller))
		}
		if err := s.CreateSale(ctx, sale); err != nil {
			return fmt.Errorf("failed to create sale: %w", err)
		}
		res.Sale = sale
		ref := Reference{Kind: RefSale, ID: string(sale.ID)}

		// 2. inventory
		for _, it := range sale.Items {
			in := MovementInput{
				ProductID: it.ProductID,
				Delta:     -it.Quantity,
				Kind:      MovementSale,
				Reason:    ReasonSale,
				Reference: ref,
				Actor:     draft.Actor,
			}
			if sale.Status == SaleReceived {
				in.Delta = it.Quantity
				in.Kind = MovementReceipt
				in.Reason = ReasonPurchase
				in.UnitCost = it.UnitPrice
			}
			m, err := d.Inventory.ApplyMovement(ctx, s, in)
			if err != nil {
				return err
			}
			res.Movements = append(res.Movements, m)
		}

		// 3. balances
		touched := map[PartyRef]bool{}
		if customer != nil && sale.Status == SaleCollectedToPay && sale.TotalAmount.IsPositive() {
			e, err := d.Balances.ApplyBalanceDelta(ctx, s, BalanceInput{
				Party: customer.Ref(), Amount: sale.TotalAmount, Reason: BalanceCreditSale, Reference: ref, Actor: draft.Actor,
			})
			if err != nil {
				return err
			}
			res.BalanceEntries = append(res.BalanceEntries, e)
			touched[customer.Ref()] = true
		}
		if reseller != nil && sale.Commission.IsPositive() {
			e, err := d.Balances.ApplyBalanceDelta(ctx, s, BalanceInput{
				Party: reseller.Ref(), Amount: sale.Commission, Reason: BalanceCommission, Reference: ref, Actor: draft.Actor,
			})
			if err != nil {
				return err
			}
			res.BalanceEntries = append(res.BalanceEntries, e)
			touched[reseller.Ref()] = true
		}

		// 4. collections
		cols, err := d.Collections.OnSaleStatusSet(ctx, s, sale, customer, reseller)
		if err != nil {
			return err
		}
		res.Collections = append(res.Collections, cols...)
		var refreshed []Party
		for _, p := range []*Party{customer, reseller} {
			if p == nil || !touched[p.Ref()] {
				continue
			}
			fresh, err := s.GetParty(ctx, p.Ref())
			if err != nil {
				return fmt.Errorf("failed to reload %s: %w", p.Ref(), err)
			}
			refreshed = append(refreshed, fresh)
			catchUp, err := d.Collections.EnsureOutstanding(ctx, s, fresh)
			if err != nil {
				return err
			}
			if catchUp != nil {
				res.Collections = append(res.Collections, *catchUp)
			}
		}

		// 5. alerts
		for _, m := range res.Movements {
			if m.Delta >= 0 {
				continue
			}
			n, err := d.Alerts.CheckLowStock(ctx, s, products[m.ProductID], m.QuantityAfter)
			if err != nil {
				return err
			}
			res.Notifications = appendNotification(res.Notifications, n)
		}
		for _, p := range refreshed {
			if p.Kind != PartyCustomer {
				continue
			}
			n, err := d.Alerts.CheckPaymentDue(ctx, s, p)
			if err != nil {
				return err
			}
			res.Notifications = appendNotification(res.Notifications, n)
		}

		// 6. receipt
		if sale.Status.MovesStockOut() && d.issueReceipt(draft) {
			r, err := d.issueSaleReceipt(ctx, s, sale, draft.Actor)
			if err != nil {
				return err
			}
			res.Receipt = &r
		}
		return nil
	})
	if err != nil {
		return SaleResult{}, err
	}

	d.log.Info("sale recorded",
		zap.String("sale_id", string(res.Sale.ID)),
		zap.String("status", string(res.Sale.Status)),
		zap.String("total", res.Sale.TotalAmount.StringFixed(MoneyPlaces)),
		zap.Int("movements", len(res.Movements)),
		zap.Int("collections", len(res.Collections)),
		zap.Int("notifications", len(res.Notifications)),
		zap.String("actor", draft.Actor.ID),
	)
	return res, nil
}

func (d *Dispatcher) issueReceipt(draft SaleDraft) bool {
	if draft.IssueReceipt != nil {
		return *draft.IssueReceipt
	}
	return d.params.IssueReceipts
}

func (d *Dispatcher) issueSaleReceipt(ctx context.Context, s Store, sale Sale, actor Actor) (Receipt, error) {
	now := d.clock.Now()
	number, err := d.Numbers.Next(ctx, s, ReceiptScope(now))
	if err != nil {
		return Receipt{}, err
	}
	r := Receipt{
		ID:        newID(),
		Number:    number,
		SaleID:    sale.ID,
		Amount:    sale.TotalAmount,
		ActorID:   actor.ID,
		CreatedAt: now,
	}
	if err := s.CreateReceipt(ctx, r); err != nil {
		return Receipt{}, fmt.Errorf("failed to create receipt: %w", err)
	}
	return r, nil
}

// optionalParty loads a party when id is set. A missing party is a
// validation error on field.
func optionalParty(ctx context.Context, s Store, kind PartyKind, id PartyID, field string) (*Party, error) {
	if id == "" {
		return nil, nil
	}
	p, err := s.GetParty(ctx, PartyRef{Kind: kind, ID: id})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalid(field, "%s %s not found", kind, id)
		}
		return nil, fmt.Errorf("failed to load %s %s: %w", kind, id, err)
	}
	return &p, nil
}

func appendNotification(ns []Notification, n *Notification) []Notification {
	if n == nil {
		return ns
	}
	return append(ns, *n)
}
