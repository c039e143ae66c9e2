package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READ ACCESSORS - Outside any unit of work
// =============================================================================

func (d *Dispatcher) Product(ctx context.Context, id ProductID) (Product, error) {
	return d.store.GetProduct(ctx, id)
}

func (d *Dispatcher) Products(ctx context.Context) ([]Product, error) {
	return d.store.ListProducts(ctx)
}

func (d *Dispatcher) StockLevel(ctx context.Context, id ProductID) (int64, error) {
	p, err := d.store.GetProduct(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.StockQuantity, nil
}

func (d *Dispatcher) Movements(ctx context.Context, id ProductID) ([]StockMovement, error) {
	if _, err := d.store.GetProduct(ctx, id); err != nil {
		return nil, err
	}
	return d.store.Movements(ctx, id)
}

func (d *Dispatcher) Party(ctx context.Context, ref PartyRef) (Party, error) {
	return d.store.GetParty(ctx, ref)
}

func (d *Dispatcher) Parties(ctx context.Context, kind PartyKind) ([]Party, error) {
	return d.store.ListParties(ctx, kind)
}

func (d *Dispatcher) Balance(ctx context.Context, ref PartyRef) (decimal.Decimal, error) {
	p, err := d.store.GetParty(ctx, ref)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Balance, nil
}

func (d *Dispatcher) BalanceEntries(ctx context.Context, ref PartyRef) ([]BalanceEntry, error) {
	if _, err := d.store.GetParty(ctx, ref); err != nil {
		return nil, err
	}
	return d.store.BalanceEntries(ctx, ref)
}

func (d *Dispatcher) Sale(ctx context.Context, id SaleID) (Sale, error) {
	return d.store.GetSale(ctx, id)
}

func (d *Dispatcher) Invoice(ctx context.Context, id InvoiceID) (Invoice, error) {
	return d.store.GetInvoice(ctx, id)
}

func (d *Dispatcher) Invoices(ctx context.Context, status InvoiceStatus) ([]Invoice, error) {
	return d.store.ListInvoices(ctx, status)
}

func (d *Dispatcher) ReceiptForSale(ctx context.Context, id SaleID) (Receipt, error) {
	return d.store.ReceiptForSale(ctx, id)
}

func (d *Dispatcher) Collection(ctx context.Context, id CollectionID) (PaymentCollection, error) {
	return d.store.GetCollection(ctx, id)
}

func (d *Dispatcher) PaymentCollections(ctx context.Context, filter CollectionFilter) ([]PaymentCollection, error) {
	return d.store.Collections(ctx, filter)
}

func (d *Dispatcher) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	return d.store.Notifications(ctx, unreadOnly)
}
