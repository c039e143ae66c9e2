package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	testNow = time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)
	cashier = ledger.Actor{ID: "u-1", Name: "Cashier"}
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	mem   *store.Memory
	clock *ledger.FixedClock
	d     *ledger.Dispatcher
}

func newFixture(t *testing.T, tweak ...func(*ledger.Params)) *fixture {
	t.Helper()
	params := ledger.DefaultParams()
	for _, fn := range tweak {
		fn(&params)
	}
	mem := store.NewMemory()
	clock := ledger.NewFixedClock(testNow)
	return &fixture{
		t:     t,
		ctx:   context.Background(),
		mem:   mem,
		clock: clock,
		d:     ledger.NewDispatcher(mem, params, ledger.WithClock(clock)),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func money(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(ledger.MoneyPlaces), msgAndArgs...)
}

func (f *fixture) product(name, category, price, cost string, stock, threshold int64) ledger.Product {
	f.t.Helper()
	res, err := f.d.RegisterProduct(f.ctx, ledger.ProductDraft{
		Actor:             cashier,
		Name:              name,
		Category:          category,
		SalePrice:         dec(price),
		UnitCost:          dec(cost),
		LowStockThreshold: &threshold,
		OpeningStock:      stock,
	})
	require.NoError(f.t, err)
	return res.Product
}

func (f *fixture) customer(name string) ledger.Party {
	f.t.Helper()
	res, err := f.d.RegisterCustomer(f.ctx, ledger.PartyDraft{Actor: cashier, Name: name})
	require.NoError(f.t, err)
	return res.Party
}

func (f *fixture) reseller(name string) ledger.Party {
	f.t.Helper()
	res, err := f.d.RegisterReseller(f.ctx, ledger.PartyDraft{Actor: cashier, Name: name})
	require.NoError(f.t, err)
	return res.Party
}

func (f *fixture) stock(id ledger.ProductID) int64 {
	f.t.Helper()
	qty, err := f.d.StockLevel(f.ctx, id)
	require.NoError(f.t, err)
	return qty
}

func (f *fixture) balance(p ledger.Party) decimal.Decimal {
	f.t.Helper()
	b, err := f.d.Balance(f.ctx, p.Ref())
	require.NoError(f.t, err)
	return b
}

func (f *fixture) sell(status ledger.SaleStatus, customer ledger.PartyID, items ...ledger.SaleItemDraft) ledger.SaleResult {
	f.t.Helper()
	res, err := f.d.RecordSale(f.ctx, ledger.SaleDraft{
		Actor:      cashier,
		Status:     status,
		CustomerID: customer,
		Items:      items,
	})
	require.NoError(f.t, err)
	return res
}

func item(id ledger.ProductID, qty int64) ledger.SaleItemDraft {
	return ledger.SaleItemDraft{ProductID: id, Quantity: qty}
}

func countByType(ns []ledger.Notification, typ ledger.NotificationType) int {
	n := 0
	for _, x := range ns {
		if x.Type == typ {
			n++
		}
	}
	return n
}

func (f *fixture) notifications(typ ledger.NotificationType) int {
	f.t.Helper()
	ns, err := f.d.Notifications(f.ctx, false)
	require.NoError(f.t, err)
	return countByType(ns, typ)
}
