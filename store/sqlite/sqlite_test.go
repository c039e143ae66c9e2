package sqlite_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	testNow = time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)
	clerk   = ledger.Actor{ID: "u-1", Name: "Clerk"}
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestDispatcher(t *testing.T) (*ledger.Dispatcher, *sqlite.Store, *ledger.FixedClock) {
	t.Helper()
	store := newTestStore(t)
	clock := ledger.NewFixedClock(testNow)
	return ledger.NewDispatcher(store, ledger.DefaultParams(), ledger.WithClock(clock)), store, clock
}

func inTx(t *testing.T, store *sqlite.Store, fn func(ctx context.Context, s ledger.Store) error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.WithTx(ctx, func(s ledger.Store) error { return fn(ctx, s) }))
}

// =============================================================================
// END-TO-END TESTS
// =============================================================================

func TestStore_DispatcherRoundTrip(t *testing.T) {
	// GIVEN: A migrated SQLite store behind the dispatcher
	// WHEN: A reseller credit sale is recorded and its debt settled
	// THEN: Everything reads back exactly and the audit is clean

	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()
	threshold := int64(5)

	prod, err := d.RegisterProduct(ctx, ledger.ProductDraft{
		Actor: clerk, Name: "Phone", Category: "Electronics",
		SalePrice: decimal.RequireFromString("120"), UnitCost: decimal.RequireFromString("70.50"),
		LowStockThreshold: &threshold, OpeningStock: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, "ELE-2026-0001", prod.Product.Code)

	cust, err := d.RegisterCustomer(ctx, ledger.PartyDraft{Actor: clerk, Name: "Rudo", Email: "rudo@example.com"})
	require.NoError(t, err)
	resl, err := d.RegisterReseller(ctx, ledger.PartyDraft{
		Actor: clerk, Name: "Tendai", CommissionRate: decimal.NewNullDecimal(decimal.RequireFromString("0.2")),
	})
	require.NoError(t, err)

	sale, err := d.RecordSale(ctx, ledger.SaleDraft{
		Actor: clerk, Status: ledger.SaleCollectedToPay,
		CustomerID: cust.Party.ID, ResellerID: resl.Party.ID,
		Items: []ledger.SaleItemDraft{
			{ProductID: prod.Product.ID, Quantity: 2, DealershipPrice: decimal.RequireFromString("80")},
			{ProductID: prod.Product.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)

	// 2 * (120 - 80) + 120 * 0.2
	assert.Equal(t, "104.00", sale.Sale.Commission.StringFixed(2))
	assert.Equal(t, "360.00", sale.Sale.TotalAmount.StringFixed(2))
	require.NotNil(t, sale.Receipt)
	assert.Equal(t, "RCP-20261015-0001", sale.Receipt.Number)
	assert.Len(t, sale.Collections, 2)
	assert.Equal(t, 1, len(sale.Notifications), "stock 5 is at the threshold")

	stored, err := d.Sale(ctx, sale.Sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.True(t, stored.Items[0].DealershipPrice.Equal(decimal.RequireFromString("80")))
	assert.Equal(t, ledger.SaleCollectedToPay, stored.Status)

	receipt, err := d.ReceiptForSale(ctx, sale.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.Receipt.Number, receipt.Number)

	var debt ledger.PaymentCollection
	for _, c := range sale.Collections {
		if c.Type == ledger.CollectionCustomerDebt {
			debt = c
		}
	}
	require.NotEmpty(t, debt.ID)

	out, err := d.MarkCollectionPaid(ctx, debt.ID, clerk)
	require.NoError(t, err)
	require.NotNil(t, out.Sale)
	assert.Equal(t, ledger.SaleSold, out.Sale.Status)

	party, err := d.Party(ctx, cust.Party.Ref())
	require.NoError(t, err)
	assert.True(t, party.Balance.IsZero())
	assert.Nil(t, party.BalanceSince)

	reseller, err := d.Party(ctx, resl.Party.Ref())
	require.NoError(t, err)
	assert.Equal(t, "104.00", reseller.Balance.StringFixed(2))
	require.True(t, reseller.CommissionRate.Valid)
	assert.True(t, reseller.CommissionRate.Decimal.Equal(decimal.RequireFromString("0.2")))
	require.NotNil(t, reseller.BalanceSince)
	assert.Equal(t, testNow, reseller.BalanceSince.UTC())

	rep, err := d.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Violations)
	assert.Equal(t, 1, rep.ProductsChecked)
	assert.Equal(t, 2, rep.PartiesChecked)
}

func TestStore_InvoiceLifecycle(t *testing.T) {
	d, _, clock := newTestDispatcher(t)
	ctx := context.Background()

	cust, err := d.RegisterCustomer(ctx, ledger.PartyDraft{Actor: clerk, Name: "Rudo"})
	require.NoError(t, err)
	inv, err := d.RecordInvoice(ctx, ledger.InvoiceDraft{
		Actor: clerk, CustomerID: cust.Party.ID,
		Items: []ledger.InvoiceItemDraft{{Description: "Repairs", Quantity: 3, UnitPrice: decimal.NewNullDecimal(decimal.RequireFromString("12.25"))}},
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-202610-0001", inv.Invoice.Number)

	got, err := d.Invoice(ctx, inv.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "36.75", got.Total.StringFixed(2))
	assert.True(t, testNow.AddDate(0, 0, 30).Equal(got.DueDate))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Repairs", got.Items[0].Description)

	clock.Advance(31 * 24 * time.Hour)
	rep, err := d.Sweep(ctx, ledger.SweeperActor)
	require.NoError(t, err)
	assert.Len(t, rep.OverdueInvoices, 1)
	assert.Len(t, rep.PaymentDue, 1)
	assert.Equal(t, "36.75", rep.OverdueAmount.StringFixed(2))

	overdue, err := d.Invoices(ctx, ledger.InvoiceOverdue)
	require.NoError(t, err)
	assert.Len(t, overdue, 1)
}

func TestStore_InvoicePaymentsAccumulate(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	cust, err := d.RegisterCustomer(ctx, ledger.PartyDraft{Actor: clerk, Name: "Rudo"})
	require.NoError(t, err)
	inv, err := d.RecordInvoice(ctx, ledger.InvoiceDraft{
		Actor: clerk, CustomerID: cust.Party.ID,
		Items: []ledger.InvoiceItemDraft{{Description: "Repairs", Quantity: 2, UnitPrice: decimal.NewNullDecimal(decimal.RequireFromString("50"))}},
	})
	require.NoError(t, err)

	pay := func(amount string) ledger.PaymentResult {
		res, err := d.RecordPayment(ctx, ledger.PaymentDraft{
			Actor: clerk, CustomerID: cust.Party.ID, InvoiceID: inv.Invoice.ID, Amount: decimal.RequireFromString(amount),
		})
		require.NoError(t, err)
		return res
	}

	assert.Nil(t, pay("30.25").Invoice)
	last := pay("69.75")
	require.NotNil(t, last.Invoice)
	assert.Equal(t, ledger.InvoicePaid, last.Invoice.Status)
	require.Len(t, last.Settled, 1)
	assert.Equal(t, inv.Collection.ID, last.Settled[0].ID)

	party, err := d.Party(ctx, cust.Party.Ref())
	require.NoError(t, err)
	assert.True(t, party.Balance.IsZero())

	rep, err := d.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Violations)
}

func TestStore_RecordExpense(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	res, err := d.RecordExpense(ctx, ledger.ExpenseDraft{
		Actor: clerk, Type: ledger.ExpenseUtilities, Description: "Electricity", Amount: decimal.RequireFromString("82.40"),
	})
	require.NoError(t, err)

	ns, err := d.Notifications(ctx, true)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, res.Notifications[0].ID, ns[0].ID)
	assert.Equal(t, ledger.Reference{Kind: ledger.RefExpense, ID: res.Expense.ID}, ns[0].Related)
}

func TestStore_ConcurrentSalesAreSerialized(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	prod, err := d.RegisterProduct(ctx, ledger.ProductDraft{
		Actor: clerk, Name: "Bread", Category: "Bakery", SalePrice: decimal.RequireFromString("1.10"), OpeningStock: 30,
	})
	require.NoError(t, err)

	const workers = 14
	numbers := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := d.RecordSale(ctx, ledger.SaleDraft{
				Actor: clerk, Status: ledger.SaleSold,
				Items: []ledger.SaleItemDraft{{ProductID: prod.Product.ID, Quantity: 2}},
			})
			if assert.NoError(t, err) && assert.NotNil(t, res.Receipt) {
				numbers[i] = res.Receipt.Number
			}
		}(i)
	}
	wg.Wait()

	qty, err := d.StockLevel(ctx, prod.Product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), qty)

	sort.Strings(numbers)
	for i, n := range numbers {
		assert.Equal(t, fmt.Sprintf("RCP-20261015-%04d", i+1), n)
	}

	// Stock reached 4 and then 2; both are low but only one alert is raised.
	ns, err := d.Notifications(ctx, false)
	require.NoError(t, err)
	low := 0
	for _, n := range ns {
		if n.Type == ledger.NotifyLowStock {
			low++
		}
	}
	assert.Equal(t, 1, low)
}

// =============================================================================
// STORE CONTRACT TESTS
// =============================================================================

func TestStore_NumberingSeedsFromRegisteredNumbers(t *testing.T) {
	store := newTestStore(t)
	authority := ledger.NewDispatcher(store, ledger.DefaultParams()).Numbers
	scope := ledger.InvoiceScope(testNow)

	inTx(t, store, func(ctx context.Context, s ledger.Store) error {
		return s.RegisterNumber(ctx, "INV-202610-0007", scope.Key(), testNow)
	})

	var got []string
	inTx(t, store, func(ctx context.Context, s ledger.Store) error {
		for _i := 0; _i < 3; _i++ {
			n, err := authority.Next(ctx, s, scope)
			if err != nil {
				return err
			}
			got = append(got, n)
		}
		return nil
	})
	assert.Equal(t, []string{"INV-202610-0008", "INV-202610-0009", "INV-202610-0010"}, got)

	err := store.WithTx(context.Background(), func(s ledger.Store) error {
		return s.RegisterNumber(context.Background(), "INV-202610-0009", scope.Key(), testNow)
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateNumber)
}

func TestStore_RolledBackNumberIsReissued(t *testing.T) {
	store := newTestStore(t)
	authority := ledger.NewDispatcher(store, ledger.DefaultParams()).Numbers
	scope := ledger.ReceiptScope(testNow)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s ledger.Store) error {
		if _, err := authority.Next(ctx, s, scope); err != nil {
			return err
		}
		return fmt.Errorf("abandon")
	})
	require.ErrorContains(t, err, "abandon")

	var n string
	inTx(t, store, func(ctx context.Context, s ledger.Store) error {
		var err error
		n, err = authority.Next(ctx, s, scope)
		return err
	})
	assert.Equal(t, "RCP-20261015-0001", n)
}

func TestStore_OnePendingCollectionPerKey(t *testing.T) {
	store := newTestStore(t)
	ref := ledger.PartyRef{Kind: ledger.PartyCustomer, ID: "c-1"}
	col := ledger.PaymentCollection{
		ID: "col-1", Party: ref, Type: ledger.CollectionCustomerDebt, ReasonKey: "sale:s-1",
		Amount: decimal.RequireFromString("10"), DueDate: testNow, Status: ledger.CollectionPending, CreatedAt: testNow,
	}

	inTx(t, store, func(ctx context.Context, s ledger.Store) error { return s.InsertCollection(ctx, col) })

	dup := col
	dup.ID = "col-2"
	err := store.WithTx(context.Background(), func(s ledger.Store) error {
		return s.InsertCollection(context.Background(), dup)
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateObligation)

	inTx(t, store, func(ctx context.Context, s ledger.Store) error {
		if err := s.ResolveCollection(ctx, "col-1", ledger.CollectionPaid, testNow, clerk.ID); err != nil {
			return err
		}
		return s.InsertCollection(ctx, dup)
	})

	found, err := store.FindPendingCollection(context.Background(), ref, ledger.CollectionCustomerDebt, "sale:s-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.CollectionID("col-2"), found.ID)

	err = store.WithTx(context.Background(), func(s ledger.Store) error {
		return s.ResolveCollection(context.Background(), "col-1", ledger.CollectionCancelled, testNow, clerk.ID)
	})
	assert.ErrorIs(t, err, ledger.ErrStaleStatus)

	paid, err := store.GetCollection(context.Background(), "col-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.CollectionPaid, paid.Status)
	require.NotNil(t, paid.ResolvedAt)
	assert.Equal(t, clerk.ID, paid.ResolvedBy)
}

func TestStore_ClaimAlertCooldown(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := ledger.AlertKey{Type: ledger.NotifyLowStock, Related: ledger.Reference{Kind: ledger.RefProduct, ID: "p-1"}}

	claim := func(at time.Time) bool {
		ok, err := store.ClaimAlert(ctx, key, at, 24*time.Hour)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, claim(testNow), "first claim")
	assert.False(t, claim(testNow.Add(5*time.Minute)), "inside the window")
	assert.True(t, claim(testNow.Add(24*time.Hour)), "window elapsed")
	assert.False(t, claim(testNow.Add(30*time.Hour)), "window restarts at the last claim")
}

func TestStore_BalanceSinceTracksSign(t *testing.T) {
	store := newTestStore(t)
	ref := ledger.PartyRef{Kind: ledger.PartyCustomer, ID: "c-1"}
	inTx(t, store, func(ctx context.Context, s ledger.Store) error {
		return s.CreateParty(ctx, ledger.Party{
			ID: ref.ID, Kind: ref.Kind, Name: "Rudo", AccountCode: "CUST-2026-0001",
			PaymentTermsDays: 30, CreatedAt: testNow, CreatedBy: clerk.ID,
		})
	})

	apply := func(id, amount string, at time.Time) decimal.Decimal {
		var after decimal.Decimal
		inTx(t, store, func(ctx context.Context, s ledger.Store) error {
			var err error
			after, err = s.ApplyBalanceEntry(ctx, ledger.BalanceEntry{
				ID: id, Party: ref, Delta: decimal.RequireFromString(amount),
				Reason: ledger.BalanceCreditSale, ActorID: clerk.ID, CreatedAt: at,
			})
			return err
		})
		return after
	}
	since := func() *time.Time {
		p, err := store.GetParty(context.Background(), ref)
		require.NoError(t, err)
		return p.BalanceSince
	}

	assert.Equal(t, "40.00", apply("e-1", "40", testNow).StringFixed(2))
	require.NotNil(t, since())
	assert.Equal(t, testNow, *since())

	apply("e-2", "10.55", testNow.Add(time.Hour))
	assert.Equal(t, testNow, *since(), "stays at the first crossing")

	assert.Equal(t, "0.00", apply("e-3", "-50.55", testNow.Add(2*time.Hour)).StringFixed(2))
	assert.Nil(t, since())

	entries, err := store.BalanceEntries(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "50.55", entries[1].BalanceAfter.StringFixed(2))
}

func TestStore_MissingRowsAreNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetProduct(ctx, "nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = store.GetParty(ctx, ledger.PartyRef{Kind: ledger.PartyReseller, ID: "nope"})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = store.GetSale(ctx, "nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = store.GetInvoice(ctx, "nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = store.ReceiptForSale(ctx, "nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = store.GetCollection(ctx, "nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.ErrorIs(t, store.MarkNotificationRead(ctx, "nope"), ledger.ErrNotFound)

	err = store.WithTx(ctx, func(s ledger.Store) error {
		_, err := s.ApplyMovement(ctx, ledger.StockMovement{ID: "m-1", ProductID: "nope", Delta: 1})
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestStore_Ping(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
