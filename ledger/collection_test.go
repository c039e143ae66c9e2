package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// SETTLEMENT TESTS
// =============================================================================

func creditSale(f *fixture, price string) (ledger.Party, ledger.SaleResult) {
	f.t.Helper()
	p := f.product("Appliance", "Appliances", price, "1", 10, 0)
	c := f.customer("Rudo")
	return c, f.sell(ledger.SaleCollectedToPay, c.ID, item(p.ID, 1))
}

func TestMarkCollectionPaid_SettlesDebt(t *testing.T) {
	// GIVEN: A customer owing 150 through a collected_to_pay sale
	// WHEN: The 150 customer_debt collection is marked paid
	// THEN: The balance is 0 and the sale becomes sold

	f := newFixture(t)
	c, sale := creditSale(f, "150")
	col := sale.Collections[0]

	out, err := f.d.MarkCollectionPaid(f.ctx, col.ID, cashier)
	require.NoError(t, err)

	assert.True(t, f.balance(c).IsZero())
	assert.Equal(t, ledger.CollectionPaid, out.Collection.Status)
	assert.Equal(t, cashier.ID, out.Collection.ResolvedBy)
	require.NotNil(t, out.Collection.ResolvedAt)
	assert.Equal(t, testNow, *out.Collection.ResolvedAt)

	require.NotNil(t, out.Entry)
	assertMoney(t, "-150.00", out.Entry.Delta)
	assert.Equal(t, ledger.BalanceCollectionPaid, out.Entry.Reason)

	require.NotNil(t, out.Sale)
	assert.Equal(t, ledger.SaleSold, out.Sale.Status)
	stored, err := f.d.Sale(f.ctx, sale.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.SaleSold, stored.Status)

	assert.Nil(t, out.CatchUp)
}

func TestMarkCollectionPaid_ClampsAtZero(t *testing.T) {
	// GIVEN: A 150 debt of which 50 was already paid directly
	// WHEN: The 150 collection is marked paid
	// THEN: Only the remaining 100 is settled; the balance stops at 0

	f := newFixture(t)
	c, sale := creditSale(f, "150")
	_, err := f.d.RecordPayment(f.ctx, ledger.PaymentDraft{Actor: cashier, CustomerID: c.ID, Amount: dec("50")})
	require.NoError(t, err)

	out, err := f.d.MarkCollectionPaid(f.ctx, sale.Collections[0].ID, cashier)
	require.NoError(t, err)

	require.NotNil(t, out.Entry)
	assertMoney(t, "-100.00", out.Entry.Delta)
	assertMoney(t, "0.00", f.balance(c))
}

func TestRecordPayment_ClearingBalanceSettlesPendingDebt(t *testing.T) {
	// GIVEN: A customer owing 150 through a collected_to_pay sale
	// WHEN: A 150 payment is recorded without naming the debt
	// THEN: The debt is settled by the payment and can't be settled again

	f := newFixture(t)
	c, sale := creditSale(f, "150")

	res, err := f.d.RecordPayment(f.ctx, ledger.PaymentDraft{Actor: cashier, CustomerID: c.ID, Amount: dec("150")})
	require.NoError(t, err)

	require.Len(t, res.Settled, 1)
	assert.Equal(t, sale.Collections[0].ID, res.Settled[0].ID)
	assert.Equal(t, ledger.CollectionPaid, res.Settled[0].Status)
	stored, err := f.d.Sale(f.ctx, sale.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.SaleSold, stored.Status)

	_, err = f.d.MarkCollectionPaid(f.ctx, sale.Collections[0].ID, cashier)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	es, err := f.d.BalanceEntries(f.ctx, c.Ref())
	require.NoError(t, err)
	assert.Len(t, es, 2, "sale and payment only")
	assert.True(t, f.balance(c).IsZero())
}

func TestRecordPayment_PartialPaymentLeavesDebtPending(t *testing.T) {
	f := newFixture(t)
	c, sale := creditSale(f, "150")

	res, err := f.d.RecordPayment(f.ctx, ledger.PaymentDraft{Actor: cashier, CustomerID: c.ID, Amount: dec("149.99")})
	require.NoError(t, err)
	assert.Empty(t, res.Settled)

	col, err := f.d.Collection(f.ctx, sale.Collections[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CollectionPending, col.Status)
}

func TestMarkCollectionPaid_InvoiceBecomesPaid(t *testing.T) {
	f := newFixture(t)
	c := f.customer("Rudo")
	inv, err := f.d.RecordInvoice(f.ctx, ledger.InvoiceDraft{
		Actor: cashier, CustomerID: c.ID,
		Items: []ledger.InvoiceItemDraft{{Description: "Service", Quantity: 1, UnitPrice: money("60")}},
	})
	require.NoError(t, err)

	out, err := f.d.MarkCollectionPaid(f.ctx, inv.Collection.ID, cashier)
	require.NoError(t, err)

	require.NotNil(t, out.Invoice)
	assert.Equal(t, ledger.InvoicePaid, out.Invoice.Status)
	stored, err := f.d.Invoice(f.ctx, inv.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.InvoicePaid, stored.Status)
	assert.True(t, f.balance(c).IsZero())
}

// =============================================================================
// INVOICE PAYMENT TESTS
// =============================================================================

func invoiceFor(f *fixture, c ledger.Party, amount string) ledger.InvoiceResult {
	f.t.Helper()
	inv, err := f.d.RecordInvoice(f.ctx, ledger.InvoiceDraft{
		Actor: cashier, CustomerID: c.ID,
		Items: []ledger.InvoiceItemDraft{{Description: "Service", Quantity: 1, UnitPrice: money(amount)}},
	})
	require.NoError(f.t, err)
	require.NotNil(f.t, inv.Collection)
	return inv
}

func (f *fixture) payInvoice(c ledger.Party, inv ledger.InvoiceID, amount string) ledger.PaymentResult {
	f.t.Helper()
	res, err := f.d.RecordPayment(f.ctx, ledger.PaymentDraft{
		Actor: cashier, CustomerID: c.ID, InvoiceID: inv, Amount: dec(amount),
	})
	require.NoError(f.t, err)
	return res
}

func TestRecordPayment_TaggedPaymentSettlesInvoice(t *testing.T) {
	// GIVEN: A customer with a pending 100 invoice
	// WHEN: A 100 payment tagged with the invoice is recorded
	// THEN: The invoice and its collection are paid without a second balance entry

	f := newFixture(t)
	c := f.customer("Rudo")
	inv := invoiceFor(f, c, "100")

	res := f.payInvoice(c, inv.Invoice.ID, "100")

	require.NotNil(t, res.Invoice)
	assert.Equal(t, ledger.InvoicePaid, res.Invoice.Status)
	require.Len(t, res.Settled, 1)
	assert.Equal(t, inv.Collection.ID, res.Settled[0].ID)
	assert.True(t, f.balance(c).IsZero())

	stored, err := f.d.Invoice(f.ctx, inv.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.InvoicePaid, stored.Status)
	col, err := f.d.Collection(f.ctx, inv.Collection.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CollectionPaid, col.Status)

	es, err := f.d.BalanceEntries(f.ctx, c.Ref())
	require.NoError(t, err)
	assert.Len(t, es, 2, "invoice and payment only")
}

func TestRecordPayment_SettledInvoiceCannotWipeLaterDebt(t *testing.T) {
	// GIVEN: A 100 invoice paid by a tagged payment, then a 60 credit sale
	// WHEN: The invoice collection is marked paid again and a sweep runs later
	// THEN: The mark is rejected, the 60 stays owed, and only the sale is overdue

	f := newFixture(t)
	c := f.customer("Rudo")
	inv := invoiceFor(f, c, "100")
	f.payInvoice(c, inv.Invoice.ID, "100")

	p := f.product("Kettle", "Appliances", "60", "30", 5, 0)
	sale := f.sell(ledger.SaleCollectedToPay, c.ID, item(p.ID, 1))

	_, err := f.d.MarkCollectionPaid(f.ctx, inv.Collection.ID, cashier)
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	assertMoney(t, "60.00", f.balance(c))

	f.clock.Advance(31 * 24 * time.Hour)
	rep, err := f.d.Sweep(f.ctx, ledger.SweeperActor)
	require.NoError(t, err)
	assert.Empty(t, rep.OverdueInvoices)
	assert.Equal(t, 1, rep.OverdueCollections)
	assertMoney(t, "60.00", rep.OverdueAmount)

	col, err := f.d.Collection(f.ctx, sale.Collections[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.CollectionPending, col.Status)
}

func TestRecordPayment_PartInvoicePaymentsAccumulate(t *testing.T) {
	// GIVEN: A 100 invoice with 40 paid against it
	// WHEN: It goes overdue and the remaining 60 is paid against it
	// THEN: The sweep counts 60 outstanding, and the second payment settles it

	f := newFixture(t)
	c := f.customer("Rudo")
	inv := invoiceFor(f, c, "100")

	first := f.payInvoice(c, inv.Invoice.ID, "40")
	assert.Nil(t, first.Invoice)
	assert.Empty(t, first.Settled)
	assertMoney(t, "60.00", f.balance(c))

	f.clock.Advance(31 * 24 * time.Hour)
	rep, err := f.d.Sweep(f.ctx, ledger.SweeperActor)
	require.NoError(t, err)
	require.Len(t, rep.OverdueInvoices, 1)
	assertMoney(t, "60.00", rep.OverdueAmount)

	second := f.payInvoice(c, inv.Invoice.ID, "60")
	require.NotNil(t, second.Invoice)
	assert.Equal(t, ledger.InvoicePaid, second.Invoice.Status)
	require.Len(t, second.Settled, 1)
	assert.True(t, f.balance(c).IsZero())
}

func TestMarkCollectionPaid_InvoiceSettlesOnlyTheRemainder(t *testing.T) {
	// GIVEN: A 100 invoice with 40 paid against it and a 50 credit sale
	// WHEN: The invoice collection is marked paid
	// THEN: Only the 60 still owed on the invoice is settled

	f := newFixture(t)
	c := f.customer("Rudo")
	inv := invoiceFor(f, c, "100")
	f.payInvoice(c, inv.Invoice.ID, "40")
	p := f.product("Kettle", "Appliances", "50", "30", 5, 0)
	f.sell(ledger.SaleCollectedToPay, c.ID, item(p.ID, 1))
	assertMoney(t, "110.00", f.balance(c))

	out, err := f.d.MarkCollectionPaid(f.ctx, inv.Collection.ID, cashier)
	require.NoError(t, err)

	require.NotNil(t, out.Entry)
	assertMoney(t, "-60.00", out.Entry.Delta)
	assertMoney(t, "50.00", f.balance(c))
	require.NotNil(t, out.Invoice)
	assert.Equal(t, ledger.InvoicePaid, out.Invoice.Status)
}

func TestMarkCollectionPaid_CatchUpForRemainingBalance(t *testing.T) {
	// GIVEN: A customer owing 100 (sale) + 80 (invoice), sale debt cancelled
	// WHEN: The invoice collection is paid
	// THEN: The remaining 100 gets an outstanding catch-up collection

	f := newFixture(t)
	c, sale := creditSale(f, "100")
	inv, err := f.d.RecordInvoice(f.ctx, ledger.InvoiceDraft{
		Actor: cashier, CustomerID: c.ID,
		Items: []ledger.InvoiceItemDraft{{Description: "Delivery", Quantity: 1, UnitPrice: money("80")}},
	})
	require.NoError(t, err)
	_, err = f.d.CancelCollection(f.ctx, sale.Collections[0].ID, cashier)
	require.NoError(t, err)

	out, err := f.d.MarkCollectionPaid(f.ctx, inv.Collection.ID, cashier)
	require.NoError(t, err)

	assertMoney(t, "100.00", f.balance(c))
	require.NotNil(t, out.CatchUp)
	assert.Equal(t, ledger.ReasonOutstanding, out.CatchUp.ReasonKey)
	assert.Equal(t, ledger.CollectionCustomerDebt, out.CatchUp.Type)
	assertMoney(t, "100.00", out.CatchUp.Amount)
}

func TestMarkCollectionPaid_ResellerPayout(t *testing.T) {
	f := newFixture(t)
	p := f.product("Phone", "Electronics", "120", "70", 5, 1)
	r := f.reseller("Tendai")
	sale, err := f.d.RecordSale(f.ctx, ledger.SaleDraft{
		Actor: cashier, Status: ledger.SaleSold, ResellerID: r.ID,
		Items: []ledger.SaleItemDraft{{ProductID: p.ID, Quantity: 1, DealershipPrice: dec("80")}},
	})
	require.NoError(t, err)

	out, err := f.d.MarkCollectionPaid(f.ctx, sale.Collections[0].ID, cashier)
	require.NoError(t, err)

	assert.True(t, f.balance(r).IsZero())
	assert.Nil(t, out.Sale, "a sold sale is left alone")
}

// =============================================================================
// COLLECTED & CANCELLED TESTS
// =============================================================================

func TestMarkCollectionCollected_FlipsSale(t *testing.T) {
	f := newFixture(t)
	p := f.product("Sofa", "Furniture", "300", "200", 2, 0)
	c := f.customer("Farai")
	sale := f.sell(ledger.SalePaidToCollect, c.ID, item(p.ID, 1))

	out, err := f.d.MarkCollectionCollected(f.ctx, sale.Collections[0].ID, cashier)
	require.NoError(t, err)

	assert.Equal(t, ledger.CollectionCollected, out.Collection.Status)
	assert.Nil(t, out.Entry)
	require.NotNil(t, out.Sale)
	assert.Equal(t, ledger.SaleSold, out.Sale.Status)
	assert.True(t, f.balance(c).IsZero())
}

func TestCancelCollection_LeavesBalance(t *testing.T) {
	f := newFixture(t)
	c, sale := creditSale(f, "150")

	out, err := f.d.CancelCollection(f.ctx, sale.Collections[0].ID, cashier)
	require.NoError(t, err)

	assert.Equal(t, ledger.CollectionCancelled, out.Collection.Status)
	assertMoney(t, "150.00", f.balance(c))

	stored, err := f.d.Sale(f.ctx, sale.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.SaleCollectedToPay, stored.Status)
}

func TestResolveCollection_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	p := f.product("Sofa", "Furniture", "300", "200", 5, 0)
	c := f.customer("Farai")
	pickup := f.sell(ledger.SalePaidToCollect, c.ID, item(p.ID, 1)).Collections[0]
	debt := f.sell(ledger.SaleCollectedToPay, c.ID, item(p.ID, 1)).Collections[0]

	t.Run("paid on item_to_collect", func(t *testing.T) {
		_, err := f.d.MarkCollectionPaid(f.ctx, pickup.ID, cashier)
		assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	})

	t.Run("collected on customer_debt", func(t *testing.T) {
		_, err := f.d.MarkCollectionCollected(f.ctx, debt.ID, cashier)
		assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	})

	t.Run("resolving twice", func(t *testing.T) {
		_, err := f.d.MarkCollectionPaid(f.ctx, debt.ID, cashier)
		require.NoError(t, err)

		_, err = f.d.MarkCollectionPaid(f.ctx, debt.ID, cashier)
		assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
		_, err = f.d.CancelCollection(f.ctx, debt.ID, cashier)
		assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	})

	t.Run("unknown collection", func(t *testing.T) {
		_, err := f.d.CancelCollection(f.ctx, "missing", cashier)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("missing actor", func(t *testing.T) {
		_, err := f.d.CancelCollection(f.ctx, pickup.ID, ledger.Actor{})
		assert.ErrorIs(t, err, ledger.ErrValidation)
	})

	assert.True(t, f.balance(c).IsZero(), "debt paid once, nothing else moved money")
}

func TestPaymentCollections_Filter(t *testing.T) {
	f := newFixture(t)
	p := f.product("Sofa", "Furniture", "300", "200", 5, 0)
	c := f.customer("Farai")
	other := f.customer("Tino")
	f.sell(ledger.SalePaidToCollect, c.ID, item(p.ID, 1))
	f.sell(ledger.SaleCollectedToPay, c.ID, item(p.ID, 1))
	f.sell(ledger.SaleCollectedToPay, other.ID, item(p.ID, 1))

	ref := c.Ref()
	mine, err := f.d.PaymentCollections(f.ctx, ledger.CollectionFilter{Party: &ref})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	debts, err := f.d.PaymentCollections(f.ctx, ledger.CollectionFilter{Type: ledger.CollectionCustomerDebt})
	require.NoError(t, err)
	assert.Len(t, debts, 2)

	paid, err := f.d.PaymentCollections(f.ctx, ledger.CollectionFilter{Status: ledger.CollectionPaid})
	require.NoError(t, err)
	assert.Empty(t, paid)
}
