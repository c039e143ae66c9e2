package store_test

import (
	"context"
	"errors"
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

var testNow = time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)

func seedProduct(t *testing.T, m *store.Memory, qty int64) ledger.Product {
	t.Helper()
	p := ledger.Product{
		ID: "p-1", Code: "BEV-2026-0001", Name: "Cola", Category: "Beverages",
		StockQuantity: qty, LowStockThreshold: 5, CreatedAt: testNow,
	}
	require.NoError(t, m.CreateProduct(context.Background(), p))
	return p
}

// =============================================================================
// UNIT OF WORK TESTS
// =============================================================================

func TestMemory_WithTxRollsBackEverything(t *testing.T) {
	// GIVEN: A product with 10 in stock
	// WHEN: A unit of work moves stock, numbers a document, then fails
	// THEN: None of it is visible afterwards

	m := store.NewMemory()
	seedProduct(t, m, 10)
	ctx := context.Background()

	err := m.WithTx(ctx, func(s ledger.Store) error {
		if _, err := s.ApplyMovement(ctx, ledger.StockMovement{ID: "m-1", ProductID: "p-1", Delta: -4}); err != nil {
			return err
		}
		if err := s.RegisterNumber(ctx, "RCP-20261015-0001", "RCP-20261015", testNow); err != nil {
			return err
		}
		if _, err := s.ClaimAlert(ctx, ledger.AlertKey{Type: ledger.NotifyLowStock}, testNow, time.Hour); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	p, err := m.GetProduct(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.StockQuantity)

	ms, err := m.Movements(ctx, "p-1")
	require.NoError(t, err)
	assert.Empty(t, ms)

	assert.NoError(t, m.RegisterNumber(ctx, "RCP-20261015-0001", "RCP-20261015", testNow), "number was released")

	ok, err := m.ClaimAlert(ctx, ledger.AlertKey{Type: ledger.NotifyLowStock}, testNow, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "cooldown was released")
}

func TestMemory_WithTxHonoursCancelledContext(t *testing.T) {
	m := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.WithTx(ctx, func(ledger.Store) error {
		t.Fatal("unit of work must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// LEDGER ROW TESTS
// =============================================================================

func TestMemory_ApplyMovementRecordsQuantityAfter(t *testing.T) {
	m := store.NewMemory()
	seedProduct(t, m, 3)
	ctx := context.Background()

	qty, err := m.ApplyMovement(ctx, ledger.StockMovement{ID: "m-1", ProductID: "p-1", Delta: -5})
	require.NoError(t, err)
	assert.Equal(t, int64(-2), qty, "negative stock is allowed")

	ms, err := m.Movements(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, int64(-2), ms[0].QuantityAfter)

	_, err = m.ApplyMovement(ctx, ledger.StockMovement{ID: "m-2", ProductID: "nope", Delta: 1})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMemory_BalanceSince(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	ref := ledger.PartyRef{Kind: ledger.PartyCustomer, ID: "c-1"}
	require.NoError(t, m.CreateParty(ctx, ledger.Party{ID: ref.ID, Kind: ref.Kind, Name: "Rudo"}))

	apply := func(delta string, at time.Time) {
		_, err := m.ApplyBalanceEntry(ctx, ledger.BalanceEntry{Party: ref, Delta: decimal.RequireFromString(delta), CreatedAt: at})
		require.NoError(t, err)
	}
	since := func() *time.Time {
		p, err := m.GetParty(ctx, ref)
		require.NoError(t, err)
		return p.BalanceSince
	}

	apply("20", testNow)
	require.NotNil(t, since())
	apply("5", testNow.Add(time.Hour))
	assert.Equal(t, testNow, *since())
	apply("-25", testNow.Add(2*time.Hour))
	assert.Nil(t, since())
	apply("-10", testNow.Add(3*time.Hour))
	assert.Nil(t, since(), "credit is not owed")
}

// =============================================================================
// COLLECTION & ALERT TESTS
// =============================================================================

func TestMemory_PendingObligationIsUnique(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	col := ledger.PaymentCollection{
		ID: "col-1", Party: ledger.PartyRef{Kind: ledger.PartyReseller, ID: "r-1"},
		Type: ledger.CollectionResellerPayment, ReasonKey: "sale:s-1", Status: ledger.CollectionPending,
	}
	require.NoError(t, m.InsertCollection(ctx, col))

	dup := col
	dup.ID = "col-2"
	assert.ErrorIs(t, m.InsertCollection(ctx, dup), ledger.ErrDuplicateObligation)

	require.NoError(t, m.ResolveCollection(ctx, "col-1", ledger.CollectionPaid, testNow, "u-1"))
	assert.ErrorIs(t, m.ResolveCollection(ctx, "col-1", ledger.CollectionPaid, testNow, "u-1"), ledger.ErrStaleStatus)
	require.NoError(t, m.InsertCollection(ctx, dup), "the key is free once resolved")

	all, err := m.Collections(ctx, ledger.CollectionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ledger.CollectionID("col-1"), all[0].ID)
}

func TestMemory_ClaimAlertWindow(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	key := ledger.AlertKey{Type: ledger.NotifyPaymentDue, Related: ledger.Reference{Kind: ledger.RefParty, ID: "c-1"}}

	for _, tc := range []struct {
		at   time.Duration
		want bool
	}{
		{0, true},
		{time.Hour, false},
		{24 * time.Hour, true},
		{47 * time.Hour, false},
	} {
		ok, err := m.ClaimAlert(ctx, key, testNow.Add(tc.at), 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "claim at +%s", tc.at)
	}
}

func TestMemory_NotificationsNewestFirst(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	for _, id := range []ledger.NotificationID{"n-1", "n-2", "n-3"} {
		require.NoError(t, m.InsertNotification(ctx, ledger.Notification{ID: id, Type: ledger.NotifyGeneral}))
	}
	require.NoError(t, m.MarkNotificationRead(ctx, "n-2"))
	assert.ErrorIs(t, m.MarkNotificationRead(ctx, "n-9"), ledger.ErrNotFound)

	unread, err := m.Notifications(ctx, true)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, ledger.NotificationID("n-3"), unread[0].ID)
	assert.Equal(t, ledger.NotificationID("n-1"), unread[1].ID)

	n, err := m.MarkAllNotificationsRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
