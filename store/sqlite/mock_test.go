package sqlite_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newMockStore(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return sqlite.NewWithDB(db), mock
}

func q(sql string) string { return regexp.QuoteMeta(sql) }

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestMock_WithTxCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO notifications")).
		WithArgs("n-1", "general", "Till closed", "", "", "", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(s ledger.Store) error {
		return s.InsertNotification(context.Background(), ledger.Notification{
			ID: "n-1", Type: ledger.NotifyGeneral, Title: "Till closed", CreatedAt: testNow,
		})
	})
	assert.NoError(t, err)
}

func TestMock_WithTxRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE products SET unit_cost_cents")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(s ledger.Store) error {
		return s.SetUnitCost(context.Background(), "p-1", decimal.RequireFromString("2.50"))
	})
	assert.ErrorContains(t, err, "disk I/O error")
}

func TestMock_BeginFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	called := false
	err := store.WithTx(context.Background(), func(ledger.Store) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "failed to begin transaction")
	assert.False(t, called)
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestMock_ClaimAlertCoolingDown(t *testing.T) {
	store, mock := newMockStore(t)
	key := ledger.AlertKey{Type: ledger.NotifyLowStock, Related: ledger.Reference{Kind: ledger.RefProduct, ID: "p-1"}}

	mock.ExpectExec(q("INSERT INTO alert_cooldowns")).
		WithArgs("low_stock|product:p-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.ClaimAlert(context.Background(), key, testNow, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMock_UniqueViolationsMapToLedgerErrors(t *testing.T) {
	unique := errors.New("UNIQUE constraint failed: document_numbers.number")

	t.Run("document number", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(q("INSERT INTO document_numbers")).
			WithArgs("RCP-20261015-0001", "RCP-20261015", sqlmock.AnyArg()).
			WillReturnError(unique)

		err := store.RegisterNumber(context.Background(), "RCP-20261015-0001", "RCP-20261015", testNow)
		assert.ErrorIs(t, err, ledger.ErrDuplicateNumber)
	})

	t.Run("pending obligation", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(q("INSERT INTO payment_collections")).
			WillReturnError(errors.New("UNIQUE constraint failed: payment_collections.party_kind"))

		err := store.InsertCollection(context.Background(), ledger.PaymentCollection{
			ID: "col-1", Party: ledger.PartyRef{Kind: ledger.PartyCustomer, ID: "c-1"},
			Type: ledger.CollectionCustomerDebt, ReasonKey: "outstanding",
			Status: ledger.CollectionPending, DueDate: testNow, CreatedAt: testNow,
		})
		assert.ErrorIs(t, err, ledger.ErrDuplicateObligation)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(q("INSERT INTO document_numbers")).
			WillReturnError(errors.New("disk full"))

		err := store.RegisterNumber(context.Background(), "INV-202610-0001", "INV-202610", testNow)
		assert.ErrorContains(t, err, "disk full")
		assert.NotErrorIs(t, err, ledger.ErrDuplicateNumber)
	})
}

func TestMock_ResolveUnknownCollection(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(q("UPDATE payment_collections")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("FROM payment_collections WHERE id = ?")).
		WithArgs("col-404").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "party_kind", "party_id", "collection_type", "reason_key", "amount_cents",
			"due_date", "status", "sale_id", "invoice_id", "notes", "created_at", "resolved_at", "resolved_by",
		}))

	err := store.ResolveCollection(context.Background(), "col-404", ledger.CollectionPaid, testNow, clerk.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMock_MarkUnknownNotificationRead(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(q("UPDATE notifications SET is_read = 1 WHERE id = ?")).
		WithArgs("n-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkNotificationRead(context.Background(), "n-404")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
