/*
store.go - Persistence contract for the ledger engine

PURPOSE:
  Defines what the engine needs from the database. The interfaces are split by
  concern so each component documents which tables it touches, and combined
  into Store for implementations.

SINGLE WRITE PATHS:
  Stock and balances have exactly one mutating method each:
  - InventoryStore.ApplyMovement: inserts the movement AND increments stock
  - BalanceStore.ApplyBalanceEntry: inserts the entry AND increments balance
  There is no SetStock or SetBalance. A cached value can only move together
  with the log row that explains it.

ATOMIC INCREMENTS:
  Implementations apply deltas at the storage layer
  (stock_quantity = stock_quantity + ?), never by writing back a value read
  earlier in Go.

CONSTRAINT-BACKED UNIQUENESS:
  - NumberStore.RegisterNumber fails with ErrDuplicateNumber
  - CollectionStore.InsertCollection fails with ErrDuplicateObligation
  - NotificationStore.ClaimAlert is a conditional upsert
  The engine never relies on "check, then insert" from Go for these.

IMPLEMENTATIONS:
  - store/sqlite: SQLite via database/sql
  - ledger/store: in-memory, for tests and demos
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INVENTORY
// =============================================================================

type InventoryStore interface {
	CreateProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id ProductID) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)

	// ApplyMovement appends m and adds m.Delta to the product's stock in one
	// step. Returns the stock quantity after the increment.
	ApplyMovement(ctx context.Context, m StockMovement) (int64, error)

	// SetUnitCost records a new moving-average unit cost.
	SetUnitCost(ctx context.Context, id ProductID, cost decimal.Decimal) error

	Movements(ctx context.Context, id ProductID) ([]StockMovement, error)
}

// =============================================================================
// PARTIES & BALANCES
// =============================================================================

type BalanceStore interface {
	CreateParty(ctx context.Context, p Party) error
	GetParty(ctx context.Context, ref PartyRef) (Party, error)
	ListParties(ctx context.Context, kind PartyKind) ([]Party, error)

	// ApplyBalanceEntry appends e and adds e.Delta to the party's balance in
	// one step, maintaining BalanceSince. Returns the balance after.
	ApplyBalanceEntry(ctx context.Context, e BalanceEntry) (decimal.Decimal, error)

	BalanceEntries(ctx context.Context, ref PartyRef) ([]BalanceEntry, error)
}

// =============================================================================
// NUMBERING
// =============================================================================

type NumberStore interface {
	// NextSequence advances and returns the counter for scope. If the scope
	// has never been used, the counter is first seeded with seed.
	NextSequence(ctx context.Context, scope string, seed func() (int64, error)) (int64, error)

	// MaxRegisteredSuffix returns the highest numeric suffix registered under
	// prefix, or 0.
	MaxRegisteredSuffix(ctx context.Context, prefix string) (int64, error)

	// RegisterNumber records an issued number. Fails with ErrDuplicateNumber
	// if it was issued before.
	RegisterNumber(ctx context.Context, number, scope string, at time.Time) error
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type DocumentStore interface {
	CreateSale(ctx context.Context, s Sale) error
	GetSale(ctx context.Context, id SaleID) (Sale, error)
	// UpdateSaleStatus is a compare-and-set; ErrStaleStatus if from doesn't match.
	UpdateSaleStatus(ctx context.Context, id SaleID, from, to SaleStatus) error

	CreatePayment(ctx context.Context, p Payment) error
	// InvoicePaymentsTotal sums the payments tagged with the invoice.
	InvoicePaymentsTotal(ctx context.Context, id InvoiceID) (decimal.Decimal, error)

	CreateInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id InvoiceID) (Invoice, error)
	ListInvoices(ctx context.Context, status InvoiceStatus) ([]Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id InvoiceID, from, to InvoiceStatus) error

	CreateReceipt(ctx context.Context, r Receipt) error
	ReceiptForSale(ctx context.Context, id SaleID) (Receipt, error)

	CreateStockTake(ctx context.Context, st StockTake) error
	CreateLoss(ctx context.Context, l Loss) error
	CreateExpense(ctx context.Context, e Expense) error
}

// =============================================================================
// COLLECTIONS
// =============================================================================

type CollectionStore interface {
	// InsertCollection fails with ErrDuplicateObligation when a pending
	// collection exists for (Party, Type, ReasonKey).
	InsertCollection(ctx context.Context, c PaymentCollection) error
	GetCollection(ctx context.Context, id CollectionID) (PaymentCollection, error)
	FindPendingCollection(ctx context.Context, party PartyRef, typ CollectionType, reasonKey string) (PaymentCollection, error)
	Collections(ctx context.Context, filter CollectionFilter) ([]PaymentCollection, error)
	// ResolveCollection moves a pending collection to status; ErrStaleStatus
	// if it is no longer pending.
	ResolveCollection(ctx context.Context, id CollectionID, status CollectionStatus, at time.Time, actorID string) error
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type NotificationStore interface {
	// ClaimAlert atomically claims the cooldown slot for key. It returns true
	// and stamps the slot with now if the slot is free or older than window.
	ClaimAlert(ctx context.Context, key AlertKey, now time.Time, window time.Duration) (bool, error)
	InsertNotification(ctx context.Context, n Notification) error
	Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id NotificationID) error
	MarkAllNotificationsRead(ctx context.Context) (int64, error)
}

// =============================================================================
// COMBINED
// =============================================================================

// Store is everything a unit of work can touch.
type Store interface {
	InventoryStore
	BalanceStore
	NumberStore
	DocumentStore
	CollectionStore
	NotificationStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
