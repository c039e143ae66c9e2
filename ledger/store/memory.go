// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a ledger.TxStore backed by maps. A unit of work holds the write
// lock from start to finish and is undone from a snapshot when it fails.
type Memory struct {
	mu sync.Mutex
	st *state
}

var _ ledger.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := m.st.clone()
	if err := fn(txView{m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// txView is the Store handed to a unit of work; the caller already holds
// the lock.
type txView struct {
	*state
}

type obligationKey struct {
	party     ledger.PartyRef
	typ       ledger.CollectionType
	reasonKey string
}

type state struct {
	products   map[ledger.ProductID]ledger.Product
	movements  map[ledger.ProductID][]ledger.StockMovement
	parties    map[ledger.PartyRef]ledger.Party
	entries    map[ledger.PartyRef][]ledger.BalanceEntry
	sequences  map[string]int64
	numbers    map[string]string
	sales      map[ledger.SaleID]ledger.Sale
	payments   map[string]ledger.Payment
	invoices   map[ledger.InvoiceID]ledger.Invoice
	receipts   map[ledger.SaleID]ledger.Receipt
	stockTakes map[string]ledger.StockTake
	losses     map[string]ledger.Loss
	expenses   map[string]ledger.Expense

	collections     map[ledger.CollectionID]ledger.PaymentCollection
	collectionOrder []ledger.CollectionID
	pending         map[obligationKey]ledger.CollectionID

	notifications []ledger.Notification
	cooldowns     map[string]time.Time
}

func newState() *state {
	return &state{
		products:    make(map[ledger.ProductID]ledger.Product),
		movements:   make(map[ledger.ProductID][]ledger.StockMovement),
		parties:     make(map[ledger.PartyRef]ledger.Party),
		entries:     make(map[ledger.PartyRef][]ledger.BalanceEntry),
		sequences:   make(map[string]int64),
		numbers:     make(map[string]string),
		sales:       make(map[ledger.SaleID]ledger.Sale),
		payments:    make(map[string]ledger.Payment),
		invoices:    make(map[ledger.InvoiceID]ledger.Invoice),
		receipts:    make(map[ledger.SaleID]ledger.Receipt),
		stockTakes:  make(map[string]ledger.StockTake),
		losses:      make(map[string]ledger.Loss),
		expenses:    make(map[string]ledger.Expense),
		collections: make(map[ledger.CollectionID]ledger.PaymentCollection),
		pending:     make(map[obligationKey]ledger.CollectionID),
		cooldowns:   make(map[string]time.Time),
	}
}

// clone copies every map and slice, so the live state can change freely
// while the copy is held for rollback.
func (s *state) clone() *state {
	c := &state{
		products:        cloneMap(s.products),
		movements:       make(map[ledger.ProductID][]ledger.StockMovement, len(s.movements)),
		parties:         cloneMap(s.parties),
		entries:         make(map[ledger.PartyRef][]ledger.BalanceEntry, len(s.entries)),
		sequences:       cloneMap(s.sequences),
		numbers:         cloneMap(s.numbers),
		sales:           cloneMap(s.sales),
		payments:        cloneMap(s.payments),
		invoices:        cloneMap(s.invoices),
		receipts:        cloneMap(s.receipts),
		stockTakes:      cloneMap(s.stockTakes),
		losses:          cloneMap(s.losses),
		expenses:        cloneMap(s.expenses),
		collections:     cloneMap(s.collections),
		collectionOrder: append([]ledger.CollectionID(nil), s.collectionOrder...),
		pending:         cloneMap(s.pending),
		notifications:   append([]ledger.Notification(nil), s.notifications...),
		cooldowns:       cloneMap(s.cooldowns),
	}
	for k, v := range s.movements {
		c.movements[k] = append([]ledger.StockMovement(nil), v...)
	}
	for k, v := range s.entries {
		c.entries[k] = append([]ledger.BalanceEntry(nil), v...)
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func notFound(what string, id any) error {
	return fmt.Errorf("%s %v: %w", what, id, ledger.ErrNotFound)
}

// =============================================================================
// INVENTORY
// =============================================================================

func (s *state) CreateProduct(_ context.Context, p ledger.Product) error {
	if _, ok := s.products[p.ID]; ok {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	s.products[p.ID] = p
	return nil
}

func (s *state) GetProduct(_ context.Context, id ledger.ProductID) (ledger.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return ledger.Product{}, notFound("product", id)
	}
	return p, nil
}

func (s *state) ListProducts(_ context.Context) ([]ledger.Product, error) {
	out := make([]ledger.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) ApplyMovement(_ context.Context, m ledger.StockMovement) (int64, error) {
	p, ok := s.products[m.ProductID]
	if !ok {
		return 0, notFound("product", m.ProductID)
	}
	p.StockQuantity += m.Delta
	s.products[p.ID] = p

	m.QuantityAfter = p.StockQuantity
	s.movements[p.ID] = append(s.movements[p.ID], m)
	return p.StockQuantity, nil
}

func (s *state) SetUnitCost(_ context.Context, id ledger.ProductID, cost decimal.Decimal) error {
	p, ok := s.products[id]
	if !ok {
		return notFound("product", id)
	}
	p.UnitCost = cost
	s.products[id] = p
	return nil
}

func (s *state) Movements(_ context.Context, id ledger.ProductID) ([]ledger.StockMovement, error) {
	return append([]ledger.StockMovement(nil), s.movements[id]...), nil
}

// =============================================================================
// PARTIES & BALANCES
// =============================================================================

func (s *state) CreateParty(_ context.Context, p ledger.Party) error {
	if _, ok := s.parties[p.Ref()]; ok {
		return fmt.Errorf("%s already exists", p.Ref())
	}
	s.parties[p.Ref()] = p
	return nil
}

func (s *state) GetParty(_ context.Context, ref ledger.PartyRef) (ledger.Party, error) {
	p, ok := s.parties[ref]
	if !ok {
		return ledger.Party{}, notFound(string(ref.Kind), ref.ID)
	}
	return p, nil
}

func (s *state) ListParties(_ context.Context, kind ledger.PartyKind) ([]ledger.Party, error) {
	var out []ledger.Party
	for ref, p := range s.parties {
		if ref.Kind == kind {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountCode != out[j].AccountCode {
			return out[i].AccountCode < out[j].AccountCode
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) ApplyBalanceEntry(_ context.Context, e ledger.BalanceEntry) (decimal.Decimal, error) {
	p, ok := s.parties[e.Party]
	if !ok {
		return decimal.Zero, notFound(string(e.Party.Kind), e.Party.ID)
	}
	before := p.Balance
	p.Balance = p.Balance.Add(e.Delta)
	switch {
	case !p.Balance.IsPositive():
		p.BalanceSince = nil
	case !before.IsPositive():
		at := e.CreatedAt
		p.BalanceSince = &at
	}
	s.parties[e.Party] = p

	e.BalanceAfter = p.Balance
	s.entries[e.Party] = append(s.entries[e.Party], e)
	return p.Balance, nil
}

func (s *state) BalanceEntries(_ context.Context, ref ledger.PartyRef) ([]ledger.BalanceEntry, error) {
	return append([]ledger.BalanceEntry(nil), s.entries[ref]...), nil
}

// =============================================================================
// NUMBERING
// =============================================================================

func (s *state) NextSequence(_ context.Context, scope string, seed func() (int64, error)) (int64, error) {
	n, ok := s.sequences[scope]
	if !ok {
		var err error
		if n, err = seed(); err != nil {
			return 0, err
		}
	}
	n++
	s.sequences[scope] = n
	return n, nil
}

func (s *state) MaxRegisteredSuffix(_ context.Context, prefix string) (int64, error) {
	var highest int64
	for number := range s.numbers {
		if n, ok := ledger.ParseSuffix(number, prefix); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (s *state) RegisterNumber(_ context.Context, number, scope string, _ time.Time) error {
	if _, ok := s.numbers[number]; ok {
		return fmt.Errorf("%s: %w", number, ledger.ErrDuplicateNumber)
	}
	s.numbers[number] = scope
	return nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func (s *state) CreateSale(_ context.Context, sale ledger.Sale) error {
	sale.Items = append([]ledger.SaleItem(nil), sale.Items...)
	s.sales[sale.ID] = sale
	return nil
}

func (s *state) GetSale(_ context.Context, id ledger.SaleID) (ledger.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return ledger.Sale{}, notFound("sale", id)
	}
	sale.Items = append([]ledger.SaleItem(nil), sale.Items...)
	return sale, nil
}

func (s *state) UpdateSaleStatus(_ context.Context, id ledger.SaleID, from, to ledger.SaleStatus) error {
	sale, ok := s.sales[id]
	if !ok {
		return notFound("sale", id)
	}
	if sale.Status != from {
		return fmt.Errorf("sale %s is %s, not %s: %w", id, sale.Status, from, ledger.ErrStaleStatus)
	}
	sale.Status = to
	s.sales[id] = sale
	return nil
}

func (s *state) CreatePayment(_ context.Context, p ledger.Payment) error {
	s.payments[p.ID] = p
	return nil
}

func (s *state) InvoicePaymentsTotal(_ context.Context, id ledger.InvoiceID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range s.payments {
		if p.InvoiceID == id {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (s *state) CreateInvoice(_ context.Context, inv ledger.Invoice) error {
	for _, existing := range s.invoices {
		if existing.Number == inv.Number {
			return fmt.Errorf("invoice %s: %w", inv.Number, ledger.ErrDuplicateNumber)
		}
	}
	inv.Items = append([]ledger.InvoiceItem(nil), inv.Items...)
	s.invoices[inv.ID] = inv
	return nil
}

func (s *state) GetInvoice(_ context.Context, id ledger.InvoiceID) (ledger.Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return ledger.Invoice{}, notFound("invoice", id)
	}
	inv.Items = append([]ledger.InvoiceItem(nil), inv.Items...)
	return inv, nil
}

func (s *state) ListInvoices(_ context.Context, status ledger.InvoiceStatus) ([]ledger.Invoice, error) {
	var out []ledger.Invoice
	for _, inv := range s.invoices {
		if status == "" || inv.Status == status {
			inv.Items = append([]ledger.InvoiceItem(nil), inv.Items...)
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *state) UpdateInvoiceStatus(_ context.Context, id ledger.InvoiceID, from, to ledger.InvoiceStatus) error {
	inv, ok := s.invoices[id]
	if !ok {
		return notFound("invoice", id)
	}
	if inv.Status != from {
		return fmt.Errorf("invoice %s is %s, not %s: %w", id, inv.Status, from, ledger.ErrStaleStatus)
	}
	inv.Status = to
	s.invoices[id] = inv
	return nil
}

func (s *state) CreateReceipt(_ context.Context, r ledger.Receipt) error {
	if _, ok := s.receipts[r.SaleID]; ok {
		return fmt.Errorf("receipt for sale %s already exists", r.SaleID)
	}
	s.receipts[r.SaleID] = r
	return nil
}

func (s *state) ReceiptForSale(_ context.Context, id ledger.SaleID) (ledger.Receipt, error) {
	r, ok := s.receipts[id]
	if !ok {
		return ledger.Receipt{}, notFound("receipt for sale", id)
	}
	return r, nil
}

func (s *state) CreateStockTake(_ context.Context, st ledger.StockTake) error {
	s.stockTakes[st.ID] = st
	return nil
}

func (s *state) CreateExpense(_ context.Context, e ledger.Expense) error {
	s.expenses[e.ID] = e
	return nil
}

func (s *state) CreateLoss(_ context.Context, l ledger.Loss) error {
	s.losses[l.ID] = l
	return nil
}

// =============================================================================
// COLLECTIONS
// =============================================================================

func keyOf(c ledger.PaymentCollection) obligationKey {
	return obligationKey{party: c.Party, typ: c.Type, reasonKey: c.ReasonKey}
}

func (s *state) InsertCollection(_ context.Context, c ledger.PaymentCollection) error {
	if c.Status == ledger.CollectionPending {
		k := keyOf(c)
		if _, ok := s.pending[k]; ok {
			return fmt.Errorf("%s/%s/%s: %w", c.Party, c.Type, c.ReasonKey, ledger.ErrDuplicateObligation)
		}
		s.pending[k] = c.ID
	}
	s.collections[c.ID] = c
	s.collectionOrder = append(s.collectionOrder, c.ID)
	return nil
}

func (s *state) GetCollection(_ context.Context, id ledger.CollectionID) (ledger.PaymentCollection, error) {
	c, ok := s.collections[id]
	if !ok {
		return ledger.PaymentCollection{}, notFound("collection", id)
	}
	return c, nil
}

func (s *state) FindPendingCollection(_ context.Context, party ledger.PartyRef, typ ledger.CollectionType, reasonKey string) (ledger.PaymentCollection, error) {
	id, ok := s.pending[obligationKey{party: party, typ: typ, reasonKey: reasonKey}]
	if !ok {
		return ledger.PaymentCollection{}, notFound("pending collection", reasonKey)
	}
	return s.collections[id], nil
}

func (s *state) Collections(_ context.Context, filter ledger.CollectionFilter) ([]ledger.PaymentCollection, error) {
	var out []ledger.PaymentCollection
	for _, id := range s.collectionOrder {
		if c := s.collections[id]; filter.Match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *state) ResolveCollection(_ context.Context, id ledger.CollectionID, status ledger.CollectionStatus, at time.Time, actorID string) error {
	c, ok := s.collections[id]
	if !ok {
		return notFound("collection", id)
	}
	if c.Status != ledger.CollectionPending {
		return fmt.Errorf("collection %s is %s: %w", id, c.Status, ledger.ErrStaleStatus)
	}
	delete(s.pending, keyOf(c))
	c.Status = status
	c.ResolvedAt = &at
	c.ResolvedBy = actorID
	s.collections[id] = c
	return nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (s *state) ClaimAlert(_ context.Context, key ledger.AlertKey, now time.Time, window time.Duration) (bool, error) {
	k := key.String()
	if last, ok := s.cooldowns[k]; ok && last.After(now.Add(-window)) {
		return false, nil
	}
	s.cooldowns[k] = now
	return true, nil
}

func (s *state) InsertNotification(_ context.Context, n ledger.Notification) error {
	s.notifications = append(s.notifications, n)
	return nil
}

// Notifications returns newest first.
func (s *state) Notifications(_ context.Context, unreadOnly bool) ([]ledger.Notification, error) {
	var out []ledger.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if n := s.notifications[i]; !unreadOnly || !n.Read {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *state) MarkNotificationRead(_ context.Context, id ledger.NotificationID) error {
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
			return nil
		}
	}
	return notFound("notification", id)
}

func (s *state) MarkAllNotificationsRead(_ context.Context) (int64, error) {
	var n int64
	for i := range s.notifications {
		if !s.notifications[i].Read {
			s.notifications[i].Read = true
			n++
		}
	}
	return n, nil
}

// =============================================================================
// LOCKED ACCESS - Calls made outside a unit of work
// =============================================================================

func (m *Memory) CreateProduct(ctx context.Context, p ledger.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateProduct(ctx, p)
}

func (m *Memory) GetProduct(ctx context.Context, id ledger.ProductID) (ledger.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetProduct(ctx, id)
}

func (m *Memory) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListProducts(ctx)
}

func (m *Memory) ApplyMovement(ctx context.Context, mv ledger.StockMovement) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ApplyMovement(ctx, mv)
}

func (m *Memory) SetUnitCost(ctx context.Context, id ledger.ProductID, cost decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetUnitCost(ctx, id, cost)
}

func (m *Memory) Movements(ctx context.Context, id ledger.ProductID) ([]ledger.StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Movements(ctx, id)
}

func (m *Memory) CreateParty(ctx context.Context, p ledger.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateParty(ctx, p)
}

func (m *Memory) GetParty(ctx context.Context, ref ledger.PartyRef) (ledger.Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetParty(ctx, ref)
}

func (m *Memory) ListParties(ctx context.Context, kind ledger.PartyKind) ([]ledger.Party, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListParties(ctx, kind)
}

func (m *Memory) ApplyBalanceEntry(ctx context.Context, e ledger.BalanceEntry) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ApplyBalanceEntry(ctx, e)
}

func (m *Memory) BalanceEntries(ctx context.Context, ref ledger.PartyRef) ([]ledger.BalanceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.BalanceEntries(ctx, ref)
}

func (m *Memory) NextSequence(ctx context.Context, scope string, seed func() (int64, error)) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.NextSequence(ctx, scope, seed)
}

func (m *Memory) MaxRegisteredSuffix(ctx context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MaxRegisteredSuffix(ctx, prefix)
}

func (m *Memory) RegisterNumber(ctx context.Context, number, scope string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.RegisterNumber(ctx, number, scope, at)
}

func (m *Memory) CreateSale(ctx context.Context, sale ledger.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateSale(ctx, sale)
}

func (m *Memory) GetSale(ctx context.Context, id ledger.SaleID) (ledger.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetSale(ctx, id)
}

func (m *Memory) UpdateSaleStatus(ctx context.Context, id ledger.SaleID, from, to ledger.SaleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateSaleStatus(ctx, id, from, to)
}

func (m *Memory) CreatePayment(ctx context.Context, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreatePayment(ctx, p)
}

func (m *Memory) InvoicePaymentsTotal(ctx context.Context, id ledger.InvoiceID) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InvoicePaymentsTotal(ctx, id)
}

func (m *Memory) CreateInvoice(ctx context.Context, inv ledger.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateInvoice(ctx, inv)
}

func (m *Memory) GetInvoice(ctx context.Context, id ledger.InvoiceID) (ledger.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetInvoice(ctx, id)
}

func (m *Memory) ListInvoices(ctx context.Context, status ledger.InvoiceStatus) ([]ledger.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListInvoices(ctx, status)
}

func (m *Memory) UpdateInvoiceStatus(ctx context.Context, id ledger.InvoiceID, from, to ledger.InvoiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateInvoiceStatus(ctx, id, from, to)
}

func (m *Memory) CreateReceipt(ctx context.Context, r ledger.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateReceipt(ctx, r)
}

func (m *Memory) ReceiptForSale(ctx context.Context, id ledger.SaleID) (ledger.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ReceiptForSale(ctx, id)
}

func (m *Memory) CreateStockTake(ctx context.Context, st ledger.StockTake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateStockTake(ctx, st)
}

func (m *Memory) CreateExpense(ctx context.Context, e ledger.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateExpense(ctx, e)
}

func (m *Memory) CreateLoss(ctx context.Context, l ledger.Loss) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateLoss(ctx, l)
}

func (m *Memory) InsertCollection(ctx context.Context, c ledger.PaymentCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertCollection(ctx, c)
}

func (m *Memory) GetCollection(ctx context.Context, id ledger.CollectionID) (ledger.PaymentCollection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetCollection(ctx, id)
}

func (m *Memory) FindPendingCollection(ctx context.Context, party ledger.PartyRef, typ ledger.CollectionType, reasonKey string) (ledger.PaymentCollection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.FindPendingCollection(ctx, party, typ, reasonKey)
}

func (m *Memory) Collections(ctx context.Context, filter ledger.CollectionFilter) ([]ledger.PaymentCollection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Collections(ctx, filter)
}

func (m *Memory) ResolveCollection(ctx context.Context, id ledger.CollectionID, status ledger.CollectionStatus, at time.Time, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ResolveCollection(ctx, id, status, at, actorID)
}

func (m *Memory) ClaimAlert(ctx context.Context, key ledger.AlertKey, now time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ClaimAlert(ctx, key, now, window)
}

func (m *Memory) InsertNotification(ctx context.Context, n ledger.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertNotification(ctx, n)
}

func (m *Memory) Notifications(ctx context.Context, unreadOnly bool) ([]ledger.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Notifications(ctx, unreadOnly)
}

func (m *Memory) MarkNotificationRead(ctx context.Context, id ledger.NotificationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MarkNotificationRead(ctx, id)
}

func (m *Memory) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MarkAllNotificationsRead(ctx)
}
