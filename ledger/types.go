/*
Package ledger provides the POS ledger and consequence engine.

PURPOSE:
  Every business event that moves stock or money (a sale, a payment, a stock
  count, a loss, an invoice) goes through one Dispatcher call. Inside a single
  unit of work the dispatcher derives all dependent state: stock movements,
  balance entries, follow-up collections, deduplicated alerts and sequential
  document numbers. Either all of it commits or none of it does.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product / StockMovement: stock is a cache of the movement log
  - Party / BalanceEntry: customer and reseller balances are a cache of the entry log
  - Sale, Payment, Invoice, Receipt, StockTake, Loss: primary facts
  - PaymentCollection: follow-up obligation derived from a sale or invoice
  - Notification: user-facing alert
  - Actor: who performed the action (always explicit)

DESIGN PRINCIPLES:
  1. Money is decimal.Decimal rounded to cents, never float
  2. Stock and balances change only through the Inventory and Balance ledgers
  3. Movements and balance entries are append-only
  4. Status fields on collections, sales, invoices and notifications are the
     only things mutated after creation

SEE ALSO:
  - dispatcher.go: Entry point for every write
  - store.go: Persistence contract
  - errors.go: Error taxonomy
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of decimal places every stored amount is rounded to.
const MoneyPlaces = 2

// Money rounds d to cents.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MustParseDecimal parses s or returns zero.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	ProductID      string
	PartyID        string
	SaleID         string
	InvoiceID      string
	CollectionID   string
	NotificationID string
)

// Actor identifies the staff member performing an operation.
type Actor struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

// RefKind names the kind of document a movement, entry or alert points at.
type RefKind string

const (
	RefSale       RefKind = "sale"
	RefPayment    RefKind = "payment"
	RefInvoice    RefKind = "invoice"
	RefStockTake  RefKind = "stock_take"
	RefLoss       RefKind = "loss"
	RefExpense    RefKind = "expense"
	RefCollection RefKind = "collection"
	RefProduct    RefKind = "product"
	RefParty      RefKind = "party"
)

// Reference points at the document that caused a fact.
type Reference struct {
	Kind RefKind
	ID   string
}

func (r Reference) String() string {
	if r.Kind == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

func (r Reference) IsZero() bool { return r.Kind == "" && r.ID == "" }

// ParseReference is the inverse of Reference.String.
func ParseReference(s string) Reference {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return Reference{Kind: RefKind(s[:i]), ID: s[i+1:]}
		}
	}
	return Reference{}
}

// =============================================================================
// INVENTORY
// =============================================================================

type Product struct {
	ID                ProductID
	Code              string
	Name              string
	Category          string
	UnitCost          decimal.Decimal // moving average
	SalePrice         decimal.Decimal
	StockQuantity     int64
	LowStockThreshold int64
	CreatedAt         time.Time
	CreatedBy         string
}

// IsLowStock reports whether qty is at or below the product's threshold.
func (p Product) IsLowStock(qty int64) bool {
	return qty <= p.LowStockThreshold
}

type MovementKind string

const (
	MovementReceipt       MovementKind = "receipt"
	MovementSale          MovementKind = "sale"
	MovementAdjustmentIn  MovementKind = "adjustment_in"
	MovementAdjustmentOut MovementKind = "adjustment_out"
	MovementReturnIn      MovementKind = "return_in"
	MovementReturnOut     MovementKind = "return_out"
)

// Inbound reports whether the kind adds stock.
func (k MovementKind) Inbound() bool {
	switch k {
	case MovementReceipt, MovementAdjustmentIn, MovementReturnIn:
		return true
	}
	return false
}

func (k MovementKind) Valid() bool {
	switch k {
	case MovementReceipt, MovementSale, MovementAdjustmentIn,
		MovementAdjustmentOut, MovementReturnIn, MovementReturnOut:
		return true
	}
	return false
}

type MovementReason string

const (
	ReasonSale            MovementReason = "sale"
	ReasonPurchase        MovementReason = "purchase"
	ReasonDamage          MovementReason = "damage"
	ReasonTheft           MovementReason = "theft"
	ReasonCountDifference MovementReason = "count_difference"
	ReasonReturn          MovementReason = "return"
	ReasonOpening         MovementReason = "opening"
	ReasonOther           MovementReason = "other"
)

// StockMovement is an immutable stock fact. QuantityAfter is the product's
// stock immediately after this movement was applied.
type StockMovement struct {
	ID            string
	ProductID     ProductID
	Delta         int64
	Kind          MovementKind
	Reason        MovementReason
	Reference     Reference
	UnitCost      decimal.Decimal
	QuantityAfter int64
	ActorID       string
	CreatedAt     time.Time
}

// =============================================================================
// PARTIES & BALANCES
// =============================================================================

type PartyKind string

const (
	PartyCustomer PartyKind = "customer"
	PartyReseller PartyKind = "reseller"
)

// PartyRef identifies a customer or reseller.
type PartyRef struct {
	Kind PartyKind
	ID   PartyID
}

func (r PartyRef) String() string { return fmt.Sprintf("%s:%s", r.Kind, r.ID) }

func (r PartyRef) IsZero() bool { return r.ID == "" }

// Party is a customer or a reseller. Balance is outstanding_balance for a
// customer and current_balance for a reseller.
type Party struct {
	ID               PartyID
	Kind             PartyKind
	Name             string
	Phone            string
	Email            string
	AccountCode      string
	PaymentTermsDays int
	CreditLimit      decimal.Decimal
	CommissionRate   decimal.NullDecimal // reseller override of the default share
	Balance          decimal.Decimal
	BalanceSince     *time.Time // when Balance last became positive
	CreatedAt        time.Time
	CreatedBy        string
}

func (p Party) Ref() PartyRef { return PartyRef{Kind: p.Kind, ID: p.ID} }

// PaymentDueAt returns when the current positive balance falls due.
func (p Party) PaymentDueAt() (time.Time, bool) {
	if p.BalanceSince == nil || !p.Balance.IsPositive() {
		return time.Time{}, false
	}
	return p.BalanceSince.AddDate(0, 0, p.PaymentTermsDays), true
}

type BalanceReason string

const (
	BalanceCreditSale     BalanceReason = "credit_sale"
	BalanceCommission     BalanceReason = "commission"
	BalancePayment        BalanceReason = "payment"
	BalanceInvoice        BalanceReason = "invoice"
	BalanceCollectionPaid BalanceReason = "collection_paid"
	BalanceOpening        BalanceReason = "opening_balance"
)

// BalanceEntry is an append-only balance delta.
type BalanceEntry struct {
	ID           string
	Party        PartyRef
	Delta        decimal.Decimal
	Reason       BalanceReason
	Reference    Reference
	BalanceAfter decimal.Decimal
	ActorID      string
	CreatedAt    time.Time
}

// =============================================================================
// SALES, PAYMENTS, DOCUMENTS
// =============================================================================

type SaleStatus string

const (
	SaleReceived       SaleStatus = "received"
	SaleSold           SaleStatus = "sold"
	SalePaidToCollect  SaleStatus = "paid_to_collect"
	SaleCollectedToPay SaleStatus = "collected_to_pay"
)

// MovesStockOut reports whether a sale in this status takes goods out of stock.
func (s SaleStatus) MovesStockOut() bool {
	return s == SaleSold || s == SalePaidToCollect || s == SaleCollectedToPay
}

type PaymentMethod string

const (
	MethodCash      PaymentMethod = "cash"
	MethodEcocash   PaymentMethod = "ecocash"
	MethodOneMoney  PaymentMethod = "one_money"
	MethodMukuru    PaymentMethod = "mukuru"
	MethodInbucks   PaymentMethod = "inbucks"
	MethodMamaMoney PaymentMethod = "mama_money"
	MethodBank      PaymentMethod = "bank"
	MethodCard      PaymentMethod = "card"
	MethodOther     PaymentMethod = "other"
)

type SaleItem struct {
	ProductID       ProductID
	Quantity        int64
	UnitPrice       decimal.Decimal
	DealershipPrice decimal.Decimal
	LineTotal       decimal.Decimal
}

type Sale struct {
	ID            SaleID
	Status        SaleStatus
	CustomerID    PartyID
	ResellerID    PartyID
	Items         []SaleItem
	Subtotal      decimal.Decimal
	TotalAmount   decimal.Decimal
	IsTaxed       bool
	TaxAmount     decimal.Decimal
	Commission    decimal.Decimal
	PaymentMethod PaymentMethod
	Notes         string
	ActorID       string
	CreatedAt     time.Time
}

type Payment struct {
	ID        string
	Party     PartyRef
	InvoiceID InvoiceID
	Amount    decimal.Decimal
	Method    PaymentMethod
	Reference string
	Notes     string
	ActorID   string
	CreatedAt time.Time
}

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

type InvoiceItem struct {
	ProductID   ProductID
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

type Invoice struct {
	ID         InvoiceID
	Number     string
	CustomerID PartyID
	Items      []InvoiceItem
	Subtotal   decimal.Decimal
	TaxAmount  decimal.Decimal
	Total      decimal.Decimal
	Status     InvoiceStatus
	IssuedAt   time.Time
	DueDate    time.Time
	Notes      string
	ActorID    string
}

type Receipt struct {
	ID        string
	Number    string
	SaleID    SaleID
	Amount    decimal.Decimal
	ActorID   string
	CreatedAt time.Time
}

type StockTake struct {
	ID              string
	ProductID       ProductID
	SystemQuantity  int64
	CountedQuantity int64
	Difference      int64
	Notes           string
	ActorID         string
	CreatedAt       time.Time
}

type LossType string

const (
	LossDamage   LossType = "damage"
	LossTheft    LossType = "theft"
	LossExpiry   LossType = "expiry"
	LossWriteOff LossType = "write_off"
	LossBadDebt  LossType = "bad_debt"
	LossOther    LossType = "other"
)

// MovementReason maps a loss type onto the stock movement reason vocabulary.
func (t LossType) MovementReason() MovementReason {
	switch t {
	case LossDamage:
		return ReasonDamage
	case LossTheft:
		return ReasonTheft
	default:
		return ReasonOther
	}
}

type Loss struct {
	ID          string
	Type        LossType
	ProductID   ProductID
	CustomerID  PartyID
	Quantity    int64
	UnitCost    decimal.Decimal
	Total       decimal.Decimal
	Description string
	ActorID     string
	CreatedAt   time.Time
}

type ExpenseType string

const (
	ExpenseOperational    ExpenseType = "operational"
	ExpenseAdministrative ExpenseType = "administrative"
	ExpenseMarketing      ExpenseType = "marketing"
	ExpenseMaintenance    ExpenseType = "maintenance"
	ExpenseUtilities      ExpenseType = "utilities"
	ExpenseRent           ExpenseType = "rent"
	ExpenseSalaries       ExpenseType = "salaries"
	ExpenseOther          ExpenseType = "other"
)

// Expense is money spent running the shop. It moves neither stock nor any
// party balance.
type Expense struct {
	ID          string
	Type        ExpenseType
	Category    string
	Description string
	Amount      decimal.Decimal
	Reference   string
	Notes       string
	Recurring   string
	ActorID     string
	CreatedAt   time.Time
}

// =============================================================================
// COLLECTIONS
// =============================================================================

type CollectionType string

const (
	CollectionCustomerDebt    CollectionType = "customer_debt"
	CollectionItemToCollect   CollectionType = "item_to_collect"
	CollectionResellerPayment CollectionType = "reseller_payment"
)

type CollectionStatus string

const (
	CollectionPending   CollectionStatus = "pending"
	CollectionPaid      CollectionStatus = "paid"
	CollectionCollected CollectionStatus = "collected"
	CollectionCancelled CollectionStatus = "cancelled"
)

// ReasonOutstanding is the reason key of catch-up collections.
const ReasonOutstanding = "outstanding"

// PaymentCollection is an obligation owed by or to a party. ReasonKey names
// the logical cause (e.g. "sale:<id>"); at most one pending collection exists
// per (party, type, reason key).
type PaymentCollection struct {
	ID         CollectionID
	Party      PartyRef
	Type       CollectionType
	ReasonKey  string
	Amount     decimal.Decimal
	DueDate    time.Time
	Status     CollectionStatus
	SaleID     SaleID
	InvoiceID  InvoiceID
	Notes      string
	CreatedAt  time.Time
	ResolvedAt *time.Time
	ResolvedBy string
}

// CollectionFilter narrows Collections queries. Zero fields match everything.
type CollectionFilter struct {
	Party  *PartyRef
	Type   CollectionType
	Status CollectionStatus
}

func (f CollectionFilter) Match(c PaymentCollection) bool {
	if f.Party != nil && c.Party != *f.Party {
		return false
	}
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type NotificationType string

const (
	NotifyLowStock   NotificationType = "low_stock"
	NotifyPaymentDue NotificationType = "payment_due"
	NotifyStockAlert NotificationType = "stock_alert"
	NotifyGeneral    NotificationType = "general"
)

type Notification struct {
	ID        NotificationID
	Type      NotificationType
	Title     string
	Message   string
	Related   Reference
	Read      bool
	CreatedAt time.Time
}

// AlertKey identifies a deduplicated alert slot.
type AlertKey struct {
	Type    NotificationType
	Related Reference
}

func (k AlertKey) String() string { return string(k.Type) + "|" + k.Related.String() }
