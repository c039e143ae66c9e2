/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Ledger types carry no
  JSON tags; these types are the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Wrappers for a dispatcher result (the fact plus its consequences)

REQUESTS:
  Request bodies decode straight into the ledger drafts (ledger.SaleDraft,
  ledger.PaymentDraft, ...), which carry json and validate tags. The actor
  comes from the X-Actor-ID / X-Actor-Name headers when the body has none.

MONEY:
  decimal.Decimal marshals as a JSON string ("12.50") and accepts either a
  string or a number on input.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// INVENTORY
// =============================================================================

type ProductDTO struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	SalePrice         decimal.Decimal `json:"sale_price"`
	StockQuantity     int64           `json:"stock_quantity"`
	LowStockThreshold int64           `json:"low_stock_threshold"`
	LowStock          bool            `json:"low_stock"`
	CreatedAt         time.Time       `json:"created_at"`
	CreatedBy         string          `json:"created_by"`
}

func toProductDTO(p ledger.Product) ProductDTO {
	return ProductDTO{
		ID:                string(p.ID),
		Code:              p.Code,
		Name:              p.Name,
		Category:          p.Category,
		UnitCost:          p.UnitCost,
		SalePrice:         p.SalePrice,
		StockQuantity:     p.StockQuantity,
		LowStockThreshold: p.LowStockThreshold,
		LowStock:          p.IsLowStock(p.StockQuantity),
		CreatedAt:         p.CreatedAt,
		CreatedBy:         p.CreatedBy,
	}
}

type MovementDTO struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	Delta         int64           `json:"delta"`
	Kind          string          `json:"kind"`
	Reason        string          `json:"reason"`
	Reference     string          `json:"reference,omitempty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	QuantityAfter int64           `json:"quantity_after"`
	ActorID       string          `json:"actor_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toMovementDTO(m ledger.StockMovement) MovementDTO {
	return MovementDTO{
		ID:            m.ID,
		ProductID:     string(m.ProductID),
		Delta:         m.Delta,
		Kind:          string(m.Kind),
		Reason:        string(m.Reason),
		Reference:     m.Reference.String(),
		UnitCost:      m.UnitCost,
		QuantityAfter: m.QuantityAfter,
		ActorID:       m.ActorID,
		CreatedAt:     m.CreatedAt,
	}
}

type StockTakeDTO struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	SystemQuantity  int64     `json:"system_quantity"`
	CountedQuantity int64     `json:"counted_quantity"`
	Difference      int64     `json:"difference"`
	Notes           string    `json:"notes,omitempty"`
	ActorID         string    `json:"actor_id"`
	CreatedAt       time.Time `json:"created_at"`
}

type LossDTO struct {
	ID          string          `json:"id"`
	Type        string          `json:"loss_type"`
	ProductID   string          `json:"product_id,omitempty"`
	CustomerID  string          `json:"customer_id,omitempty"`
	Quantity    int64           `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Total       decimal.Decimal `json:"total"`
	Description string          `json:"description,omitempty"`
	ActorID     string          `json:"actor_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ExpenseDTO struct {
	ID          string          `json:"id"`
	Type        string          `json:"expense_type"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Recurring   string          `json:"recurring,omitempty"`
	ActorID     string          `json:"actor_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

// =============================================================================
// PARTIES & BALANCES
// =============================================================================

type PartyDTO struct {
	ID               string           `json:"id"`
	Kind             string           `json:"kind"`
	Name             string           `json:"name"`
	Phone            string           `json:"phone,omitempty"`
	Email            string           `json:"email,omitempty"`
	AccountCode      string           `json:"account_code"`
	PaymentTermsDays int              `json:"payment_terms_days"`
	CreditLimit      decimal.Decimal  `json:"credit_limit"`
	CommissionRate   *decimal.Decimal `json:"commission_rate,omitempty"`
	Balance          decimal.Decimal  `json:"balance"`
	BalanceSince     *time.Time       `json:"balance_since,omitempty"`
	PaymentDueAt     *time.Time       `json:"payment_due_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	CreatedBy        string           `json:"created_by"`
}

func toPartyDTO(p ledger.Party) PartyDTO {
	dto := PartyDTO{
		ID:               string(p.ID),
		Kind:             string(p.Kind),
		Name:             p.Name,
		Phone:            p.Phone,
		Email:            p.Email,
		AccountCode:      p.AccountCode,
		PaymentTermsDays: p.PaymentTermsDays,
		CreditLimit:      p.CreditLimit,
		Balance:          p.Balance,
		BalanceSince:     p.BalanceSince,
		CreatedAt:        p.CreatedAt,
		CreatedBy:        p.CreatedBy,
	}
	if p.CommissionRate.Valid {
		rate := p.CommissionRate.Decimal
		dto.CommissionRate = &rate
	}
	if due, ok := p.PaymentDueAt(); ok {
		dto.PaymentDueAt = &due
	}
	return dto
}

type BalanceEntryDTO struct {
	ID           string          `json:"id"`
	PartyKind    string          `json:"party_kind"`
	PartyID      string          `json:"party_id"`
	Delta        decimal.Decimal `json:"delta"`
	Reason       string          `json:"reason"`
	Reference    string          `json:"reference,omitempty"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	ActorID      string          `json:"actor_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toBalanceEntryDTO(e ledger.BalanceEntry) BalanceEntryDTO {
	return BalanceEntryDTO{
		ID:           e.ID,
		PartyKind:    string(e.Party.Kind),
		PartyID:      string(e.Party.ID),
		Delta:        e.Delta,
		Reason:       string(e.Reason),
		Reference:    e.Reference.String(),
		BalanceAfter: e.BalanceAfter,
		ActorID:      e.ActorID,
		CreatedAt:    e.CreatedAt,
	}
}

// BalanceDTO is the answer to "what does this party owe / is owed".
type BalanceDTO struct {
	PartyKind string          `json:"party_kind"`
	PartyID   string          `json:"party_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// =============================================================================
// SALES, PAYMENTS, DOCUMENTS
// =============================================================================

type SaleItemDTO struct {
	ProductID       string          `json:"product_id"`
	Quantity        int64           `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DealershipPrice decimal.Decimal `json:"dealership_price"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

type SaleDTO struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	CustomerID    string          `json:"customer_id,omitempty"`
	ResellerID    string          `json:"reseller_id,omitempty"`
	Items         []SaleItemDTO   `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	IsTaxed       bool            `json:"is_taxed"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Commission    decimal.Decimal `json:"commission"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	ActorID       string          `json:"actor_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toSaleDTO(s ledger.Sale) SaleDTO {
	items := make([]SaleItemDTO, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, SaleItemDTO{
			ProductID:       string(it.ProductID),
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			DealershipPrice: it.DealershipPrice,
			LineTotal:       it.LineTotal,
		})
	}
	return SaleDTO{
		ID:            string(s.ID),
		Status:        string(s.Status),
		CustomerID:    string(s.CustomerID),
		ResellerID:    string(s.ResellerID),
		Items:         items,
		Subtotal:      s.Subtotal,
		TotalAmount:   s.TotalAmount,
		IsTaxed:       s.IsTaxed,
		TaxAmount:     s.TaxAmount,
		Commission:    s.Commission,
		PaymentMethod: string(s.PaymentMethod),
		Notes:         s.Notes,
		ActorID:       s.ActorID,
		CreatedAt:     s.CreatedAt,
	}
}

type PaymentDTO struct {
	ID        string          `json:"id"`
	PartyKind string          `json:"party_kind"`
	PartyID   string          `json:"party_id"`
	InvoiceID string          `json:"invoice_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Reference string          `json:"reference,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	ActorID   string          `json:"actor_id"`
	CreatedAt time.Time       `json:"created_at"`
}

type InvoiceItemDTO struct {
	ProductID   string          `json:"product_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type InvoiceDTO struct {
	ID         string           `json:"id"`
	Number     string           `json:"number"`
	CustomerID string           `json:"customer_id"`
	Items      []InvoiceItemDTO `json:"items"`
	Subtotal   decimal.Decimal  `json:"subtotal"`
	TaxAmount  decimal.Decimal  `json:"tax_amount"`
	Total      decimal.Decimal  `json:"total"`
	Status     string           `json:"status"`
	IssuedAt   time.Time        `json:"issued_at"`
	DueDate    time.Time        `json:"due_date"`
	Notes      string           `json:"notes,omitempty"`
	ActorID    string           `json:"actor_id"`
}

func toInvoiceDTO(inv ledger.Invoice) InvoiceDTO {
	items := make([]InvoiceItemDTO, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, InvoiceItemDTO{
			ProductID:   string(it.ProductID),
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		})
	}
	return InvoiceDTO{
		ID:         string(inv.ID),
		Number:     inv.Number,
		CustomerID: string(inv.CustomerID),
		Items:      items,
		Subtotal:   inv.Subtotal,
		TaxAmount:  inv.TaxAmount,
		Total:      inv.Total,
		Status:     string(inv.Status),
		IssuedAt:   inv.IssuedAt,
		DueDate:    inv.DueDate,
		Notes:      inv.Notes,
		ActorID:    inv.ActorID,
	}
}

type ReceiptDTO struct {
	ID        string          `json:"id"`
	Number    string          `json:"number"`
	SaleID    string          `json:"sale_id"`
	Amount    decimal.Decimal `json:"amount"`
	ActorID   string          `json:"actor_id"`
	CreatedAt time.Time       `json:"created_at"`
}

func toReceiptDTO(r ledger.Receipt) ReceiptDTO {
	return ReceiptDTO{
		ID:        r.ID,
		Number:    r.Number,
		SaleID:    string(r.SaleID),
		Amount:    r.Amount,
		ActorID:   r.ActorID,
		CreatedAt: r.CreatedAt,
	}
}

// =============================================================================
// COLLECTIONS & NOTIFICATIONS
// =============================================================================

type CollectionDTO struct {
	ID         string          `json:"id"`
	PartyKind  string          `json:"party_kind"`
	PartyID    string          `json:"party_id"`
	Type       string          `json:"collection_type"`
	ReasonKey  string          `json:"reason_key"`
	Amount     decimal.Decimal `json:"amount"`
	DueDate    time.Time       `json:"due_date"`
	Status     string          `json:"status"`
	SaleID     string          `json:"sale_id,omitempty"`
	InvoiceID  string          `json:"invoice_id,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy string          `json:"resolved_by,omitempty"`
}

func toCollectionDTO(c ledger.PaymentCollection) CollectionDTO {
	return CollectionDTO{
		ID:         string(c.ID),
		PartyKind:  string(c.Party.Kind),
		PartyID:    string(c.Party.ID),
		Type:       string(c.Type),
		ReasonKey:  c.ReasonKey,
		Amount:     c.Amount,
		DueDate:    c.DueDate,
		Status:     string(c.Status),
		SaleID:     string(c.SaleID),
		InvoiceID:  string(c.InvoiceID),
		Notes:      c.Notes,
		CreatedAt:  c.CreatedAt,
		ResolvedAt: c.ResolvedAt,
		ResolvedBy: c.ResolvedBy,
	}
}

type NotificationDTO struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Related   string    `json:"related,omitempty"`
	Read      bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func toNotificationDTO(n ledger.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        string(n.ID),
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Related:   n.Related.String(),
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

// =============================================================================
// SLICE HELPERS
// =============================================================================

// mapSlice never returns nil so empty lists encode as [].
func mapSlice[T, D any](in []T, f func(T) D) []D {
	out := make([]D, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}

func optional[T, D any](v *T, f func(T) D) *D {
	if v == nil {
		return nil
	}
	d := f(*v)
	return &d
}

// =============================================================================
// OPERATION RESPONSES
// =============================================================================

type SaleResponse struct {
	Sale           SaleDTO           `json:"sale"`
	Movements      []MovementDTO     `json:"movements"`
	BalanceEntries []BalanceEntryDTO `json:"balance_entries"`
	Collections    []CollectionDTO   `json:"collections"`
	Notifications  []NotificationDTO `json:"notifications"`
	Receipt        *ReceiptDTO       `json:"receipt,omitempty"`
}

func toSaleResponse(r ledger.SaleResult) SaleResponse {
	return SaleResponse{
		Sale:           toSaleDTO(r.Sale),
		Movements:      mapSlice(r.Movements, toMovementDTO),
		BalanceEntries: mapSlice(r.BalanceEntries, toBalanceEntryDTO),
		Collections:    mapSlice(r.Collections, toCollectionDTO),
		Notifications:  mapSlice(r.Notifications, toNotificationDTO),
		Receipt:        optional(r.Receipt, toReceiptDTO),
	}
}

type PaymentResponse struct {
	Payment       PaymentDTO        `json:"payment"`
	Entry         BalanceEntryDTO   `json:"balance_entry"`
	Settled       []CollectionDTO   `json:"settled"`
	Invoice       *InvoiceDTO       `json:"invoice,omitempty"`
	Collections   []CollectionDTO   `json:"collections"`
	Notifications []NotificationDTO `json:"notifications"`
}

func toPaymentResponse(r ledger.PaymentResult) PaymentResponse {
	p := r.Payment
	return PaymentResponse{
		Payment: PaymentDTO{
			ID:        p.ID,
			PartyKind: string(p.Party.Kind),
			PartyID:   string(p.Party.ID),
			InvoiceID: string(p.InvoiceID),
			Amount:    p.Amount,
			Method:    string(p.Method),
			Reference: p.Reference,
			Notes:     p.Notes,
			ActorID:   p.ActorID,
			CreatedAt: p.CreatedAt,
		},
		Entry:         toBalanceEntryDTO(r.Entry),
		Settled:       mapSlice(r.Settled, toCollectionDTO),
		Invoice:       optional(r.Invoice, toInvoiceDTO),
		Collections:   mapSlice(r.Collections, toCollectionDTO),
		Notifications: mapSlice(r.Notifications, toNotificationDTO),
	}
}

type StockTakeResponse struct {
	StockTake     StockTakeDTO      `json:"stock_take"`
	Movement      *MovementDTO      `json:"movement,omitempty"`
	Notifications []NotificationDTO `json:"notifications"`
}

func toStockTakeResponse(r ledger.StockTakeResult) StockTakeResponse {
	st := r.StockTake
	return StockTakeResponse{
		StockTake: StockTakeDTO{
			ID:              st.ID,
			ProductID:       string(st.ProductID),
			SystemQuantity:  st.SystemQuantity,
			CountedQuantity: st.CountedQuantity,
			Difference:      st.Difference,
			Notes:           st.Notes,
			ActorID:         st.ActorID,
			CreatedAt:       st.CreatedAt,
		},
		Movement:      optional(r.Movement, toMovementDTO),
		Notifications: mapSlice(r.Notifications, toNotificationDTO),
	}
}

type LossResponse struct {
	Loss          LossDTO           `json:"loss"`
	Movement      *MovementDTO      `json:"movement,omitempty"`
	Notifications []NotificationDTO `json:"notifications"`
}

func toLossResponse(r ledger.LossResult) LossResponse {
	l := r.Loss
	return LossResponse{
		Loss: LossDTO{
			ID:          l.ID,
			Type:        string(l.Type),
			ProductID:   string(l.ProductID),
			CustomerID:  string(l.CustomerID),
			Quantity:    l.Quantity,
			UnitCost:    l.UnitCost,
			Total:       l.Total,
			Description: l.Description,
			ActorID:     l.ActorID,
			CreatedAt:   l.CreatedAt,
		},
		Movement:      optional(r.Movement, toMovementDTO),
		Notifications: mapSlice(r.Notifications, toNotificationDTO),
	}
}

type ExpenseResponse struct {
	Expense       ExpenseDTO        `json:"expense"`
	Notifications []NotificationDTO `json:"notifications"`
}

func toExpenseResponse(r ledger.ExpenseResult) ExpenseResponse {
	e := r.Expense
	return ExpenseResponse{
		Expense: ExpenseDTO{
			ID:          e.ID,
			Type:        string(e.Type),
			Category:    e.Category,
			Description: e.Description,
			Amount:      e.Amount,
			Reference:   e.Reference,
			Notes:       e.Notes,
			Recurring:   e.Recurring,
			ActorID:     e.ActorID,
			CreatedAt:   e.CreatedAt,
		},
		Notifications: mapSlice(r.Notifications, toNotificationDTO),
	}
}

type InvoiceResponse struct {
	Invoice       InvoiceDTO        `json:"invoice"`
	Entry         *BalanceEntryDTO  `json:"balance_entry,omitempty"`
	Collection    *CollectionDTO    `json:"collection,omitempty"`
	Notifications []NotificationDTO `json:"notifications"`
}

func toInvoiceResponse(r ledger.InvoiceResult) InvoiceResponse {
	return InvoiceResponse{
		Invoice:       toInvoiceDTO(r.Invoice),
		Entry:         optional(r.Entry, toBalanceEntryDTO),
		Collection:    optional(r.Collection, toCollectionDTO),
		Notifications: mapSlice(r.Notifications, toNotificationDTO),
	}
}

type ProductResponse struct {
	Product       ProductDTO        `json:"product"`
	Movement      *MovementDTO      `json:"movement,omitempty"`
	Notifications []NotificationDTO `json:"notifications"`
}

type PartyResponse struct {
	Party         PartyDTO          `json:"party"`
	Entry         *BalanceEntryDTO  `json:"balance_entry,omitempty"`
	Collection    *CollectionDTO    `json:"collection,omitempty"`
	Notifications []NotificationDTO `json:"notifications"`
}

type CollectionResponse struct {
	Collection CollectionDTO    `json:"collection"`
	Entry      *BalanceEntryDTO `json:"balance_entry,omitempty"`
	Sale       *SaleDTO         `json:"sale,omitempty"`
	Invoice    *InvoiceDTO      `json:"invoice,omitempty"`
	CatchUp    *CollectionDTO   `json:"catch_up,omitempty"`
}

func toCollectionResponse(o ledger.CollectionOutcome) CollectionResponse {
	return CollectionResponse{
		Collection: toCollectionDTO(o.Collection),
		Entry:      optional(o.Entry, toBalanceEntryDTO),
		Sale:       optional(o.Sale, toSaleDTO),
		Invoice:    optional(o.Invoice, toInvoiceDTO),
		CatchUp:    optional(o.CatchUp, toCollectionDTO),
	}
}

type SweepResponse struct {
	LowStock           []NotificationDTO `json:"low_stock"`
	PaymentDue         []NotificationDTO `json:"payment_due"`
	OverdueInvoices    []InvoiceDTO      `json:"overdue_invoices"`
	CatchUp            []CollectionDTO   `json:"catch_up"`
	OverdueCollections int               `json:"overdue_collections"`
	OverdueAmount      decimal.Decimal   `json:"overdue_amount"`
}

func toSweepResponse(r ledger.SweepReport) SweepResponse {
	return SweepResponse{
		LowStock:           mapSlice(r.LowStock, toNotificationDTO),
		PaymentDue:         mapSlice(r.PaymentDue, toNotificationDTO),
		OverdueInvoices:    mapSlice(r.OverdueInvoices, toInvoiceDTO),
		CatchUp:            mapSlice(r.CatchUp, toCollectionDTO),
		OverdueCollections: r.OverdueCollections,
		OverdueAmount:      r.OverdueAmount,
	}
}

type ViolationDTO struct {
	Subject  string `json:"subject"`
	Detail   string `json:"detail"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

type AuditResponse struct {
	ProductsChecked int            `json:"products_checked"`
	PartiesChecked  int            `json:"parties_checked"`
	Consistent      bool           `json:"consistent"`
	Violations      []ViolationDTO `json:"violations"`
}

func toAuditResponse(r ledger.AuditReport) AuditResponse {
	return AuditResponse{
		ProductsChecked: r.ProductsChecked,
		PartiesChecked:  r.PartiesChecked,
		Consistent:      len(r.Violations) == 0,
		Violations: mapSlice(r.Violations, func(v *ledger.InvariantViolation) ViolationDTO {
			return ViolationDTO{Subject: v.Subject, Detail: v.Detail, Expected: v.Expected, Actual: v.Actual}
		}),
	}
}

// ErrorResponse is returned for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// CountResponse reports how many rows an operation touched.
type CountResponse struct {
	Count int64 `json:"count"`
}
