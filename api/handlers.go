/*
handlers.go - HTTP API handlers for the POS ledger

PURPOSE:
  Exposes the ledger Dispatcher via REST API. Handles HTTP request/response
  and JSON serialization. Every write is a single Dispatcher call; handlers
  never touch the store.

ENDPOINTS:
  Products:
    GET    /api/products                   List products
    POST   /api/products                   Register product (opening stock)
    GET    /api/products/{id}              Product details
    GET    /api/products/{id}/movements    Stock movement log

  Customers / Resellers:
    GET    /api/{customers|resellers}              List
    POST   /api/{customers|resellers}              Register (opening balance)
    GET    /api/{customers|resellers}/{id}         Details
    GET    /api/{customers|resellers}/{id}/entries Balance entry log

  Events:
    POST   /api/sales                      recordSale
    GET    /api/sales/{id}                 Sale details
    GET    /api/sales/{id}/receipt         Receipt issued for the sale
    POST   /api/payments                   recordPayment
    POST   /api/stock-takes                recordStockTake
    POST   /api/losses                     recordLoss
    POST   /api/expenses                   recordExpense
    GET    /api/invoices?status=           List invoices
    POST   /api/invoices                   Create invoice
    GET    /api/invoices/{id}              Invoice details

  Collections:
    GET    /api/collections                Filter by party_kind, party_id, type, status
    GET    /api/collections/{id}           Details
    POST   /api/collections/{id}/paid      Mark paid
    POST   /api/collections/{id}/collected Mark collected
    POST   /api/collections/{id}/cancel    Cancel

  Notifications:
    GET    /api/notifications?unread=true  List, newest first
    POST   /api/notifications/{id}/read    Mark one read
    POST   /api/notifications/read-all     Mark all read

  Admin:
    POST   /api/admin/sweep                Run the time-driven sweeps now
    GET    /api/admin/audit                Replay logs against cached values

ACTOR:
  Every write needs an actor. It is taken from the request body ("actor")
  or, when the body has none, from the X-Actor-ID / X-Actor-Name headers.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, malformed JSON
  - 404: Product, party or document not found
  - 409: Invalid status transition, conflict after retries
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. The actor headers are trusted.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger *ledger.Dispatcher
	Sweep  SweepRunner
	Health Pinger

	log *zap.Logger
}

// NewHandler creates a handler over d. The dispatcher also serves as the
// sweep runner; the health check pings the store when it supports it.
func NewHandler(d *ledger.Dispatcher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{Ledger: d, Sweep: d, log: log.Named("api")}
	if p, ok := d.Store().(Pinger); ok {
		h.Health = p
	}
	return h
}

// =============================================================================
// PRODUCT ENDPOINTS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Ledger.Products(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(products, toProductDTO))
}

func (h *Handler) RegisterProduct(w http.ResponseWriter, r *http.Request) {
	var draft ledger.ProductDraft
	if !h.decode(w, r, &draft, &draft.Actor) {
		return
	}
	res, err := h.Ledger.RegisterProduct(r.Context(), draft)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ProductResponse{
		Product:       toProductDTO(res.Product),
		Movement:      optional(res.Movement, toMovementDTO),
		Notifications: mapSlice(res.Notifications, toNotificationDTO),
	})
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Ledger.Product(r.Context(), ledger.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

func (h *Handler) GetMovements(w http.ResponseWriter, r *http.Request) {
	ms, err := h.Ledger.Movements(r.Context(), ledger.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(ms, toMovementDTO))
}

// =============================================================================
// PARTY ENDPOINTS
// =============================================================================

// partyRoutes serves /api/customers and /api/resellers with the same handlers.
type partyRoutes struct {
	h    *Handler
	kind ledger.PartyKind
}

func (p partyRoutes) ref(r *http.Request) ledger.PartyRef {
	return ledger.PartyRef{Kind: p.kind, ID: ledger.PartyID(chi.URLParam(r, "id"))}
}

func (p partyRoutes) List(w http.ResponseWriter, r *http.Request) {
	parties, err := p.h.Ledger.Parties(r.Context(), p.kind)
	if err != nil {
		p.h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(parties, toPartyDTO))
}

func (p partyRoutes) Register(w http.ResponseWriter, r *http.Request) {
	var draft ledger.PartyDraft
	if !p.h.decode(w, r, &draft, &draft.Actor) {
		return
	}

	register := p.h.Ledger.RegisterCustomer
	if p.kind == ledger.PartyReseller {
		register = p.h.Ledger.RegisterReseller
	}
	res, err := register(r.Context(), draft)
	if err != nil {
		p.h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PartyResponse{
		Party:         toPartyDTO(res.Party),
		Entry:         optional(res.Entry, toBalanceEntryDTO),
		Collection:    optional(res.Collection, toCollectionDTO),
		Notifications: mapSlice(res.Notifications, toNotificationDTO),
	})
}

func (p partyRoutes) Get(w http.ResponseWriter, r *http.Request) {
	party, err := p.h.Ledger.Party(r.Context(), p.ref(r))
	if err != nil {
		p.h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPartyDTO(party))
}

func (p partyRoutes) Balance(w http.ResponseWriter, r *http.Request) {
	ref := p.ref(r)
	balance, err := p.h.Ledger.Balance(r.Context(), ref)
	if err != nil {
		p.h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		PartyKind: string(ref.Kind),
		PartyID:   string(ref.ID),
		Balance:   balance,
	})
}

func (p partyRoutes) Entries(w http.ResponseWriter, r *http.Request) {
	entries, err := p.h.Ledger.BalanceEntries(r.Context(), p.ref(r))
	if err != nil {
		p.h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(entries, toBalanceEntryDTO))
}

// =============================================================================
// EVENT ENDPOINTS
// =============================================================================

func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var draft ledger.SaleDraft
	if !h.decode(w, r, &draft, &draft.Actor) {
		return
	}
	res, err := h.Ledger.RecordSale(r.Context(), draft)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleResponse(res))
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.Ledger.Sale(r.Context(), ledger.SaleID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(sale))
}

func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	rcp, err := h.Ledger.ReceiptForSale(r.Context(), ledger.SaleID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(rcp))
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var draft ledger.PaymentDraft
	if !h.decode(w, r, &draft, &draft.Actor) {
		return
	}
	res, err := h.Ledger.RecordPayment(r.Context(), draft)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(res))
}

func (h *Handler) RecordStockTake(w http.ResponseWriter, r *http.Request) {
	var draft ledger.StockTakeDraft
	if !h.decode(w, r, &draft, &draft.Actor) {
		return
	}
	res, err := h.Ledger.RecordStockTake(r.Context(), draft)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStockTakeResponse(res))
}

func (h *Handler) RecordLoss(w http.ResponseWriter, r *http.Request) {
	var draft ledger.LossDraft
	if !h.decode(w, r, &draft, &draft.Actor) {
		return
	}
	res, err := h.Ledger.RecordLoss(r.Context(), draft)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLossResponse(res))
}

func (h *Handler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var draft ledger.ExpenseDraft
	if !h.decode(w, r, &draft, &draft.Actor) {
		return
	}
	res, err := h.Ledger.RecordExpense(r.Context(), draft)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseResponse(res))
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Ledger.Invoices(r.Context(), ledger.InvoiceStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(invoices, toInvoiceDTO))
}

func (h *Handler) RecordInvoice(w http.ResponseWriter, r *http.Request) {
	var draft ledger.InvoiceDraft
	if !h.decode(w, r, &draft, &draft.Actor) {
		return
	}
	res, err := h.Ledger.RecordInvoice(r.Context(), draft)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceResponse(res))
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Ledger.Invoice(r.Context(), ledger.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// =============================================================================
// COLLECTION ENDPOINTS
// =============================================================================

func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.CollectionFilter{
		Type:   ledger.CollectionType(q.Get("type")),
		Status: ledger.CollectionStatus(q.Get("status")),
	}
	if id := q.Get("party_id"); id != "" {
		kind := ledger.PartyKind(q.Get("party_kind"))
		if kind == "" {
			kind = ledger.PartyCustomer
		}
		filter.Party = &ledger.PartyRef{Kind: kind, ID: ledger.PartyID(id)}
	}

	cols, err := h.Ledger.PaymentCollections(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(cols, toCollectionDTO))
}

func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	col, err := h.Ledger.Collection(r.Context(), ledger.CollectionID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCollectionDTO(col))
}

type collectionResolver func(ctx context.Context, id ledger.CollectionID, actor ledger.Actor) (ledger.CollectionOutcome, error)

// resolveCollection adapts one of the dispatcher's collection transitions.
func (h *Handler) resolveCollection(resolve collectionResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Actor ledger.Actor `json:"actor"`
		}
		if !h.decode(w, r, &body, &body.Actor) {
			return
		}
		out, err := resolve(r.Context(), ledger.CollectionID(chi.URLParam(r, "id")), body.Actor)
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toCollectionResponse(out))
	}
}

// =============================================================================
// NOTIFICATION ENDPOINTS
// =============================================================================

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	unread := false
	if v := r.URL.Query().Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid unread flag", err)
			return
		}
		unread = b
	}
	ns, err := h.Ledger.Notifications(r.Context(), unread)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(ns, toNotificationDTO))
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor ledger.Actor `json:"actor"`
	}
	if !h.decode(w, r, &body, &body.Actor) {
		return
	}
	id := ledger.NotificationID(chi.URLParam(r, "id"))
	if err := h.Ledger.MarkNotificationRead(r.Context(), id, body.Actor); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor ledger.Actor `json:"actor"`
	}
	if !h.decode(w, r, &body, &body.Actor) {
		return
	}
	n, err := h.Ledger.MarkAllNotificationsRead(r.Context(), body.Actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// RunSweep runs the time-driven sweeps now, as the requesting actor.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor ledger.Actor `json:"actor"`
	}
	if !h.decode(w, r, &body, &body.Actor) {
		return
	}
	if body.Actor.ID == "" {
		body.Actor = ledger.SweeperActor
	}
	report, err := h.Sweep.Sweep(r.Context(), body.Actor)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepResponse(report))
}

// RunAudit replays every log. Drift is reported in the body with 200; the
// audit itself failing is a 500.
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.Ledger.Audit(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditResponse(report))
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads the JSON body into v. An empty body is allowed so bodiless
// POSTs can rely on the actor headers. actor is filled from the headers
// when the body left it empty.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any, actor *ledger.Actor) bool {
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body", err)
			return false
		}
	}
	if actor.ID == "" {
		actor.ID = r.Header.Get("X-Actor-ID")
		actor.Name = r.Header.Get("X-Actor-Name")
	}
	return true
}

// fail maps a ledger error to a status code.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Field:   verr.Field,
			Details: verr.Message,
		})
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, ledger.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid status transition", err)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, "conflict, retry the request", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "bad request", err)
	default:
		h.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
