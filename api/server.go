/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in the request log
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     Request logging through zap
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the till frontend

ROUTE GROUPS:
  /api/products/*       Inventory
  /api/customers/*      Customer accounts
  /api/resellers/*      Reseller accounts
  /api/sales/*          Sales and receipts
  /api/payments         Payments
  /api/stock-takes      Stock counts
  /api/losses           Losses
  /api/expenses         Running costs
  /api/invoices/*       Invoices
  /api/collections/*    Follow-up obligations
  /api/notifications/*  Alerts
  /api/admin/*          Sweep and audit
  /healthz              Liveness + database ping
  /metrics              Prometheus exposition

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/warp/pos-ledger/ledger"
)

// RouterOptions configures NewRouter. Zero values are usable.
type RouterOptions struct {
	AllowedOrigins []string
	// Gatherer backs /metrics. Nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID", "X-Actor-Name"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.RegisterProduct)
			r.Get("/{id}", h.GetProduct)
			r.Get("/{id}/movements", h.GetMovements)
		})

		mountParties(r, "/customers", partyRoutes{h: h, kind: ledger.PartyCustomer})
		mountParties(r, "/resellers", partyRoutes{h: h, kind: ledger.PartyReseller})

		r.Route("/sales", func(r chi.Router) {
			r.Post("/", h.RecordSale)
			r.Get("/{id}", h.GetSale)
			r.Get("/{id}/receipt", h.GetReceipt)
		})

		r.Post("/payments", h.RecordPayment)
		r.Post("/stock-takes", h.RecordStockTake)
		r.Post("/losses", h.RecordLoss)
		r.Post("/expenses", h.RecordExpense)

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.RecordInvoice)
			r.Get("/{id}", h.GetInvoice)
		})

		r.Route("/collections", func(r chi.Router) {
			r.Get("/", h.ListCollections)
			r.Get("/{id}", h.GetCollection)
			r.Post("/{id}/paid", h.resolveCollection(h.Ledger.MarkCollectionPaid))
			r.Post("/{id}/collected", h.resolveCollection(h.Ledger.MarkCollectionCollected))
			r.Post("/{id}/cancel", h.resolveCollection(h.Ledger.CancelCollection))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/read-all", h.MarkAllNotificationsRead)
			r.Post("/{id}/read", h.MarkNotificationRead)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.RunSweep)
			r.Get("/audit", h.RunAudit)
		})
	})

	return r
}

func mountParties(r chi.Router, path string, p partyRoutes) {
	r.Route(path, func(r chi.Router) {
		r.Get("/", p.List)
		r.Post("/", p.Register)
		r.Get("/{id}", p.Get)
		r.Get("/{id}/balance", p.Balance)
		r.Get("/{id}/entries", p.Entries)
	})
}

// requestLogger logs one line per request once the response is written.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("remote", r.RemoteAddr),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
