/*
dispatcher.go - Event Dispatcher

PURPOSE:
  The single entry point for every write. Each operation validates its draft,
  then runs one unit of work in a fixed order:

    1. persist the primary fact (sale, payment, stock take, loss, invoice)
    2. Inventory Ledger  - stock movements
    3. Balance Ledger    - balance entries
    4. Collection Scheduler - follow-up obligations
    5. Alert Deduplicator   - notifications
    6. Numbering Authority  - receipt for the sale

  Stock and balances are final before obligations and alerts are derived
  from them. Any error rolls the whole unit back.

RETRIES:
  A numbering collision, duplicate-obligation race or stale status update
  re-runs the whole unit of work, up to Params.MaxConflictRetries times, then
  surfaces as *ConflictError.

ACTOR:
  Every mutating call carries an explicit Actor. There is no fallback user.

SEE ALSO:
  - sale.go, payment.go, stock.go, invoice.go, registry.go: operations
  - collections.go, sweep.go, audit.go, queries.go: supporting operations
*/
package ledger

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/warp/pos-ledger/ledger"

// Dispatcher sequences the ledger components inside one unit of work.
type Dispatcher struct {
	store    TxStore
	params   Params
	clock    Clock
	log      *zap.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	validate *validator.Validate

	Inventory   *InventoryLedger
	Balances    *BalanceLedger
	Numbers     *NumberingAuthority
	Collections *CollectionScheduler
	Alerts      *AlertDeduplicator
}

type Option func(*Dispatcher)

func WithClock(c Clock) Option { return func(d *Dispatcher) { d.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(d *Dispatcher) { d.log = l } }

func WithMetrics(m *Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

func WithTracer(t trace.Tracer) Option { return func(d *Dispatcher) { d.tracer = t } }

// NewDispatcher wires the components over store.
func NewDispatcher(store TxStore, params Params, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		params:   params.withDefaults(),
		clock:    SystemClock{},
		log:      zap.NewNop(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}

	d.Inventory = &InventoryLedger{clock: d.clock}
	d.Balances = &BalanceLedger{clock: d.clock}
	d.Numbers = &NumberingAuthority{clock: d.clock}
	d.Collections = &CollectionScheduler{params: d.params, clock: d.clock, balances: d.Balances}
	d.Alerts = &AlertDeduplicator{params: d.params, clock: d.clock, metrics: d.metrics}
	return d
}

func (d *Dispatcher) Params() Params { return d.params }

func (d *Dispatcher) Store() TxStore { return d.store }

// =============================================================================
// UNIT OF WORK
// =============================================================================

// atomically runs fn in a transaction, re-running it after conflicts.
func (d *Dispatcher) atomically(ctx context.Context, op string, actor Actor, fn func(ctx context.Context, s Store) error) error {
	ctx, span := d.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(
		attribute.String("ledger.operation", op),
		attribute.String("ledger.actor", actor.ID),
	))
	defer span.End()

	start := d.clock.Now()
	attempts := d.params.MaxConflictRetries + 1

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = d.store.WithTx(ctx, func(s Store) error { return fn(ctx, s) })
		if err == nil || !IsRetryable(err) || attempt == attempts {
			if err != nil && IsRetryable(err) {
				err = exhausted(op, attempt, err)
			}
			break
		}
		d.metrics.retry(op)
		d.log.Warn("unit of work conflicted, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	d.metrics.observe(op, err, d.clock.Now().Sub(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !IsClientError(err) && !IsNotFound(err) {
			d.log.Error("unit of work failed",
				zap.String("operation", op),
				zap.String("actor", actor.ID),
				zap.Error(err),
			)
		}
	}
	return err
}

func exhausted(op string, attempts int, err error) error {
	var ce *ConflictError
	if errors.As(err, &ce) {
		out := *ce
		out.Attempts = attempts
		return &out
	}
	return &ConflictError{Resource: op, Attempts: attempts, Err: err}
}

func newID() string { return uuid.NewString() }

// =============================================================================
// VALIDATION
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// check runs struct validation and converts the first failure.
func (d *Dispatcher) check(draft any) error {
	err := d.validate.Struct(draft)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		return &ValidationError{Field: field, Message: describe(fe)}
	}
	return &ValidationError{Message: err.Error()}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	}
	return "failed " + fe.Tag() + " check"
}
