package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Params are the business parameters the engine consumes. NewDispatcher
// replaces non-positive day counts and durations, a negative threshold and an
// unset price share with DefaultParams values. Start from DefaultParams to
// keep receipts and retries enabled.
type Params struct {
	// PaymentTermsDays is used when a party has no terms of its own.
	PaymentTermsDays int
	// ItemCollectDays is the due window for item-to-collect obligations.
	ItemCollectDays int
	// InvoiceDueDays is the due window for invoices without a due date.
	InvoiceDueDays int
	// LowStockThreshold applies to products registered without one.
	LowStockThreshold int64
	// SystemPriceShare is the share of a reseller sale assumed to be the
	// wholesale price when no dealership price was recorded. The reseller's
	// commission is the remainder. Zero is a valid share.
	SystemPriceShare decimal.NullDecimal
	TaxRate          decimal.Decimal
	TaxInvoices      bool
	AlertCooldown    time.Duration
	// MaxConflictRetries bounds how often a unit of work is re-run after a
	// numbering or obligation conflict.
	MaxConflictRetries int
	IssueReceipts      bool
}

func DefaultParams() Params {
	return Params{
		PaymentTermsDays:   30,
		ItemCollectDays:    7,
		InvoiceDueDays:     30,
		LowStockThreshold:  5,
		SystemPriceShare:   decimal.NewNullDecimal(decimal.RequireFromString("0.75")),
		TaxRate:            decimal.RequireFromString("0.15"),
		AlertCooldown:      24 * time.Hour,
		MaxConflictRetries: 3,
		IssueReceipts:      true,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.PaymentTermsDays <= 0 {
		p.PaymentTermsDays = d.PaymentTermsDays
	}
	if p.ItemCollectDays <= 0 {
		p.ItemCollectDays = d.ItemCollectDays
	}
	if p.InvoiceDueDays <= 0 {
		p.InvoiceDueDays = d.InvoiceDueDays
	}
	if p.LowStockThreshold < 0 {
		p.LowStockThreshold = d.LowStockThreshold
	}
	if !p.SystemPriceShare.Valid {
		p.SystemPriceShare = d.SystemPriceShare
	}
	if p.AlertCooldown <= 0 {
		p.AlertCooldown = d.AlertCooldown
	}
	if p.MaxConflictRetries < 0 {
		p.MaxConflictRetries = 0
	}
	return p
}

// CommissionShare is the reseller's share of a sale without a dealership price.
func (p Params) CommissionShare() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(p.SystemPriceShare.Decimal)
}
