/*
numbering.go - Numbering Authority

PURPOSE:
  Issues human-readable, per-scope sequential document numbers:

    invoice    INV-YYYYMM-NNNN
    receipt    RCP-YYYYMMDD-NNNN
    customer   CUST-YYYY-NNNN
    reseller   RESL-YYYY-NNNN
    product    XXX-YYYY-NNNN   (first three letters of the category, or PRD)

ALGORITHM:
  1. Advance the scope's counter inside the caller's transaction. A scope
     used for the first time is seeded from the highest suffix already
     registered under its prefix.
  2. Register the formatted number in a unique table.
  3. A registration collision is a ConflictError; the dispatcher retries the
     whole unit of work.
  A rolled-back unit of work rolls the counter back with it, so numbers in a
  scope have no gaps.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Scope is a numbering sequence, e.g. {INV, 202510}.
type Scope struct {
	Prefix string
	Period string
}

func (s Scope) Key() string { return s.Prefix + "-" + s.Period }

func (s Scope) Format(n int64) string { return fmt.Sprintf("%s-%s-%04d", s.Prefix, s.Period, n) }

func InvoiceScope(t time.Time) Scope { return Scope{Prefix: "INV", Period: t.Format("200601")} }
func ReceiptScope(t time.Time) Scope { return Scope{Prefix: "RCP", Period: t.Format("20060102")} }
func CustomerScope(t time.Time) Scope { return Scope{Prefix: "CUST", Period: t.Format("2006")} }
func ResellerScope(t time.Time) Scope { return Scope{Prefix: "RESL", Period: t.Format("2006")} }

// ProductScope numbers products per category prefix and year.
func ProductScope(category string, t time.Time) Scope {
	return Scope{Prefix: CategoryPrefix(category), Period: t.Format("2006")}
}

// CategoryPrefix is the upper-cased first three letters or digits of the
// category, or PRD.
func CategoryPrefix(category string) string {
	var b strings.Builder
	n := 0
	for _, r := range category {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if n++; n == 3 {
			break
		}
	}
	if n == 0 {
		return "PRD"
	}
	return b.String()
}

// NumberingAuthority hands out document numbers.
type NumberingAuthority struct {
	clock Clock
}

// Next issues the next number in scope within the store's transaction.
func (a *NumberingAuthority) Next(ctx context.Context, s Store, scope Scope) (string, error) {
	key := scope.Key()

	n, err := s.NextSequence(ctx, key, func() (int64, error) {
		return s.MaxRegisteredSuffix(ctx, key+"-")
	})
	if err != nil {
		return "", fmt.Errorf("failed to advance sequence %s: %w", key, err)
	}

	number := scope.Format(n)
	if err := s.RegisterNumber(ctx, number, key, a.clock.Now()); err != nil {
		if errors.Is(err, ErrDuplicateNumber) {
			return "", &ConflictError{Resource: "document number", Key: number, Err: err}
		}
		return "", fmt.Errorf("failed to register number %s: %w", number, err)
	}
	return number, nil
}

// ParseSuffix returns the numeric suffix of number after prefix.
func ParseSuffix(number, prefix string) (int64, bool) {
	if !strings.HasPrefix(number, prefix) {
		return 0, false
	}
	rest := number[len(prefix):]
	if rest == "" {
		return 0, false
	}
	var n int64
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int64(r-'0')
	}
	return n, true
}
