package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ExpenseDraft struct {
	Actor       Actor           `json:"actor"`
	Type        ExpenseType     `json:"expense_type" validate:"omitempty,oneof=operational administrative marketing maintenance utilities rent salaries other"`
	Category    string          `json:"category"`
	Description string          `json:"description" validate:"required,max=200"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
	Notes       string          `json:"notes"`
	// Recurring names the frequency of a repeating expense, e.g. "monthly".
	Recurring string `json:"recurring"`
}

type ExpenseResult struct {
	Expense       Expense
	Notifications []Notification
}

// RecordExpense records money spent running the shop and raises a general
// notification for it.
func (d *Dispatcher) RecordExpense(ctx context.Context, draft ExpenseDraft) (ExpenseResult, error) {
	if err := d.check(draft); err != nil {
		return ExpenseResult{}, err
	}
	if !Money(draft.Amount).IsPositive() {
		return ExpenseResult{}, invalid("amount", "expense amount must be positive")
	}

	var res ExpenseResult
	err := d.atomically(ctx, "record_expense", draft.Actor, func(ctx context.Context, s Store) error {
		res = ExpenseResult{}

		// 1. primary fact
		e := Expense{
			ID:          newID(),
			Type:        draft.Type,
			Category:    draft.Category,
			Description: draft.Description,
			Amount:      Money(draft.Amount),
			Reference:   draft.Reference,
			Notes:       draft.Notes,
			Recurring:   draft.Recurring,
			ActorID:     draft.Actor.ID,
			CreatedAt:   d.clock.Now(),
		}
		if e.Type == "" {
			e.Type = ExpenseOther
		}
		if err := s.CreateExpense(ctx, e); err != nil {
			return fmt.Errorf("failed to create expense: %w", err)
		}
		res.Expense = e

		// 5. alerts
		n, err := d.Alerts.General(ctx, s, "Expense Recorded",
			fmt.Sprintf("New expense recorded: %s - $%s", e.Description, e.Amount.StringFixed(MoneyPlaces)),
			Reference{Kind: RefExpense, ID: e.ID})
		if err != nil {
			return err
		}
		res.Notifications = appendNotification(res.Notifications, n)
		return nil
	})
	if err != nil {
		return ExpenseResult{}, err
	}

	d.log.Info("expense recorded",
		zap.String("expense_id", res.Expense.ID),
		zap.String("type", string(res.Expense.Type)),
		zap.String("amount", res.Expense.Amount.StringFixed(MoneyPlaces)),
		zap.String("actor", draft.Actor.ID),
	)
	return res, nil
}
