package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// CollectionOutcome is a resolved collection plus any catch-up obligation
// created for the remaining balance.
type CollectionOutcome struct {
	Resolution
	CatchUp *PaymentCollection
}

// MarkCollectionPaid settles a customer debt or reseller payout.
func (d *Dispatcher) MarkCollectionPaid(ctx context.Context, id CollectionID, actor Actor) (CollectionOutcome, error) {
	return d.resolveCollection(ctx, "mark_collection_paid", id, actor, d.Collections.MarkPaid)
}

// MarkCollectionCollected records the hand-over of paid-for items.
func (d *Dispatcher) MarkCollectionCollected(ctx context.Context, id CollectionID, actor Actor) (CollectionOutcome, error) {
	return d.resolveCollection(ctx, "mark_collection_collected", id, actor, d.Collections.MarkCollected)
}

// CancelCollection drops a pending collection.
func (d *Dispatcher) CancelCollection(ctx context.Context, id CollectionID, actor Actor) (CollectionOutcome, error) {
	return d.resolveCollection(ctx, "cancel_collection", id, actor, d.Collections.Cancel)
}

type resolveFunc func(ctx context.Context, s Store, id CollectionID, actor Actor) (Resolution, error)

func (d *Dispatcher) resolveCollection(ctx context.Context, op string, id CollectionID, actor Actor, resolve resolveFunc) (CollectionOutcome, error) {
	if err := d.check(struct {
		Actor Actor `json:"actor"`
	}{actor}); err != nil {
		return CollectionOutcome{}, err
	}
	if id == "" {
		return CollectionOutcome{}, invalid("id", "is required")
	}

	var out CollectionOutcome
	err := d.atomically(ctx, op, actor, func(ctx context.Context, s Store) error {
		out = CollectionOutcome{}
		res, err := resolve(ctx, s, id, actor)
		if err != nil {
			return err
		}
		out.Resolution = res

		if res.Entry == nil {
			return nil
		}
		party, err := s.GetParty(ctx, res.Collection.Party)
		if err != nil {
			return fmt.Errorf("failed to reload %s: %w", res.Collection.Party, err)
		}
		out.CatchUp, err = d.Collections.EnsureOutstanding(ctx, s, party)
		return err
	})
	if err != nil {
		return CollectionOutcome{}, err
	}

	d.log.Info("collection resolved",
		zap.String("operation", op),
		zap.String("collection_id", string(id)),
		zap.String("status", string(out.Collection.Status)),
		zap.String("actor", actor.ID),
	)
	return out, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (d *Dispatcher) MarkNotificationRead(ctx context.Context, id NotificationID, actor Actor) error {
	if actor.ID == "" {
		return invalid("actor.id", "is required")
	}
	return d.atomically(ctx, "mark_notification_read", actor, func(ctx context.Context, s Store) error {
		return s.MarkNotificationRead(ctx, id)
	})
}

func (d *Dispatcher) MarkAllNotificationsRead(ctx context.Context, actor Actor) (int64, error) {
	if actor.ID == "" {
		return 0, invalid("actor.id", "is required")
	}
	var n int64
	err := d.atomically(ctx, "mark_all_notifications_read", actor, func(ctx context.Context, s Store) error {
		var err error
		n, err = s.MarkAllNotificationsRead(ctx)
		return err
	})
	return n, err
}
