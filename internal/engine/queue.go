package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/knolrep/internal/domain"
)

// QueueInput selects a user's due cards, optionally within one folder.
type QueueInput struct {
	UserID   string `validate:"required,max=128"`
	FolderID string `validate:"max=128"`
	// Limit defaults to the engine's queue limit when not positive.
	Limit int
	Now   time.Time
}

// DailyQueue returns unsuspended due cards, most overdue first.
func (e *Engine) DailyQueue(ctx context.Context, in QueueInput) ([]domain.ReviewState, error) {
	if err := e.check(in); err != nil {
		return nil, err
	}
	limit := in.Limit
	if limit <= 0 {
		limit = e.queueLimit
	}
	due, err := e.store.FindDue(ctx, DueQuery{
		UserID:   in.UserID,
		FolderID: in.FolderID,
		Now:      e.now(in.Now),
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("daily queue for %s: %w", in.UserID, err)
	}
	return due, nil
}

// MaxSnoozeMinutes caps a single snooze at one year.
const MaxSnoozeMinutes = 365 * 24 * 60

// SnoozeInput postpones a card without touching its schedule.
type SnoozeInput struct {
	UserID string `validate:"required,max=128"`
	CardID string `validate:"required,max=128"`
	// Minutes are clamped to [1, MaxSnoozeMinutes].
	Minutes int
	Now     time.Time
}

// Snooze moves NextReviewAt to now+Minutes. Nothing else changes.
func (e *Engine) Snooze(ctx context.Context, in SnoozeInput) (domain.ReviewState, error) {
	if err := e.check(in); err != nil {
		return domain.ReviewState{}, err
	}
	minutes := in.Minutes
	if minutes < 1 {
		minutes = 1
	}
	if minutes > MaxSnoozeMinutes {
		minutes = MaxSnoozeMinutes
	}
	now := e.now(in.Now)

	var out domain.ReviewState
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := tx.FindByUserAndCard(ctx, in.UserID, in.CardID)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("cannot snooze unscheduled item: %w", domain.ErrNotEnrolled)
		}
		st.NextReviewAt = now.Add(time.Duration(minutes) * time.Minute)
		st.UpdatedAt = now
		out, err = tx.Update(ctx, *st)
		return err
	})
	if err != nil {
		return domain.ReviewState{}, fmt.Errorf("snooze %s/%s: %w", in.UserID, in.CardID, err)
	}
	e.log.Debug("card snoozed", "user_id", in.UserID, "card_id", in.CardID, "minutes", minutes)
	return out, nil
}

type cardKey struct {
	UserID string `validate:"required,max=128"`
	CardID string `validate:"required,max=128"`
}

// Suspend excludes a card from due queues until it is resumed.
func (e *Engine) Suspend(ctx context.Context, userID, cardID string) error {
	if err := e.check(cardKey{userID, cardID}); err != nil {
		return err
	}
	if err := e.store.Suspend(ctx, userID, cardID); err != nil {
		return fmt.Errorf("suspend %s/%s: %w", userID, cardID, err)
	}
	e.log.Info("card suspended", "user_id", userID, "card_id", cardID)
	return nil
}

// Resume returns a suspended card to due queues.
func (e *Engine) Resume(ctx context.Context, userID, cardID string) error {
	if err := e.check(cardKey{userID, cardID}); err != nil {
		return err
	}
	if err := e.store.Resume(ctx, userID, cardID); err != nil {
		return fmt.Errorf("resume %s/%s: %w", userID, cardID, err)
	}
	e.log.Info("card resumed", "user_id", userID, "card_id", cardID)
	return nil
}

// DailyXP returns the XP a user earned in the calendar day containing now.
func (e *Engine) DailyXP(ctx context.Context, userID string, now time.Time) (int, error) {
	if err := e.validate.Var(userID, "required,max=128"); err != nil {
		return 0, fmt.Errorf("%w: user id: %v", domain.ErrInvalidInput, err)
	}
	start, end := e.day(e.now(now))
	var total int
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		total, err = tx.SumXP(ctx, userID, start, end)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("daily xp for %s: %w", userID, err)
	}
	return total, nil
}
