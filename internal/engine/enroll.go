package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/xp"
)

// EnrollInput starts scheduling a card for a user.
type EnrollInput struct {
	UserID   string `validate:"required,max=128"`
	CardID   string `validate:"required,max=128"`
	FolderID string `validate:"max=128"`
	// Deferred makes the card due DeferredStart after enrollment instead of immediately.
	Deferred bool
	Now      time.Time
}

// Enroll creates the review state for a card. Enrolling an already scheduled
// card returns the stored state unchanged.
func (e *Engine) Enroll(ctx context.Context, in EnrollInput) (domain.ReviewState, error) {
	if err := e.check(in); err != nil {
		return domain.ReviewState{}, err
	}
	now := e.now(in.Now)
	due := now
	if in.Deferred {
		due = now.Add(DeferredStart)
	}

	var out domain.ReviewState
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.FindByUserAndCard(ctx, in.UserID, in.CardID)
		if err != nil {
			return err
		}
		if existing != nil {
			out = *existing
			return nil
		}
		out, err = e.enrollTx(ctx, tx, in.UserID, in.CardID, in.FolderID, now, due)
		return err
	})
	if err != nil {
		return domain.ReviewState{}, fmt.Errorf("enroll %s/%s: %w", in.UserID, in.CardID, err)
	}
	return out, nil
}

// enrollTx creates a fresh state and awards enrollment XP if the card never
// earned it before. The caller must have checked that no state exists.
func (e *Engine) enrollTx(ctx context.Context, tx Tx, userID, cardID, folderID string, now, due time.Time) (domain.ReviewState, error) {
	dayStart, dayEnd := e.day(now)

	if e.gate != nil {
		today, err := tx.CountEnrollments(ctx, userID, dayStart, dayEnd)
		if err != nil {
			return domain.ReviewState{}, err
		}
		if err := e.gate(ctx, userID, today, e.policy); err != nil {
			return domain.ReviewState{}, err
		}
	}

	created, err := tx.Create(ctx, domain.ReviewState{
		UserID:       userID,
		CardID:       cardID,
		FolderID:     folderID,
		EaseFactor:   e.policy.DefaultEaseFactor,
		NextReviewAt: due,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.ReviewState{}, err
	}

	awarded, err := tx.HasXPEvent(ctx, userID, cardID, domain.XPSourceEnroll, time.Time{}, time.Time{})
	if err != nil {
		return domain.ReviewState{}, err
	}
	if awarded {
		e.log.Debug("card re-enrolled without XP", "user_id", userID, "card_id", cardID)
		return created, nil
	}

	daily, err := tx.SumXP(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return domain.ReviewState{}, err
	}
	award := xp.Enroll(daily)
	if err := tx.AppendXPEvent(ctx, domain.XPEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		CardID:    cardID,
		Source:    domain.XPSourceEnroll,
		XP:        award.Effective,
		CreatedAt: now,
	}); err != nil {
		return domain.ReviewState{}, err
	}

	e.log.Info("card enrolled",
		"user_id", userID,
		"card_id", cardID,
		"folder_id", folderID,
		"xp", award.Effective,
	)
	return created, nil
}
