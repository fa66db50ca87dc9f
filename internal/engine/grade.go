package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/sm2"
	"github.com/conorfennell/knolrep/internal/xp"
)

// GradeInput records one review of a card. Grades outside [0,5] are clamped.
type GradeInput struct {
	UserID string `validate:"required,max=128"`
	CardID string `validate:"required,max=128"`
	Grade  int
	// RequestID, when set, makes the call safe to retry.
	RequestID string `validate:"max=128"`
	Now       time.Time
}

// GradeResult is the outcome of Grade.
type GradeResult struct {
	State domain.ReviewState
	// XP is the review XP awarded by this call; zero when the card already
	// earned review XP today or the call was a replay.
	XP int
	// Replayed is set when RequestID had already been applied.
	Replayed bool
}

// Grade applies a review grade to a card, enrolling it first if needed.
// Loading, XP accounting and persistence happen in one transaction.
func (e *Engine) Grade(ctx context.Context, in GradeInput) (GradeResult, error) {
	if err := e.check(in); err != nil {
		return GradeResult{}, err
	}
	if in.RequestID != "" && e.ledger == nil {
		e.log.Warn("store has no idempotency ledger, request id ignored", "request_id", in.RequestID)
	}
	now := e.now(in.Now)
	grade := sm2.ClampGrade(in.Grade)

	var res GradeResult
	err := e.inTx(ctx, in.RequestID != "", func(ctx context.Context, tx Tx, led IdempotencyLedger) error {
		res = GradeResult{}
		if led != nil {
			rec, err := led.GradedRequest(ctx, in.RequestID)
			if err != nil {
				return err
			}
			if rec != nil {
				if rec.UserID != in.UserID || rec.CardID != in.CardID {
					return fmt.Errorf("request %s applied to %s/%s: %w", in.RequestID, rec.UserID, rec.CardID, ErrRequestIDReused)
				}
				st, err := tx.FindByUserAndCard(ctx, in.UserID, in.CardID)
				if err != nil {
					return err
				}
				if st == nil {
					return domain.ErrNotEnrolled
				}
				res.State = *st
				res.Replayed = true
				return nil
			}
		}

		st, err := tx.FindByUserAndCard(ctx, in.UserID, in.CardID)
		if err != nil {
			return err
		}
		if st == nil {
			enrolled, err := e.autoEnroll(ctx, tx, in.UserID, in.CardID, now)
			if err != nil {
				return err
			}
			st = &enrolled
		}

		dayStart, dayEnd := e.day(now)
		awarded, err := tx.HasXPEvent(ctx, in.UserID, in.CardID, domain.XPSourceReview, dayStart, dayEnd)
		if err != nil {
			return err
		}
		if !awarded {
			daily, err := tx.SumXP(ctx, in.UserID, dayStart, dayEnd)
			if err != nil {
				return err
			}
			award := xp.Review(xp.ReviewParams{
				EaseFactor:   st.EaseFactor,
				IntervalDays: st.IntervalDays,
				Grade:        grade,
				Now:          now,
				NextReviewAt: st.NextReviewAt,
				DailyXP:      daily,
			})
			if err := tx.AppendXPEvent(ctx, domain.XPEvent{
				ID:        uuid.NewString(),
				UserID:    in.UserID,
				CardID:    in.CardID,
				Source:    domain.XPSourceReview,
				XP:        award.Effective,
				CreatedAt: now,
			}); err != nil {
				return err
			}
			res.XP = award.Effective
		}

		next := sm2.Next(*st, grade, e.policy, now)
		next.UpdatedAt = now
		updated, err := tx.Update(ctx, next)
		if err != nil {
			return err
		}

		if led != nil {
			if err := led.RecordGradedRequest(ctx, domain.GradeRequestRecord{
				RequestID: in.RequestID,
				UserID:    in.UserID,
				CardID:    in.CardID,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		res.State = updated
		return nil
	})
	if err != nil {
		return GradeResult{}, fmt.Errorf("grade %s/%s: %w", in.UserID, in.CardID, err)
	}

	if res.Replayed {
		e.log.Info("grade request replayed", "request_id", in.RequestID, "user_id", in.UserID, "card_id", in.CardID)
	} else {
		e.log.Debug("card graded",
			"user_id", in.UserID,
			"card_id", in.CardID,
			"grade", grade,
			"interval_days", res.State.IntervalDays,
			"ease_factor", res.State.EaseFactor,
			"xp", res.XP,
		)
	}
	return res, nil
}

// autoEnroll schedules a card the user grades before enrolling it.
func (e *Engine) autoEnroll(ctx context.Context, tx Tx, userID, cardID string, now time.Time) (domain.ReviewState, error) {
	if e.items == nil {
		return domain.ReviewState{}, fmt.Errorf("no item lookup to resolve card %s: %w", cardID, domain.ErrNotEnrolled)
	}
	card, err := e.items.GetCard(ctx, cardID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ReviewState{}, fmt.Errorf("card %s: %w", cardID, err)
		}
		return domain.ReviewState{}, err
	}
	return e.enrollTx(ctx, tx, userID, cardID, card.FolderID, now, now)
}
