package engine

import (
	"context"
	"time"

	"github.com/conorfennell/knolrep/internal/domain"
)

// Tx is the transactional view of the review state store and XP ledger.
// Every method call made through one Tx belongs to the same atomic unit.
type Tx interface {
	// FindByUserAndCard returns nil, nil when no state exists.
	FindByUserAndCard(ctx context.Context, userID, cardID string) (*domain.ReviewState, error)
	Create(ctx context.Context, st domain.ReviewState) (domain.ReviewState, error)
	Update(ctx context.Context, st domain.ReviewState) (domain.ReviewState, error)

	// HasXPEvent reports whether an event of source exists for the card with
	// from <= createdAt < to. A zero bound is unbounded.
	HasXPEvent(ctx context.Context, userID, cardID string, source domain.XPSource, from, to time.Time) (bool, error)
	// SumXP totals a user's XP with from <= createdAt < to.
	SumXP(ctx context.Context, userID string, from, to time.Time) (int, error)
	// CountEnrollments counts a user's review states with from <= createdAt < to.
	CountEnrollments(ctx context.Context, userID string, from, to time.Time) (int, error)
	AppendXPEvent(ctx context.Context, ev domain.XPEvent) error
}

// DueQuery selects unsuspended states with NextReviewAt <= Now.
type DueQuery struct {
	UserID   string
	FolderID string
	Now      time.Time
	Limit    int
}

// Store is the durable home of review states.
type Store interface {
	// WithTx runs fn in a transaction that serializes writers of the same
	// (user, card) state. fn's error rolls the transaction back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// FindDue returns due states ordered by NextReviewAt ascending.
	FindDue(ctx context.Context, q DueQuery) ([]domain.ReviewState, error)
	// Suspend and Resume return domain.ErrNotEnrolled when no state exists.
	Suspend(ctx context.Context, userID, cardID string) error
	Resume(ctx context.Context, userID, cardID string) error
}

// IdempotencyLedger records which grade requests were already applied.
type IdempotencyLedger interface {
	// GradedRequest returns nil, nil when requestID was never applied.
	GradedRequest(ctx context.Context, requestID string) (*domain.GradeRequestRecord, error)
	RecordGradedRequest(ctx context.Context, rec domain.GradeRequestRecord) error
}

// LedgerTx is a Tx that can also record applied grade requests.
type LedgerTx interface {
	Tx
	IdempotencyLedger
}

// LedgerStore is implemented by stores that can keep the idempotency ledger
// in the same transaction as the review state.
type LedgerStore interface {
	WithLedgerTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

// ItemLookup resolves cards to their folder.
type ItemLookup interface {
	GetCard(ctx context.Context, cardID string) (domain.CardRef, error)
}
