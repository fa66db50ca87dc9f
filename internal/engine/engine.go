// Package engine orchestrates enrollment, grading and due queues on top of
// the SM-2 scheduler, the XP calculator and a transactional store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/platform/logger"
	"github.com/conorfennell/knolrep/internal/sm2"
)

const (
	DefaultQueueLimit = 20
	// DeferredStart delays the first review of a card enrolled with Deferred set.
	DeferredStart = 5 * time.Minute
)

var (
	// ErrDailyNewCap is returned by DailyNewCapGate once the cap is reached.
	ErrDailyNewCap = errors.New("daily new card limit reached")
	// ErrRequestIDReused is returned when a grade request id was already
	// applied to a different user or card.
	ErrRequestIDReused = errors.New("request id already used for another card")
)

// Clock returns the current time.
type Clock func() time.Time

// EnrollGate is consulted before a new review state is created.
// enrolledToday counts review states the user created in the current calendar
// day, including cards re-enrolled without earning enrollment XP.
type EnrollGate func(ctx context.Context, userID string, enrolledToday int, p sm2.Policy) error

// DailyNewCapGate rejects enrollments once Policy.DailyNewCap is reached.
// A cap of zero disables the check.
func DailyNewCapGate(_ context.Context, userID string, enrolledToday int, p sm2.Policy) error {
	if p.DailyNewCap > 0 && enrolledToday >= p.DailyNewCap {
		return fmt.Errorf("user %s enrolled %d cards today: %w", userID, enrolledToday, ErrDailyNewCap)
	}
	return nil
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	Policy     sm2.Policy
	Clock      Clock
	Location   *time.Location
	QueueLimit int
	EnrollGate EnrollGate
	Logger     *logger.Logger
}

// Engine applies review operations. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	store      Store
	ledger     LedgerStore
	items      ItemLookup
	policy     sm2.Policy
	clock      Clock
	loc        *time.Location
	queueLimit int
	gate       EnrollGate
	log        *logger.Logger
	validate   *validator.Validate
}

// New builds an Engine. If store also implements LedgerStore, grade requests
// carrying a request id are deduplicated. Zero policy fields take their
// DefaultPolicy value; DailyNewCap keeps zero unless the whole policy is zero.
// The resulting policy must be consistent or New returns ErrInvalidInput.
func New(store Store, items ItemLookup, opts Options) (*Engine, error) {
	e := &Engine{
		store:      store,
		items:      items,
		policy:     opts.Policy,
		clock:      opts.Clock,
		loc:        opts.Location,
		queueLimit: opts.QueueLimit,
		gate:       opts.EnrollGate,
		log:        opts.Logger,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
	if ls, ok := store.(LedgerStore); ok {
		e.ledger = ls
	}
	e.policy = withPolicyDefaults(e.policy)
	if err := e.validate.Struct(e.policy); err != nil {
		return nil, fmt.Errorf("%w: policy: %v", domain.ErrInvalidInput, err)
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.queueLimit <= 0 {
		e.queueLimit = DefaultQueueLimit
	}
	if e.log == nil {
		e.log = logger.Nop()
	}
	return e, nil
}

func withPolicyDefaults(p sm2.Policy) sm2.Policy {
	def := sm2.DefaultPolicy()
	if p == (sm2.Policy{}) {
		return def
	}
	if p.DefaultEaseFactor == 0 {
		p.DefaultEaseFactor = def.DefaultEaseFactor
	}
	if p.MinEaseFactor == 0 {
		p.MinEaseFactor = def.MinEaseFactor
	}
	if p.FirstIntervalDays == 0 {
		p.FirstIntervalDays = def.FirstIntervalDays
	}
	if p.SecondIntervalDays == 0 {
		p.SecondIntervalDays = def.SecondIntervalDays
	}
	if p.MaxIntervalDays == 0 {
		p.MaxIntervalDays = def.MaxIntervalDays
	}
	return p
}

// Idempotent reports whether grade request ids are honoured.
func (e *Engine) Idempotent() bool {
	return e.ledger != nil
}

func (e *Engine) now(override time.Time) time.Time {
	if !override.IsZero() {
		return override
	}
	return e.clock()
}

// day returns the bounds of the calendar day containing t.
func (e *Engine) day(t time.Time) (time.Time, time.Time) {
	local := t.In(e.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
	return start, start.AddDate(0, 0, 1)
}

func (e *Engine) check(in interface{}) error {
	if err := e.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// inTx runs fn inside one store transaction. When withLedger is set and the
// store supports it, fn also receives the idempotency ledger.
func (e *Engine) inTx(ctx context.Context, withLedger bool, fn func(ctx context.Context, tx Tx, led IdempotencyLedger) error) error {
	if withLedger && e.ledger != nil {
		return e.ledger.WithLedgerTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			return fn(ctx, tx, tx)
		})
	}
	return e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, tx, nil)
	})
}
