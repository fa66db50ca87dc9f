package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/engine"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// defaultParams make every transaction take the write lock at BEGIN, which
// serializes concurrent graders, and let waiting writers retry for a while.
const defaultParams = "_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

var (
	_ engine.Store       = (*DB)(nil)
	_ engine.LedgerStore = (*DB)(nil)
	_ engine.ItemLookup  = (*DB)(nil)
	_ engine.LedgerTx    = (*Tx)(nil)
)

// Open creates a new database connection and ensures the schema is up to date.
// dsn is a file path, optionally with sqlite query parameters.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", withDefaultParams(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

func withDefaultParams(dsn string) string {
	if strings.Contains(dsn, "_txlock") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + defaultParams
	}
	return dsn + "?" + defaultParams
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx exposes review state and ledger queries bound to one transaction.
type Tx struct {
	q querier
}

// WithTx implements engine.Store.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	return db.inTx(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

// WithLedgerTx implements engine.LedgerStore.
func (db *DB) WithLedgerTx(ctx context.Context, fn func(ctx context.Context, tx engine.LedgerTx) error) error {
	return db.inTx(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

func (db *DB) inTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&Tx{q: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const stateColumns = `user_id, card_id, folder_id, repetitions, ease_factor, interval_days,
	next_review_at, last_reviewed_at, last_grade, suspended, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(r rowScanner) (domain.ReviewState, error) {
	var (
		st           domain.ReviewState
		nextReview   int64
		lastReviewed sql.NullInt64
		lastGrade    sql.NullInt64
		createdAt    int64
		updatedAt    int64
	)
	err := r.Scan(
		&st.UserID,
		&st.CardID,
		&st.FolderID,
		&st.Repetitions,
		&st.EaseFactor,
		&st.IntervalDays,
		&nextReview,
		&lastReviewed,
		&lastGrade,
		&st.Suspended,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.ReviewState{}, err
	}
	st.NextReviewAt = fromUnix(nextReview)
	st.CreatedAt = fromUnix(createdAt)
	st.UpdatedAt = fromUnix(updatedAt)
	if lastReviewed.Valid {
		t := fromUnix(lastReviewed.Int64)
		st.LastReviewedAt = &t
	}
	if lastGrade.Valid {
		g := int(lastGrade.Int64)
		st.LastGrade = &g
	}
	return st, nil
}

// FindByUserAndCard retrieves a review state. It returns nil, nil when the
// card is not scheduled for the user.
func (tx *Tx) FindByUserAndCard(ctx context.Context, userID, cardID string) (*domain.ReviewState, error) {
	row := tx.q.QueryRowContext(ctx, `
		SELECT `+stateColumns+`
		FROM review_states WHERE user_id = ? AND card_id = ?
	`, userID, cardID)

	st, err := scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not scheduled
		}
		return nil, fmt.Errorf("failed to find review state %s/%s: %w", userID, cardID, err)
	}
	return &st, nil
}

// Create inserts a new review state.
func (tx *Tx) Create(ctx context.Context, st domain.ReviewState) (domain.ReviewState, error) {
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO review_states (`+stateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		st.UserID,
		st.CardID,
		st.FolderID,
		st.Repetitions,
		st.EaseFactor,
		st.IntervalDays,
		toUnix(st.NextReviewAt),
		nullTime(st.LastReviewedAt),
		nullInt(st.LastGrade),
		st.Suspended,
		toUnix(st.CreatedAt),
		toUnix(st.UpdatedAt),
	)
	if err != nil {
		return domain.ReviewState{}, fmt.Errorf("failed to insert review state %s/%s: %w", st.UserID, st.CardID, err)
	}
	return st, nil
}

// Update overwrites the schedule fields of an existing review state.
func (tx *Tx) Update(ctx context.Context, st domain.ReviewState) (domain.ReviewState, error) {
	res, err := tx.q.ExecContext(ctx, `
		UPDATE review_states
		SET folder_id = ?, repetitions = ?, ease_factor = ?, interval_days = ?,
		    next_review_at = ?, last_reviewed_at = ?, last_grade = ?, suspended = ?, updated_at = ?
		WHERE user_id = ? AND card_id = ?
	`,
		st.FolderID,
		st.Repetitions,
		st.EaseFactor,
		st.IntervalDays,
		toUnix(st.NextReviewAt),
		nullTime(st.LastReviewedAt),
		nullInt(st.LastGrade),
		st.Suspended,
		toUnix(st.UpdatedAt),
		st.UserID,
		st.CardID,
	)
	if err != nil {
		return domain.ReviewState{}, fmt.Errorf("failed to update review state %s/%s: %w", st.UserID, st.CardID, err)
	}
	if err := expectOneRow(res, st.UserID, st.CardID); err != nil {
		return domain.ReviewState{}, err
	}
	return st, nil
}

// HasXPEvent implements engine.Tx.
func (tx *Tx) HasXPEvent(ctx context.Context, userID, cardID string, source domain.XPSource, from, to time.Time) (bool, error) {
	lo, hi := bounds(from, to)
	var found int
	err := tx.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM xp_events
			WHERE user_id = ? AND card_id = ? AND source = ? AND created_at >= ? AND created_at < ?
		)
	`, userID, cardID, string(source), lo, hi).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check %s xp for %s/%s: %w", source, userID, cardID, err)
	}
	return found == 1, nil
}

// SumXP implements engine.Tx.
func (tx *Tx) SumXP(ctx context.Context, userID string, from, to time.Time) (int, error) {
	lo, hi := bounds(from, to)
	var total int
	err := tx.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(xp), 0) FROM xp_events
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
	`, userID, lo, hi).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum xp for %s: %w", userID, err)
	}
	return total, nil
}

// CountEnrollments implements engine.Tx.
func (tx *Tx) CountEnrollments(ctx context.Context, userID string, from, to time.Time) (int, error) {
	lo, hi := bounds(from, to)
	var n int
	err := tx.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM review_states
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
	`, userID, lo, hi).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count enrollments for %s: %w", userID, err)
	}
	return n, nil
}

// AppendXPEvent inserts a ledger entry.
func (tx *Tx) AppendXPEvent(ctx context.Context, ev domain.XPEvent) error {
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO xp_events (id, user_id, card_id, source, xp, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.UserID, ev.CardID, string(ev.Source), ev.XP, toUnix(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert xp event for %s/%s: %w", ev.UserID, ev.CardID, err)
	}
	return nil
}

// GradedRequest implements engine.IdempotencyLedger.
func (tx *Tx) GradedRequest(ctx context.Context, requestID string) (*domain.GradeRequestRecord, error) {
	var (
		rec       domain.GradeRequestRecord
		createdAt int64
	)
	err := tx.q.QueryRowContext(ctx, `
		SELECT request_id, user_id, card_id, created_at
		FROM graded_requests WHERE request_id = ?
	`, requestID).Scan(&rec.RequestID, &rec.UserID, &rec.CardID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Never applied
		}
		return nil, fmt.Errorf("failed to find grade request %s: %w", requestID, err)
	}
	rec.CreatedAt = fromUnix(createdAt)
	return &rec, nil
}

// RecordGradedRequest implements engine.IdempotencyLedger.
func (tx *Tx) RecordGradedRequest(ctx context.Context, rec domain.GradeRequestRecord) error {
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO graded_requests (request_id, user_id, card_id, created_at)
		VALUES (?, ?, ?, ?)
	`, rec.RequestID, rec.UserID, rec.CardID, toUnix(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record grade request %s: %w", rec.RequestID, err)
	}
	return nil
}

// FindDue retrieves unsuspended states due at q.Now, most overdue first.
func (db *DB) FindDue(ctx context.Context, q engine.DueQuery) ([]domain.ReviewState, error) {
	query := `
		SELECT ` + stateColumns + `
		FROM review_states
		WHERE user_id = ? AND suspended = 0 AND next_review_at <= ?`
	args := []any{q.UserID, toUnix(q.Now)}
	if q.FolderID != "" {
		query += ` AND folder_id = ?`
		args = append(args, q.FolderID)
	}
	query += ` ORDER BY next_review_at ASC, card_id ASC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get due cards for %s: %w", q.UserID, err)
	}
	defer rows.Close()

	var states []domain.ReviewState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review state row for %s: %w", q.UserID, err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due cards for %s: %w", q.UserID, err)
	}
	return states, nil
}

// Suspend sets the suspended flag of a review state.
func (db *DB) Suspend(ctx context.Context, userID, cardID string) error {
	return db.setSuspended(ctx, userID, cardID, true)
}

// Resume clears the suspended flag of a review state.
func (db *DB) Resume(ctx context.Context, userID, cardID string) error {
	return db.setSuspended(ctx, userID, cardID, false)
}

func (db *DB) setSuspended(ctx context.Context, userID, cardID string, suspended bool) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE review_states
		SET suspended = ?
		WHERE user_id = ? AND card_id = ?
	`, suspended, userID, cardID)
	if err != nil {
		return fmt.Errorf("failed to set suspended=%t for %s/%s: %w", suspended, userID, cardID, err)
	}
	return expectOneRow(res, userID, cardID)
}

// PutCard inserts a card or moves it to another folder.
func (db *DB) PutCard(ctx context.Context, card domain.CardRef) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO cards (id, folder_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET folder_id = excluded.folder_id
	`, card.ID, card.FolderID, toUnix(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert card %s: %w", card.ID, err)
	}
	return nil
}

// GetCard implements engine.ItemLookup.
func (db *DB) GetCard(ctx context.Context, cardID string) (domain.CardRef, error) {
	var card domain.CardRef
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, folder_id FROM cards WHERE id = ?
	`, cardID).Scan(&card.ID, &card.FolderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CardRef{}, domain.ErrNotFound
		}
		return domain.CardRef{}, fmt.Errorf("failed to get card %s: %w", cardID, err)
	}
	return card, nil
}

// DeleteCard removes a card from the catalog. Review states are kept.
func (db *DB) DeleteCard(ctx context.Context, cardID string) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM cards
		WHERE id = ?
	`, cardID)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", cardID, err)
	}
	return nil
}

func expectOneRow(res sql.Result, userID, cardID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s/%s: %w", userID, cardID, err)
	}
	if n == 0 {
		return domain.ErrNotEnrolled
	}
	return nil
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// bounds converts an optional [from, to) window into storage values.
func bounds(from, to time.Time) (int64, int64) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !from.IsZero() {
		lo = toUnix(from)
	}
	if !to.IsZero() {
		hi = toUnix(to)
	}
	return lo, hi
}
