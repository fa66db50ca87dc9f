package domain

import "time"

// XPSource names the activity an XP event rewards.
type XPSource string

const (
	XPSourceEnroll XPSource = "enroll"
	XPSourceReview XPSource = "review"
)

// XPEvent is an append-only ledger entry.
type XPEvent struct {
	ID        string
	UserID    string
	CardID    string
	Source    XPSource
	XP        int
	CreatedAt time.Time
}

// GradeRequestRecord marks a grade request as applied.
type GradeRequestRecord struct {
	RequestID string
	UserID    string
	CardID    string
	CreatedAt time.Time
}
