package domain

import "time"

// ReviewState is the scheduling state of one card for one user.
type ReviewState struct {
	UserID   string
	CardID   string
	FolderID string

	// Repetitions counts consecutive successful reviews since the last lapse.
	Repetitions int
	EaseFactor  float64
	// IntervalDays is 0 only for a card that has never been graded.
	IntervalDays int

	NextReviewAt   time.Time
	LastReviewedAt *time.Time
	LastGrade      *int
	Suspended      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CardRef identifies a reviewable card and the folder it belongs to.
type CardRef struct {
	ID       string
	FolderID string
}
