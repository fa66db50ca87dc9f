// Package sm2 implements the SM-2 derived review scheduler.
package sm2

import (
	"math"
	"time"

	"github.com/conorfennell/knolrep/internal/domain"
)

const (
	MinGrade = 0
	MaxGrade = 5

	// PassingGrade is the lowest grade that does not count as a lapse.
	PassingGrade = 3
)

// ClampGrade forces g into [MinGrade, MaxGrade].
func ClampGrade(g int) int {
	if g < MinGrade {
		return MinGrade
	}
	if g > MaxGrade {
		return MaxGrade
	}
	return g
}

// Next computes the state that results from grading prev with grade at now.
// Identity fields and the suspended flag pass through unchanged.
func Next(prev domain.ReviewState, grade int, p Policy, now time.Time) domain.ReviewState {
	g := ClampGrade(grade)
	miss := float64(MaxGrade - g)

	delta := 0.1 - miss*(0.08+miss*0.02)
	ease := math.Max(p.MinEaseFactor, prev.EaseFactor+delta)

	reps := 0
	if g >= PassingGrade {
		reps = prev.Repetitions + 1
	}

	var interval int
	switch {
	case g < PassingGrade:
		interval = p.FirstIntervalDays
	case reps <= 1:
		interval = p.FirstIntervalDays
	case reps == 2:
		interval = p.SecondIntervalDays
	default:
		base := prev.IntervalDays
		if base == 0 {
			base = p.SecondIntervalDays
		}
		interval = int(math.Round(float64(base) * ease))
	}
	interval = clampInt(interval, 1, p.MaxIntervalDays)

	reviewed := now
	next := prev
	next.Repetitions = reps
	next.EaseFactor = ease
	next.IntervalDays = interval
	next.NextReviewAt = now.AddDate(0, 0, interval)
	next.LastReviewedAt = &reviewed
	next.LastGrade = &g
	return next
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
