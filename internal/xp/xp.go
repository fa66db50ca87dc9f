// Package xp computes experience points for review activity.
//
// Points decay once a user's daily total passes DailyTarget. The decay is
// decided from the total recorded before the event, so the event that crosses
// the target still earns full points.
package xp

import (
	"math"
	"time"
)

const (
	BaseXP      = 5
	EnrollXP    = 8
	DailyTarget = 300

	minDecay = 0.3
)

var gradeMultipliers = [...]float64{0.2, 0.4, 0.6, 1.0, 1.2, 1.4}

// Award is the outcome of one XP calculation.
type Award struct {
	Raw       int
	Effective int
}

// ReviewParams describes a grading event. EaseFactor, IntervalDays and
// NextReviewAt are taken from the state before the grade is applied.
type ReviewParams struct {
	EaseFactor   float64
	IntervalDays int
	Grade        int
	Now          time.Time
	NextReviewAt time.Time
	DailyXP      int
}

// Review returns the points earned for grading a card.
func Review(p ReviewParams) Award {
	difficulty := clamp(3.0-p.EaseFactor, 0.5, 2.0)
	spacing := clamp(math.Log2(float64(p.IntervalDays)+1), 0.5, 3.0)
	grade := gradeMultipliers[clampGrade(p.Grade)]
	late := clamp(1+float64(DaysLate(p.Now, p.NextReviewAt))*0.1, 1.0, 1.5)

	raw := int(math.Round(BaseXP * difficulty * spacing * grade * late))
	return Award{Raw: raw, Effective: decay(raw, p.DailyXP)}
}

// Enroll returns the points earned for enrolling a card.
func Enroll(dailyXP int) Award {
	return Award{Raw: EnrollXP, Effective: decay(EnrollXP, dailyXP)}
}

// DaysLate counts whole days between due and now, never negative.
func DaysLate(now, due time.Time) int {
	d := now.Sub(due)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// Decay returns the soft-cap multiplier for a given pre-event daily total.
func Decay(dailyXP int) float64 {
	if dailyXP <= DailyTarget {
		return 1.0
	}
	over := float64(dailyXP-DailyTarget) / DailyTarget
	return clamp(1-over, minDecay, 1.0)
}

func decay(raw, dailyXP int) int {
	eff := raw
	if dailyXP > DailyTarget {
		eff = int(math.Round(float64(raw) * Decay(dailyXP)))
	}
	if eff < 1 {
		eff = 1
	}
	return eff
}

func clampGrade(g int) int {
	if g < 0 {
		return 0
	}
	if g >= len(gradeMultipliers) {
		return len(gradeMultipliers) - 1
	}
	return g
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
