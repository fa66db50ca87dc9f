package sm2

import (
	"math"
	"testing"
	"time"

	"github.com/conorfennell/knolrep/internal/domain"
)

var t0 = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func freshState(p Policy) domain.ReviewState {
	return domain.ReviewState{
		UserID:       "u1",
		CardID:       "c1",
		FolderID:     "f1",
		EaseFactor:   p.DefaultEaseFactor,
		NextReviewAt: t0,
	}
}

func TestClampGrade(t *testing.T) {
	testCases := []struct {
		in, want int
	}{
		{-3, 0}, {0, 0}, {3, 3}, {5, 5}, {9, 5},
	}
	for _, tc := range testCases {
		if got := ClampGrade(tc.in); got != tc.want {
			t.Errorf("ClampGrade(%d): expected %d, but got %d", tc.in, tc.want, got)
		}
	}
}

func TestNextEaseDelta(t *testing.T) {
	p := DefaultPolicy()
	testCases := []struct {
		grade int
		delta float64
	}{
		{5, 0.1},
		{4, 0.0},
		{3, -0.14},
		{2, -0.32},
	}
	for _, tc := range testCases {
		got := Next(freshState(p), tc.grade, p, t0)
		want := p.DefaultEaseFactor + tc.delta
		if math.Abs(got.EaseFactor-want) > 1e-9 {
			t.Errorf("grade %d: expected ease %.4f, but got %.4f", tc.grade, want, got.EaseFactor)
		}
	}
}

func TestNextLapseResetsRepetitions(t *testing.T) {
	p := DefaultPolicy()
	for _, reps := range []int{0, 1, 2, 7, 40} {
		for g := -1; g < PassingGrade; g++ {
			prev := freshState(p)
			prev.Repetitions = reps
			prev.IntervalDays = 30
			got := Next(prev, g, p, t0)
			if got.Repetitions != 0 {
				t.Errorf("reps=%d grade=%d: expected repetitions reset to 0, but got %d", reps, g, got.Repetitions)
			}
			if got.IntervalDays != p.FirstIntervalDays {
				t.Errorf("reps=%d grade=%d: expected interval %d after lapse, but got %d", reps, g, p.FirstIntervalDays, got.IntervalDays)
			}
		}
	}
}

func TestNextEaseFloor(t *testing.T) {
	p := DefaultPolicy()
	st := freshState(p)
	for i := 0; i < 50; i++ {
		st = Next(st, 0, p, t0)
		if st.EaseFactor < p.MinEaseFactor {
			t.Fatalf("iteration %d: ease %.4f fell below floor %.2f", i, st.EaseFactor, p.MinEaseFactor)
		}
	}
	if st.EaseFactor != p.MinEaseFactor {
		t.Errorf("Expected ease to settle on the floor %.2f, but got %.4f", p.MinEaseFactor, st.EaseFactor)
	}
}

func TestNextIntervalBounds(t *testing.T) {
	p := DefaultPolicy()
	st := freshState(p)
	now := t0
	for i := 0; i < 40; i++ {
		st = Next(st, 5, p, now)
		if st.IntervalDays < 1 || st.IntervalDays > p.MaxIntervalDays {
			t.Fatalf("iteration %d: interval %d outside [1, %d]", i, st.IntervalDays, p.MaxIntervalDays)
		}
		now = st.NextReviewAt
	}
	if st.IntervalDays != p.MaxIntervalDays {
		t.Errorf("Expected interval to saturate at %d, but got %d", p.MaxIntervalDays, st.IntervalDays)
	}
}

func TestNextThreePerfectReviews(t *testing.T) {
	p := DefaultPolicy()
	st := freshState(p)
	wantReps := []int{1, 2, 3}
	wantIntervals := []int{p.FirstIntervalDays, p.SecondIntervalDays, 17} // round(6 * 2.8)

	for i := range wantReps {
		st = Next(st, 5, p, t0)
		if st.Repetitions != wantReps[i] {
			t.Errorf("review %d: expected repetitions %d, but got %d", i+1, wantReps[i], st.Repetitions)
		}
		if st.IntervalDays != wantIntervals[i] {
			t.Errorf("review %d: expected interval %d, but got %d", i+1, wantIntervals[i], st.IntervalDays)
		}
	}
}

func TestNextZeroIntervalUsesSecondInterval(t *testing.T) {
	p := DefaultPolicy()
	prev := freshState(p)
	prev.Repetitions = 4
	prev.IntervalDays = 0

	got := Next(prev, 4, p, t0)
	want := int(math.Round(float64(p.SecondIntervalDays) * p.DefaultEaseFactor))
	if got.IntervalDays != want {
		t.Errorf("Expected interval %d, but got %d", want, got.IntervalDays)
	}
}

func TestNextPassThroughAndBookkeeping(t *testing.T) {
	p := DefaultPolicy()
	prev := freshState(p)
	prev.Suspended = true

	got := Next(prev, 11, p, t0)
	if got.UserID != "u1" || got.CardID != "c1" || got.FolderID != "f1" || !got.Suspended {
		t.Errorf("Expected identity and suspended flag to pass through, but got %+v", got)
	}
	if got.LastGrade == nil || *got.LastGrade != 5 {
		t.Errorf("Expected clamped last grade 5, but got %v", got.LastGrade)
	}
	if got.LastReviewedAt == nil || !got.LastReviewedAt.Equal(t0) {
		t.Errorf("Expected last reviewed at %v, but got %v", t0, got.LastReviewedAt)
	}
	if prev.LastGrade != nil {
		t.Error("Expected the previous state to be left untouched")
	}
}

func TestNextUsesCalendarDays(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	p := DefaultPolicy()
	prev := freshState(p)
	prev.Repetitions = 1

	// DST starts on 2025-03-09 in New York; six calendar days are not 6*24h.
	now := time.Date(2025, 3, 5, 9, 0, 0, 0, loc)
	got := Next(prev, 5, p, now)
	want := time.Date(2025, 3, 11, 9, 0, 0, 0, loc)
	if !got.NextReviewAt.Equal(want) {
		t.Errorf("Expected next review at %v, but got %v", want, got.NextReviewAt)
	}
	if got.NextReviewAt.Sub(now) == 6*24*time.Hour {
		t.Error("Expected calendar-day addition across the DST change, got a fixed 144h offset")
	}
}
