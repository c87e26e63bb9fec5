package interval

import "testing"

func TestShiftRoundTrip(t *testing.T) {
	t.Parallel()

	iv := New(100, 200)
	for _, d := range []uint64{0, 1, 50, 100} {
		shifted := iv.Shift(d)
		restored := Interval{Lo: shifted.Lo + d, Hi: shifted.Hi + d}
		if restored != iv {
			t.Errorf("shift(%d) round trip: got %+v, want %+v", d, restored, iv)
		}
	}
}

func TestOverlapIntervalsGap(t *testing.T) {
	t.Parallel()

	// archives (A,0,5) and (B,10,15) in seconds*1e9.
	a := New(0, 5e9)
	b := New(10e9, 15e9)
	res := OverlapIntervals([]Interval{a, b})

	if res.MaxEndTime != 15e9 {
		t.Fatalf("MaxEndTime = %d, want %d", res.MaxEndTime, uint64(15e9))
	}
	if len(res.Trim) != 1 || res.Trim[0] != New(5e9, 10e9) {
		t.Fatalf("Trim = %+v, want [(5e9,10e9)]", res.Trim)
	}
}

func TestOverlapTrimIntervalsIntersection(t *testing.T) {
	t.Parallel()

	listA := []Interval{New(0, 10), New(20, 30)}
	listB := []Interval{New(5, 25)}

	got := OverlapTrimIntervals([][]Interval{listA, listB})
	want := []Interval{New(5, 10), New(20, 25)}

	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	}
}

func TestSubtractFromPointIdempotent(t *testing.T) {
	t.Parallel()

	trims := []Interval{New(5e9, 10e9)}
	once := SubtractFromPoint(12e9, trims)
	twice := SubtractFromPoint(once, nil) // applying an empty trim list a second time is a no-op
	if once != twice {
		t.Fatalf("idempotence: once=%d twice=%d", once, twice)
	}
	if once != 7e9 {
		t.Fatalf("SubtractFromPoint(12e9) = %d, want 7e9", once)
	}
}

func TestSubtractFromPointBoundaryNotTrimmed(t *testing.T) {
	t.Parallel()

	trims := []Interval{New(5, 10)}
	// t == trim.Hi is not trimmed.
	if got := SubtractFromPoint(10, trims); got != 5 {
		t.Errorf("SubtractFromPoint(10) = %d, want 5", got)
	}
}

func TestUnionMergesAdjacent(t *testing.T) {
	t.Parallel()

	got := Union([]Interval{New(0, 5), New(5, 10)})
	if len(got) != 1 || got[0] != New(0, 10) {
		t.Fatalf("Union adjacent = %+v, want [(0,10)]", got)
	}
}

func TestLeadingTrim(t *testing.T) {
	t.Parallel()

	trims := []Interval{New(0, 3), New(10, 12)}
	lead, ok := LeadingTrim(trims)
	if !ok || lead != New(0, 3) {
		t.Fatalf("LeadingTrim = %+v, %v", lead, ok)
	}

	_, ok = LeadingTrim([]Interval{New(1, 3)})
	if ok {
		t.Fatalf("LeadingTrim should not find a prefix starting after 0")
	}
}
