// Package interval implements the half-open-interval arithmetic the
// layout planner uses to track source liveness and compute trim
// intervals (spec.md §4.1). All timestamps are 64-bit unsigned
// nanoseconds from session start.
package interval

import (
	"fmt"
	"sort"
)

// Interval is a half-open span [Lo, Hi) of nanoseconds. The zero value is
// not a valid Interval; construct with New.
type Interval struct {
	Lo, Hi uint64
}

// New builds an Interval, panicking if the half-open invariant lo < hi
// does not hold — constructing an inverted interval is a caller bug
// (errs.ErrLogic), not a runtime condition.
func New(lo, hi uint64) Interval {
	if lo >= hi {
		panic(fmt.Sprintf("interval: invalid interval [%d, %d)", lo, hi))
	}
	return Interval{Lo: lo, Hi: hi}
}

// Contains reports whether t falls within the half-open span.
func (iv Interval) Contains(t uint64) bool {
	return iv.Lo <= t && t < iv.Hi
}

// Duration returns Hi - Lo.
func (iv Interval) Duration() uint64 {
	return iv.Hi - iv.Lo
}

// Clamp intersects iv with [lo, hi), returning ok=false when the
// intersection is empty.
func (iv Interval) Clamp(lo, hi uint64) (Interval, bool) {
	l := iv.Lo
	if lo > l {
		l = lo
	}
	h := iv.Hi
	if hi < h {
		h = hi
	}
	if l >= h {
		return Interval{}, false
	}
	return Interval{Lo: l, Hi: h}, true
}

// Shift moves iv left by d nanoseconds. d must not exceed iv.Lo — shifting
// an interval past zero is a caller bug.
func (iv Interval) Shift(d uint64) Interval {
	if d > iv.Lo {
		panic(fmt.Sprintf("interval: shift %d exceeds lo %d", d, iv.Lo))
	}
	return Interval{Lo: iv.Lo - d, Hi: iv.Hi - d}
}

// Overlaps reports whether iv and other share any point.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Lo < other.Hi && other.Lo < iv.Hi
}

// sortAndMerge sorts spans by Lo and merges any that touch or overlap
// (a.Hi == b.Lo counts as touching, per spec.md's "adjacent trims meet
// they are merged during construction").
func sortAndMerge(spans []Interval) []Interval {
	if len(spans) == 0 {
		return nil
	}
	sorted := make([]Interval, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lo < sorted[j].Lo })

	out := make([]Interval, 0, len(sorted))
	cur := sorted[0]
	for _, s := range sorted[1:] {
		if s.Lo <= cur.Hi {
			if s.Hi > cur.Hi {
				cur.Hi = s.Hi
			}
			continue
		}
		out = append(out, cur)
		cur = s
	}
	out = append(out, cur)
	return out
}

// Union merges a set of spans into their minimal sorted, disjoint cover.
func Union(spans []Interval) []Interval {
	return sortAndMerge(spans)
}

// OverlapResult is the output of OverlapIntervals.
type OverlapResult struct {
	// Trim is the sorted, disjoint complement of the union of the input
	// intervals within [0, MaxEndTime) — the spans during which no
	// source is live.
	Trim []Interval
	// MaxEndTime is the largest Hi across all input intervals.
	MaxEndTime uint64
}

// OverlapIntervals computes dead-air trim candidates for one subsystem's
// set of source intervals (spec.md §4.1). It is the set-complement of the
// union of `live`, restricted to [0, max_hi). The reuse parameter only
// affects whether the caller should even ask: with reuse == "none" a gap
// is trimmable only when literally nothing is live (which is exactly what
// the complement already computes), so OverlapIntervals does not itself
// branch on reuse — layout.Region decides, per-region, whether to call
// this at all for cells outside the reusable pool, and intersects the
// results via OverlapTrimIntervals.
func OverlapIntervals(live []Interval) OverlapResult {
	if len(live) == 0 {
		return OverlapResult{}
	}
	merged := sortAndMerge(live)
	var maxEnd uint64
	for _, iv := range merged {
		if iv.Hi > maxEnd {
			maxEnd = iv.Hi
		}
	}

	var trim []Interval
	cursor := uint64(0)
	for _, iv := range merged {
		if iv.Lo > cursor {
			trim = append(trim, Interval{Lo: cursor, Hi: iv.Lo})
		}
		if iv.Hi > cursor {
			cursor = iv.Hi
		}
	}
	// No trailing trim: the output ends at maxEnd by construction, there
	// is nothing "after" it to collapse.
	return OverlapResult{Trim: trim, MaxEndTime: maxEnd}
}

// OverlapTrimIntervals intersects several independently computed trim
// lists into one sorted, disjoint list: a timestamp is trimmable globally
// only when every subsystem (audio plus each region) agreed it was
// trimmable (spec.md §4.1).
func OverlapTrimIntervals(lists [][]Interval) []Interval {
	if len(lists) == 0 {
		return nil
	}
	result := sortAndMerge(lists[0])
	for _, list := range lists[1:] {
		result = intersect(result, sortAndMerge(list))
		if len(result) == 0 {
			return nil
		}
	}
	return result
}

// intersect computes the pairwise intersection of two sorted, disjoint
// interval lists via a standard two-pointer sweep.
func intersect(a, b []Interval) []Interval {
	var out []Interval
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		lo := a[i].Lo
		if b[j].Lo > lo {
			lo = b[j].Lo
		}
		hi := a[i].Hi
		if b[j].Hi < hi {
			hi = b[j].Hi
		}
		if lo < hi {
			out = append(out, Interval{Lo: lo, Hi: hi})
		}
		if a[i].Hi < b[j].Hi {
			i++
		} else {
			j++
		}
	}
	return out
}

// SubtractFromPoint maps a single pre-trim timestamp t to its post-trim
// position: the total length of every trim span lying entirely before or
// overlapping t is subtracted out. Trims are half-open, so a point
// t == trim.Hi is not considered trimmed (spec.md §4.1 tie-break rule).
func SubtractFromPoint(t uint64, trims []Interval) uint64 {
	var removed uint64
	for _, tr := range trims {
		if tr.Hi <= t {
			removed += tr.Duration()
			continue
		}
		if tr.Lo < t {
			// t falls inside this trim span; per the half-open rule a
			// point at tr.Hi is untrimmed, so clamp t down to tr.Lo's
			// post-trim position (i.e. collapse to the start of the gap).
			removed += t - tr.Lo
		}
		break
	}
	return t - removed
}

// SubtractInterval applies SubtractFromPoint to both endpoints of iv,
// clipping against any trim spans that fall inside it (spec.md §4.1
// "substract_trim_intervals", interval form).
func SubtractInterval(iv Interval, trims []Interval) Interval {
	lo := SubtractFromPoint(iv.Lo, trims)
	hi := SubtractFromPoint(iv.Hi, trims)
	if hi <= lo {
		hi = lo
	}
	return Interval{Lo: lo, Hi: hi}
}

// LeadingTrim returns the prefix trim [0, x) if the first trim span
// starts at zero, else the zero value and ok=false. Used when
// layout.Spec.Trim is false: the planner still applies the initial
// dead-air prefix (spec.md §4.1) but discards every later trim entry.
func LeadingTrim(trims []Interval) (Interval, bool) {
	if len(trims) == 0 || trims[0].Lo != 0 {
		return Interval{}, false
	}
	return trims[0], true
}
