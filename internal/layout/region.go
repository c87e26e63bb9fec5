package layout

import (
	"sort"

	"github.com/shiguredo/hisui/internal/interval"
	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/source"
)

// SequenceEntry is one scheduled (cell, source) assignment, clipped to
// the interval during which that cell actually shows that source
// (spec.md §3's Sequence).
type SequenceEntry struct {
	Cell     *Cell
	Source   *source.Source
	Interval interval.Interval
}

// Region is a named group of cells sharing a reuse policy and a source
// pool (spec.md §3).
type Region struct {
	Name       string
	Pos        Point
	ZIndex     int64
	Res        media.Resolution
	Grid       Grid
	Reuse      Reuse
	Sources    []*source.Source // video_sources resolved against the catalog, catalog order
	Cells      []*Cell

	// Dropped holds sources that never found a cell (spec.md §4.2: "A
	// source that finds no cell is silently dropped from the output").
	Dropped []*source.Source

	sequence []SequenceEntry
}

// Sequence returns this region's assignment schedule sorted by
// Interval.Lo (spec.md §3: "Sequence... sorted by encoding_interval.lo").
func (r *Region) Sequence() []SequenceEntry { return r.sequence }

type regionEventKind int

const (
	eventLeave regionEventKind = iota // ordered before Enter at equal t
	eventEnter
)

type regionEvent struct {
	t      uint64
	kind   regionEventKind
	source *source.Source
}

// Assign runs spec.md §4.2's per-region assignment algorithm, populating
// r.Cells' state, r.Sequence() and r.Dropped. Compile calls this for
// every region it builds; exported for callers assembling a Region by
// hand (tests, or a composer harness outside the normal Compile path).
func (r *Region) Assign() { r.assign() }

func (r *Region) assign() {
	events := make([]regionEvent, 0, len(r.Sources)*2)
	for _, s := range r.Sources {
		events = append(events, regionEvent{t: s.Interval.Lo, kind: eventEnter, source: s})
		events = append(events, regionEvent{t: s.Interval.Hi, kind: eventLeave, source: s})
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].t != events[j].t {
			return events[i].t < events[j].t
		}
		return events[i].kind < events[j].kind // Leave (0) before Enter (1)
	})

	for _, ev := range events {
		for _, c := range r.Cells {
			c.ReleaseIfExpired(ev.t)
		}
		if ev.kind == eventLeave {
			continue
		}
		if cell := r.pickCell(); cell != nil {
			span := interval.Interval{Lo: ev.t, Hi: ev.source.Interval.Hi}
			r.sequence = append(r.sequence, SequenceEntry{Cell: cell, Source: ev.source, Interval: span})
			cell.SetSource(ev.source)
			continue
		}
		if r.Reuse == ReuseNone {
			// ReuseNone never reassigns a cell once used (spec.md §4.2:
			// "pick an idle cell never used before"); with no fresh cell
			// left the source is silently dropped.
			r.Dropped = append(r.Dropped, ev.source)
			continue
		}
		r.assignOverflow(ev.source)
	}

	sort.SliceStable(r.sequence, func(i, j int) bool { return r.sequence[i].Interval.Lo < r.sequence[j].Interval.Lo })
}

// assignOverflow handles a ShowOldest/ShowNewest Enter event that found
// no Idle cell: rather than dropping src (spec.md §4.2's literal
// pseudocode), it reuses the Used cell whose current assignment ends
// soonest, deferring src's visible start to that cell's end time — the
// later source becomes visible once the earlier one ends, matching
// scenario 3 and original_source/src/layout.rs's assign_sources
// overflow branch ("終了時刻が一番早いセルを探す... Cell::Used(...)",
// extending the chosen cell instead of discarding the new source). If
// src's own interval ends at or before the cell would free up, it is
// never visible and is dropped, same as the Rust original's effectively
// unreachable assignment.
func (r *Region) assignOverflow(src *source.Source) {
	cell := r.pickEarliestEndingUsedCell()
	if cell == nil {
		r.Dropped = append(r.Dropped, src)
		return
	}
	lo := cell.EndTime()
	hi := src.Interval.Hi
	if lo >= hi {
		r.Dropped = append(r.Dropped, src)
		return
	}
	r.sequence = append(r.sequence, SequenceEntry{Cell: cell, Source: src, Interval: interval.Interval{Lo: lo, Hi: hi}})
	newEnd := cell.EndTime()
	if hi > newEnd {
		newEnd = hi
	}
	cell.SetSourceUntil(src, newEnd)
}

// pickEarliestEndingUsedCell returns this region's Used cell whose
// current assignment ends soonest (ties broken by smallest index), the
// reuse-overflow target per original_source/src/layout.rs's
// `min_by_key(|(i, t)| (*t, *i))`.
func (r *Region) pickEarliestEndingUsedCell() *Cell {
	var best *Cell
	for _, c := range r.Cells {
		if c.Status() != Used {
			continue
		}
		if best == nil || c.EndTime() < best.EndTime() || (c.EndTime() == best.EndTime() && c.Index < best.Index) {
			best = c
		}
	}
	return best
}

// pickCell selects the next cell for an Enter event per r.Reuse,
// spec.md §4.2's tie-break rules. Excluded cells are never candidates.
func (r *Region) pickCell() *Cell {
	switch r.Reuse {
	case ReuseShowOldest:
		return pickBy(r.Cells, func(a, b *Cell) bool {
			if a.LastUse() != b.LastUse() {
				return a.LastUse() < b.LastUse()
			}
			return a.Index < b.Index
		})
	case ReuseShowNewest:
		return pickBy(r.Cells, func(a, b *Cell) bool {
			if a.LastUse() != b.LastUse() {
				return a.LastUse() > b.LastUse()
			}
			return a.Index > b.Index
		})
	default: // ReuseNone
		var best *Cell
		for _, c := range r.Cells {
			if c.Status() != Idle || c.EverUsed() {
				continue
			}
			if best == nil || c.Index < best.Index {
				best = c
			}
		}
		return best
	}
}

// pickBy returns the idle cell that sorts first under less, or nil if
// none is idle.
func pickBy(cells []*Cell, less func(a, b *Cell) bool) *Cell {
	var best *Cell
	for _, c := range cells {
		if c.Status() != Idle {
			continue
		}
		if best == nil || less(c, best) {
			best = c
		}
	}
	return best
}

// LiveIntervalsForTrim returns the interval set this region contributes
// to the global trim computation (spec.md §4.1's reuse-dependent rule;
// resolution documented in DESIGN.md). With ReuseNone every candidate
// source counts as "live" even if it was ultimately dropped, since a
// dropped source's presence still means the session was not dead air.
// With ShowOldest/ShowNewest only the time spans actually assigned to a
// cell count, since the point of reuse is that *something* is always
// shown whenever any candidate is live.
func (r *Region) LiveIntervalsForTrim() []interval.Interval {
	if r.Reuse == ReuseNone {
		out := make([]interval.Interval, 0, len(r.Sources))
		for _, s := range r.Sources {
			out = append(out, s.Interval)
		}
		return out
	}
	out := make([]interval.Interval, 0, len(r.sequence))
	for _, e := range r.sequence {
		out = append(out, e.Interval)
	}
	return out
}
