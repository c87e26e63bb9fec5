package layout

import (
	"math"

	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/scaler"
	"github.com/shiguredo/hisui/internal/source"
)

// IdleEndTime is the sentinel end_time of an idle cell (spec.md §3:
// "end_time: u64 (u64::MAX when idle)").
const IdleEndTime = math.MaxUint64

// Status is one of a Cell's three states. spec.md §9 recommends modeling
// this as a tagged variant rather than a mutable status field; Cell
// follows that advice — the exported state is read through Status/
// EndTime/Current, and every transition goes through a method that
// enforces the Idle/Used/Excluded invariants in one place rather than
// letting callers poke at the fields directly.
type Status int

const (
	Idle Status = iota
	Used
	Excluded
)

// Point is a pixel offset within the output frame.
type Point struct{ X, Y int }

// Cell is one rectangular slot within a Region.
type Cell struct {
	Index      int
	Pos        Point
	Res        media.Resolution
	Scaler     *scaler.PreserveAspect // instantiated once, lifetime = cell (spec.md §3)
	status     Status
	endTime    uint64
	current    *source.Source
	lastUse    uint64 // last time this cell transitioned Used->Idle; 0 if never used
	everUsed   bool
}

// NewCell builds a Cell directly, for callers (tests, and anything
// assembling a Region outside the normal Compile path) that need one
// without going through a full layout.Spec.
func NewCell(index int, pos Point, res media.Resolution, excluded bool, filterMode scaler.Filter) *Cell {
	return newCell(index, pos, res, excluded, filterMode)
}

func newCell(index int, pos Point, res media.Resolution, excluded bool, filterMode scaler.Filter) *Cell {
	c := &Cell{
		Index:   index,
		Pos:     pos,
		Res:     res,
		Scaler:  scaler.NewPreserveAspect(res, filterMode),
		endTime: IdleEndTime,
	}
	if excluded {
		c.status = Excluded
	} else {
		c.status = Idle
	}
	return c
}

// Status returns the cell's current state.
func (c *Cell) Status() Status { return c.status }

// EndTime returns the timestamp at which the current source's assignment
// ends, or IdleEndTime if the cell is not Used.
func (c *Cell) EndTime() uint64 { return c.endTime }

// Current returns the source currently assigned to this cell, or nil.
func (c *Cell) Current() *source.Source { return c.current }

// EverUsed reports whether this cell has ever held a source — used by
// the reuse=none policy, which never reassigns a cell that has already
// shown something (spec.md §4.2: "pick an idle cell never used before").
func (c *Cell) EverUsed() bool { return c.everUsed }

// LastUse returns the timestamp at which the cell was last released
// (0 if it has never been used), used to break ties in the ShowOldest/
// ShowNewest policies (spec.md §4.2).
func (c *Cell) LastUse() uint64 { return c.lastUse }

// SetSource assigns src to this cell, per spec.md §3: "sets status =
// Used and end_time = src.interval.hi".
func (c *Cell) SetSource(src *source.Source) {
	c.status = Used
	c.endTime = src.Interval.Hi
	c.current = src
	c.everUsed = true
}

// SetSourceUntil assigns src to this cell for the reuse-overflow case
// (Region.assignOverflow), where the cell is already Used and src is
// queued to take over once the current occupant's window ends. end is
// the later of the cell's current end_time and src's own stop, so a
// third overflowing source still finds this cell via the same
// earliest-ending search once src's own turn is accounted for.
func (c *Cell) SetSourceUntil(src *source.Source, end uint64) {
	c.status = Used
	c.endTime = end
	c.current = src
	c.everUsed = true
}

// ReleaseIfExpired transitions Used -> Idle when t >= end_time (spec.md
// §3's reset_source), recording the release time for reuse tie-breaks.
func (c *Cell) ReleaseIfExpired(t uint64) {
	if c.status == Used && t >= c.endTime {
		c.status = Idle
		c.endTime = IdleEndTime
		c.current = nil
		c.lastUse = t
	}
}
