package layout

import (
	"testing"

	"github.com/shiguredo/hisui/internal/interval"
	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/scaler"
	"github.com/shiguredo/hisui/internal/source"
)

func ns(sec float64) uint64 { return uint64(sec * 1e9) }

func mkSource(id uint64, conn string, startSec, stopSec float64) *source.Source {
	return &source.Source{
		ID: id, Kind: source.Video, ConnectionID: conn,
		Interval: interval.New(ns(startSec), ns(stopSec)),
	}
}

func TestCalcGridDimensionSquare(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n        int
		wantCols int
		wantRows int
	}{
		{1, 1, 1}, {2, 2, 2}, {4, 2, 2}, {5, 3, 3}, {9, 3, 3}, {10, 4, 4},
	}
	for _, c := range cases {
		g, err := calcGridDimension(0, 0, c.n)
		if err != nil {
			t.Fatalf("n=%d: %v", c.n, err)
		}
		if g.Cols*g.Rows < c.n {
			t.Errorf("n=%d: grid %dx%d does not cover n", c.n, g.Cols, g.Rows)
		}
		if g.Cols != c.wantCols || g.Rows != c.wantRows {
			t.Errorf("n=%d: got %dx%d, want %dx%d", c.n, g.Cols, g.Rows, c.wantCols, c.wantRows)
		}
	}
}

func TestCalcGridDimensionBothConstrainedOverflow(t *testing.T) {
	t.Parallel()

	if _, err := calcGridDimension(2, 2, 5); err == nil {
		t.Fatal("expected error when 2x2 cannot hold 5 sources")
	}
}

func TestRegionReuseShowOldestNoOverlap(t *testing.T) {
	t.Parallel()

	// Scenario 3: archives (A,0,10), (B,5,15), single cell, ShowOldest.
	a := mkSource(1, "a", 0, 10)
	b := mkSource(2, "b", 5, 15)

	r := &Region{Reuse: ReuseShowOldest, Sources: []*source.Source{a, b}}
	r.Cells = []*Cell{newCell(0, Point{}, mediaRes(), false, scaler.FilterBox)}
	r.assign()

	if len(r.sequence) != 2 {
		t.Fatalf("sequence = %+v, want 2 entries", r.sequence)
	}
	if r.sequence[0].Source != a || r.sequence[0].Interval != interval.New(ns(0), ns(10)) {
		t.Errorf("first entry = %+v, want A [0,10)", r.sequence[0])
	}
	if r.sequence[1].Source != b || r.sequence[1].Interval != interval.New(ns(10), ns(15)) {
		t.Errorf("second entry = %+v, want B [10,15)", r.sequence[1])
	}

	// No overlap: B's span starts exactly when A's ends.
	if r.sequence[0].Interval.Hi != r.sequence[1].Interval.Lo {
		t.Errorf("cell reuse overlap: A ends %d, B starts %d", r.sequence[0].Interval.Hi, r.sequence[1].Interval.Lo)
	}
}

func TestRegionCellsExcluded(t *testing.T) {
	t.Parallel()

	// Scenario 6: cells_excluded=[0,4], 3 sources entering at t=0 on a 3x3
	// grid with reuse=none; expect placement into cells 1,2,3 in order.
	sources := []*source.Source{
		mkSource(1, "a", 0, 10), mkSource(2, "b", 0, 10), mkSource(3, "c", 0, 10),
	}
	r := &Region{Reuse: ReuseNone, Sources: sources}
	for i := 0; i < 9; i++ {
		r.Cells = append(r.Cells, newCell(i, Point{}, mediaRes(), i == 0 || i == 4, scaler.FilterBox))
	}
	r.assign()

	if len(r.Dropped) != 0 {
		t.Fatalf("Dropped = %+v, want none", r.Dropped)
	}
	gotCells := map[int]bool{}
	for _, e := range r.sequence {
		gotCells[e.Cell.Index] = true
	}
	for _, excludedIdx := range []int{0, 4} {
		if gotCells[excludedIdx] {
			t.Errorf("excluded cell %d received a source", excludedIdx)
		}
	}
	for _, wantIdx := range []int{1, 2, 3} {
		if !gotCells[wantIdx] {
			t.Errorf("cell %d should have received a source", wantIdx)
		}
	}
}

func TestRegionReuseNoneDropsExcessSources(t *testing.T) {
	t.Parallel()

	a := mkSource(1, "a", 0, 5)
	b := mkSource(2, "b", 1, 6) // enters while A's cell is still occupied and never freed under reuse=none semantics once used

	r := &Region{Reuse: ReuseNone, Sources: []*source.Source{a, b}}
	r.Cells = []*Cell{newCell(0, Point{}, mediaRes(), false, scaler.FilterBox)}
	r.assign()

	if len(r.sequence) != 1 || r.sequence[0].Source != a {
		t.Fatalf("sequence = %+v, want only A", r.sequence)
	}
	if len(r.Dropped) != 1 || r.Dropped[0] != b {
		t.Fatalf("Dropped = %+v, want [B]", r.Dropped)
	}
}

func mediaRes() media.Resolution { return media.Resolution{W: 640, H: 480} }

// TestCompileTrimsLeadingDeadAir exercises the planner end-to-end: a
// 2-second leading gap before any video or audio source is live must be
// trimmed from both the region's cell end times and the catalog's
// source intervals, and the trim must shift MaxEndTime by exactly its
// own duration (spec.md §8's trim-consistency property).
func TestCompileTrimsLeadingDeadAir(t *testing.T) {
	t.Parallel()

	video := mkSource(1, "a", 2, 10)
	audio := &source.Source{ID: 2, Kind: source.Audio, ConnectionID: "a", Interval: interval.New(ns(2), ns(10))}
	cat := &source.Catalog{Sources: []*source.Source{video, audio}}

	spec := DefaultSingleCell("640x480", true)
	spec.AudioSources = []string{"a"}
	for name, r := range spec.VideoLayout {
		r.VideoSources = []string{"a"}
		spec.VideoLayout[name] = r
	}
	if err := spec.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	compiled, err := Compile(spec, cat, scaler.FilterBox)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if len(compiled.Trim) != 1 || compiled.Trim[0] != interval.New(0, ns(2)) {
		t.Fatalf("Trim = %+v, want [0,2s)", compiled.Trim)
	}
	if compiled.MaxEndTime != ns(8) {
		t.Fatalf("MaxEndTime = %d, want %d (10s - 2s trim)", compiled.MaxEndTime, ns(8))
	}
	if video.Interval != interval.New(0, ns(8)) {
		t.Fatalf("video.Interval = %+v, want [0,8s) after trim", video.Interval)
	}
	if audio.Interval != interval.New(0, ns(8)) {
		t.Fatalf("audio.Interval = %+v, want [0,8s) after trim", audio.Interval)
	}

	region := compiled.Regions[0]
	if len(region.sequence) != 1 || region.sequence[0].Interval != interval.New(0, ns(8)) {
		t.Fatalf("region sequence = %+v, want single entry [0,8s)", region.sequence)
	}
}

// TestCompileTrimDisabledKeepsOnlyLeadingGap checks that spec.Trim=false
// still removes the initial dead-air prefix but leaves any internal gap
// untouched (spec.md §4.1: "trim=false" only disables non-leading trims).
func TestCompileTrimDisabledKeepsOnlyLeadingGap(t *testing.T) {
	t.Parallel()

	// Video is live [2,5) and [7,10); audio covers the whole span so the
	// only trim candidate from the per-subsystem intersection is the
	// leading [0,2) gap shared by both video and audio.
	a := mkSource(1, "a", 2, 5)
	b := mkSource(2, "a", 7, 10)
	audio := &source.Source{ID: 3, Kind: source.Audio, ConnectionID: "a", Interval: interval.New(ns(2), ns(10))}
	cat := &source.Catalog{Sources: []*source.Source{a, b, audio}}

	spec := DefaultSingleCell("640x480", false)
	spec.AudioSources = []string{"a"}
	for name, r := range spec.VideoLayout {
		r.Reuse = "none"
		r.VideoSources = []string{"a"}
		spec.VideoLayout[name] = r
	}
	if err := spec.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	compiled, err := Compile(spec, cat, scaler.FilterBox)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if len(compiled.Trim) != 1 || compiled.Trim[0] != interval.New(0, ns(2)) {
		t.Fatalf("Trim = %+v, want only the leading [0,2s) gap", compiled.Trim)
	}
}
