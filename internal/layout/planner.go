package layout

import (
	"fmt"

	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/interval"
	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/scaler"
	"github.com/shiguredo/hisui/internal/source"
)

// Compiled is the planner's output (spec.md §4.2's four-part contract):
// a mutated per-region grid/cell state, the global trim list and final
// duration, each region's Sequence, and the trimmed source catalog.
type Compiled struct {
	Regions      []*Region
	Trim         []interval.Interval
	MaxEndTime   uint64
	AudioLive    []interval.Interval // pre-trim audio liveness, for diagnostics/tests
	AudioSources []*source.Source    // selected by spec.AudioSources, catalog order
	Catalog      *source.Catalog     // same Catalog, mutated in place by ApplyTrim
}

// Compile runs the full layout compilation described in spec.md §4.2 over
// spec and cat. spec.ResolveSources must already have been called so
// that every region's VideoSources (and spec.AudioSources) hold resolved
// connection ids rather than file paths.
func Compile(spec *Spec, cat *source.Catalog, filterMode scaler.Filter) (*Compiled, error) {
	regions := make([]*Region, 0, len(spec.Regions()))
	for _, rs := range spec.Regions() {
		r, err := buildRegion(rs, spec.Resolution(), cat, filterMode)
		if err != nil {
			return nil, err
		}
		r.assign()
		regions = append(regions, r)
	}

	audioSources := selectByConnectionIDs(cat.ByKind(source.Audio), spec.AudioSources)
	audioLive := make([]interval.Interval, 0, len(audioSources))
	for _, s := range audioSources {
		audioLive = append(audioLive, s.Interval)
	}

	audioOverlap := interval.OverlapIntervals(audioLive)
	trimLists := [][]interval.Interval{audioOverlap.Trim}
	maxEnd := audioOverlap.MaxEndTime
	for _, r := range regions {
		live := r.LiveIntervalsForTrim()
		res := interval.OverlapIntervals(live)
		trimLists = append(trimLists, res.Trim)
		if res.MaxEndTime > maxEnd {
			maxEnd = res.MaxEndTime
		}
	}

	trim := interval.OverlapTrimIntervals(trimLists)
	if !spec.TrimEnabled() {
		if lead, ok := interval.LeadingTrim(trim); ok {
			trim = []interval.Interval{lead}
		} else {
			trim = nil
		}
	}

	maxEnd = interval.SubtractFromPoint(maxEnd, trim)

	cat.ApplyTrim(trim)
	for _, r := range regions {
		for i, e := range r.sequence {
			r.sequence[i].Interval = interval.SubtractInterval(e.Interval, trim)
		}
		for _, c := range r.Cells {
			if c.endTime != IdleEndTime {
				c.endTime = interval.SubtractFromPoint(c.endTime, trim)
			}
		}
	}

	return &Compiled{
		Regions:      regions,
		Trim:         trim,
		MaxEndTime:   maxEnd,
		AudioLive:    audioLive,
		AudioSources: audioSources,
		Catalog:      cat,
	}, nil
}

func buildRegion(rs *RegionSpec, outputRes media.Resolution, cat *source.Catalog, filterMode scaler.Filter) (*Region, error) {
	reuse, err := parseReuse(rs.Reuse)
	if err != nil {
		return nil, err
	}

	w, h := rs.Width, rs.Height
	if w == 0 {
		w = int(outputRes.W)
	}
	if h == 0 {
		h = int(outputRes.H)
	}
	res, err := media.RoundDown(uint32(w), uint32(h))
	if err != nil {
		return nil, fmt.Errorf("layout: region %q: %w: %v", rs.Name, errs.ErrConfig, err)
	}

	sources := selectByConnectionIDs(cat.ByKind(source.Video), rs.VideoSources)

	n := len(sources) + len(rs.CellsExcluded)
	grid, err := calcGridDimension(rs.MaxColumns, rs.MaxRows, n)
	if err != nil {
		return nil, fmt.Errorf("layout: region %q: %w", rs.Name, err)
	}

	excluded := make(map[int]bool, len(rs.CellsExcluded))
	for _, idx := range rs.CellsExcluded {
		excluded[idx] = true
	}

	cellW, cellH := grid.CellSize(int(res.W), int(res.H))
	cells := make([]*Cell, 0, grid.Cols*grid.Rows)
	idx := 0
	y := 0
	for row := 0; row < grid.Rows; row++ {
		x := 0
		for col := 0; col < grid.Cols; col++ {
			cellRes, err := media.RoundDown(uint32(cellW[col]), uint32(cellH[row]))
			if err != nil {
				// A cell narrower than the 16px floor can happen with
				// large grids on small output resolutions; fall back to
				// the floor itself rather than failing the whole job.
				cellRes = media.Resolution{W: 16, H: 16}
			}
			cells = append(cells, newCell(idx, Point{X: x, Y: y}, cellRes, excluded[idx], filterMode))
			x += cellW[col]
			idx++
		}
		y += cellH[row]
	}

	return &Region{
		Name: rs.Name, Pos: Point{X: rs.XPos, Y: rs.YPos}, ZIndex: rs.ZPos,
		Res: res, Grid: grid, Reuse: reuse, Sources: sources, Cells: cells,
	}, nil
}

// selectByConnectionIDs filters sources to those whose ConnectionID
// appears in ids, preserving catalog order (spec.md §4.2's assignment
// algorithm processes Enter/Leave events in timestamp order regardless
// of catalog order, but a stable starting order keeps tie-breaks
// deterministic).
func selectByConnectionIDs(sources []*source.Source, ids []string) []*source.Source {
	if ids == nil {
		return nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*source.Source
	for _, s := range sources {
		if want[s.ConnectionID] {
			out = append(out, s)
		}
	}
	return out
}
