package composer

import (
	"golang.org/x/sync/errgroup"

	"github.com/shiguredo/hisui/internal/layout"
	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/scaler"
)

// GridComposer arranges a fixed number of sources into a square-ish
// grid sized by layout.CalcGridDimension, index i going to cell
// (i % cols, i / cols) (spec.md §4.5). Unlike layout.Region, placement
// is purely positional and recomputed from scratch on every Compose
// call — there is no cell stickiness or reuse policy, which is what
// makes this the simple "no explicit layout" composer.
type GridComposer struct {
	outRes  media.Resolution
	n       int
	grid    layout.Grid
	offsets []offset
	scalers []*scaler.PreserveAspect
}

type offset struct{ x, y int }

// NewGridComposer builds a composer for exactly n simultaneous sources
// at outRes, with at most maxCols columns (0 = unconstrained).
func NewGridComposer(outRes media.Resolution, n, maxCols int, filter scaler.Filter) (*GridComposer, error) {
	grid, err := layout.CalcGridDimension(maxCols, 0, n)
	if err != nil {
		return nil, err
	}
	cellW, cellH := grid.CellSize(int(outRes.W), int(outRes.H))

	offsets := make([]offset, 0, grid.Cols*grid.Rows)
	scalers := make([]*scaler.PreserveAspect, 0, grid.Cols*grid.Rows)
	y := 0
	for row := 0; row < grid.Rows; row++ {
		x := 0
		for col := 0; col < grid.Cols; col++ {
			res, err := media.RoundDown(uint32(cellW[col]), uint32(cellH[row]))
			if err != nil {
				res = media.Resolution{W: 16, H: 16}
			}
			offsets = append(offsets, offset{x: x, y: y})
			scalers = append(scalers, scaler.NewPreserveAspect(res, filter))
			x += cellW[col]
		}
		y += cellH[row]
	}

	return &GridComposer{outRes: outRes, n: n, grid: grid, offsets: offsets, scalers: scalers}, nil
}

// Compose blits scale(yuvs[i]) into cell i for every i < len(yuvs),
// capped at the composer's configured n. scratch must already be sized
// to outRes; it is blacked out before drawing.
func (g *GridComposer) Compose(scratch *media.YUVImage, yuvs []*media.YUVImage) {
	scratch.Black()
	for i, src := range yuvs {
		if i >= g.n {
			break
		}
		scaled := g.scalers[i].Scale(src)
		blit(scratch, scaled, g.offsets[i].x, g.offsets[i].y)
	}
}

// ParallelGridComposer is GridComposer with the per-cell scale+blit
// dispatched across a worker pool of size min(n_cells, concurrency)
// (spec.md §4.5). Each worker owns its own scaler instance and writes
// to a disjoint rectangle of scratch, so no synchronization beyond the
// errgroup join is needed.
type ParallelGridComposer struct {
	*GridComposer
	concurrency int
}

// NewParallelGridComposer wraps a GridComposer with a worker pool
// bounded by concurrency (typically runtime.GOMAXPROCS(0)).
func NewParallelGridComposer(outRes media.Resolution, n, maxCols int, filter scaler.Filter, concurrency int) (*ParallelGridComposer, error) {
	g, err := NewGridComposer(outRes, n, maxCols, filter)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &ParallelGridComposer{GridComposer: g, concurrency: concurrency}, nil
}

// Compose fans the per-cell work out across the worker pool, then joins
// before returning, matching spec.md §4.5's "fork-join barrier within
// one video-producer tick".
func (p *ParallelGridComposer) Compose(scratch *media.YUVImage, yuvs []*media.YUVImage) error {
	scratch.Black()

	n := len(yuvs)
	if n > p.n {
		n = p.n
	}
	sem := make(chan struct{}, p.concurrency)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			scaled := p.scalers[i].Scale(yuvs[i])
			blit(scratch, scaled, p.offsets[i].x, p.offsets[i].y)
			return nil
		})
	}
	return g.Wait()
}
