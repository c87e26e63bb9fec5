package layout

import (
	"fmt"

	"github.com/shiguredo/hisui/internal/errs"
)

// Grid is a region's computed cell arrangement.
type Grid struct {
	Cols, Rows int
}

// CalcGridDimension exposes calcGridDimension for the non-layout-driven
// grid composer (spec.md §4.5's GridComposer/ParallelGridComposer, which
// size their grid straight from a live source count with no excluded
// cells or region bookkeeping).
func CalcGridDimension(maxCols, maxRows, n int) (Grid, error) {
	return calcGridDimension(maxCols, maxRows, n)
}

// calcGridDimension implements spec.md §4.2's calc_grid_dimension.
// cellsExcluded consumes grid slots but never receives a source, so the
// caller must add len(cellsExcluded) to n before calling (spec.md: "Add
// cells_excluded.len() to n_sources when computing the grid").
func calcGridDimension(maxCols, maxRows, n int) (Grid, error) {
	if n <= 0 {
		return Grid{Cols: 1, Rows: 1}, nil
	}
	switch {
	case maxCols == 0 && maxRows == 0:
		k := 1
		for k*k < n {
			k++
		}
		return Grid{Cols: k, Rows: k}, nil
	case maxRows == 0: // only columns constrained
		rows := ceilDiv(n, maxCols)
		return Grid{Cols: maxCols, Rows: rows}, nil
	case maxCols == 0: // only rows constrained
		cols := ceilDiv(n, maxRows)
		return Grid{Cols: cols, Rows: maxRows}, nil
	default: // both constrained
		if maxCols*maxRows < n {
			return Grid{}, fmt.Errorf("%w: grid %dx%d cannot hold %d sources", errs.ErrConfig, maxCols, maxRows, n)
		}
		return Grid{Cols: maxCols, Rows: maxRows}, nil
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// CellSize divides the region's resolution into g.Cols x g.Rows cells,
// distributing any pixel remainder across the leading cells in each
// dimension (spec.md §4.5 "remainder distributed evenly (left-to-right
// then top-to-bottom)").
func (g Grid) CellSize(w, h int) (cellW, cellH []int) {
	cellW = distribute(w, g.Cols)
	cellH = distribute(h, g.Rows)
	return
}

func distribute(total, n int) []int {
	base := total / n
	rem := total % n
	out := make([]int, n)
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}
