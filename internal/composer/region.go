package composer

import (
	"fmt"

	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/filler"
	"github.com/shiguredo/hisui/internal/layout"
	"github.com/shiguredo/hisui/internal/media"
)

// RegionComposer draws a compiled layout's regions in z-order at a
// single output tick (spec.md §4.4.1 step 2 / §4.5's "layout mode").
// Unlike GridComposer it is stateful only in the sense that it drives
// layout.Region/layout.Cell's own state machine (ReleaseIfExpired,
// SetSource) forward to t on every call; the composer itself holds no
// per-call state of its own.
type RegionComposer struct {
	black *filler.Video
}

// NewRegionComposer builds a composer falling back to a canonical black
// frame whenever a cell's decoder cannot produce an image.
func NewRegionComposer(black *filler.Video) *RegionComposer {
	return &RegionComposer{black: black}
}

// Compose releases expired cells, then for every region (already
// z-order sorted by layout.Compile) draws each Used cell's source frame
// at t into scratch, preserving aspect ratio with black padding via the
// cell's own scaler. Idle and Excluded cells contribute nothing, which
// leaves scratch's black background showing through — exactly spec.md's
// "frames from absent participants are substituted with black video".
func (rc *RegionComposer) Compose(scratch *media.YUVImage, t uint64, regions []*layout.Region) error {
	scratch.Black()
	for _, r := range regions {
		for _, c := range r.Cells {
			c.ReleaseIfExpired(t)
		}
		// Region.Assign (run once, before any producer starts) already
		// drained every cell back to Idle by the time its sweep reached
		// the end of the timeline — cell state is a planning artifact,
		// not a live value. Replay the compiled Sequence against the
		// current tick so each cell holds whichever source is actually
		// on screen at t (spec.md §4.2/§4.4.1 step 2).
		for _, e := range r.Sequence() {
			if e.Interval.Contains(t) {
				e.Cell.SetSource(e.Source)
			}
		}
		for _, c := range r.Cells {
			if c.Status() != layout.Used {
				continue
			}
			src := c.Current()
			if src == nil || src.Video == nil {
				continue
			}
			img, err := src.Video.GetImage(t)
			if err != nil {
				return fmt.Errorf("composer: region %q cell %d: %w: %v", r.Name, c.Index, errs.ErrDecode, err)
			}
			if img == nil {
				img = rc.black.Frame()
			}
			scaled := c.Scaler.Scale(img)
			blit(scratch, scaled, r.Pos.X+c.Pos.X, r.Pos.Y+c.Pos.Y)
		}
	}
	return nil
}
