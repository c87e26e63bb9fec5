package pipeline

import (
	"fmt"

	"github.com/shiguredo/hisui/internal/codec"
	"github.com/shiguredo/hisui/internal/composer"
	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/filler"
	"github.com/shiguredo/hisui/internal/layout"
	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/source"
)

// FrameComposer draws one output-resolution frame at tick t into
// scratch, the single operation spec.md §4.4.1 step 2 asks of "the
// configured composer (grid, parallel-grid, or region-based)". It is
// the seam that lets VideoProducer stay ignorant of which of the three
// composer kinds spec.md §4.5 describes is in play.
type FrameComposer interface {
	Compose(scratch *media.YUVImage, t uint64) error
}

// RegionFrameComposer adapts composer.RegionComposer (layout mode, the
// normal path for both an explicit --layout and the implicit
// DefaultSingleCell region) to the FrameComposer seam.
type RegionFrameComposer struct {
	Composer *composer.RegionComposer
	Regions  []*layout.Region
}

func (c *RegionFrameComposer) Compose(scratch *media.YUVImage, t uint64) error {
	return c.Composer.Compose(scratch, t, c.Regions)
}

// gridCompose is the shape GridComposer and ParallelGridComposer share;
// GridComposer.Compose never fails, so it is wrapped to satisfy this
// with a nil error.
type gridCompose interface {
	Compose(scratch *media.YUVImage, yuvs []*media.YUVImage) error
}

type errFreeGrid struct{ g *composer.GridComposer }

func (e errFreeGrid) Compose(scratch *media.YUVImage, yuvs []*media.YUVImage) error {
	e.g.Compose(scratch, yuvs)
	return nil
}

// GridFrameComposer adapts composer.GridComposer/ParallelGridComposer to
// the FrameComposer seam: at each tick it decodes the current frame of
// every source live at t (substituting the canonical black filler frame
// when a decoder returns no image; sources not live at t are left out)
// and hands the resulting slice to the grid composer, positional by
// catalog order among the live sources (spec.md §4.5's "i % cols, i /
// cols" rule — no cell stickiness).
type GridFrameComposer struct {
	Grid    gridCompose
	Sources []*source.Source // video sources, catalog order
	Black   *filler.Video
}

// NewGridFrameComposer wraps g, accepting either *composer.GridComposer
// or *composer.ParallelGridComposer.
func NewGridFrameComposer(g interface{}, sources []*source.Source, black *filler.Video) (*GridFrameComposer, error) {
	switch gg := g.(type) {
	case *composer.GridComposer:
		return &GridFrameComposer{Grid: errFreeGrid{gg}, Sources: sources, Black: black}, nil
	case *composer.ParallelGridComposer:
		return &GridFrameComposer{Grid: gg, Sources: sources, Black: black}, nil
	default:
		return nil, fmt.Errorf("pipeline: %w: unsupported grid composer type %T", errs.ErrLogic, g)
	}
}

func (c *GridFrameComposer) Compose(scratch *media.YUVImage, t uint64) error {
	yuvs := make([]*media.YUVImage, 0, len(c.Sources))
	for _, s := range c.Sources {
		if !s.Interval.Contains(t) {
			continue
		}
		img, err := s.Video.GetImage(t)
		if err != nil {
			return fmt.Errorf("pipeline: video source %s: %w: %v", s.ConnectionID, errs.ErrDecode, err)
		}
		if img == nil {
			img = c.Black.Frame()
		}
		yuvs = append(yuvs, img)
	}
	return c.Grid.Compose(scratch, yuvs)
}

// VideoProducer runs on its own goroutine (spec.md §4.4.1): at each of
// the fixed-fps ticks from 0 to MaxEndTime it composes one frame, feeds
// it to the encoder, and drains whatever the encoder emits onto Queue.
type VideoProducer struct {
	status

	Composer   FrameComposer
	Encoder    codec.VideoEncoder
	OutRes     media.Resolution
	MaxEndTime uint64
	FPSNum     int
	FPSDen     int

	queue *Queue
}

// NewVideoProducer builds a VideoProducer with a fresh output queue.
func NewVideoProducer(c FrameComposer, enc codec.VideoEncoder, outRes media.Resolution, maxEndTime uint64, fpsNum, fpsDen int) *VideoProducer {
	return &VideoProducer{
		Composer: c, Encoder: enc, OutRes: outRes, MaxEndTime: maxEndTime,
		FPSNum: fpsNum, FPSDen: fpsDen, queue: NewQueue(videoQueueSoftCap),
	}
}

// Queue implements Producer.
func (p *VideoProducer) Queue() *Queue { return p.queue }

const videoQueueSoftCap = 256

// Run implements spec.md §4.4.1's main loop, stepping t from 0 to
// MaxEndTime at the configured frame rate, then flushing the encoder
// and marking itself finished.
func (p *VideoProducer) Run() {
	defer p.setFinished()

	step := uint64(1_000_000_000) * uint64(p.FPSDen) / uint64(p.FPSNum)
	scratch := media.NewYUVImage(p.OutRes)

	for t := uint64(0); t < p.MaxEndTime; t += step {
		if err := p.Composer.Compose(scratch, t); err != nil {
			p.setErr(err)
			return
		}
		frames, err := p.Encoder.Encode(scratch, t)
		if err != nil {
			p.setErr(fmt.Errorf("pipeline: video encode at t=%d: %w", t, err))
			return
		}
		for _, f := range frames {
			p.queue.Push(f)
		}
	}

	frames, err := p.Encoder.Flush()
	if err != nil {
		p.setErr(fmt.Errorf("pipeline: video flush: %w", err))
	}
	for _, f := range frames {
		p.queue.Push(f)
	}
}

// NoVideoProducer replaces VideoProducer in audio-only mode (spec.md
// §4.4.3 "Edge cases: Audio-only mode"): it starts already finished with
// an empty queue so the muxer loop degenerates to a pure audio drain.
type NoVideoProducer struct {
	queue *Queue
}

// NewNoVideoProducer builds an already-finished, empty video producer.
func NewNoVideoProducer() *NoVideoProducer { return &NoVideoProducer{queue: NewQueue(0)} }

func (p *NoVideoProducer) Run()            {}
func (p *NoVideoProducer) IsFinished() bool { return true }
func (p *NoVideoProducer) Err() error       { return nil }
func (p *NoVideoProducer) Queue() *Queue    { return p.queue }

var (
	_ Producer = (*VideoProducer)(nil)
	_ Producer = (*NoVideoProducer)(nil)
)
