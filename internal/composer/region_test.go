package composer

import (
	"testing"

	"github.com/shiguredo/hisui/internal/filler"
	"github.com/shiguredo/hisui/internal/interval"
	"github.com/shiguredo/hisui/internal/layout"
	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/scaler"
	"github.com/shiguredo/hisui/internal/source"
)

type fakeVideoDecoder struct {
	img *media.YUVImage
}

func (d *fakeVideoDecoder) GetImage(uint64) (*media.YUVImage, error) { return d.img, nil }
func (d *fakeVideoDecoder) Close() error                             { return nil }

func TestRegionComposerDrawsUsedCellsOnly(t *testing.T) {
	t.Parallel()

	out := media.Resolution{W: 32, H: 16}
	src := &source.Source{
		ID: 1, Kind: source.Video, ConnectionID: "a",
		Interval: interval.New(0, 10_000_000_000),
		Video:    &fakeVideoDecoder{img: solidImage(media.Resolution{W: 16, H: 16}, 200, 128, 128)},
	}

	region := &layout.Region{
		Name: "main",
		Res:  out,
		Cells: []*layout.Cell{
			layout.NewCell(0, layout.Point{X: 0, Y: 0}, media.Resolution{W: 16, H: 16}, false, scaler.FilterBox),
			layout.NewCell(1, layout.Point{X: 16, Y: 0}, media.Resolution{W: 16, H: 16}, false, scaler.FilterBox),
		},
		Sources: []*source.Source{src},
		Reuse:   layout.ReuseShowOldest,
	}
	region.Assign()

	rc := NewRegionComposer(filler.NewVideo(out))
	scratch := media.NewYUVImage(out)
	if err := rc.Compose(scratch, 0, []*layout.Region{region}); err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if got := scratch.Y[0]; got != 200 {
		t.Errorf("cell 0 Y = %d, want 200 (source drawn)", got)
	}
	if got := scratch.Y[16]; got != 0 {
		t.Errorf("cell 1 Y = %d, want 0 (idle, black background)", got)
	}
}
