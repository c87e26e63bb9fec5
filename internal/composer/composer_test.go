package composer

import (
	"testing"

	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/scaler"
)

func solidImage(res media.Resolution, y, u, v byte) *media.YUVImage {
	img := media.NewYUVImage(res)
	for i := range img.Y {
		img.Y[i] = y
	}
	for i := range img.U {
		img.U[i] = u
	}
	for i := range img.V {
		img.V[i] = v
	}
	return img
}

func TestGridComposerPlacesSourcesInIndexOrder(t *testing.T) {
	t.Parallel()

	out := media.Resolution{W: 32, H: 32}
	g, err := NewGridComposer(out, 4, 0, scaler.FilterBox)
	if err != nil {
		t.Fatalf("NewGridComposer: %v", err)
	}

	yuvs := []*media.YUVImage{
		solidImage(media.Resolution{W: 16, H: 16}, 10, 128, 128),
		solidImage(media.Resolution{W: 16, H: 16}, 20, 128, 128),
		solidImage(media.Resolution{W: 16, H: 16}, 30, 128, 128),
		solidImage(media.Resolution{W: 16, H: 16}, 40, 128, 128),
	}

	scratch := media.NewYUVImage(out)
	g.Compose(scratch, yuvs)

	// 2x2 grid of 16x16 cells: top-left, top-right, bottom-left, bottom-right.
	if got := scratch.Y[0]; got != 10 {
		t.Errorf("top-left Y = %d, want 10", got)
	}
	if got := scratch.Y[16]; got != 20 {
		t.Errorf("top-right Y = %d, want 20", got)
	}
	if got := scratch.Y[16*32]; got != 30 {
		t.Errorf("bottom-left Y = %d, want 30", got)
	}
	if got := scratch.Y[16*32+16]; got != 40 {
		t.Errorf("bottom-right Y = %d, want 40", got)
	}
}

func TestParallelGridComposerMatchesGridComposer(t *testing.T) {
	t.Parallel()

	out := media.Resolution{W: 32, H: 32}
	yuvs := []*media.YUVImage{
		solidImage(media.Resolution{W: 16, H: 16}, 10, 128, 128),
		solidImage(media.Resolution{W: 16, H: 16}, 20, 128, 128),
		solidImage(media.Resolution{W: 16, H: 16}, 30, 128, 128),
		solidImage(media.Resolution{W: 16, H: 16}, 40, 128, 128),
	}

	serial, err := NewGridComposer(out, 4, 0, scaler.FilterBox)
	if err != nil {
		t.Fatalf("NewGridComposer: %v", err)
	}
	wantScratch := media.NewYUVImage(out)
	serial.Compose(wantScratch, yuvs)

	parallel, err := NewParallelGridComposer(out, 4, 0, scaler.FilterBox, 4)
	if err != nil {
		t.Fatalf("NewParallelGridComposer: %v", err)
	}
	gotScratch := media.NewYUVImage(out)
	if err := parallel.Compose(gotScratch, yuvs); err != nil {
		t.Fatalf("Compose: %v", err)
	}

	for i := range wantScratch.Y {
		if wantScratch.Y[i] != gotScratch.Y[i] {
			t.Fatalf("Y[%d] = %d, want %d", i, gotScratch.Y[i], wantScratch.Y[i])
		}
	}
}
