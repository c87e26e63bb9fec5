package filler

import (
	"testing"

	"github.com/shiguredo/hisui/internal/media"
)

func TestVideoFrameIsBlack(t *testing.T) {
	t.Parallel()

	v := NewVideo(media.Resolution{W: 16, H: 16})
	img := v.Frame()
	for i, b := range img.Y {
		if b != 0 {
			t.Fatalf("Y[%d] = %d, want 0", i, b)
		}
	}
	for i, b := range img.U {
		if b != 128 {
			t.Fatalf("U[%d] = %d, want 128", i, b)
		}
	}
	for i, b := range img.V {
		if b != 128 {
			t.Fatalf("V[%d] = %d, want 128", i, b)
		}
	}
}

func TestAudioBlockIsSilent(t *testing.T) {
	t.Parallel()

	a := NewAudio(2)
	block := a.Block(960)
	if len(block.Samples) != 960*2 {
		t.Fatalf("len(Samples) = %d, want %d", len(block.Samples), 960*2)
	}
	for i, s := range block.Samples {
		if s != 0 {
			t.Fatalf("Samples[%d] = %d, want 0", i, s)
		}
	}
}

func TestAudioBlockFreshEachCall(t *testing.T) {
	t.Parallel()

	a := NewAudio(1)
	b1 := a.Block(10)
	b1.Samples[0] = 42
	b2 := a.Block(10)
	if b2.Samples[0] != 0 {
		t.Fatalf("second block aliases the first: Samples[0] = %d", b2.Samples[0])
	}
}
