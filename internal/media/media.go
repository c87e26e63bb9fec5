// Package media defines the frame and image types that flow through the
// composition pipeline: decoded YUV images and PCM blocks on the way in,
// encoded Frames on the way out to the container (spec.md §3).
package media

import "fmt"

// Resolution is an output or source frame size in pixels. Both dimensions
// must be divisible by 4 (spec.md §3).
type Resolution struct {
	W, H uint32
}

// RoundDown rounds w/h down to the nearest multiple of 4 and rejects
// anything below 16, per spec.md §3's layout-resolution rule.
func RoundDown(w, h uint32) (Resolution, error) {
	rw := w - w%4
	rh := h - h%4
	if rw < 16 || rh < 16 {
		return Resolution{}, fmt.Errorf("media: resolution %dx%d rounds below the 16px minimum", w, h)
	}
	return Resolution{W: rw, H: rh}, nil
}

// FrameSize returns the byte length of an I420 image at this resolution:
// a full-resolution Y plane plus two quarter-resolution chroma planes
// (1.5 bytes/pixel).
func (r Resolution) FrameSize() int {
	return int(r.W) * int(r.H) * 3 / 2
}

// YUVImage is a planar I420 image: Y at full resolution, U and V
// subsampled 2x in both dimensions, each stride equal to its own plane's
// row width (no row padding).
type YUVImage struct {
	Res        Resolution
	Y, U, V    []byte
	StrideY    int
	StrideUV   int
}

// NewYUVImage allocates a zeroed I420 image of the given resolution.
func NewYUVImage(res Resolution) *YUVImage {
	cw, ch := int(res.W)/2, int(res.H)/2
	return &YUVImage{
		Res:      res,
		Y:        make([]byte, int(res.W)*int(res.H)),
		U:        make([]byte, cw*ch),
		V:        make([]byte, cw*ch),
		StrideY:  int(res.W),
		StrideUV: cw,
	}
}

// Black fills the image with canonical black (Y=0, U=V=128), per
// spec.md §4's filler provider contract.
func (img *YUVImage) Black() {
	for i := range img.Y {
		img.Y[i] = 0
	}
	for i := range img.U {
		img.U[i] = 128
	}
	for i := range img.V {
		img.V[i] = 128
	}
}

// PCMBlock is a block of interleaved 16-bit signed PCM samples at 48kHz,
// mono or stereo (spec.md §3). 20ms at 48kHz is 960 samples per channel.
type PCMBlock struct {
	Samples  []int16 // interleaved
	Channels int
}

// NewSilentPCMBlock returns an all-zero block of the given sample count
// per channel.
func NewSilentPCMBlock(samplesPerChannel, channels int) *PCMBlock {
	return &PCMBlock{
		Samples:  make([]int16, samplesPerChannel*channels),
		Channels: channels,
	}
}

// Frame is an encoded audio or video access unit ready for a Container,
// owned by whichever component currently holds it and moved by value
// across a pipeline.Queue (spec.md §3).
type Frame struct {
	TimestampNs uint64
	Data        []byte
	IsKey       bool
}
