// Package scaler implements the aspect-preserving YUV rescaler used to
// fit a source frame into a cell's rectangle with black padding
// (spec.md §4.5). This is core composition math — the pack has no
// general-purpose image library grounded for this, and the spec calls
// out scaling as part of the composer's ~20% budget share, so it is
// hand-written over raw I420 buffers the same way the teacher hand-rolls
// its NAL/PES/PSI parsers rather than reaching for a library.
package scaler

import "github.com/shiguredo/hisui/internal/media"

// Filter selects the resampling kernel, passed through from the layout
// config (spec.md §4.5: "box, bilinear, etc.").
type Filter int

const (
	FilterBox Filter = iota
	FilterBilinear
)

// PreserveAspect scales an arbitrary-size source image into a
// fixed-size destination rectangle, preserving the source's aspect
// ratio and padding the remainder with black (spec.md §3's per-cell
// scaler, §4.5's "Scaling preserves aspect ratio with black bars").
type PreserveAspect struct {
	dst    media.Resolution
	filter Filter
	scratch *media.YUVImage
}

// NewPreserveAspect builds a scaler targeting dst, instantiated once and
// reused for the lifetime of the owning cell (spec.md §3).
func NewPreserveAspect(dst media.Resolution, filter Filter) *PreserveAspect {
	return &PreserveAspect{dst: dst, filter: filter, scratch: media.NewYUVImage(dst)}
}

// Scale fits src into the destination rectangle and returns the
// letterboxed/pillarboxed result. The returned image is owned by the
// scaler and is overwritten by the next call — callers that need to
// keep it across calls must copy it first.
func (p *PreserveAspect) Scale(src *media.YUVImage) *media.YUVImage {
	p.scratch.Black()
	if src == nil || src.Res.W == 0 || src.Res.H == 0 {
		return p.scratch
	}

	fitW, fitH, offX, offY := fitRect(int(src.Res.W), int(src.Res.H), int(p.dst.W), int(p.dst.H))
	if fitW <= 0 || fitH <= 0 {
		return p.scratch
	}

	resample(src, p.scratch, fitW, fitH, offX, offY, p.filter)
	return p.scratch
}

// fitRect computes the largest rectangle of aspect ratio srcW:srcH that
// fits within dstW x dstH, plus the offset that centers it.
func fitRect(srcW, srcH, dstW, dstH int) (fitW, fitH, offX, offY int) {
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)

	if srcAspect > dstAspect {
		fitW = dstW
		fitH = int(float64(dstW) / srcAspect)
	} else {
		fitH = dstH
		fitW = int(float64(dstH) * srcAspect)
	}
	// Keep to even dimensions so chroma subsampling stays aligned.
	fitW -= fitW % 2
	fitH -= fitH % 2
	if fitW <= 0 {
		fitW = 2
	}
	if fitH <= 0 {
		fitH = 2
	}
	offX = (dstW - fitW) / 2
	offY = (dstH - fitH) / 2
	offX -= offX % 2
	offY -= offY % 2
	return
}

// resample scales src's planes into dst at the given fit rectangle,
// blitting directly into dst's existing buffer (which the caller has
// already blacked out around the target rectangle).
func resample(src, dst *media.YUVImage, fitW, fitH, offX, offY int, filter Filter) {
	resamplePlane(src.Y, int(src.Res.W), int(src.Res.H), src.StrideY,
		dst.Y, dst.StrideY, fitW, fitH, offX, offY, filter)

	cFitW, cFitH := fitW/2, fitH/2
	cOffX, cOffY := offX/2, offY/2
	cSrcW, cSrcH := int(src.Res.W)/2, int(src.Res.H)/2
	resamplePlane(src.U, cSrcW, cSrcH, src.StrideUV, dst.U, dst.StrideUV, cFitW, cFitH, cOffX, cOffY, filter)
	resamplePlane(src.V, cSrcW, cSrcH, src.StrideUV, dst.V, dst.StrideUV, cFitW, cFitH, cOffX, cOffY, filter)
}

// resamplePlane writes a fitW x fitH resampled copy of a srcW x srcH
// plane into dst at (offX, offY), using nearest-neighbor for
// FilterBox and bilinear interpolation for FilterBilinear.
func resamplePlane(src []byte, srcW, srcH, srcStride int, dst []byte, dstStride, fitW, fitH, offX, offY int, filter Filter) {
	if srcW <= 0 || srcH <= 0 || fitW <= 0 || fitH <= 0 {
		return
	}
	xRatio := float64(srcW) / float64(fitW)
	yRatio := float64(srcH) / float64(fitH)

	for y := 0; y < fitH; y++ {
		srcY := (float64(y) + 0.5) * yRatio
		row := dst[(offY+y)*dstStride:]
		for x := 0; x < fitW; x++ {
			srcX := (float64(x) + 0.5) * xRatio
			var v byte
			if filter == FilterBilinear {
				v = bilinear(src, srcW, srcH, srcStride, srcX-0.5, srcY-0.5)
			} else {
				v = nearest(src, srcW, srcH, srcStride, srcX, srcY)
			}
			row[offX+x] = v
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nearest(plane []byte, w, h, stride int, fx, fy float64) byte {
	x := clampInt(int(fx), 0, w-1)
	y := clampInt(int(fy), 0, h-1)
	return plane[y*stride+x]
}

func bilinear(plane []byte, w, h, stride int, fx, fy float64) byte {
	x0 := clampInt(int(fx), 0, w-1)
	y0 := clampInt(int(fy), 0, h-1)
	x1 := clampInt(x0+1, 0, w-1)
	y1 := clampInt(y0+1, 0, h-1)

	dx := fx - float64(x0)
	dy := fy - float64(y0)
	if dx < 0 {
		dx = 0
	}
	if dy < 0 {
		dy = 0
	}

	p00 := float64(plane[y0*stride+x0])
	p10 := float64(plane[y0*stride+x1])
	p01 := float64(plane[y1*stride+x0])
	p11 := float64(plane[y1*stride+x1])

	top := p00 + (p10-p00)*dx
	bot := p01 + (p11-p01)*dx
	v := top + (bot-top)*dy
	return byte(clampInt(int(v+0.5), 0, 255))
}
