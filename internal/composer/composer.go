// Package composer arranges scaled YUV sub-images into one
// output-resolution frame (spec.md §4.5). Every composer variant is
// stateless given its inputs beyond the per-cell scalers it owns; none
// of them touch the encoder or the pipeline queues.
package composer

import "github.com/shiguredo/hisui/internal/media"

// blit copies src, already sized to exactly fit its destination cell,
// into dst at the pixel offset (offX, offY). offX/offY must be even so
// the chroma planes align.
func blit(dst, src *media.YUVImage, offX, offY int) {
	blitPlane(dst.Y, dst.StrideY, src.Y, src.StrideY, offX, offY, int(src.Res.W), int(src.Res.H))
	cOffX, cOffY := offX/2, offY/2
	cw, ch := int(src.Res.W)/2, int(src.Res.H)/2
	blitPlane(dst.U, dst.StrideUV, src.U, src.StrideUV, cOffX, cOffY, cw, ch)
	blitPlane(dst.V, dst.StrideUV, src.V, src.StrideUV, cOffX, cOffY, cw, ch)
}

func blitPlane(dst []byte, dstStride int, src []byte, srcStride int, offX, offY, w, h int) {
	for y := 0; y < h; y++ {
		di := (offY+y)*dstStride + offX
		si := y * srcStride
		copy(dst[di:di+w], src[si:si+w])
	}
}
