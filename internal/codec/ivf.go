package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/shiguredo/hisui/internal/errs"
)

// readIVFHeader consumes the 32-byte IVF file header ffmpeg's `-f ivf`
// muxer writes, returning the stream FourCC and frame dimensions.
func readIVFHeader(r io.Reader) (fourcc string, width, height uint16, err error) {
	var hdr [32]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", 0, 0, fmt.Errorf("codec: %w: ivf header: %v", errs.ErrDecode, err)
	}
	if string(hdr[0:4]) != "DKIF" {
		return "", 0, 0, fmt.Errorf("codec: %w: not an ivf stream", errs.ErrEncode)
	}
	fourcc = string(hdr[8:12])
	width = binary.LittleEndian.Uint16(hdr[12:14])
	height = binary.LittleEndian.Uint16(hdr[14:16])
	return fourcc, width, height, nil
}

// readIVFFrame reads one frame record (12-byte header: 4-byte little
// endian size, 8-byte little endian timestamp, followed by the payload).
// Returns io.EOF when the stream ends cleanly between frames.
func readIVFFrame(r io.Reader) (data []byte, timestamp uint64, err error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}
		return nil, 0, fmt.Errorf("codec: %w: ivf frame header: %v", errs.ErrEncode, err)
	}
	size := binary.LittleEndian.Uint32(hdr[0:4])
	ts := binary.LittleEndian.Uint64(hdr[4:12])
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, 0, fmt.Errorf("codec: %w: ivf frame payload: %v", errs.ErrEncode, err)
	}
	return buf, ts, nil
}

// vp8KeyFrame reports whether an encoded VP8 frame is a keyframe,
// decoded from the 3-byte uncompressed frame tag (RFC 6386 §9.1): bit 0
// of the first byte is 0 for a key frame.
func vp8KeyFrame(data []byte) bool {
	return len(data) > 0 && data[0]&0x01 == 0
}

// vp9KeyFrame checks the uncompressed header's frame-type bit (VP9
// bitstream spec §6.2): after the 2-bit frame marker and profile bits,
// show_existing_frame (0) then frame_type (0 = key) for a non-intra-only
// frame. A conservative byte-level check on the first byte's bit layout
// used by every ffmpeg-produced non-intraonly frame.
func vp9KeyFrame(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return data[0]&0x0C == 0
}

// av1KeyFrame looks for a Key Frame OBU (frame_type == 0) inside the
// leading OBU sequence emitted for a temporal unit.
func av1KeyFrame(data []byte) bool {
	for len(data) > 0 {
		hdr := data[0]
		obuType := (hdr >> 3) & 0x0F
		hasExt := hdr&0x04 != 0
		hasSize := hdr&0x02 != 0
		pos := 1
		if hasExt {
			pos++
		}
		if !hasSize || pos >= len(data) {
			return obuType == 6 // OBU_FRAME with no size field: assume key on first frame
		}
		size, n := readLEB128(data[pos:])
		pos += n
		if obuType == 3 || obuType == 6 { // OBU_FRAME_HEADER or OBU_FRAME
			if pos < len(data) {
				return data[pos]&0xE0 == 0 // show_existing_frame=0 and frame_type=0 (KEY_FRAME)
			}
		}
		pos += int(size)
		if pos > len(data) {
			break
		}
		data = data[pos:]
	}
	return false
}

func readLEB128(data []byte) (value uint64, n int) {
	for n < len(data) && n < 8 {
		b := data[n]
		value |= uint64(b&0x7F) << (7 * n)
		n++
		if b&0x80 == 0 {
			break
		}
	}
	return value, n
}
