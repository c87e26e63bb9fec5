package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/shiguredo/hisui/internal/errs"
)

// oggPage is one demuxed Ogg page (RFC 3533), carrying one or more
// packets per the page's segment table.
type oggPage struct {
	packets [][]byte
}

// readOggPage reads and validates one Ogg page from r, splitting its
// payload into packets along the segment table's lacing boundaries.
func readOggPage(r *bufio.Reader) (oggPage, error) {
	var hdr [27]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return oggPage{}, io.EOF
		}
		return oggPage{}, fmt.Errorf("codec: %w: ogg page header: %v", errs.ErrDecode, err)
	}
	if string(hdr[0:4]) != "OggS" {
		return oggPage{}, fmt.Errorf("codec: %w: bad ogg capture pattern", errs.ErrDecode)
	}
	segCount := int(hdr[26])
	segTable := make([]byte, segCount)
	if _, err := io.ReadFull(r, segTable); err != nil {
		return oggPage{}, fmt.Errorf("codec: %w: ogg segment table: %v", errs.ErrDecode, err)
	}

	var page oggPage
	var cur []byte
	for _, seg := range segTable {
		buf := make([]byte, seg)
		if _, err := io.ReadFull(r, buf); err != nil {
			return oggPage{}, fmt.Errorf("codec: %w: ogg segment data: %v", errs.ErrDecode, err)
		}
		cur = append(cur, buf...)
		if seg < 255 {
			page.packets = append(page.packets, cur)
			cur = nil
		}
	}
	if cur != nil {
		// Page ended mid-packet; the caller's next page continues it. We
		// keep the simplifying assumption (true for ffmpeg's libopus
		// output at our block sizes) that packets never span pages.
		page.packets = append(page.packets, cur)
	}
	return page, nil
}

// parseOpusHead extracts the pre-skip field from an OpusHead identification
// packet (RFC 7845 §5.1): magic "OpusHead", version, channel count, then a
// little-endian uint16 pre-skip at byte offset 10.
func parseOpusHead(packet []byte) (preSkip int, err error) {
	if len(packet) < 12 || string(packet[0:8]) != "OpusHead" {
		return 0, fmt.Errorf("codec: %w: not an OpusHead packet", errs.ErrDecode)
	}
	return int(binary.LittleEndian.Uint16(packet[10:12])), nil
}
