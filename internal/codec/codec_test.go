package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestReadIVFHeaderAndFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.WriteString("DKIF")
	buf.Write(make([]byte, 4)) // version + header size, unused by the reader
	buf.WriteString("VP80")
	binary.Write(&buf, binary.LittleEndian, uint16(640))
	binary.Write(&buf, binary.LittleEndian, uint16(480))
	buf.Write(make([]byte, 16)) // frame rate/scale/frame count/reserved

	payload := []byte{0x10, 0x20, 0x30}
	var frameHdr [12]byte
	binary.LittleEndian.PutUint32(frameHdr[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint64(frameHdr[4:12], 0)
	buf.Write(frameHdr[:])
	buf.Write(payload)

	fourcc, w, h, err := readIVFHeader(&buf)
	if err != nil {
		t.Fatalf("readIVFHeader: %v", err)
	}
	if fourcc != "VP80" || w != 640 || h != 480 {
		t.Fatalf("got %q %dx%d, want VP80 640x480", fourcc, w, h)
	}

	data, ts, err := readIVFFrame(&buf)
	if err != nil {
		t.Fatalf("readIVFFrame: %v", err)
	}
	if ts != 0 || !bytes.Equal(data, payload) {
		t.Fatalf("got ts=%d data=%v, want ts=0 data=%v", ts, data, payload)
	}

	if _, _, err := readIVFFrame(&buf); err != io.EOF {
		t.Fatalf("readIVFFrame at end: got %v, want io.EOF", err)
	}
}

func TestVP8KeyFrame(t *testing.T) {
	t.Parallel()

	if !vp8KeyFrame([]byte{0x00}) {
		t.Error("bit 0 clear should be a keyframe")
	}
	if vp8KeyFrame([]byte{0x01}) {
		t.Error("bit 0 set should not be a keyframe")
	}
}

func TestReadOggPageSinglePacket(t *testing.T) {
	t.Parallel()

	packet := append([]byte("OpusHead"), 1, 2, 0x38, 0x01, 0, 0, 0, 0, 0, 0)
	var buf bytes.Buffer
	buf.WriteString("OggS")
	buf.Write(make([]byte, 22)) // version, flags, granule pos, serial, seq, checksum
	buf.WriteByte(1)            // one segment
	buf.WriteByte(byte(len(packet)))
	buf.Write(packet)

	page, err := readOggPage(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readOggPage: %v", err)
	}
	if len(page.packets) != 1 || !bytes.Equal(page.packets[0], packet) {
		t.Fatalf("got %v, want single packet %v", page.packets, packet)
	}

	preSkip, err := parseOpusHead(page.packets[0])
	if err != nil {
		t.Fatalf("parseOpusHead: %v", err)
	}
	if preSkip != 0x0138 {
		t.Fatalf("preSkip = %#x, want 0x138", preSkip)
	}
}

func TestReadLEB128(t *testing.T) {
	t.Parallel()

	v, n := readLEB128([]byte{0x05})
	if v != 5 || n != 1 {
		t.Fatalf("single byte: got v=%d n=%d, want 5,1", v, n)
	}

	v, n = readLEB128([]byte{0x80, 0x01})
	if v != 128 || n != 2 {
		t.Fatalf("two byte: got v=%d n=%d, want 128,2", v, n)
	}
}
