package codec

import (
	"bufio"
	"fmt"
	"io"

	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/media"
)

// h264EncoderLibs maps spec.md §6.3's `--h264-encoder openh264|onevpl`
// choice to the ffmpeg encoder library backing it (internal/codecengine
// probes these same two names for `--video-codec-engines`). libx264 is
// the fallback for an empty/unrecognized engine name.
var h264EncoderLibs = map[string]string{
	"openh264": "libopenh264",
	"onevpl":   "h264_qsv",
}

// newH264Encoder wraps an H.264 ffmpeg encoder library emitting Annex B
// NAL units on stdout. `-bf 0` disables B-frames so encode order equals
// display order and every access unit is a contiguous run of NALs ending
// in the one VCL (slice) NAL that carries it — no DTS/PTS reordering to
// undo.
func newH264Encoder(engine string, res media.Resolution, bitrateKbps int, fpsNum, fpsDen int) (VideoEncoder, error) {
	lib, ok := h264EncoderLibs[engine]
	if !ok {
		lib = "libx264"
	}
	args := []string{
		"-v", "error",
		"-f", "rawvideo", "-pix_fmt", "yuv420p",
		"-s", fmt.Sprintf("%dx%d", res.W, res.H),
		"-r", fmt.Sprintf("%d/%d", fpsNum, fpsDen),
		"-i", "pipe:0",
		"-c:v", lib,
	}
	if lib == "libx264" {
		args = append(args, "-preset", "veryfast")
	}
	args = append(args,
		"-bf", "0",
		"-b:v", fmt.Sprintf("%dk", bitrateKbps),
		"-f", "h264", "pipe:1",
	)
	proc, err := spawn("ffmpeg", args, true)
	if err != nil {
		return nil, err
	}

	e := &ffmpegVideoEncoder{
		proc: proc, res: res, frameDur: uint64(1e9) * uint64(fpsDen) / uint64(fpsNum),
		fourcc: "avc1", frames: make(chan media.Frame, 64),
		readErr: make(chan error, 1), readDone: make(chan struct{}),
	}
	go e.readH264Loop()
	return e, nil
}

func (e *ffmpegVideoEncoder) readH264Loop() {
	defer close(e.readDone)
	defer close(e.frames)

	r := bufio.NewReaderSize(e.proc.stdout, 256*1024)
	var au []byte // access unit accumulated so far
	var spsPps []byte
	var idx uint64

	flush := func(key bool) {
		if len(au) == 0 {
			return
		}
		e.frames <- media.Frame{TimestampNs: idx * e.frameDur, Data: au, IsKey: key}
		idx++
		au = nil
	}

	for {
		nal, err := readAnnexBNAL(r)
		if err == io.EOF {
			flush(len(spsPps) > 0)
			return
		}
		if err != nil {
			e.readErr <- err
			return
		}

		nalType := nal[0] & 0x1F
		switch nalType {
		case 7, 8: // SPS, PPS
			if e.extraData == nil {
				spsPps = append(spsPps, annexBPrefix...)
				spsPps = append(spsPps, nal...)
			}
			au = append(au, annexBPrefix...)
			au = append(au, nal...)
		case 1, 5: // non-IDR / IDR slice: closes the access unit
			au = append(au, annexBPrefix...)
			au = append(au, nal...)
			key := nalType == 5
			if key && e.extraData == nil {
				e.extraData = spsPps
			}
			flush(key)
		default: // SEI, AUD, etc.: part of the current access unit
			au = append(au, annexBPrefix...)
			au = append(au, nal...)
		}
	}
}

var annexBPrefix = []byte{0, 0, 0, 1}

// readAnnexBNAL reads up to (but not including) the next start code,
// returning one NAL unit's payload bytes (without its own start code).
func readAnnexBNAL(r *bufio.Reader) ([]byte, error) {
	// Skip any leading start code.
	if err := skipStartCode(r); err != nil {
		return nil, err
	}
	var nal []byte
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			if len(nal) == 0 {
				return nil, io.EOF
			}
			return nal, nil
		}
		if err != nil {
			return nil, fmt.Errorf("codec: %w: read nal: %v", errs.ErrEncode, err)
		}
		nal = append(nal, b)
		if len(nal) >= 3 && isStartCodeAt(nal[len(nal)-3:]) {
			nal = nal[:len(nal)-3]
			return nal, nil
		}
	}
}

func isStartCodeAt(b []byte) bool {
	return len(b) == 3 && b[0] == 0 && b[1] == 0 && b[2] == 1
}

func skipStartCode(r *bufio.Reader) error {
	for {
		b, err := r.Peek(4)
		if err != nil {
			if err == io.EOF {
				return io.EOF
			}
			return nil
		}
		if b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1 {
			r.Discard(4)
			return nil
		}
		if b[0] == 0 && b[1] == 0 && b[2] == 1 {
			r.Discard(3)
			return nil
		}
		return nil
	}
}
