package codec

import (
	"fmt"
	"io"

	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/media"
)

// VideoEncoder is the capability spec.md §1 scopes the core against:
// raw frame in, zero or more encoded frames out, plus an extra-data
// accessor the container needs for its track description.
type VideoEncoder interface {
	Encode(img *media.YUVImage, ptsNs uint64) ([]media.Frame, error)
	Flush() ([]media.Frame, error)
	ExtraData() []byte
	FourCC() string
	Close() error
}

// ffmpegVideoEncoder backs VideoEncoder with an ffmpeg subprocess
// encoding to the IVF container (VP8/VP9/AV1, spec.md §6.3's
// `--out-video-codec vp8|vp9|av1|h264`). A dedicated reader goroutine
// drains ffmpeg's stdout continuously so that Encode's stdin write
// never deadlocks against a full OS pipe buffer on the output side.
type ffmpegVideoEncoder struct {
	proc      *process
	res       media.Resolution
	frameDur  uint64
	fourcc    string
	frames    chan media.Frame
	readErr   chan error
	readDone  chan struct{}
	extraData []byte
}

var _ VideoEncoder = (*ffmpegVideoEncoder)(nil)

// NewVideoEncoder starts an ffmpeg encode of raw I420 frames to codecName
// ("vp8", "vp9", "av1", or "h264") at res/bitrateKbps/fps, emitted as an
// IVF stream that this encoder demuxes frame-by-frame (h264 is handed to
// newH264Encoder, which reads an Annex B stream instead). h264Engine
// selects between the "openh264"/"onevpl" libraries spec.md §6.3's
// `--h264-encoder` names; it is ignored for non-h264 codecName.
func NewVideoEncoder(codecName string, h264Engine string, res media.Resolution, bitrateKbps int, fpsNum, fpsDen int) (VideoEncoder, error) {
	if codecName == "h264" {
		return newH264Encoder(h264Engine, res, bitrateKbps, fpsNum, fpsDen)
	}

	libs := map[string][2]string{
		"vp8": {"libvpx", "VP80"},
		"vp9": {"libvpx-vp9", "VP90"},
		"av1": {"libaom-av1", "AV01"},
	}
	pair, ok := libs[codecName]
	if !ok {
		return nil, fmt.Errorf("codec: %w: unknown video codec %q", errs.ErrConfig, codecName)
	}
	libName, fourcc := pair[0], pair[1]

	args := []string{
		"-v", "error",
		"-f", "rawvideo", "-pix_fmt", "yuv420p",
		"-s", fmt.Sprintf("%dx%d", res.W, res.H),
		"-r", fmt.Sprintf("%d/%d", fpsNum, fpsDen),
		"-i", "pipe:0",
		"-c:v", libName, "-b:v", fmt.Sprintf("%dk", bitrateKbps),
		"-f", "ivf", "pipe:1",
	}
	proc, err := spawn("ffmpeg", args, true)
	if err != nil {
		return nil, err
	}

	e := &ffmpegVideoEncoder{
		proc: proc, res: res, frameDur: uint64(1e9) * uint64(fpsDen) / uint64(fpsNum),
		fourcc: fourcc, frames: make(chan media.Frame, 64),
		readErr: make(chan error, 1), readDone: make(chan struct{}),
	}
	go e.readLoop(codecName)
	return e, nil
}

func (e *ffmpegVideoEncoder) readLoop(codecName string) {
	defer close(e.readDone)
	if _, _, _, err := readIVFHeader(e.proc.stdout); err != nil {
		e.readErr <- err
		return
	}
	var idx uint64
	for {
		data, _, err := readIVFFrame(e.proc.stdout)
		if err == io.EOF {
			close(e.frames)
			return
		}
		if err != nil {
			e.readErr <- err
			close(e.frames)
			return
		}
		var key bool
		switch codecName {
		case "vp8":
			key = vp8KeyFrame(data)
		case "vp9":
			key = vp9KeyFrame(data)
		case "av1":
			key = av1KeyFrame(data)
		}
		if codecName == "av1" && key && e.extraData == nil {
			e.extraData = append([]byte(nil), data...)
		}
		e.frames <- media.Frame{TimestampNs: idx * e.frameDur, Data: data, IsKey: key}
		idx++
	}
}

// Encode writes one raw frame to ffmpeg's stdin and drains whatever
// encoded output is already available without blocking.
func (e *ffmpegVideoEncoder) Encode(img *media.YUVImage, _ uint64) ([]media.Frame, error) {
	if _, err := e.proc.stdin.Write(img.Y); err != nil {
		return nil, fmt.Errorf("codec: %w: write Y: %v", errs.ErrEncode, err)
	}
	if _, err := e.proc.stdin.Write(img.U); err != nil {
		return nil, fmt.Errorf("codec: %w: write U: %v", errs.ErrEncode, err)
	}
	if _, err := e.proc.stdin.Write(img.V); err != nil {
		return nil, fmt.Errorf("codec: %w: write V: %v", errs.ErrEncode, err)
	}
	return e.drainNonBlocking(), nil
}

func (e *ffmpegVideoEncoder) drainNonBlocking() []media.Frame {
	var out []media.Frame
	for {
		select {
		case f, ok := <-e.frames:
			if !ok {
				return out
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

// Flush closes stdin to signal end-of-stream, then drains every
// remaining frame ffmpeg emits before joining the process.
func (e *ffmpegVideoEncoder) Flush() ([]media.Frame, error) {
	if err := e.proc.closeStdin(); err != nil {
		return nil, fmt.Errorf("codec: %w: close stdin: %v", errs.ErrEncode, err)
	}
	var out []media.Frame
	for f := range e.frames {
		out = append(out, f)
	}
	<-e.readDone
	select {
	case err := <-e.readErr:
		return out, err
	default:
	}
	return out, e.proc.wait(errs.ErrEncode)
}

func (e *ffmpegVideoEncoder) ExtraData() []byte { return e.extraData }
func (e *ffmpegVideoEncoder) FourCC() string    { return e.fourcc }
func (e *ffmpegVideoEncoder) Close() error      { return e.proc.wait(errs.ErrEncode) }
