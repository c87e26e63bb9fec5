package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/source"
)

// VideoDecoder streams decoded I420 frames off an ffmpeg `rawvideo`
// pipe and implements source.VideoDecoder's "greatest frame whose
// timestamp is <= t_ns, else black" contract lazily: decode is driven
// forward by GetImage calls, never ahead of what has been asked for.
type VideoDecoder struct {
	proc      *process
	res       media.Resolution
	frameSize int
	frameDur  uint64 // ns per decoded frame, from the probed frame rate

	reporter     source.Reporter
	connectionID string

	nextFrameIdx uint64 // index of the next frame to read off the pipe
	cur          *media.YUVImage
	curTs        uint64
	eof          bool
}

var _ source.VideoDecoder = (*VideoDecoder)(nil)

// OpenVideoDecoder probes path's video stream and starts an ffmpeg
// process piping raw I420 frames at the source's own size rounded down
// to a multiple of 4; maxRes is used only when that rounding fails. The
// black frame GetImage returns has this same decoder resolution, not
// maxRes.
func OpenVideoDecoder(path string, maxRes media.Resolution, reporter source.Reporter, connectionID string) (*VideoDecoder, error) {
	info, err := probeStream(path, "v")
	if err != nil {
		return nil, err
	}
	if info.codecName == "" {
		return nil, fmt.Errorf("codec: %w: %s: no video stream", errs.ErrDecode, path)
	}

	res, err := media.RoundDown(uint32(info.width), uint32(info.height))
	if err != nil {
		res = maxRes
	}

	args := []string{
		"-v", "error", "-i", path,
		"-vf", fmt.Sprintf("scale=%d:%d", res.W, res.H),
		"-pix_fmt", "yuv420p",
		"-f", "rawvideo",
		"-",
	}
	proc, err := spawn("ffmpeg", args, false)
	if err != nil {
		return nil, err
	}

	frameDur := uint64(1e9 / info.fps())
	return &VideoDecoder{
		proc: proc, res: res, frameSize: res.FrameSize(), frameDur: frameDur,
		reporter: reporter, connectionID: connectionID,
	}, nil
}

// GetImage implements source.VideoDecoder.
func (d *VideoDecoder) GetImage(tNs uint64) (*media.YUVImage, error) {
	wantIdx := tNs / d.frameDur
	for !d.eof && d.nextFrameIdx <= wantIdx {
		img, err := d.readFrame()
		if err != nil {
			return nil, err
		}
		if img == nil {
			d.eof = true
			break
		}
		d.cur = img
		d.curTs = d.nextFrameIdx * d.frameDur
		d.nextFrameIdx++
	}
	if d.cur == nil || (d.eof && wantIdx >= d.nextFrameIdx) {
		black := media.NewYUVImage(d.res)
		black.Black()
		return black, nil
	}
	return d.cur, nil
}

func (d *VideoDecoder) readFrame() (*media.YUVImage, error) {
	buf := make([]byte, d.frameSize)
	_, err := io.ReadFull(d.proc.stdout, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("codec: %w: read frame: %v", errs.ErrDecode, err)
	}

	img := media.NewYUVImage(d.res)
	ySize := int(d.res.W) * int(d.res.H)
	cSize := (int(d.res.W) / 2) * (int(d.res.H) / 2)
	copy(img.Y, buf[:ySize])
	copy(img.U, buf[ySize:ySize+cSize])
	copy(img.V, buf[ySize+cSize:ySize+2*cSize])
	return img, nil
}

// Close terminates the ffmpeg process and joins it.
func (d *VideoDecoder) Close() error {
	return d.proc.wait(errs.ErrDecode)
}
