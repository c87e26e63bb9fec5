// Package webm implements internal/container.Container by writing a
// single-segment WebM file with ebml-go, grounded on
// babelcloud-gbox/packages/cli/internal/device_connect/transport/stream's
// WebMMuxer (same library, same "build the SimpleBlockWriter once both
// track descriptions are known, write SimpleBlocks by timestamp"
// shape), adapted for spec.md §6.4's batch composition output instead
// of a live mixed stream.
package webm

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"

	"github.com/shiguredo/hisui/internal/container"
	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/media"
)

// videoCodecIDs maps the FourCC internal/codec.VideoEncoder reports to
// the Matroska/WebM CodecID string (spec.md §6.4: "VP8/VP9/AV1
// identified by FourCC").
var videoCodecIDs = map[string]string{
	"VP80": "V_VP8",
	"VP90": "V_VP9",
	"AV01": "V_AV1",
}

// Writer is a Container writing one WebM segment to w. Tracks are
// described via SetVideoTrack/SetAudioTrack before the first
// AppendXFrame call; the underlying ebml-go SimpleBlockWriter is built
// lazily on first use since it needs every track's description upfront.
type Writer struct {
	log *slog.Logger
	w   io.WriteCloser

	videoInfo *container.VideoTrackInfo
	audioInfo *container.AudioTrackInfo

	videoWriter webm.BlockWriteCloser
	audioWriter webm.BlockWriteCloser
	opened      bool
}

var _ container.Container = (*Writer)(nil)

// New builds a Writer over w, which New takes ownership of: Finalize
// and CleanUp both close it.
func New(w io.WriteCloser) *Writer {
	return &Writer{log: slog.With("component", "container/webm"), w: w}
}

// SetVideoTrack implements container.Container.
func (m *Writer) SetVideoTrack(info container.VideoTrackInfo) error {
	m.videoInfo = &info
	return nil
}

// SetAudioTrack implements container.Container.
func (m *Writer) SetAudioTrack(info container.AudioTrackInfo) error {
	m.audioInfo = &info
	return nil
}

func (m *Writer) ensureOpen() error {
	if m.opened {
		return nil
	}
	m.opened = true

	var entries []webm.TrackEntry
	if m.videoInfo != nil {
		codecID, ok := videoCodecIDs[m.videoInfo.FourCC]
		if !ok {
			return fmt.Errorf("container/webm: %w: unsupported video FourCC %q", errs.ErrConfig, m.videoInfo.FourCC)
		}
		entries = append(entries, webm.TrackEntry{
			Name:            "Video",
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         codecID,
			TrackType:       1,
			DefaultDuration: 33333333,
			CodecPrivate:    m.videoInfo.ExtraData,
			Video: &webm.Video{
				PixelWidth:  uint64(m.videoInfo.Width),
				PixelHeight: uint64(m.videoInfo.Height),
			},
		})
	}
	if m.audioInfo != nil {
		entries = append(entries, webm.TrackEntry{
			Name:            "Audio",
			TrackNumber:     uint64(len(entries) + 1),
			TrackUID:        uint64(len(entries) + 1),
			CodecID:         "A_OPUS",
			TrackType:       2,
			DefaultDuration: 20000000,
			CodecDelay:      uint64(m.audioInfo.PreSkip) * 1_000_000_000 / uint64(m.audioInfo.SampleRate),
			Audio: &webm.Audio{
				SamplingFrequency: float64(m.audioInfo.SampleRate),
				Channels:          uint64(m.audioInfo.Channels),
			},
		})
	}
	if len(entries) == 0 {
		return fmt.Errorf("container/webm: %w: no tracks configured", errs.ErrSetup)
	}

	writers, err := webm.NewSimpleBlockWriter(m.w, entries, mkvcore.WithOnFatalHandler(func(err error) {
		m.log.Error("webm writer fatal error", "error", err)
	}))
	if err != nil {
		return fmt.Errorf("container/webm: %w: %v", errs.ErrSetup, err)
	}

	i := 0
	if m.videoInfo != nil {
		m.videoWriter = writers[i]
		i++
	}
	if m.audioInfo != nil {
		m.audioWriter = writers[i]
	}
	return nil
}

// AppendVideoFrame implements container.Container.
func (m *Writer) AppendVideoFrame(f media.Frame) error {
	if err := m.ensureOpen(); err != nil {
		return err
	}
	if m.videoWriter == nil {
		return fmt.Errorf("container/webm: %w: no video track configured", errs.ErrLogic)
	}
	if _, err := m.videoWriter.Write(f.IsKey, int64(f.TimestampNs), f.Data); err != nil {
		return fmt.Errorf("container/webm: %w: write video block: %v", errs.ErrMux, err)
	}
	return nil
}

// AppendAudioFrame implements container.Container.
func (m *Writer) AppendAudioFrame(f media.Frame) error {
	if err := m.ensureOpen(); err != nil {
		return err
	}
	if m.audioWriter == nil {
		return fmt.Errorf("container/webm: %w: no audio track configured", errs.ErrLogic)
	}
	if _, err := m.audioWriter.Write(true, int64(f.TimestampNs), f.Data); err != nil {
		return fmt.Errorf("container/webm: %w: write audio block: %v", errs.ErrMux, err)
	}
	return nil
}

// Finalize implements container.Container.
func (m *Writer) Finalize() error {
	var firstErr error
	if m.videoWriter != nil {
		if err := m.videoWriter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.audioWriter != nil {
		if err := m.audioWriter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.w.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("container/webm: %w: finalize: %v", errs.ErrMux, firstErr)
	}
	return nil
}

// CleanUp implements container.Container, tolerating a writer that was
// never opened or already closed (spec.md §7's "guarded teardown that
// tolerates already-closed state").
func (m *Writer) CleanUp() error {
	if m.videoWriter != nil {
		_ = m.videoWriter.Close()
	}
	if m.audioWriter != nil {
		_ = m.audioWriter.Close()
	}
	return m.w.Close()
}
