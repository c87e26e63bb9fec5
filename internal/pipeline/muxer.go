package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shiguredo/hisui/internal/container"
	"github.com/shiguredo/hisui/internal/errs"
)

// Muxer is the single consumer goroutine spec.md §4.4.3 describes: it
// peeks the heads of both producers' queues and always appends the
// frame with the smaller timestamp, finalizing the container once both
// producers report done. Audio and video queue frames already share one
// nanosecond timeline (internal/media.Frame.TimestampNs, spec.md §3), so
// unlike the Rust original there is no timescale_ratio to apply before
// comparing heads — per-track timescale conversion happens once, inside
// Container.AppendAudioFrame/AppendVideoFrame, not in this loop.
type Muxer struct {
	log       *slog.Logger
	Container container.Container
	Audio     *AudioProducer
	Video     Producer
}

// NewMuxer builds a Muxer driving c from audio and video.
func NewMuxer(c container.Container, audio *AudioProducer, video Producer) *Muxer {
	return &Muxer{log: slog.With("component", "muxer"), Container: c, Audio: audio, Video: video}
}

const (
	emptyHeadSleep = 100 * time.Millisecond
	videoOnlySleep = 1 * time.Second
)

// Run implements spec.md §4.4.3 verbatim: spawn both producers, prime
// their queues, then drain by always appending whichever head has the
// smaller timestamp until both are finished and empty.
func (m *Muxer) Run() error {
	audioDone := make(chan struct{})
	go func() { defer close(audioDone); m.Audio.Run() }()
	videoGoroutineDone := make(chan struct{})
	go func() { defer close(videoGoroutineDone); m.Video.Run() }()

	time.Sleep(emptyHeadSleep) // let both producers prime their queues

	videoJoined := false
	videoDone := false

	for {
		if m.Audio.IsFinished() && m.Audio.Queue().Empty() {
			break
		}

		audioHead, ok := m.Audio.Queue().Peek()
		if !ok {
			time.Sleep(emptyHeadSleep)
			continue
		}

		if videoDone {
			m.appendAudio()
			continue
		}

		if m.Video.IsFinished() && m.Video.Queue().Empty() {
			videoDone = true
			if !videoJoined {
				<-videoGoroutineDone
				videoJoined = true
			}
			m.appendAudio()
			continue
		}

		videoHead, ok := m.Video.Queue().Peek()
		if !ok {
			time.Sleep(videoOnlySleep)
			continue
		}

		if videoHead.TimestampNs <= audioHead.TimestampNs {
			m.appendVideo()
		} else {
			m.appendAudio()
		}
	}

	<-audioDone

	if !videoDone {
		for !(m.Video.IsFinished() && m.Video.Queue().Empty()) {
			if _, ok := m.Video.Queue().Peek(); !ok {
				time.Sleep(videoOnlySleep)
				continue
			}
			m.appendVideo()
		}
		if !videoJoined {
			<-videoGoroutineDone
			videoJoined = true
		}
	}

	if err := m.checkErrors(); err != nil {
		if cerr := m.Container.CleanUp(); cerr != nil {
			m.log.Warn("cleanup after producer failure also failed", "error", cerr)
		}
		return err
	}

	if err := m.Container.Finalize(); err != nil {
		return fmt.Errorf("pipeline: %w: finalize: %v", errs.ErrMux, err)
	}
	return nil
}

func (m *Muxer) appendAudio() {
	f, ok := m.Audio.Queue().Pop()
	if !ok {
		return
	}
	if err := m.Container.AppendAudioFrame(f); err != nil {
		m.Audio.setErr(fmt.Errorf("pipeline: %w: append audio: %v", errs.ErrMux, err))
	}
}

func (m *Muxer) appendVideo() {
	f, ok := m.Video.Queue().Pop()
	if !ok {
		return
	}
	if err := m.Container.AppendVideoFrame(f); err != nil {
		wrapped := fmt.Errorf("pipeline: %w: append video: %v", errs.ErrMux, err)
		if vp, ok := m.Video.(*VideoProducer); ok {
			vp.setErr(wrapped)
		} else {
			m.Audio.setErr(wrapped)
		}
	}
}

// checkErrors surfaces the first error reported by either producer,
// matching spec.md §5's "the muxer detects this on the next peek,
// attempts container.cleanUp(), then propagates the error".
func (m *Muxer) checkErrors() error {
	if err := m.Audio.Err(); err != nil {
		return err
	}
	if err := m.Video.Err(); err != nil {
		return err
	}
	return nil
}
