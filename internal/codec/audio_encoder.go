package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/media"
)

// AudioEncoder is the Opus-encoding counterpart of VideoEncoder.
// PreSkip exposes the encoder's reported pre-skip sample count, which
// the container must be told as codec delay (spec.md §4.4.2).
type AudioEncoder interface {
	Encode(block *media.PCMBlock, ptsNs uint64) ([]media.Frame, error)
	Flush() ([]media.Frame, error)
	PreSkip() int
	Close() error
}

// ffmpegAudioEncoder wraps libopus, demuxing ffmpeg's Ogg Opus stdout
// into individual Opus packets off the Ogg page/segment framing (RFC
// 7845/3533) — ffmpeg has no bare "raw Opus packet stream" muxer, so Ogg
// is the lightest container that exposes packet boundaries losslessly.
type ffmpegAudioEncoder struct {
	proc     *process
	channels int
	blockDur uint64 // ns per 20ms block

	frames   chan media.Frame
	readErr  chan error
	readDone chan struct{}
	preSkip  int
	gotHead  chan struct{}
}

var _ AudioEncoder = (*ffmpegAudioEncoder)(nil)

// NewAudioEncoder starts an ffmpeg libopus encode of 48kHz PCM at
// bitrateKbps, channels mono or stereo.
func NewAudioEncoder(channels, bitrateKbps int) (AudioEncoder, error) {
	args := []string{
		"-v", "error",
		"-f", "s16le", "-ar", fmt.Sprint(sampleRate), "-ac", fmt.Sprint(channels),
		"-i", "pipe:0",
		"-c:a", "libopus", "-b:a", fmt.Sprintf("%dk", bitrateKbps),
		"-f", "ogg", "pipe:1",
	}
	proc, err := spawn("ffmpeg", args, true)
	if err != nil {
		return nil, err
	}

	e := &ffmpegAudioEncoder{
		proc: proc, channels: channels, blockDur: 20_000_000,
		frames: make(chan media.Frame, 64), readErr: make(chan error, 1),
		readDone: make(chan struct{}), gotHead: make(chan struct{}),
	}
	go e.readLoop()
	return e, nil
}

func (e *ffmpegAudioEncoder) readLoop() {
	defer close(e.readDone)
	defer close(e.frames)

	r := bufio.NewReaderSize(e.proc.stdout, 64*1024)
	var idx uint64
	headParsed := false
	for {
		page, err := readOggPage(r)
		if err == io.EOF {
			return
		}
		if err != nil {
			e.readErr <- err
			return
		}
		for _, pkt := range page.packets {
			if !headParsed {
				if skip, perr := parseOpusHead(pkt); perr == nil {
					e.preSkip = skip
					headParsed = true
					close(e.gotHead)
					continue
				}
			}
			// OpusTags comment packet: second packet of the stream,
			// also not audio data.
			if len(pkt) >= 8 && string(pkt[0:8]) == "OpusTags" {
				continue
			}
			e.frames <- media.Frame{TimestampNs: idx * e.blockDur, Data: pkt}
			idx++
		}
	}
}

// Encode writes one 20ms PCM block to ffmpeg's stdin and drains any
// already-available encoded packets.
func (e *ffmpegAudioEncoder) Encode(block *media.PCMBlock, _ uint64) ([]media.Frame, error) {
	buf := make([]byte, len(block.Samples)*2)
	for i, s := range block.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	if _, err := e.proc.stdin.Write(buf); err != nil {
		return nil, fmt.Errorf("codec: %w: write pcm: %v", errs.ErrEncode, err)
	}
	return e.drainNonBlocking(), nil
}

func (e *ffmpegAudioEncoder) drainNonBlocking() []media.Frame {
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

// Flush closes stdin and drains every remaining encoded packet.
func (e *ffmpegAudioEncoder) Flush() ([]media.Frame, error) {
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

// PreSkip blocks until the OpusHead identification packet has been
// parsed (it is always the stream's first packet, emitted before any
// audio data ffmpeg produces from the first PCM block written).
func (e *ffmpegAudioEncoder) PreSkip() int {
	<-e.gotHead
	return e.preSkip
}

func (e *ffmpegAudioEncoder) Close() error { return e.proc.wait(errs.ErrEncode) }
