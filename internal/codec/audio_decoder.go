package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/media"
)

const (
	sampleRate          = 48000
	samplesPerBlock20ms = 960
)

// AudioDecoder streams 20ms PCM blocks off an ffmpeg `s16le` pipe,
// implementing source.AudioDecoder's sequential read contract.
type AudioDecoder struct {
	proc     *process
	channels int
	blockLen int // bytes per 20ms block
	eof      bool
}

// OpenAudioDecoder probes path's audio stream and starts ffmpeg
// resampling it to 48kHz signed 16-bit PCM (spec.md §3: "PCM is always
// at 48000 Hz, mono or stereo as configured").
func OpenAudioDecoder(path string, channels int) (*AudioDecoder, error) {
	info, err := probeStream(path, "a")
	if err != nil {
		return nil, err
	}
	if info.codecName == "" {
		return nil, fmt.Errorf("codec: %w: %s: no audio stream", errs.ErrDecode, path)
	}
	if channels == 0 {
		channels = info.channels
	}
	if channels == 0 {
		channels = 1
	}

	args := []string{
		"-v", "error", "-i", path,
		"-f", "s16le", "-ar", fmt.Sprint(sampleRate), "-ac", fmt.Sprint(channels),
		"-",
	}
	proc, err := spawn("ffmpeg", args, false)
	if err != nil {
		return nil, err
	}

	return &AudioDecoder{
		proc: proc, channels: channels,
		blockLen: samplesPerBlock20ms * channels * 2,
	}, nil
}

// ReadBlock implements source.AudioDecoder.
func (d *AudioDecoder) ReadBlock() (*media.PCMBlock, bool, error) {
	if d.eof {
		return nil, false, nil
	}
	buf := make([]byte, d.blockLen)
	n, err := io.ReadFull(d.proc.stdout, buf)
	if errors.Is(err, io.EOF) {
		d.eof = true
		return nil, false, nil
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// A short final read still carries a partial block of real
		// samples; zero-pad it rather than discarding it.
		d.eof = true
		if n == 0 {
			return nil, false, nil
		}
	} else if err != nil {
		return nil, false, fmt.Errorf("codec: %w: read block: %v", errs.ErrDecode, err)
	}

	samples := make([]int16, samplesPerBlock20ms*d.channels)
	for i := range samples {
		off := i * 2
		if off+1 < n {
			samples[i] = int16(binary.LittleEndian.Uint16(buf[off : off+2]))
		}
	}
	return &media.PCMBlock{Samples: samples, Channels: d.channels}, true, nil
}

// Close terminates the ffmpeg process and joins it.
func (d *AudioDecoder) Close() error {
	return d.proc.wait(errs.ErrDecode)
}
