package pipeline

import (
	"fmt"

	"github.com/shiguredo/hisui/internal/codec"
	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/source"
)

const (
	sampleRate           = 48000
	samplesPerBlock20ms  = 960
	blockDurationNs      = uint64(samplesPerBlock20ms) * 1_000_000_000 / uint64(sampleRate)
)

// AudioProducer runs on its own goroutine (spec.md §4.4.2): it advances
// the composed timeline in fixed 20ms blocks, mixing every source live
// at each block's center timestamp, and feeds the mix to the Opus
// encoder.
//
// Sources carry post-trim intervals (internal/source.Catalog.ApplyTrim
// already ran by the time the pipeline starts), so iterating t over the
// *output* timeline and gating each source on Interval.Contains is
// sufficient: a trim span is by construction a span with no live
// source, so it can never fall inside a single source's own live
// interval and split a block read in two.
type AudioProducer struct {
	status

	Sources    []*source.Source // audio sources, catalog order
	Encoder    codec.AudioEncoder
	Channels   int
	MaxEndTime uint64

	queue *Queue
}

// NewAudioProducer builds an AudioProducer with a fresh output queue.
func NewAudioProducer(sources []*source.Source, enc codec.AudioEncoder, channels int, maxEndTime uint64) *AudioProducer {
	return &AudioProducer{
		Sources: sources, Encoder: enc, Channels: channels, MaxEndTime: maxEndTime,
		queue: NewQueue(audioQueueSoftCap),
	}
}

// Queue implements Producer.
func (p *AudioProducer) Queue() *Queue { return p.queue }

const audioQueueSoftCap = 512

// Run implements spec.md §4.4.2's mixing loop.
func (p *AudioProducer) Run() {
	defer p.setFinished()

	numBlocks := (p.MaxEndTime + blockDurationNs - 1) / blockDurationNs
	for i := uint64(0); i < numBlocks; i++ {
		blockStart := i * blockDurationNs
		center := blockStart + blockDurationNs/2

		mix := make([]int32, samplesPerBlock20ms*p.Channels)
		for _, s := range p.Sources {
			if !s.Interval.Contains(center) {
				continue
			}
			block, ok, err := s.Audio.ReadBlock()
			if err != nil {
				p.setErr(fmt.Errorf("pipeline: audio source %s: %w", s.ConnectionID, err))
				return
			}
			if !ok {
				continue
			}
			accumulate(mix, block, p.Channels)
		}

		block := &media.PCMBlock{Samples: saturate(mix), Channels: p.Channels}
		frames, err := p.Encoder.Encode(block, blockStart)
		if err != nil {
			p.setErr(fmt.Errorf("pipeline: audio encode at t=%d: %w", blockStart, err))
			return
		}
		for _, f := range frames {
			p.queue.Push(f)
		}
	}

	frames, err := p.Encoder.Flush()
	if err != nil {
		p.setErr(fmt.Errorf("pipeline: audio flush: %w", err))
	}
	for _, f := range frames {
		p.queue.Push(f)
	}
}

// PreSkip exposes the encoder's reported Opus pre-skip, the codec delay
// the container's audio track carries (spec.md §4.4.2). internal/engine
// reads it from the encoder directly, not through this method.
func (p *AudioProducer) PreSkip() int { return p.Encoder.PreSkip() }

// accumulate adds block's samples into mix, up-mixing mono into a
// stereo mix (or down-mixing stereo into a mono mix) by duplicating or
// averaging channels as needed so every source contributes regardless
// of its own channel count.
func accumulate(mix []int32, block *media.PCMBlock, outChannels int) {
	n := len(mix) / outChannels
	for i := 0; i < n; i++ {
		for c := 0; c < outChannels; c++ {
			mix[i*outChannels+c] += int32(sampleAt(block, i, c, outChannels))
		}
	}
}

func sampleAt(block *media.PCMBlock, frame, outChan, outChannels int) int16 {
	if block.Channels == outChannels {
		idx := frame*block.Channels + outChan
		if idx < len(block.Samples) {
			return block.Samples[idx]
		}
		return 0
	}
	if block.Channels == 1 {
		idx := frame
		if idx < len(block.Samples) {
			return block.Samples[idx]
		}
		return 0
	}
	// block.Channels == 2, outChannels == 1: average L+R.
	li := frame * block.Channels
	if li+1 < len(block.Samples) {
		return int16((int32(block.Samples[li]) + int32(block.Samples[li+1])) / 2)
	}
	return 0
}

// saturate clamps each accumulated sample into the int16 range (spec.md
// §4.4.2 step 2).
func saturate(mix []int32) []int16 {
	out := make([]int16, len(mix))
	for i, v := range mix {
		switch {
		case v > 32767:
			out[i] = 32767
		case v < -32768:
			out[i] = -32768
		default:
			out[i] = int16(v)
		}
	}
	return out
}

var _ Producer = (*AudioProducer)(nil)
