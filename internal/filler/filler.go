// Package filler provides the canonical black-frame/silence substitute
// used whenever no source is live at a given output tick (spec.md §4's
// "Black-frame/silence provider").
package filler

import "github.com/shiguredo/hisui/internal/media"

// Video returns a cached canonical black YUV image at res, reused across
// calls — callers never mutate the image they get back, matching the
// same "owned scratch buffer" contract as scaler.PreserveAspect.Scale.
type Video struct {
	black *media.YUVImage
}

// NewVideo builds a filler targeting res.
func NewVideo(res media.Resolution) *Video {
	img := media.NewYUVImage(res)
	img.Black()
	return &Video{black: img}
}

// Frame returns the canonical black frame.
func (v *Video) Frame() *media.YUVImage { return v.black }

// Audio returns a fresh zero PCM block of durationSamples per channel on
// every call — unlike Video, each call returns a distinct slice rather
// than a shared scratch buffer, so a caller may keep or modify the block
// it gets.
type Audio struct {
	channels int
}

// NewAudio builds a filler that emits silent blocks with the given
// channel count (spec.md §3: "PCM is always at 48000 Hz, mono or stereo
// as configured").
func NewAudio(channels int) *Audio {
	return &Audio{channels: channels}
}

// Block returns samplesPerChannel samples of silence per channel.
func (a *Audio) Block(samplesPerChannel int) *media.PCMBlock {
	return media.NewSilentPCMBlock(samplesPerChannel, a.channels)
}
