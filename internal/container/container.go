// Package container defines the Container capability spec.md §1 scopes
// out as an external collaborator: init, set audio/video track, append
// encoded frames, finalize. internal/container/webm and
// internal/container/mp4 provide the two concrete implementations
// spec.md §6.1's `format` field selects between.
package container

import "github.com/shiguredo/hisui/internal/media"

// VideoTrackInfo describes the composed video track as the encoder
// reports it, carrying whatever the container needs to build its track
// entry (spec.md §9's "FourCC: 32-bit codec identifier... a 4-byte AV1
// config blob when AV1 is chosen").
type VideoTrackInfo struct {
	FourCC    string
	Width     uint32
	Height    uint32
	ExtraData []byte // SPS+PPS for H.264, a config OBU for AV1, nil for VP8/VP9
}

// AudioTrackInfo describes the mixed Opus track.
type AudioTrackInfo struct {
	SampleRate int
	Channels   int
	PreSkip    int // spec.md §9's "Pre-skip", passed to the container as codec delay
}

// Container is the capability the muxer loop drives (spec.md §1).
type Container interface {
	SetVideoTrack(info VideoTrackInfo) error
	SetAudioTrack(info AudioTrackInfo) error
	AppendVideoFrame(f media.Frame) error
	AppendAudioFrame(f media.Frame) error
	Finalize() error
	// CleanUp releases any resource (temp files, open handles) without
	// attempting to produce a valid output, for the muxer's error path
	// (spec.md §5's "attempts container.cleanUp(), then propagates the
	// error").
	CleanUp() error
}
