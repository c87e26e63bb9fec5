// Package source holds the catalog of decodable archives that feed the
// composition pipeline: one Source per participant audio or video track,
// each carrying its session-relative live interval and a Decoder capable
// of producing frames at an arbitrary offset (spec.md §4.3).
package source

import (
	"fmt"
	"time"

	"github.com/shiguredo/hisui/internal/archive"
	"github.com/shiguredo/hisui/internal/interval"
	"github.com/shiguredo/hisui/internal/media"
)

// Kind distinguishes an audio Source from a video Source.
type Kind int

const (
	Video Kind = iota
	Audio
)

func (k Kind) String() string {
	if k == Video {
		return "video"
	}
	return "audio"
}

// ResolutionChange is reported by a VideoDecoder when a decoded frame's
// dimensions differ from the previous frame it decoded for the same
// source (SPEC_FULL.md §3, surfaced later in a success report).
type ResolutionChange struct {
	TimestampNs uint64
	Width       uint32
	Height      uint32
}

// Reporter receives diagnostics a Decoder discovers while decoding, for
// later inclusion in a success/failure report (spec.md §6.5).
type Reporter interface {
	ReportResolutionChange(connectionID string, change ResolutionChange)
}

// VideoDecoder produces the frame whose decode timestamp is the greatest
// one <= tNs, returning a black frame when tNs falls outside the
// source's live span or the underlying media ended early.
type VideoDecoder interface {
	GetImage(tNs uint64) (*media.YUVImage, error)
	Close() error
}

// AudioDecoder returns successive 20ms PCM blocks, or ok=false at EOF.
type AudioDecoder interface {
	ReadBlock() (block *media.PCMBlock, ok bool, err error)
	Close() error
}

// Source is one entry in the catalog: either a video or an audio track
// decoded from a single archive file.
type Source struct {
	ID           uint64
	Kind         Kind
	Path         string
	ConnectionID string
	ScreenShare  bool
	Interval     interval.Interval // session-relative, nanoseconds

	Video VideoDecoder // non-nil iff Kind == Video
	Audio AudioDecoder // non-nil iff Kind == Audio
}

// secondsToNs converts a float64-seconds offset to integer nanoseconds.
func secondsToNs(s float64) uint64 {
	return uint64(s * float64(time.Second))
}

// DecoderFactory opens the decoders for one archive item. It is supplied
// by internal/codec so this package stays free of any codec/container
// dependency, matching spec.md §1's "the core depends only on a Decoder
// capability".
type DecoderFactory interface {
	OpenVideo(path string) (VideoDecoder, error)
	OpenAudio(path string) (AudioDecoder, error)
}

// Catalog is the full set of audio and video Sources loaded for one
// composition job.
type Catalog struct {
	Sources []*Source
}

// Build opens a VideoDecoder and an AudioDecoder for every archive item
// that has the corresponding media (an item may be video-only,
// audio-only, or both — spec.md's ArchiveItem does not carry explicit
// audio/video flags, so both decoders are opened and a Source is kept
// whenever its decoder opens without error; open errors are dropped
// silently and Build itself never fails; callers that already
// know an item is audio-only or video-only should filter `items` first).
func Build(items []archive.Item, df DecoderFactory, wantVideo, wantAudio bool) (*Catalog, error) {
	cat := &Catalog{}
	var nextID uint64
	for _, item := range items {
		iv := interval.New(secondsToNs(item.StartOffset), secondsToNs(item.StopOffset))

		if wantVideo {
			dec, err := df.OpenVideo(item.Path)
			if err == nil && dec != nil {
				nextID++
				cat.Sources = append(cat.Sources, &Source{
					ID: nextID, Kind: Video, Path: item.Path,
					ConnectionID: item.ConnectionID,
					ScreenShare:  item.Kind == archive.KindScreenShare,
					Interval:     iv, Video: dec,
				})
			}
		}
		if wantAudio {
			dec, err := df.OpenAudio(item.Path)
			if err == nil && dec != nil {
				nextID++
				cat.Sources = append(cat.Sources, &Source{
					ID: nextID, Kind: Audio, Path: item.Path,
					ConnectionID: item.ConnectionID,
					ScreenShare:  item.Kind == archive.KindScreenShare,
					Interval:     iv, Audio: dec,
				})
			}
		}
	}
	return cat, nil
}

// ByKind returns the subset of sources of the given kind, in catalog
// order (stable — callers rely on this for deterministic grid placement
// when multiple sources enter at the same timestamp).
func (c *Catalog) ByKind(k Kind) []*Source {
	var out []*Source
	for _, s := range c.Sources {
		if s.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

// ApplyTrim rewrites every source's Interval by subtracting trims
// (spec.md §4.1's "source form" of substract_trim_intervals) and wraps
// each decoder so that GetImage/ReadBlock callers — who only ever see
// post-trim timestamps — have their queries translated back to the
// original pre-trim timeline transparently.
func (c *Catalog) ApplyTrim(trims []interval.Interval) {
	for _, s := range c.Sources {
		pre := s.Interval
		s.Interval = interval.SubtractInterval(pre, trims)
		if s.Video != nil {
			s.Video = &trimmedVideoDecoder{inner: s.Video, trims: trims}
		}
		if s.Audio != nil {
			// Audio decoders are sequential readers advanced in fixed
			// 20ms blocks; they have no "seek to timestamp" operation so
			// trimming only needs to adjust the bookkeeping interval
			// above, not the decoder itself. The audio producer gates
			// each source on this post-trim Interval (see
			// internal/pipeline).
			_ = s.Audio
		}
	}
}

// trimmedVideoDecoder maps a post-trim query timestamp back to the
// pre-trim timeline before delegating.
type trimmedVideoDecoder struct {
	inner VideoDecoder
	trims []interval.Interval
}

func (d *trimmedVideoDecoder) GetImage(tNs uint64) (*media.YUVImage, error) {
	return d.inner.GetImage(untrim(tNs, d.trims))
}

func (d *trimmedVideoDecoder) Close() error { return d.inner.Close() }

// untrim is the inverse of interval.SubtractFromPoint: given a post-trim
// timestamp, re-inserts the length of every trim span that lies at or
// before it.
func untrim(t uint64, trims []interval.Interval) uint64 {
	var added uint64
	for _, tr := range trims {
		if tr.Lo <= t+added {
			added += tr.Duration()
			continue
		}
		break
	}
	return t + added
}

// Validate checks invariants that a well-formed catalog must satisfy.
func (c *Catalog) Validate() error {
	for _, s := range c.Sources {
		if s.Interval.Lo >= s.Interval.Hi {
			return fmt.Errorf("source: %s/%s: empty interval", s.ConnectionID, s.Kind)
		}
	}
	return nil
}
