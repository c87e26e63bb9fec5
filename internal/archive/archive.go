// Package archive loads the per-session recording-metadata JSON files
// (spec.md §6.2) that describe each participant archive's path and
// session-relative offsets.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shiguredo/hisui/internal/errs"
)

// Kind distinguishes a regular participant archive from a screen-share
// archive loaded via --screen-capture-metadata (SPEC_FULL.md §3).
type Kind int

const (
	KindParticipant Kind = iota
	KindScreenShare
)

// Item is one archive entry: a single participant's (or screen share's)
// recorded file plus its session-relative live interval in seconds.
type Item struct {
	Path         string  `json:"path"`
	ConnectionID string  `json:"connection_id"`
	StartOffset  float64 `json:"start_time_offset"`
	StopOffset   float64 `json:"stop_time_offset"`
	Kind         Kind    `json:"-"`
}

// Metadata is the top-level recording-metadata document.
type Metadata struct {
	RecordingID string    `json:"recording_id"`
	CreatedAt   string    `json:"created_at"`
	Archives    []Item    `json:"archives"`
}

// Load parses a recording-metadata JSON file from path.
func Load(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, joinIO(err))
	}
	defer f.Close()
	return decode(f, path)
}

// LoadScreenCapture parses an optional second metadata file whose
// archives are tagged KindScreenShare so the source catalog can carry
// them alongside ordinary participant archives (SPEC_FULL.md §3,
// --screen-capture-metadata). connectionID overrides each entry's
// connection_id when non-empty, matching
// --screen-capture-connection-id's documented purpose of pinning a
// single screen-share stream to one id regardless of what the metadata
// file itself recorded.
func LoadScreenCapture(path, connectionID string) (*Metadata, error) {
	md, err := Load(path)
	if err != nil {
		return nil, err
	}
	for i := range md.Archives {
		md.Archives[i].Kind = KindScreenShare
		if connectionID != "" {
			md.Archives[i].ConnectionID = connectionID
		}
	}
	return md, nil
}

func decode(r io.Reader, path string) (*Metadata, error) {
	var md Metadata
	if err := json.NewDecoder(r).Decode(&md); err != nil {
		return nil, fmt.Errorf("archive: parse %s: %w", path, joinConfig(err))
	}
	if md.RecordingID == "" {
		return nil, fmt.Errorf("archive: %s: %w: missing recording_id", path, errs.ErrConfig)
	}
	for i, a := range md.Archives {
		if a.Path == "" {
			return nil, fmt.Errorf("archive: %s: entry %d: %w: missing path", path, i, errs.ErrConfig)
		}
		if a.ConnectionID == "" {
			return nil, fmt.Errorf("archive: %s: entry %d: %w: missing connection_id", path, i, errs.ErrConfig)
		}
		if a.StopOffset <= a.StartOffset {
			return nil, fmt.Errorf("archive: %s: entry %d (%s): %w: stop_time_offset %v <= start_time_offset %v",
				path, i, a.ConnectionID, errs.ErrConfig, a.StopOffset, a.StartOffset)
		}
	}
	return &md, nil
}

func joinIO(err error) error    { return fmt.Errorf("%w: %v", errs.ErrIO, err) }
func joinConfig(err error) error { return fmt.Errorf("%w: %v", errs.ErrConfig, err) }
