// Package report serializes the per-run success/failure JSON documents
// spec.md §6.5 describes, grounded on
// zsiec-prism/test/tools/gen-streams's json.MarshalIndent + os.WriteFile
// idiom (the only JSON-file-writing pattern in the teacher repo).
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/source"
)

// InputReport describes one archive entry as it was actually decoded.
type InputReport struct {
	ConnectionID      string                    `json:"connection_id"`
	Path              string                    `json:"path"`
	Kind              string                    `json:"kind"` // "audio" | "video"
	Codec             string                    `json:"codec"`
	DurationNs        uint64                    `json:"duration_ns"`
	ResolutionChanges []source.ResolutionChange `json:"resolution_changes,omitempty"`
}

// Output describes the produced file.
type Output struct {
	Container  string `json:"container"`
	VideoCodec string `json:"video_codec,omitempty"`
	AudioCodec string `json:"audio_codec"`
	DurationNs uint64 `json:"duration_ns"`
	Path       string `json:"path"`
}

// Report is the top-level document written for both outcomes; Error is
// populated only in the failure case.
type Report struct {
	RecordingID string        `json:"recording_id"`
	GeneratedAt string        `json:"generated_at"` // RFC3339 UTC
	Inputs      []InputReport `json:"inputs"`
	Output      *Output       `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	Libraries   []Library     `json:"libraries"`
}

// Library records a third-party dependency's reported version, for the
// "library versions" field spec.md §6.5 requires.
type Library struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Collector implements source.Reporter, accumulating resolution-change
// events per connection ID as decoders discover them, for later folding
// into a Report's Inputs (spec.md §9's "the reporter becomes an optional
// context object ... decoders call it through a trait object when
// present").
type Collector struct {
	mu      sync.Mutex
	changes map[string][]source.ResolutionChange
}

// NewCollector builds an empty Collector.
func NewCollector() *Collector {
	return &Collector{changes: make(map[string][]source.ResolutionChange)}
}

// ReportResolutionChange implements source.Reporter.
func (c *Collector) ReportResolutionChange(connectionID string, change source.ResolutionChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes[connectionID] = append(c.changes[connectionID], change)
}

// ResolutionChanges returns the events recorded for connectionID, or nil.
func (c *Collector) ResolutionChanges(connectionID string) []source.ResolutionChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changes[connectionID]
}

var _ source.Reporter = (*Collector)(nil)

// Write marshals report as indented JSON and saves it to
// dir/<generatedAtUTC>_<recordingID>_<suffix>.json, suffix being
// "success" or "failure" (spec.md §6.5's exact naming scheme). dir must
// already exist; Write does not create it.
func Write(dir string, report *Report, suffix string) error {
	if dir == "" {
		return nil
	}
	if report.GeneratedAt == "" {
		report.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("report: %w: marshal: %v", errs.ErrLogic, err)
	}

	stamp := filenameStamp(report.GeneratedAt)
	name := fmt.Sprintf("%s_%s_%s.json", stamp, sanitizeID(report.RecordingID), suffix)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: %w: write %s: %v", errs.ErrIO, path, err)
	}
	return nil
}

// filenameStamp strips RFC3339's colons, which are legal but awkward in
// filenames on non-Unix filesystems the output might later be copied to.
func filenameStamp(rfc3339 string) string {
	return strings.NewReplacer(":", "", "-", "").Replace(rfc3339)
}

// sanitizeID replaces filesystem-unsafe characters so an operator-chosen
// recording ID can never escape dir via a path separator.
func sanitizeID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return filepath.Base(id)
}
