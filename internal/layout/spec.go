// Package layout compiles a declarative layout description plus a set of
// source intervals into a frame-by-frame schedule: which cell shows which
// source at every output tick (spec.md §4.2).
package layout

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/media"
)

// Reuse selects how a freed cell is matched to a newly entering source
// (spec.md's Region.reuse, §3).
type Reuse int

const (
	ReuseShowOldest Reuse = iota // default
	ReuseShowNewest
	ReuseNone
)

func parseReuse(s string) (Reuse, error) {
	switch s {
	case "", "show_oldest":
		return ReuseShowOldest, nil
	case "show_newest":
		return ReuseShowNewest, nil
	case "none":
		return ReuseNone, nil
	default:
		return 0, fmt.Errorf("%w: unknown reuse policy %q", errs.ErrConfig, s)
	}
}

// RegionSpec is one entry of the layout JSON's video_layout object
// (spec.md §6.1).
type RegionSpec struct {
	Name         string
	XPos         int      `json:"x_pos"`
	YPos         int      `json:"y_pos"`
	ZPos         int64    `json:"z_pos"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	MaxColumns   int      `json:"max_columns"`
	MaxRows      int      `json:"max_rows"`
	CellsExcluded []int   `json:"cells_excluded"`
	Reuse        string   `json:"reuse"`
	VideoSources []string `json:"video_sources"`
	// VideoSourcesExcluded is declared but unused (spec.md §6.1, reserved).
	VideoSourcesExcluded []string `json:"video_sources_excluded"`
}

// Spec is the parsed top-level layout JSON document (spec.md §6.1).
type Spec struct {
	Format     string                `json:"format"`
	Bitrate    int                   `json:"bitrate"`
	ResolutionStr string             `json:"resolution"`
	Trim       *bool                 `json:"trim"`
	AudioSources []string            `json:"audio_sources"`
	// AudioSourcesExcluded is declared but unused (spec.md §6.1, reserved).
	AudioSourcesExcluded []string     `json:"audio_sources_excluded"`
	VideoLayout map[string]RegionSpec `json:"video_layout"`

	// InMetadataFilename lets --layout mode embed the session metadata
	// path instead of supplying -f on the command line (spec.md §6.3's
	// "in this mode -f is supplied inside the layout"; field name and
	// out_filename derivation resolved per spec.md §9's Open Question:
	// both default from the metadata path's stem, not the layout path's).
	InMetadataFilename string `json:"in_metadata_filename"`

	resolution media.Resolution
	trim       bool
	regions    []*RegionSpec // stable order: sorted by ZPos ascending
}

// TrimEnabled reports the effective trim flag, defaulting to true per
// spec.md §6.1.
func (s *Spec) TrimEnabled() bool { return s.trim }

// Resolution returns the resolution after rounding down to a multiple of
// 4 (spec.md §3), computed by validate during Parse.
func (s *Spec) Resolution() media.Resolution { return s.resolution }

// Regions returns the parsed regions sorted by ascending z-index (spec.md
// §3 "regions are sorted globally by z_index ascending before
// composition").
func (s *Spec) Regions() []*RegionSpec { return s.regions }

// ConnectionIDLoader resolves the archive-metadata-file paths named in
// audio_sources/video_sources (spec.md §6.1) into the connection ids they
// contain. Each path may itself hold one or many archive entries
// (spec.md §6.2's Metadata.Archives), so the result is a flattened list.
// Injected by internal/engine so this package never touches the
// filesystem directly.
type ConnectionIDLoader func(path string) ([]string, error)

// ResolveSources replaces every path entry in AudioSources and each
// region's VideoSources with the connection ids it resolves to, via
// load. Call once after Parse and before Compile.
func (s *Spec) ResolveSources(load ConnectionIDLoader) error {
	resolved, err := resolvePaths(s.AudioSources, load)
	if err != nil {
		return fmt.Errorf("layout: audio_sources: %w", err)
	}
	s.AudioSources = resolved

	for _, r := range s.regions {
		resolved, err := resolvePaths(r.VideoSources, load)
		if err != nil {
			return fmt.Errorf("layout: region %q: video_sources: %w", r.Name, err)
		}
		r.VideoSources = resolved
		s.VideoLayout[r.Name] = *r
	}
	return nil
}

func resolvePaths(paths []string, load ConnectionIDLoader) ([]string, error) {
	var out []string
	for _, p := range paths {
		ids, err := load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

// UseAllConnections fills AudioSources and every region's VideoSources
// with every connection id in ids when they were left empty — the
// implicit behavior of the default single-region layout built by
// DefaultSingleCell (spec.md scenario 1: a layout-less `-f` invocation
// composes every archive in the metadata file).
func (s *Spec) UseAllConnections(ids []string) {
	if len(s.AudioSources) == 0 {
		s.AudioSources = append([]string{}, ids...)
	}
	for _, r := range s.regions {
		if len(r.VideoSources) == 0 {
			r.VideoSources = append([]string{}, ids...)
			s.VideoLayout[r.Name] = *r
		}
	}
}

// Parse reads and validates a layout JSON document from path.
func Parse(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("layout: open %s: %w: %v", path, errs.ErrIO, err)
	}
	defer f.Close()
	return parseFrom(f, path)
}

func parseFrom(r io.Reader, path string) (*Spec, error) {
	var s Spec
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("layout: parse %s: %w: %v", path, errs.ErrConfig, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("layout: %s: %w", path, err)
	}
	return &s, nil
}

// DefaultSingleCell builds the implicit layout used when compose is run
// with -f and no --layout: one full-frame region containing every
// archive in the metadata file, grid auto-sized (spec.md's "default
// single-cell grid" scenario 1, generalized to N sources).
func DefaultSingleCell(resolution string, trim bool) *Spec {
	s := &Spec{
		Format:     "webm",
		ResolutionStr: resolution,
		Trim:       &trim,
		VideoLayout: map[string]RegionSpec{
			"main": {
				Name:   "main",
				Width:  0, Height: 0, // filled from top-level resolution
				Reuse:  "show_oldest",
			},
		},
	}
	_ = s.validate()
	return s
}

func (s *Spec) validate() error {
	if s.Format == "" {
		s.Format = "webm"
	}
	if s.Format != "webm" && s.Format != "mp4" {
		return fmt.Errorf("%w: format must be \"webm\" or \"mp4\", got %q", errs.ErrConfig, s.Format)
	}

	if s.ResolutionStr == "" {
		return fmt.Errorf("%w: resolution is required", errs.ErrConfig)
	}
	w, h, err := parseResolution(s.ResolutionStr)
	if err != nil {
		return err
	}
	res, err := media.RoundDown(w, h)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConfig, err)
	}
	s.resolution = res

	if s.Trim == nil {
		s.trim = true
	} else {
		s.trim = *s.Trim
	}

	if s.Bitrate < 0 {
		return fmt.Errorf("%w: bitrate must be >= 0", errs.ErrConfig)
	}
	if s.Bitrate == 0 {
		s.Bitrate = AutoBitrate(res)
	}

	names := make([]string, 0, len(s.VideoLayout))
	for name, region := range s.VideoLayout {
		region.Name = name
		if _, err := parseReuse(region.Reuse); err != nil {
			return fmt.Errorf("region %q: %w", name, err)
		}
		if region.MaxColumns < 0 || region.MaxRows < 0 {
			return fmt.Errorf("%w: region %q: max_columns/max_rows must be >= 0", errs.ErrConfig, name)
		}
		sort.Ints(region.CellsExcluded)
		s.VideoLayout[name] = region
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := s.VideoLayout[names[i]], s.VideoLayout[names[j]]
		if a.ZPos != b.ZPos {
			return a.ZPos < b.ZPos
		}
		return names[i] < names[j]
	})
	s.regions = make([]*RegionSpec, 0, len(names))
	for _, n := range names {
		r := s.VideoLayout[n]
		s.regions = append(s.regions, &r)
	}
	return nil
}

// AutoBitrate implements spec.md §6.1's default: max(200, w*h/300) kbps.
func AutoBitrate(res media.Resolution) int {
	b := int(res.W) * int(res.H) / 300
	if b < 200 {
		return 200
	}
	return b
}

func parseResolution(s string) (w, h uint32, err error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: resolution %q must be \"<w>x<h>\"", errs.ErrConfig, s)
	}
	wi, err1 := strconv.Atoi(parts[0])
	hi, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || wi <= 0 || hi <= 0 {
		return 0, 0, fmt.Errorf("%w: resolution %q must be \"<w>x<h>\" with positive integers", errs.ErrConfig, s)
	}
	return uint32(wi), uint32(hi), nil
}
