// Package engine is the top-level orchestrator wiring the source
// catalog, the layout planner, the composition pipeline and a container
// adapter into one composition run (SPEC_FULL.md §0), the Go analogue
// of original_source/src/subcommand_compose.rs's top-level function.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/shiguredo/hisui/internal/archive"
	"github.com/shiguredo/hisui/internal/codec"
	"github.com/shiguredo/hisui/internal/codecengine"
	"github.com/shiguredo/hisui/internal/composer"
	"github.com/shiguredo/hisui/internal/container"
	"github.com/shiguredo/hisui/internal/container/mp4"
	"github.com/shiguredo/hisui/internal/container/webm"
	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/filler"
	"github.com/shiguredo/hisui/internal/layout"
	"github.com/shiguredo/hisui/internal/media"
	"github.com/shiguredo/hisui/internal/pipeline"
	"github.com/shiguredo/hisui/internal/report"
	"github.com/shiguredo/hisui/internal/scaler"
	"github.com/shiguredo/hisui/internal/source"
)

// defaultResolution matches original_source/src/subcommand_compose.rs's
// sample layout's own "1280x720" default; the original carries a TODO
// ("resolution should become optional and be determined dynamically
// from sources when omitted") that remains unimplemented here too.
const defaultResolution = "1280x720"

// Options is the fully-resolved configuration for one composition run,
// assembled by cmd/hisui-compose from its flags (spec.md §6.3).
type Options struct {
	MetadataPath string
	LayoutPath   string

	OutContainer string // "webm" | "mp4"
	MP4Muxer     string // "simple" | "faststart"
	OutPath      string // empty selects the spec.md §6.4 default

	OutVideoCodec       string // "vp8" | "vp9" | "av1" | "h264"
	H264Encoder         string // "openh264" | "onevpl"
	OutVideoBitrateKbps int    // 0 selects layout.AutoBitrate
	FPSNum, FPSDen      int

	AudioOnly bool

	ScreenCaptureMetadataPath string
	ScreenCaptureConnectionID string

	SuccessReportDir string
	FailureReportDir string
	TempDir          string // faststart mdat staging; "" defaults to metadata dir
}

// Engine owns one run's collaborators, constructed once in main and
// passed down (spec.md §9's "explicitly constructed context objects
// passed down at startup" in place of global mutable state).
type Engine struct {
	log      *slog.Logger
	Registry *codecengine.Registry
	JobID    string
}

// New builds an Engine bound to registry, tagging every log line with a
// fresh job id (SPEC_FULL.md §2's "internal job id used in log fields").
func New(registry *codecengine.Registry) *Engine {
	id := uuid.NewString()
	return &Engine{log: slog.With("component", "engine", "job_id", id), Registry: registry, JobID: id}
}

// Run executes one full composition: load catalog, compile the layout,
// drive the pipeline, finalize the container, and return the success
// report. On any failure it returns a non-nil error and a report with
// Error populated, so the caller can write a failure report either way.
func (e *Engine) Run(opts Options) (*report.Report, error) {
	collector := report.NewCollector()

	// --layout without -f: the layout's in_metadata_filename names the
	// metadata file, resolved against the layout file's directory.
	if opts.MetadataPath == "" && opts.LayoutPath != "" {
		spec, err := layout.Parse(opts.LayoutPath)
		if err != nil {
			return failureReport("", err), err
		}
		opts.MetadataPath = resolveRelative(filepath.Dir(opts.LayoutPath), spec.InMetadataFilename)
	}

	items, recordingID, baseDir, err := e.loadItems(opts)
	if err != nil {
		return failureReport(recordingID, err), err
	}

	spec, err := e.buildSpec(opts, items, baseDir)
	if err != nil {
		return failureReport(recordingID, err), err
	}

	outRes := spec.Resolution()
	wantVideo := !opts.AudioOnly
	maxRes := outRes
	if !wantVideo {
		maxRes = media.Resolution{}
	}

	factory := &codec.Factory{MaxRes: maxRes, AudioChannels: 2, Reporter: collector}
	cat, err := source.Build(items, factory, wantVideo, true)
	if err != nil {
		return failureReport(recordingID, err), err
	}
	if err := cat.Validate(); err != nil {
		return failureReport(recordingID, err), err
	}

	compiled, err := layout.Compile(spec, cat, scaler.FilterBox)
	if err != nil {
		return failureReport(recordingID, err), err
	}

	if wantVideo {
		if err := e.Registry.RequireVideoCodec(opts.OutVideoCodec, h264EngineOf(opts)); err != nil {
			return failureReport(recordingID, err), err
		}
	}

	cont, outPath, err := e.buildContainer(opts, baseDir, recordingID)
	if err != nil {
		return failureReport(recordingID, err), err
	}

	audioEnc, err := codec.NewAudioEncoder(2, layout.AutoBitrate(outRes)/4)
	if err != nil {
		return failureReport(recordingID, err), err
	}
	if err := cont.SetAudioTrack(container.AudioTrackInfo{SampleRate: 48000, Channels: 2, PreSkip: audioEnc.PreSkip()}); err != nil {
		return failureReport(recordingID, err), err
	}
	audioProducer := pipeline.NewAudioProducer(compiled.AudioSources, audioEnc, 2, compiled.MaxEndTime)

	var videoProducer pipeline.Producer
	if wantVideo {
		bitrate := opts.OutVideoBitrateKbps
		if bitrate == 0 {
			bitrate = layout.AutoBitrate(outRes)
		}
		videoEnc, err := codec.NewVideoEncoder(opts.OutVideoCodec, opts.H264Encoder, outRes, bitrate, opts.FPSNum, opts.FPSDen)
		if err != nil {
			return failureReport(recordingID, err), err
		}
		if err := cont.SetVideoTrack(container.VideoTrackInfo{FourCC: videoEnc.FourCC(), Width: outRes.W, Height: outRes.H, ExtraData: videoEnc.ExtraData()}); err != nil {
			return failureReport(recordingID, err), err
		}
		regionComposer := composer.NewRegionComposer(filler.NewVideo(outRes))
		frameComposer := &pipeline.RegionFrameComposer{Composer: regionComposer, Regions: compiled.Regions}
		videoProducer = pipeline.NewVideoProducer(frameComposer, videoEnc, outRes, compiled.MaxEndTime, opts.FPSNum, opts.FPSDen)
	} else {
		videoProducer = pipeline.NewNoVideoProducer()
	}

	muxer := pipeline.NewMuxer(cont, audioProducer, videoProducer)
	if err := muxer.Run(); err != nil {
		return failureReport(recordingID, err), err
	}

	rep := &report.Report{
		RecordingID: recordingID,
		Inputs:      inputReports(cat, collector),
		Output: &report.Output{
			Container:  opts.OutContainer,
			VideoCodec: videoCodecName(wantVideo, opts.OutVideoCodec),
			AudioCodec: "opus",
			DurationNs: compiled.MaxEndTime,
			Path:       outPath,
		},
		Libraries: libraryVersions(),
	}
	return rep, nil
}

func videoCodecName(wantVideo bool, codecName string) string {
	if !wantVideo {
		return ""
	}
	return codecName
}

func h264EngineOf(opts Options) string {
	if opts.OutVideoCodec != "h264" {
		return ""
	}
	return opts.H264Encoder
}

// loadItems loads the primary metadata file plus an optional
// screen-capture metadata file (SPEC_FULL.md §3), returning the merged
// item list, the recording id used for report/output naming, and the
// primary metadata file's directory (the default for the output path and
// the faststart temp dir).
func (e *Engine) loadItems(opts Options) (items []archive.Item, recordingID, baseDir string, err error) {
	md, err := archive.Load(opts.MetadataPath)
	if err != nil {
		return nil, "", "", err
	}
	items = append(items, md.Archives...)
	baseDir = filepath.Dir(opts.MetadataPath)
	recordingID = md.RecordingID

	if opts.ScreenCaptureMetadataPath != "" {
		sc, err := archive.LoadScreenCapture(opts.ScreenCaptureMetadataPath, opts.ScreenCaptureConnectionID)
		if err != nil {
			return nil, recordingID, baseDir, err
		}
		items = append(items, sc.Archives...)
	}
	return items, recordingID, baseDir, nil
}

// buildSpec parses --layout when given, else builds the implicit
// single-region layout over every loaded connection id (spec.md
// scenario 1).
func (e *Engine) buildSpec(opts Options, items []archive.Item, baseDir string) (*layout.Spec, error) {
	ids := connectionIDs(items)

	if opts.LayoutPath == "" {
		spec := layout.DefaultSingleCell(defaultResolution, true)
		spec.UseAllConnections(ids)
		return spec, nil
	}

	spec, err := layout.Parse(opts.LayoutPath)
	if err != nil {
		return nil, err
	}
	loader := func(path string) ([]string, error) {
		md, err := archive.Load(resolveRelative(baseDir, path))
		if err != nil {
			return nil, err
		}
		return connectionIDs(md.Archives), nil
	}
	if err := spec.ResolveSources(loader); err != nil {
		return nil, err
	}
	return spec, nil
}

func resolveRelative(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func connectionIDs(items []archive.Item) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if !seen[it.ConnectionID] {
			seen[it.ConnectionID] = true
			out = append(out, it.ConnectionID)
		}
	}
	return out
}

// buildContainer opens the output file and wraps it in the requested
// Container implementation, returning the path actually used (spec.md
// §6.4's default-filename rule when opts.OutPath is empty).
func (e *Engine) buildContainer(opts Options, baseDir, recordingID string) (container.Container, string, error) {
	ext := map[string]string{"webm": ".webm", "mp4": ".mp4"}[opts.OutContainer]
	if opts.AudioOnly {
		ext = map[string]string{"webm": ".weba", "mp4": ".m4a"}[opts.OutContainer]
	}
	if ext == "" {
		return nil, "", fmt.Errorf("engine: %w: unknown out-container %q", errs.ErrConfig, opts.OutContainer)
	}

	outPath := opts.OutPath
	if outPath == "" {
		stem := strings.TrimSuffix(filepath.Base(opts.MetadataPath), filepath.Ext(opts.MetadataPath))
		outPath = filepath.Join(baseDir, stem+ext)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return nil, "", fmt.Errorf("engine: %w: create %s: %v", errs.ErrSetup, outPath, err)
	}

	switch opts.OutContainer {
	case "webm":
		return webm.New(f), outPath, nil
	case "mp4":
		tempDir := opts.TempDir
		if tempDir == "" {
			tempDir = baseDir
		}
		mode := mp4.Simple
		if opts.MP4Muxer == "faststart" {
			mode = mp4.Faststart
		}
		return mp4.New(f, mode, tempDir), outPath, nil
	default:
		f.Close()
		return nil, "", fmt.Errorf("engine: %w: unknown out-container %q", errs.ErrConfig, opts.OutContainer)
	}
}

// inputReports builds one InputReport per catalog Source rather than per
// archive.Item, since a single item commonly yields both an audio and a
// video Source (spec.md §6.5's report lists each decoded track on its
// own line, not each archive file).
func inputReports(cat *source.Catalog, collector *report.Collector) []report.InputReport {
	out := make([]report.InputReport, 0, len(cat.Sources))
	for _, s := range cat.Sources {
		kind := "audio"
		probeKind := "a"
		if s.Kind == source.Video {
			kind = "video"
			probeKind = "v"
		}
		codecName, _ := codec.ProbeCodec(s.Path, probeKind)
		out = append(out, report.InputReport{
			ConnectionID:      s.ConnectionID,
			Path:              s.Path,
			Kind:              kind,
			Codec:             codecName,
			DurationNs:        s.Interval.Duration(),
			ResolutionChanges: collector.ResolutionChanges(s.ConnectionID),
		})
	}
	return out
}

func failureReport(recordingID string, err error) *report.Report {
	return &report.Report{RecordingID: recordingID, Error: err.Error(), Libraries: libraryVersions()}
}

func libraryVersions() []report.Library {
	return []report.Library{
		{Name: "go", Version: runtime.Version()},
		{Name: "ebml-go", Version: "v0.17.1"},
		{Name: "mediacommon/v2", Version: "v2.4.3"},
	}
}
