// Command hisui-compose is the CLI entry point spec.md §6.3 describes:
// it parses flags, builds an internal/engine.Options, runs one
// composition, and writes the success or failure report (spec.md §6.5)
// before exiting 0 or 1 (spec.md §6.3's "exit codes" rule), the Go
// analogue of original_source/src/subcommand_compose.rs's CLI handling
// restructured around the teacher's github.com/spf13/cobra usage
// (_examples/babelcloud-gbox/packages/cli/cmd/root.go's single bound
// *cobra.Command with a flag struct closed over by RunE).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiguredo/hisui/internal/codecengine"
	"github.com/shiguredo/hisui/internal/engine"
	"github.com/shiguredo/hisui/internal/errs"
	"github.com/shiguredo/hisui/internal/report"
)

// version is overridden at release build time via -ldflags, matching
// _examples/zsiec-prism/cmd/prism/main.go's `var version = "dev"`
// pattern (spec.md §6.3's bare `--version` flag).
var version = "dev"

// flags mirrors spec.md §6.3's surface one field per CLI flag, built up
// by cobra and translated into engine.Options in runCompose.
type flags struct {
	metadataPath string
	layoutPath   string

	outContainer string
	mp4Muxer     string
	outPath      string
	mp4TempDir   string

	outVideoCodec  string
	h264Encoder    string
	videoBitrate   int
	videoFrameRate string

	audioOnly                 bool
	screenCaptureMetadata     string
	screenCaptureConnectionID string

	showProgressBar bool
	verbose         bool
	logLevel        string

	successReportDir string
	failureReportDir string

	videoCodecEngines bool
}

func main() {
	os.Exit(run())
}

func run() int {
	f := &flags{}
	root := newRootCmd(f)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

// newRootCmd wires f's fields to cobra flags; RunE's error, if any,
// becomes the process's exit-1 signal (spec.md §6.3's "exit codes: 0 on
// success; 1 on any unrecoverable error").
func newRootCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hisui-compose",
		Short:         "Compose per-participant recorded media archives into one muxed output",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVarP(&f.metadataPath, "file", "f", "", "session archive metadata JSON path")
	cmd.Flags().StringVar(&f.layoutPath, "layout", "", "layout-mode entry point; metadata is supplied inside the layout")
	cmd.Flags().StringVar(&f.outContainer, "out-container", "webm", "webm|mp4")
	cmd.Flags().StringVar(&f.mp4Muxer, "mp4-muxer", "simple", "simple|faststart")
	cmd.Flags().StringVarP(&f.outPath, "out", "o", "", "output file path; defaults to the metadata file's stem")
	cmd.Flags().StringVar(&f.mp4TempDir, "mp4-temp-dir", "", "faststart mdat staging directory; defaults to the metadata file's directory")
	cmd.Flags().StringVar(&f.outVideoCodec, "out-video-codec", "vp8", "vp8|vp9|av1|h264")
	cmd.Flags().StringVar(&f.h264Encoder, "h264-encoder", "openh264", "openh264|onevpl")
	cmd.Flags().IntVar(&f.videoBitrate, "out-video-bit-rate", 0, "kbps; 0 selects the layout's auto bitrate")
	cmd.Flags().StringVar(&f.videoFrameRate, "out-video-frame-rate", "25/1", "num/den")
	cmd.Flags().BoolVar(&f.audioOnly, "audio-only", false, "drop the video track entirely")
	cmd.Flags().StringVar(&f.screenCaptureMetadata, "screen-capture-metadata", "", "additional archive metadata JSON for a screen-capture source")
	cmd.Flags().StringVar(&f.screenCaptureConnectionID, "screen-capture-connection-id", "", "connection id to assign the screen-capture source")
	cmd.Flags().BoolVar(&f.showProgressBar, "show-progress-bar", false, "print a textual progress indicator to stderr while composing")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "shorthand for --log-level debug")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "debug|info|warn|error")
	cmd.Flags().StringVar(&f.successReportDir, "success-report-dir", "", "directory to write a success report JSON into")
	cmd.Flags().StringVar(&f.failureReportDir, "failure-report-dir", "", "directory to write a failure report JSON into")
	cmd.Flags().BoolVar(&f.videoCodecEngines, "video-codec-engines", false, "print available video codec engines and exit")

	cmd.Version = version
	cmd.SetVersionTemplate("hisui-compose {{.Version}}\n")

	return cmd
}

// runCompose is the body the tests in this package exercise directly;
// main only adds process-level os.Exit/signal concerns around it.
func runCompose(ctx context.Context, f *flags) error {
	setupLogging(f)

	registry := codecengine.Probe(ctx)
	defer func() {
		if err := registry.Close(); err != nil {
			slog.Warn("codec engine registry close failed", "error", err)
		}
	}()

	if f.videoCodecEngines {
		printEngines(registry)
		return nil
	}

	opts, err := f.toEngineOptions()
	if err != nil {
		slog.Error("invalid flags", "error", err)
		return err
	}

	var progressDone chan struct{}
	if f.showProgressBar {
		progressDone = startProgressIndicator()
		defer close(progressDone)
	}

	e := engine.New(registry)
	rep, runErr := e.Run(opts)

	if runErr != nil {
		slog.Error("composition failed", "error", runErr)
		if werr := report.Write(f.failureReportDir, rep, "failure"); werr != nil {
			slog.Error("failed to write failure report", "error", werr)
			return werr
		}
		return runErr
	}

	if werr := report.Write(f.successReportDir, rep, "success"); werr != nil {
		slog.Error("failed to write success report", "error", werr)
		return werr
	}

	return nil
}

// toEngineOptions validates and translates CLI flags into
// engine.Options, surfacing malformed enum/flag combinations as
// errs.ErrConfig before any collaborator is constructed (spec.md §7's
// "Config/Setup errors surface from initialization before any producer
// starts").
func (f *flags) toEngineOptions() (engine.Options, error) {
	if f.metadataPath == "" && f.layoutPath == "" {
		return engine.Options{}, fmt.Errorf("hisui-compose: %w: one of -f/--file or --layout is required", errs.ErrConfig)
	}

	num, den, err := parseFrameRate(f.videoFrameRate)
	if err != nil {
		return engine.Options{}, err
	}

	return engine.Options{
		MetadataPath: f.metadataPath,
		LayoutPath:   f.layoutPath,

		OutContainer: f.outContainer,
		MP4Muxer:     f.mp4Muxer,
		OutPath:      f.outPath,

		OutVideoCodec:       f.outVideoCodec,
		H264Encoder:         f.h264Encoder,
		OutVideoBitrateKbps: f.videoBitrate,
		FPSNum:              num,
		FPSDen:              den,

		AudioOnly: f.audioOnly,

		ScreenCaptureMetadataPath: f.screenCaptureMetadata,
		ScreenCaptureConnectionID: f.screenCaptureConnectionID,

		SuccessReportDir: f.successReportDir,
		FailureReportDir: f.failureReportDir,
		TempDir:          f.mp4TempDir,
	}, nil
}

// parseFrameRate parses spec.md §6.3's "<num>/<den>" rational flag
// value.
func parseFrameRate(s string) (num, den int, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("hisui-compose: %w: --out-video-frame-rate must be num/den, got %q", errs.ErrConfig, s)
	}
	num, errN := strconv.Atoi(parts[0])
	den, errD := strconv.Atoi(parts[1])
	if errN != nil || errD != nil || num <= 0 || den <= 0 {
		return 0, 0, fmt.Errorf("hisui-compose: %w: --out-video-frame-rate must be num/den, got %q", errs.ErrConfig, s)
	}
	return num, den, nil
}

// setupLogging installs the process-wide slog handler once, honoring
// --verbose/--log-level, the teacher's own cmd/prism/main.go style of
// building a single slog.TextHandler over os.Stderr before doing
// anything else.
func setupLogging(f *flags) {
	level := parseLogLevel(f.logLevel)
	if f.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printEngines implements spec.md §6.3's `--video-codec-engines`:
// prints the probed engine table and exits without requiring -f/--layout.
func printEngines(registry *codecengine.Registry) {
	for _, e := range registry.Engines() {
		state := "unavailable"
		if e.Available {
			state = "available"
		}
		fmt.Printf("%-5s %-16s %s\n", e.VideoCodec, e.Name, state)
	}
}

// startProgressIndicator prints an elapsed-time tick to stderr every
// second until the returned channel is closed. internal/pipeline.Muxer
// runs synchronously and exposes no per-frame position hook, so this is
// a coarse "still working" indicator rather than a percentage bar; no
// example repo in the pack imports a progress-bar library, so this
// handful of lines of fmt/time is the justified stdlib rendition of
// spec.md §6.3's `--show-progress-bar`.
func startProgressIndicator() chan struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		n := 0
		for {
			select {
			case <-done:
				fmt.Fprint(os.Stderr, "\n")
				return
			case <-ticker.C:
				n++
				fmt.Fprintf(os.Stderr, "\rcomposing... %ds", n)
			}
		}
	}()
	return done
}
