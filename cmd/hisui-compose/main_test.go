package main

import (
	"errors"
	"testing"

	"github.com/shiguredo/hisui/internal/errs"
)

func TestParseFrameRate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		num, den int
		wantErr  bool
	}{
		{in: "25/1", num: 25, den: 1},
		{in: "30000/1001", num: 30000, den: 1001},
		{in: "25", wantErr: true},
		{in: "0/1", wantErr: true},
		{in: "25/0", wantErr: true},
		{in: "a/b", wantErr: true},
	}

	for _, c := range cases {
		num, den, err := parseFrameRate(c.in)
		if c.wantErr {
			if !errors.Is(err, errs.ErrConfig) {
				t.Errorf("parseFrameRate(%q): got err %v, want ErrConfig", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseFrameRate(%q): unexpected error %v", c.in, err)
			continue
		}
		if num != c.num || den != c.den {
			t.Errorf("parseFrameRate(%q) = %d/%d, want %d/%d", c.in, num, den, c.num, c.den)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	if parseLogLevel("debug") >= parseLogLevel("info") {
		t.Fatalf("debug should be a lower level than info")
	}
	if parseLogLevel("warn") <= parseLogLevel("info") {
		t.Fatalf("warn should be a higher level than info")
	}
	if parseLogLevel("bogus") != parseLogLevel("info") {
		t.Fatalf("unknown level should fall back to info")
	}
}

func TestToEngineOptionsRequiresMetadataOrLayout(t *testing.T) {
	t.Parallel()

	f := &flags{outContainer: "webm", videoFrameRate: "25/1"}
	_, err := f.toEngineOptions()
	if !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("toEngineOptions: got %v, want ErrConfig", err)
	}
}

func TestToEngineOptionsTranslatesFlags(t *testing.T) {
	t.Parallel()

	f := &flags{
		metadataPath:   "meta.json",
		outContainer:   "mp4",
		mp4Muxer:       "faststart",
		outVideoCodec:  "h264",
		h264Encoder:    "onevpl",
		videoBitrate:   500,
		videoFrameRate: "30/1",
		audioOnly:      true,
	}

	opts, err := f.toEngineOptions()
	if err != nil {
		t.Fatalf("toEngineOptions: %v", err)
	}
	if opts.MetadataPath != "meta.json" || opts.OutContainer != "mp4" || opts.MP4Muxer != "faststart" {
		t.Fatalf("got %+v", opts)
	}
	if opts.OutVideoCodec != "h264" || opts.H264Encoder != "onevpl" || opts.OutVideoBitrateKbps != 500 {
		t.Fatalf("got %+v", opts)
	}
	if opts.FPSNum != 30 || opts.FPSDen != 1 || !opts.AudioOnly {
		t.Fatalf("got %+v", opts)
	}
}

func TestNewRootCmdVideoCodecEnginesSkipsMetadataRequirement(t *testing.T) {
	t.Parallel()

	f := &flags{}
	cmd := newRootCmd(f)
	cmd.SetArgs([]string{"--video-codec-engines"})
	cmd.SetOut(new(noopWriter))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
