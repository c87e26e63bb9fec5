package codec

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shiguredo/hisui/internal/errs"
)

// probeResult holds the subset of ffprobe's stream info the decoders
// need to plan their read loop.
type probeResult struct {
	codecName  string
	width      int
	height     int
	frameRateN int
	frameRateD int
	sampleRate int
	channels   int
}

// probeStream shells out to ffprobe for one stream kind ("v" or "a") of
// path, grounded on zsiec-prism/test/tools/gen-streams/encode.go's
// probeFrameRate (same flag shape, extended to pull resolution and
// audio format too).
func probeStream(path, kind string) (probeResult, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", kind+":0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,sample_rate,channels",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return probeResult{}, fmt.Errorf("codec: %w: ffprobe %s: %v", errs.ErrSetup, path, err)
	}

	var r probeResult
	for _, line := range strings.Split(string(out), "\n") {
		kv := strings.SplitN(strings.TrimSpace(line), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "codec_name":
			r.codecName = kv[1]
		case "width":
			r.width, _ = strconv.Atoi(kv[1])
		case "height":
			r.height, _ = strconv.Atoi(kv[1])
		case "sample_rate":
			r.sampleRate, _ = strconv.Atoi(kv[1])
		case "channels":
			r.channels, _ = strconv.Atoi(kv[1])
		case "r_frame_rate":
			parts := strings.SplitN(kv[1], "/", 2)
			if len(parts) == 2 {
				r.frameRateN, _ = strconv.Atoi(parts[0])
				r.frameRateD, _ = strconv.Atoi(parts[1])
			}
		}
	}
	if r.frameRateD == 0 {
		r.frameRateN, r.frameRateD = 30, 1
	}
	return r, nil
}

// ProbeCodec reports the codec_name ffprobe finds for path's given
// stream kind ("v" or "a"), or "" if the stream is absent. Exposed for
// internal/report's per-input codec field (spec.md §6.5).
func ProbeCodec(path, kind string) (string, error) {
	r, err := probeStream(path, kind)
	if err != nil {
		return "", err
	}
	return r.codecName, nil
}

func (r probeResult) fps() float64 {
	if r.frameRateD == 0 {
		return 30
	}
	return float64(r.frameRateN) / float64(r.frameRateD)
}
