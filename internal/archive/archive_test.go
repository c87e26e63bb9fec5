package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shiguredo/hisui/internal/errs"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, `{
		"recording_id": "rec-1",
		"created_at": "2026-01-01T00:00:00Z",
		"archives": [
			{"path": "a.webm", "connection_id": "a", "start_time_offset": 0, "stop_time_offset": 10},
			{"path": "b.webm", "connection_id": "b", "start_time_offset": 5, "stop_time_offset": 15}
		]
	}`)

	md, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if md.RecordingID != "rec-1" || len(md.Archives) != 2 {
		t.Fatalf("got %+v", md)
	}
}

func TestLoadMissingConnectionID(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, `{
		"recording_id": "rec-1",
		"archives": [{"path": "a.webm", "start_time_offset": 0, "stop_time_offset": 10}]
	}`)

	_, err := Load(path)
	if !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("Load: got %v, want ErrConfig", err)
	}
}

func TestLoadInvertedInterval(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, `{
		"recording_id": "rec-1",
		"archives": [{"path": "a.webm", "connection_id": "a", "start_time_offset": 10, "stop_time_offset": 5}]
	}`)

	_, err := Load(path)
	if !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("Load: got %v, want ErrConfig", err)
	}
}

func TestLoadScreenCaptureTagsKind(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, `{
		"recording_id": "rec-1",
		"archives": [{"path": "s.webm", "connection_id": "orig", "start_time_offset": 0, "stop_time_offset": 10}]
	}`)

	md, err := LoadScreenCapture(path, "screen-1")
	if err != nil {
		t.Fatalf("LoadScreenCapture: %v", err)
	}
	if md.Archives[0].Kind != KindScreenShare {
		t.Fatalf("Kind = %v, want KindScreenShare", md.Archives[0].Kind)
	}
	if md.Archives[0].ConnectionID != "screen-1" {
		t.Fatalf("ConnectionID = %q, want screen-1", md.Archives[0].ConnectionID)
	}
}
