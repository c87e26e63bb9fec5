// Package codec implements the Decoder/Encoder capabilities spec.md §1
// scopes out as external collaborators, backed by the `ffmpeg`/`ffprobe`
// binaries rather than a cgo codec binding — the pack has no pure-Go
// codec library for any of Opus/VP8/VP9/AV1/H.264, and every exec-based
// ffmpeg usage in the pack (gen-streams/encode.go, sudo-bngz-momo-radio's
// audio/ffmpeg.go) wraps the binary the same way: build an argv, pipe
// stdin/stdout, read the process's own framing off the pipe.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/shiguredo/hisui/internal/errs"
)

// process owns one long-lived ffmpeg subprocess: a stdin writer for raw
// frames in, a buffered stdout reader for the muxed/raw output, and
// captured stderr for error reporting on exit.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *stderrBuf

	mu      sync.Mutex
	waited  bool
	waitErr error
}

type stderrBuf struct {
	mu  sync.Mutex
	buf []byte
}

func (s *stderrBuf) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	if len(s.buf) > 64*1024 {
		s.buf = s.buf[len(s.buf)-64*1024:]
	}
	return len(p), nil
}

func (s *stderrBuf) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.buf)
}

// spawn starts ffmpeg (or any named binary) with args, wiring stdin as a
// pipe when withStdin is true.
func spawn(name string, args []string, withStdin bool) (*process, error) {
	cmd := exec.Command(name, args...)
	errBuf := &stderrBuf{}
	cmd.Stderr = errBuf

	p := &process{cmd: cmd, stderr: errBuf}

	if withStdin {
		in, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("codec: %w: stdin pipe: %v", errs.ErrSetup, err)
		}
		p.stdin = in
	}

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("codec: %w: stdout pipe: %v", errs.ErrSetup, err)
	}
	p.stdout = bufio.NewReaderSize(out, 256*1024)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("codec: %w: start %s: %v", errs.ErrSetup, name, err)
	}
	return p, nil
}

// wait joins the process exactly once, returning a decode/encode error
// that includes captured stderr when ffmpeg exited non-zero.
func (p *process) wait(kind error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waited {
		return p.waitErr
	}
	p.waited = true
	if err := p.cmd.Wait(); err != nil {
		p.waitErr = fmt.Errorf("codec: %w: %v: %s", kind, err, p.stderr.String())
	}
	return p.waitErr
}

// closeStdin closes the write side, signaling ffmpeg there is no more
// input (used to trigger an encoder's final flush).
func (p *process) closeStdin() error {
	if p.stdin == nil {
		return nil
	}
	return p.stdin.Close()
}
