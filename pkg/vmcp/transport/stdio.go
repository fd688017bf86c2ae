package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/magictunnel/magictunnel/pkg/logger"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// StdioConfig configures a subprocess-backed stdio transport: the child's
// command line, environment, and working directory (spec.md §4.1 "Stdio
// transport").
type StdioConfig struct {
	Command    string
	Args       []string
	Env        map[string]string
	WorkingDir string
}

// StdioTransport frames newline-delimited JSON over a child process's
// stdin/stdout (or, in client mode, the proxy's own stdin/stdout). One
// line-reader loop must classify each line as a response or an inbound
// request/notification, since the peer can interleave both.
type StdioTransport struct {
	*frameReader

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu sync.Mutex
}

// NewProcessStdio launches cfg.Command as a child process and frames
// JSON-RPC over its stdin/stdout.
func NewProcessStdio(cfg StdioConfig) (*StdioTransport, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.WorkingDir
	cmd.Stderr = os.Stderr
	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: start %q: %w", cfg.Command, err)
	}

	t := &StdioTransport{frameReader: newFrameReader(), cmd: cmd, stdin: stdin, stdout: stdout}
	t.emitOpened()
	go t.readLoop()
	go t.waitForExit()
	return t, nil
}

// NewPipeStdio frames JSON-RPC over an already-open reader/writer pair,
// used when the proxy itself is the stdio client (talking to its own
// parent process's stdin/stdout).
func NewPipeStdio(r io.ReadCloser, w io.WriteCloser) *StdioTransport {
	t := &StdioTransport{frameReader: newFrameReader(), stdout: r, stdin: w}
	t.emitOpened()
	go t.readLoop()
	return t
}

func (t *StdioTransport) readLoop() {
	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := sanitizeLine(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		frame, ok := t.decodeLine(line)
		if !ok {
			// Malformed frame dropped; loop must not terminate.
			continue
		}
		t.frames <- frame
	}
	t.emitClosed(scanner.Err())
}

func (t *StdioTransport) waitForExit() {
	if t.cmd == nil {
		return
	}
	if err := t.cmd.Wait(); err != nil {
		logger.Warnw("transport: stdio child process exited", "error", err)
	}
}

// sanitizeLine trims surrounding whitespace and skips blank lines, matching
// the newline-delimited-JSON framing contract (one complete JSON value per
// line, no embedded unescaped newlines).
func sanitizeLine(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// Send writes one frame as a single NDJSON line. Writes are serialized so
// concurrent Send calls never interleave bytes of different frames.
func (t *StdioTransport) Send(ctx context.Context, f *vmcp.Frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("transport: marshal frame: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if _, err := t.stdin.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("transport: write stdio frame: %w", err)
	}
	return nil
}

// Close closes the stdin pipe, signaling EOF to the reader loop, and, for
// a process-backed transport, kills the child process.
func (t *StdioTransport) Close() error {
	err := t.stdin.Close()
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	return err
}
