package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/magictunnel/magictunnel/pkg/mterrors"
	"github.com/magictunnel/magictunnel/pkg/vmcp"
)

// killGracePeriod is how long a subprocess gets to exit after SIGTERM (on
// timeout or context cancellation) before it is force-killed with SIGKILL,
// per spec.md §5 "termination signal then killed after a grace period".
const killGracePeriod = 5 * time.Second

// SubprocessAdapter dispatches a tool call by running a subprocess,
// writing the JSON-encoded, substituted argument payload to stdin and
// capturing stdout as the tool's text result (spec.md §4.4 "Subprocess
// adapter").
type SubprocessAdapter struct{}

func NewSubprocessAdapter() *SubprocessAdapter { return &SubprocessAdapter{} }

func (a *SubprocessAdapter) Call(ctx context.Context, tool vmcp.Tool, args map[string]any) (vmcp.ToolCallResult, error) {
	cfg := tool.Routing.Subprocess
	if cfg == nil {
		return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindInternalError, "tool %q missing subprocess routing config", tool.Name)
	}

	substitutedArgs, err := substituteStrings(cfg.Args, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "subprocess args")
	}
	env, err := SubstituteMap(cfg.Env, args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInvalidParams, err, "subprocess env")
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cfg.Command, substitutedArgs...)
	cmd.Dir = cfg.WorkingDir
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// On timeout/cancellation send SIGTERM first; exec escalates to SIGKILL
	// itself if the process hasn't exited by WaitDelay.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGracePeriod

	payload, err := json.Marshal(args)
	if err != nil {
		return vmcp.ToolCallResult{}, mterrors.Wrap(mterrors.KindInternalError, err, "marshal subprocess stdin")
	}
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return vmcp.ToolCallResult{}, mterrors.New(mterrors.KindTimeout, "subprocess %q exceeded %s timeout", cfg.Command, timeout)
		}
		return vmcp.ToolCallResult{
			OK:       false,
			IsError:  true,
			ErrorMsg: stderr.String(),
			Content:  []vmcp.Content{{Type: "text", Text: stdout.String()}},
		}, nil
	}
	return vmcp.ToolCallResult{
		OK:      true,
		Content: []vmcp.Content{{Type: "text", Text: stdout.String()}},
	}, nil
}

func substituteStrings(templates []string, args map[string]any) ([]string, error) {
	out := make([]string, len(templates))
	for i, t := range templates {
		v, err := Substitute(t, args)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
