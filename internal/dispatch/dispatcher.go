// Package dispatch invokes the external management CLI and normalizes
// its result. The dispatcher is stateless: each Invoke spawns one
// independent process, and nothing outlives the call.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/supactl/internal/catalog"
	"github.com/mattjoyce/supactl/internal/jval"
	"github.com/mattjoyce/supactl/internal/log"
)

const (
	// maxStderrBytes caps the amount of stderr captured from the tool.
	maxStderrBytes = 64 * 1024

	// DefaultTimeout bounds each call when Options.Timeout is zero.
	DefaultTimeout = 30 * time.Second

	// defaultGracePeriod is the wait after SIGTERM before SIGKILL.
	defaultGracePeriod = 5 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	// Binary is the external tool to spawn, resolved via PATH if bare.
	Binary string

	// Server is the remote server name passed to the tool.
	Server string

	// Timeout bounds each Invoke. Zero means DefaultTimeout.
	Timeout time.Duration

	// GracePeriod is the SIGTERM-to-SIGKILL wait on timeout.
	GracePeriod time.Duration
}

// Dispatcher shells out to the management tool. Safe for concurrent use:
// it holds no mutable state, so concurrent Invokes are just independent
// process spawns.
type Dispatcher struct {
	binary  string
	server  string
	timeout time.Duration
	grace   time.Duration
	logger  *slog.Logger
}

// New creates a Dispatcher. It does not check that the binary exists;
// a missing binary surfaces as an invocation error on the first call.
func New(opts Options) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	return &Dispatcher{
		binary:  opts.Binary,
		server:  opts.Server,
		timeout: timeout,
		grace:   grace,
		logger:  log.WithComponent("dispatch"),
	}
}

// Timeout returns the configured per-call bound.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// Invoke runs one remote operation and returns the tool's JSON output
// unchanged. Every failure comes back as a *Error; Invoke never panics
// and never retries.
func (d *Dispatcher) Invoke(ctx context.Context, operation string, args *jval.Value) (json.RawMessage, error) {
	if operation == "" {
		return nil, invocationErr("operation name is empty")
	}
	if !catalog.Exists(operation) {
		return nil, invocationErr("unknown operation %q", operation)
	}

	payload := []byte("{}")
	if args != nil {
		if args.Kind() != jval.KindObject {
			return nil, invocationErr("arguments must be a JSON object, got %s", args.Kind())
		}
		var err error
		payload, err = args.MarshalJSON()
		if err != nil {
			return nil, invocationErr("encode arguments: %v", err)
		}
	}

	return d.run(ctx, operation, string(payload))
}

// run spawns the tool and waits for exit, timeout, or ctx cancellation.
func (d *Dispatcher) run(ctx context.Context, operation, payload string) (json.RawMessage, error) {
	logger := d.logger.With("operation", operation)

	timeoutTimer := time.NewTimer(d.timeout)
	defer timeoutTimer.Stop()

	// Don't use CommandContext - termination is managed below so the
	// tool gets SIGTERM and a grace period before SIGKILL.
	cmd := exec.Command(d.binary, "tool", "call", operation, "--server", d.server, "--input", payload)

	// Own process group, so termination reaches any children the tool
	// spawns. A surviving child would hold the stdout/stderr pipes open
	// and keep cmd.Wait blocked past the bound.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("spawning tool", "binary", d.binary, "timeout", d.timeout)

	if err := cmd.Start(); err != nil {
		return nil, &Error{
			Kind:    KindInvocation,
			Code:    CodeInvocation,
			Message: fmt.Sprintf("start %s: %v", d.binary, err),
		}
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-timeoutTimer.C:
		logger.Warn("tool execution timed out, sending SIGTERM")
		d.terminate(cmd, waitErr, logger)
		return nil, &Error{
			Kind:    KindTimeout,
			Code:    CodeTimeout,
			Message: fmt.Sprintf("operation timed out after %v", d.timeout),
			Stderr:  truncateStderr(stderr.String()),
		}

	case <-ctx.Done():
		logger.Warn("call cancelled, sending SIGTERM")
		d.terminate(cmd, waitErr, logger)
		return nil, &Error{
			Kind:    KindTimeout,
			Code:    CodeTimeout,
			Message: fmt.Sprintf("call cancelled: %v", ctx.Err()),
			Stderr:  truncateStderr(stderr.String()),
		}

	case err := <-waitErr:
		stderrStr := truncateStderr(stderr.String())

		if err != nil {
			exitErr, ok := err.(*exec.ExitError)
			if !ok {
				return nil, &Error{
					Kind:    KindInvocation,
					Code:    CodeInvocation,
					Message: fmt.Sprintf("wait for %s: %v", d.binary, err),
					Stderr:  stderrStr,
				}
			}
			logger.Warn("tool exited with non-zero status", "exit_code", exitErr.ExitCode())
			return nil, remoteError(exitErr.ExitCode(), stdout.Bytes(), stderrStr)
		}

		out := bytes.TrimSpace(stdout.Bytes())
		if len(out) == 0 {
			return nil, &Error{
				Kind:    KindDecode,
				Code:    CodeDecode,
				Message: "tool produced no output on stdout",
				Stderr:  stderrStr,
			}
		}
		if !json.Valid(out) {
			logger.Warn("tool output is not valid JSON")
			return nil, &Error{
				Kind:    KindDecode,
				Code:    CodeDecode,
				Message: "tool output is not valid JSON",
				Stderr:  stderrStr,
			}
		}

		return json.RawMessage(out), nil
	}
}

// terminate sends SIGTERM to the tool's process group, waits for the
// grace period, then SIGKILLs the group.
func (d *Dispatcher) terminate(cmd *exec.Cmd, waitErr chan error, logger *slog.Logger) {
	d.signalGroup(cmd, syscall.SIGTERM, logger)

	grace := time.NewTimer(d.grace)
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Info("tool exited after SIGTERM")
		return
	case <-grace.C:
		logger.Warn("tool did not exit after SIGTERM, sending SIGKILL")
		d.signalGroup(cmd, syscall.SIGKILL, logger)
	}

	// The SIGKILLed group reaps almost immediately. If something left
	// the group and still holds the output pipes, abandon the wait
	// instead of blocking the caller.
	abandon := time.NewTimer(d.grace)
	defer abandon.Stop()

	select {
	case <-waitErr:
	case <-abandon.C:
		logger.Error("tool did not exit after SIGKILL, abandoning wait")
	}
}

// signalGroup signals the tool's process group. If the group is already
// gone it falls back to the direct child.
func (d *Dispatcher) signalGroup(cmd *exec.Cmd, sig syscall.Signal, logger *slog.Logger) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		if err := cmd.Process.Signal(sig); err != nil {
			logger.Error("failed to signal tool", "signal", sig, "error", err)
		}
	}
}

// remoteFailure is the error shape the tool prints on failure.
type remoteFailure struct {
	Error      string `json:"error"`
	Returncode *int   `json:"returncode"`
}

// remoteError builds the normalized remote failure. If the tool printed
// an {"error", "returncode"} object on stdout or stderr, message and
// code pass through verbatim; otherwise the exit status stands in.
func remoteError(exitCode int, stdout []byte, stderr string) *Error {
	e := &Error{
		Kind:    KindRemote,
		Code:    exitCode,
		Message: fmt.Sprintf("tool exited with status %d", exitCode),
		Stderr:  stderr,
	}

	for _, out := range [][]byte{stdout, []byte(stderr)} {
		var rf remoteFailure
		if err := json.Unmarshal(bytes.TrimSpace(out), &rf); err != nil || rf.Error == "" {
			continue
		}
		e.Message = rf.Error
		if rf.Returncode != nil {
			e.Code = *rf.Returncode
		}
		return e
	}

	if msg := strings.TrimSpace(stderr); msg != "" {
		e.Message = msg
	}
	return e
}

// truncateStderr truncates stderr to maxStderrBytes.
func truncateStderr(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
