package clip

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Runner starts the helper tools the subprocess backends drive.
type Runner interface {
	// LookPath reports whether the named tool is installed.
	LookPath(name string) (string, error)
	// Output runs the tool and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Input runs the tool with stdin as its input and discards its output.
	// Selection tools fork a child that keeps serving the clipboard, so
	// stdout must not be captured or Wait would block on the child.
	Input(ctx context.Context, stdin []byte, name string, args ...string) error
	// Stream starts a long-lived tool and returns its stdout. Closing the
	// reader stops the tool.
	Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error)
}

// ExecRunner runs real subprocesses with exec.CommandContext.
type ExecRunner struct{}

func (ExecRunner) LookPath(name string) (string, error) { return exec.LookPath(name) }

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, toolError(name, err, stderr.Bytes())
	}
	return out, nil
}

func (ExecRunner) Input(ctx context.Context, stdin []byte, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	if err := cmd.Run(); err != nil {
		return toolError(name, err, nil)
	}
	return nil
}

func (ExecRunner) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: stdout pipe: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: start: %w", name, err)
	}
	return &process{ReadCloser: out, cmd: cmd}, nil
}

type process struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *process) Close() error {
	_ = p.cmd.Process.Kill()
	_ = p.ReadCloser.Close()
	_ = p.cmd.Wait()
	return nil
}

// ToolError is returned by ExecRunner when a tool exits unsuccessfully.
type ToolError struct {
	Tool   string
	Code   int
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit %d: %s", e.Tool, e.Code, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ExitCode returns the tool's exit status, or -1 if it did not exit.
func (e *ToolError) ExitCode() int { return e.Code }

func toolError(name string, err error, stderr []byte) error {
	code := -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
	}
	return &ToolError{Tool: name, Code: code, Stderr: string(bytes.TrimSpace(stderr)), Err: err}
}

// exitCode extracts a tool's exit status from err, or -1.
func exitCode(err error) int {
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

// signalLines forwards one coalesced signal per line read from r until r is
// exhausted, then closes the returned channel.
func signalLines(r io.Reader) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
	return ch
}
