// Package execx wraps subprocess execution behind a small interface so host
// mutations can be recorded and faked in tests.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Cmd describes one subprocess invocation.
type Cmd struct {
	Path string
	Args []string
	Env  map[string]string // additional env vars
	Dir  string            // working directory
	// Stdin is passed to the process when non-empty (e.g. piping a config
	// document into tee-style helpers).
	Stdin string
}

func (c Cmd) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Runner executes commands. The exec-backed implementation is used in
// production; tests substitute a fake that records invocations.
type Runner interface {
	// Run executes the command, discarding stdout.
	Run(ctx context.Context, c Cmd) error
	// Output executes the command and returns trimmed stdout.
	Output(ctx context.Context, c Cmd) (string, error)
	// LookPath reports whether a binary is available on PATH.
	LookPath(name string) bool
}

// System is the exec-backed Runner.
type System struct{}

func (System) build(ctx context.Context, c Cmd) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	return cmd
}

func (s System) Run(ctx context.Context, c Cmd) error {
	cmd := s.build(ctx, c)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return wrapExit(c, err, stderr.String())
	}
	return nil
}

func (s System) Output(ctx context.Context, c Cmd) (string, error) {
	cmd := s.build(ctx, c)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", wrapExit(c, err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (System) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func wrapExit(c Cmd, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr != "" {
		return fmt.Errorf("%s: %w (%s)", c, err, stderr)
	}
	return fmt.Errorf("%s: %w", c, err)
}
