// Package redo requests rebuilds from the redo build system.
package redo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// DefaultCommand is the rebuild primitive.
const DefaultCommand = "redo-ifchange"

// Config configures a Client.
type Config struct {
	// Command is the rebuild command line. Targets are appended as
	// arguments. Shell quoting is honoured; no shell is involved.
	Command string

	// Dir is the working directory. Empty uses the current one.
	Dir string

	// Timeout bounds one batch. Zero means no limit.
	Timeout time.Duration

	// Stdout and Stderr receive the command's output as it runs.
	Stdout io.Writer
	Stderr io.Writer

	Logger *slog.Logger
}

// Error is returned when the rebuild command fails.
type Error struct {
	Targets  []string
	ExitCode int // -1 when the command did not exit normally
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("rebuild of %d target(s) failed", len(e.Targets))
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" with exit code %d", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Client runs the rebuild command.
type Client struct {
	argv    []string
	dir     string
	timeout time.Duration
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
}

// New creates a Client. The command line is parsed once here.
func New(cfg Config) (*Client, error) {
	command := cfg.Command
	if command == "" {
		command = DefaultCommand
	}
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse redo command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("empty redo command")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		argv:    argv,
		dir:     cfg.Dir,
		timeout: cfg.Timeout,
		stdout:  cfg.Stdout,
		stderr:  cfg.Stderr,
		logger:  logger,
	}, nil
}

// RedoIfChange brings every target up to date in one batch. It returns once
// all of them are built, or with an *Error if any could not be. An empty
// batch does nothing.
func (c *Client) RedoIfChange(ctx context.Context, targets ...string) error {
	if len(targets) == 0 {
		return nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), c.argv[1:]...), targets...)
	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	cmd.Dir = c.dir
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stdout = c.stdout
	if c.stderr != nil {
		cmd.Stderr = io.MultiWriter(c.stderr, &stderr)
	} else {
		cmd.Stderr = &stderr
	}

	c.logger.Info("Requesting rebuild", "command", c.argv[0], "targets", len(targets))
	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = ctxErr
		}
		c.logger.Error("Rebuild failed", "targets", targets, "exit_code", exitCode, "duration", duration)
		return &Error{Targets: targets, ExitCode: exitCode, Stderr: stderr.String(), Err: runErr}
	}

	c.logger.Debug("Rebuild complete", "targets", targets, "duration", duration)
	return nil
}
