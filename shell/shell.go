// Package shell runs command lines through the system shell.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d: %s", e.Code, e.Command)
}

// Runner executes command lines with "sh -c".
type Runner struct {
	Shell  string // default "/bin/sh"
	Dir    string
	Env    []string // extra KEY=VALUE entries appended to the process env
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Run executes commandLine and returns its exit status. A non-zero status
// is also reported as an *ExitError; failing to start the shell at all is
// returned as a plain error with status -1.
func (r *Runner) Run(ctx context.Context, commandLine string) (int, error) {
	sh := r.Shell
	if sh == "" {
		sh = "/bin/sh"
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, sh, "-c", commandLine)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.WaitDelay = time.Second

	logger.Debug("Running command", "command", commandLine)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		code := exitErr.ExitCode()
		logger.Warn("Command failed", "command", commandLine, "exit_code", code)
		return code, &ExitError{Command: commandLine, Code: code}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, fmt.Errorf("run %q: %w", commandLine, ctxErr)
	}
	return -1, fmt.Errorf("run %q: %w", commandLine, err)
}

// Quote returns s quoted for safe use as a single word in a POSIX shell
// command line.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("@%+=:,./-_", r)
}
