// Package subprocess runs external collaborator tools (OpenTofu, Ansible)
// and captures their output. The Runner interface exists so collaborator
// packages can be tested with a stub instead of real binaries.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner executes one external command in a working directory.
type Runner interface {
	// Run executes name with args in dir and returns trimmed stdout and
	// stderr. A non-zero exit status is returned as *ExitError.
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, err error)
}

// ExitError reports a collaborator command that ran but exited non-zero. It
// carries the captured output for diagnostics.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

// execRunner is the production Runner backed by os/exec.
type execRunner struct{}

// NewRunner returns the production subprocess runner.
func NewRunner() Runner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	started := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	log.Debug().Str("command", name).Strs("args", args).Str("dir", dir).Msg("running subprocess")

	err := cmd.Run()
	stdout := strings.TrimSpace(stdoutBuf.String())
	stderr := strings.TrimSpace(stderrBuf.String())

	log.Debug().
		Str("command", name).
		Dur("duration", time.Since(started)).
		Err(err).
		Msg("subprocess finished")

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout, stderr, &ExitError{
				Command:  name + " " + strings.Join(args, " "),
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr,
			}
		}
		return stdout, stderr, fmt.Errorf("run %s: %w", name, err)
	}
	return stdout, stderr, nil
}
