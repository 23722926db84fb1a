package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Runner executes one external command and captures its output. A non-zero
// exit is reported through RunResult, not as an error; errors mean the
// command could not run at all or the context expired.
type Runner interface {
	Run(ctx context.Context, dir string, command string, args ...string) (RunResult, error)
}

// RunResult carries captured output and the exit status.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type execRunner struct{}

// NewRunner returns a Runner backed by os/exec.
func NewRunner() Runner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, dir string, command string, args ...string) (RunResult, error) {
	if command == "" {
		return RunResult{}, fmt.Errorf("command is required")
	}

	cmd := exec.CommandContext(ctx, command, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		res.ExitCode = -1
		return res, err
	}
	return res, nil
}
