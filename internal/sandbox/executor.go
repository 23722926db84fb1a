package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Options bound a sandboxed run. Zero timeouts disable the bound for that
// step.
type Options struct {
	Python         string
	Persistent     bool
	EnvDir         string
	InstallTimeout time.Duration
	ExecTimeout    time.Duration
}

// Execution is the outcome of one sandboxed script run. Output holds stdout
// on success and stderr on failure, mirroring what callers relay onward.
type Execution struct {
	Status  string `json:"status"`
	Output  string `json:"output,omitempty"`
	Message string `json:"message"`
}

// Executor provisions a Python virtual environment, installs the script's
// requirements and runs it with captured output. In the default throwaway
// mode the environment lives in a temp directory that is removed whether or
// not the run succeeds; persistent mode keeps one environment across runs.
type Executor struct {
	opts   Options
	runner Runner
	logger *zap.Logger
}

// NewExecutor builds an executor. A nil runner gets the os/exec one.
func NewExecutor(opts Options, runner Runner, logger *zap.Logger) *Executor {
	if opts.Python == "" {
		opts.Python = "python3"
	}
	if runner == nil {
		runner = NewRunner()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{opts: opts, runner: runner, logger: logger}
}

// Execute installs requirementsPath into the environment and runs scriptPath
// with the environment's interpreter. An install failure aborts before the
// script runs. The script inherits the process working directory so relative
// dataset paths resolve.
func (e *Executor) Execute(ctx context.Context, scriptPath, requirementsPath string) Execution {
	envDir, cleanup, err := e.ensureEnv(ctx)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return Execution{Status: StatusError, Message: fmt.Sprintf("Failed to execute script: %v", err)}
	}

	python := venvPython(envDir)

	e.logger.Debug("installing script requirements",
		zap.String("env", envDir), zap.String("requirements", requirementsPath))
	install, err := e.step(ctx, e.opts.InstallTimeout, python, "-m", "pip", "install", "-r", requirementsPath)
	if err != nil {
		return Execution{Status: StatusError, Message: fmt.Sprintf("Failed to install required packages: %v", err)}
	}
	if install.ExitCode != 0 {
		return Execution{
			Status:  StatusError,
			Output:  install.Stderr,
			Message: fmt.Sprintf("Failed to install required packages: %s", install.Stderr),
		}
	}

	e.logger.Debug("executing script", zap.String("script", scriptPath))
	run, err := e.step(ctx, e.opts.ExecTimeout, python, scriptPath)
	if err != nil {
		return Execution{Status: StatusError, Message: fmt.Sprintf("Failed to execute script: %v", err)}
	}
	if run.ExitCode != 0 {
		return Execution{
			Status:  StatusError,
			Output:  run.Stderr,
			Message: fmt.Sprintf("Script execution failed: %s", run.Stderr),
		}
	}
	return Execution{
		Status:  StatusSuccess,
		Output:  run.Stdout,
		Message: "Script executed successfully",
	}
}

// ensureEnv returns the environment directory, provisioning the interpreter
// when it is not already there. The cleanup func is non-nil only for
// throwaway environments and always removes the directory.
func (e *Executor) ensureEnv(ctx context.Context) (string, func(), error) {
	if e.opts.Persistent {
		envDir := e.opts.EnvDir
		if envDir == "" {
			envDir = "script_venv"
		}
		if _, err := os.Stat(venvPython(envDir)); err == nil {
			return envDir, nil, nil
		}
		if err := e.provision(ctx, envDir); err != nil {
			return envDir, nil, err
		}
		return envDir, nil, nil
	}

	envDir, err := os.MkdirTemp("", "finagent-venv-")
	if err != nil {
		return "", nil, fmt.Errorf("create environment directory: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(envDir) }
	if err := e.provision(ctx, envDir); err != nil {
		return envDir, cleanup, err
	}
	return envDir, cleanup, nil
}

func (e *Executor) provision(ctx context.Context, envDir string) error {
	e.logger.Debug("creating virtual environment", zap.String("env", envDir))
	res, err := e.step(ctx, e.opts.InstallTimeout, e.opts.Python, "-m", "venv", envDir)
	if err != nil {
		return fmt.Errorf("create virtual environment: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("create virtual environment: %s", res.Stderr)
	}
	return nil
}

func (e *Executor) step(ctx context.Context, timeout time.Duration, command string, args ...string) (RunResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return e.runner.Run(ctx, "", command, args...)
}

// venvPython resolves the environment's interpreter path per platform.
func venvPython(envDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(envDir, "Scripts", "python.exe")
	}
	return filepath.Join(envDir, "bin", "python")
}
