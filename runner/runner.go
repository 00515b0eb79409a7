package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ethereum-optimism/infra/op-cliverify/invocation"
	"github.com/ethereum-optimism/infra/op-cliverify/metrics"
	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

var _ ProcessRunner = (*Runner)(nil)

// ProcessRunner executes a built invocation and captures what it produced.
// Run blocks until the process exits, the timeout fires or ctx is canceled.
type ProcessRunner interface {
	Run(ctx context.Context, spec *types.InvocationSpec, timeout time.Duration) (*types.ExecutionResult, error)
}

// CmdBuilder creates the command for an invocation. The returned command must
// be created with exec.CommandContext so cancellation can reach it.
type CmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// Config holds the runner settings
type Config struct {
	ConcurrencyLimit int
	DefaultTimeout   time.Duration
	MaxCaptureBytes  int
	WaitDelay        time.Duration
	CmdBuilder       CmdBuilder
	Log              log.Logger
}

// Runner implements ProcessRunner
type Runner struct {
	sem             *semaphore.Weighted
	limit           int
	defaultTimeout  time.Duration
	maxCaptureBytes int
	waitDelay       time.Duration
	cmdBuilder      CmdBuilder
	log             log.Logger
	tracer          trace.Tracer
}

// NewRunner creates a Runner admitting at most cfg.ConcurrencyLimit processes at once
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.ConcurrencyLimit < 0 {
		return nil, types.NewConfigurationError("concurrency_limit", fmt.Errorf("must be positive, got %d", cfg.ConcurrencyLimit))
	}
	if cfg.ConcurrencyLimit == 0 {
		cfg.ConcurrencyLimit = invocation.DefaultConcurrencyLimit
	}
	if cfg.ConcurrencyLimit > MaxReasonableConcurrency {
		return nil, types.NewConfigurationError("concurrency_limit",
			fmt.Errorf("%d exceeds the maximum of %d", cfg.ConcurrencyLimit, MaxReasonableConcurrency))
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.MaxCaptureBytes <= 0 {
		cfg.MaxCaptureBytes = DefaultMaxCaptureBytes
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = defaultCmdBuilder
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}

	return &Runner{
		sem:             semaphore.NewWeighted(int64(cfg.ConcurrencyLimit)),
		limit:           cfg.ConcurrencyLimit,
		defaultTimeout:  cfg.DefaultTimeout,
		maxCaptureBytes: cfg.MaxCaptureBytes,
		waitDelay:       cfg.WaitDelay,
		cmdBuilder:      cfg.CmdBuilder,
		log:             cfg.Log.New("component", "runner"),
		tracer:          otel.Tracer("cli runner"),
	}, nil
}

// ConcurrencyLimit returns the number of processes allowed to run at once
func (r *Runner) ConcurrencyLimit() int {
	return r.limit
}

func defaultCmdBuilder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	return exec.CommandContext(ctx, name, arg...), func() {}
}

// Run executes spec. A zero timeout means the runner's default.
// The timeout covers the process lifetime only, not time spent queued for a slot.
func (r *Runner) Run(ctx context.Context, spec *types.InvocationSpec, timeout time.Duration) (*types.ExecutionResult, error) {
	if ctx == nil {
		return nil, errors.New("context cannot be nil")
	}
	if spec == nil {
		return nil, types.NewConfigurationError("invocation", errors.New("invocation spec cannot be nil"))
	}
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	queued := time.Now()
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a concurrency slot for %s: %w", spec.Executable, err)
	}
	defer r.sem.Release(1)
	metrics.RecordAdmissionWait(time.Since(queued))

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run %s", filepath.Base(spec.Executable)),
		trace.WithAttributes(
			attribute.String("backend", spec.Backend.String()),
			attribute.String("query", spec.Query),
		))
	defer span.End()

	result, err := r.run(ctx, spec, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("exit_code", result.ExitCode))
	return result, nil
}

func (r *Runner) run(ctx context.Context, spec *types.InvocationSpec, timeout time.Duration) (*types.ExecutionResult, error) {
	executable, err := resolveExecutable(spec.Executable)
	if err != nil {
		metrics.RecordInvocation(spec.Backend, metrics.OutcomeLaunch, 0)
		return nil, types.NewProcessLaunchError(spec.Executable, err)
	}
	if spec.WorkDir != "" {
		if err := os.MkdirAll(spec.WorkDir, 0755); err != nil {
			metrics.RecordInvocation(spec.Backend, metrics.OutcomeLaunch, 0)
			return nil, types.NewProcessLaunchError(spec.Executable, fmt.Errorf("failed to create working directory: %w", err))
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, cleanup := r.cmdBuilder(runCtx, executable, spec.Args...)
	defer cleanup()

	cmd.Dir = spec.WorkDir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.WaitDelay = r.waitDelay
	configureProcessGroup(cmd)

	// Set only when the deadline or ctx made exec kill the process
	var killed atomic.Bool
	if kill := cmd.Cancel; kill != nil {
		cmd.Cancel = func() error {
			killed.Store(true)
			return kill()
		}
	}

	stdout := newTailBuffer(r.maxCaptureBytes)
	stderr := newTailBuffer(r.maxCaptureBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.log.Debug("Launching CLI",
		"argv", strings.Join(invocation.MaskArgv(spec.Argv(), spec.Secrets.Okta, spec.Secrets.GitHub, spec.Secrets.K8s), " "),
		"dir", spec.WorkDir,
		"timeout", timeout)

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.RecordInvocation(spec.Backend, metrics.OutcomeLaunch, 0)
		metrics.RecordErrorDetails("launch", err)
		return nil, types.NewProcessLaunchError(spec.Executable, err)
	}
	metrics.IncInflight()
	waitErr := cmd.Wait()
	metrics.DecInflight()
	duration := time.Since(startTime)

	// A process that exited by itself keeps its exit code, even when the
	// deadline passed while its output was still draining.
	selfExited := exitedNormally(cmd.ProcessState)
	if waitErr != nil && killed.Load() && !selfExited {
		if ctx.Err() != nil {
			metrics.RecordInvocation(spec.Backend, metrics.OutcomeCanceled, duration)
			return nil, fmt.Errorf("invocation of %s canceled: %w", spec.Executable, ctx.Err())
		}
		metrics.RecordInvocation(spec.Backend, metrics.OutcomeTimeout, duration)
		r.log.Warn("CLI timed out", "executable", spec.Executable, "timeout", timeout)
		return nil, types.NewProcessTimeoutError(spec.Executable, timeout)
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case selfExited:
			exitCode = cmd.ProcessState.ExitCode()
			if errors.Is(waitErr, exec.ErrWaitDelay) {
				// Something it spawned kept the pipes open
				r.log.Warn("CLI left output pipes open after exit", "executable", spec.Executable)
			}
		case errors.As(waitErr, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			metrics.RecordErrorDetails("wait", waitErr)
			return nil, fmt.Errorf("failed waiting for %s: %w", spec.Executable, waitErr)
		}
	}
	metrics.RecordInvocation(spec.Backend, metrics.OutcomeExited, duration)

	r.log.Debug("CLI exited", "executable", spec.Executable, "exit_code", exitCode, "duration", duration)
	return &types.ExecutionResult{
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		ExitCode:        exitCode,
		Duration:        duration,
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
	}, nil
}

// resolveExecutable makes relative paths absolute, since the child runs in its own working directory
func resolveExecutable(name string) (string, error) {
	if filepath.IsAbs(name) || !strings.ContainsAny(name, `/`+string(filepath.Separator)) {
		return name, nil
	}
	return filepath.Abs(name)
}
