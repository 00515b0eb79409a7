package cliverify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-cliverify/invocation"
	"github.com/ethereum-optimism/infra/op-cliverify/logging"
	"github.com/ethereum-optimism/infra/op-cliverify/metrics"
	"github.com/ethereum-optimism/infra/op-cliverify/runner"
	"github.com/ethereum-optimism/infra/op-cliverify/sqlclient"
	"github.com/ethereum-optimism/infra/op-cliverify/types"
	"github.com/ethereum-optimism/infra/op-cliverify/verify"
)

// Action is one keyword call: a CLI invocation plus the streams it must produce
type Action struct {
	Name           string
	Executable     string
	Secrets        types.Secrets
	Registry       *invocation.RegistryConfig
	AuthCfg        string
	BackendCfg     string
	Query          string
	Args           []string
	Flags          map[string]string
	Env            map[string]string
	ExpectedStdout string
	ExpectedStderr string
	Options        types.ActionOptions
}

func (a Action) inputs() invocation.Inputs {
	return invocation.Inputs{
		Executable: a.Executable,
		Secrets:    a.Secrets,
		Registry:   a.Registry,
		AuthCfg:    a.AuthCfg,
		BackendCfg: a.BackendCfg,
		Query:      a.Query,
		Args:       a.Args,
		Flags:      a.Flags,
		Env:        a.Env,
		Options:    a.Options,
	}
}

func (a Action) label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Query
}

// Library runs test actions against the CLI under test. It is safe for
// concurrent use; all actions share one concurrency budget and one suite counter.
type Library struct {
	config    *Config
	builder   *invocation.Builder
	runner    runner.ProcessRunner
	verifier  *verify.Verifier
	suite     *invocation.SuiteContext
	artifacts *logging.ArtifactWriter
	log       log.Logger
	tracer    trace.Tracer

	mu      sync.Mutex
	clients map[string]sqlclient.Client
}

// LibraryOption customizes a Library
type LibraryOption func(*Library)

// WithProcessRunner replaces the default process runner
func WithProcessRunner(r runner.ProcessRunner) LibraryOption {
	return func(l *Library) { l.runner = r }
}

// WithArtifactWriter persists the streams of every invocation
func WithArtifactWriter(w *logging.ArtifactWriter) LibraryOption {
	return func(l *Library) { l.artifacts = w }
}

// WithSuiteContext shares a suite counter between libraries
func WithSuiteContext(sc *invocation.SuiteContext) LibraryOption {
	return func(l *Library) { l.suite = sc }
}

// NewLibrary creates a Library. A nil config selects DefaultConfig.
func NewLibrary(cfg *Config, opts ...LibraryOption) (*Library, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}

	builder, err := invocation.NewBuilder(invocation.BuilderConfig{
		Backend:          cfg.SQLBackend,
		Platform:         cfg.ExecutionPlatform,
		ConcurrencyLimit: cfg.ConcurrencyLimit,
	})
	if err != nil {
		return nil, err
	}

	l := &Library{
		config:   cfg,
		builder:  builder,
		verifier: verify.NewVerifier(0),
		log:      cfg.Log.New("component", "keywords"),
		tracer:   otel.Tracer("cliverify keywords"),
		clients:  map[string]sqlclient.Client{},
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.runner == nil {
		r, err := runner.NewRunner(runner.Config{
			ConcurrencyLimit: cfg.ConcurrencyLimit,
			DefaultTimeout:   cfg.DefaultTimeout,
			MaxCaptureBytes:  cfg.MaxCaptureBytes,
			Log:              cfg.Log,
		})
		if err != nil {
			return nil, err
		}
		l.runner = r
	}
	if l.suite == nil {
		l.suite = invocation.NewSuiteContext(cfg.ArtifactRoot)
	}

	l.log.Debug("Created keyword library",
		"backend", cfg.SQLBackend,
		"platform", builder.Config().Platform,
		"concurrency", cfg.ConcurrencyLimit)
	return l, nil
}

// SuiteContext returns the counter shared by the actions of this library
func (l *Library) SuiteContext() *invocation.SuiteContext {
	return l.suite
}

// ShouldInlineEqualBothStreams runs the action RepeatCount times and checks
// that stdout and stderr match the expected values on every iteration.
//
// A harness fault stops the loop and is returned as an ActionError naming the
// iteration. A mismatch also stops the loop: the failing outcome is returned
// together with a VerificationMismatch error. Otherwise the last outcome is
// returned with a nil error.
func (l *Library) ShouldInlineEqualBothStreams(ctx context.Context, a Action) (*types.VerificationOutcome, error) {
	opts := a.Options.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, NewActionError(a.label(), 0, err)
	}
	a.Options = opts

	ctx, span := l.tracer.Start(ctx, fmt.Sprintf("action %s", a.label()),
		trace.WithAttributes(attribute.Int("repeat_count", opts.RepeatCount)))
	defer span.End()

	var outcome *types.VerificationOutcome
	for i := 1; i <= opts.RepeatCount; i++ {
		var err error
		outcome, err = l.runOnce(ctx, a, i)
		if err != nil {
			metrics.RecordVerification(a.label(), types.VerificationError)
			span.RecordError(err)
			return nil, NewActionError(a.label(), i, err)
		}
		metrics.RecordVerification(a.label(), outcome.Status())
		if !outcome.Passed {
			l.log.Warn("Action failed", "action", a.label(), "iteration", i, "mismatch", outcome.Message)
			return outcome, outcome.Err()
		}
	}
	l.log.Info("Action passed", "action", a.label(), "iterations", opts.RepeatCount)
	return outcome, nil
}

func (l *Library) runOnce(ctx context.Context, a Action, iteration int) (*types.VerificationOutcome, error) {
	spec, err := l.builder.Build(l.suite, a.inputs())
	if err != nil {
		return nil, err
	}
	result, err := l.runner.Run(ctx, spec, a.Options.Timeout)
	if err != nil {
		return nil, err
	}
	if l.artifacts != nil {
		if err := l.artifacts.WriteInvocation(a.label(), iteration, spec, result); err != nil {
			// Losing an artifact does not change the verdict
			l.log.Error("Failed to write artifacts", "action", a.label(), "err", err)
			metrics.RecordErrorDetails("artifacts", err)
		}
	}
	outcome, err := l.verifier.Verify(result, a.ExpectedStdout, a.ExpectedStderr, a.Options.VerifyOptions())
	if err != nil {
		return nil, err
	}
	outcome.Iteration = iteration
	return outcome, nil
}

// Close releases the backend query clients
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for target, c := range l.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing client for %s: %w", invocation.MaskDSN(target), err))
		}
		delete(l.clients, target)
	}
	return errors.Join(errs...)
}
