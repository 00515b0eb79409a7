package cliverify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-cliverify/metrics"
	"github.com/ethereum-optimism/infra/op-cliverify/suite"
	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

// ActionKind distinguishes CLI actions from backend queries in a report
type ActionKind string

const (
	KindCLI          ActionKind = "cli"
	KindBackendQuery ActionKind = "backend_query"
)

// ActionResult is the verdict of one suite entry
type ActionResult struct {
	Name     string
	Kind     ActionKind
	Status   types.VerificationStatus
	Outcome  *types.VerificationOutcome // nil when the action errored
	Err      error
	Duration time.Duration
}

// Message returns the line shown in the results table
func (r *ActionResult) Message() string {
	switch {
	case r.Status == types.VerificationError && r.Err != nil:
		return r.Err.Error()
	case r.Outcome != nil && !r.Outcome.Passed:
		return r.Outcome.Message
	}
	return ""
}

// Report summarizes one suite run
type Report struct {
	RunID    string
	Suite    string
	Results  []*ActionResult // in suite order, CLI actions first
	Duration time.Duration
	Status   types.VerificationStatus
	Passed   int
	Failed   int
	Errored  int
}

func (r *Report) String() string {
	return fmt.Sprintf("Run %s of suite %q: %s (passed: %d, failed: %d, errored: %d) in %s",
		r.RunID, r.Suite, r.Status, r.Passed, r.Failed, r.Errored, formatDuration(r.Duration))
}

// Err maps the report onto the error taxonomy: harness errors win over mismatches
func (r *Report) Err() error {
	switch {
	case r.Errored > 0:
		var errs []error
		for _, res := range r.Results {
			if res.Err != nil && res.Status == types.VerificationError {
				errs = append(errs, res.Err)
			}
		}
		return NewRuntimeError(errors.Join(errs...))
	case r.Failed > 0:
		return NewTestFailureError(fmt.Sprintf("%d of %d actions failed", r.Failed, len(r.Results)))
	}
	return nil
}

func (r *Report) tally() {
	r.Passed, r.Failed, r.Errored = 0, 0, 0
	for _, res := range r.Results {
		switch res.Status {
		case types.VerificationPass:
			r.Passed++
		case types.VerificationFail:
			r.Failed++
		default:
			r.Errored++
		}
	}
	switch {
	case r.Errored > 0:
		r.Status = types.VerificationError
	case r.Failed > 0:
		r.Status = types.VerificationFail
	default:
		r.Status = types.VerificationPass
	}
}

// NewRunID returns a fresh identifier for a suite run
func NewRunID() string {
	return uuid.New().String()
}

// RunSuite runs every action of s concurrently, then every backend query.
// Backend queries inspect what the actions persisted, so they start only once
// all actions are done. An empty runID is replaced by a fresh one.
//
// The returned error is only set when the run could not start; action
// verdicts are in the report.
func (l *Library) RunSuite(ctx context.Context, runID string, s *suite.Suite) (*Report, error) {
	if s == nil {
		return nil, types.NewConfigurationError("suite", errors.New("suite cannot be nil"))
	}
	if runID == "" {
		runID = NewRunID()
	}
	start := time.Now()

	ctx, span := l.tracer.Start(ctx, fmt.Sprintf("suite %s", s.Name),
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("actions", len(s.Actions)),
			attribute.Int("backend_queries", len(s.BackendQueries)),
		))
	defer span.End()

	actions := make([]Action, 0, len(s.Actions))
	for _, ac := range s.Actions {
		a, err := actionFromConfig(s, ac)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	queries := make([]BackendQuery, 0, len(s.BackendQueries))
	for _, qc := range s.BackendQueries {
		opts, err := s.Options(qc.Options)
		if err != nil {
			return nil, fmt.Errorf("backend query %q: %w", qc.Name, err)
		}
		queries = append(queries, BackendQuery{
			Name:     qc.Name,
			Target:   qc.Target,
			Query:    qc.Query,
			Expected: qc.Expected,
			Options:  opts,
		})
	}

	if s.WaitForBackend != "" {
		waitCtx, cancel := context.WithTimeout(ctx, l.config.DefaultTimeout)
		err := l.WaitForBackend(waitCtx, s.WaitForBackend, 0)
		cancel()
		if err != nil {
			span.RecordError(err)
			return nil, NewRuntimeError(err)
		}
	}

	l.log.Info("Running suite", "suite", s.Name, "run_id", runID, "actions", len(actions), "backend_queries", len(queries))

	report := &Report{
		RunID:   runID,
		Suite:   s.Name,
		Results: make([]*ActionResult, len(actions)+len(queries)),
	}

	// Goroutines never return errors: every verdict lands in the report
	var g errgroup.Group
	for i, a := range actions {
		g.Go(func() error {
			begin := time.Now()
			outcome, err := l.ShouldInlineEqualBothStreams(ctx, a)
			report.Results[i] = newActionResult(a.label(), KindCLI, outcome, err, time.Since(begin))
			return nil
		})
	}
	_ = g.Wait()

	for i, q := range queries {
		g.Go(func() error {
			begin := time.Now()
			outcome, err := l.ShouldBackendQueryEqual(ctx, q)
			report.Results[len(actions)+i] = newActionResult(q.label(), KindBackendQuery, outcome, err, time.Since(begin))
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	report.tally()

	span.SetAttributes(attribute.String("status", string(report.Status)))
	if report.Status != types.VerificationPass {
		span.SetStatus(codes.Error, report.String())
	}
	metrics.RecordSuite(s.Name, runID, string(report.Status), report.Passed, report.Failed, report.Errored, report.Duration)
	l.log.Info("Suite finished", "suite", s.Name, "run_id", runID, "status", report.Status,
		"passed", report.Passed, "failed", report.Failed, "errored", report.Errored, "duration", report.Duration)
	return report, nil
}

func newActionResult(name string, kind ActionKind, outcome *types.VerificationOutcome, err error, d time.Duration) *ActionResult {
	res := &ActionResult{Name: name, Kind: kind, Outcome: outcome, Err: err, Duration: d}
	switch {
	case outcome != nil:
		res.Status = outcome.Status()
	case err != nil:
		res.Status = types.VerificationError
	default:
		res.Status = types.VerificationPass
	}
	return res
}

// actionFromConfig applies the suite-level values an action does not override
func actionFromConfig(s *suite.Suite, ac suite.ActionConfig) (Action, error) {
	opts, err := s.Options(ac.Options)
	if err != nil {
		return Action{}, fmt.Errorf("action %q: %w", ac.Name, err)
	}
	a := Action{
		Name:           ac.Name,
		Executable:     s.Executable,
		Secrets:        s.SecretValues(),
		Registry:       s.Registry,
		AuthCfg:        s.Auth,
		BackendCfg:     s.SQLBackendCfg,
		Query:          ac.Query,
		Args:           ac.Args,
		Flags:          ac.Flags,
		Env:            s.Env,
		ExpectedStdout: ac.ExpectedStdout,
		ExpectedStderr: ac.ExpectedStderr,
		Options:        opts,
	}
	if ac.Executable != "" {
		a.Executable = ac.Executable
	}
	if ac.Auth != nil {
		a.AuthCfg = *ac.Auth
	}
	if ac.SQLBackendCfg != nil {
		a.BackendCfg = *ac.SQLBackendCfg
	}
	return a, nil
}
