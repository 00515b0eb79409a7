package cliverify

import (
	"context"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

type tHelper interface {
	Helper()
}

// RequireBothStreams runs the action and stops the test on any failure.
// A mismatch reports the full diagnostic including diffs.
func RequireBothStreams(t require.TestingT, l *Library, a Action) *types.VerificationOutcome {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	outcome, err := l.ShouldInlineEqualBothStreams(context.Background(), a)
	if outcome != nil && !outcome.Passed {
		require.FailNow(t, "CLI output mismatch", "action %q iteration %d\n%s", a.label(), outcome.Iteration, outcome.Diagnostic())
	}
	require.NoError(t, err, "action %q", a.label())
	return outcome
}

// AssertBothStreams is like RequireBothStreams but lets the test continue
func AssertBothStreams(t assert.TestingT, l *Library, a Action) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	outcome, err := l.ShouldInlineEqualBothStreams(context.Background(), a)
	if outcome != nil && !outcome.Passed {
		return assert.Fail(t, "CLI output mismatch", "action %q iteration %d\n%s", a.label(), outcome.Iteration, outcome.Diagnostic())
	}
	return assert.NoError(t, err, "action %q", a.label())
}

// RequireBackendQuery runs a backend query and stops the test on any failure
func RequireBackendQuery(t require.TestingT, l *Library, q BackendQuery) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	outcome, err := l.ShouldBackendQueryEqual(context.Background(), q)
	if outcome != nil && !outcome.Passed {
		require.FailNow(t, "backend rows mismatch", "query %q\n%s", q.label(), outcome.Diagnostic())
	}
	require.NoError(t, err, "query %q", q.label())
}
