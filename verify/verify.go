// Package verify compares captured CLI output with expected values.
package verify

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/acarl005/stripansi"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

// DefaultMaxDiagnosticBytes caps each value shown in a mismatch message
const DefaultMaxDiagnosticBytes = 4096

// Verifier checks an ExecutionResult against expected stdout and stderr.
// It never modifies the result it is given.
type Verifier struct {
	maxDiagnosticBytes int
}

// NewVerifier creates a Verifier. maxDiagnosticBytes <= 0 selects the default.
func NewVerifier(maxDiagnosticBytes int) *Verifier {
	if maxDiagnosticBytes <= 0 {
		maxDiagnosticBytes = DefaultMaxDiagnosticBytes
	}
	return &Verifier{maxDiagnosticBytes: maxDiagnosticBytes}
}

// Normalize trims trailing whitespace and optionally removes ANSI escape sequences
func Normalize(s string, stripANSI bool) string {
	if stripANSI {
		s = stripansi.Strip(s)
	}
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// Verify compares both streams and, when requested, the exit code.
// A malformed regular expression is a ConfigurationError; a mismatch is not an error.
func (v *Verifier) Verify(result *types.ExecutionResult, expectedStdout, expectedStderr string, opts types.VerifyOptions) (*types.VerificationOutcome, error) {
	if result == nil {
		return nil, errors.New("execution result cannot be nil")
	}
	if opts.Match == "" {
		opts.Match = types.MatchExact
	}

	var mismatches []types.StreamMismatch
	streams := []struct {
		stream    types.Stream
		expected  string
		actual    []byte
		truncated bool
	}{
		{types.StreamStdout, expectedStdout, result.Stdout, result.StdoutTruncated},
		{types.StreamStderr, expectedStderr, result.Stderr, result.StderrTruncated},
	}
	for _, s := range streams {
		m, err := v.compare(s.stream, s.expected, string(s.actual), s.truncated, opts)
		if err != nil {
			return nil, err
		}
		if m != nil {
			mismatches = append(mismatches, *m)
		}
	}

	if m := checkExitCode(result, opts.ExpectedExitCode); m != nil {
		mismatches = append(mismatches, *m)
	}

	outcome := &types.VerificationOutcome{
		Passed:     len(mismatches) == 0,
		Mismatches: mismatches,
		ExitCode:   result.ExitCode,
	}
	if outcome.Passed {
		outcome.Message = "stdout and stderr matched"
	} else {
		parts := make([]string, 0, len(mismatches))
		for _, m := range mismatches {
			parts = append(parts, m.String())
		}
		outcome.Message = strings.Join(parts, "; ")
	}
	return outcome, nil
}

func (v *Verifier) compare(stream types.Stream, expected, actual string, truncated bool, opts types.VerifyOptions) (*types.StreamMismatch, error) {
	normExpected := Normalize(expected, false)
	normActual := Normalize(actual, opts.StripANSI)

	var matched bool
	switch opts.Match {
	case types.MatchExact:
		matched = normExpected == normActual
	case types.MatchRegexp:
		re, err := regexp.Compile(`^(?s:` + normExpected + `)$`)
		if err != nil {
			return nil, types.NewConfigurationError("expected_"+string(stream), fmt.Errorf("invalid regular expression: %w", err))
		}
		matched = re.MatchString(normActual)
	default:
		return nil, types.NewConfigurationError("match", fmt.Errorf("unrecognized match mode %q", opts.Match))
	}
	if matched {
		return nil, nil
	}

	shownActual := v.quote(actual)
	if truncated {
		shownActual += " (captured output was truncated to its tail)"
	}
	return &types.StreamMismatch{
		Stream:   stream,
		Expected: v.quote(expected),
		Actual:   shownActual,
		Diff:     v.diff(stream, normExpected, normActual),
	}, nil
}

func checkExitCode(result *types.ExecutionResult, expected *int) *types.StreamMismatch {
	if result.Signaled() {
		want := "normal exit"
		if expected != nil {
			want = strconv.Itoa(*expected)
		}
		return &types.StreamMismatch{
			Stream:   types.StreamExitCode,
			Expected: want,
			Actual:   "terminated by signal",
		}
	}
	if expected != nil && *expected != result.ExitCode {
		return &types.StreamMismatch{
			Stream:   types.StreamExitCode,
			Expected: strconv.Itoa(*expected),
			Actual:   strconv.Itoa(result.ExitCode),
		}
	}
	return nil
}

// quote renders s for a diagnostic, cutting it at the byte cap with an explicit marker
func (v *Verifier) quote(s string) string {
	if len(s) <= v.maxDiagnosticBytes {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%s...(%d more bytes truncated)", strconv.Quote(s[:v.maxDiagnosticBytes]), len(s)-v.maxDiagnosticBytes)
}

func (v *Verifier) diff(stream types.Stream, expected, actual string) string {
	diffText, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected + "\n"),
		B:        difflib.SplitLines(actual + "\n"),
		FromFile: "expected " + string(stream),
		ToFile:   "actual " + string(stream),
		Context:  3,
	})
	if err != nil {
		return err.Error()
	}
	if len(diffText) > v.maxDiagnosticBytes {
		diffText = diffText[:v.maxDiagnosticBytes] + fmt.Sprintf("\n...(diff truncated, %d more bytes)\n", len(diffText)-v.maxDiagnosticBytes)
	}
	return diffText
}
