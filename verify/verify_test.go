package verify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

func intPtr(i int) *int { return &i }

func TestVerify(t *testing.T) {
	tests := []struct {
		name           string
		result         types.ExecutionResult
		expectedStdout string
		expectedStderr string
		opts           types.VerifyOptions
		passed         bool
		failed         []types.Stream
	}{
		{
			name:           "select one passes",
			result:         types.ExecutionResult{Stdout: []byte("1\n")},
			expectedStdout: "1",
			passed:         true,
		},
		{
			name:           "select one against two fails on stdout",
			result:         types.ExecutionResult{Stdout: []byte("1\n")},
			expectedStdout: "2\n",
			failed:         []types.Stream{types.StreamStdout},
		},
		{
			name:           "trailing whitespace ignored on both sides",
			result:         types.ExecutionResult{Stdout: []byte("a\n\n  \t\n"), Stderr: []byte("w \n")},
			expectedStdout: "a  ",
			expectedStderr: "w\n\n",
			passed:         true,
		},
		{
			name:           "leading whitespace is significant",
			result:         types.ExecutionResult{Stdout: []byte(" 1\n")},
			expectedStdout: "1",
			failed:         []types.Stream{types.StreamStdout},
		},
		{
			name:           "both streams must match",
			result:         types.ExecutionResult{Stdout: []byte("1\n"), Stderr: []byte("deprecated\n")},
			expectedStdout: "1",
			failed:         []types.Stream{types.StreamStderr},
		},
		{
			name:           "both streams fail",
			result:         types.ExecutionResult{Stdout: []byte("x"), Stderr: []byte("y")},
			expectedStdout: "1",
			expectedStderr: "",
			failed:         []types.Stream{types.StreamStdout, types.StreamStderr},
		},
		{
			name:           "ansi kept by default",
			result:         types.ExecutionResult{Stdout: []byte("\x1b[32m1\x1b[0m\n")},
			expectedStdout: "1",
			failed:         []types.Stream{types.StreamStdout},
		},
		{
			name:           "ansi stripped on request",
			result:         types.ExecutionResult{Stdout: []byte("\x1b[32m1\x1b[0m\n")},
			expectedStdout: "1",
			opts:           types.VerifyOptions{StripANSI: true},
			passed:         true,
		},
		{
			name:           "regexp full match",
			result:         types.ExecutionResult{Stdout: []byte("row 1\nrow 2\n")},
			expectedStdout: `row \d\nrow \d`,
			opts:           types.VerifyOptions{Match: types.MatchRegexp},
			passed:         true,
		},
		{
			name:           "regexp must match the whole stream",
			result:         types.ExecutionResult{Stdout: []byte("row 1 extra\n")},
			expectedStdout: `row \d`,
			opts:           types.VerifyOptions{Match: types.MatchRegexp},
			failed:         []types.Stream{types.StreamStdout},
		},
		{
			name:           "expected exit code matches",
			result:         types.ExecutionResult{Stderr: []byte("syntax error\n"), ExitCode: 1},
			expectedStderr: "syntax error",
			opts:           types.VerifyOptions{ExpectedExitCode: intPtr(1)},
			passed:         true,
		},
		{
			name:   "expected exit code differs",
			result: types.ExecutionResult{ExitCode: 2},
			opts:   types.VerifyOptions{ExpectedExitCode: intPtr(0)},
			failed: []types.Stream{types.StreamExitCode},
		},
		{
			name:   "exit code ignored when not expected",
			result: types.ExecutionResult{ExitCode: 3},
			passed: true,
		},
		{
			name:   "signal always fails",
			result: types.ExecutionResult{ExitCode: -1},
			failed: []types.Stream{types.StreamExitCode},
		},
	}

	v := NewVerifier(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := v.Verify(&tt.result, tt.expectedStdout, tt.expectedStderr, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.passed, outcome.Passed, outcome.Message)
			if tt.passed {
				assert.Empty(t, outcome.Mismatches)
				assert.Equal(t, types.VerificationPass, outcome.Status())
				return
			}
			assert.Equal(t, tt.failed, outcome.FailedStreams())
			for _, s := range tt.failed {
				assert.Contains(t, outcome.Message, string(s)+" mismatch")
			}
		})
	}
}

func TestVerify_DiagnosticContent(t *testing.T) {
	v := NewVerifier(0)
	outcome, err := v.Verify(&types.ExecutionResult{Stdout: []byte("1\n")}, "2\n", "", types.VerifyOptions{})
	require.NoError(t, err)
	require.False(t, outcome.Passed)

	assert.Equal(t, `stdout mismatch: expected "2\n", got "1\n"`, outcome.Message)
	require.Len(t, outcome.Mismatches, 1)
	diff := outcome.Mismatches[0].Diff
	assert.Contains(t, diff, "--- expected stdout")
	assert.Contains(t, diff, "+++ actual stdout")
	assert.Contains(t, diff, "-2")
	assert.Contains(t, diff, "+1")
	assert.Contains(t, outcome.Diagnostic(), diff)
}

func TestVerify_LongValuesTruncatedWithMarker(t *testing.T) {
	v := NewVerifier(16)
	long := strings.Repeat("x", 100)
	outcome, err := v.Verify(&types.ExecutionResult{Stdout: []byte(long), StdoutTruncated: true}, "short", "", types.VerifyOptions{})
	require.NoError(t, err)
	require.Len(t, outcome.Mismatches, 1)

	actual := outcome.Mismatches[0].Actual
	assert.Contains(t, actual, "84 more bytes truncated")
	assert.Contains(t, actual, "captured output was truncated")
	assert.NotEmpty(t, outcome.Mismatches[0].Diff)
}

func TestVerify_DoesNotMutateResult(t *testing.T) {
	result := &types.ExecutionResult{Stdout: []byte("\x1b[1m1\x1b[0m \n"), Stderr: []byte("e\n")}
	stdout := append([]byte(nil), result.Stdout...)
	stderr := append([]byte(nil), result.Stderr...)

	_, err := NewVerifier(0).Verify(result, "1", "e", types.VerifyOptions{StripANSI: true})
	require.NoError(t, err)
	assert.Equal(t, stdout, result.Stdout)
	assert.Equal(t, stderr, result.Stderr)
}

func TestVerify_InvalidRegexp(t *testing.T) {
	_, err := NewVerifier(0).Verify(&types.ExecutionResult{}, "(unclosed", "", types.VerifyOptions{Match: types.MatchRegexp})
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a\n b", Normalize("a\n b \r\n\t", false))
	assert.Equal(t, "ok", Normalize("\x1b[31mok\x1b[0m\n", true))
	assert.Equal(t, "", Normalize("\n\n", false))
}
