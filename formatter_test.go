package cliverify

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

func createSampleReport() *Report {
	r := &Report{
		RunID:    "test-run-id",
		Suite:    "smoke",
		Duration: 1500 * time.Millisecond,
		Results: []*ActionResult{
			{
				Name:     "select one",
				Kind:     KindCLI,
				Status:   types.VerificationPass,
				Outcome:  &types.VerificationOutcome{Passed: true, Iteration: 3},
				Duration: time.Second,
			},
			{
				Name:   "select two",
				Kind:   KindCLI,
				Status: types.VerificationFail,
				Outcome: &types.VerificationOutcome{
					Iteration: 1,
					Message:   `stdout mismatch: expected "2\n", got "1\n"`,
				},
				Duration: 200 * time.Millisecond,
			},
			{
				Name:     "providers",
				Kind:     KindBackendQuery,
				Status:   types.VerificationError,
				Err:      errors.New("backend query failed: no such table"),
				Duration: 10 * time.Millisecond,
			},
		},
	}
	r.tally()
	return r
}

func TestConsoleResultFormatter_FormatResults(t *testing.T) {
	var out bytes.Buffer
	formatter := NewConsoleResultFormatter(log.NewLogger(log.DiscardHandler()), &out)

	require.NoError(t, formatter.FormatResults(createSampleReport()))

	output := out.String()
	assert.Contains(t, output, "select one")
	assert.Contains(t, output, "select two")
	assert.Contains(t, output, "stdout mismatch")
	assert.Contains(t, output, "no such table")
	assert.Contains(t, output, "Run test-run-id of suite \"smoke\": error")
}

func TestConsoleResultFormatter_FormatResults_EmptyReport(t *testing.T) {
	var out bytes.Buffer
	formatter := NewConsoleResultFormatter(log.NewLogger(log.DiscardHandler()), &out)
	r := &Report{RunID: "empty-run", Suite: "empty"}
	r.tally()

	require.NoError(t, formatter.FormatResults(r))
	// Footers are upper-cased by the default table style
	assert.Contains(t, strings.ToLower(out.String()), "0 passed, 0 failed, 0 errored")
}

func TestRenderReport_PlainHasNoEscapes(t *testing.T) {
	plain := RenderReport(createSampleReport(), false)
	assert.NotContains(t, plain, "\x1b[")
	assert.Contains(t, strings.ToLower(plain), "1 passed, 1 failed, 1 errored")
	assert.Contains(t, plain, "1.5s")
}

func TestGetResultString(t *testing.T) {
	assert.Equal(t, "✓ pass", getResultString(types.VerificationPass))
	assert.Equal(t, "✗ fail", getResultString(types.VerificationFail))
	assert.Equal(t, "! error", getResultString(types.VerificationError))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.0s", formatDuration(0))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "60.0s", formatDuration(time.Minute))
}
