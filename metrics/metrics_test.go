package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("stackql@exec#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	validLabelRegex := regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			assert.Regexp(t, validLabelRegex, result)
		})
	}
}

func TestRecordError(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordError("test_error")
		RecordErrorDetails("runner", errors.New("exec: not found"))
		RecordErrorDetails("runner", nil)
	})
}

func TestRecordVerification(t *testing.T) {
	before := testutil.ToFloat64(verificationsTotal.WithLabelValues("select_one", string(types.VerificationPass)))
	RecordVerification("select_one", types.VerificationPass)
	RecordVerification("select_one", types.VerificationStatus("bogus"))
	after := testutil.ToFloat64(verificationsTotal.WithLabelValues("select_one", string(types.VerificationPass)))
	assert.Equal(t, before+1, after)
}

func TestRecordInvocation(t *testing.T) {
	before := testutil.ToFloat64(invocationsTotal.WithLabelValues("sqlite_embedded", OutcomeExited))
	RecordInvocation(types.SQLBackendEmbedded, OutcomeExited, 50*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(invocationsTotal.WithLabelValues("sqlite_embedded", OutcomeExited)))

	IncInflight()
	assert.Equal(t, float64(1), testutil.ToFloat64(inflight))
	DecInflight()
	assert.Equal(t, float64(0), testutil.ToFloat64(inflight))
}

func TestRecordSuite(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordSuite("smoke", "run-1", "fail", 3, 1, 0, time.Second)
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(suiteResults.WithLabelValues("smoke", "run-1", "fail")))
}
