package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "cliverify"
)

// Invocation outcome labels
const (
	OutcomeExited   = "exited"
	OutcomeTimeout  = "timeout"
	OutcomeLaunch   = "launch_error"
	OutcomeCanceled = "canceled"
)

var (
	Debug                bool = true
	validResults              = []types.VerificationStatus{types.VerificationPass, types.VerificationFail, types.VerificationError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "invocations_total",
		Help:      "Count of CLI invocations",
	}, []string{
		"backend",
		"outcome",
	})

	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "invocation_duration_seconds",
		Help:      "Wall-clock duration of CLI invocations",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{
		"backend",
	})

	admissionWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "admission_wait_seconds",
		Help:      "Time spent waiting for a concurrency slot",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	inflight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "inflight_invocations",
		Help:      "Number of CLI processes currently running",
	})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "verifications_total",
		Help:      "Count of test action verifications",
	}, []string{
		"action",
		"result",
	})

	suiteResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_results",
		Help:      "Result of the last suite run",
	}, []string{
		"suite",
		"run_id",
		"result",
	})

	suiteActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_actions_total",
		Help:      "Number of actions run per suite, by result",
	}, []string{
		"suite",
		"result",
	})

	suiteDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration_seconds",
		Help:      "Duration of the last suite run",
	}, []string{
		"suite",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordInvocation records one finished (or aborted) CLI process
func RecordInvocation(backend types.SQLBackend, outcome string, duration time.Duration) {
	invocationsTotal.WithLabelValues(string(backend), outcome).Inc()
	if outcome == OutcomeExited || outcome == OutcomeTimeout {
		invocationDuration.WithLabelValues(string(backend)).Observe(duration.Seconds())
	}
}

// RecordAdmissionWait records how long a caller queued for a concurrency slot
func RecordAdmissionWait(d time.Duration) {
	admissionWait.Observe(d.Seconds())
}

// IncInflight and DecInflight track running CLI processes
func IncInflight() { inflight.Inc() }

func DecInflight() { inflight.Dec() }

func RecordVerification(action string, result types.VerificationStatus) {
	if !isValidResult(result) {
		log.Error("RecordVerification - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "verifications_total",
			"action", action,
			"result", result)
	}
	verificationsTotal.WithLabelValues(action, string(result)).Inc()
}

func RecordSuite(
	suite string,
	runID string,
	result string,
	passed int,
	failed int,
	errored int,
	duration time.Duration,
) {
	suiteResults.WithLabelValues(suite, runID, result).Set(1)
	suiteActionsTotal.WithLabelValues(suite, string(types.VerificationPass)).Add(float64(passed))
	suiteActionsTotal.WithLabelValues(suite, string(types.VerificationFail)).Add(float64(failed))
	suiteActionsTotal.WithLabelValues(suite, string(types.VerificationError)).Add(float64(errored))
	suiteDuration.WithLabelValues(suite).Set(duration.Seconds())
}

func isValidResult(result types.VerificationStatus) bool {
	return slices.Contains(validResults, result)
}
