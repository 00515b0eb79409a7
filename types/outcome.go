package types

import (
	"fmt"
	"strings"
)

// Stream names a captured output channel
type Stream string

const (
	StreamStdout   Stream = "stdout"
	StreamStderr   Stream = "stderr"
	StreamExitCode Stream = "exit_code"
)

// VerificationStatus represents the result of a verification
type VerificationStatus string

const (
	VerificationPass  VerificationStatus = "pass"
	VerificationFail  VerificationStatus = "fail"
	VerificationError VerificationStatus = "error"
)

// StreamMismatch describes how one stream diverged from its expectation
type StreamMismatch struct {
	Stream   Stream
	Expected string // quoted, possibly truncated
	Actual   string // quoted, possibly truncated
	Diff     string // unified diff of the normalized values, empty for exit codes
}

func (m StreamMismatch) String() string {
	return fmt.Sprintf("%s mismatch: expected %s, got %s", m.Stream, m.Expected, m.Actual)
}

// VerificationOutcome is the terminal value of a test action
type VerificationOutcome struct {
	Passed     bool
	Mismatches []StreamMismatch
	ExitCode   int
	Iteration  int // 1-based iteration of the repeat loop that produced this outcome
	Message    string
}

// Status maps the outcome onto a VerificationStatus
func (o *VerificationOutcome) Status() VerificationStatus {
	if o.Passed {
		return VerificationPass
	}
	return VerificationFail
}

// Failed reports whether the given stream is among the mismatches
func (o *VerificationOutcome) Failed(stream Stream) bool {
	for _, m := range o.Mismatches {
		if m.Stream == stream {
			return true
		}
	}
	return false
}

// FailedStreams lists the diverging streams in report order
func (o *VerificationOutcome) FailedStreams() []Stream {
	streams := make([]Stream, 0, len(o.Mismatches))
	for _, m := range o.Mismatches {
		streams = append(streams, m.Stream)
	}
	return streams
}

// Err returns a VerificationMismatch for failed outcomes and nil otherwise
func (o *VerificationOutcome) Err() error {
	if o == nil || o.Passed {
		return nil
	}
	return NewVerificationMismatch(o)
}

// Diagnostic renders the full mismatch report including diffs
func (o *VerificationOutcome) Diagnostic() string {
	if o.Passed {
		return o.Message
	}
	var sb strings.Builder
	sb.WriteString(o.Message)
	for _, m := range o.Mismatches {
		if m.Diff == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(m.Diff)
	}
	return sb.String()
}
