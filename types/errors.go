package types

import (
	"errors"
	"fmt"
	"time"
)

// ConfigurationError reports malformed registry, backend or action configuration.
// It is fatal and never retried.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(field string, err error) *ConfigurationError {
	return &ConfigurationError{Field: field, Err: err}
}

// IsConfigurationError checks if the error is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return err != nil && errors.As(err, &cfgErr)
}

// ProcessLaunchError reports that the executable could not be found or started
type ProcessLaunchError struct {
	Executable string
	Err        error
}

func (e *ProcessLaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Executable, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ProcessLaunchError) Unwrap() error {
	return e.Err
}

// NewProcessLaunchError creates a new ProcessLaunchError
func NewProcessLaunchError(executable string, err error) *ProcessLaunchError {
	return &ProcessLaunchError{Executable: executable, Err: err}
}

// IsProcessLaunchError checks if the error is or wraps a ProcessLaunchError
func IsProcessLaunchError(err error) bool {
	var launchErr *ProcessLaunchError
	return err != nil && errors.As(err, &launchErr)
}

// ProcessTimeoutError reports that an invocation exceeded its deadline and was killed
type ProcessTimeoutError struct {
	Executable string
	Timeout    time.Duration
}

func (e *ProcessTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Executable, e.Timeout)
}

// NewProcessTimeoutError creates a new ProcessTimeoutError
func NewProcessTimeoutError(executable string, timeout time.Duration) *ProcessTimeoutError {
	return &ProcessTimeoutError{Executable: executable, Timeout: timeout}
}

// IsProcessTimeoutError checks if the error is or wraps a ProcessTimeoutError
func IsProcessTimeoutError(err error) bool {
	var timeoutErr *ProcessTimeoutError
	return err != nil && errors.As(err, &timeoutErr)
}

// VerificationMismatch is the normal test failure: the CLI ran, but its output diverged
type VerificationMismatch struct {
	Outcome *VerificationOutcome
}

func (e *VerificationMismatch) Error() string {
	return fmt.Sprintf("verification mismatch: %s", e.Outcome.Message)
}

// NewVerificationMismatch creates a new VerificationMismatch
func NewVerificationMismatch(outcome *VerificationOutcome) *VerificationMismatch {
	return &VerificationMismatch{Outcome: outcome}
}

// IsVerificationMismatch checks if the error is or wraps a VerificationMismatch
func IsVerificationMismatch(err error) bool {
	var mismatch *VerificationMismatch
	return err != nil && errors.As(err, &mismatch)
}

// IsHarnessError reports whether err means the harness could not run the tool,
// as opposed to the tool producing unexpected output.
func IsHarnessError(err error) bool {
	return IsConfigurationError(err) || IsProcessLaunchError(err) || IsProcessTimeoutError(err)
}
