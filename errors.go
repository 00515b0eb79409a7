package cliverify

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-cliverify/exitcodes"
	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

// The error taxonomy lives in types so every package can produce it; these
// aliases let library users stay in the root package.
type (
	ConfigurationError   = types.ConfigurationError
	ProcessLaunchError   = types.ProcessLaunchError
	ProcessTimeoutError  = types.ProcessTimeoutError
	VerificationMismatch = types.VerificationMismatch
)

var (
	IsConfigurationError   = types.IsConfigurationError
	IsProcessLaunchError   = types.IsProcessLaunchError
	IsProcessTimeoutError  = types.IsProcessTimeoutError
	IsVerificationMismatch = types.IsVerificationMismatch
)

// ActionError annotates a harness error with the action and repeat iteration it happened in
type ActionError struct {
	Action    string
	Iteration int
	Err       error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q iteration %d: %v", e.Action, e.Iteration, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ActionError) Unwrap() error {
	return e.Err
}

// NewActionError creates a new ActionError
func NewActionError(action string, iteration int, err error) *ActionError {
	return &ActionError{Action: action, Iteration: iteration, Err: err}
}

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include an unreadable suite file or a harness error inside an action.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError represents one or more verification mismatches in a suite run (exit code 1)
type TestFailureError struct {
	Message string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// ExitCode maps an error onto the process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case IsRuntimeError(err), types.IsHarnessError(err):
		return exitcodes.RuntimeErr
	case IsTestFailureError(err), IsVerificationMismatch(err):
		return exitcodes.TestFailure
	default:
		return exitcodes.RuntimeErr
	}
}
