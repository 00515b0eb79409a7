// Package runner executes built CLI invocations as child processes.
//
// The main components are:
//   - Runner: admits invocations under a FIFO concurrency budget, launches the
//     process in its own process group, captures stdout and stderr separately
//     and enforces a per-invocation timeout
//   - tailBuffer: keeps the most recent bytes of a stream when its output
//     exceeds the capture cap
//
// A non-zero exit code is reported in the ExecutionResult, never as an error.
// Errors are reserved for the harness failing to run the tool at all.
package runner
