// Package exitcodes defines the standard exit codes used by op-cliverify.
package exitcodes

// Exit code constants used by op-cliverify
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): every action matched its expected streams
// * TestFailure (1): at least one action's output diverged from its expectation
// * RuntimeErr (2): the harness could not run the CLI (configuration, launch or timeout errors)
const (
	Success     = 0 // All actions pass
	TestFailure = 1 // Verification mismatches
	RuntimeErr  = 2 // Harness errors
)
