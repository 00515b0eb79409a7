// Package types contains shared types used across the cliverify testing framework
package types

import (
	"fmt"
	"strings"
	"time"
)

// SQLBackend selects the SQL engine the CLI under test persists into
type SQLBackend string

// String implements the Stringer interface for SQLBackend
func (b SQLBackend) String() string {
	return string(b)
}

// SQLBackend enum values
const (
	SQLBackendEmbedded SQLBackend = "sqlite_embedded"
	SQLBackendNetwork  SQLBackend = "postgres_tcp"
)

// IsValid reports whether the backend is one of the recognized selectors
func (b SQLBackend) IsValid() bool {
	switch b {
	case SQLBackendEmbedded, SQLBackendNetwork:
		return true
	}
	return false
}

// ParseSQLBackend converts a selector string into a SQLBackend.
func ParseSQLBackend(s string) (SQLBackend, error) {
	b := SQLBackend(strings.TrimSpace(s))
	if !b.IsValid() {
		return "", NewConfigurationError("sql_backend",
			fmt.Errorf("unrecognized SQL backend %q, must be one of: %s, %s", s, SQLBackendEmbedded, SQLBackendNetwork))
	}
	return b, nil
}

// ExecutionPlatform describes where the CLI under test is launched
type ExecutionPlatform string

const (
	ExecutionPlatformNative ExecutionPlatform = "native"
	ExecutionPlatformDocker ExecutionPlatform = "docker"
)

// Secrets holds the three named secret strings handed to the CLI under test.
// An empty string means the secret is absent; it is still bound.
type Secrets struct {
	Okta   string
	GitHub string
	K8s    string
}

// InvocationSpec is a fully built, immutable CLI invocation
type InvocationSpec struct {
	Executable       string
	Args             []string // argv without the executable
	Env              []string // KEY=VALUE additions, sorted
	WorkDir          string
	Secrets          Secrets
	AuthCfg          string
	Backend          SQLBackend
	ConcurrencyLimit int
	Query            string
}

// Argv returns the executable followed by its arguments
func (s *InvocationSpec) Argv() []string {
	argv := make([]string, 0, len(s.Args)+1)
	argv = append(argv, s.Executable)
	return append(argv, s.Args...)
}

// ExecutionResult captures what a single CLI invocation produced
type ExecutionResult struct {
	Stdout          []byte
	Stderr          []byte
	ExitCode        int
	Duration        time.Duration
	StdoutTruncated bool // only the tail of stdout was kept
	StderrTruncated bool
}

// Signaled reports whether the process was terminated by a signal rather than exiting
func (r *ExecutionResult) Signaled() bool {
	return r.ExitCode < 0
}
