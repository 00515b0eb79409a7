// Package testutil holds helpers shared by package tests: fake CLI executables
// written as shell scripts.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// StackqlMockScript answers a fixed set of queries, taken from its last argument.
// When MOCK_ARGV_LOG is set every invocation appends its arguments there.
const StackqlMockScript = `#!/bin/sh
if [ -n "$MOCK_ARGV_LOG" ]; then
  printf '%s\n' "$*" >> "$MOCK_ARGV_LOG"
fi
for last; do :; done
case "$last" in
  "SELECT 1") printf '1\n' ;;
  "SELECT 2") printf '2\n' ;;
  "SELECT ERR") printf 'syntax error at or near "ERR"\n' >&2; exit 1 ;;
  "SELECT BOTH") printf 'out\n'; printf 'warn\n' >&2 ;;
  "SHOW SECRET") printf '%s\n' "$OKTA_SECRET_KEY" ;;
  "SHOW PWD") pwd ;;
  "SHOW COLOR") printf '\033[32m1\033[0m\n' ;;
  "SLEEP") sleep 5 ;;
  "SIGNAL") kill -9 $$ ;;
  *) printf 'unknown query: %s\n' "$last" >&2; exit 2 ;;
esac
`

// SkipIfNoShell skips tests that rely on /bin/sh scripts
func SkipIfNoShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures are not supported on windows")
	}
}

// WriteScript writes an executable script named name into dir and returns its path
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

// StackqlMock writes the stackqlmock fake CLI into a temp dir and returns its path
func StackqlMock(t *testing.T) string {
	t.Helper()
	SkipIfNoShell(t)
	return WriteScript(t, t.TempDir(), "stackqlmock", StackqlMockScript)
}
