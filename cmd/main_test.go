package main_test

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cliverify/exitcodes"
	"github.com/ethereum-optimism/infra/op-cliverify/testutil"
)

var (
	buildOnce sync.Once
	binPath   string
	buildErr  error
)

// buildBinary compiles op-cliverify once per test binary
func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping binary build in short mode")
	}
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "op-cliverify-bin-")
		if err != nil {
			buildErr = err
			return
		}
		binPath = filepath.Join(dir, "op-cliverify")
		wd, err := os.Getwd()
		if err != nil {
			buildErr = err
			return
		}
		cmd := exec.Command("go", "build", "-o", binPath, wd)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := cmd.Run(); err != nil {
			buildErr = errors.Join(err, errors.New(out.String()))
		}
	})
	require.NoError(t, buildErr, "failed to build op-cliverify")
	return binPath
}

func writeSuite(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// TestExitCodeBehavior checks the run-once exit codes:
// 0 when every action passes, 1 on a mismatch and 2 when the harness cannot run the CLI
func TestExitCodeBehavior(t *testing.T) {
	bin := buildBinary(t)
	mock := testutil.StackqlMock(t)

	testCases := []struct {
		name           string
		suite          string
		expectedStatus int
	}{
		{
			name: "Passing suite should exit with code 0",
			suite: `name: smoke
executable: ` + mock + `
actions:
  - name: select-one
    query: SELECT 1
    expected_stdout: "1"
`,
			expectedStatus: exitcodes.Success,
		},
		{
			name: "Mismatch should exit with code 1",
			suite: `name: smoke
executable: ` + mock + `
actions:
  - name: select-one
    query: SELECT 1
    expected_stdout: "2\n"
`,
			expectedStatus: exitcodes.TestFailure,
		},
		{
			name: "Missing executable should exit with code 2",
			suite: `name: smoke
executable: /does/not/exist/stackql
actions:
  - name: select-one
    query: SELECT 1
    expected_stdout: "1"
`,
			expectedStatus: exitcodes.RuntimeErr,
		},
		{
			name: "Invalid suite should exit with code 2",
			suite: `name: smoke
actions: []
`,
			expectedStatus: exitcodes.RuntimeErr,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			suitePath := writeSuite(t, dir, tc.suite)

			cmd := exec.Command(bin,
				"--suite", suitePath,
				"--artifact-root", dir,
				"--logdir", filepath.Join(dir, "logs"),
				"--log.level", "error",
			)
			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = &out
			err := cmd.Run()

			exitCode := 0
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.expectedStatus, exitCode, "unexpected exit code, output:\n%s", out.String())
		})
	}
}

func TestMissingSuiteFlag(t *testing.T) {
	bin := buildBinary(t)
	cmd := exec.Command(bin)
	err := cmd.Run()
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, exitcodes.RuntimeErr, exitErr.ExitCode())
}

func TestSummaryWritten(t *testing.T) {
	bin := buildBinary(t)
	mock := testutil.StackqlMock(t)
	dir := t.TempDir()
	suitePath := writeSuite(t, dir, `name: smoke
executable: `+mock+`
actions:
  - name: select-one
    query: SELECT 1
    expected_stdout: "1"
`)
	logDir := filepath.Join(dir, "logs")
	cmd := exec.Command(bin, "--suite", suitePath, "--artifact-root", dir, "--logdir", logDir)
	require.NoError(t, cmd.Run())

	summaries, err := filepath.Glob(filepath.Join(logDir, "cliverify-run-*", "summary.log"))
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	content, err := os.ReadFile(summaries[0])
	require.NoError(t, err)
	require.Contains(t, string(content), "select-one")

	stdouts, err := filepath.Glob(filepath.Join(logDir, "cliverify-run-*", "select-one", "iter-001.stdout"))
	require.NoError(t, err)
	require.Len(t, stdouts, 1)
}
