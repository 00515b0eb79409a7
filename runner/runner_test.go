package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cliverify/testutil"
	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

func newTestRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	cfg.Log = log.NewLogger(log.DiscardHandler())
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	return r
}

func mockSpec(executable, query string) *types.InvocationSpec {
	return &types.InvocationSpec{
		Executable: executable,
		Args:       []string{"exec", "--auth={}", "--registry={}", query},
		Env:        []string{"GITHUB_SECRET_KEY=", "K8S_SECRET_KEY=", "OKTA_SECRET_KEY="},
		Backend:    types.SQLBackendEmbedded,
		Query:      query,
	}
}

func TestRun_SelectOne(t *testing.T) {
	mock := testutil.StackqlMock(t)
	r := newTestRunner(t, Config{})

	result, err := r.Run(context.Background(), mockSpec(mock, "SELECT 1"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(result.Stdout))
	assert.Empty(t, result.Stderr)
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, result.Signaled())
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestRun_StreamsCapturedSeparately(t *testing.T) {
	mock := testutil.StackqlMock(t)
	r := newTestRunner(t, Config{})

	result, err := r.Run(context.Background(), mockSpec(mock, "SELECT BOTH"), 0)
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(result.Stdout))
	assert.Equal(t, "warn\n", string(result.Stderr))
}

func TestRun_NonZeroExitIsData(t *testing.T) {
	mock := testutil.StackqlMock(t)
	r := newTestRunner(t, Config{})

	result, err := r.Run(context.Background(), mockSpec(mock, "SELECT ERR"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, string(result.Stderr), "syntax error")
	assert.Empty(t, result.Stdout)
}

func TestRun_Signaled(t *testing.T) {
	mock := testutil.StackqlMock(t)
	r := newTestRunner(t, Config{})

	result, err := r.Run(context.Background(), mockSpec(mock, "SIGNAL"), 0)
	require.NoError(t, err)
	assert.True(t, result.Signaled())
}

func TestRun_LaunchErrors(t *testing.T) {
	testutil.SkipIfNoShell(t)
	dir := t.TempDir()
	notExecutable := filepath.Join(dir, "stackql")
	require.NoError(t, os.WriteFile(notExecutable, []byte("#!/bin/sh\necho 1\n"), 0644))

	tests := []struct {
		name       string
		executable string
	}{
		{name: "missing file", executable: filepath.Join(dir, "does-not-exist")},
		{name: "not on PATH", executable: "stackql-definitely-not-installed"},
		{name: "not executable", executable: notExecutable},
	}

	r := newTestRunner(t, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Run(context.Background(), mockSpec(tt.executable, "SELECT 1"), 0)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, types.IsProcessLaunchError(err), "expected ProcessLaunchError, got %T: %v", err, err)
		})
	}
}

func TestRun_Timeout(t *testing.T) {
	mock := testutil.StackqlMock(t)
	r := newTestRunner(t, Config{})

	start := time.Now()
	result, err := r.Run(context.Background(), mockSpec(mock, "SLEEP"), 200*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, result, "no partial result on timeout")
	assert.True(t, types.IsProcessTimeoutError(err), "expected ProcessTimeoutError, got %T: %v", err, err)
	assert.Less(t, elapsed, 4*time.Second, "the sleeping grandchild must be killed with the group")
}

func TestRun_ExitBeforeDeadlineIsNotTimeout(t *testing.T) {
	testutil.SkipIfNoShell(t)
	// Exits at once, but a background child keeps stdout open past the deadline
	script := testutil.WriteScript(t, t.TempDir(), "leaky",
		"#!/bin/sh\nprintf 'x\\n'\nsleep 3 &\nexit 3\n")
	r := newTestRunner(t, Config{WaitDelay: time.Second})

	result, err := r.Run(context.Background(), mockSpec(script, "SELECT 1"), 200*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, types.IsProcessTimeoutError(err))
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.Signaled())
}

func TestRun_ParentCancel(t *testing.T) {
	mock := testutil.StackqlMock(t)
	r := newTestRunner(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := r.Run(ctx, mockSpec(mock, "SLEEP"), time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, types.IsProcessTimeoutError(err))
}

func TestRun_WorkDirAndEnv(t *testing.T) {
	mock := testutil.StackqlMock(t)
	r := newTestRunner(t, Config{})

	workDir := filepath.Join(t.TempDir(), "test", ".stackql", "run-000001")
	spec := mockSpec(mock, "SHOW PWD")
	spec.WorkDir = workDir

	result, err := r.Run(context.Background(), spec, 0)
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(workDir)
	require.NoError(t, err)
	assert.Equal(t, resolved, strings.TrimSpace(string(result.Stdout)))

	spec = mockSpec(mock, "SHOW SECRET")
	spec.Env = []string{"GITHUB_SECRET_KEY=", "K8S_SECRET_KEY=", "OKTA_SECRET_KEY=s3cr3t"}
	result, err = r.Run(context.Background(), spec, 0)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t\n", string(result.Stdout))
}

func TestRun_RelativeExecutableWithWorkDir(t *testing.T) {
	testutil.SkipIfNoShell(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	dir, err := os.MkdirTemp(wd, "mock-")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	testutil.WriteScript(t, dir, "stackqlmock", testutil.StackqlMockScript)

	r := newTestRunner(t, Config{})
	spec := mockSpec("./"+filepath.Base(dir)+"/stackqlmock", "SELECT 1")
	spec.WorkDir = t.TempDir()

	result, err := r.Run(context.Background(), spec, 0)
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(result.Stdout))
}

func TestRun_Truncation(t *testing.T) {
	testutil.SkipIfNoShell(t)
	script := testutil.WriteScript(t, t.TempDir(), "chatty", "#!/bin/sh\nprintf 'abcdefghij'\n")
	r := newTestRunner(t, Config{MaxCaptureBytes: 4})

	result, err := r.Run(context.Background(), &types.InvocationSpec{Executable: script}, 0)
	require.NoError(t, err)
	assert.Equal(t, "ghij", string(result.Stdout))
	assert.True(t, result.StdoutTruncated)
	assert.False(t, result.StderrTruncated)
}

func TestRun_ConcurrencyLimitOne(t *testing.T) {
	testutil.SkipIfNoShell(t)
	dir := t.TempDir()
	trace := filepath.Join(dir, "trace.log")
	script := testutil.WriteScript(t, dir, "tracer",
		"#!/bin/sh\necho start >> \""+trace+"\"\nsleep 0.1\necho end >> \""+trace+"\"\n")

	r := newTestRunner(t, Config{ConcurrencyLimit: 1})

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Run(context.Background(), &types.InvocationSpec{Executable: script}, time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(trace)
	require.NoError(t, err)
	lines := strings.Fields(string(data))
	require.Len(t, lines, 2*n)
	for i, line := range lines {
		expected := "start"
		if i%2 == 1 {
			expected = "end"
		}
		assert.Equal(t, expected, line, "line %d: executions overlapped", i)
	}
}

func TestRun_ConcurrencyLimitAllowsParallel(t *testing.T) {
	testutil.SkipIfNoShell(t)
	script := testutil.WriteScript(t, t.TempDir(), "slow", "#!/bin/sh\nsleep 0.5\n")
	r := newTestRunner(t, Config{ConcurrencyLimit: 4})

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Run(context.Background(), &types.InvocationSpec{Executable: script}, time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, time.Since(start), 1900*time.Millisecond)
}

func TestRun_QueuedCallerHonorsCancel(t *testing.T) {
	mock := testutil.StackqlMock(t)
	r := newTestRunner(t, Config{ConcurrencyLimit: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Run(context.Background(), mockSpec(mock, "SLEEP"), time.Second)
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := r.Run(ctx, mockSpec(mock, "SELECT 1"), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, types.IsProcessTimeoutError(err))
	<-done
}

func TestNewRunner(t *testing.T) {
	r := newTestRunner(t, Config{})
	assert.Equal(t, 1, r.ConcurrencyLimit())
	assert.Equal(t, DefaultTimeout, r.defaultTimeout)

	_, err := NewRunner(Config{ConcurrencyLimit: -1})
	assert.True(t, types.IsConfigurationError(err))
	_, err = NewRunner(Config{ConcurrencyLimit: MaxReasonableConcurrency + 1})
	assert.True(t, types.IsConfigurationError(err))
}

func TestRun_NilSpec(t *testing.T) {
	r := newTestRunner(t, Config{})
	_, err := r.Run(context.Background(), nil, 0)
	assert.True(t, types.IsConfigurationError(err))
}
