// Package logging persists the captured output of CLI invocations to disk.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-cliverify/invocation"
	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

const (
	RunDirectoryPrefix = "cliverify-run-" // Standardized prefix for run directories
	SummaryFileName    = "summary.log"
)

// ArtifactWriter stores each invocation's streams under
// <baseDir>/<prefix><runID>/<action>/iter-NNN.{stdout,stderr,command}.
// ANSI escape sequences are stripped so the files read cleanly.
type ArtifactWriter struct {
	runDir string
}

// NewArtifactWriter creates the run directory for runID
func NewArtifactWriter(baseDir string, runID string) (*ArtifactWriter, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	runDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", runDir, err)
	}
	return &ArtifactWriter{runDir: runDir}, nil
}

// RunDir returns the directory artifacts of this run are written to
func (w *ArtifactWriter) RunDir() string {
	return w.runDir
}

// ActionDir returns the directory holding the artifacts of one action
func (w *ArtifactWriter) ActionDir(action string) string {
	return filepath.Join(w.runDir, safeFilename(action))
}

// WriteInvocation stores the streams of one iteration of an action.
// Secret values never reach disk: the command file masks them.
func (w *ArtifactWriter) WriteInvocation(action string, iteration int, spec *types.InvocationSpec, result *types.ExecutionResult) error {
	dir := w.ActionDir(action)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	base := filepath.Join(dir, fmt.Sprintf("iter-%03d", iteration))

	argv := invocation.MaskArgv(spec.Argv(), spec.Secrets.Okta, spec.Secrets.GitHub, spec.Secrets.K8s)
	var cmd strings.Builder
	fmt.Fprintf(&cmd, "argv: %s\n", strings.Join(argv, " "))
	fmt.Fprintf(&cmd, "dir: %s\n", spec.WorkDir)
	fmt.Fprintf(&cmd, "exit_code: %d\n", result.ExitCode)
	fmt.Fprintf(&cmd, "duration: %s\n", result.Duration)
	if result.StdoutTruncated || result.StderrTruncated {
		fmt.Fprintf(&cmd, "truncated: stdout=%t stderr=%t\n", result.StdoutTruncated, result.StderrTruncated)
	}

	files := map[string]string{
		base + ".command": cmd.String(),
		base + ".stdout":  stripansi.Strip(string(result.Stdout)),
		base + ".stderr":  stripansi.Strip(string(result.Stderr)),
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

// WriteSummary writes the run summary file
func (w *ArtifactWriter) WriteSummary(content string) error {
	path := filepath.Join(w.runDir, SummaryFileName)
	if err := os.WriteFile(path, []byte(stripansi.Strip(content)), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func safeFilename(s string) string {
	// Replace characters that might be problematic in filenames
	s = strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
		"...", "",
	).Replace(s)
	if s == "" || s == "." || s == ".." {
		s = "unnamed"
	}
	return s
}
