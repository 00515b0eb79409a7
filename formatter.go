package cliverify

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

// ResultFormatter is responsible for formatting and displaying suite reports.
type ResultFormatter interface {
	FormatResults(report *Report) error
}

// ConsoleResultFormatter prints a results table to its output.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleResultFormatter creates a formatter writing to out, or stdout when out is nil.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

// FormatResults writes the rendered table followed by the one-line summary.
func (f *ConsoleResultFormatter) FormatResults(report *Report) error {
	f.logger.Info("Printing results...")
	if _, err := fmt.Fprintln(f.out, RenderReport(report, true)); err != nil {
		return fmt.Errorf("failed to print results: %w", err)
	}
	_, err := fmt.Fprintln(f.out, report.String())
	return err
}

// RenderReport renders the report as a table. Colors are only used when colored is set,
// so the same rendering can be stored as a plain text artifact.
func RenderReport(report *Report, colored bool) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("CLI Verification Results: %s (%s)", report.Suite, formatDuration(report.Duration)))

	t.AppendHeader(table.Row{
		"Kind", "Action", "Duration", "Iteration", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Kind", AutoMerge: true},
		{Name: "Action", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Iteration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for i, res := range report.Results {
		prefix := "├─"
		if i == len(report.Results)-1 {
			prefix = "└─"
		}
		iteration := "-"
		if res.Outcome != nil {
			iteration = fmt.Sprintf("%d", res.Outcome.Iteration)
		}
		t.AppendRow(table.Row{
			string(res.Kind),
			fmt.Sprintf("%s %s", prefix, res.Name),
			formatDuration(res.Duration),
			iteration,
			getResultString(res.Status),
			res.Message(),
		})
	}

	if colored {
		switch report.Status {
		case types.VerificationPass:
			t.SetStyle(table.StyleColoredBlackOnGreenWhite)
		case types.VerificationFail:
			t.SetStyle(table.StyleColoredBlackOnRedWhite)
		default:
			t.SetStyle(table.StyleColoredBlackOnYellowWhite)
		}
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d passed, %d failed, %d errored", report.Passed, report.Failed, report.Errored),
		formatDuration(report.Duration),
		"",
		getResultString(report.Status),
		"",
	})
	return t.Render()
}

// getResultString returns a marker string for an action verdict
func getResultString(status types.VerificationStatus) string {
	switch status {
	case types.VerificationPass:
		return "✓ pass"
	case types.VerificationFail:
		return "✗ fail"
	default:
		return "! error"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
