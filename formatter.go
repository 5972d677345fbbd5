package testopt

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-testopt/types"
)

const maxErrorLength = 120

// ResultFormatter is responsible for formatting and displaying test results.
type ResultFormatter interface {
	FormatResults(session *types.TestSession) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

type stats struct {
	tests, passed, failed, skipped int
}

func (s *stats) add(status types.TestStatus) {
	s.tests++
	switch status {
	case types.TestStatusPass:
		s.passed++
	case types.TestStatusFail:
		s.failed++
	default:
		s.skipped++
	}
}

func (s *stats) merge(o stats) {
	s.tests += o.tests
	s.passed += o.passed
	s.failed += o.failed
	s.skipped += o.skipped
}

// FormatResults renders the session tree as a table. Tests show their
// reported status, so quarantined failures are not counted as failures.
func (f *ConsoleResultFormatter) FormatResults(session *types.TestSession) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Test Results (%s)", formatDuration(session.Duration())))

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Tests", "Passed", "Failed", "Skipped", "Runs", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 70, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Runs", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	var total stats
	for _, module := range session.Modules() {
		var moduleStats stats
		var rows []table.Row

		suites := module.Suites()
		for i, suite := range suites {
			suitePrefix := "├──"
			testIndent := "│   "
			if i == len(suites)-1 {
				suitePrefix = "└──"
				testIndent = "    "
			}

			var suiteStats stats
			var testRows []table.Row
			tests := suite.Tests()
			for j, test := range tests {
				prefix := testIndent + "├──"
				if j == len(tests)-1 {
					prefix = testIndent + "└──"
				}
				status := test.ReportedStatus()
				suiteStats.add(status)
				testRows = append(testRows, table.Row{
					"Test",
					fmt.Sprintf("%s %s", prefix, test.Name()),
					formatDuration(test.Duration()),
					1,
					boolToInt(status == types.TestStatusPass),
					boolToInt(status == types.TestStatusFail),
					boolToInt(status == types.TestStatusSkip),
					len(test.Runs()),
					testResultString(test),
					errorMessage(test),
				})
			}

			rows = append(rows, table.Row{
				"Suite",
				fmt.Sprintf("%s %s", suitePrefix, suite.Name()),
				formatDuration(suite.Duration()),
				suiteStats.tests,
				suiteStats.passed,
				suiteStats.failed,
				suiteStats.skipped,
				"",
				getResultString(suite.Status()),
				"",
			})
			rows = append(rows, testRows...)
			moduleStats.merge(suiteStats)
		}

		t.AppendRow(table.Row{
			"Module",
			module.Name(),
			formatDuration(module.Duration()),
			moduleStats.tests,
			moduleStats.passed,
			moduleStats.failed,
			moduleStats.skipped,
			"",
			getResultString(module.Status()),
			"",
		})
		t.AppendRows(rows)
		t.AppendSeparator()
		total.merge(moduleStats)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(session.Duration()),
		total.tests,
		total.passed,
		total.failed,
		total.skipped,
		"",
		getResultString(session.Status()),
		"",
	})

	t.Render()
	return nil
}

func testResultString(test *types.Test) string {
	result := getResultString(test.ReportedStatus())
	switch {
	case test.IsQuarantined():
		result += " (quarantined)"
	case test.IsDisabled():
		result += " (disabled)"
	}
	return result
}

// errorMessage is the first line of the last run's error, truncated.
func errorMessage(test *types.Test) string {
	run := test.LastRun()
	if run == nil || run.Status() != types.TestStatusFail {
		return ""
	}
	msg, _ := run.Tag(types.TagErrorMessage)
	msg, _, _ = strings.Cut(msg, "\n")
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength-3] + "..."
	}
	return msg
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// getResultString returns a string representing the test result
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
