package testopt

import (
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/ethereum-optimism/infra/op-testopt/session"
)

var _ session.HostReporter = (*ConsoleReporter)(nil)

// summaryOrder is the order categories appear in the summary line.
var summaryOrder = []string{"failed", "passed", "skipped", "error", "quarantined", "retry"}

// ConsoleReporter counts the reports the orchestrator shows to the user and,
// when verbose, prints one colored line per report.
type ConsoleReporter struct {
	out     io.Writer
	verbose bool

	mu     sync.Mutex
	counts map[string]int
}

func NewConsoleReporter(out io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{
		out:     out,
		verbose: verbose,
		counts:  make(map[string]int),
	}
}

func (r *ConsoleReporter) LogReport(report *session.Report) {
	category, _, long := session.ReportStatus(report)
	if category == "" {
		return
	}

	r.mu.Lock()
	r.counts[category]++
	r.mu.Unlock()

	if !r.verbose {
		return
	}
	line := fmt.Sprintf("%s %s", report.Test.String(), colorFor(category)(long))
	if report.Outcome == session.OutcomeSkipped && report.SkipReason != "" && category == "skipped" {
		line += fmt.Sprintf(" (%s)", report.SkipReason)
	}
	fmt.Fprintln(r.out, line)
}

// Counts returns the number of reports per category.
func (r *ConsoleReporter) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.counts)
}

// Summary renders the counts, e.g. "1 failed, 3 passed, 2 retry".
func (r *ConsoleReporter) Summary() string {
	counts := r.Counts()
	var parts []string
	for _, category := range summaryOrder {
		if n := counts[category]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, category))
		}
	}
	if len(parts) == 0 {
		return "no tests ran"
	}
	return strings.Join(parts, ", ")
}

func colorFor(category string) func(a ...interface{}) string {
	switch category {
	case "passed":
		return color.New(color.FgGreen).SprintFunc()
	case "failed", "error":
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case "retry", "quarantined":
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgCyan).SprintFunc()
	}
}
