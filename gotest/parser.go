package gotest

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
)

// maxMessageLines bounds the failure output kept on a report.
const maxMessageLines = 200

// TestEvent is one line of `go test -json` output.
type TestEvent struct {
	Time        time.Time
	Action      string
	Package     string
	Test        string
	Elapsed     float64
	Output      string
	FailedBuild string
}

// testOutcome is what one `go test -run ^Name$` invocation reported for Name.
type testOutcome struct {
	action      string
	elapsed     time.Duration
	output      []string
	buildFailed bool
	buildOutput []string
}

// parseOutput reads the JSON event stream and collects the events of the
// named top-level test. Subtest output is folded into the parent's.
func parseOutput(r io.Reader, testName string) *testOutcome {
	outcome := &testOutcome{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event TestEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}

		switch {
		case event.Action == ActionBuildOutput:
			outcome.buildOutput = appendLine(outcome.buildOutput, event.Output)
		case event.Action == ActionBuildFail || event.FailedBuild != "":
			outcome.buildFailed = true
		case event.Test == testName:
			processMainTestEvent(event, outcome)
		case strings.HasPrefix(event.Test, testName+"/"):
			if event.Action == ActionOutput {
				outcome.output = appendLine(outcome.output, event.Output)
			}
		}
	}
	return outcome
}

func processMainTestEvent(event TestEvent, outcome *testOutcome) {
	switch event.Action {
	case ActionPass, ActionFail, ActionSkip:
		outcome.action = event.Action
		outcome.elapsed = time.Duration(event.Elapsed * float64(time.Second))
	case ActionOutput:
		outcome.output = appendLine(outcome.output, event.Output)
	}
}

func appendLine(lines []string, output string) []string {
	line := strings.TrimRight(stripansi.Strip(output), "\n")
	if strings.TrimSpace(line) == "" {
		return lines
	}
	return append(lines, line)
}

// isFramingLine reports lines printed by the test framework itself rather than the test.
func isFramingLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- PASS:", "--- FAIL:", "--- SKIP:"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// testLines drops framing lines and keeps at most the last maxMessageLines.
func testLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		if !isFramingLine(line) {
			out = append(out, line)
		}
	}
	if len(out) > maxMessageLines {
		out = out[len(out)-maxMessageLines:]
	}
	return out
}

// failureMessage picks the most telling line of a failed test's output.
func failureMessage(lines []string) string {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "panic:") || strings.HasPrefix(trimmed, "Error:") {
			return trimmed
		}
	}
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); strings.Contains(trimmed, "_test.go:") {
			return trimmed
		}
	}
	if len(lines) > 0 {
		return strings.TrimSpace(lines[len(lines)-1])
	}
	return "test failed"
}

func failureType(lines []string) string {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "panic: test timed out") {
			return "timeout"
		}
		if strings.HasPrefix(trimmed, "panic:") {
			return "panic"
		}
	}
	return "failure"
}

// skipReason is the test's own output before it skipped, usually the t.Skip message.
func skipReason(lines []string) string {
	kept := testLines(lines)
	if len(kept) == 0 {
		return "skipped"
	}
	for i, line := range kept {
		kept[i] = strings.TrimSpace(line)
	}
	return strings.Join(kept, "\n")
}
