package gotest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		wantAction  string
		wantElapsed time.Duration
		wantLines   []string
		wantBuild   bool
	}{
		{
			name:   "empty output",
			output: "",
		},
		{
			name: "passing test",
			output: `{"Time":"2023-05-01T12:00:00Z","Action":"run","Package":"example/pkg","Test":"TestExample"}
{"Time":"2023-05-01T12:00:00Z","Action":"output","Package":"example/pkg","Test":"TestExample","Output":"=== RUN   TestExample\n"}
{"Time":"2023-05-01T12:00:01Z","Action":"pass","Package":"example/pkg","Test":"TestExample","Elapsed":1.5}`,
			wantAction:  ActionPass,
			wantElapsed: 1500 * time.Millisecond,
			wantLines:   []string{"=== RUN   TestExample"},
		},
		{
			name: "subtest output folds into parent",
			output: `{"Action":"run","Package":"example/pkg","Test":"TestExample"}
{"Action":"output","Package":"example/pkg","Test":"TestExample/sub","Output":"    a_test.go:12: boom\n"}
{"Action":"fail","Package":"example/pkg","Test":"TestExample/sub","Elapsed":0.1}
{"Action":"fail","Package":"example/pkg","Test":"TestExample","Elapsed":0.2}`,
			wantAction:  ActionFail,
			wantElapsed: 200 * time.Millisecond,
			wantLines:   []string{"    a_test.go:12: boom"},
		},
		{
			name: "other tests and garbage are ignored",
			output: `not json
{"Action":"output","Package":"example/pkg","Test":"TestExampleTwo","Output":"noise\n"}
{"Action":"pass","Package":"example/pkg","Test":"TestExampleTwo","Elapsed":1}
{"Action":"skip","Package":"example/pkg","Test":"TestExample","Elapsed":0}`,
			wantAction: ActionSkip,
		},
		{
			name: "build failure",
			output: `{"ImportPath":"example/pkg [example/pkg.test]","Action":"build-output","Output":"# example/pkg\n"}
{"ImportPath":"example/pkg [example/pkg.test]","Action":"build-output","Output":"./a_test.go:3:1: syntax error\n"}
{"ImportPath":"example/pkg [example/pkg.test]","Action":"build-fail"}
{"Action":"fail","Package":"example/pkg","Elapsed":0,"FailedBuild":"example/pkg [example/pkg.test]"}`,
			wantBuild: true,
		},
		{
			name:       "ansi colors are stripped",
			output:     `{"Action":"output","Package":"example/pkg","Test":"TestExample","Output":"\u001b[31mred\u001b[0m\n"}`,
			wantLines:  []string{"red"},
			wantAction: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := parseOutput(strings.NewReader(tt.output), "TestExample")
			assert.Equal(t, tt.wantAction, outcome.action)
			assert.Equal(t, tt.wantElapsed, outcome.elapsed)
			assert.Equal(t, tt.wantLines, outcome.output)
			assert.Equal(t, tt.wantBuild, outcome.buildFailed)
		})
	}
}

func TestParseOutput_BuildOutput(t *testing.T) {
	output := `{"Action":"build-output","Output":"# example/pkg\n"}
{"Action":"build-output","Output":"./a_test.go:3:1: syntax error\n"}
{"Action":"build-fail"}`

	outcome := parseOutput(strings.NewReader(output), "TestExample")
	require.True(t, outcome.buildFailed)
	assert.Equal(t, []string{"# example/pkg", "./a_test.go:3:1: syntax error"}, outcome.buildOutput)
}

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{
			name:  "no output",
			lines: nil,
			want:  "test failed",
		},
		{
			name: "panic wins",
			lines: []string{
				"    a_test.go:10: first",
				"panic: runtime error: index out of range",
			},
			want: "panic: runtime error: index out of range",
		},
		{
			name: "testify error",
			lines: []string{
				"    a_test.go:10: ",
				"        \tError Trace:\ta_test.go:10",
				"        \tError:      \tShould be true",
			},
			want: "Error:      \tShould be true",
		},
		{
			name:  "file location",
			lines: []string{"some log", "    a_test.go:10: expected 1", "more log"},
			want:  "a_test.go:10: expected 1",
		},
		{
			name:  "last line",
			lines: []string{"first", "  last  "},
			want:  "last",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failureMessage(tt.lines))
		})
	}
}

func TestFailureType(t *testing.T) {
	assert.Equal(t, "failure", failureType([]string{"a_test.go:1: nope"}))
	assert.Equal(t, "panic", failureType([]string{"panic: boom"}))
	assert.Equal(t, "timeout", failureType([]string{"panic: test timed out after 1s"}))
}

func TestSkipReason(t *testing.T) {
	assert.Equal(t, "skipped", skipReason([]string{"=== RUN   TestExample", "--- SKIP: TestExample (0.00s)"}))
	assert.Equal(t, "a_test.go:5: needs network", skipReason([]string{
		"=== RUN   TestExample",
		"    a_test.go:5: needs network",
		"--- SKIP: TestExample (0.00s)",
	}))
}

func TestTestLines_KeepsTail(t *testing.T) {
	var lines []string
	for i := 0; i < maxMessageLines+10; i++ {
		lines = append(lines, "line")
	}
	lines = append(lines, "=== RUN   TestExample")

	kept := testLines(lines)
	assert.Len(t, kept, maxMessageLines)
}
