package testopt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testopt/types"
)

func createSampleSession() *types.TestSession {
	sess := types.NewTestSession(SessionName)
	module, _ := sess.GetOrCreateModule("example.com/demo/pkg")
	suite, _ := module.GetOrCreateSuite("a_test.go")

	pass, _ := suite.GetOrCreateTest("TestPass")
	pass.MakeTestRun().SetStatus(types.TestStatusPass)

	fail, _ := suite.GetOrCreateTest("TestFail")
	run := fail.MakeTestRun()
	run.SetStatus(types.TestStatusFail)
	run.SetTag(types.TagErrorMessage, "a_test.go:9: expected 2\nsecond line")

	quarantined, _ := suite.GetOrCreateTest("TestQuarantined")
	quarantined.SetAttributes(types.TestAttributes{IsQuarantined: true})
	quarantined.MakeTestRun().SetStatus(types.TestStatusFail)

	other, _ := module.GetOrCreateSuite("b_test.go")
	skipped, _ := other.GetOrCreateTest("TestSkipped")
	skipped.MakeTestRun().SetStatus(types.TestStatusSkip)

	sess.Finish()
	return sess
}

func TestConsoleResultFormatter_FormatResults(t *testing.T) {
	var out bytes.Buffer
	formatter := NewConsoleResultFormatter(log.NewLogger(log.DiscardHandler()), &out)

	require.NoError(t, formatter.FormatResults(createSampleSession()))

	rendered := out.String()
	assert.Contains(t, rendered, "Test Results")
	assert.Contains(t, rendered, "example.com/demo/pkg")
	assert.Contains(t, rendered, "├── a_test.go")
	assert.Contains(t, rendered, "└── b_test.go")
	assert.Contains(t, rendered, "TestQuarantined")
	assert.Contains(t, rendered, "(quarantined)")
	assert.Contains(t, rendered, "a_test.go:9: expected 2")
	assert.NotContains(t, rendered, "second line")
}

func TestConsoleResultFormatter_FormatResults_EmptySession(t *testing.T) {
	var out bytes.Buffer
	formatter := NewConsoleResultFormatter(log.NewLogger(log.DiscardHandler()), &out)

	require.NoError(t, formatter.FormatResults(types.NewTestSession(SessionName)))
	assert.Contains(t, out.String(), "TOTAL")
}

func TestErrorMessage(t *testing.T) {
	sess := types.NewTestSession(SessionName)
	module, _ := sess.GetOrCreateModule("m")
	suite, _ := module.GetOrCreateSuite("s")
	test, _ := suite.GetOrCreateTest("TestLong")

	assert.Empty(t, errorMessage(test), "no runs")

	run := test.MakeTestRun()
	run.SetStatus(types.TestStatusFail)
	run.SetTag(types.TagErrorMessage, strings.Repeat("x", 200))

	msg := errorMessage(test)
	assert.Len(t, msg, maxErrorLength)
	assert.True(t, strings.HasSuffix(msg, "..."))

	test.MakeTestRun().SetStatus(types.TestStatusPass)
	assert.Empty(t, errorMessage(test), "last run passed")
}

func TestGetResultString(t *testing.T) {
	assert.Equal(t, "✓ pass", getResultString(types.TestStatusPass))
	assert.Equal(t, "- skip", getResultString(types.TestStatusSkip))
	assert.Equal(t, "✗ fail", getResultString(types.TestStatusFail))
}
