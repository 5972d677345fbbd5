package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testopt/types"
)

// Phase is the part of a test execution a report describes.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseCall     Phase = "call"
	PhaseTeardown Phase = "teardown"
)

// Outcome is the host-facing result of one phase.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	// OutcomeRetry marks a report superseded by a later attempt.
	OutcomeRetry Outcome = "retry"
)

// Report properties set by the orchestrator.
const (
	PropRetryOutcome = "retry_outcome"
	PropRetryReason  = "retry_reason"
	PropQuarantined  = "quarantined"
)

// ErrorInfo describes why a phase failed.
type ErrorInfo struct {
	Type    string
	Message string
	Stack   string
}

// Report is the outcome of one phase of one execution, as shown to the host.
type Report struct {
	Test       types.TestRef
	Phase      Phase
	Outcome    Outcome
	Longrepr   string
	SkipReason string
	Duration   time.Duration
	Err        *ErrorInfo
	Properties map[string]string
}

func (r *Report) setProperty(key, value string) {
	if r.Properties == nil {
		r.Properties = make(map[string]string)
	}
	r.Properties[key] = value
}

func (r *Report) property(key string) (string, bool) {
	v, ok := r.Properties[key]
	return v, ok
}

// Reports are the phase reports of a single execution. Any phase may be
// missing: a failed setup has no call report.
type Reports struct {
	Setup    *Report
	Call     *Report
	Teardown *Report
}

// Get returns the report for a phase, or nil.
func (r *Reports) Get(phase Phase) *Report {
	if r == nil {
		return nil
	}
	switch phase {
	case PhaseSetup:
		return r.Setup
	case PhaseCall:
		return r.Call
	case PhaseTeardown:
		return r.Teardown
	}
	return nil
}

// All returns the present reports in phase order.
func (r *Reports) All() []*Report {
	var out []*Report
	for _, phase := range []Phase{PhaseSetup, PhaseCall, PhaseTeardown} {
		if report := r.Get(phase); report != nil {
			out = append(out, report)
		}
	}
	return out
}

// Longrepr returns the most informative failure or skip text, preferring the call phase.
func (r *Reports) Longrepr() string {
	for _, phase := range []Phase{PhaseCall, PhaseSetup, PhaseTeardown} {
		if report := r.Get(phase); report != nil && report.Longrepr != "" {
			return report.Longrepr
		}
	}
	return ""
}

// OutcomeFromReports derives the status of an execution and the tags
// describing it. The first failed or skipped phase decides.
func OutcomeFromReports(reports *Reports) (types.TestStatus, map[string]string) {
	for _, report := range reports.All() {
		switch report.Outcome {
		case OutcomeFailed:
			return types.TestStatusFail, errorTags(report)
		case OutcomeSkipped:
			return types.TestStatusSkip, map[string]string{types.TagSkipReason: report.SkipReason}
		}
	}
	return types.TestStatusPass, map[string]string{}
}

func errorTags(report *Report) map[string]string {
	if report.Err == nil {
		return map[string]string{types.TagErrorMessage: report.Longrepr}
	}
	return map[string]string{
		types.TagErrorStack:   report.Err.Stack,
		types.TagErrorType:    report.Err.Type,
		types.TagErrorMessage: report.Err.Message,
	}
}

// ReportStatus returns how the host should count and print a report: a
// category for the final tally, a one-letter progress mark and a word.
// Empty strings mean the report is not shown.
func ReportStatus(report *Report) (category, short, long string) {
	if outcome, ok := report.property(PropRetryOutcome); ok {
		reason, _ := report.property(PropRetryReason)
		return "retry", "R", fmt.Sprintf("RETRY %s (%s)", strings.ToUpper(outcome), reason)
	}
	if _, ok := report.property(PropQuarantined); ok {
		if report.Phase == PhaseTeardown {
			return "quarantined", "Q", "QUARANTINED"
		}
		return "", "", ""
	}

	switch report.Outcome {
	case OutcomePassed:
		if report.Phase == PhaseCall {
			return "passed", ".", "PASSED"
		}
	case OutcomeFailed:
		if report.Phase == PhaseCall {
			return "failed", "F", "FAILED"
		}
		return "error", "E", "ERROR"
	case OutcomeSkipped:
		return "skipped", "s", "SKIPPED"
	}
	return "", "", ""
}

func outcomeForStatus(status types.TestStatus) Outcome {
	switch status {
	case types.TestStatusPass:
		return OutcomePassed
	case types.TestStatusFail:
		return OutcomeFailed
	default:
		return OutcomeSkipped
	}
}
