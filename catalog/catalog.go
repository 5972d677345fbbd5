// Package catalog fetches the per-session configuration the retry engine
// depends on: feature settings, the known-tests catalog, test management
// properties and the tests that test impact analysis allows skipping.
//
// Implementations never fail: any error is logged and the documented
// default (feature disabled, empty set) is returned instead.
package catalog

import (
	"context"

	"github.com/ethereum-optimism/infra/op-testopt/types"
)

// Catalog is the settings and test catalog service.
type Catalog interface {
	Settings(ctx context.Context) Settings
	KnownTests(ctx context.Context) map[types.TestRef]struct{}
	TestManagement(ctx context.Context) map[types.TestRef]TestProperties
	SkippableTests(ctx context.Context) SkippableItems
}

// TestProperties are the test management flags for one test.
type TestProperties struct {
	Quarantined  bool `json:"quarantined" yaml:"quarantined"`
	Disabled     bool `json:"disabled" yaml:"disabled"`
	AttemptToFix bool `json:"attempt_to_fix" yaml:"attempt_to_fix"`
}

// SkippableItems are the tests and suites test impact analysis marked as safe to skip.
type SkippableItems struct {
	Tests         map[types.TestRef]struct{}
	Suites        map[types.SuiteRef]struct{}
	CorrelationID string
}

// Contains reports whether the test, or its whole suite, is skippable.
func (s SkippableItems) Contains(ref types.TestRef) bool {
	if _, ok := s.Tests[ref]; ok {
		return true
	}
	_, ok := s.Suites[ref.Suite]
	return ok
}

func (s SkippableItems) Len() int {
	return len(s.Tests) + len(s.Suites)
}

// Noop is a Catalog with every feature disabled.
type Noop struct{}

var _ Catalog = Noop{}

func (Noop) Settings(context.Context) Settings { return DefaultSettings() }

func (Noop) KnownTests(context.Context) map[types.TestRef]struct{} {
	return map[types.TestRef]struct{}{}
}

func (Noop) TestManagement(context.Context) map[types.TestRef]TestProperties {
	return map[types.TestRef]TestProperties{}
}

func (Noop) SkippableTests(context.Context) SkippableItems { return SkippableItems{} }
