package types

import (
	"fmt"
	"regexp"
)

// ModuleRef identifies a module. Refs are plain values and are safe to use as map keys.
type ModuleRef struct {
	Name string
}

// SuiteRef identifies a suite within a module.
type SuiteRef struct {
	Module ModuleRef
	Name   string
}

// TestRef identifies a test within a suite.
type TestRef struct {
	Suite SuiteRef
	Name  string
}

func NewSuiteRef(module, suite string) SuiteRef {
	return SuiteRef{Module: ModuleRef{Name: module}, Name: suite}
}

func NewTestRef(module, suite, name string) TestRef {
	return TestRef{Suite: NewSuiteRef(module, suite), Name: name}
}

func (r ModuleRef) String() string {
	return r.Name
}

func (r SuiteRef) String() string {
	return fmt.Sprintf("%s/%s", r.Module.Name, r.Name)
}

// String renders the ref in node-id form, e.g. "pkg/path/foo_test.go::TestFoo".
func (r TestRef) String() string {
	return fmt.Sprintf("%s::%s", r.Suite, r.Name)
}

var nodeIDRegex = regexp.MustCompile(`^(((?P<module>.*)/)?(?P<suite>[^/]*?))::(?P<name>.*?)$`)

// ParseTestRef splits a node id of the form "module/suite::name" into a TestRef.
// Node ids that don't match are placed under module "." and suite ".".
func ParseTestRef(nodeID string) TestRef {
	m := nodeIDRegex.FindStringSubmatch(nodeID)
	if m == nil {
		return NewTestRef(".", ".", nodeID)
	}
	module := m[nodeIDRegex.SubexpIndex("module")]
	if module == "" {
		module = "."
	}
	return NewTestRef(module, m[nodeIDRegex.SubexpIndex("suite")], m[nodeIDRegex.SubexpIndex("name")])
}
