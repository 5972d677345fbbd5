package writer

import (
	"fmt"
	"maps"

	"github.com/ethereum-optimism/infra/op-testopt/types"
)

// Event is one serialized node.
type Event struct {
	Type    string         `msgpack:"type" json:"type"`
	Version int            `msgpack:"version" json:"version"`
	Content map[string]any `msgpack:"content" json:"content"`
}

// Payload is the batch handed to a Sink.
type Payload struct {
	Version  int                          `msgpack:"version" json:"version"`
	Metadata map[string]map[string]string `msgpack:"metadata" json:"metadata"`
	Events   []Event                      `msgpack:"events" json:"events"`
}

// Serializer turns a node into an event.
type Serializer func(types.Node) (Event, error)

const (
	EventTypeTest       = "test"
	EventTypeSuiteEnd   = "test_suite_end"
	EventTypeModuleEnd  = "test_module_end"
	EventTypeSessionEnd = "test_session_end"
	spanNameTest        = "go.test"
	spanNameTestSuite   = "go.test_suite"
	spanNameTestModule  = "go.test_module"
	spanNameTestSession = "go.test_session"
)

// DefaultSerializers returns a fresh serializer table. Each Writer owns its own copy.
func DefaultSerializers() map[types.Kind]Serializer {
	return map[types.Kind]Serializer{
		types.KindRun:     serializeRun,
		types.KindSuite:   serializeSuite,
		types.KindModule:  serializeModule,
		types.KindSession: serializeSession,
	}
}

func baseMetrics(m map[string]float64) map[string]any {
	out := map[string]any{
		"_dd.top_level":         1,
		"_sampling_priority_v1": 1,
	}
	for k, v := range m {
		out[k] = v
	}
	return out
}

func errorFlag(s types.TestStatus) int {
	if s == types.TestStatusFail {
		return 1
	}
	return 0
}

func serializeRun(node types.Node) (Event, error) {
	run, ok := node.(*types.TestRun)
	if !ok {
		return Event{}, fmt.Errorf("expected *types.TestRun, got %T", node)
	}
	test := run.Test()
	suite := test.Suite()
	module := suite.Module()

	meta := test.Tags()
	maps.Copy(meta, run.Tags())
	maps.Copy(meta, map[string]string{
		"span.kind":         "test",
		"test.module":       module.Name(),
		"test.module_path":  module.Path,
		"test.name":         run.Name(),
		"test.suite":        suite.Name(),
		types.TagTestStatus: string(run.Status()),
		"test.type":         "test",
		"type":              EventTypeTest,
	})
	runMetrics := test.Metrics()
	maps.Copy(runMetrics, run.Metrics())

	return Event{
		Type:    EventTypeTest,
		Version: 2,
		Content: map[string]any{
			"trace_id":        run.TraceID(),
			"parent_id":       uint64(1),
			"span_id":         run.SpanID(),
			"service":         run.Service(),
			"resource":        fmt.Sprintf("%s.%s", suite.Name(), run.Name()),
			"name":            spanNameTest,
			"error":           errorFlag(run.Status()),
			"start":           run.StartTime().UnixNano(),
			"duration":        run.Duration().Nanoseconds(),
			"meta":            meta,
			"metrics":         baseMetrics(runMetrics),
			"type":            EventTypeTest,
			"test_session_id": run.SessionID(),
			"test_module_id":  run.ModuleID(),
			"test_suite_id":   run.SuiteID(),
		},
	}, nil
}

func serializeSuite(node types.Node) (Event, error) {
	suite, ok := node.(*types.TestSuite)
	if !ok {
		return Event{}, fmt.Errorf("expected *types.TestSuite, got %T", node)
	}
	meta := suite.Tags()
	maps.Copy(meta, map[string]string{
		"span.kind":         "test",
		"test.suite":        suite.Name(),
		"test.module":       suite.Module().Name(),
		types.TagTestStatus: string(suite.Status()),
		"type":              EventTypeSuiteEnd,
	})
	content := map[string]any{
		"service":         suite.Service(),
		"resource":        suite.Name(),
		"name":            spanNameTestSuite,
		"error":           errorFlag(suite.Status()),
		"start":           suite.StartTime().UnixNano(),
		"duration":        suite.Duration().Nanoseconds(),
		"meta":            meta,
		"metrics":         baseMetrics(suite.Metrics()),
		"type":            EventTypeSuiteEnd,
		"test_session_id": suite.SessionID(),
		"test_module_id":  suite.ModuleID(),
		"test_suite_id":   suite.SuiteID(),
	}
	if id, ok := suite.Tag(types.TagITRCorrelationID); ok {
		content[types.TagITRCorrelationID] = id
	}
	return Event{Type: EventTypeSuiteEnd, Version: 1, Content: content}, nil
}

func serializeModule(node types.Node) (Event, error) {
	module, ok := node.(*types.TestModule)
	if !ok {
		return Event{}, fmt.Errorf("expected *types.TestModule, got %T", node)
	}
	meta := module.Tags()
	maps.Copy(meta, map[string]string{
		"span.kind":         "test",
		"test.module":       module.Name(),
		"test.module_path":  module.Path,
		types.TagTestStatus: string(module.Status()),
		"type":              EventTypeModuleEnd,
	})
	return Event{
		Type:    EventTypeModuleEnd,
		Version: 1,
		Content: map[string]any{
			"service":         module.Service(),
			"resource":        module.Name(),
			"name":            spanNameTestModule,
			"error":           errorFlag(module.Status()),
			"start":           module.StartTime().UnixNano(),
			"duration":        module.Duration().Nanoseconds(),
			"meta":            meta,
			"metrics":         baseMetrics(module.Metrics()),
			"type":            EventTypeModuleEnd,
			"test_session_id": module.SessionID(),
			"test_module_id":  module.ModuleID(),
		},
	}, nil
}

func serializeSession(node types.Node) (Event, error) {
	session, ok := node.(*types.TestSession)
	if !ok {
		return Event{}, fmt.Errorf("expected *types.TestSession, got %T", node)
	}
	meta := session.Tags()
	maps.Copy(meta, map[string]string{
		"span.kind":         "test",
		types.TagTestStatus: string(session.Status()),
		"type":              EventTypeSessionEnd,
	})
	return Event{
		Type:    EventTypeSessionEnd,
		Version: 1,
		Content: map[string]any{
			"service":         session.Service(),
			"resource":        session.Name(),
			"name":            spanNameTestSession,
			"error":           errorFlag(session.Status()),
			"start":           session.StartTime().UnixNano(),
			"duration":        session.Duration().Nanoseconds(),
			"meta":            meta,
			"metrics":         baseMetrics(session.Metrics()),
			"type":            EventTypeSessionEnd,
			"test_session_id": session.SessionID(),
		},
	}, nil
}
