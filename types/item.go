package types

import (
	"maps"
	"math/rand/v2"
	"time"
)

// DefaultServiceName is used for items whose service was never set.
const DefaultServiceName = "default-service"

// now is swapped in tests to get deterministic timings.
var now = time.Now

// Kind identifies the concrete type of a tree node.
type Kind int

const (
	KindRun Kind = iota
	KindTest
	KindSuite
	KindModule
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindRun:
		return "run"
	case KindTest:
		return "test"
	case KindSuite:
		return "suite"
	case KindModule:
		return "module"
	case KindSession:
		return "session"
	}
	return "unknown"
}

// Node is implemented by every node of the result tree.
type Node interface {
	Kind() Kind
	Name() string
	ID() uint64
	Status() TestStatus
	IsFinished() bool
}

// Item holds the state shared by all tree nodes. It is embedded, never used on its own.
type Item struct {
	name    string
	id      uint64
	service string

	startTime time.Time
	duration  *time.Duration
	status    *TestStatus

	tags    map[string]string
	metrics map[string]float64
}

func newItem(name string) Item {
	return Item{
		name:    name,
		id:      newItemID(),
		tags:    make(map[string]string),
		metrics: make(map[string]float64),
	}
}

// newItemID returns a random identifier in [1, 2^64-1].
func newItemID() uint64 {
	for {
		if id := rand.Uint64(); id != 0 {
			return id
		}
	}
}

func (i *Item) Name() string { return i.name }

func (i *Item) ID() uint64 { return i.id }

func (i *Item) Service() string {
	if i.service == "" {
		return DefaultServiceName
	}
	return i.service
}

func (i *Item) SetService(service string) { i.service = service }

// Start records the start time. Starting an already started item is a no-op.
func (i *Item) Start() { i.StartAt(now()) }

// StartAt is Start with an explicit timestamp.
func (i *Item) StartAt(t time.Time) {
	if i.IsStarted() {
		return
	}
	i.startTime = t
}

func (i *Item) IsStarted() bool { return !i.startTime.IsZero() }

func (i *Item) StartTime() time.Time { return i.startTime }

// Finish stamps the duration since start. The duration is set exactly once;
// an item that was never started is started first.
func (i *Item) Finish() { i.FinishAt(now()) }

// FinishAt is Finish with an explicit end timestamp.
func (i *Item) FinishAt(t time.Time) {
	if i.IsFinished() {
		return
	}
	i.StartAt(t)
	d := t.Sub(i.startTime)
	if d < 0 {
		d = 0
	}
	i.duration = &d
}

func (i *Item) IsFinished() bool { return i.duration != nil }

// Duration returns zero until the item is finished.
func (i *Item) Duration() time.Duration {
	if i.duration == nil {
		return 0
	}
	return *i.duration
}

// SetStatus sets an explicit status which takes precedence over the computed one.
func (i *Item) SetStatus(s TestStatus) { i.status = &s }

// ExplicitStatus returns the explicit status, if any.
func (i *Item) ExplicitStatus() (TestStatus, bool) {
	if i.status == nil {
		return "", false
	}
	return *i.status, true
}

func (i *Item) resolveStatus(computed func() TestStatus) TestStatus {
	if s, ok := i.ExplicitStatus(); ok {
		return s
	}
	return computed()
}

func (i *Item) SetTag(key, value string) { i.tags[key] = value }

func (i *Item) SetTags(tags map[string]string) { maps.Copy(i.tags, tags) }

func (i *Item) Tag(key string) (string, bool) {
	v, ok := i.tags[key]
	return v, ok
}

// Tags returns a copy of the item's tags.
func (i *Item) Tags() map[string]string { return maps.Clone(i.tags) }

func (i *Item) SetMetric(key string, value float64) { i.metrics[key] = value }

// Metrics returns a copy of the item's metrics.
func (i *Item) Metrics() map[string]float64 { return maps.Clone(i.metrics) }

// children is a create-if-absent child index for one tree level.
type children[C Node] struct {
	byName map[string]C
	order  []string
}

func (c *children[C]) getOrCreate(name string, create func() C) (C, bool) {
	if child, ok := c.byName[name]; ok {
		return child, false
	}
	if c.byName == nil {
		c.byName = make(map[string]C)
	}
	child := create()
	c.byName[name] = child
	c.order = append(c.order, name)
	return child, true
}

func (c *children[C]) get(name string) (C, bool) {
	child, ok := c.byName[name]
	return child, ok
}

// list returns children in creation order.
func (c *children[C]) list() []C {
	out := make([]C, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}

func (c *children[C]) statuses() []TestStatus {
	out := make([]TestStatus, 0, len(c.order))
	for _, child := range c.list() {
		out = append(out, child.Status())
	}
	return out
}
