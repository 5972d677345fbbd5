// Package writer queues finished result-tree nodes as backend events and
// ships them in batches from a background flush loop.
package writer

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-testopt/metrics"
	"github.com/ethereum-optimism/infra/op-testopt/types"
)

const (
	DefaultFlushInterval = 60 * time.Second
	PayloadVersion       = 1
)

// Metadata scopes. "*" applies to every event, "test" to test run events.
const (
	ScopeAll  = "*"
	ScopeTest = "test"
)

// LibraryVersion is reported in the event metadata.
var LibraryVersion = "0.0.0"

// Writer is safe for concurrent use. The event queue is the only state shared
// between callers and the flush loop.
type Writer struct {
	sink        Sink
	log         log.Logger
	interval    time.Duration
	serializers map[types.Kind]Serializer

	mu       sync.Mutex
	events   []Event
	metadata map[string]map[string]string

	startOnce  sync.Once
	finishOnce sync.Once
	started    bool
	done       chan struct{}
	wg         sync.WaitGroup
}

type Option func(*Writer)

func WithFlushInterval(interval time.Duration) Option {
	return func(w *Writer) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithSerializer overrides the serializer for one node kind.
func WithSerializer(kind types.Kind, s Serializer) Option {
	return func(w *Writer) { w.serializers[kind] = s }
}

func New(sink Sink, log log.Logger, opts ...Option) *Writer {
	w := &Writer{
		sink:        sink,
		log:         log,
		interval:    DefaultFlushInterval,
		serializers: DefaultSerializers(),
		metadata: map[string]map[string]string{
			ScopeAll: {
				"language":        "go",
				"runtime-id":      uuid.New().String(),
				"library_version": LibraryVersion,
				"_dd.origin":      "ciapp-test",
			},
			ScopeTest: {
				"_dd.library_capabilities.early_flake_detection":          "1",
				"_dd.library_capabilities.auto_test_retries":              "1",
				"_dd.library_capabilities.test_impact_analysis":           "1",
				"_dd.library_capabilities.test_management.quarantine":     "1",
				"_dd.library_capabilities.test_management.disable":        "1",
				"_dd.library_capabilities.test_management.attempt_to_fix": "4",
			},
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// PutItem serializes a finished node and queues the resulting event.
// Nodes with no serializer are logged and dropped.
func (w *Writer) PutItem(node types.Node) {
	serialize, ok := w.serializers[node.Kind()]
	if !ok {
		w.log.Error("No serializer for node", "kind", node.Kind(), "name", node.Name())
		metrics.RecordError("writer.no_serializer")
		return
	}
	event, err := serialize(node)
	if err != nil {
		w.log.Error("Failed to serialize node", "kind", node.Kind(), "name", node.Name(), "err", err)
		metrics.RecordErrorDetails("writer.serialize", err)
		return
	}
	w.PutEvent(event)
	metrics.RecordEventEnqueued(event.Type)
}

func (w *Writer) PutEvent(event Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
}

// PopEvents takes every queued event, leaving the queue empty.
func (w *Writer) PopEvents() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := w.events
	w.events = nil
	return events
}

// AddMetadata merges tags into a metadata scope.
func (w *Writer) AddMetadata(scope string, tags map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.metadata[scope] == nil {
		w.metadata[scope] = make(map[string]string, len(tags))
	}
	maps.Copy(w.metadata[scope], tags)
}

// Metadata returns a copy of the current metadata.
func (w *Writer) Metadata() map[string]map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]map[string]string, len(w.metadata))
	for scope, tags := range w.metadata {
		out[scope] = maps.Clone(tags)
	}
	return out
}

// Start launches the background flush loop.
func (w *Writer) Start() {
	w.startOnce.Do(func() {
		w.mu.Lock()
		w.started = true
		w.mu.Unlock()

		w.wg.Add(1)
		go w.loop()
	})
}

func (w *Writer) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.log.Debug("Flushing events in background task")
			w.Flush()
		case <-w.done:
			w.Flush()
			w.log.Debug("Exiting writer background task")
			return
		}
	}
}

// Finish stops the flush loop and blocks until every queued event has been
// handed to the sink. Calling it more than once is a no-op.
func (w *Writer) Finish() {
	w.finishOnce.Do(func() {
		w.mu.Lock()
		started := w.started
		w.mu.Unlock()

		w.log.Info("Waiting for writer to finish")
		close(w.done)
		if started {
			w.wg.Wait()
		} else {
			w.Flush()
		}
		w.log.Info("Writer finished")
	})
}

// Flush sends every queued event as one batch. Send failures drop the batch.
func (w *Writer) Flush() {
	events := w.PopEvents()
	if len(events) == 0 {
		return
	}
	payload := Payload{
		Version:  PayloadVersion,
		Metadata: w.Metadata(),
		Events:   events,
	}
	w.log.Info("Sending events", "count", len(events))
	err := w.sink.Send(context.Background(), payload)
	metrics.RecordFlush(len(events), err)
	if err != nil {
		w.log.Warn("Failed to send events, dropping batch", "count", len(events), "err", err)
	}
}
