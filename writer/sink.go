package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Sink transmits a batch of events.
type Sink interface {
	Send(ctx context.Context, payload Payload) error
}

// Discard drops every payload.
type Discard struct{}

func (Discard) Send(context.Context, Payload) error { return nil }

// FileSink appends each payload as one JSON line to a file.
type FileSink struct {
	path string

	mu sync.Mutex
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Send(_ context.Context, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open events file %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write events file %s: %w", s.path, err)
	}
	return nil
}

// MultiSink sends to every sink and returns the first error.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, payload Payload) error {
	var firstErr error
	for _, s := range m {
		if err := s.Send(ctx, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
