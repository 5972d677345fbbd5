package writer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v4"

	"github.com/ethereum-optimism/infra/op-testopt/backend"
)

func samplePayload() Payload {
	return Payload{
		Version:  PayloadVersion,
		Metadata: map[string]map[string]string{ScopeAll: {"language": "go"}},
		Events: []Event{
			{Type: EventTypeTest, Version: 2, Content: map[string]any{"name": "go.test"}},
			{Type: EventTypeSuiteEnd, Version: 1, Content: map[string]any{"name": "go.test_suite"}},
		},
	}
}

func TestHTTPSink(t *testing.T) {
	var got Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testCyclePath, r.URL.Path)
		assert.Equal(t, "application/msgpack", r.Header.Get("Content-Type"))
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))

		zr, err := gzip.NewReader(r.Body)
		if !assert.NoError(t, err) {
			return
		}
		data, err := io.ReadAll(zr)
		if !assert.NoError(t, err) {
			return
		}
		assert.NoError(t, msgpack.Unmarshal(data, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewHTTPSink(backend.NewConnector(server.URL, nil, true))
	require.NoError(t, sink.Send(context.Background(), samplePayload()))

	assert.Equal(t, PayloadVersion, got.Version)
	require.Len(t, got.Events, 2)
	assert.Equal(t, EventTypeTest, got.Events[0].Type)
	assert.Equal(t, "go.test", got.Events[0].Content["name"])
	assert.Equal(t, "go", got.Metadata[ScopeAll]["language"])
}

func TestHTTPSinkStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer server.Close()

	sink := NewHTTPSink(backend.NewConnector(server.URL, nil, false))
	err := sink.Send(context.Background(), samplePayload())

	var statusErr *backend.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, "bad key", statusErr.Body)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink := NewFileSink(path)

	require.NoError(t, sink.Send(context.Background(), samplePayload()))
	require.NoError(t, sink.Send(context.Background(), samplePayload()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var p Payload
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &p))
		assert.Len(t, p.Events, 2)
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 2, lines)
}

func TestFileSinkBadPath(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "missing", "events.jsonl"))
	assert.Error(t, sink.Send(context.Background(), samplePayload()))
}

type errSink struct{ err error }

func (s errSink) Send(context.Context, Payload) error { return s.err }

func TestMultiSink(t *testing.T) {
	first := errors.New("first")
	rec := &recordingSink{}

	err := MultiSink{errSink{err: first}, rec, errSink{err: errors.New("second")}}.Send(context.Background(), samplePayload())

	assert.ErrorIs(t, err, first)
	assert.Equal(t, 1, rec.sends())
}
