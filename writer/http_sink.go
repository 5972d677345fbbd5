package writer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vmihailenco/msgpack/v4"

	"github.com/ethereum-optimism/infra/op-testopt/backend"
)

const testCyclePath = "/api/v2/citestcycle"

// HTTPSink posts msgpack-encoded payloads to the test cycle intake.
// Failed sends are not retried.
type HTTPSink struct {
	connector *backend.Connector
}

func NewHTTPSink(connector *backend.Connector) *HTTPSink {
	return &HTTPSink{connector: connector}
}

func (s *HTTPSink) Send(ctx context.Context, payload Payload) error {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	resp, err := s.connector.Request(ctx, http.MethodPost, testCyclePath, data,
		map[string]string{"Content-Type": "application/msgpack"}, true)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &backend.StatusError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	return nil
}
