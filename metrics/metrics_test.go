package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testopt/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordErrorDetails(t *testing.T) {
	// nil errors are ignored
	RecordErrorDetails("test", nil)

	before := value(t, errorsTotal.WithLabelValues("test.sample_error"))
	RecordErrorDetails("test", errors.New("sample error"))
	assert.Equal(t, before+1, value(t, errorsTotal.WithLabelValues("test.sample_error")))
}

func TestRecordTestRun(t *testing.T) {
	before := value(t, testRunsTotal.WithLabelValues(PolicyNone, "pass"))
	RecordTestRun("", types.TestStatusPass)
	assert.Equal(t, before+1, value(t, testRunsTotal.WithLabelValues(PolicyNone, "pass")))

	// invalid results are not recorded
	RecordTestRun("auto_test_retry", types.TestStatus("bogus"))
	assert.Equal(t, float64(0), value(t, testRunsTotal.WithLabelValues("auto_test_retry", "bogus")))
}

func TestRecordFlush(t *testing.T) {
	sent := value(t, eventsFlushedTotal.WithLabelValues("sent"))
	dropped := value(t, eventsFlushedTotal.WithLabelValues("dropped"))

	RecordFlush(3, nil)
	RecordFlush(2, errors.New("boom"))

	assert.Equal(t, sent+3, value(t, eventsFlushedTotal.WithLabelValues("sent")))
	assert.Equal(t, dropped+2, value(t, eventsFlushedTotal.WithLabelValues("dropped")))
}

func TestRecordSession(t *testing.T) {
	RecordSession("abc", types.TestStatusFail, 2*time.Second)
	assert.Equal(t, float64(1), value(t, sessionResult.WithLabelValues("abc", "fail")))
	assert.Equal(t, float64(2), value(t, sessionDuration.WithLabelValues("abc")))
}

func TestRecordMisc(t *testing.T) {
	RecordRetry("early_flake_detection")
	RecordTest(types.TestStatusSkip)
	RecordEventEnqueued("test")
	assert.Equal(t, float64(1), value(t, retriesTotal.WithLabelValues("early_flake_detection")))
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}
