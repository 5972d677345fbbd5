package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-testopt/types"
)

const (
	MetricsNamespace = "testopt"

	// PolicyNone labels runs of tests no retry policy applied to.
	PolicyNone = "none"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	// Registry holds every metric of this package and is what the metrics server exposes.
	Registry = opmetrics.NewRegistry()
	factory  = promauto.With(Registry)

	errorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testRunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_runs_total",
		Help:      "Count of test executions, including retries",
	}, []string{
		"policy",
		"result",
	})

	retriesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "retries_total",
		Help:      "Count of retried executions per retry policy",
	}, []string{
		"policy",
	})

	testsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of finalized tests by reported result",
	}, []string{
		"result",
	})

	eventsEnqueuedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "events_enqueued_total",
		Help:      "Count of events queued for the backend",
	}, []string{
		"type",
	})

	eventsFlushedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "events_flushed_total",
		Help:      "Count of events handed to the sink",
	}, []string{
		"result",
	})

	sessionResult = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_result",
		Help:      "Result of the last test session",
	}, []string{
		"session_id",
		"result",
	})

	sessionDuration = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_duration_seconds",
		Help:      "Duration of the last test session",
	}, []string{
		"session_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordTestRun(policy string, result types.TestStatus) {
	if !isValidResult(result) {
		log.Error("RecordTestRun - invalid result", "result", result)
		return
	}
	if policy == "" {
		policy = PolicyNone
	}
	testRunsTotal.WithLabelValues(policy, string(result)).Inc()
}

func RecordRetry(policy string) {
	retriesTotal.WithLabelValues(policy).Inc()
}

func RecordTest(result types.TestStatus) {
	if !isValidResult(result) {
		log.Error("RecordTest - invalid result", "result", result)
		return
	}
	testsTotal.WithLabelValues(string(result)).Inc()
}

func RecordEventEnqueued(eventType string) {
	eventsEnqueuedTotal.WithLabelValues(eventType).Inc()
}

// RecordFlush counts events handed to the sink, split by whether the send succeeded.
func RecordFlush(count int, err error) {
	result := "sent"
	if err != nil {
		result = "dropped"
		RecordErrorDetails("writer.flush", err)
	}
	eventsFlushedTotal.WithLabelValues(result).Add(float64(count))
}

func RecordSession(sessionID string, result types.TestStatus, duration time.Duration) {
	if Debug {
		log.Debug("metric set",
			"m", "session_result",
			"session_id", sessionID,
			"result", result,
			"duration", duration,
		)
	}
	sessionResult.WithLabelValues(sessionID, string(result)).Set(1)
	sessionDuration.WithLabelValues(sessionID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
