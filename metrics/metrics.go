package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "wd"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "units_total",
		Help:      "Count of dispatched work units",
	}, []string{
		"run_id",
		"mode",
		"unit",
		"result",
	})

	unitDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "unit_duration_seconds",
		Help:      "Duration of individual work units",
	}, []string{
		"run_id",
		"unit",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of orchestrated runs",
	}, []string{
		"run_id",
		"mode",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of orchestrated runs",
	}, []string{
		"run_id",
		"mode",
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

// RecordUnit records the outcome of one dispatched work unit.
func RecordUnit(runID, mode, unit string, exitCode int, duration time.Duration) {
	result := "pass"
	if exitCode != 0 {
		result = "fail"
	}
	if Debug {
		log.Debug("metric inc",
			"m", "units_total",
			"run_id", runID,
			"mode", mode,
			"unit", unit,
			"result", result)
	}
	unitsTotal.WithLabelValues(runID, mode, unit, result).Inc()
	unitDuration.WithLabelValues(runID, unit).Set(duration.Seconds())
}

// RecordRun records the aggregate outcome of one orchestrated run.
func RecordRun(runID, mode string, exitCode int, duration time.Duration) {
	result := "pass"
	if exitCode != 0 {
		result = "fail"
	}
	runResults.WithLabelValues(runID, mode, result).Set(1)
	runDuration.WithLabelValues(runID, mode).Set(duration.Seconds())
}
