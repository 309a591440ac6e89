package observability

import (
	"time"

	"github.com/rs/zerolog/log"

	"ad-reporting-engine/internal/reporting"
)

// UsageLogger emits one usage event per API call as a log line and a
// counter sample.
type UsageLogger struct{}

func (UsageLogger) LogAPICall(api, callerPackage string, status reporting.StatusCode, latency time.Duration) {
	APICalls.WithLabelValues(api, status.String()).Inc()
	APILatency.WithLabelValues(api).Observe(latency.Seconds())
	log.Info().
		Str("api", api).
		Str("caller", callerPackage).
		Int("status", int(status)).
		Dur("latency", latency).
		Msg("api call")
}

// PipelineMetrics records reporter phases, beacons and notifications.
type PipelineMetrics struct{}

func (PipelineMetrics) ObservePhase(phase string, d time.Duration) {
	PhaseLatency.WithLabelValues(phase).Observe(d.Seconds())
}

func (PipelineMetrics) BeaconsRegistered(dest reporting.Destination, n int) {
	BeaconsRegistered.WithLabelValues(dest.String()).Add(float64(n))
}

func (PipelineMetrics) Notification(dest reporting.Destination, sent bool) {
	outcome := "skipped"
	if sent {
		outcome = "sent"
	}
	Notifications.WithLabelValues(dest.String(), outcome).Inc()
}
