package reporting

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Dispatcher sends the best-effort reporting GETs.
type Dispatcher struct {
	notifier   Notifier
	enrollment EnrollmentChecker
	metrics    Metrics
}

func NewDispatcher(notifier Notifier, enrollment EnrollmentChecker, metrics Metrics) *Dispatcher {
	if enrollment == nil {
		enrollment = allowAll{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{notifier: notifier, enrollment: enrollment, metrics: metrics}
}

// Notify reports to uri on behalf of adTech. Every failure, including a
// panic in the notifier, is logged and swallowed. It reports whether the
// GET was issued and succeeded.
func (d *Dispatcher) Notify(ctx context.Context, dest Destination, adTech, uri string, flags Flags) (sent bool) {
	lg := log.With().Stringer("destination", dest).Str("uri", uri).Logger()
	defer func() {
		if r := recover(); r != nil {
			lg.Error().Interface("panic", r).Msg("reporting notification panicked")
			sent = false
		}
		d.metrics.Notification(dest, sent)
	}()

	if uri == "" {
		return false
	}
	if err := ValidateAdTechURI(roleOf(dest), adTech, uri); err != nil {
		lg.Debug().Err(err).Msg("reporting uri failed validation")
		return false
	}
	if flags.EnrollmentCheckEnabled {
		if err := d.enrollment.AssertEnrolled(ctx, adTech); err != nil {
			lg.Debug().Err(err).Str("ad_tech", adTech).Msg("ad tech not enrolled; skipping report")
			return false
		}
	}
	if err := d.notifier.Notify(ctx, uri); err != nil {
		lg.Debug().Err(err).Msg("GET failed for reporting uri")
		return false
	}
	return true
}
