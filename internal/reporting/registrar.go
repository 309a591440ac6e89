package reporting

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Registrar validates script-declared beacons and persists the accepted ones.
type Registrar struct {
	store      BeaconStore
	enrollment EnrollmentChecker
	metrics    Metrics
}

func NewRegistrar(store BeaconStore, enrollment EnrollmentChecker, metrics Metrics) *Registrar {
	if enrollment == nil {
		enrollment = allowAll{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Registrar{store: store, enrollment: enrollment, metrics: metrics}
}

// Commit registers beacons for one side of an ad selection. Each entry is
// checked on its own; a rejected entry never blocks its siblings. Only a
// store failure is returned as an error.
func (r *Registrar) Commit(ctx context.Context, adSelectionID int64, dest Destination, adTech string, beacons []InteractionBeacon, flags Flags) (int, error) {
	if len(beacons) == 0 {
		return 0, nil
	}
	lg := log.With().Int64("ad_selection_id", adSelectionID).Stringer("destination", dest).Logger()

	if flags.EnrollmentCheckEnabled {
		if err := r.enrollment.AssertEnrolled(ctx, adTech); err != nil {
			lg.Debug().Err(err).Str("ad_tech", adTech).Msg("ad tech not enrolled; skipping beacons")
			return 0, nil
		}
	}

	accepted := make([]InteractionBeacon, 0, len(beacons))
	seen := make(map[string]int, len(beacons))
	for _, b := range beacons {
		if len(b.Key) > flags.MaxInteractionKeySize {
			lg.Debug().Int("size", len(b.Key)).Msg("interaction key exceeds max size; skipping entry")
			continue
		}
		if len(b.URI) > flags.MaxInteractionURISize {
			lg.Debug().Int("size", len(b.URI)).Msg("interaction uri exceeds max size; skipping entry")
			continue
		}
		if err := ValidateAdTechURI(roleOf(dest), adTech, b.URI); err != nil {
			lg.Debug().Err(err).Str("key", b.Key).Msg("beacon uri failed validation; skipping entry")
			continue
		}
		// a repeated key keeps its first position and its last uri
		if i, ok := seen[b.Key]; ok {
			accepted[i].URI = b.URI
			continue
		}
		seen[b.Key] = len(accepted)
		accepted = append(accepted, b)
	}
	if len(accepted) == 0 {
		return 0, nil
	}

	n, err := r.store.SafelyInsertBeacons(ctx, adSelectionID, dest, accepted, flags.MaxRegisteredBeaconsTotal, flags.MaxRegisteredBeaconsPerAdTech)
	if err != nil {
		return 0, fmt.Errorf("registering %s beacons: %w", dest, err)
	}
	r.metrics.BeaconsRegistered(dest, n)
	lg.Debug().Int("registered", n).Int("declared", len(beacons)).Msg("beacons committed")
	return n, nil
}
