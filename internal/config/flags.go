package config

import (
	"ad-reporting-engine/internal/cache"
	"ad-reporting-engine/internal/reporting"
)

// LiveFlags serves the latest reporting flags. Each call to Flags returns a
// consistent snapshot, so a reload never changes limits mid-request.
type LiveFlags struct {
	snap *cache.Snapshot[reporting.Flags]
}

func NewLiveFlags(cfg Config) *LiveFlags {
	return &LiveFlags{snap: cache.NewSnapshot(cfg.ReportingFlags())}
}

func (l *LiveFlags) Flags() reporting.Flags {
	f, ok := l.snap.Load()
	if !ok {
		return reporting.DefaultFlags()
	}
	return f
}

// Apply swaps in the reporting section of cfg.
func (l *LiveFlags) Apply(cfg Config) { l.snap.Store(cfg.ReportingFlags()) }
