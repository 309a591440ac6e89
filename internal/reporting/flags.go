package reporting

import "time"

// Flags is the configuration snapshot resolved once per call.
type Flags struct {
	OverallTimeout time.Duration
	ScriptTimeout  time.Duration
	FetchTimeout   time.Duration

	MaxRegisteredBeaconsTotal     int64
	MaxRegisteredBeaconsPerAdTech int64
	MaxInteractionKeySize         int
	MaxInteractionURISize         int

	EnrollmentCheckEnabled  bool
	RegisterAdBeaconEnabled bool
	UseUnifiedTables        bool
	EnforceForeground       bool
	JSCachingEnabled        bool
}

// DefaultFlags mirrors the production defaults.
func DefaultFlags() Flags {
	return Flags{
		OverallTimeout:                2 * time.Second,
		ScriptTimeout:                 time.Second,
		FetchTimeout:                  5 * time.Second,
		MaxRegisteredBeaconsTotal:     1000,
		MaxRegisteredBeaconsPerAdTech: 10,
		MaxInteractionKeySize:         40,
		MaxInteractionURISize:         400,
		EnrollmentCheckEnabled:        true,
		RegisterAdBeaconEnabled:       true,
		EnforceForeground:             true,
		JSCachingEnabled:              true,
	}
}

// FlagsSource hands out the current flags snapshot.
type FlagsSource interface {
	Flags() Flags
}

// StaticFlags is a FlagsSource that never changes.
type StaticFlags Flags

func (f StaticFlags) Flags() Flags { return Flags(f) }
