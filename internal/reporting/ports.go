package reporting

import (
	"context"
	"time"
)

const APIReportImpression = "report_impression"

// RecordStore reads completed auctions. Missing ids return ErrRecordNotFound.
type RecordStore interface {
	GetAdSelection(ctx context.Context, id int64, unifiedTables bool) (AdSelectionRecord, error)
}

// BeaconStore persists registered beacons.
type BeaconStore interface {
	// SafelyInsertBeacons inserts beacons in order, stopping at whichever of
	// maxTotal (whole table) or maxPerDestination (this id and destination)
	// is reached first. It returns how many rows were written.
	SafelyInsertBeacons(ctx context.Context, adSelectionID int64, dest Destination, beacons []InteractionBeacon, maxTotal, maxPerDestination int64) (int, error)
	RegisteredBeaconURI(ctx context.Context, adSelectionID int64, key string, dest Destination) (string, error)
	CountBeacons(ctx context.Context) (int64, error)
}

// BuyerLogicStore holds buyer decision logic persisted during the auction.
type BuyerLogicStore interface {
	BuyerDecisionLogic(ctx context.Context, biddingLogicURI string) (string, error)
}

// OverrideStore holds dev-mode overrides.
type OverrideStore interface {
	AdSelectionOverride(ctx context.Context, configID, appPackage string) (AdSelectionOverride, bool, error)
	PutAdSelectionOverride(ctx context.Context, o AdSelectionOverride) error
	DeleteAdSelectionOverride(ctx context.Context, configID, appPackage string) error
	DeleteAllAdSelectionOverrides(ctx context.Context, appPackage string) error

	CustomAudienceOverride(ctx context.Context, owner, buyer, name, appPackage string) (CustomAudienceOverride, bool, error)
	PutCustomAudienceOverride(ctx context.Context, o CustomAudienceOverride) error
	DeleteCustomAudienceOverride(ctx context.Context, owner, buyer, name, appPackage string) error
	DeleteAllCustomAudienceOverrides(ctx context.Context, appPackage string) error
}

// ScriptExecutor runs a reporting script. The ctx deadline is the phase
// budget; implementations should stop when it fires.
type ScriptExecutor interface {
	Execute(ctx context.Context, in ScriptInput) (ScriptResult, error)
}

// ScriptSource downloads script bodies.
type ScriptSource interface {
	FetchScript(ctx context.Context, uri string, useCache bool) (string, error)
}

// Notifier issues a GET to a reporting URI and discards the response.
type Notifier interface {
	Notify(ctx context.Context, uri string) error
}

// EnrollmentChecker reports whether an ad tech may receive reports.
type EnrollmentChecker interface {
	AssertEnrolled(ctx context.Context, adTech string) error
}

// FilterRequest is what the caller-authorization filter inspects.
type FilterRequest struct {
	API               string
	Seller            string
	CallerPackage     string
	Foreground        bool
	EnforceForeground bool
	EnforceEnrollment bool
}

// Filter authorizes the caller. Rejections are *FilterError.
type Filter interface {
	FilterRequest(ctx context.Context, req FilterRequest) error
}

// UsageLogger records one event per API call.
type UsageLogger interface {
	LogAPICall(api, callerPackage string, status StatusCode, latency time.Duration)
}

// Metrics receives pipeline measurements.
type Metrics interface {
	ObservePhase(phase string, d time.Duration)
	BeaconsRegistered(dest Destination, n int)
	Notification(dest Destination, sent bool)
}

type noopMetrics struct{}

func (noopMetrics) ObservePhase(string, time.Duration) {}
func (noopMetrics) BeaconsRegistered(Destination, int) {}
func (noopMetrics) Notification(Destination, bool) {}

type allowAll struct{}

func (allowAll) FilterRequest(context.Context, FilterRequest) error { return nil }
func (allowAll) AssertEnrolled(context.Context, string) error { return nil }

type discardUsage struct{}

func (discardUsage) LogAPICall(string, string, StatusCode, time.Duration) {}
