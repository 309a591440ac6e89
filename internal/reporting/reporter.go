package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

const (
	phaseFetchSeller = "fetch_seller_script"
	phaseRunSeller   = "run_seller_script"
	phaseFetchBuyer  = "fetch_buyer_script"
	phaseRunBuyer    = "run_buyer_script"
)

// Deps is everything the reporter needs. It is read once at construction.
type Deps struct {
	Records    RecordStore
	Beacons    BeaconStore
	BuyerLogic BuyerLogicStore
	Overrides  OverrideStore
	Scripts    ScriptSource
	Executor   ScriptExecutor
	Notifier   Notifier
	Enrollment EnrollmentChecker
	Filter     Filter
	Usage      UsageLogger
	Metrics    Metrics
	Flags      FlagsSource
}

// Callback receives the outcome of ReportImpressionAsync exactly once.
type Callback interface {
	OnSuccess()
	OnFailure(err *StatusError)
}

// ImpressionReporter runs the seller reportResult and buyer reportWin
// scripts for a finished auction, registers their beacons and notifies
// their reporting URIs.
type ImpressionReporter struct {
	records    RecordStore
	executor   ScriptExecutor
	filter     Filter
	usage      UsageLogger
	metrics    Metrics
	flags      FlagsSource
	fetcher    *Fetcher
	registrar  *Registrar
	dispatcher *Dispatcher
}

func NewImpressionReporter(d Deps) *ImpressionReporter {
	if d.Filter == nil {
		d.Filter = allowAll{}
	}
	if d.Enrollment == nil {
		d.Enrollment = allowAll{}
	}
	if d.Usage == nil {
		d.Usage = discardUsage{}
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	if d.Flags == nil {
		d.Flags = StaticFlags(DefaultFlags())
	}
	return &ImpressionReporter{
		records:    d.Records,
		executor:   d.Executor,
		filter:     d.Filter,
		usage:      d.Usage,
		metrics:    d.Metrics,
		flags:      d.Flags,
		fetcher:    NewFetcher(d.Scripts, d.Overrides, d.BuyerLogic),
		registrar:  NewRegistrar(d.Beacons, d.Enrollment, d.Metrics),
		dispatcher: NewDispatcher(d.Notifier, d.Enrollment, d.Metrics),
	}
}

// ReportImpression blocks until the call resolves. It returns nil on success
// and when the user has revoked consent; otherwise a *StatusError.
func (r *ImpressionReporter) ReportImpression(ctx context.Context, in ReportImpressionInput) error {
	start := time.Now()
	flags := r.flags.Flags()
	lg := log.With().
		Str("call_id", uuid.NewString()).
		Int64("ad_selection_id", in.AdSelectionID).
		Str("caller", in.CallerPackage).
		Logger()

	// the pipeline is detached from caller cancellation; if the deadline or
	// the caller gives up first the pipeline finishes in the background
	pctx := lg.WithContext(context.WithoutCancel(ctx))
	pipeline := Go(func() (struct{}, error) {
		return struct{}{}, r.run(pctx, in, flags)
	})
	_, err := WithTimeout(pipeline, flags.OverallTimeout).Get(ctx)
	return r.finish(in, err, time.Since(start), lg)
}

// ReportImpressionAsync runs ReportImpression on its own goroutine.
func (r *ImpressionReporter) ReportImpressionAsync(ctx context.Context, in ReportImpressionInput, cb Callback) {
	go func() {
		if err := r.ReportImpression(ctx, in); err != nil {
			cb.OnFailure(toStatusError(err))
			return
		}
		cb.OnSuccess()
	}()
}

func (r *ImpressionReporter) finish(in ReportImpressionInput, err error, latency time.Duration, lg zerolog.Logger) error {
	if err == nil {
		lg.Debug().Dur("latency", latency).Msg("impression reported")
		r.usage.LogAPICall(APIReportImpression, in.CallerPackage, StatusSuccess, latency)
		return nil
	}

	var fe *FilterError
	if errors.As(err, &fe) {
		// the filter already logged the rejection
		if fe.Code == StatusUserConsentRevoked {
			lg.Debug().Msg("consent revoked; reporting success without side effects")
			return nil
		}
		lg.Info().Err(err).Stringer("status", fe.Code).Msg("report impression rejected by filter")
		return &StatusError{Code: fe.Code, Message: fe.Error(), Err: err}
	}

	se := toStatusError(err)
	lg.Error().Err(err).Stringer("status", se.Code).Msg("report impression failed")
	r.usage.LogAPICall(APIReportImpression, in.CallerPackage, se.Code, latency)
	return se
}

func (r *ImpressionReporter) run(ctx context.Context, in ReportImpressionInput, flags Flags) error {
	lg := zerolog.Ctx(ctx)

	err := r.filter.FilterRequest(ctx, FilterRequest{
		API:               APIReportImpression,
		Seller:            in.Config.Seller,
		CallerPackage:     in.CallerPackage,
		Foreground:        in.Foreground,
		EnforceForeground: flags.EnforceForeground,
		EnforceEnrollment: flags.EnrollmentCheckEnabled,
	})
	if err != nil {
		return err
	}
	if err := ValidateAdSelectionConfig(in.Config); err != nil {
		return err
	}

	rec, err := r.records.GetAdSelection(ctx, in.AdSelectionID, flags.UseUnifiedTables)
	if errors.Is(err, ErrRecordNotFound) {
		return ErrAdSelectionNotFound
	}
	if err != nil {
		return fmt.Errorf("loading ad selection %d: %w", in.AdSelectionID, err)
	}
	if rec.CallerPackage != in.CallerPackage {
		return ErrCallerPackageMismatch
	}

	t := time.Now()
	sellerJS, err := r.fetcher.SellerLogic(ctx, in.Config, in.Dev, flags)
	r.metrics.ObservePhase(phaseFetchSeller, time.Since(t))
	if err != nil {
		return err
	}
	lg.Debug().Msg("seller reporting logic fetched")

	seller, err := r.runScript(ctx, phaseRunSeller, ScriptInput{
		Kind:                ScriptReportResult,
		Script:              sellerJS,
		Config:              in.Config,
		RenderURI:           rec.WinningRenderURI,
		Bid:                 rec.WinningBid,
		ContextualSignals:   rec.SellerContextualSignals,
		BeaconsEnabled:      flags.RegisterAdBeaconEnabled,
		MaxBeaconsPerAdTech: flags.MaxRegisteredBeaconsPerAdTech,
	}, flags)
	if err != nil {
		return err
	}
	if err := r.commitBeacons(ctx, rec.ID, DestinationSeller, in.Config.Seller, seller.Beacons, flags); err != nil {
		return err
	}

	notifications := pool.New()
	notifications.Go(func() {
		r.dispatcher.Notify(ctx, DestinationSeller, in.Config.Seller, seller.ReportingURI, flags)
	})

	buyerErr := r.reportBuyer(ctx, in, rec, seller, flags, notifications)
	notifications.Wait()
	return buyerErr
}

func (r *ImpressionReporter) reportBuyer(ctx context.Context, in ReportImpressionInput, rec AdSelectionRecord, seller ScriptResult, flags Flags, notifications *pool.Pool) error {
	ca := rec.CustomAudience
	if ca == nil {
		zerolog.Ctx(ctx).Debug().Msg("contextual ad; no buyer reporting")
		return nil
	}

	t := time.Now()
	buyerJS, err := r.fetcher.BuyerLogic(ctx, rec, in.Dev, flags)
	r.metrics.ObservePhase(phaseFetchBuyer, time.Since(t))
	if err != nil {
		return err
	}

	buyer, err := r.runScript(ctx, phaseRunBuyer, ScriptInput{
		Kind:                ScriptReportWin,
		Script:              buyerJS,
		AdSelectionSignals:  in.Config.AdSelectionSignals,
		PerBuyerSignals:     in.Config.PerBuyerSignals[ca.Buyer],
		SignalsForBuyer:     seller.SignalsForBuyer,
		ContextualSignals:   rec.BuyerContextualSignals,
		CustomAudience:      ca,
		BeaconsEnabled:      flags.RegisterAdBeaconEnabled,
		MaxBeaconsPerAdTech: flags.MaxRegisteredBeaconsPerAdTech,
	}, flags)
	if err != nil {
		return err
	}
	if err := r.commitBeacons(ctx, rec.ID, DestinationBuyer, ca.Buyer, buyer.Beacons, flags); err != nil {
		return err
	}

	notifications.Go(func() {
		r.dispatcher.Notify(ctx, DestinationBuyer, ca.Buyer, buyer.ReportingURI, flags)
	})
	return nil
}

// runScript executes one script phase under its own budget.
func (r *ImpressionReporter) runScript(ctx context.Context, phase string, in ScriptInput, flags Flags) (ScriptResult, error) {
	start := time.Now()
	defer func() { r.metrics.ObservePhase(phase, time.Since(start)) }()

	sctx := ctx
	if flags.ScriptTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, flags.ScriptTimeout)
		defer cancel()
	}
	exec := Go(func() (ScriptResult, error) { return r.executor.Execute(sctx, in) })
	res, err := WithTimeout(exec, flags.ScriptTimeout).Get(ctx)
	switch {
	case errors.Is(err, ErrTimedOut):
		return ScriptResult{}, fmt.Errorf("%s: %w", phase, err)
	case errors.Is(err, context.DeadlineExceeded):
		return ScriptResult{}, fmt.Errorf("%s: %w after %v", phase, ErrTimedOut, flags.ScriptTimeout)
	case err != nil:
		return ScriptResult{}, fmt.Errorf("%w: %s: %w", ErrScriptFailed, phase, err)
	case res.Status != 0:
		return ScriptResult{}, fmt.Errorf("%w: %s returned status %d", ErrScriptFailed, phase, res.Status)
	}
	return res, nil
}

func (r *ImpressionReporter) commitBeacons(ctx context.Context, id int64, dest Destination, adTech string, beacons []InteractionBeacon, flags Flags) error {
	if len(beacons) == 0 {
		return nil
	}
	if !flags.RegisterAdBeaconEnabled {
		return fmt.Errorf("%w: %s script declared %d beacons", ErrBeaconsDisabled, dest, len(beacons))
	}
	_, err := r.registrar.Commit(ctx, id, dest, adTech, beacons, flags)
	return err
}
