// Package filter authorizes reporting callers before any work is done.
package filter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"ad-reporting-engine/internal/reporting"
)

const wildcard = "*"

type Options struct {
	AllowedApps            []string
	EnrolledAdTechs        []string
	RevokedConsentPackages []string
	RequestsPerSecond      float64
	Burst                  int
	Usage                  reporting.UsageLogger
}

// Filter applies, in order: the per-caller throttle, the foreground check,
// the app allow list, seller enrollment and user consent. A rejection is
// logged as a usage event here and returned as *reporting.FilterError.
type Filter struct {
	usage   reporting.UsageLogger
	limit   rate.Limit
	burst   int
	apps    set
	adTechs set
	revoked set

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type set map[string]struct{}

func newSet(items []string) set {
	s := set{}
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s set) allows(v string) bool {
	if _, ok := s[wildcard]; ok {
		return true
	}
	_, ok := s[v]
	return ok
}

func New(o Options) *Filter {
	if o.Burst <= 0 {
		o.Burst = 1
	}
	limit := rate.Inf
	if o.RequestsPerSecond > 0 {
		limit = rate.Limit(o.RequestsPerSecond)
	}
	return &Filter{
		usage:    o.Usage,
		limit:    limit,
		burst:    o.Burst,
		apps:     newSet(o.AllowedApps),
		adTechs:  newSet(o.EnrolledAdTechs),
		revoked:  newSet(o.RevokedConsentPackages),
		limiters: map[string]*rate.Limiter{},
	}
}

func (f *Filter) FilterRequest(ctx context.Context, req reporting.FilterRequest) error {
	start := time.Now()
	code, err := f.check(ctx, req)
	if err == nil {
		return nil
	}
	log.Info().Str("api", req.API).Str("caller", req.CallerPackage).Stringer("status", code).Err(err).Msg("request filtered")
	if f.usage != nil {
		f.usage.LogAPICall(req.API, req.CallerPackage, code, time.Since(start))
	}
	return &reporting.FilterError{Code: code, Err: err}
}

func (f *Filter) check(ctx context.Context, req reporting.FilterRequest) (reporting.StatusCode, error) {
	if !f.limiter(req.CallerPackage).Allow() {
		return reporting.StatusRateLimitReached, errors.New(reporting.RateLimitReachedMessage)
	}
	if req.EnforceForeground && !req.Foreground {
		return reporting.StatusBackgroundCaller, errors.New(reporting.BackgroundCallerMessage)
	}
	if !f.apps.allows(req.CallerPackage) {
		return reporting.StatusCallerNotAllowed, errors.New(reporting.CallerNotAllowedMessage)
	}
	if req.EnforceEnrollment && req.Seller != "" {
		if err := f.AssertEnrolled(ctx, req.Seller); err != nil {
			return reporting.StatusCallerNotAllowed, fmt.Errorf("%s: %w", reporting.CallerNotAllowedMessage, err)
		}
	}
	if _, revoked := f.revoked[req.CallerPackage]; revoked {
		return reporting.StatusUserConsentRevoked, errors.New(reporting.ConsentRevokedMessage)
	}
	return reporting.StatusSuccess, nil
}

// AssertEnrolled reports whether adTech may receive reports and beacons.
func (f *Filter) AssertEnrolled(_ context.Context, adTech string) error {
	if !f.adTechs.allows(adTech) {
		return fmt.Errorf("%w: %s", reporting.ErrAdTechNotEnrolled, adTech)
	}
	return nil
}

func (f *Filter) limiter(caller string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[caller]
	if !ok {
		l = rate.NewLimiter(f.limit, f.burst)
		f.limiters[caller] = l
	}
	return l
}
