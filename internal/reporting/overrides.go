package reporting

import (
	"context"
	"fmt"
	"time"
)

const (
	APIOverrideAdSelectionConfig       = "override_ad_selection_config_remote_info"
	APIRemoveAdSelectionConfigOverride = "remove_ad_selection_config_remote_info_override"
	APIResetAdSelectionConfigOverrides = "reset_all_ad_selection_config_remote_overrides"
	APIOverrideCustomAudience          = "override_custom_audience_remote_info"
	APIRemoveCustomAudienceOverride    = "remove_custom_audience_remote_info_override"
	APIResetCustomAudienceOverrides    = "reset_all_custom_audience_overrides"
)

// OverrideService manages dev-mode script overrides. Every operation requires
// developer options to be enabled for the caller, and overrides are scoped to
// the calling package.
type OverrideService struct {
	store OverrideStore
	usage UsageLogger
}

func NewOverrideService(store OverrideStore, usage UsageLogger) *OverrideService {
	if usage == nil {
		usage = discardUsage{}
	}
	return &OverrideService{store: store, usage: usage}
}

func (s *OverrideService) OverrideAdSelectionConfig(ctx context.Context, dev DevContext, cfg AdSelectionConfig, decisionLogicJS, trustedScoringSignals string) error {
	return s.do(APIOverrideAdSelectionConfig, dev, func() error {
		if err := ValidateAdSelectionConfig(cfg); err != nil {
			return err
		}
		if decisionLogicJS == "" {
			return &ValidationError{Subject: "ad selection override", Violations: []string{"decision logic js is empty"}}
		}
		return s.store.PutAdSelectionOverride(ctx, AdSelectionOverride{
			ConfigID:              cfg.ConfigHash(),
			AppPackage:            dev.CallerPackage,
			DecisionLogicJS:       decisionLogicJS,
			TrustedScoringSignals: trustedScoringSignals,
		})
	})
}

func (s *OverrideService) RemoveAdSelectionConfigOverride(ctx context.Context, dev DevContext, cfg AdSelectionConfig) error {
	return s.do(APIRemoveAdSelectionConfigOverride, dev, func() error {
		return s.store.DeleteAdSelectionOverride(ctx, cfg.ConfigHash(), dev.CallerPackage)
	})
}

func (s *OverrideService) ResetAllAdSelectionConfigOverrides(ctx context.Context, dev DevContext) error {
	return s.do(APIResetAdSelectionConfigOverrides, dev, func() error {
		return s.store.DeleteAllAdSelectionOverrides(ctx, dev.CallerPackage)
	})
}

func (s *OverrideService) OverrideCustomAudience(ctx context.Context, dev DevContext, o CustomAudienceOverride) error {
	return s.do(APIOverrideCustomAudience, dev, func() error {
		var violations []string
		if !validAdTechIdentifier(o.Buyer) {
			violations = append(violations, fmt.Sprintf("buyer %q is not a valid ad tech identifier", o.Buyer))
		}
		if o.Owner == "" || o.Name == "" {
			violations = append(violations, "owner and name are required")
		}
		if o.BiddingLogicJS == "" {
			violations = append(violations, "bidding logic js is empty")
		}
		if len(violations) > 0 {
			return &ValidationError{Subject: "custom audience override", Violations: violations}
		}
		o.AppPackage = dev.CallerPackage
		return s.store.PutCustomAudienceOverride(ctx, o)
	})
}

func (s *OverrideService) RemoveCustomAudienceOverride(ctx context.Context, dev DevContext, owner, buyer, name string) error {
	return s.do(APIRemoveCustomAudienceOverride, dev, func() error {
		return s.store.DeleteCustomAudienceOverride(ctx, owner, buyer, name, dev.CallerPackage)
	})
}

func (s *OverrideService) ResetAllCustomAudienceOverrides(ctx context.Context, dev DevContext) error {
	return s.do(APIResetCustomAudienceOverrides, dev, func() error {
		return s.store.DeleteAllCustomAudienceOverrides(ctx, dev.CallerPackage)
	})
}

func (s *OverrideService) do(api string, dev DevContext, fn func() error) error {
	start := time.Now()
	err := ErrDevOptionsDisabled
	if dev.DevOptionsEnabled {
		err = fn()
	}
	code := StatusOf(err)
	s.usage.LogAPICall(api, dev.CallerPackage, code, time.Since(start))
	if err == nil {
		return nil
	}
	if code == StatusInternalError {
		err = fmt.Errorf("%s: %w", api, err)
	}
	return toStatusError(err)
}
