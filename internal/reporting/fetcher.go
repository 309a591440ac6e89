package reporting

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Fetcher resolves seller and buyer reporting scripts.
type Fetcher struct {
	source     ScriptSource
	overrides  OverrideStore
	buyerLogic BuyerLogicStore
}

func NewFetcher(source ScriptSource, overrides OverrideStore, buyerLogic BuyerLogicStore) *Fetcher {
	return &Fetcher{source: source, overrides: overrides, buyerLogic: buyerLogic}
}

// SellerLogic returns the seller's reportResult script. A dev override for
// the caller wins over the network.
func (f *Fetcher) SellerLogic(ctx context.Context, cfg AdSelectionConfig, dev DevContext, flags Flags) (string, error) {
	if dev.DevOptionsEnabled && f.overrides != nil {
		o, ok, err := f.overrides.AdSelectionOverride(ctx, cfg.ConfigHash(), dev.CallerPackage)
		if err != nil {
			return "", fmt.Errorf("%w: reading ad selection override: %w", ErrFetchFailed, err)
		}
		if ok {
			log.Debug().Str("seller", cfg.Seller).Msg("using dev override for seller reporting logic")
			return o.DecisionLogicJS, nil
		}
	}
	return f.fetch(ctx, cfg.DecisionLogicURI, flags)
}

// BuyerLogic returns the buyer's reportWin script. Lookup order: logic
// captured during the auction, a dev override for the winning audience,
// the persisted buyer decision logic table, then the network.
func (f *Fetcher) BuyerLogic(ctx context.Context, rec AdSelectionRecord, dev DevContext, flags Flags) (string, error) {
	if rec.BuyerDecisionLogicJS != "" {
		return rec.BuyerDecisionLogicJS, nil
	}
	ca := rec.CustomAudience
	if dev.DevOptionsEnabled && f.overrides != nil && ca != nil {
		o, ok, err := f.overrides.CustomAudienceOverride(ctx, ca.Owner, ca.Buyer, ca.Name, dev.CallerPackage)
		if err != nil {
			return "", fmt.Errorf("%w: reading custom audience override: %w", ErrFetchFailed, err)
		}
		if ok {
			log.Debug().Str("buyer", ca.Buyer).Msg("using dev override for buyer reporting logic")
			return o.BiddingLogicJS, nil
		}
	}
	if rec.BiddingLogicURI == "" {
		return "", fmt.Errorf("%w: no buyer decision logic persisted for ad selection %d", ErrFetchFailed, rec.ID)
	}
	if f.buyerLogic != nil {
		js, err := f.buyerLogic.BuyerDecisionLogic(ctx, rec.BiddingLogicURI)
		switch {
		case err == nil:
			return js, nil
		case !errors.Is(err, ErrRecordNotFound):
			return "", fmt.Errorf("%w: reading buyer decision logic: %w", ErrFetchFailed, err)
		}
	}
	return f.fetch(ctx, rec.BiddingLogicURI, flags)
}

func (f *Fetcher) fetch(ctx context.Context, uri string, flags Flags) (string, error) {
	if f.source == nil {
		return "", fmt.Errorf("%w: no script source configured for %s", ErrFetchFailed, uri)
	}
	if flags.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.FetchTimeout)
		defer cancel()
	}
	js, err := f.source.FetchScript(ctx, uri, flags.JSCachingEnabled)
	if err != nil {
		return "", fmt.Errorf("%w from %s: %w", ErrFetchFailed, uri, err)
	}
	return js, nil
}
