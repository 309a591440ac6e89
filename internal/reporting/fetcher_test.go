package reporting_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ad-reporting-engine/internal/reporting"
	"ad-reporting-engine/internal/storage"
)

const (
	sellerLogicURI = "https://seller.example/decide.js"
	buyerLogicURI  = "https://buyer.example/bid.js"
)

func fetcherConfig() reporting.AdSelectionConfig {
	return reporting.AdSelectionConfig{Seller: "seller.example", DecisionLogicURI: sellerLogicURI}
}

func TestFetcher_SellerLogic(t *testing.T) {
	ctx := context.Background()
	src := newScripts(map[string]string{sellerLogicURI: "network"})
	store := storage.NewMemory()
	f := reporting.NewFetcher(src, store, store)
	cfg := fetcherConfig()
	dev := reporting.DevContext{DevOptionsEnabled: true, CallerPackage: "com.app"}

	js, err := f.SellerLogic(ctx, cfg, dev, reporting.DefaultFlags())
	require.NoError(t, err)
	assert.Equal(t, "network", js)

	require.NoError(t, store.PutAdSelectionOverride(ctx, reporting.AdSelectionOverride{
		ConfigID: cfg.ConfigHash(), AppPackage: "com.app", DecisionLogicJS: "override",
	}))
	js, err = f.SellerLogic(ctx, cfg, dev, reporting.DefaultFlags())
	require.NoError(t, err)
	assert.Equal(t, "override", js)

	// overrides belong to the package that set them and need dev options
	js, _ = f.SellerLogic(ctx, cfg, reporting.DevContext{DevOptionsEnabled: true, CallerPackage: "com.other"}, reporting.DefaultFlags())
	assert.Equal(t, "network", js)
	js, _ = f.SellerLogic(ctx, cfg, reporting.DevContext{CallerPackage: "com.app"}, reporting.DefaultFlags())
	assert.Equal(t, "network", js)
	assert.Equal(t, 3, src.count(sellerLogicURI))
}

func TestFetcher_SellerLogic_Failures(t *testing.T) {
	ctx := context.Background()

	f := reporting.NewFetcher(newScripts(nil), nil, nil)
	_, err := f.SellerLogic(ctx, fetcherConfig(), reporting.DevContext{}, reporting.DefaultFlags())
	assert.ErrorIs(t, err, reporting.ErrFetchFailed)
	assert.Equal(t, reporting.StatusInternalError, reporting.StatusOf(err))

	slow := newScripts(map[string]string{sellerLogicURI: "x"})
	slow.block = true
	flags := reporting.DefaultFlags()
	flags.FetchTimeout = 20 * time.Millisecond
	start := time.Now()
	_, err = reporting.NewFetcher(slow, nil, nil).SellerLogic(ctx, fetcherConfig(), reporting.DevContext{}, flags)
	assert.ErrorIs(t, err, reporting.ErrFetchFailed)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetcher_BuyerLogic_Order(t *testing.T) {
	ctx := context.Background()
	ca := &reporting.CustomAudienceSignals{Owner: "com.app", Buyer: "buyer.example", Name: "shoes"}
	dev := reporting.DevContext{DevOptionsEnabled: true, CallerPackage: "com.app"}
	flags := reporting.DefaultFlags()

	src := newScripts(map[string]string{buyerLogicURI: "network"})
	store := storage.NewMemory()
	f := reporting.NewFetcher(src, store, store)
	rec := reporting.AdSelectionRecord{ID: 1, CustomAudience: ca, BiddingLogicURI: buyerLogicURI}

	js, err := f.BuyerLogic(ctx, rec, dev, flags)
	require.NoError(t, err)
	assert.Equal(t, "network", js)

	store.PutBuyerDecisionLogic(buyerLogicURI, "persisted")
	js, _ = f.BuyerLogic(ctx, rec, dev, flags)
	assert.Equal(t, "persisted", js)

	require.NoError(t, store.PutCustomAudienceOverride(ctx, reporting.CustomAudienceOverride{
		Owner: "com.app", Buyer: "buyer.example", Name: "shoes", AppPackage: "com.app", BiddingLogicJS: "override",
	}))
	js, _ = f.BuyerLogic(ctx, rec, dev, flags)
	assert.Equal(t, "override", js)

	rec.BuyerDecisionLogicJS = "inline"
	js, _ = f.BuyerLogic(ctx, rec, dev, flags)
	assert.Equal(t, "inline", js)

	assert.Equal(t, 1, src.count(buyerLogicURI))
}

func TestFetcher_BuyerLogic_MissingURI(t *testing.T) {
	f := reporting.NewFetcher(newScripts(nil), nil, storage.NewMemory())
	rec := reporting.AdSelectionRecord{ID: 1, CustomAudience: &reporting.CustomAudienceSignals{Buyer: "buyer.example"}}
	_, err := f.BuyerLogic(context.Background(), rec, reporting.DevContext{}, reporting.DefaultFlags())
	assert.ErrorIs(t, err, reporting.ErrFetchFailed)
}
