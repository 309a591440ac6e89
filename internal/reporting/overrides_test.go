package reporting_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ad-reporting-engine/internal/reporting"
	"ad-reporting-engine/internal/reporting/mocks"
	"ad-reporting-engine/internal/storage"
)

func TestOverrideService_AdSelectionConfig(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	usage := mocks.NewMockUsageLogger(t)
	usage.EXPECT().LogAPICall(mock.Anything, "com.app", reporting.StatusSuccess, mock.Anything).Return().Times(3)
	svc := reporting.NewOverrideService(store, usage)
	dev := reporting.DevContext{DevOptionsEnabled: true, CallerPackage: "com.app"}
	cfg := fetcherConfig()

	require.NoError(t, svc.OverrideAdSelectionConfig(ctx, dev, cfg, "js", "{}"))
	o, ok, _ := store.AdSelectionOverride(ctx, cfg.ConfigHash(), "com.app")
	require.True(t, ok)
	assert.Equal(t, "js", o.DecisionLogicJS)
	assert.Equal(t, "{}", o.TrustedScoringSignals)

	require.NoError(t, svc.RemoveAdSelectionConfigOverride(ctx, dev, cfg))
	_, ok, _ = store.AdSelectionOverride(ctx, cfg.ConfigHash(), "com.app")
	assert.False(t, ok)

	require.NoError(t, svc.ResetAllAdSelectionConfigOverrides(ctx, dev))
}

func TestOverrideService_Rejections(t *testing.T) {
	ctx := context.Background()
	usage := mocks.NewMockUsageLogger(t)
	svc := reporting.NewOverrideService(storage.NewMemory(), usage)

	usage.EXPECT().LogAPICall(reporting.APIResetCustomAudienceOverrides, "com.app", reporting.StatusUnauthorized, mock.Anything).Return().Once()
	err := svc.ResetAllCustomAudienceOverrides(ctx, reporting.DevContext{CallerPackage: "com.app"})
	assert.ErrorIs(t, err, reporting.ErrDevOptionsDisabled)
	assert.Equal(t, reporting.StatusUnauthorized, reporting.StatusOf(err))

	dev := reporting.DevContext{DevOptionsEnabled: true, CallerPackage: "com.app"}

	usage.EXPECT().LogAPICall(reporting.APIOverrideAdSelectionConfig, "com.app", reporting.StatusInvalidArgument, mock.Anything).Return().Twice()
	err = svc.OverrideAdSelectionConfig(ctx, dev, fetcherConfig(), "", "")
	assert.Equal(t, reporting.StatusInvalidArgument, reporting.StatusOf(err))
	bad := fetcherConfig()
	bad.DecisionLogicURI = "https://other.example/decide.js"
	err = svc.OverrideAdSelectionConfig(ctx, dev, bad, "js", "")
	assert.Equal(t, reporting.StatusInvalidArgument, reporting.StatusOf(err))

	usage.EXPECT().LogAPICall(reporting.APIOverrideCustomAudience, "com.app", reporting.StatusInvalidArgument, mock.Anything).Return().Once()
	err = svc.OverrideCustomAudience(ctx, dev, reporting.CustomAudienceOverride{Buyer: "buyer.example"})
	assert.Equal(t, reporting.StatusInvalidArgument, reporting.StatusOf(err))
}

func TestOverrideService_CustomAudienceScopedToCaller(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	svc := reporting.NewOverrideService(store, nil)
	dev := reporting.DevContext{DevOptionsEnabled: true, CallerPackage: "com.app"}

	require.NoError(t, svc.OverrideCustomAudience(ctx, dev, reporting.CustomAudienceOverride{
		Owner: "com.app", Buyer: "buyer.example", Name: "shoes", AppPackage: "com.spoofed", BiddingLogicJS: "js",
	}))
	_, ok, _ := store.CustomAudienceOverride(ctx, "com.app", "buyer.example", "shoes", "com.app")
	assert.True(t, ok)
	_, ok, _ = store.CustomAudienceOverride(ctx, "com.app", "buyer.example", "shoes", "com.spoofed")
	assert.False(t, ok)

	require.NoError(t, svc.RemoveCustomAudienceOverride(ctx, dev, "com.app", "buyer.example", "shoes"))
	_, ok, _ = store.CustomAudienceOverride(ctx, "com.app", "buyer.example", "shoes", "com.app")
	assert.False(t, ok)
}
