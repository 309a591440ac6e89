package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"ad-reporting-engine/internal/cache"
	"ad-reporting-engine/internal/reporting"
)

type AdSelectionKey struct{ ConfigID, AppPackage string }

type CustomAudienceKey struct{ Owner, Buyer, Name, AppPackage string }

// OverrideSet is an immutable view of every dev override.
type OverrideSet struct {
	AdSelection    map[AdSelectionKey]reporting.AdSelectionOverride
	CustomAudience map[CustomAudienceKey]reporting.CustomAudienceOverride
}

func NewOverrideSet() OverrideSet {
	return OverrideSet{
		AdSelection:    map[AdSelectionKey]reporting.AdSelectionOverride{},
		CustomAudience: map[CustomAudienceKey]reporting.CustomAudienceOverride{},
	}
}

func adSelectionKeyOf(o reporting.AdSelectionOverride) AdSelectionKey {
	return AdSelectionKey{o.ConfigID, o.AppPackage}
}

func customAudienceKeyOf(o reporting.CustomAudienceOverride) CustomAudienceKey {
	return CustomAudienceKey{o.Owner, o.Buyer, o.Name, o.AppPackage}
}

// OverrideBackend is a durable override store that can be read in full.
type OverrideBackend interface {
	reporting.OverrideStore
	LoadOverrides(ctx context.Context) (OverrideSet, error)
}

// OverrideCache serves override reads from an in-memory snapshot and writes
// through to the backend. Refresh is also driven by the listener when
// another instance changes the tables.
type OverrideCache struct {
	backend OverrideBackend
	snap    cache.Snapshot[OverrideSet]
}

func NewOverrideCache(backend OverrideBackend) *OverrideCache {
	return &OverrideCache{backend: backend}
}

func (c *OverrideCache) Refresh(ctx context.Context) error {
	set, err := c.backend.LoadOverrides(ctx)
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	c.snap.Store(set)
	log.Debug().
		Int("ad_selection", len(set.AdSelection)).
		Int("custom_audience", len(set.CustomAudience)).
		Msg("override snapshot refreshed")
	return nil
}

func (c *OverrideCache) AdSelectionOverride(ctx context.Context, configID, appPackage string) (reporting.AdSelectionOverride, bool, error) {
	set, ok := c.snap.Load()
	if !ok {
		return c.backend.AdSelectionOverride(ctx, configID, appPackage)
	}
	o, found := set.AdSelection[AdSelectionKey{configID, appPackage}]
	return o, found, nil
}

func (c *OverrideCache) CustomAudienceOverride(ctx context.Context, owner, buyer, name, appPackage string) (reporting.CustomAudienceOverride, bool, error) {
	set, ok := c.snap.Load()
	if !ok {
		return c.backend.CustomAudienceOverride(ctx, owner, buyer, name, appPackage)
	}
	o, found := set.CustomAudience[CustomAudienceKey{owner, buyer, name, appPackage}]
	return o, found, nil
}

func (c *OverrideCache) PutAdSelectionOverride(ctx context.Context, o reporting.AdSelectionOverride) error {
	return c.write(ctx, c.backend.PutAdSelectionOverride(ctx, o))
}

func (c *OverrideCache) DeleteAdSelectionOverride(ctx context.Context, configID, appPackage string) error {
	return c.write(ctx, c.backend.DeleteAdSelectionOverride(ctx, configID, appPackage))
}

func (c *OverrideCache) DeleteAllAdSelectionOverrides(ctx context.Context, appPackage string) error {
	return c.write(ctx, c.backend.DeleteAllAdSelectionOverrides(ctx, appPackage))
}

func (c *OverrideCache) PutCustomAudienceOverride(ctx context.Context, o reporting.CustomAudienceOverride) error {
	return c.write(ctx, c.backend.PutCustomAudienceOverride(ctx, o))
}

func (c *OverrideCache) DeleteCustomAudienceOverride(ctx context.Context, owner, buyer, name, appPackage string) error {
	return c.write(ctx, c.backend.DeleteCustomAudienceOverride(ctx, owner, buyer, name, appPackage))
}

func (c *OverrideCache) DeleteAllCustomAudienceOverrides(ctx context.Context, appPackage string) error {
	return c.write(ctx, c.backend.DeleteAllCustomAudienceOverrides(ctx, appPackage))
}

// write refreshes after a successful backend write so this instance reads
// its own writes without waiting for the notification.
func (c *OverrideCache) write(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	return c.Refresh(ctx)
}
