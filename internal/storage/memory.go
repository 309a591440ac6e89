package storage

import (
	"context"
	"sync"

	"ad-reporting-engine/internal/reporting"
)

type beaconKey struct {
	id   int64
	key  string
	dest reporting.Destination
}

// Memory implements every store port in process. It backs tests and the
// server when no database is configured.
type Memory struct {
	mu         sync.Mutex
	records    map[int64]reporting.AdSelectionRecord
	buyerLogic map[string]string
	beacons    map[beaconKey]string
	overrides  OverrideSet
}

func NewMemory() *Memory {
	return &Memory{
		records:    map[int64]reporting.AdSelectionRecord{},
		buyerLogic: map[string]string{},
		beacons:    map[beaconKey]string{},
		overrides:  NewOverrideSet(),
	}
}

// SaveAdSelection stores rec. Both table layouts share one map here.
func (m *Memory) SaveAdSelection(_ context.Context, rec reporting.AdSelectionRecord, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *Memory) PutBuyerDecisionLogic(uri, js string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buyerLogic[uri] = js
}

func (m *Memory) GetAdSelection(_ context.Context, id int64, _ bool) (reporting.AdSelectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return rec, reporting.ErrRecordNotFound
	}
	return rec, nil
}

func (m *Memory) BuyerDecisionLogic(_ context.Context, uri string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	js, ok := m.buyerLogic[uri]
	if !ok {
		return "", reporting.ErrRecordNotFound
	}
	return js, nil
}

func (m *Memory) SafelyInsertBeacons(_ context.Context, id int64, dest reporting.Destination, beacons []reporting.InteractionBeacon, maxTotal, maxPerDestination int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var perDest int64
	for k := range m.beacons {
		if k.id == id && k.dest == dest {
			perDest++
		}
	}
	n := capacity(int64(len(m.beacons)), perDest, maxTotal, maxPerDestination, len(beacons))
	for _, b := range beacons[:n] {
		m.beacons[beaconKey{id, b.Key, dest}] = b.URI
	}
	return n, nil
}

func (m *Memory) RegisteredBeaconURI(_ context.Context, id int64, key string, dest reporting.Destination) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uri, ok := m.beacons[beaconKey{id, key, dest}]
	if !ok {
		return "", reporting.ErrRecordNotFound
	}
	return uri, nil
}

func (m *Memory) CountBeacons(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.beacons)), nil
}

func (m *Memory) AdSelectionOverride(_ context.Context, configID, appPackage string) (reporting.AdSelectionOverride, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.overrides.AdSelection[AdSelectionKey{configID, appPackage}]
	return o, ok, nil
}

func (m *Memory) PutAdSelectionOverride(_ context.Context, o reporting.AdSelectionOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides.AdSelection[adSelectionKeyOf(o)] = o
	return nil
}

func (m *Memory) DeleteAdSelectionOverride(_ context.Context, configID, appPackage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides.AdSelection, AdSelectionKey{configID, appPackage})
	return nil
}

func (m *Memory) DeleteAllAdSelectionOverrides(_ context.Context, appPackage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.overrides.AdSelection {
		if k.AppPackage == appPackage {
			delete(m.overrides.AdSelection, k)
		}
	}
	return nil
}

func (m *Memory) CustomAudienceOverride(_ context.Context, owner, buyer, name, appPackage string) (reporting.CustomAudienceOverride, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.overrides.CustomAudience[CustomAudienceKey{owner, buyer, name, appPackage}]
	return o, ok, nil
}

func (m *Memory) PutCustomAudienceOverride(_ context.Context, o reporting.CustomAudienceOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides.CustomAudience[customAudienceKeyOf(o)] = o
	return nil
}

func (m *Memory) DeleteCustomAudienceOverride(_ context.Context, owner, buyer, name, appPackage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides.CustomAudience, CustomAudienceKey{owner, buyer, name, appPackage})
	return nil
}

func (m *Memory) DeleteAllCustomAudienceOverrides(_ context.Context, appPackage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.overrides.CustomAudience {
		if k.AppPackage == appPackage {
			delete(m.overrides.CustomAudience, k)
		}
	}
	return nil
}

// LoadOverrides returns a copy so later writes do not leak into snapshots.
func (m *Memory) LoadOverrides(context.Context) (OverrideSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := NewOverrideSet()
	for k, v := range m.overrides.AdSelection {
		set.AdSelection[k] = v
	}
	for k, v := range m.overrides.CustomAudience {
		set.CustomAudience[k] = v
	}
	return set, nil
}
