package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ad-reporting-engine/internal/reporting"
)

func beacons(n int) []reporting.InteractionBeacon {
	out := make([]reporting.InteractionBeacon, n)
	for i := range out {
		out[i] = reporting.InteractionBeacon{
			Key: fmt.Sprintf("click%d", i),
			URI: fmt.Sprintf("https://seller.example/click/%d", i),
		}
	}
	return out
}

func TestCapacity(t *testing.T) {
	tests := []struct {
		name                                string
		total, perDest, maxTotal, maxPerDst int64
		n, want                             int
	}{
		{"room for all", 0, 0, 1000, 10, 3, 3},
		{"per destination truncates", 0, 8, 1000, 10, 5, 2},
		{"total truncates", 998, 0, 1000, 10, 5, 2},
		{"total reached", 1000, 0, 1000, 10, 1, 0},
		{"per destination reached", 0, 10, 1000, 10, 1, 0},
		{"nothing to insert", 0, 0, 1000, 10, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, capacity(tt.total, tt.perDest, tt.maxTotal, tt.maxPerDst, tt.n))
		})
	}
}

func TestMemory_SafelyInsertBeacons_PerDestinationCap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	n, err := m.SafelyInsertBeacons(ctx, 1, reporting.DestinationSeller, beacons(15), 1000, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	// first ten in order are kept
	uri, err := m.RegisteredBeaconURI(ctx, 1, "click9", reporting.DestinationSeller)
	require.NoError(t, err)
	assert.Equal(t, "https://seller.example/click/9", uri)
	_, err = m.RegisteredBeaconURI(ctx, 1, "click10", reporting.DestinationSeller)
	assert.ErrorIs(t, err, reporting.ErrRecordNotFound)

	// the buyer side of the same auction has its own allowance
	n, err = m.SafelyInsertBeacons(ctx, 1, reporting.DestinationBuyer, beacons(3), 1000, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// seller side is full, so nothing more is written
	n, err = m.SafelyInsertBeacons(ctx, 1, reporting.DestinationSeller, beacons(1), 1000, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	total, _ := m.CountBeacons(ctx)
	assert.Equal(t, int64(13), total)
}

func TestMemory_SafelyInsertBeacons_TotalCap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.SafelyInsertBeacons(ctx, 1, reporting.DestinationSeller, beacons(4), 5, 10)
	require.NoError(t, err)

	n, err := m.SafelyInsertBeacons(ctx, 2, reporting.DestinationSeller, beacons(4), 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.SafelyInsertBeacons(ctx, 3, reporting.DestinationSeller, beacons(1), 5, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemory_SafelyInsertBeacons_RepeatedKeyOverwrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.SafelyInsertBeacons(ctx, 1, reporting.DestinationSeller,
		[]reporting.InteractionBeacon{{Key: "click", URI: "https://seller.example/a"}}, 1000, 10)
	require.NoError(t, err)
	_, err = m.SafelyInsertBeacons(ctx, 1, reporting.DestinationSeller,
		[]reporting.InteractionBeacon{{Key: "click", URI: "https://seller.example/b"}}, 1000, 10)
	require.NoError(t, err)

	uri, err := m.RegisteredBeaconURI(ctx, 1, "click", reporting.DestinationSeller)
	require.NoError(t, err)
	assert.Equal(t, "https://seller.example/b", uri)
	total, _ := m.CountBeacons(ctx)
	assert.Equal(t, int64(1), total)
}

func TestMemory_Records(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.GetAdSelection(ctx, 7, false)
	assert.ErrorIs(t, err, reporting.ErrRecordNotFound)

	require.NoError(t, m.SaveAdSelection(ctx, reporting.AdSelectionRecord{ID: 7, Seller: "seller.example"}, true))
	rec, err := m.GetAdSelection(ctx, 7, false)
	require.NoError(t, err)
	assert.Equal(t, "seller.example", rec.Seller)

	_, err = m.BuyerDecisionLogic(ctx, "https://buyer.example/bid.js")
	assert.ErrorIs(t, err, reporting.ErrRecordNotFound)
	m.PutBuyerDecisionLogic("https://buyer.example/bid.js", "function reportWin() {}")
	js, err := m.BuyerDecisionLogic(ctx, "https://buyer.example/bid.js")
	require.NoError(t, err)
	assert.Contains(t, js, "reportWin")
}
