package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/types"
)

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPromoteLive_UsesMostRecentRawRowInWindow(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateMiner(&types.HostingMiner{ID: "m1", SiteID: "site-a"}))

	now := time.Now().UTC()
	require.NoError(t, store.InsertRaw(&types.TelemetryRecord{
		Timestamp: now.Add(-4 * time.Minute), SiteID: "site-a", MinerID: "m1",
		Online: true, HashrateTHS: 100,
	}))
	require.NoError(t, store.InsertRaw(&types.TelemetryRecord{
		Timestamp: now.Add(-1 * time.Minute), SiteID: "site-a", MinerID: "m1",
		Online: true, HashrateTHS: 110,
	}))

	require.NoError(t, PromoteLive(store, now))

	live, err := store.GetLive("m1")
	require.NoError(t, err)
	assert.Equal(t, 110.0, live.HashrateTHS)
}

func TestPromoteLive_LeavesLiveUntouchedWhenNoRecentRaw(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateMiner(&types.HostingMiner{ID: "m1", SiteID: "site-a"}))

	err := PromoteLive(store, time.Now().UTC())
	require.NoError(t, err)

	_, err = store.GetLive("m1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPromote5Min_AggregatesClosedBucket(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateMiner(&types.HostingMiner{ID: "m1", SiteID: "site-a"}))

	now := time.Now().UTC()
	bucketStart := floorTo5Min(now.Add(-10 * time.Minute))

	hashrates := []float64{100, 110, 120, 90, 100}
	online := []bool{true, true, true, true, false}
	for i, hr := range hashrates {
		require.NoError(t, store.InsertRaw(&types.TelemetryRecord{
			Timestamp:   bucketStart.Add(time.Duration(i) * time.Minute),
			SiteID:      "site-a",
			MinerID:     "m1",
			Online:      online[i],
			HashrateTHS: hr,
		}))
	}

	require.NoError(t, Promote5Min(store, now))

	rows, err := store.ListHistory5Min("site-a", "m1", bucketStart, bucketStart.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 104.0, row.AvgHashrateTHS)
	assert.Equal(t, 120.0, row.MaxHashrateTHS)
	assert.Equal(t, 90.0, row.MinHashrateTHS)
	assert.Equal(t, 0.8, row.OnlineRatio)
	assert.Equal(t, 5, row.Samples)
}

func TestPromote5Min_IsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateMiner(&types.HostingMiner{ID: "m1", SiteID: "site-a"}))

	now := time.Now().UTC()
	bucketStart := floorTo5Min(now.Add(-10 * time.Minute))
	require.NoError(t, store.InsertRaw(&types.TelemetryRecord{
		Timestamp: bucketStart, SiteID: "site-a", MinerID: "m1", Online: true, HashrateTHS: 100,
	}))

	require.NoError(t, Promote5Min(store, now))
	require.NoError(t, Promote5Min(store, now))

	rows, err := store.ListHistory5Min("site-a", "m1", bucketStart, bucketStart.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPromoteDaily_RollsUpPreviousDayHistory(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateMiner(&types.HostingMiner{ID: "m1", SiteID: "site-a"}))

	now := time.Now().UTC()
	yesterday := now.AddDate(0, 0, -1)
	dayStart := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := store.InsertHistory5Min(&types.History5Min{
			BucketTS: dayStart.Add(time.Duration(i) * 5 * time.Minute), SiteID: "site-a", MinerID: "m1",
			AvgHashrateTHS: 100, MaxHashrateTHS: 110, MinHashrateTHS: 90, OnlineRatio: 1, Samples: 5,
		})
		require.NoError(t, err)
	}

	require.NoError(t, PromoteDaily(store, now))

	rows, err := store.ListDaily("site-a", "m1", dayStart.Format("2006-01-02"), dayStart.Format("2006-01-02"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 15, rows[0].Samples)
	assert.Equal(t, 100.0, rows[0].AvgHashrateTHS)
}

func TestPrune_DeletesPastRetentionWindows(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.InsertRaw(&types.TelemetryRecord{
		Timestamp: now.Add(-25 * time.Hour), SiteID: "site-a", MinerID: "m1",
	}))

	require.NoError(t, Prune(store, now))

	rows, err := store.ListRawSince("m1", now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)
}
