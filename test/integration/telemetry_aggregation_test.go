package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/telemetry"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// TestPromote5Min_MatchesWorkedExample reproduces the worked example: five
// raw hashrate samples {100, 110, 120, 90, 100} THS in one miner's 5-minute
// bucket, four of them online, promote to avg=104, max=120, min=90,
// online_ratio=0.8, samples=5.
func TestPromote5Min_MatchesWorkedExample(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.CreateMiner(&types.HostingMiner{ID: "miner-1", SiteID: "site-a"}))

	// Promote5Min aggregates the closed bucket [now-10m, now-5m), so
	// anchor samples there relative to a fixed "now".
	now := time.Date(2026, 1, 15, 12, 20, 0, 0, time.UTC)
	bucketStart := now.Add(-10 * time.Minute)

	hashrates := []float64{100, 110, 120, 90, 100}
	online := []bool{true, true, true, false, true}

	for i, h := range hashrates {
		require.NoError(t, store.InsertRaw(&types.TelemetryRecord{
			Timestamp:   bucketStart.Add(time.Duration(i) * time.Minute),
			SiteID:      "site-a",
			MinerID:     "miner-1",
			Online:      online[i],
			HashrateTHS: h,
		}))
	}

	require.NoError(t, telemetry.Promote5Min(store, now))

	rows, err := store.ListHistory5Min("site-a", "miner-1", bucketStart, bucketStart.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.InDelta(t, 104.0, row.AvgHashrateTHS, 0.001)
	assert.InDelta(t, 120.0, row.MaxHashrateTHS, 0.001)
	assert.InDelta(t, 90.0, row.MinHashrateTHS, 0.001)
	assert.InDelta(t, 0.8, row.OnlineRatio, 0.001)
	assert.Equal(t, 5, row.Samples)

	t.Run("re-running the same bucket is idempotent", func(t *testing.T) {
		require.NoError(t, telemetry.Promote5Min(store, now))
		rows, err := store.ListHistory5Min("site-a", "miner-1", bucketStart, bucketStart.Add(5*time.Minute))
		require.NoError(t, err)
		assert.Len(t, rows, 1, "re-promoting an already-promoted bucket must not create a duplicate row")
	})
}

// TestReader_LiveReadsLiveLayer confirms telemetry.Reader.Live returns the
// snapshot stored in the live layer for a miner.
func TestReader_LiveReadsLiveLayer(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.CreateMiner(&types.HostingMiner{ID: "miner-1", SiteID: "site-a"}))
	require.NoError(t, store.UpsertLive(&types.LiveSnapshot{
		SiteID: "site-a", MinerID: "miner-1", Online: true, HashrateTHS: 115, LastSeen: time.Now().UTC(),
	}))

	reader := telemetry.NewReader(store)
	live, err := reader.Live("miner-1")
	require.NoError(t, err)
	assert.Equal(t, "miner-1", live.MinerID)
	assert.InDelta(t, 115.0, live.HashrateTHS, 0.001)
}
