package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/minerfleet/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDeviceCreateGetByTokenAndList(t *testing.T) {
	store := newTestStore(t)

	dev := &types.EdgeDevice{
		TenantID:    "acme",
		ID:          "dev-1",
		DeviceName:  "site-a-collector",
		DeviceToken: "tok-abc123",
		KeyVersion:  1,
		Status:      types.DeviceStatusActive,
	}
	require.NoError(t, store.CreateDevice(dev))

	got, err := store.GetDevice("acme", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, dev.DeviceName, got.DeviceName)

	byToken, err := store.GetDeviceByToken("tok-abc123")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", byToken.ID)

	list, err := store.ListDevices("acme")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.GetDevice("acme", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertMinerSecret_RejectsCounterRegression(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateDevice(&types.EdgeDevice{
		TenantID: "acme", ID: "dev-1", KeyVersion: 1,
	}))

	first := &types.MinerSecret{MinerID: "m1", DeviceID: "dev-1", Counter: 5, KeyVersion: 1}
	require.NoError(t, store.UpsertMinerSecret(first))

	stale := &types.MinerSecret{MinerID: "m1", DeviceID: "dev-1", Counter: 5, KeyVersion: 1}
	err := store.UpsertMinerSecret(stale)
	assert.ErrorIs(t, err, ErrCounterRegression)

	advanced := &types.MinerSecret{MinerID: "m1", DeviceID: "dev-1", Counter: 6, KeyVersion: 1}
	assert.NoError(t, store.UpsertMinerSecret(advanced))
}

func TestUpsertMinerSecret_RejectsKeyVersionMismatch(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateDevice(&types.EdgeDevice{
		TenantID: "acme", ID: "dev-1", KeyVersion: 2,
	}))

	stale := &types.MinerSecret{MinerID: "m1", DeviceID: "dev-1", Counter: 1, KeyVersion: 1}
	err := store.UpsertMinerSecret(stale)
	assert.ErrorIs(t, err, ErrKeyVersionMismatch)
}

func TestListMinerSecretsForDevice_FiltersByCounter(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateDevice(&types.EdgeDevice{TenantID: "acme", ID: "dev-1", KeyVersion: 1}))

	require.NoError(t, store.UpsertMinerSecret(&types.MinerSecret{MinerID: "m1", DeviceID: "dev-1", Counter: 1, KeyVersion: 1}))
	require.NoError(t, store.UpsertMinerSecret(&types.MinerSecret{MinerID: "m2", DeviceID: "dev-1", Counter: 2, KeyVersion: 1}))

	secrets, err := store.ListMinerSecretsForDevice("dev-1", 1)
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, "m2", secrets[0].MinerID)
}

func TestHistory5Min_InsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	bucket := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := &types.History5Min{BucketTS: bucket, SiteID: "site-a", MinerID: "m1", AvgHashrateTHS: 100}

	inserted, err := store.InsertHistory5Min(h)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertHistory5Min(h)
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, err := store.ListHistory5Min("site-a", "m1", bucket.Add(-time.Hour), bucket.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPruneRawBefore(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertRaw(&types.TelemetryRecord{MinerID: "m1", Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.InsertRaw(&types.TelemetryRecord{MinerID: "m1", Timestamp: now}))

	pruned, err := store.PruneRawBefore(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	remaining, err := store.ListRawSince("m1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestCommandLifecycle(t *testing.T) {
	store := newTestStore(t)

	cmd := &types.CommandRecord{
		CommandID: "cmd-1", SiteID: "site-a", DeviceID: "dev-1",
		CommandType: types.CommandReboot, Status: types.CommandQueued,
	}
	require.NoError(t, store.CreateCommand(cmd))

	queued, err := store.ListQueuedCommandsForDevice("site-a", "dev-1", 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	cmd.Status = types.CommandSucceeded
	require.NoError(t, store.UpdateCommand(cmd))

	queued, err = store.ListQueuedCommandsForDevice("site-a", "dev-1", 10)
	require.NoError(t, err)
	assert.Len(t, queued, 0)
}

func TestListQueuedCommandsForDevice_RequeuesStalePulled(t *testing.T) {
	store := newTestStore(t)

	cmd := &types.CommandRecord{
		CommandID: "cmd-stale", SiteID: "site-a", DeviceID: "dev-1",
		CommandType: types.CommandReboot, Status: types.CommandPulled,
		PulledAt: time.Now().UTC().Add(-3 * time.Minute),
	}
	require.NoError(t, store.CreateCommand(cmd))

	// A recently-PULLED command must not be re-offered: only a genuinely
	// stale one (ACK presumed lost) is a candidate for re-poll.
	fresh := &types.CommandRecord{
		CommandID: "cmd-fresh", SiteID: "site-a", DeviceID: "dev-1",
		CommandType: types.CommandReboot, Status: types.CommandPulled,
		PulledAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateCommand(fresh))

	queued, err := store.ListQueuedCommandsForDevice("site-a", "dev-1", 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "cmd-stale", queued[0].CommandID)
}

func TestAuditEvents_ListedNewestFirst(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AppendAuditEvent(&types.DeviceAuditEvent{
		ID: "e1", TenantID: "acme", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.AppendAuditEvent(&types.DeviceAuditEvent{
		ID: "e2", TenantID: "acme", CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}))

	events, err := store.ListAuditEvents("acme", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e2", events[0].ID)
}

func TestDiscoveredMinerImportFlow(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateDiscoveredMiner(&types.DiscoveredMiner{
		ScanJobID: "job-1", IPAddress: "10.0.0.5", DetectedModel: "Antminer S19",
	}))

	require.NoError(t, store.MarkDiscoveredMinerImported("job-1", "10.0.0.5", "miner-new-1"))

	found, err := store.ListDiscoveredMiners("job-1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].IsImported)
	assert.Equal(t, "miner-new-1", found[0].ImportedMinerID)
}
