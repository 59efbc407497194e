package edgeclient

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/minerfleet/pkg/audit"
	"github.com/fleetcore/minerfleet/pkg/cloudapi"
	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// newTestCloud spins up a real cloudapi.Server over an in-memory BoltStore,
// exposed through httptest.Server, and registers one active device.
func newTestCloud(t *testing.T) (*httptest.Server, *storage.BoltStore, *types.EdgeDevice) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	device := &types.EdgeDevice{
		TenantID:    "acme",
		ID:          "dev-1",
		DeviceName:  "site-a-edge",
		SiteID:      "site-a",
		DeviceToken: "tok-abc123",
		KeyVersion:  1,
		Status:      types.DeviceStatusActive,
	}
	require.NoError(t, store.CreateDevice(device))

	srv := cloudapi.NewServer(store, audit.NewLogger(store), nil, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return ts, store, device
}

func TestHeartbeat_RoundTrips(t *testing.T) {
	ts, store, device := newTestCloud(t)
	c := New(ts.URL, device.DeviceToken)

	require.NoError(t, c.Heartbeat(context.Background(), device.ID))

	got, err := store.GetDevice(device.TenantID, device.ID)
	require.NoError(t, err)
	assert.False(t, got.LastSeenAt.IsZero())
}

func TestFetchSecrets_EmptyWhenNoneStored(t *testing.T) {
	ts, _, device := newTestCloud(t)
	c := New(ts.URL, device.DeviceToken)

	secrets, keyVersion, err := c.FetchSecrets(context.Background(), device.SiteID, 0)
	require.NoError(t, err)
	assert.Empty(t, secrets)
	assert.Equal(t, device.KeyVersion, keyVersion)
}

func TestPollCommands_ReturnsQueuedCommand(t *testing.T) {
	ts, store, device := newTestCloud(t)
	c := New(ts.URL, device.DeviceToken)

	cmd := &types.CommandRecord{
		CommandID:   "cmd-1",
		TenantID:    device.TenantID,
		SiteID:      device.SiteID,
		DeviceID:    device.ID,
		CommandType: types.CommandReboot,
		TargetIDs:   []string{"miner-1"},
		Status:      types.CommandQueued,
	}
	require.NoError(t, store.CreateCommand(cmd))

	records, err := c.PollCommands(context.Background(), device.SiteID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cmd-1", records[0].CommandID)
	assert.Equal(t, types.CommandReboot, records[0].CommandType)

	got, err := store.GetCommand("cmd-1")
	require.NoError(t, err)
	assert.Equal(t, types.CommandPulled, got.Status)
}

func TestAckCommand_MarksSucceeded(t *testing.T) {
	ts, store, device := newTestCloud(t)
	c := New(ts.URL, device.DeviceToken)

	cmd := &types.CommandRecord{
		CommandID:   "cmd-2",
		TenantID:    device.TenantID,
		SiteID:      device.SiteID,
		DeviceID:    device.ID,
		CommandType: types.CommandReboot,
		TargetIDs:   []string{"miner-1"},
		Status:      types.CommandPulled,
	}
	require.NoError(t, store.CreateCommand(cmd))

	err := c.AckCommand(context.Background(), "cmd-2", []types.CommandResult{
		{MinerID: "miner-1", Status: "SUCCEEDED"},
	})
	require.NoError(t, err)

	got, err := store.GetCommand("cmd-2")
	require.NoError(t, err)
	assert.Equal(t, types.CommandSucceeded, got.Status)
}

func TestHeartbeat_RejectsRevokedDevice(t *testing.T) {
	ts, store, device := newTestCloud(t)
	device.Status = types.DeviceStatusRevoked
	require.NoError(t, store.UpdateDevice(device))

	c := New(ts.URL, device.DeviceToken)
	err := c.Heartbeat(context.Background(), device.ID)
	require.Error(t, err)

	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, 403, clientErr.StatusCode)
}
