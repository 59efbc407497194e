package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/types"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewLogger(store)
}

func TestRecordAndList_MasksSensitiveFields(t *testing.T) {
	logger := newTestLogger(t)

	logger.Record(context.Background(), Record{
		EventType: EventSecretUploaded,
		TenantID:  "acme",
		DeviceID:  "dev-1",
		MinerID:   "miner-1",
		SourceIP:  "10.20.30.40",
		Result:    types.AuditSuccess,
		EventData: map[string]any{
			"pool_password": "hunter2",
			"api_key":       "sk-live-xyz",
			"pool_url":      "stratum+tcp://pool.example:3333",
		},
	})

	events, err := logger.List("acme", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "***REDACTED***", e.EventData["pool_password"])
	assert.Equal(t, "***REDACTED***", e.EventData["api_key"])
	assert.Equal(t, "stratum+tcp://pool.example:3333", e.EventData["pool_url"])
	assert.Equal(t, "10.20.xxx.xxx", e.SourceIP)
}

func TestRecordAndList_MasksBareKeyAndPrivateFields(t *testing.T) {
	logger := newTestLogger(t)

	logger.Record(context.Background(), Record{
		EventType: EventDeviceRegistered,
		TenantID:  "acme",
		Result:    types.AuditSuccess,
		EventData: map[string]any{
			"public_key": "base64-pubkey",
			"device_key": "should-redact",
			"is_private": true,
			"hashrate":   95.5,
		},
	})

	events, err := logger.List("acme", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "***REDACTED***", e.EventData["public_key"])
	assert.Equal(t, "***REDACTED***", e.EventData["device_key"])
	assert.Equal(t, "***REDACTED***", e.EventData["is_private"])
	assert.Equal(t, 95.5, e.EventData["hashrate"])
}

func TestList_FiltersByTenant(t *testing.T) {
	logger := newTestLogger(t)

	logger.Record(context.Background(), Record{EventType: EventDeviceRegistered, TenantID: "acme"})
	logger.Record(context.Background(), Record{EventType: EventDeviceRegistered, TenantID: "other"})

	events, err := logger.List("acme", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "acme", events[0].TenantID)
}

func TestSubscribeReceivesMaskedBroadcast(t *testing.T) {
	logger := newTestLogger(t)
	sub := logger.Subscribe()
	defer logger.Unsubscribe(sub)

	logger.Record(context.Background(), Record{
		EventType: EventCapabilityDenied,
		TenantID:  "acme",
		Result:    types.AuditDenied,
		EventData: map[string]any{"credential": "should-not-leak"},
	})

	select {
	case e := <-sub:
		assert.Equal(t, "***REDACTED***", e.EventData["credential"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}
}

func TestMaskIP_NonIPv4PassesThrough(t *testing.T) {
	assert.Equal(t, "not-an-ip", maskIP("not-an-ip"))
	assert.Equal(t, "::1", maskIP("::1"))
	assert.Equal(t, "1.2.xxx.xxx", maskIP("1.2.3.4"))
}

func TestMaskIP_ExportedMatchesInternalMasking(t *testing.T) {
	assert.Equal(t, "10.20.xxx.xxx", MaskIP("10.20.30.40"))
}
