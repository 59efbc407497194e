// Package storage provides BoltDB-backed persistence for the fleet
// control plane: devices, miner secrets, hosting miners, scan jobs, the
// four telemetry layers, commands, and the audit log. All data is
// serialized as JSON into separate buckets, one per entity.
package storage

import (
	"time"

	"github.com/fleetcore/minerfleet/pkg/types"
)

// ErrNotFound is returned by Get* lookups that miss.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// ErrCounterRegression is returned by UpsertMinerSecret when the caller's
// counter does not strictly exceed the stored one.
var ErrCounterRegression = errCounterRegression{}

type errCounterRegression struct{}

func (errCounterRegression) Error() string { return "counter regression" }

// ErrKeyVersionMismatch is returned by UpsertMinerSecret when the caller's
// key_version does not match the device's current key_version.
var ErrKeyVersionMismatch = errKeyVersionMismatch{}

type errKeyVersionMismatch struct{}

func (errKeyVersionMismatch) Error() string { return "key version mismatch" }

// Store defines the persistence interface for all fleet control-plane state.
type Store interface {
	// Devices
	CreateDevice(d *types.EdgeDevice) error
	GetDevice(tenantID, id string) (*types.EdgeDevice, error)
	GetDeviceByToken(token string) (*types.EdgeDevice, error)
	ListDevices(tenantID string) ([]*types.EdgeDevice, error)
	UpdateDevice(d *types.EdgeDevice) error

	// Miner secrets — counter and key_version are enforced inside the
	// single transaction UpsertMinerSecret runs in.
	UpsertMinerSecret(s *types.MinerSecret) error
	GetMinerSecret(minerID, deviceID string) (*types.MinerSecret, error)
	ListMinerSecretsForDevice(deviceID string, sinceCounter int64) ([]*types.MinerSecret, error)
	DeleteMinerSecret(minerID, deviceID string) error

	// Hosting miners
	CreateMiner(m *types.HostingMiner) error
	GetMiner(id string) (*types.HostingMiner, error)
	ListMiners(siteID string) ([]*types.HostingMiner, error)
	UpdateMiner(m *types.HostingMiner) error

	// IP scan jobs
	CreateScanJob(j *types.IPScanJob) error
	GetScanJob(id string) (*types.IPScanJob, error)
	ListScanJobs(siteID string) ([]*types.IPScanJob, error)
	UpdateScanJob(j *types.IPScanJob) error
	DeleteScanJob(id string) error

	CreateDiscoveredMiner(dm *types.DiscoveredMiner) error
	ListDiscoveredMiners(scanJobID string) ([]*types.DiscoveredMiner, error)
	MarkDiscoveredMinerImported(scanJobID, ip, importedMinerID string) error

	// Telemetry: raw, live, 5-minute, daily
	InsertRaw(r *types.TelemetryRecord) error
	ListRawSince(minerID string, since time.Time) ([]*types.TelemetryRecord, error)
	PruneRawBefore(cutoff time.Time) (int, error)

	UpsertLive(l *types.LiveSnapshot) error
	GetLive(minerID string) (*types.LiveSnapshot, error)
	ListLive(siteID string) ([]*types.LiveSnapshot, error)

	// InsertHistory5Min is idempotent: re-inserting the same
	// (bucketTS, siteID, minerID) row reports inserted=false, not an error.
	InsertHistory5Min(h *types.History5Min) (inserted bool, err error)
	ListHistory5Min(siteID, minerID string, start, end time.Time) ([]*types.History5Min, error)
	PruneHistory5MinBefore(cutoff time.Time) (int, error)

	InsertDaily(d *types.DailyAggregate) (inserted bool, err error)
	ListDaily(siteID, minerID string, startDay, endDay string) ([]*types.DailyAggregate, error)
	PruneDailyBefore(cutoffDay string) (int, error)

	// Commands
	CreateCommand(c *types.CommandRecord) error
	GetCommand(id string) (*types.CommandRecord, error)
	UpdateCommand(c *types.CommandRecord) error
	ListQueuedCommandsForDevice(siteID, deviceID string, limit int) ([]*types.CommandRecord, error)

	// Audit log — append-only.
	AppendAuditEvent(e *types.DeviceAuditEvent) error
	ListAuditEvents(tenantID string, limit int) ([]*types.DeviceAuditEvent, error)

	Close() error
}
