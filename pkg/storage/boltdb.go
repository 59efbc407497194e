package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fleetcore/minerfleet/pkg/types"
)

var (
	bucketDevices          = []byte("devices")
	bucketDeviceTokenIndex = []byte("device_token_index")
	bucketSecrets          = []byte("secrets")
	bucketMiners           = []byte("miners")
	bucketScanJobs         = []byte("scan_jobs")
	bucketDiscoveredMiners = []byte("discovered_miners")
	bucketRawTelemetry     = []byte("telemetry_raw")
	bucketLiveTelemetry    = []byte("telemetry_live")
	bucketHistory5Min      = []byte("telemetry_history_5min")
	bucketDaily            = []byte("telemetry_daily")
	bucketCommands         = []byte("commands")
	bucketAuditEvents      = []byte("audit_events")
)

// timeKey formats a timestamp so lexical byte order equals chronological
// order, letting bbolt cursor range-scans double as time-range queries.
func timeKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) a BoltDB-backed store under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "fleet.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketDevices, bucketDeviceTokenIndex, bucketSecrets, bucketMiners,
			bucketScanJobs, bucketDiscoveredMiners, bucketRawTelemetry,
			bucketLiveTelemetry, bucketHistory5Min, bucketDaily, bucketCommands,
			bucketAuditEvents,
		}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func deviceKey(tenantID, id string) []byte {
	return []byte(tenantID + "|" + id)
}

func secretKey(minerID, deviceID string) []byte {
	return []byte(minerID + "|" + deviceID)
}

// --- Devices ---

func (s *BoltStore) CreateDevice(d *types.EdgeDevice) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketDevices).Put(deviceKey(d.TenantID, d.ID), data); err != nil {
			return err
		}
		if d.DeviceToken == "" {
			return nil
		}
		return tx.Bucket(bucketDeviceTokenIndex).Put([]byte(d.DeviceToken), deviceKey(d.TenantID, d.ID))
	})
}

func (s *BoltStore) GetDevice(tenantID, id string) (*types.EdgeDevice, error) {
	var d types.EdgeDevice
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDevices).Get(deviceKey(tenantID, id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *BoltStore) GetDeviceByToken(token string) (*types.EdgeDevice, error) {
	var d types.EdgeDevice
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketDeviceTokenIndex).Get([]byte(token))
		if key == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketDevices).Get(key)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *BoltStore) ListDevices(tenantID string) ([]*types.EdgeDevice, error) {
	var out []*types.EdgeDevice
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDevices).ForEach(func(k, v []byte) error {
			var d types.EdgeDevice
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if tenantID == "" || d.TenantID == tenantID {
				out = append(out, &d)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateDevice(d *types.EdgeDevice) error {
	return s.CreateDevice(d)
}

// --- Miner secrets ---

func (s *BoltStore) UpsertMinerSecret(secret *types.MinerSecret) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSecrets)
		key := secretKey(secret.MinerID, secret.DeviceID)

		if existing := b.Get(key); existing != nil {
			var prev types.MinerSecret
			if err := json.Unmarshal(existing, &prev); err != nil {
				return err
			}
			if secret.Counter <= prev.Counter {
				return ErrCounterRegression
			}
		}

		deviceData := tx.Bucket(bucketDevices).Get(deviceKeyAnyTenant(tx, secret.DeviceID))
		if deviceData != nil {
			var dev types.EdgeDevice
			if err := json.Unmarshal(deviceData, &dev); err == nil {
				if secret.KeyVersion != dev.KeyVersion {
					return ErrKeyVersionMismatch
				}
			}
		}

		secret.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(secret)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// deviceKeyAnyTenant finds a device's storage key by id alone, since
// UpsertMinerSecret is called with only a device id. Buckets are small
// enough (tens of thousands of devices) for a linear scan to be acceptable;
// callers on the hot path should prefer GetDevice(tenantID, id) when the
// tenant is already known.
func deviceKeyAnyTenant(tx *bolt.Tx, deviceID string) []byte {
	var found []byte
	_ = tx.Bucket(bucketDevices).ForEach(func(k, v []byte) error {
		var d types.EdgeDevice
		if err := json.Unmarshal(v, &d); err == nil && d.ID == deviceID {
			found = append([]byte{}, k...)
			return nil
		}
		return nil
	})
	return found
}

func (s *BoltStore) GetMinerSecret(minerID, deviceID string) (*types.MinerSecret, error) {
	var secret types.MinerSecret
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSecrets).Get(secretKey(minerID, deviceID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &secret)
	})
	if err != nil {
		return nil, err
	}
	return &secret, nil
}

func (s *BoltStore) ListMinerSecretsForDevice(deviceID string, sinceCounter int64) ([]*types.MinerSecret, error) {
	var out []*types.MinerSecret
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).ForEach(func(k, v []byte) error {
			var secret types.MinerSecret
			if err := json.Unmarshal(v, &secret); err != nil {
				return err
			}
			if secret.DeviceID == deviceID && secret.Counter > sinceCounter {
				out = append(out, &secret)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteMinerSecret(minerID, deviceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).Delete(secretKey(minerID, deviceID))
	})
}

// --- Hosting miners ---

func (s *BoltStore) CreateMiner(m *types.HostingMiner) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMiners).Put([]byte(m.ID), data)
	})
}

func (s *BoltStore) GetMiner(id string) (*types.HostingMiner, error) {
	var m types.HostingMiner
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMiners).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *BoltStore) ListMiners(siteID string) ([]*types.HostingMiner, error) {
	var out []*types.HostingMiner
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMiners).ForEach(func(k, v []byte) error {
			var m types.HostingMiner
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if siteID == "" || m.SiteID == siteID {
				out = append(out, &m)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateMiner(m *types.HostingMiner) error {
	return s.CreateMiner(m)
}

// --- IP scan jobs ---

func (s *BoltStore) CreateScanJob(j *types.IPScanJob) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(j)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketScanJobs).Put([]byte(j.ID), data)
	})
}

func (s *BoltStore) GetScanJob(id string) (*types.IPScanJob, error) {
	var j types.IPScanJob
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketScanJobs).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &j)
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *BoltStore) ListScanJobs(siteID string) ([]*types.IPScanJob, error) {
	var out []*types.IPScanJob
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScanJobs).ForEach(func(k, v []byte) error {
			var j types.IPScanJob
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if siteID == "" || j.SiteID == siteID {
				out = append(out, &j)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateScanJob(j *types.IPScanJob) error {
	return s.CreateScanJob(j)
}

func (s *BoltStore) DeleteScanJob(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScanJobs).Delete([]byte(id))
	})
}

func discoveredKey(scanJobID, ip string) []byte {
	return []byte(scanJobID + "|" + ip)
}

func (s *BoltStore) CreateDiscoveredMiner(dm *types.DiscoveredMiner) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(dm)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDiscoveredMiners).Put(discoveredKey(dm.ScanJobID, dm.IPAddress), data)
	})
}

func (s *BoltStore) ListDiscoveredMiners(scanJobID string) ([]*types.DiscoveredMiner, error) {
	var out []*types.DiscoveredMiner
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDiscoveredMiners).ForEach(func(k, v []byte) error {
			var dm types.DiscoveredMiner
			if err := json.Unmarshal(v, &dm); err != nil {
				return err
			}
			if dm.ScanJobID == scanJobID {
				out = append(out, &dm)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) MarkDiscoveredMinerImported(scanJobID, ip, importedMinerID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDiscoveredMiners)
		key := discoveredKey(scanJobID, ip)
		data := b.Get(key)
		if data == nil {
			return ErrNotFound
		}
		var dm types.DiscoveredMiner
		if err := json.Unmarshal(data, &dm); err != nil {
			return err
		}
		dm.IsImported = true
		dm.ImportedMinerID = importedMinerID
		out, err := json.Marshal(dm)
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
}

// --- Telemetry: raw ---

func rawKey(minerID string, ts time.Time) []byte {
	return []byte(minerID + "|" + timeKey(ts))
}

func (s *BoltStore) InsertRaw(r *types.TelemetryRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRawTelemetry).Put(rawKey(r.MinerID, r.Timestamp), data)
	})
}

func (s *BoltStore) ListRawSince(minerID string, since time.Time) ([]*types.TelemetryRecord, error) {
	var out []*types.TelemetryRecord
	prefix := []byte(minerID + "|")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRawTelemetry).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var r types.TelemetryRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if !r.Timestamp.Before(since) {
				out = append(out, &r)
			}
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) PruneRawBefore(cutoff time.Time) (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRawTelemetry)
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r types.TelemetryRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, append([]byte{}, k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// --- Telemetry: live ---

func (s *BoltStore) UpsertLive(l *types.LiveSnapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(l)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketLiveTelemetry).Put([]byte(l.MinerID), data)
	})
}

func (s *BoltStore) GetLive(minerID string) (*types.LiveSnapshot, error) {
	var l types.LiveSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLiveTelemetry).Get([]byte(minerID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &l)
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *BoltStore) ListLive(siteID string) ([]*types.LiveSnapshot, error) {
	var out []*types.LiveSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLiveTelemetry).ForEach(func(k, v []byte) error {
			var l types.LiveSnapshot
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			if siteID == "" || l.SiteID == siteID {
				out = append(out, &l)
			}
			return nil
		})
	})
	return out, err
}

// --- Telemetry: 5-minute history ---

func history5MinKey(h *types.History5Min) []byte {
	return []byte(h.SiteID + "|" + h.MinerID + "|" + timeKey(h.BucketTS))
}

func (s *BoltStore) InsertHistory5Min(h *types.History5Min) (bool, error) {
	inserted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory5Min)
		key := history5MinKey(h)
		if b.Get(key) != nil {
			return nil // ON CONFLICT DO NOTHING
		}
		data, err := json.Marshal(h)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *BoltStore) ListHistory5Min(siteID, minerID string, start, end time.Time) ([]*types.History5Min, error) {
	var out []*types.History5Min
	prefix := []byte(siteID + "|" + minerID + "|")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory5Min).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var h types.History5Min
			if err := json.Unmarshal(v, &h); err != nil {
				return err
			}
			if !h.BucketTS.Before(start) && h.BucketTS.Before(end) {
				out = append(out, &h)
			}
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) PruneHistory5MinBefore(cutoff time.Time) (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory5Min)
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var h types.History5Min
			if err := json.Unmarshal(v, &h); err != nil {
				return err
			}
			if h.BucketTS.Before(cutoff) {
				toDelete = append(toDelete, append([]byte{}, k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// --- Telemetry: daily ---

func dailyKey(d *types.DailyAggregate) []byte {
	return []byte(d.SiteID + "|" + d.MinerID + "|" + d.Day)
}

func (s *BoltStore) InsertDaily(d *types.DailyAggregate) (bool, error) {
	inserted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDaily)
		key := dailyKey(d)
		if b.Get(key) != nil {
			return nil
		}
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *BoltStore) ListDaily(siteID, minerID, startDay, endDay string) ([]*types.DailyAggregate, error) {
	var out []*types.DailyAggregate
	prefix := []byte(siteID + "|" + minerID + "|")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDaily).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var d types.DailyAggregate
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if d.Day >= startDay && d.Day <= endDay {
				out = append(out, &d)
			}
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) PruneDailyBefore(cutoffDay string) (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDaily)
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var d types.DailyAggregate
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if d.Day < cutoffDay {
				toDelete = append(toDelete, append([]byte{}, k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// --- Commands ---

func (s *BoltStore) CreateCommand(c *types.CommandRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCommands).Put([]byte(c.CommandID), data)
	})
}

func (s *BoltStore) GetCommand(id string) (*types.CommandRecord, error) {
	var c types.CommandRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCommands).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) UpdateCommand(c *types.CommandRecord) error {
	return s.CreateCommand(c)
}

// commandAckTimeout bounds how long a command may sit PULLED without an
// ACK before the cloud treats it as lost in flight and re-offers it on
// the next poll (a genuinely lost ACK must not strand a command forever,
// since the cloud otherwise never re-issues on its own).
// The edge's own dedup set (pkg/edge/dedup.go) is what keeps this safe:
// a command actually executed and merely un-acked is skipped on re-offer.
const commandAckTimeout = 2 * time.Minute

func (s *BoltStore) ListQueuedCommandsForDevice(siteID, deviceID string, limit int) ([]*types.CommandRecord, error) {
	now := time.Now().UTC()
	var out []*types.CommandRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommands).ForEach(func(k, v []byte) error {
			if limit > 0 && len(out) >= limit {
				return nil
			}
			var c types.CommandRecord
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.SiteID != siteID || c.DeviceID != deviceID {
				return nil
			}
			stalePulled := c.Status == types.CommandPulled && now.Sub(c.PulledAt) > commandAckTimeout
			if c.Status == types.CommandQueued || stalePulled {
				out = append(out, &c)
			}
			return nil
		})
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// --- Audit events ---

func (s *BoltStore) AppendAuditEvent(e *types.DeviceAuditEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		key := []byte(timeKey(e.CreatedAt) + "|" + e.ID)
		return tx.Bucket(bucketAuditEvents).Put(key, data)
	})
}

func (s *BoltStore) ListAuditEvents(tenantID string, limit int) ([]*types.DeviceAuditEvent, error) {
	var out []*types.DeviceAuditEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAuditEvents).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e types.DeviceAuditEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if tenantID == "" || e.TenantID == tenantID {
				out = append(out, &e)
				if limit > 0 && len(out) >= limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}
