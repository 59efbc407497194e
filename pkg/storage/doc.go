/*
Package storage provides BoltDB-backed persistence for the fleet control
plane's state: edge devices, per-miner secret envelopes, hosting miner
inventory, IP scan jobs, the four telemetry layers, the command queue,
and the audit log. All data is serialized as JSON and stored in separate
buckets for isolation.

# Architecture

BoltStore uses BoltDB (bbolt) for embedded, transactional storage with
zero external dependencies:

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│  BoltStore                                                │
	│   - File: <dataDir>/fleet.db                              │
	│   - Transactions: ACID, single writer, MVCC snapshot reads│
	│                                                            │
	│  Buckets:                                                 │
	│   devices               EdgeDevice, keyed tenant|id       │
	│   device_token_index    bearer token -> device key        │
	│   secrets               MinerSecret, keyed miner|device   │
	│   miners                HostingMiner, keyed id             │
	│   scan_jobs             IPScanJob, keyed id                │
	│   discovered_miners     DiscoveredMiner, keyed job|ip      │
	│   telemetry_raw         TelemetryRecord, keyed miner|ts   │
	│   telemetry_live        LiveSnapshot, keyed miner          │
	│   telemetry_history_5min History5Min, keyed site|miner|ts │
	│   telemetry_daily       DailyAggregate, keyed site|miner|day│
	│   commands              CommandRecord, keyed id            │
	│   audit_events          DeviceAuditEvent, keyed ts|id      │
	└────────────────────────────────────────────────────────┘

# Key design decisions

Counter and key-version enforcement: UpsertMinerSecret performs its
compare-and-set check and the write inside one db.Update transaction.
BoltDB serializes writers, so no external lock is needed to make the
anti-rollback counter check race-free.

Idempotent telemetry inserts: InsertHistory5Min and InsertDaily check
for an existing row under the same key before writing and report
inserted=false instead of erroring, standing in for a SQL
"ON CONFLICT DO NOTHING" upsert — the promotion jobs in pkg/telemetry
can re-run a bucket without creating duplicate aggregates.

Timestamp keys: raw, history_5min, and audit_events buckets key rows
with fixed-width, nanosecond-precision UTC timestamps so that BoltDB's lexically
ordered cursor scans double as chronological range queries, without a
secondary index.

Filter pattern: List operations that do not map to a single bucket key
(by tenant, by site, by device) do a full bucket scan and filter in
memory. Fleets in this domain's scale (single-digit thousands of miners
per site) make this adequate without secondary indexes.

# Usage

	store, err := storage.NewBoltStore("/var/lib/fleetd")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	err = store.CreateDevice(&types.EdgeDevice{
		TenantID: "acme", ID: "dev-1", DeviceToken: token, PublicKey: pub[:],
	})

	secret, err := store.GetMinerSecret("miner-1", "dev-1")

# Integration points

  - pkg/cloudapi: device registration, secret upload/fetch, command
    dispatch/ack handlers read and write through Store.
  - pkg/telemetry: the four-layer store and its promotion/retention
    jobs are built directly on the telemetry_* buckets.
  - pkg/audit: AppendAuditEvent/ListAuditEvents back the append-only log.
  - pkg/capability: evaluates capability and binding checks over the
    HostingMiner and EdgeDevice values its callers load through Store;
    it does not import this package.

# See Also

  - pkg/types for all entity definitions
  - BoltDB documentation: https://github.com/etcd-io/bbolt
*/
package storage
