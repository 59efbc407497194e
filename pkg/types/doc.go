/*
Package types defines the core data structures shared across the fleet
control plane.

This package contains the domain model described in the system's data
model: edge devices, miner secret envelopes, hosting miners, IP scan
jobs, the four telemetry layers, command records, and audit events.
Other packages navigate these entities via pkg/storage lookups by id,
never through embedded pointers — there are no cyclic references between
EdgeDevice, MinerSecret, and HostingMiner.

# Core types

Device & secret distribution:
  - EdgeDevice: a per-site collector, its X25519 public key and key version
  - MinerSecret: the ciphertext envelope for one (miner, device) pair
  - AAD: the structured additional authenticated data bound into each envelope

Miner inventory:
  - HostingMiner: capability level, IP encryption mode, optional bound device
  - IPScanJob / DiscoveredMiner: discovery sweep state and results

Telemetry (four layers, cooked from raw to daily):
  - TelemetryRecord: one normalized raw reading
  - LiveSnapshot: one row per miner, most recent reading
  - History5Min / DailyAggregate: rolled-up aggregates

Command dispatch:
  - CommandRecord / CommandResult: cloud-side queue and edge-reported outcome

Audit:
  - DeviceAuditEvent: one append-only row; DenialReason enumerates gate denials

# Thread safety

Types in this package carry no synchronization themselves; pkg/storage
serializes all persisted mutations, and in-memory holders (pkg/scanner's
job, pkg/adapter's simulated state) guard their own copies.
*/
package types
