/*
Package audit provides the fleet control plane's append-only device audit
log: device registration/revocation, secret upload/fetch, command
dispatch/pull/ack, capability denials, and discovery activity are all
recorded through Logger.Record and surfaced through Logger.List, masked.

# Design

Logger is adapted from the publish/subscribe event broker pattern used
elsewhere in this codebase: Record both appends a row to storage (the
durable, unmasked record) and broadcasts a masked copy to any active
Subscribe()rs, so a metrics collector or SIEM shipper can tail the stream
without re-reading storage. Unlike a pure pub/sub bus, every event here
is also durable — audit history must survive a process restart, so the
append to storage happens synchronously before the broadcast.

# Masking

Mask redacts EventData fields whose key contains password|secret|token|
credential|key|private (case-insensitive) and blanks the last two
octets of an IPv4 SourceIP. Masking is applied only on the read path
(List, and broadcast to Subscribe()rs); AppendAuditEvent always receives
the unmasked event, so the durable record always retains the unmasked
data the mask hides from readers.

# Usage

	logger := audit.NewLogger(store)

	logger.Record(ctx, audit.Record{
		EventType: audit.EventSecretUploaded,
		TenantID:  "acme",
		DeviceID:  "dev-1",
		MinerID:   "miner-1",
		ActorID:   "user-42",
		Result:    types.AuditSuccess,
		EventData: map[string]any{"pool_password": "hunter2"}, // redacted on read
	})

	recent, err := logger.List("acme", 100)

# Integration points

pkg/cloudapi calls Record from every handler that touches secrets,
commands, or capability checks. pkg/capability denials are recorded with
EventCapabilityDenied and Result=types.AuditDenied.
*/
package audit
