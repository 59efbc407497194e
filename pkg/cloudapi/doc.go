// Package cloudapi implements the cloud side of the cloud↔edge HTTPS
// boundary: device registration/heartbeat, incremental secret
// distribution gated by the capability check, the command queue's
// poll/ack endpoints, and scan-job reporting. Every handler is a plain
// httprouter.Handle — no middleware-stack magic — that authenticates the
// caller's bearer device token and performs its one piece of business
// logic against a storage.Store. Handlers that touch secrets, commands,
// scan start/results, heartbeats or IP reveals record the outcome to the
// audit log whether it succeeded or was denied; the pubkey, edge status,
// scan progress and telemetry ingest handlers record nothing.
package cloudapi
