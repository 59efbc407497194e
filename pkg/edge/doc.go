// Package edge implements the per-site collector runtime: a
// long-running poll/heartbeat/execute/ack loop that pulls queued
// commands and incremental secret updates from the cloud, decrypts
// per-miner credentials with the device's own private key, executes
// commands against miners through pkg/adapter, and reports results
// back. It never holds a connection to the cloud open — every exchange
// is a short-lived HTTPS request made through a CloudClient.
//
// The runtime's shape is one ticker per concern (heartbeat, secret
// sync, command poll), each started as its own goroutine and stopped
// together. A single target's failure never aborts a command's other
// targets, and a command already recorded in the local dedup set is
// never re-executed even if the cloud re-issues it after a lost
// acknowledgement.
package edge
