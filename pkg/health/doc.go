// Package health provides small, composable reachability checkers (TCP
// connect, HTTP status range) and a consecutive-failure status tracker.
//
// Two callers use it: pkg/scanner gates each swept address on a cheap
// TCPChecker connect before spending a full protocol probe on it and
// falls back to HTTPChecker (with its response-body preview) to
// fingerprint a miner's web console, and pkg/edge folds each heartbeat
// round trip into a Status so a single dropped request doesn't flap the
// runtime's view of cloud connectivity. Checkers are deliberately
// independent of minerclient: they know nothing about the CGMiner-API
// wire format, only "did this dial or request succeed."
package health
