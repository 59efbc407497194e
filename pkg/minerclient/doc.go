/*
Package minerclient implements a hardened TCP client for the cgminer-API
dialect spoken by most ASIC miner firmware: a single JSON object request,
a JSON-adjacent response, no authentication, no TLS.

# Security posture

Host input is validated as a dotted-quad IPv4 address or an RFC-1123
hostname before a socket is ever opened. Commands are split into a
read-only whitelist (summary, stats, pools, devs, version, config, coin,
usbstats, lcd, check, asc, asccount) and a control set (restart, addpool,
switchpool, setconfig, fanctrl, ...) that requires WithAllowControl(true)
at construction — by default a Client cannot mutate a miner's state.

# Retry and backoff

SendCommand retries only on ErrTimeout and ErrConnection — a parse or
validation failure will not be fixed by retrying. Backoff is
base*2^attempt with a small jitter derived from the host's FNV-1a hash, so
concurrent probes against different hosts don't all retry in lockstep
(probes against the same host share the same jitter).

# Response parsing

parseResponse applies three repair stages in order: direct json.Unmarshal,
inserting commas between adjacent `}{`/`][` pairs some firmware emits
instead of a valid array/object boundary, and wrapping the body in braces
if it's missing its outer delimiters. The first stage that parses wins.

# Telemetry normalization

FetchTelemetry wraps summary/stats/pools into a fixed types.TelemetryRecord,
degrading gracefully per endpoint: a failed stats or pools call leaves
those fields zero-valued rather than marking the whole record offline,
since "summary" alone is this protocol's one authoritative liveness check.
*/
package minerclient
