/*
Package log provides structured logging for the fleet control plane using
zerolog. It wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all packages without passing a logger down

Log Levels: Debug, Info, Warn, Error, Fatal (Fatal exits the process).

Configuration:
  - Level: filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: component name ("edge", "cloudapi", "scanner", ...)
  - WithTenantID, WithDeviceID, WithSiteID, WithMinerID, WithJobID: the
    identifiers that recur across this domain's log lines

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("fleet control plane starting")

	edgeLog := log.WithComponent("edge").With().Str("device_id", deviceID).Logger()
	edgeLog.Info().Str("miner_id", minerID).Msg("command acked")

	minerLog := log.WithMinerID("miner-abc123")
	minerLog.Warn().Float64("temperature_c", 91.2).Msg("miner over temperature threshold")

# Integration points

pkg/edge, pkg/cloudapi, pkg/scanner, pkg/telemetry, pkg/audit and the
cmd/ binaries obtain their logger from this package at construction time
(log.WithComponent; the edge runtime uses log.WithDeviceID) rather than
through a passed-down interface. pkg/minerclient does not log.

# Security

Never log secrets or sensitive data: miner SSH/API passwords, device
private keys, and site-master passphrases must never reach a log line.
pkg/audit performs field-level masking for audit events; this package
does not — callers are responsible for only logging already-masked values.

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
