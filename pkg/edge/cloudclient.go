package edge

import (
	"context"

	"github.com/fleetcore/minerfleet/pkg/types"
)

// CloudClient is everything the runtime needs from the cloud side of
// the HTTPS boundary. pkg/edgeclient provides the concrete,
// bearer-token-authenticated implementation; tests use a fake.
type CloudClient interface {
	// Heartbeat reports liveness for deviceID.
	Heartbeat(ctx context.Context, deviceID string) error

	// FetchSecrets pulls every MinerSecret addressed to this device with
	// counter strictly greater than sinceCounter, along with the device's
	// current key_version. pkg/edgeclient does not send siteID; the
	// device token scopes the request.
	FetchSecrets(ctx context.Context, siteID string, sinceCounter int64) (secrets []types.MinerSecret, keyVersion int, err error)

	// PollCommands pulls up to limit commands for siteID that are QUEUED,
	// or PULLED with an overdue ACK, marking them PULLED on the cloud side.
	PollCommands(ctx context.Context, siteID string, limit int) ([]types.CommandRecord, error)

	// AckCommand reports the per-target outcome of one command.
	AckCommand(ctx context.Context, commandID string, results []types.CommandResult) error

	// ReportScanStart mirrors a scan job the edge has just started
	// running locally onto the cloud side.
	ReportScanStart(ctx context.Context, job *types.IPScanJob) error

	// ReportScanProgress mirrors a running scan job's counters.
	ReportScanProgress(ctx context.Context, jobID string, scannedIPs, discoveredMiners int) error

	// ReportScanResults finalizes a scan job on the cloud side.
	ReportScanResults(ctx context.Context, jobID string, status types.ScanJobStatus, scanErr string, discovered []types.DiscoveredMiner) error
}
