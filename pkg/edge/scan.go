package edge

import (
	"context"
	"time"

	"github.com/fleetcore/minerfleet/pkg/log"
	"github.com/fleetcore/minerfleet/pkg/scanner"
	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// RunScan launches an IP-range sweep against miners this edge can reach
// and mirrors its lifecycle onto the cloud: the scanner itself only ever
// runs here, at the edge, since the cloud has no network path to the
// miners. It blocks until the job reaches a terminal state, polling the
// local job record the scanner updates in the background.
func RunScan(ctx context.Context, sc *scanner.Scanner, cloud CloudClient, store storage.Store, req scanner.Request) (*types.IPScanJob, error) {
	job, err := sc.Scan(ctx, req)
	if err != nil {
		return nil, err
	}

	logger := log.WithComponent("edge.scan")

	if err := cloud.ReportScanStart(ctx, job); err != nil {
		logger.Error().Err(err).Msg("report scan start")
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			current, err := store.GetScanJob(job.ID)
			if err != nil {
				return job, err
			}
			job = current

			if err := cloud.ReportScanProgress(ctx, job.ID, job.ScannedIPs, job.DiscoveredMiners); err != nil {
				logger.Error().Err(err).Msg("report scan progress")
			}

			switch job.Status {
			case types.ScanJobCompleted, types.ScanJobFailed, types.ScanJobCancelled:
				discovered, err := store.ListDiscoveredMiners(job.ID)
				if err != nil {
					return job, err
				}
				results := make([]types.DiscoveredMiner, len(discovered))
				for i, dm := range discovered {
					results[i] = *dm
				}
				if err := cloud.ReportScanResults(ctx, job.ID, job.Status, job.Error, results); err != nil {
					logger.Error().Err(err).Msg("report scan results")
				}
				return job, nil
			}
		case <-ctx.Done():
			return job, ctx.Err()
		}
	}
}
