package scanner

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fleetcore/minerfleet/pkg/health"
	"github.com/fleetcore/minerfleet/pkg/log"
	"github.com/fleetcore/minerfleet/pkg/metrics"
	"github.com/fleetcore/minerfleet/pkg/minerclient"
	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/types"
)

const (
	// DefaultControlPort is the conventional cgminer-API port probed first.
	DefaultControlPort = 4028
	// DefaultProbeTimeout bounds a single host's control-port probe.
	DefaultProbeTimeout = 3 * time.Second
	// DefaultWorkerPool is the concurrent worker cap for one scan.
	DefaultWorkerPool = 50
	// DefaultMaxIPs is the largest range a scan will accept.
	DefaultMaxIPs = 10000
)

// httpFingerprintPorts is checked, in order, when a host doesn't answer
// on the control port but might still expose a miner web console.
var httpFingerprintPorts = []int{80, 443, 8080}

// ErrScanRangeTooLarge is returned by Scan when the range exceeds MaxIPs.
type ErrScanRangeTooLarge struct {
	Requested int
	Max       int
}

func (e *ErrScanRangeTooLarge) Error() string {
	return fmt.Sprintf("scan_range_too_large: requested %d ips, max %d", e.Requested, e.Max)
}

// Request describes one scan to launch.
type Request struct {
	SiteID       string
	DeviceID     string
	Range        Range
	ControlPort  int           // 0 means DefaultControlPort
	ProbeTimeout time.Duration // 0 means DefaultProbeTimeout
	WorkerPool   int           // 0 means DefaultWorkerPool
	MaxIPs       int           // 0 means DefaultMaxIPs
}

// Scanner runs bounded-concurrency IP-range discovery sweeps and persists
// job/result state to a Store as it goes.
type Scanner struct {
	store  storage.Store
	logger zerolog.Logger
}

// New builds a Scanner over store.
func New(store storage.Store) *Scanner {
	return &Scanner{store: store, logger: log.WithComponent("scanner")}
}

// Scan validates and expands req.Range, creates a PENDING IPScanJob, and
// launches the sweep in the background. It returns as soon as the job
// record exists — callers poll the job record for progress.
func (s *Scanner) Scan(ctx context.Context, req Request) (*types.IPScanJob, error) {
	ips, err := req.Range.Expand()
	if err != nil {
		return nil, err
	}

	maxIPs := req.MaxIPs
	if maxIPs == 0 {
		maxIPs = DefaultMaxIPs
	}
	if len(ips) > maxIPs {
		return nil, &ErrScanRangeTooLarge{Requested: len(ips), Max: maxIPs}
	}

	job := &types.IPScanJob{
		ID:           uuid.New().String(),
		SiteID:       req.SiteID,
		DeviceID:     req.DeviceID,
		IPRangeStart: req.Range.Start,
		IPRangeEnd:   req.Range.End,
		TotalIPs:     len(ips),
		Status:       types.ScanJobPending,
		CreatedAt:    time.Now().UTC(),
	}
	if job.IPRangeStart == "" && req.Range.CIDR != "" {
		job.IPRangeStart = req.Range.CIDR
	}

	if err := s.store.CreateScanJob(job); err != nil {
		return nil, err
	}

	controlPort := req.ControlPort
	if controlPort == 0 {
		controlPort = DefaultControlPort
	}
	probeTimeout := req.ProbeTimeout
	if probeTimeout == 0 {
		probeTimeout = DefaultProbeTimeout
	}
	workerPool := req.WorkerPool
	if workerPool == 0 {
		workerPool = DefaultWorkerPool
	}

	go s.run(ctx, job, ips, controlPort, probeTimeout, workerPool)

	return job, nil
}

func (s *Scanner) run(ctx context.Context, job *types.IPScanJob, ips []string, controlPort int, probeTimeout time.Duration, workerPool int) {
	job.Status = types.ScanJobRunning
	job.StartedAt = time.Now().UTC()
	if err := s.store.UpdateScanJob(job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark scan job running")
	}

	sem := semaphore.NewWeighted(int64(workerPool))
	var g errgroup.Group
	var mu sync.Mutex

	for _, ip := range ips {
		ip := ip
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			dm := s.probe(ctx, job.ID, ip, controlPort, probeTimeout)

			mu.Lock()
			job.ScannedIPs++
			if dm != nil {
				job.DiscoveredMiners++
			}
			_ = s.store.UpdateScanJob(job)
			mu.Unlock()

			if dm != nil {
				if err := s.store.CreateDiscoveredMiner(dm); err != nil {
					s.logger.Error().Err(err).Str("job_id", job.ID).Str("ip", ip).Msg("failed to persist discovered miner")
				} else {
					metrics.ScanDiscoveredMinersTotal.Inc()
				}
			}
			return nil
		})
	}

	err := g.Wait()

	job.FinishedAt = time.Now().UTC()
	switch {
	case ctx.Err() != nil:
		job.Status = types.ScanJobCancelled
	case err != nil:
		job.Status = types.ScanJobFailed
		job.Error = err.Error()
	default:
		job.Status = types.ScanJobCompleted
	}
	metrics.ScanJobsTotal.WithLabelValues(string(job.Status)).Inc()

	if err := s.store.UpdateScanJob(job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist final scan job state")
	}
}

// probe checks one host: a cheap connect check on the control port first
// (most addresses in a sweep are dark, and a refused handshake costs far
// less than a full protocol probe), then the cgminer-API "version"
// command, falling back to an HTTP fingerprint of the web console when
// the control port never opens. Returns nil when nothing answers on
// either path.
func (s *Scanner) probe(ctx context.Context, jobID, ip string, controlPort int, timeout time.Duration) *types.DiscoveredMiner {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ScanProbeDuration)

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if health.NewTCPChecker(ip, controlPort).WithTimeout(timeout).Check(probeCtx).Healthy {
		// Open control port but a mute or garbled version reply still
		// counts as a discovery — just one we can't name a family for.
		model := "UNKNOWN"
		client, err := minerclient.New(ip,
			minerclient.WithPort(controlPort),
			minerclient.WithTimeout(timeout),
			minerclient.WithMaxRetries(1), // single attempt: a sweep can't afford per-host retry backoff
		)
		if err == nil {
			if resp, err := client.GetVersion(probeCtx); err == nil {
				model = classifyFamily(extractTypeString(resp))
			}
		}
		return &types.DiscoveredMiner{
			ScanJobID:     jobID,
			IPAddress:     ip,
			DetectedModel: model,
			ControlPort:   controlPort,
			DiscoveredAt:  time.Now().UTC(),
		}
	}

	if port, body, ok := tryHTTPFingerprint(probeCtx, ip); ok {
		return &types.DiscoveredMiner{
			ScanJobID:     jobID,
			IPAddress:     ip,
			DetectedModel: classifyFamily(body),
			ControlPort:   port,
			DiscoveredAt:  time.Now().UTC(),
		}
	}

	return nil
}

// extractTypeString pulls a firmware identification string out of a
// "version" command's VERSION array — the field name varies by vendor.
func extractTypeString(resp map[string]any) string {
	rows, ok := resp["VERSION"].([]any)
	if !ok || len(rows) == 0 {
		return ""
	}
	row, ok := rows[0].(map[string]any)
	if !ok {
		return ""
	}

	for _, key := range []string{"Type", "Miner", "PROD", "MODEL", "CGMiner"} {
		if v, ok := row[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// tryHTTPFingerprint runs a health.HTTPChecker against each candidate
// web-console port in turn and reports the checker's body preview for
// family classification, catching a miner that exposes a web console
// but keeps its control port closed.
func tryHTTPFingerprint(ctx context.Context, ip string) (port int, body string, ok bool) {
	for _, p := range httpFingerprintPorts {
		url := "http://" + net.JoinHostPort(ip, strconv.Itoa(p)) + "/"
		result := health.NewHTTPChecker(url).WithTimeout(2 * time.Second).Check(ctx)
		if result.Healthy {
			return p, result.Body, true
		}
	}
	return 0, "", false
}
