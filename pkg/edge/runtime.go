package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fleetcore/minerfleet/pkg/health"
	"github.com/fleetcore/minerfleet/pkg/log"
	"github.com/fleetcore/minerfleet/pkg/metrics"
	"github.com/fleetcore/minerfleet/pkg/security"
	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// Default intervals when Config leaves the corresponding field zero.
const (
	DefaultHeartbeatInterval  = 30 * time.Second
	DefaultPollInterval       = 5 * time.Second
	DefaultSecretSyncInterval = 60 * time.Second
	DefaultCommandLimit       = 20
)

// Config configures one Runtime. DeviceID, SiteID, MinerMode,
// ExecutionEnabled and PollInterval map to the EDGE_* environment
// variables cmd/edged reads; the remaining fields have no environment
// variable and fall back to their defaults.
type Config struct {
	DeviceID  string
	SiteID    string
	MinerMode MinerMode

	// ExecutionEnabled gates whether polled commands are actually run.
	// When false, every target is reported FAILED with a fixed message
	// so the command still reaches a terminal state on the cloud side.
	ExecutionEnabled bool

	HeartbeatInterval  time.Duration
	PollInterval       time.Duration
	SecretSyncInterval time.Duration
	CommandLimit       int

	// DedupPath is where the executed-command set is persisted
	// (default ".edge_executed_commands.json" in the working directory).
	DedupPath string
}

func (c *Config) setDefaults() {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SecretSyncInterval == 0 {
		c.SecretSyncInterval = DefaultSecretSyncInterval
	}
	if c.CommandLimit == 0 {
		c.CommandLimit = DefaultCommandLimit
	}
	if c.DedupPath == "" {
		c.DedupPath = ".edge_executed_commands.json"
	}
}

// Runtime is the long-running edge collector loop: heartbeat,
// incremental secret sync, command poll/execute/ack, repeat.
type Runtime struct {
	cfg     Config
	cloud   CloudClient
	store   storage.Store // local miner directory + secret cache
	crypto  *security.CryptoContext
	factory *AdapterFactory
	dedup   *ExecutedSet
	logger  zerolog.Logger

	cloudHealth *health.Status
	healthCfg   health.Config

	sinceCounter int64
	stopCh       chan struct{}
}

// NewRuntime wires a Runtime. store is the edge's own local database —
// the same Store the scanner populates with discovered miners and that
// UpsertMinerSecret/GetMinerSecret mirror as the local secret cache,
// with the counter/key_version anti-rollback enforced identically to
// the cloud side.
func NewRuntime(cfg Config, cloud CloudClient, store storage.Store, crypto *security.CryptoContext) *Runtime {
	cfg.setDefaults()
	return &Runtime{
		cfg:     cfg,
		cloud:   cloud,
		store:   store,
		crypto:  crypto,
		factory: NewAdapterFactory(cfg.MinerMode),
		dedup:   NewExecutedSet(cfg.DedupPath),
		logger:  log.WithDeviceID(cfg.DeviceID),

		cloudHealth: health.NewStatus(),
		healthCfg:   health.DefaultConfig(),

		stopCh: make(chan struct{}),
	}
}

// Start launches the heartbeat, secret-sync, and command loops in their
// own goroutines and returns immediately.
func (r *Runtime) Start() {
	go r.heartbeatLoop()
	go r.secretSyncLoop()
	go r.commandLoop()
}

// Stop signals every loop to exit. It does not wait for in-flight
// command execution to finish.
func (r *Runtime) Stop() {
	close(r.stopCh)
}

func (r *Runtime) heartbeatLoop() {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.heartbeat()
		case <-r.stopCh:
			return
		}
	}
}

// heartbeat reports liveness and folds the round trip's outcome into
// the cloud-connectivity tracker: only a run of consecutive failures —
// not one dropped request — marks the cloud unreachable.
func (r *Runtime) heartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := r.cloud.Heartbeat(ctx, r.cfg.DeviceID)

	result := health.Result{Healthy: err == nil, CheckedAt: start, Duration: time.Since(start)}
	if err != nil {
		result.Message = err.Error()
		r.logger.Error().Err(err).Msg("heartbeat failed")
	}

	wasHealthy := r.cloudHealth.Healthy
	r.cloudHealth.Update(result, r.healthCfg)
	switch {
	case wasHealthy && !r.cloudHealth.Healthy:
		r.logger.Warn().Int("consecutive_failures", r.cloudHealth.ConsecutiveFailures).Msg("cloud unreachable")
	case !wasHealthy && r.cloudHealth.Healthy:
		r.logger.Info().Msg("cloud connectivity restored")
	}
}

func (r *Runtime) secretSyncLoop() {
	ticker := time.NewTicker(r.cfg.SecretSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.syncSecrets()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Runtime) syncSecrets() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	secrets, _, err := r.cloud.FetchSecrets(ctx, r.cfg.SiteID, r.sinceCounter)
	if err != nil {
		r.logger.Error().Err(err).Msg("secret sync failed")
		return
	}

	for i := range secrets {
		s := secrets[i]
		if err := r.store.UpsertMinerSecret(&s); err != nil {
			// A counter/key-version rejection here means the cloud
			// re-sent something this device already has; never fatal.
			r.logger.Warn().Err(err).Str("miner_id", s.MinerID).Msg("secret sync upsert rejected")
			continue
		}
		if s.Counter > r.sinceCounter {
			r.sinceCounter = s.Counter
		}
	}
}

func (r *Runtime) commandLoop() {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.pollAndExecute()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Runtime) pollAndExecute() {
	metrics.EdgePollCyclesTotal.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	commands, err := r.cloud.PollCommands(ctx, r.cfg.SiteID, r.cfg.CommandLimit)
	cancel()
	if err != nil {
		r.logger.Error().Err(err).Msg("command poll failed")
		return
	}

	for i := range commands {
		cmd := commands[i]
		if r.dedup.Contains(cmd.CommandID) {
			metrics.EdgeDedupSkipsTotal.Inc()
			continue
		}
		r.executeAndAck(cmd)
	}
}

// executeAndAck runs cmd against every target in its own errgroup — one
// target's failure never stops the others — then acks the full result
// set. The command id is only marked executed once the ack is sent, so
// a crash between execution and ack still allows exactly one retry.
func (r *Runtime) executeAndAck(cmd types.CommandRecord) {
	results := r.executeCommand(cmd)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err := r.cloud.AckCommand(ctx, cmd.CommandID, results)
	cancel()
	if err != nil {
		r.logger.Error().Err(err).Str("command_id", cmd.CommandID).Msg("ack failed, will retry next poll if re-offered")
		return
	}

	if err := r.dedup.Mark(cmd.CommandID, time.Now().UTC()); err != nil {
		r.logger.Error().Err(err).Str("command_id", cmd.CommandID).Msg("failed to persist dedup set")
	}
}

func (r *Runtime) executeCommand(cmd types.CommandRecord) []types.CommandResult {
	if !r.cfg.ExecutionEnabled {
		results := make([]types.CommandResult, 0, len(cmd.TargetIDs))
		for _, minerID := range cmd.TargetIDs {
			results = append(results, types.CommandResult{
				MinerID: minerID,
				Status:  "FAILED",
				Message: "execution disabled on this edge",
			})
		}
		return results
	}

	resultCh := make(chan types.CommandResult, len(cmd.TargetIDs))
	var g errgroup.Group

	for _, minerID := range cmd.TargetIDs {
		minerID := minerID
		g.Go(func() error {
			resultCh <- r.executeOnTarget(cmd, minerID)
			return nil
		})
	}
	_ = g.Wait()
	close(resultCh)

	results := make([]types.CommandResult, 0, len(cmd.TargetIDs))
	for res := range resultCh {
		results = append(results, res)
	}
	return results
}

// executeOnTarget never returns an error — every outcome, including a
// lookup or decryption failure, is reported as a FAILED CommandResult.
func (r *Runtime) executeOnTarget(cmd types.CommandRecord, minerID string) types.CommandResult {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommandExecutionDuration)

	miner, err := r.store.GetMiner(minerID)
	if err != nil {
		return failResult(minerID, fmt.Errorf("resolve miner: %w", err))
	}

	payload := cmd.Payload
	if secret, ok := cmd.EncryptedCredentials[minerID]; ok {
		creds, err := r.decryptCredentials(&secret)
		if err != nil {
			return failResult(minerID, fmt.Errorf("decrypt credentials: %w", err))
		}
		payload = mergeCredentials(cmd.Payload, creds)
	}

	a, err := r.factory.For(miner)
	if err != nil {
		return failResult(minerID, fmt.Errorf("build adapter: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := a.Execute(ctx, cmd.CommandType, payload)

	status := "SUCCEEDED"
	if !res.Success {
		status = "FAILED"
	}
	metrics.EdgeAdapterExecutionsTotal.WithLabelValues(string(cmd.CommandType), status).Inc()

	return types.CommandResult{MinerID: minerID, Status: status, Message: res.Message, Metrics: res.Metrics}
}

func (r *Runtime) decryptCredentials(secret *types.MinerSecret) (map[string]any, error) {
	plaintext, err := r.crypto.Decrypt(secret)
	if err != nil {
		return nil, err
	}
	defer security.Zeroize(plaintext)

	var creds map[string]any
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("unmarshal decrypted credentials: %w", err)
	}
	return creds, nil
}

// mergeCredentials returns a copy of payload with decrypted credentials
// attached, leaving the caller's original map untouched.
func mergeCredentials(payload map[string]any, creds map[string]any) map[string]any {
	merged := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		merged[k] = v
	}
	merged["_credentials"] = creds
	return merged
}

func failResult(minerID string, err error) types.CommandResult {
	return types.CommandResult{MinerID: minerID, Status: "FAILED", Message: err.Error()}
}
