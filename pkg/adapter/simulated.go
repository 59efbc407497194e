package adapter

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/fleetcore/minerfleet/pkg/types"
)

// simState is the simulated miner's internal, mutex-guarded state.
type simState struct {
	PowerMode    string
	FrequencyMHz int
	FanMode      string
	FanSpeedPct  int
	LEDOn        bool
	PoolURL      string
	WorkerName   string
	HashrateTHS  float64
	TemperatureC float64
	UptimeHours  float64
}

// SimulatedAdapter is a deterministic-given-its-seed in-memory miner used
// for development and tests, matching the real adapter's Result shape.
type SimulatedAdapter struct {
	mu    sync.Mutex
	state simState
	rng   *rand.Rand

	// DelayMin/DelayMax bound the uniform random processing delay every
	// call simulates before responding.
	DelayMin time.Duration
	DelayMax time.Duration
	// FailureProbability is the chance, in [0,1], that a call returns a
	// synthetic failure instead of mutating state.
	FailureProbability float64

	sleep func(time.Duration)
}

// NewSimulatedAdapter constructs a SimulatedAdapter seeded for reproducible
// test runs; production use should seed from a time-derived value per instance.
func NewSimulatedAdapter(seed int64) *SimulatedAdapter {
	return &SimulatedAdapter{
		state: simState{
			PowerMode:    "normal",
			FrequencyMHz: 600,
			FanMode:      "auto",
			FanSpeedPct:  70,
			HashrateTHS:  90,
			TemperatureC: 65,
			UptimeHours:  1,
		},
		rng:      rand.New(rand.NewSource(seed)),
		DelayMin: 0,
		DelayMax: 0,
		sleep:    time.Sleep,
	}
}

func (s *SimulatedAdapter) Execute(ctx context.Context, commandType types.CommandType, payload map[string]any) Result {
	s.simulateDelay()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < s.FailureProbability {
		return Result{Success: false, Message: "simulated failure", Metrics: s.metricsLocked()}
	}

	switch commandType {
	case types.CommandPowerMode:
		return s.executePowerModeLocked(payload)
	case types.CommandSetFreq:
		return s.executeSetFreqLocked(payload)
	case types.CommandChangePool:
		return s.executeChangePoolLocked(payload)
	case types.CommandLED:
		return s.executeLEDLocked(payload)
	case types.CommandReboot:
		return s.executeRebootLocked(payload)
	case types.CommandThermalPolicy:
		return s.executeThermalPolicyLocked(payload)
	default:
		return unsupported(commandType)
	}
}

func (s *SimulatedAdapter) simulateDelay() {
	if s.DelayMax <= s.DelayMin {
		return
	}
	jitter := time.Duration(s.rng.Int63n(int64(s.DelayMax - s.DelayMin)))
	s.sleep(s.DelayMin + jitter)
}

func (s *SimulatedAdapter) metricsLocked() map[string]any {
	return map[string]any{
		"hashrate_ths":  s.state.HashrateTHS,
		"temperature_c": s.state.TemperatureC,
		"uptime_hours":  s.state.UptimeHours,
	}
}

func (s *SimulatedAdapter) executePowerModeLocked(payload map[string]any) Result {
	mode, _ := payload["mode"].(string)
	mode = strings.ToLower(mode)

	var freq int
	var hashrateRange [2]float64
	switch mode {
	case "high":
		freq, hashrateRange = 700, [2]float64{230, 250}
	case "normal":
		freq, hashrateRange = 600, [2]float64{190, 210}
	case "eco":
		freq, hashrateRange = 500, [2]float64{150, 170}
	default:
		return Result{Success: false, Message: fmt.Sprintf("unknown power mode: %q", mode)}
	}

	s.state.PowerMode = mode
	s.state.FrequencyMHz = freq
	s.state.HashrateTHS = hashrateRange[0] + s.rng.Float64()*(hashrateRange[1]-hashrateRange[0])
	s.state.TemperatureC = 55 + float64(freq)/700*25

	return Result{Success: true, Message: fmt.Sprintf("power mode set to %s", mode), Metrics: s.metricsLocked()}
}

func (s *SimulatedAdapter) executeSetFreqLocked(payload map[string]any) Result {
	freq, ok := intFromPayload(payload, "freq_mhz")
	if !ok {
		return Result{Success: false, Message: "missing or invalid freq_mhz"}
	}
	s.state.FrequencyMHz = freq
	s.state.HashrateTHS = float64(freq) / 700 * 240
	return Result{Success: true, Message: fmt.Sprintf("frequency set to %d MHz", freq), Metrics: s.metricsLocked()}
}

func (s *SimulatedAdapter) executeChangePoolLocked(payload map[string]any) Result {
	url, _ := payload["pool_url"].(string)
	worker, _ := payload["worker_name"].(string)
	if url == "" {
		return Result{Success: false, Message: "missing pool_url"}
	}
	s.state.PoolURL = url
	s.state.WorkerName = worker
	return Result{Success: true, Message: fmt.Sprintf("switched to pool %s", url), Metrics: s.metricsLocked()}
}

func (s *SimulatedAdapter) executeLEDLocked(payload map[string]any) Result {
	on, _ := payload["on"].(bool)
	s.state.LEDOn = on
	return Result{Success: true, Message: fmt.Sprintf("led on=%v", on), Metrics: s.metricsLocked()}
}

func (s *SimulatedAdapter) executeRebootLocked(payload map[string]any) Result {
	s.state.UptimeHours = 0
	hard, _ := payload["hard"].(bool)
	kind := "soft"
	if hard {
		kind = "hard"
	}
	return Result{Success: true, Message: fmt.Sprintf("%s reboot complete", kind), Metrics: s.metricsLocked()}
}

func (s *SimulatedAdapter) executeThermalPolicyLocked(payload map[string]any) Result {
	auto, _ := payload["auto"].(bool)
	if auto {
		s.state.FanMode = "auto"
		s.state.FanSpeedPct = 70
		return Result{Success: true, Message: "fan control set to auto", Metrics: s.metricsLocked()}
	}

	pct, ok := intFromPayload(payload, "fan_pct")
	if !ok {
		return Result{Success: false, Message: "missing fan_pct for manual thermal policy"}
	}
	s.state.FanMode = "manual"
	s.state.FanSpeedPct = pct
	return Result{Success: true, Message: fmt.Sprintf("fan set to %d%%", pct), Metrics: s.metricsLocked()}
}

// Snapshot returns a copy of the simulated miner's current state for
// inspection in tests.
func (s *SimulatedAdapter) Snapshot() simState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
