package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetcore/minerfleet/pkg/minerclient"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// powerModeFrequencyMHz maps the three named power modes to their ASIC
// clock frequency. Unrecognized modes are rejected, not defaulted, since
// silently picking "normal" could under- or over-drive hardware.
var powerModeFrequencyMHz = map[string]int{
	"high":   700,
	"normal": 600,
	"eco":    500,
}

// CGMinerAdapter executes commands against a real miner over minerclient.Client.
type CGMinerAdapter struct {
	client *minerclient.Client
}

// NewCGMinerAdapter wraps an already-constructed, control-enabled client.
func NewCGMinerAdapter(client *minerclient.Client) *CGMinerAdapter {
	return &CGMinerAdapter{client: client}
}

// Execute dispatches commandType to its CGMiner command sequence. A
// best-effort metrics snapshot is taken before any mutating call and
// returned under metrics["before"].
func (a *CGMinerAdapter) Execute(ctx context.Context, commandType types.CommandType, payload map[string]any) Result {
	before := a.snapshot(ctx)

	var result Result
	switch commandType {
	case types.CommandPowerMode:
		result = a.executePowerMode(ctx, payload)
	case types.CommandChangePool:
		result = a.executeChangePool(ctx, payload)
	case types.CommandSetFreq:
		result = a.executeSetFreq(ctx, payload)
	case types.CommandLED:
		result = a.executeLED(ctx, payload)
	case types.CommandReboot:
		result = a.executeReboot(ctx, payload)
	case types.CommandThermalPolicy:
		result = a.executeThermalPolicy(ctx, payload)
	default:
		result = unsupported(commandType)
	}

	if result.Metrics == nil {
		result.Metrics = map[string]any{}
	}
	result.Metrics["before"] = before
	return result
}

func (a *CGMinerAdapter) snapshot(ctx context.Context) map[string]any {
	snapshot := map[string]any{}
	record := minerclient.FetchTelemetry(ctx, a.client, "", "")
	snapshot["hashrate_ths"] = record.HashrateTHS
	snapshot["temperature_c"] = record.TemperatureC
	return snapshot
}

func (a *CGMinerAdapter) executePowerMode(ctx context.Context, payload map[string]any) Result {
	mode, _ := payload["mode"].(string)
	freq, ok := powerModeFrequencyMHz[strings.ToLower(mode)]
	if !ok {
		return Result{Success: false, Message: fmt.Sprintf("unknown power mode: %q", mode)}
	}

	_, err := a.client.SendCommand(ctx, "ascset", fmt.Sprintf("0,freq,%d", freq))
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	return Result{Success: true, Message: fmt.Sprintf("power mode set to %s (%d MHz)", mode, freq)}
}

func (a *CGMinerAdapter) executeSetFreq(ctx context.Context, payload map[string]any) Result {
	freq, ok := intFromPayload(payload, "freq_mhz")
	if !ok {
		return Result{Success: false, Message: "missing or invalid freq_mhz"}
	}

	_, err := a.client.SendCommand(ctx, "ascset", fmt.Sprintf("0,freq,%d", freq))
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	return Result{Success: true, Message: fmt.Sprintf("frequency set to %d MHz", freq)}
}

func (a *CGMinerAdapter) executeChangePool(ctx context.Context, payload map[string]any) Result {
	url, _ := payload["pool_url"].(string)
	user, _ := payload["worker_name"].(string)
	pass, _ := payload["password"].(string)
	if url == "" {
		return Result{Success: false, Message: "missing pool_url"}
	}

	if _, err := a.client.SendCommand(ctx, "addpool", fmt.Sprintf("%s,%s,%s", url, user, pass)); err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	pools, err := a.client.GetPools(ctx)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	poolID, found := findPoolIDByURLSubstring(pools, url)
	if !found {
		return Result{Success: false, Message: "pool added but could not be located by URL to switch to it"}
	}

	if _, err := a.client.SendCommand(ctx, "switchpool", fmt.Sprintf("%d", poolID)); err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	return Result{Success: true, Message: fmt.Sprintf("switched to pool %s", url)}
}

func findPoolIDByURLSubstring(pools map[string]any, urlSubstring string) (int, bool) {
	rows, ok := pools["POOLS"].([]any)
	if !ok {
		return 0, false
	}
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			continue
		}
		url, _ := m["URL"].(string)
		if strings.Contains(url, urlSubstring) {
			if id, ok := numericToInt(m["POOL"]); ok {
				return id, true
			}
		}
	}
	return 0, false
}

func (a *CGMinerAdapter) executeLED(ctx context.Context, payload map[string]any) Result {
	on, _ := payload["on"].(bool)
	cmd := "ledoff"
	if on {
		cmd = "ledon"
	}
	if _, err := a.client.SendCommand(ctx, cmd, ""); err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	return Result{Success: true, Message: fmt.Sprintf("led set: %s", cmd)}
}

func (a *CGMinerAdapter) executeReboot(ctx context.Context, payload map[string]any) Result {
	hard, _ := payload["hard"].(bool)
	cmd := "restart"
	if hard {
		cmd = "quit"
	}
	if _, err := a.client.SendCommand(ctx, cmd, ""); err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	return Result{Success: true, Message: fmt.Sprintf("reboot issued: %s", cmd)}
}

func (a *CGMinerAdapter) executeThermalPolicy(ctx context.Context, payload map[string]any) Result {
	auto, _ := payload["auto"].(bool)
	if auto {
		if _, err := a.client.SendCommand(ctx, "fanctrl", "auto"); err != nil {
			return Result{Success: false, Message: err.Error()}
		}
		return Result{Success: true, Message: "fan control set to auto"}
	}

	board, _ := intFromPayload(payload, "board")
	pct, ok := intFromPayload(payload, "fan_pct")
	if !ok {
		return Result{Success: false, Message: "missing fan_pct for manual thermal policy"}
	}
	if _, err := a.client.SendCommand(ctx, "fanctrl", fmt.Sprintf("%d,%d", board, pct)); err != nil {
		return Result{Success: false, Message: err.Error()}
	}
	return Result{Success: true, Message: fmt.Sprintf("fan set to %d%% on board %d", pct, board)}
}

func intFromPayload(payload map[string]any, key string) (int, bool) {
	v, ok := payload[key]
	if !ok {
		return 0, false
	}
	return numericToInt(v)
}

func numericToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
