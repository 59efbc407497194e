// Package adapter provides the uniform capability surface over the miner
// TCP client: reboot, power-mode, change-pool, set-freq, thermal-policy,
// and LED, plus a deterministic simulated backend for development and
// tests. Execute never returns an error for a miner-side failure — every
// outcome, including a dropped connection, is reported in the Result.
package adapter

import (
	"context"

	"github.com/fleetcore/minerfleet/pkg/types"
)

// Result is the uniform outcome of every adapter call.
type Result struct {
	Success bool
	Message string
	Metrics map[string]any
}

// Adapter executes one command against one miner.
type Adapter interface {
	Execute(ctx context.Context, commandType types.CommandType, payload map[string]any) Result
}

// unsupported builds the result for a command type an adapter does not
// recognize — never an error, per the package contract.
func unsupported(commandType types.CommandType) Result {
	return Result{Success: false, Message: "Unknown command type: " + string(commandType)}
}
