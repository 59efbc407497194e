package edge

import (
	"fmt"
	"sync"
	"time"

	"github.com/fleetcore/minerfleet/pkg/adapter"
	"github.com/fleetcore/minerfleet/pkg/minerclient"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// MinerMode selects which adapter backend the runtime builds per target
// (EDGE_MINER_MODE).
type MinerMode string

const (
	MinerModeSimulated MinerMode = "simulated"
	MinerModeCGMiner   MinerMode = "cgminer"
)

// AdapterFactory builds the adapter.Adapter for one miner, reusing a
// single simulated instance per miner id across calls so simulated state
// (power mode, pool, etc.) persists command-to-command the way a real
// ASIC's state would.
type AdapterFactory struct {
	mode MinerMode

	mu        sync.Mutex
	simulated map[string]*adapter.SimulatedAdapter
}

// NewAdapterFactory builds a factory for mode. An unrecognized mode
// falls back to simulated — refusing to talk to real hardware is the
// safe default for a misconfigured edge.
func NewAdapterFactory(mode MinerMode) *AdapterFactory {
	if mode != MinerModeCGMiner {
		mode = MinerModeSimulated
	}
	return &AdapterFactory{mode: mode, simulated: make(map[string]*adapter.SimulatedAdapter)}
}

// For builds the adapter for miner. In cgminer mode it dials the miner's
// control port fresh for every command — commands are infrequent enough
// that holding a persistent connection isn't worth the complexity.
func (f *AdapterFactory) For(miner *types.HostingMiner) (adapter.Adapter, error) {
	if f.mode == MinerModeSimulated {
		f.mu.Lock()
		defer f.mu.Unlock()
		sim, ok := f.simulated[miner.ID]
		if !ok {
			sim = adapter.NewSimulatedAdapter(time.Now().UnixNano())
			f.simulated[miner.ID] = sim
		}
		return sim, nil
	}

	if miner.IPAddress == "" {
		return nil, fmt.Errorf("miner %s has no resolvable ip address", miner.ID)
	}
	port := miner.ControlPort
	if port == 0 {
		port = minerclient.DefaultPort
	}
	client, err := minerclient.New(miner.IPAddress, minerclient.WithPort(port), minerclient.WithAllowControl(true))
	if err != nil {
		return nil, fmt.Errorf("build miner client for %s: %w", miner.ID, err)
	}
	return adapter.NewCGMinerAdapter(client), nil
}
