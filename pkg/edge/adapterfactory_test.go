package edge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/minerfleet/pkg/types"
)

func TestAdapterFactory_ReusesSimulatedAdapterPerMiner(t *testing.T) {
	f := NewAdapterFactory(MinerModeSimulated)
	miner := &types.HostingMiner{ID: "miner-1"}

	a1, err := f.For(miner)
	require.NoError(t, err)
	a2, err := f.For(miner)
	require.NoError(t, err)

	assert.Same(t, a1, a2)
}

func TestAdapterFactory_UnknownModeFallsBackToSimulated(t *testing.T) {
	f := NewAdapterFactory(MinerMode("bogus"))
	assert.Equal(t, MinerModeSimulated, f.mode)
}

func TestAdapterFactory_CGMinerModeRequiresIPAddress(t *testing.T) {
	f := NewAdapterFactory(MinerModeCGMiner)
	_, err := f.For(&types.HostingMiner{ID: "miner-1"})
	assert.Error(t, err)
}

func TestAdapterFactory_SimulatedAdapterExecutes(t *testing.T) {
	f := NewAdapterFactory(MinerModeSimulated)
	a, err := f.For(&types.HostingMiner{ID: "miner-1"})
	require.NoError(t, err)

	res := a.Execute(context.Background(), types.CommandReboot, nil)
	assert.True(t, res.Success)
}
