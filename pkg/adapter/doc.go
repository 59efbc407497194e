/*
Package adapter provides the uniform command surface over miner firmware:
REBOOT, POWER_MODE, CHANGE_POOL, SET_FREQ, THERMAL_POLICY, and LED, each
returning {success, message, metrics}. Execute has no error return: every
miner-side or network failure is reported through Result.

# Real adapter

CGMinerAdapter maps each command type to one or more minerclient control
commands: POWER_MODE to "ascset 0,freq,<mhz>" with the frequency table
high=700/normal=600/eco=500 MHz; CHANGE_POOL to "addpool" followed by a
"switchpool" once the new pool is located by URL substring match; LED to
"ledon"/"ledoff"; REBOOT to "restart" (soft) or "quit" (hard); and
THERMAL_POLICY to a per-board "fanctrl i,pct" or "fanctrl auto". Before any
mutating call, a best-effort telemetry snapshot is taken and returned
under metrics["before"].

# Simulated adapter

SimulatedAdapter is a mutex-guarded, seeded in-memory state machine used
by cmd/edged's development mode and by pkg/edge's tests: every call
optionally sleeps a configured delay, then with FailureProbability returns
a synthetic failure, else mutates state deterministically from the seeded
random source — e.g. POWER_MODE=high samples a hashrate in [230,250] THS.
Its Result shape is identical to CGMinerAdapter's so callers (pkg/edge) are
adapter-agnostic.
*/
package adapter
