// Package capability implements the DISCOVERY/TELEMETRY/CONTROL tri-level
// gate and the miner-to-device binding restriction that guards every
// secret release. Check is a pure function: no globals, no I/O, no
// decorator/middleware magic — callers look up the device and miner
// themselves and pass the result in.
package capability

import "github.com/fleetcore/minerfleet/pkg/types"

// Request is everything Check needs to evaluate one secret-release decision.
type Request struct {
	Device            *types.EdgeDevice
	Miner             *types.HostingMiner
	RequestedKeyVersion int
}

// Decision is the outcome of a capability check.
type Decision struct {
	Allow  bool
	Reason types.DenialReason
}

// Check enforces, in order:
//  1. the device is ACTIVE,
//  2. the miner's capability_level is CONTROL,
//  3. if the miner has a bound_device_id, it matches the requesting device,
//  4. the requested key_version matches the device's current key_version.
//
// The checks are ordered so the most fundamental failure (a dead device)
// is reported before a more specific one, matching how an operator would
// triage a denial.
func Check(req Request) Decision {
	if req.Device == nil || req.Device.Status != types.DeviceStatusActive {
		return Decision{Allow: false, Reason: types.DenialDeviceRevoked}
	}

	if req.Miner == nil || req.Miner.CapabilityLevel != types.CapabilityControl {
		return Decision{Allow: false, Reason: types.DenialCapability}
	}

	if req.Miner.BoundDeviceID != "" && req.Miner.BoundDeviceID != req.Device.ID {
		return Decision{Allow: false, Reason: types.DenialBoundDevice}
	}

	if req.RequestedKeyVersion != req.Device.KeyVersion {
		return Decision{Allow: false, Reason: types.DenialKeyVersionMismatch}
	}

	return Decision{Allow: true, Reason: types.DenialNone}
}

// FilterResult is the outcome of a bulk capability filter: the miners the
// caller is entitled to, plus counters distinguishing "nothing matched" from
// "some were denied" so the edge doesn't mistake a denial for an empty fleet.
type FilterResult struct {
	Allowed          []*types.HostingMiner
	SkippedCapability int
	SkippedBound      int
}

// Filter applies Check across a batch of miners for one device, without
// considering key_version (bulk pulls are filtered by eligibility only;
// key_version is enforced per-secret at release time).
func Filter(device *types.EdgeDevice, miners []*types.HostingMiner) FilterResult {
	var result FilterResult
	for _, m := range miners {
		if m.CapabilityLevel != types.CapabilityControl {
			result.SkippedCapability++
			continue
		}
		if m.BoundDeviceID != "" && m.BoundDeviceID != device.ID {
			result.SkippedBound++
			continue
		}
		result.Allowed = append(result.Allowed, m)
	}
	return result
}
