package cloudapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/fleetcore/minerfleet/pkg/audit"
	"github.com/fleetcore/minerfleet/pkg/capability"
	"github.com/fleetcore/minerfleet/pkg/security"
	"github.com/fleetcore/minerfleet/pkg/types"
)

type secretListEntry struct {
	MinerID string          `json:"miner_id"`
	security.Envelope
}

type secretListResponse struct {
	DeviceID          string            `json:"device_id"`
	KeyVersion        int               `json:"key_version"`
	Secrets           []secretListEntry `json:"secrets"`
	Total             int               `json:"total"`
	SkippedCapability int               `json:"skipped_capability"`
	SkippedBound      int               `json:"skipped_bound"`
}

// handleListSecrets implements the incremental bulk secret pull.
// since_counter is advisory only — it narrows the candidate set but the
// capability/bound-device filter below is what the edge must trust; a
// short page here is never evidence of end-of-stream on its own, which is
// why skipped_capability/skipped_bound ride alongside total in the response.
func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	device := deviceFromContext(r.Context())

	sinceCounter, _ := strconv.ParseInt(r.URL.Query().Get("since_counter"), 10, 64)

	secrets, err := s.store.ListMinerSecretsForDevice(device.ID, sinceCounter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list secrets")
		return
	}

	miners := make([]*types.HostingMiner, 0, len(secrets))
	secretByMiner := make(map[string]*types.MinerSecret, len(secrets))
	for _, sec := range secrets {
		miner, err := s.store.GetMiner(sec.MinerID)
		if err != nil {
			continue
		}
		miners = append(miners, miner)
		secretByMiner[miner.ID] = sec
	}

	filtered := capability.Filter(device, miners)

	entries := make([]secretListEntry, 0, len(filtered.Allowed))
	for _, miner := range filtered.Allowed {
		sec := secretByMiner[miner.ID]
		if sec.KeyVersion != device.KeyVersion {
			filtered.SkippedCapability++
			continue
		}
		entries = append(entries, secretListEntry{MinerID: sec.MinerID, Envelope: security.ToEnvelope(sec)})
	}

	if filtered.SkippedCapability > 0 || filtered.SkippedBound > 0 {
		s.recordAudit(r.Context(), audit.Record{
			EventType: audit.EventCapabilityDenied,
			TenantID:  device.TenantID,
			DeviceID:  device.ID,
			ActorID:   device.ID,
			ActorType: "device",
			SourceIP:  r.RemoteAddr,
			Result:    types.AuditDenied,
			EventData: map[string]any{
				"bulk_pull":          true,
				"skipped_capability": filtered.SkippedCapability,
				"skipped_bound":      filtered.SkippedBound,
			},
		})
	}

	writeJSON(w, http.StatusOK, secretListResponse{
		DeviceID:          device.ID,
		KeyVersion:        device.KeyVersion,
		Secrets:           entries,
		Total:             len(entries),
		SkippedCapability: filtered.SkippedCapability,
		SkippedBound:      filtered.SkippedBound,
	})
}

// denialBody renders the wire-contract body for a single-secret denial:
// callers key off decision.Reason, so the shape of the JSON differs per
// reason rather than collapsing to a bare code.
func denialBody(reason types.DenialReason, device *types.EdgeDevice, miner *types.HostingMiner) map[string]any {
	switch reason {
	case types.DenialCapability:
		return map[string]any{
			"error":          "Capability level insufficient",
			"required_level": int(types.CapabilityControl),
			"miner_level":    int(miner.CapabilityLevel),
			"message":        "Miner must be set to CONTROL level (3) to access credentials",
		}
	case types.DenialBoundDevice:
		return map[string]any{
			"error":   "Miner bound to different device",
			"message": "This miner is restricted to a specific Edge Collector",
		}
	case types.DenialKeyVersionMismatch:
		return map[string]any{
			"error":                "Key version mismatch",
			"expected_key_version": device.KeyVersion,
		}
	default:
		return map[string]any{"error": "Device not found or not active"}
	}
}

func (s *Server) handleGetSecret(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	device := deviceFromContext(r.Context())
	minerID := ps.ByName("minerID")

	miner, err := s.store.GetMiner(minerID)
	if err != nil {
		writeError(w, http.StatusNotFound, "miner not found")
		return
	}

	decision := capability.Check(capability.Request{
		Device:              device,
		Miner:               miner,
		RequestedKeyVersion: device.KeyVersion,
	})
	if !decision.Allow {
		s.recordAudit(r.Context(), audit.Record{
			EventType: audit.EventCapabilityDenied,
			TenantID:  device.TenantID,
			DeviceID:  device.ID,
			MinerID:   minerID,
			ActorID:   device.ID,
			ActorType: "device",
			SourceIP:  r.RemoteAddr,
			Result:    types.AuditDenied,
			EventData: map[string]any{"reason": string(decision.Reason)},
		})
		writeJSON(w, http.StatusForbidden, denialBody(decision.Reason, device, miner))
		return
	}

	secret, err := s.store.GetMinerSecret(minerID, device.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "secret not found")
		return
	}

	s.recordAudit(r.Context(), audit.Record{
		EventType: audit.EventSecretFetched,
		TenantID:  device.TenantID,
		DeviceID:  device.ID,
		MinerID:   minerID,
		ActorID:   device.ID,
		ActorType: "device",
		SourceIP:  r.RemoteAddr,
		Result:    types.AuditSuccess,
	})

	writeJSON(w, http.StatusOK, security.ToEnvelope(secret))
}

type edgeStatusResponse struct {
	DeviceID    string    `json:"device_id"`
	KeyVersion  int       `json:"key_version"`
	SecretCount int       `json:"secret_count"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

func (s *Server) handleEdgeStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	device := deviceFromContext(r.Context())

	secrets, err := s.store.ListMinerSecretsForDevice(device.ID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read secret count")
		return
	}

	writeJSON(w, http.StatusOK, edgeStatusResponse{
		DeviceID:    device.ID,
		KeyVersion:  device.KeyVersion,
		SecretCount: len(secrets),
		LastSeenAt:  device.LastSeenAt,
	})
}

type secretAckRequest struct {
	MinerIDs []string `json:"miner_ids"`
}

type secretAckResponse struct {
	Acknowledged int `json:"acknowledged"`
}

func (s *Server) handleSecretAck(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	device := deviceFromContext(r.Context())

	var req secretAckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	for _, minerID := range req.MinerIDs {
		s.recordAudit(r.Context(), audit.Record{
			EventType: audit.EventSecretFetched,
			TenantID:  device.TenantID,
			DeviceID:  device.ID,
			MinerID:   minerID,
			ActorID:   device.ID,
			ActorType: "device",
			SourceIP:  r.RemoteAddr,
			Result:    types.AuditSuccess,
			EventData: map[string]any{"ack": true},
		})
	}

	writeJSON(w, http.StatusOK, secretAckResponse{Acknowledged: len(req.MinerIDs)})
}
