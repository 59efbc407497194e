package cloudapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/fleetcore/minerfleet/pkg/audit"
	"github.com/fleetcore/minerfleet/pkg/metrics"
	"github.com/fleetcore/minerfleet/pkg/security"
	"github.com/fleetcore/minerfleet/pkg/types"
)

const defaultPollLimit = 20

type commandEntry struct {
	CommandID            string                        `json:"command_id"`
	CommandType          types.CommandType             `json:"command_type"`
	Payload              map[string]any                `json:"payload"`
	TargetIDs            []string                      `json:"target_ids"`
	EncryptedCredentials map[string]security.Envelope  `json:"encrypted_credentials,omitempty"`
}

type commandsPollResponse struct {
	Commands []commandEntry `json:"commands"`
}

func (s *Server) handleCommandsPoll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	device := deviceFromContext(r.Context())

	siteID := r.URL.Query().Get("site_id")
	limit := defaultPollLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	commands, err := s.store.ListQueuedCommandsForDevice(siteID, device.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list commands")
		return
	}

	entries := make([]commandEntry, 0, len(commands))
	for _, cmd := range commands {
		cmd.Status = types.CommandPulled
		cmd.PulledAt = time.Now().UTC()
		if err := s.store.UpdateCommand(cmd); err != nil {
			s.logger.Error().Err(err).Str("command_id", cmd.CommandID).Msg("failed to mark command pulled")
			continue
		}

		creds := make(map[string]security.Envelope, len(cmd.EncryptedCredentials))
		for minerID, secret := range cmd.EncryptedCredentials {
			creds[minerID] = security.ToEnvelope(&secret)
		}

		entries = append(entries, commandEntry{
			CommandID:            cmd.CommandID,
			CommandType:          cmd.CommandType,
			Payload:              cmd.Payload,
			TargetIDs:            cmd.TargetIDs,
			EncryptedCredentials: creds,
		})

		s.recordAudit(r.Context(), audit.Record{
			EventType: audit.EventCommandPulled,
			TenantID:  device.TenantID,
			DeviceID:  device.ID,
			ActorID:   device.ID,
			ActorType: "device",
			SourceIP:  r.RemoteAddr,
			Result:    types.AuditSuccess,
			EventData: map[string]any{"command_id": cmd.CommandID},
		})
	}

	writeJSON(w, http.StatusOK, commandsPollResponse{Commands: entries})
}

type commandAckRequest struct {
	Results []types.CommandResult `json:"results"`
}

type commandAckResponse struct {
	OK bool `json:"ok"`
}

func (s *Server) handleCommandAck(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	device := deviceFromContext(r.Context())
	commandID := ps.ByName("id")

	var req commandAckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cmd, err := s.store.GetCommand(commandID)
	if err != nil {
		writeError(w, http.StatusNotFound, "command not found")
		return
	}
	if cmd.DeviceID != device.ID {
		writeError(w, http.StatusForbidden, "command not addressed to this device")
		return
	}

	cmd.Results = req.Results
	cmd.Status = aggregateStatus(req.Results)
	cmd.CompletedAt = time.Now().UTC()

	if err := s.store.UpdateCommand(cmd); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record ack")
		return
	}
	metrics.CommandsCompletedTotal.WithLabelValues(string(cmd.Status)).Inc()

	s.recordAudit(r.Context(), audit.Record{
		EventType: audit.EventCommandAcked,
		TenantID:  device.TenantID,
		DeviceID:  device.ID,
		ActorID:   device.ID,
		ActorType: "device",
		SourceIP:  r.RemoteAddr,
		Result:    types.AuditSuccess,
		EventData: map[string]any{"command_id": cmd.CommandID, "status": string(cmd.Status)},
	})

	writeJSON(w, http.StatusOK, commandAckResponse{OK: true})
}

// aggregateStatus implements the cloud-side ACK rollup: all
// targets ok -> SUCCEEDED, all failed -> FAILED, anything mixed -> PARTIAL.
func aggregateStatus(results []types.CommandResult) types.CommandStatus {
	if len(results) == 0 {
		return types.CommandFailed
	}

	succeeded, failed := 0, 0
	for _, res := range results {
		if res.Status == "SUCCEEDED" {
			succeeded++
		} else {
			failed++
		}
	}

	switch {
	case failed == 0:
		return types.CommandSucceeded
	case succeeded == 0:
		return types.CommandFailed
	default:
		return types.CommandPartial
	}
}
