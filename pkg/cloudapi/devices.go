package cloudapi

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/fleetcore/minerfleet/pkg/audit"
	"github.com/fleetcore/minerfleet/pkg/types"
)

type pubkeyResponse struct {
	DeviceID   string `json:"device_id"`
	PublicKey  []byte `json:"public_key"`
	KeyVersion int    `json:"key_version"`
}

func (s *Server) handleGetPubkey(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	device := deviceFromContext(r.Context())
	if device.ID != ps.ByName("id") {
		writeError(w, http.StatusForbidden, "device id mismatch")
		return
	}

	writeJSON(w, http.StatusOK, pubkeyResponse{
		DeviceID:   device.ID,
		PublicKey:  device.PublicKey,
		KeyVersion: device.KeyVersion,
	})
}

type heartbeatResponse struct {
	LastSeenAt time.Time `json:"last_seen_at"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	device := deviceFromContext(r.Context())
	if device.ID != ps.ByName("id") {
		writeError(w, http.StatusForbidden, "device id mismatch")
		return
	}

	device.LastSeenAt = time.Now().UTC()
	if err := s.store.UpdateDevice(device); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record heartbeat")
		return
	}

	s.recordAudit(r.Context(), audit.Record{
		EventType: audit.EventDeviceHeartbeat,
		TenantID:  device.TenantID,
		DeviceID:  device.ID,
		ActorID:   device.ID,
		ActorType: "device",
		SourceIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Result:    types.AuditSuccess,
	})

	writeJSON(w, http.StatusOK, heartbeatResponse{LastSeenAt: device.LastSeenAt})
}

// recordAudit is a nil-safe wrapper so tests may construct a Server
// without an audit.Logger when they don't care about the audit trail.
func (s *Server) recordAudit(ctx context.Context, rec audit.Record) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, rec)
}
