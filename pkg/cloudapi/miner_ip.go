package cloudapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/fleetcore/minerfleet/pkg/audit"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// revealIPResponse mirrors ip_encryption_service.get_display_ip's
// (display_value, status) pair: status is one of plain, masked,
// decrypted, encrypted, e2ee, e2ee_pending, or empty.
type revealIPResponse struct {
	MinerID string `json:"miner_id"`
	IP      string `json:"ip_address"`
	Status  string `json:"status"`
}

// displayIP decides what a reveal request is shown for each IP mode
// (the policy of *who* may set reveal=true — operator RBAC — is the
// out-of-scope dashboard's job; this only ever decides what the
// already-authorized caller is shown). An E2EE-mode miner is denied
// unconditionally regardless of the reveal flag: its stored value is
// either the untouched PendingE2EEMarker or an edge-produced envelope
// this cloud process never holds a key to open.
func displayIP(miner *types.HostingMiner, reveal bool) (ip, status string) {
	if miner.IPAddress == "" {
		return "", "empty"
	}

	switch miner.IPEncryptionMode {
	case types.IPModeE2EE:
		if miner.IPAddress == types.PendingE2EEMarker {
			return "[E2EE Protected]", "e2ee_pending"
		}
		return "[E2EE Protected]", "e2ee"
	case types.IPModeServerEncrypt:
		if reveal {
			return miner.IPAddress, "decrypted"
		}
		return "[Server Encrypted]", "encrypted"
	default: // IPModeMask and unset
		if reveal {
			return miner.IPAddress, "plain"
		}
		return audit.MaskIP(miner.IPAddress), "masked"
	}
}

// handleRevealMinerIP serves a miner's IP address for operator display,
// honoring ip_encryption_mode and the unconditional E2EE deny. reveal=true
// is the caller's already-established permission to see an unmasked value;
// it is never enough to bypass the E2EE case.
func (s *Server) handleRevealMinerIP(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	device := deviceFromContext(r.Context())
	minerID := ps.ByName("minerID")
	reveal := r.URL.Query().Get("reveal") == "true"

	miner, err := s.store.GetMiner(minerID)
	if err != nil {
		writeError(w, http.StatusNotFound, "miner not found")
		return
	}

	ip, status := displayIP(miner, reveal)

	result := types.AuditSuccess
	if reveal && (status == "e2ee" || status == "e2ee_pending") {
		result = types.AuditDenied
	}

	s.recordAudit(r.Context(), audit.Record{
		EventType: audit.EventIPRevealed,
		TenantID:  device.TenantID,
		DeviceID:  device.ID,
		MinerID:   minerID,
		ActorID:   device.ID,
		ActorType: "device",
		SourceIP:  r.RemoteAddr,
		Result:    result,
		EventData: map[string]any{"status": status, "requested_reveal": reveal},
	})

	writeJSON(w, http.StatusOK, revealIPResponse{MinerID: minerID, IP: ip, Status: status})
}
