package cloudapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/fleetcore/minerfleet/pkg/audit"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// The scanner itself only ever runs at the edge, against miners the edge
// host can actually reach. These three handlers are the cloud's half of
// that split: they mirror job/progress/result state an edge process
// already produced locally, they never launch a sweep themselves.

type scanStartRequest struct {
	JobID        string `json:"job_id"`
	SiteID       string `json:"site_id"`
	IPRangeStart string `json:"ip_range_start"`
	IPRangeEnd   string `json:"ip_range_end"`
	TotalIPs     int    `json:"total_ips"`
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	device := deviceFromContext(r.Context())

	var req scanStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job := &types.IPScanJob{
		ID:           req.JobID,
		SiteID:       req.SiteID,
		DeviceID:     device.ID,
		IPRangeStart: req.IPRangeStart,
		IPRangeEnd:   req.IPRangeEnd,
		TotalIPs:     req.TotalIPs,
		Status:       types.ScanJobRunning,
		CreatedAt:    time.Now().UTC(),
		StartedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateScanJob(job); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record scan job")
		return
	}

	s.recordAudit(r.Context(), audit.Record{
		EventType: audit.EventScanJobStarted,
		TenantID:  device.TenantID,
		DeviceID:  device.ID,
		ActorID:   device.ID,
		ActorType: "device",
		SourceIP:  r.RemoteAddr,
		Result:    types.AuditSuccess,
		EventData: map[string]any{"job_id": job.ID, "total_ips": job.TotalIPs},
	})

	writeJSON(w, http.StatusCreated, job)
}

type scanProgressRequest struct {
	ScannedIPs       int `json:"scanned_ips"`
	DiscoveredMiners int `json:"discovered_miners"`
}

func (s *Server) handleScanProgress(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	jobID := ps.ByName("id")

	var req scanProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := s.store.GetScanJob(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "scan job not found")
		return
	}

	job.ScannedIPs = req.ScannedIPs
	job.DiscoveredMiners = req.DiscoveredMiners
	if err := s.store.UpdateScanJob(job); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record scan progress")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

type scanResultEntry struct {
	IPAddress     string `json:"ip_address"`
	DetectedModel string `json:"detected_model"`
	ControlPort   int    `json:"control_port"`
}

type scanResultsRequest struct {
	Status types.ScanJobStatus `json:"status"`
	Error  string              `json:"error,omitempty"`
	Miners []scanResultEntry   `json:"miners"`
}

func (s *Server) handleScanResults(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	device := deviceFromContext(r.Context())
	jobID := ps.ByName("id")

	var req scanResultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := s.store.GetScanJob(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "scan job not found")
		return
	}

	for _, m := range req.Miners {
		dm := &types.DiscoveredMiner{
			ScanJobID:     jobID,
			IPAddress:     m.IPAddress,
			DetectedModel: m.DetectedModel,
			ControlPort:   m.ControlPort,
			DiscoveredAt:  time.Now().UTC(),
		}
		if err := s.store.CreateDiscoveredMiner(dm); err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID).Str("ip", m.IPAddress).Msg("failed to persist discovered miner")
		}
	}

	job.Status = req.Status
	job.Error = req.Error
	job.DiscoveredMiners = len(req.Miners)
	job.FinishedAt = time.Now().UTC()
	if err := s.store.UpdateScanJob(job); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to finalize scan job")
		return
	}

	s.recordAudit(r.Context(), audit.Record{
		EventType: audit.EventScanJobCompleted,
		TenantID:  device.TenantID,
		DeviceID:  device.ID,
		ActorID:   device.ID,
		ActorType: "device",
		SourceIP:  r.RemoteAddr,
		Result:    types.AuditSuccess,
		EventData: map[string]any{"job_id": job.ID, "status": string(job.Status), "discovered": job.DiscoveredMiners},
	})

	writeJSON(w, http.StatusOK, job)
}
