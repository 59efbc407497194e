package cloudapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/fleetcore/minerfleet/pkg/metrics"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// telemetryIngestRequest is the edge's write_raw payload: a batch of
// normalized readings collected since the last successful ingest.
type telemetryIngestRequest struct {
	Records []types.TelemetryRecord `json:"records"`
}

type telemetryIngestResponse struct {
	Ingested int `json:"ingested"`
}

func (s *Server) handleTelemetryIngest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	device := deviceFromContext(r.Context())

	var req telemetryIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ingested := 0
	for i := range req.Records {
		rec := req.Records[i]
		if rec.SiteID == "" {
			rec.SiteID = device.SiteID
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now().UTC()
		}
		if err := s.store.InsertRaw(&rec); err != nil {
			s.logger.Error().Err(err).Str("miner_id", rec.MinerID).Msg("failed to insert raw telemetry")
			continue
		}
		ingested++
		metrics.TelemetryRowsPromotedTotal.WithLabelValues("raw").Inc()
	}

	writeJSON(w, http.StatusOK, telemetryIngestResponse{Ingested: ingested})
}
