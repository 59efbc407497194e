package cloudapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/fleetcore/minerfleet/pkg/audit"
	"github.com/fleetcore/minerfleet/pkg/log"
	"github.com/fleetcore/minerfleet/pkg/scanner"
	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/telemetry"
)

// Server is the cloud side of the cloud↔edge boundary: devices, secrets,
// commands, scan jobs, and raw telemetry ingestion, all gated by device
// bearer-token auth and the capability check.
type Server struct {
	store   storage.Store
	audit   *audit.Logger
	scanner *scanner.Scanner
	reader  *telemetry.Reader
	logger  zerolog.Logger
}

// NewServer wires a Server over store. scanner and reader may be nil in
// tests that only exercise device/secret/command endpoints.
func NewServer(store storage.Store, auditLogger *audit.Logger, sc *scanner.Scanner, reader *telemetry.Reader) *Server {
	return &Server{
		store:   store,
		audit:   auditLogger,
		scanner: sc,
		reader:  reader,
		logger:  log.WithComponent("cloudapi"),
	}
}

// Router builds the full httprouter.Router for the cloud↔edge endpoint set.
func (s *Server) Router() http.Handler {
	r := httprouter.New()

	r.GET("/devices/:id/pubkey", s.requireDevice(s.handleGetPubkey))
	r.POST("/devices/:id/heartbeat", s.requireDevice(s.handleHeartbeat))

	r.GET("/edge/secrets", s.requireDevice(s.handleListSecrets))
	r.GET("/edge/secrets/:minerID", s.requireDevice(s.handleGetSecret))
	r.GET("/edge/status", s.requireDevice(s.handleEdgeStatus))
	r.POST("/edge/ack", s.requireDevice(s.handleSecretAck))

	r.GET("/miners/:minerID/ip", s.requireDevice(s.handleRevealMinerIP))

	r.GET("/edge/v1/commands/poll", s.requireDevice(s.handleCommandsPoll))
	r.POST("/edge/v1/commands/:id/ack", s.requireDevice(s.handleCommandAck))

	r.POST("/edge/scan", s.requireDevice(s.handleScanStart))
	r.POST("/edge/scan/:id/progress", s.requireDevice(s.handleScanProgress))
	r.POST("/edge/scan/:id/results", s.requireDevice(s.handleScanResults))

	r.POST("/edge/telemetry", s.requireDevice(s.handleTelemetryIngest))

	return r
}
