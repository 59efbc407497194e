package edgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fleetcore/minerfleet/pkg/security"
	"github.com/fleetcore/minerfleet/pkg/types"
)

const (
	// DefaultTimeout bounds a single cloud round trip.
	DefaultTimeout = 10 * time.Second
	// MaxTimeout is the hard ceiling on a caller-supplied timeout.
	MaxTimeout = 60 * time.Second
)

// ClientError is the structured error every failed call returns, so
// callers (pkg/edge's runtime loops) can log without parsing strings.
type ClientError struct {
	StatusCode int
	Message    string
	Path       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("edgeclient: %s (status=%d path=%s)", e.Message, e.StatusCode, e.Path)
}

// Client is the bearer-token-authenticated HTTP client for one edge
// device's cloud endpoint.
type Client struct {
	baseURL     string
	deviceToken string
	httpClient  *http.Client
	timeout     time.Duration
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithTimeout overrides the default per-request timeout, clamped to MaxTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > MaxTimeout {
			d = MaxTimeout
		}
		c.timeout = d
	}
}

// WithHTTPClient overrides the underlying *http.Client (tests inject one
// pointed at an httptest.Server).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a Client for baseURL (e.g. "https://fleet.example.com"),
// authenticating every request with deviceToken.
func New(baseURL, deviceToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		deviceToken: deviceToken,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &ClientError{Message: err.Error(), Path: path}
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return &ClientError{Message: err.Error(), Path: path}
	}
	req.Header.Set("Authorization", "Bearer "+c.deviceToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ClientError{Message: err.Error(), Path: path}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ClientError{StatusCode: resp.StatusCode, Message: string(data), Path: path}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type heartbeatResponse struct {
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Heartbeat reports liveness for deviceID via POST /devices/{id}/heartbeat.
func (c *Client) Heartbeat(ctx context.Context, deviceID string) error {
	var resp heartbeatResponse
	return c.do(ctx, http.MethodPost, "/devices/"+deviceID+"/heartbeat", nil, &resp)
}

type secretListEntry struct {
	MinerID string `json:"miner_id"`
	security.Envelope
}

type secretListResponse struct {
	DeviceID   string            `json:"device_id"`
	KeyVersion int               `json:"key_version"`
	Secrets    []secretListEntry `json:"secrets"`
	Total      int               `json:"total"`
}

// FetchSecrets pulls every secret newer than sinceCounter via
// GET /edge/secrets. siteID is implied by the authenticated device token
// on the cloud side; it is accepted here to satisfy pkg/edge.CloudClient
// and to keep the call site symmetrical with PollCommands.
func (c *Client) FetchSecrets(ctx context.Context, siteID string, sinceCounter int64) ([]types.MinerSecret, int, error) {
	path := "/edge/secrets?since_counter=" + strconv.FormatInt(sinceCounter, 10)

	var resp secretListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, 0, err
	}

	secrets := make([]types.MinerSecret, 0, len(resp.Secrets))
	for _, entry := range resp.Secrets {
		secrets = append(secrets, *entry.Envelope.ToMinerSecret(entry.MinerID, resp.DeviceID))
	}
	return secrets, resp.KeyVersion, nil
}

type commandEntry struct {
	CommandID            string                       `json:"command_id"`
	CommandType          types.CommandType            `json:"command_type"`
	Payload              map[string]any               `json:"payload"`
	TargetIDs            []string                     `json:"target_ids"`
	EncryptedCredentials map[string]security.Envelope `json:"encrypted_credentials,omitempty"`
}

type commandsPollResponse struct {
	Commands []commandEntry `json:"commands"`
}

// PollCommands pulls up to limit commands for siteID (QUEUED, or PULLED
// with an overdue ACK) via GET /edge/v1/commands/poll.
func (c *Client) PollCommands(ctx context.Context, siteID string, limit int) ([]types.CommandRecord, error) {
	path := fmt.Sprintf("/edge/v1/commands/poll?site_id=%s&limit=%d", siteID, limit)

	var resp commandsPollResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	records := make([]types.CommandRecord, 0, len(resp.Commands))
	for _, entry := range resp.Commands {
		creds := make(map[string]types.MinerSecret, len(entry.EncryptedCredentials))
		for minerID, env := range entry.EncryptedCredentials {
			creds[minerID] = *env.ToMinerSecret(minerID, "")
		}
		records = append(records, types.CommandRecord{
			CommandID:            entry.CommandID,
			SiteID:               siteID,
			CommandType:          entry.CommandType,
			Payload:              entry.Payload,
			TargetIDs:            entry.TargetIDs,
			EncryptedCredentials: creds,
			Status:               types.CommandPulled,
		})
	}
	return records, nil
}

type commandAckRequest struct {
	Results []types.CommandResult `json:"results"`
}

type commandAckResponse struct {
	OK bool `json:"ok"`
}

// AckCommand reports per-target outcomes via POST /edge/v1/commands/{id}/ack.
func (c *Client) AckCommand(ctx context.Context, commandID string, results []types.CommandResult) error {
	var resp commandAckResponse
	err := c.do(ctx, http.MethodPost, "/edge/v1/commands/"+commandID+"/ack", commandAckRequest{Results: results}, &resp)
	if err != nil {
		return err
	}
	if !resp.OK {
		return &ClientError{Message: "cloud rejected ack", Path: "/edge/v1/commands/" + commandID + "/ack"}
	}
	return nil
}

type scanStartRequest struct {
	JobID        string `json:"job_id"`
	SiteID       string `json:"site_id"`
	IPRangeStart string `json:"ip_range_start"`
	IPRangeEnd   string `json:"ip_range_end"`
	TotalIPs     int    `json:"total_ips"`
}

// ReportScanStart tells the cloud a scan job has begun running at the
// edge, via POST /edge/scan. The scanner only ever runs locally; this is
// the mirror write so the cloud side has a job row to progress/finalize.
func (c *Client) ReportScanStart(ctx context.Context, job *types.IPScanJob) error {
	req := scanStartRequest{
		JobID:        job.ID,
		SiteID:       job.SiteID,
		IPRangeStart: job.IPRangeStart,
		IPRangeEnd:   job.IPRangeEnd,
		TotalIPs:     job.TotalIPs,
	}
	return c.do(ctx, http.MethodPost, "/edge/scan", req, nil)
}

type scanProgressRequest struct {
	ScannedIPs       int `json:"scanned_ips"`
	DiscoveredMiners int `json:"discovered_miners"`
}

// ReportScanProgress mirrors a job's current counters via
// POST /edge/scan/{id}/progress.
func (c *Client) ReportScanProgress(ctx context.Context, jobID string, scannedIPs, discoveredMiners int) error {
	req := scanProgressRequest{ScannedIPs: scannedIPs, DiscoveredMiners: discoveredMiners}
	return c.do(ctx, http.MethodPost, "/edge/scan/"+jobID+"/progress", req, nil)
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

// ReportScanResults finalizes a scan job on the cloud side via
// POST /edge/scan/{id}/results, after the local sweep has completed.
func (c *Client) ReportScanResults(ctx context.Context, jobID string, status types.ScanJobStatus, scanErr string, discovered []types.DiscoveredMiner) error {
	miners := make([]scanResultEntry, 0, len(discovered))
	for _, dm := range discovered {
		miners = append(miners, scanResultEntry{
			IPAddress:     dm.IPAddress,
			DetectedModel: dm.DetectedModel,
			ControlPort:   dm.ControlPort,
		})
	}
	req := scanResultsRequest{Status: status, Error: scanErr, Miners: miners}
	return c.do(ctx, http.MethodPost, "/edge/scan/"+jobID+"/results", req, nil)
}
