// Package types holds the flat, storage-facing entities shared by every
// component of the fleet control plane. Entities are looked up by id
// through pkg/storage, never navigated as an object graph.
package types

import "time"

// DeviceStatus is the lifecycle state of an EdgeDevice.
type DeviceStatus string

const (
	DeviceStatusPending DeviceStatus = "PENDING"
	DeviceStatusActive  DeviceStatus = "ACTIVE"
	DeviceStatusRevoked DeviceStatus = "REVOKED"
)

// EdgeDevice is a per-site collector registered with the cloud.
type EdgeDevice struct {
	TenantID    string
	ID          string
	DeviceName  string
	SiteID      string // optional site scope
	DeviceToken string // bearer credential, opaque, shown once at creation
	PublicKey   []byte // 32-byte X25519 public key
	KeyVersion  int
	Status      DeviceStatus
	LastSeenAt  time.Time
	CreatedAt   time.Time
}

// AAD is the structured Additional Authenticated Data bound into every
// MinerSecret's AES-GCM tag. Serialize with security.CanonicalAAD before
// using it as GCM aad — field order must be deterministic.
type AAD struct {
	SchemaVersion int    `json:"schema_version"`
	KeyVersion    int    `json:"key_version"`
	CreatedAt     string `json:"created_at"`
	MinerID       string `json:"miner_id,omitempty"`
}

// MinerSecret is the ciphertext envelope the cloud stores for a single
// (miner, device) pair. See pkg/security for the wrap/unwrap algorithms.
type MinerSecret struct {
	MinerID          string
	DeviceID         string
	EncryptedPayload []byte
	WrappedDEK       []byte
	Nonce            []byte
	AAD              AAD
	Counter          int64
	SchemaVersion    int
	KeyVersion       int
	UpdatedAt        time.Time
}

// IPEncryptionMode controls how a HostingMiner's IP address is stored/revealed.
type IPEncryptionMode int

const (
	IPModeMask          IPEncryptionMode = 1
	IPModeServerEncrypt IPEncryptionMode = 2
	IPModeE2EE          IPEncryptionMode = 3
)

// PendingE2EEMarker is stored verbatim in IPAddress until the client
// supplies an envelope for an E2EE-mode miner. Preserved for compatibility;
// any reveal of an E2EE IP is denied unconditionally regardless of RBAC.
const PendingE2EEMarker = "E2EE:pending-client-encryption"

// CapabilityLevel is the DISCOVERY <= TELEMETRY <= CONTROL tri-level gate.
type CapabilityLevel int

const (
	CapabilityDiscovery CapabilityLevel = 1
	CapabilityTelemetry CapabilityLevel = 2
	CapabilityControl   CapabilityLevel = 3
)

// HostingMiner is the subset of miner attributes the core cares about.
type HostingMiner struct {
	ID               string
	SiteID           string
	IPAddress        string // plaintext, masked marker, or pending-E2EE marker
	IPEncryptionMode IPEncryptionMode
	CapabilityLevel  CapabilityLevel
	BoundDeviceID    string // empty means unbound
	ControlPort      int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ScanJobStatus is the lifecycle state of an IPScanJob.
type ScanJobStatus string

const (
	ScanJobPending   ScanJobStatus = "PENDING"
	ScanJobRunning   ScanJobStatus = "RUNNING"
	ScanJobCompleted ScanJobStatus = "COMPLETED"
	ScanJobFailed    ScanJobStatus = "FAILED"
	ScanJobCancelled ScanJobStatus = "CANCELLED"
)

// IPScanJob tracks a bounded IP-range discovery sweep.
type IPScanJob struct {
	ID               string
	SiteID           string
	DeviceID         string
	IPRangeStart     string
	IPRangeEnd       string
	TotalIPs         int
	ScannedIPs       int
	DiscoveredMiners int
	Status           ScanJobStatus
	Error            string
	CreatedAt        time.Time
	StartedAt        time.Time
	FinishedAt       time.Time
}

// DiscoveredMiner is one result row from an IPScanJob.
type DiscoveredMiner struct {
	ScanJobID       string
	IPAddress       string
	DetectedModel   string // e.g. "Antminer S19", or "UNKNOWN"
	ControlPort     int
	IsImported      bool
	ImportedMinerID string
	DiscoveredAt    time.Time
}

// TelemetryRecord is the fixed, normalized shape every miner firmware's
// heterogeneous JSON response is converted into at the edge of pkg/minerclient.
// Downstream code never inspects raw vendor JSON.
type TelemetryRecord struct {
	Timestamp    time.Time
	SiteID       string
	MinerID      string
	Online       bool
	HashrateTHS  float64
	TemperatureC float64
	PowerW       float64
	FanRPM       int
	RejectRate   float64
	PoolURL      string
}

// LiveSnapshot is the single current-state row per miner.
type LiveSnapshot struct {
	SiteID       string
	MinerID      string
	Online       bool
	HashrateTHS  float64
	TemperatureC float64
	PowerW       float64
	FanRPM       int
	PoolURL      string
	LastSeen     time.Time
}

// History5Min is one 5-minute aggregate bucket for one miner.
type History5Min struct {
	BucketTS        time.Time
	SiteID          string
	MinerID         string
	AvgHashrateTHS  float64
	MaxHashrateTHS  float64
	MinHashrateTHS  float64
	AvgTemperatureC float64
	MaxTemperatureC float64
	AvgPowerW       float64
	AvgFanRPM       float64
	OnlineRatio     float64
	Samples         int
}

// DailyAggregate is one per-day rollup for one miner.
type DailyAggregate struct {
	Day             string // YYYY-MM-DD
	SiteID          string
	MinerID         string
	AvgHashrateTHS  float64
	MaxHashrateTHS  float64
	MinHashrateTHS  float64
	AvgTemperatureC float64
	AvgPowerW       float64
	OnlineRatio     float64
	Samples         int
}

// CommandType enumerates the adapter operations the fleet supports.
type CommandType string

const (
	CommandReboot        CommandType = "REBOOT"
	CommandPowerMode     CommandType = "POWER_MODE"
	CommandChangePool    CommandType = "CHANGE_POOL"
	CommandSetFreq       CommandType = "SET_FREQ"
	CommandThermalPolicy CommandType = "THERMAL_POLICY"
	CommandLED           CommandType = "LED"
)

// CommandStatus is the cloud-side lifecycle of a CommandRecord.
type CommandStatus string

const (
	CommandQueued    CommandStatus = "QUEUED"
	CommandPulled    CommandStatus = "PULLED"
	CommandSucceeded CommandStatus = "SUCCEEDED"
	CommandFailed    CommandStatus = "FAILED"
	CommandPartial   CommandStatus = "PARTIAL"
)

// CommandRecord is the cloud side of the command queue.
type CommandRecord struct {
	CommandID            string
	TenantID             string
	SiteID               string
	DeviceID             string
	CommandType          CommandType
	Payload              map[string]any
	TargetIDs            []string
	EncryptedCredentials map[string]MinerSecret // miner id -> envelope
	Status               CommandStatus
	Results              []CommandResult
	CreatedAt            time.Time
	PulledAt             time.Time
	CompletedAt          time.Time
}

// CommandResult is one target's outcome, reported via the edge ACK.
type CommandResult struct {
	MinerID string
	Status  string // SUCCEEDED | FAILED
	Message string
	Metrics map[string]any
}

// AuditResult classifies the outcome of an audited operation.
type AuditResult string

const (
	AuditSuccess AuditResult = "success"
	AuditError   AuditResult = "error"
	AuditDenied  AuditResult = "denied"
)

// DeviceAuditEvent is one append-only audit log row. Never mutated
// after write; masking is applied on the read path only.
type DeviceAuditEvent struct {
	ID           string
	EventType    string
	TenantID     string
	DeviceID     string
	MinerID      string
	ActorID      string
	ActorType    string
	SourceIP     string
	UserAgent    string
	EventData    map[string]any
	Result       AuditResult
	ErrorMessage string
	CreatedAt    time.Time
}

// DenialReason enumerates why a capability-gate check failed.
type DenialReason string

const (
	DenialNone               DenialReason = ""
	DenialCapability         DenialReason = "CAPABILITY_DENIED"
	DenialBoundDevice        DenialReason = "BOUND_DEVICE_DENIED"
	DenialDeviceRevoked      DenialReason = "DEVICE_REVOKED"
	DenialKeyVersionMismatch DenialReason = "KEY_VERSION_MISMATCH"
)
