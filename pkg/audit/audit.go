// Package audit provides the append-only device audit log: every secret
// upload/fetch, command dispatch/ack, capability denial, and device
// lifecycle transition is recorded through Logger.Record, masked on the
// read path, and never mutated afterward.
package audit

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetcore/minerfleet/pkg/log"
	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/types"
)

// EventType enumerates the audited operations.
type EventType string

const (
	EventDeviceRegistered   EventType = "device.registered"
	EventDeviceRevoked      EventType = "device.revoked"
	EventDeviceHeartbeat    EventType = "device.heartbeat"
	EventSecretUploaded     EventType = "secret.uploaded"
	EventSecretFetched      EventType = "secret.fetched"
	EventSecretRotated      EventType = "secret.rotated"
	EventCommandIssued      EventType = "command.issued"
	EventCommandPulled      EventType = "command.pulled"
	EventCommandAcked       EventType = "command.acked"
	EventCapabilityDenied   EventType = "capability.denied"
	EventScanJobStarted     EventType = "scan.started"
	EventScanJobCompleted   EventType = "scan.completed"
	EventMinerImported      EventType = "miner.imported"
	EventIPRevealed         EventType = "ip.revealed"
)

// sensitiveFieldPattern matches EventData keys that must never reach a
// reader unmasked: anything containing "password", "secret", "token",
// "credential", "key", or "private" — this must catch bare field names like "public_key" or
// "device_key" too, not just compound private-key/api-key spellings.
var sensitiveFieldPattern = regexp.MustCompile(`(?i)(password|secret|token|credential|key|private)`)

// Record is the input to Logger.Record — a superset of types.DeviceAuditEvent
// that lets callers skip ID/CreatedAt assignment.
type Record struct {
	EventType    EventType
	TenantID     string
	DeviceID     string
	MinerID      string
	ActorID      string
	ActorType    string
	SourceIP     string
	UserAgent    string
	EventData    map[string]any
	Result       types.AuditResult
	ErrorMessage string
}

// Logger appends audit events to storage and fans them out to subscribers
// (metrics, SIEM shippers) via an in-process broker — adapted from the
// publish/subscribe broker pattern used for cluster events, generalized
// here to one durable, masked event stream instead of several ephemeral ones.
type Logger struct {
	store storage.Store

	mu          sync.RWMutex
	subscribers map[chan *types.DeviceAuditEvent]bool
}

// NewLogger constructs an audit Logger backed by store.
func NewLogger(store storage.Store) *Logger {
	return &Logger{
		store:       store,
		subscribers: make(map[chan *types.DeviceAuditEvent]bool),
	}
}

// Record persists an audit event and notifies subscribers. It never returns
// an error to callers that are mid-request on a different critical path;
// storage failures are logged and swallowed, since losing one audit row
// must never block the operation it's auditing.
func (l *Logger) Record(ctx context.Context, r Record) {
	event := &types.DeviceAuditEvent{
		ID:           uuid.NewString(),
		EventType:    string(r.EventType),
		TenantID:     r.TenantID,
		DeviceID:     r.DeviceID,
		MinerID:      r.MinerID,
		ActorID:      r.ActorID,
		ActorType:    r.ActorType,
		SourceIP:     r.SourceIP,
		UserAgent:    r.UserAgent,
		EventData:    r.EventData,
		Result:       r.Result,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    time.Now().UTC(),
	}

	if err := l.store.AppendAuditEvent(event); err != nil {
		auditLogger := log.WithComponent("audit")
		auditLogger.Error().Err(err).Str("event_type", string(r.EventType)).Msg("failed to append audit event")
		return
	}

	l.broadcast(event)
}

// Subscribe returns a channel that receives every newly recorded event,
// already masked. Callers must Unsubscribe when done.
func (l *Logger) Subscribe() chan *types.DeviceAuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan *types.DeviceAuditEvent, 50)
	l.subscribers[ch] = true
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (l *Logger) Unsubscribe(ch chan *types.DeviceAuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.subscribers[ch]; ok {
		delete(l.subscribers, ch)
		close(ch)
	}
}

func (l *Logger) broadcast(event *types.DeviceAuditEvent) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	masked := Mask(event)
	for ch := range l.subscribers {
		select {
		case ch <- masked:
		default:
		}
	}
}

// List returns the most recent events for a tenant, masked for display.
func (l *Logger) List(tenantID string, limit int) ([]*types.DeviceAuditEvent, error) {
	events, err := l.store.ListAuditEvents(tenantID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*types.DeviceAuditEvent, len(events))
	for i, e := range events {
		out[i] = Mask(e)
	}
	return out, nil
}

// Mask returns a copy of e with every sensitive EventData field replaced by
// a redaction marker and the last two octets of any IPv4 SourceIP blanked.
// The durable record stored via AppendAuditEvent always retains the
// unmasked data; masking is applied only on this read path.
func Mask(e *types.DeviceAuditEvent) *types.DeviceAuditEvent {
	masked := *e

	if len(e.EventData) > 0 {
		maskedData := make(map[string]any, len(e.EventData))
		for k, v := range e.EventData {
			if sensitiveFieldPattern.MatchString(k) {
				maskedData[k] = "***REDACTED***"
			} else {
				maskedData[k] = v
			}
		}
		masked.EventData = maskedData
	}

	masked.SourceIP = maskIP(e.SourceIP)
	return &masked
}

var ipOctetsPattern = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.\d{1,3}\.\d{1,3}$`)

// maskIP blanks the last two octets of an IPv4 address, e.g.
// "10.20.30.40" -> "10.20.xxx.xxx". Non-IPv4 strings pass through unchanged.
func maskIP(ip string) string {
	return MaskIP(ip)
}

// MaskIP blanks octets 3-4 of an IPv4 address so readers cannot
// geolocate a site host. Exported so callers outside this package (e.g.
// pkg/cloudapi's IP-reveal handler) apply the identical masking the
// audit read path uses, rather than re-deriving it.
func MaskIP(ip string) string {
	m := ipOctetsPattern.FindStringSubmatch(ip)
	if m == nil {
		return ip
	}
	return m[1] + "." + m[2] + ".xxx.xxx"
}
