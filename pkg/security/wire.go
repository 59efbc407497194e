package security

import "github.com/fleetcore/minerfleet/pkg/types"

// Envelope is the on-wire JSON shape of a MinerSecret. It
// exists separately from types.MinerSecret because the wire format
// needs explicit json tags and omits the miner/device id pair, which
// travels in the URL path or a surrounding list entry instead.
type Envelope struct {
	EncryptedPayload []byte    `json:"encrypted_payload"`
	WrappedDEK       []byte    `json:"wrapped_dek"`
	Nonce            []byte    `json:"nonce"`
	AAD              types.AAD `json:"aad"`
	Counter          int64     `json:"counter"`
	SchemaVersion    int       `json:"schema_version"`
	KeyVersion       int       `json:"key_version"`
}

// ToEnvelope projects the storage-facing MinerSecret onto its wire shape.
func ToEnvelope(s *types.MinerSecret) Envelope {
	return Envelope{
		EncryptedPayload: s.EncryptedPayload,
		WrappedDEK:       s.WrappedDEK,
		Nonce:            s.Nonce,
		AAD:              s.AAD,
		Counter:          s.Counter,
		SchemaVersion:    s.SchemaVersion,
		KeyVersion:       s.KeyVersion,
	}
}

// ToMinerSecret reconstructs a MinerSecret from its wire envelope, given
// the miner/device id pair carried out-of-band.
func (e Envelope) ToMinerSecret(minerID, deviceID string) *types.MinerSecret {
	return &types.MinerSecret{
		MinerID:          minerID,
		DeviceID:         deviceID,
		EncryptedPayload: e.EncryptedPayload,
		WrappedDEK:       e.WrappedDEK,
		Nonce:            e.Nonce,
		AAD:              e.AAD,
		Counter:          e.Counter,
		SchemaVersion:    e.SchemaVersion,
		KeyVersion:       e.KeyVersion,
	}
}
