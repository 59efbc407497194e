package security

import (
	"encoding/json"
	"fmt"

	"github.com/fleetcore/minerfleet/pkg/types"
)

// CanonicalAAD serializes an AAD struct deterministically (sorted keys) so
// the bytes bound into an AES-GCM tag are reproducible across processes.
// Go's encoding/json already sorts map keys, so the struct is round-tripped
// through a map to guarantee ordering independent of struct field order.
func CanonicalAAD(aad types.AAD) ([]byte, error) {
	raw, err := json.Marshal(aad)
	if err != nil {
		return nil, fmt.Errorf("marshal aad: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("normalize aad: %w", err)
	}

	canonical, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical aad: %w", err)
	}
	return canonical, nil
}
