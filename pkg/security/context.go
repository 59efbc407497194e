package security

import (
	"fmt"

	"github.com/fleetcore/minerfleet/pkg/types"
)

// CryptoContext is the explicit dependency the edge threads through
// pkg/edge in place of any process-wide singleton: it
// carries the device's own key pair and an optional site-master
// passphrase, scoped to one edge process, never a package-level global.
type CryptoContext struct {
	DevicePublicKey  *[32]byte
	DevicePrivateKey *[32]byte
	passphrase       []byte // SITE_MASTER_PASSPHRASE, if configured
}

// NewCryptoContext constructs a CryptoContext from an already-loaded device
// key pair.
func NewCryptoContext(pub, priv *[32]byte) *CryptoContext {
	return &CryptoContext{DevicePublicKey: pub, DevicePrivateKey: priv}
}

// WithPassphrase attaches a site-master passphrase to the context. The
// passphrase is copied so callers may zero their own buffer afterward.
func (c *CryptoContext) WithPassphrase(passphrase string) *CryptoContext {
	c.passphrase = []byte(passphrase)
	return c
}

// Decrypt unwraps a device-envelope MinerSecret's plaintext payload.
func (c *CryptoContext) Decrypt(secret *types.MinerSecret) ([]byte, error) {
	if c.DevicePrivateKey == nil {
		return nil, fmt.Errorf("crypto context has no device private key")
	}
	return DecryptDeviceSecret(secret, c.DevicePublicKey, c.DevicePrivateKey)
}

// HasPassphrase reports whether a site-master passphrase was configured.
func (c *CryptoContext) HasPassphrase() bool {
	return len(c.passphrase) > 0
}

// DecryptPassphraseBlock decrypts a PassphraseBlock using the context's
// configured passphrase. The context's internal copy is never consumed —
// DecryptWithPassphrase zeroes the slice it's given, so a fresh copy is
// passed each call.
func (c *CryptoContext) DecryptPassphraseBlock(block *PassphraseBlock) ([]byte, error) {
	if !c.HasPassphrase() {
		return nil, fmt.Errorf("no site master passphrase configured")
	}
	copyPass := make([]byte, len(c.passphrase))
	copy(copyPass, c.passphrase)
	return DecryptWithPassphrase(block, copyPass)
}
