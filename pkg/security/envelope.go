package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"github.com/fleetcore/minerfleet/pkg/types"
)

const (
	// dekSize is the length of the fresh symmetric key sealed to the device.
	dekSize = 32
	// SchemaVersion is the current MinerSecret wire/at-rest schema version.
	SchemaVersion = 1
)

// GenerateDeviceKeyPair creates a new X25519 key pair for an edge device.
// The private key never leaves the device; only the public key is sent to
// the cloud at registration time.
func GenerateDeviceKeyPair() (publicKey, privateKey *[32]byte, err error) {
	return box.GenerateKey(rand.Reader)
}

// DerivePublicKey recomputes a device's X25519 public key from its private
// scalar, for the case where only the private key was persisted (e.g. an
// edge process reloading its key from disk on restart).
func DerivePublicKey(privateKey *[32]byte) (*[32]byte, error) {
	var pub [32]byte
	out, err := curve25519.X25519(privateKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	copy(pub[:], out)
	return &pub, nil
}

// sealedBoxNonce derives the nonce used to seal a box anonymously: an
// unkeyed BLAKE2b-192 hash of the ephemeral public key and the recipient's
// public key. Because a
// fresh ephemeral key is generated on every call, this nonce is never reused
// under a given (ephemeral, recipient) pair even though it is deterministic.
func sealedBoxNonce(ephemeralPub, recipientPub *[32]byte) (*[24]byte, error) {
	h, err := blake2b.New(24, nil)
	if err != nil {
		return nil, fmt.Errorf("init blake2b: %w", err)
	}
	h.Write(ephemeralPub[:])
	h.Write(recipientPub[:])

	var nonce [24]byte
	copy(nonce[:], h.Sum(nil))
	return &nonce, nil
}

// SealAnonymous encrypts message to recipientPublicKey using an anonymous,
// ephemeral X25519 sender key — the standard "sealed box" construction:
// only the holder of recipientPublicKey's matching private key can open it,
// and the sender is not authenticated. Output is ephemeralPublicKey || box.
func SealAnonymous(message []byte, recipientPublicKey *[32]byte) ([]byte, error) {
	ephemeralPub, ephemeralPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	nonce, err := sealedBoxNonce(ephemeralPub, recipientPublicKey)
	if err != nil {
		return nil, err
	}

	sealed := box.Seal(nil, message, nonce, recipientPublicKey, ephemeralPriv)

	out := make([]byte, 0, len(ephemeralPub)+len(sealed))
	out = append(out, ephemeralPub[:]...)
	out = append(out, sealed...)
	return out, nil
}

// OpenSealedBox reverses SealAnonymous using the recipient's private key.
func OpenSealedBox(sealedBox []byte, recipientPublicKey, recipientPrivateKey *[32]byte) ([]byte, error) {
	if len(sealedBox) < 32 {
		return nil, fmt.Errorf("sealed box too short")
	}

	var ephemeralPub [32]byte
	copy(ephemeralPub[:], sealedBox[:32])
	sealedBody := sealedBox[32:]

	nonce, err := sealedBoxNonce(&ephemeralPub, recipientPublicKey)
	if err != nil {
		return nil, err
	}

	message, ok := box.Open(nil, sealedBody, nonce, &ephemeralPub, recipientPrivateKey)
	if !ok {
		return nil, fmt.Errorf("sealed box authentication failed")
	}
	return message, nil
}

// SealedSecret is the set of ciphertext fields produced by EncryptDeviceSecret,
// mirroring the on-wire MinerSecret envelope shape.
type SealedSecret struct {
	EncryptedPayload []byte
	WrappedDEK       []byte
	Nonce            []byte
	AAD              types.AAD
}

// EncryptDeviceSecret performs the full device-envelope encryption path:
// generate a fresh DEK, AES-256-GCM the plaintext
// under it with aad bound in, then seal the DEK to the device's public key.
func EncryptDeviceSecret(plaintext []byte, devicePublicKey *[32]byte, aad types.AAD) (*SealedSecret, error) {
	dek := make([]byte, dekSize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("generate dek: %w", err)
	}

	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	canonicalAAD, err := CanonicalAAD(aad)
	if err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, canonicalAAD)

	wrappedDEK, err := SealAnonymous(dek, devicePublicKey)
	if err != nil {
		return nil, fmt.Errorf("wrap dek: %w", err)
	}

	return &SealedSecret{
		EncryptedPayload: ciphertext,
		WrappedDEK:       wrappedDEK,
		Nonce:            nonce,
		AAD:              aad,
	}, nil
}

// DecryptDeviceSecret is the edge-side inverse of EncryptDeviceSecret. Any
// tampering with encryptedPayload, nonce, wrappedDEK, or the canonical
// serialization of aad causes this to fail with an authentication error,
// never a silently wrong plaintext.
func DecryptDeviceSecret(secret *types.MinerSecret, devicePublicKey, devicePrivateKey *[32]byte) ([]byte, error) {
	dek, err := OpenSealedBox(secret.WrappedDEK, devicePublicKey, devicePrivateKey)
	if err != nil {
		return nil, fmt.Errorf("unwrap dek: %w", err)
	}
	defer zeroize(dek)

	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	canonicalAAD, err := CanonicalAAD(secret.AAD)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, secret.Nonce, secret.EncryptedPayload, canonicalAAD)
	if err != nil {
		return nil, fmt.Errorf("gcm authentication failed: %w", err)
	}
	return plaintext, nil
}

// NewAAD builds an AAD with the current schema/key version, timestamped now.
func NewAAD(keyVersion int, minerID string) types.AAD {
	return types.AAD{
		SchemaVersion: SchemaVersion,
		KeyVersion:    keyVersion,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		MinerID:       minerID,
	}
}

// zeroize best-effort clears sensitive bytes after use.
func zeroize(b []byte) {
	Zeroize(b)
}

// Zeroize best-effort clears sensitive bytes after use. Exported so
// callers outside this package (e.g. pkg/edge, once it has decrypted a
// credential payload) can apply the same discipline.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
