package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PassphraseAlgo is the only algorithm this path accepts; decryption
	// must reject any other value strictly.
	PassphraseAlgo = "AES-256-GCM"
	// PassphraseVersion is the only supported block version.
	PassphraseVersion = 1

	pbkdf2Iterations = 100_000
	pbkdf2KeyLen     = 32
	saltSize         = 16
)

// PassphraseBlock is the site-master-passphrase alternative flow
// for UI-originated encryption.
type PassphraseBlock struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	Salt       []byte `json:"salt"`
	Algo       string `json:"algo"`
	Version    int    `json:"version"`
}

// deriveKey derives a 32-byte AES-256 key from a passphrase and salt via
// PBKDF2-HMAC-SHA256 with 100,000 iterations.
func deriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
}

// EncryptWithPassphrase encrypts plaintext under a freshly derived key from
// passphrase. The passphrase bytes are zeroed before returning.
func EncryptWithPassphrase(plaintext, passphrase []byte) (*PassphraseBlock, error) {
	defer zeroize(passphrase)

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	defer zeroize(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	ciphertext := gcm.Seal(nil, iv, plaintext, nil)

	return &PassphraseBlock{
		Ciphertext: ciphertext,
		IV:         iv,
		Salt:       salt,
		Algo:       PassphraseAlgo,
		Version:    PassphraseVersion,
	}, nil
}

// DecryptWithPassphrase reverses EncryptWithPassphrase. algo/version are
// validated strictly before any decryption is attempted.
func DecryptWithPassphrase(block *PassphraseBlock, passphrase []byte) ([]byte, error) {
	defer zeroize(passphrase)

	if block.Algo != PassphraseAlgo {
		return nil, fmt.Errorf("unsupported algo: %s", block.Algo)
	}
	if block.Version != PassphraseVersion {
		return nil, fmt.Errorf("unsupported version: %d", block.Version)
	}

	key := deriveKey(passphrase, block.Salt)
	defer zeroize(key)

	cipherBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(cipherBlock)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, block.IV, block.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm authentication failed: %w", err)
	}
	return plaintext, nil
}
