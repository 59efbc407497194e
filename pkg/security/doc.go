/*
Package security implements the envelope-encryption scheme that lets the
cloud hand per-miner credentials to exactly one edge device without ever
holding the plaintext.

# Two paths

Device envelope (primary): a fresh 32-byte DEK is generated per secret,
the plaintext is sealed with AES-256-GCM under the DEK with a canonical
(sorted-key) serialization of the secret's AAD bound into the GCM tag,
and the DEK itself is sealed anonymously to the device's X25519 public
key (EncryptDeviceSecret/DecryptDeviceSecret, SealAnonymous/OpenSealedBox).
Tampering with any byte of the ciphertext, nonce, wrapped DEK, or AAD
causes authentication failure, never a silently wrong plaintext.

Site-master passphrase (secondary, UI-originated): a PassphraseBlock
carries {ciphertext, iv, salt, algo, version}; the key is derived with
PBKDF2-HMAC-SHA256 at 100,000 iterations over a caller-supplied
passphrase and a per-block salt (EncryptWithPassphrase/DecryptWithPassphrase).
algo/version are checked strictly before any decryption is attempted.

# CryptoContext

CryptoContext replaces the global E2EEManager-style singleton the
original implementation used: it carries one device's key pair and
optional passphrase, and is constructed once by the edge process and
threaded explicitly into pkg/edge (adapters never receive it). There is no
package-level crypto state anywhere in this package.
*/
package security
