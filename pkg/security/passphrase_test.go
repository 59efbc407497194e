package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptWithPassphrase_RoundTrip(t *testing.T) {
	plaintext := []byte("super secret miner pool credentials")

	block, err := EncryptWithPassphrase(plaintext, []byte("correct horse battery staple"))
	require.NoError(t, err)
	assert.Equal(t, PassphraseAlgo, block.Algo)
	assert.Equal(t, PassphraseVersion, block.Version)

	got, err := DecryptWithPassphrase(block, []byte("correct horse battery staple"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptWithPassphrase_WrongPassphraseFails(t *testing.T) {
	block, err := EncryptWithPassphrase([]byte("data"), []byte("right-pass"))
	require.NoError(t, err)

	_, err = DecryptWithPassphrase(block, []byte("wrong-pass"))
	assert.Error(t, err)
}

func TestDecryptWithPassphrase_RejectsWrongAlgoOrVersion(t *testing.T) {
	block, err := EncryptWithPassphrase([]byte("data"), []byte("pass"))
	require.NoError(t, err)

	bad := *block
	bad.Algo = "AES-128-CBC"
	_, err = DecryptWithPassphrase(&bad, []byte("pass"))
	assert.Error(t, err)

	bad2 := *block
	bad2.Version = 2
	_, err = DecryptWithPassphrase(&bad2, []byte("pass"))
	assert.Error(t, err)
}
