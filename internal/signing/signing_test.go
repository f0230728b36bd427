package signing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	message := []byte("chronicle batch bytes")
	sig := key.Sign(message)

	assert.True(t, Verify(key.PublicKeyHex(), message, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	sig := key.Sign([]byte("original"))
	assert.False(t, Verify(key.PublicKeyHex(), []byte("tampered"), sig))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	key1, err := GeneratePrivateKey()
	require.NoError(t, err)
	key2, err := GeneratePrivateKey()
	require.NoError(t, err)

	message := []byte("chronicle batch bytes")
	sig := key1.Sign(message)

	assert.False(t, Verify(key2.PublicKeyHex(), message, sig))
}

func TestVerifyRejectsMalformedHex(t *testing.T) {
	assert.False(t, Verify("not-hex", []byte("m"), "also-not-hex"))
}

func TestPublicKeyHexLength(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	assert.Len(t, key.PublicKeyHex(), PublicKeyHexLen)
}
