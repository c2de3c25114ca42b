package security

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(newKey(t))
	require.NoError(t, err)

	enc, err := c.Encrypt("api-secret")
	require.NoError(t, err)
	assert.NotContains(t, enc, "api-secret")

	other, err := c.Encrypt("api-secret")
	require.NoError(t, err)
	assert.NotEqual(t, enc, other, "nonce must differ per encryption")

	plain, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "api-secret", plain)
}

func TestCipherRejectsBadKeys(t *testing.T) {
	_, err := NewCipher("")
	assert.ErrorIs(t, err, ErrMissingCredentialsKey)

	_, err = NewCipher("not base64!")
	assert.ErrorIs(t, err, ErrInvalidCredentialsKey)

	_, err = NewCipher(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidCredentialsKey)
}

func TestCipherDecryptFailures(t *testing.T) {
	c, err := NewCipher(newKey(t))
	require.NoError(t, err)

	_, err = c.Decrypt("%%%")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("abc")))
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	enc, err := c.Encrypt("secret")
	require.NoError(t, err)
	wrong, err := NewCipher(newKey(t))
	require.NoError(t, err)
	_, err = wrong.Decrypt(enc)
	assert.Error(t, err)
}

func TestEncryptStringUsesEnvKey(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", "")
	_, err := EncryptString("x")
	assert.ErrorIs(t, err, ErrMissingCredentialsKey)

	t.Setenv("EXCHANGE_CREDENTIALS_KEY", newKey(t))
	enc, err := EncryptString("key-123")
	require.NoError(t, err)
	plain, err := DecryptString(enc)
	require.NoError(t, err)
	assert.Equal(t, "key-123", plain)
}

func TestTokenVerifier(t *testing.T) {
	_, err := NewTokenVerifier("")
	assert.ErrorIs(t, err, ErrOperatorTokenNotConfigured)

	_, err = NewTokenVerifier("plain-text")
	assert.Error(t, err)

	hashed, err := bcrypt.GenerateFromPassword([]byte("op-token"), bcrypt.MinCost)
	require.NoError(t, err)
	v, err := NewTokenVerifier(string(hashed))
	require.NoError(t, err)

	assert.True(t, v.Verify("op-token"))
	assert.False(t, v.Verify("other"))
	assert.False(t, v.Verify(""))
}
