package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMissingCredentialsKey = errors.New("EXCHANGE_CREDENTIALS_KEY is not set")
	ErrInvalidCredentialsKey = errors.New("EXCHANGE_CREDENTIALS_KEY must be a base64 encoded 32 byte key")
	ErrMalformedCiphertext   = errors.New("malformed encrypted credential")
)

// Cipher encrypts and decrypts venue credentials with AES-256-GCM.
// Ciphertexts are base64(nonce || sealed).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a base64 encoded 32 byte key.
func NewCipher(encodedKey string) (*Cipher, error) {
	if encodedKey == "" {
		return nil, ErrMissingCredentialsKey
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidCredentialsKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plain string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	size := c.aead.NonceSize()
	if len(raw) <= size {
		return "", ErrMalformedCiphertext
	}
	plain, err := c.aead.Open(nil, raw[:size], raw[size:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return string(plain), nil
}

// EncryptString encrypts with the key from EXCHANGE_CREDENTIALS_KEY.
func EncryptString(plain string) (string, error) {
	c, err := NewCipher(GetConfig().ExchangeCRKey)
	if err != nil {
		return "", err
	}
	return c.Encrypt(plain)
}

// DecryptString decrypts with the key from EXCHANGE_CREDENTIALS_KEY.
func DecryptString(encoded string) (string, error) {
	c, err := NewCipher(GetConfig().ExchangeCRKey)
	if err != nil {
		return "", err
	}
	return c.Decrypt(encoded)
}
