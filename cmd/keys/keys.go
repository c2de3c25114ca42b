package keys

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"signalmirror/src/security"
)

var ErrEmptyInput = errors.New("nothing to encrypt")

// EncryptCredential prints plain encrypted with EXCHANGE_CREDENTIALS_KEY,
// ready to be stored in trading_accounts.api_key or secret_key.
func EncryptCredential(w io.Writer, plain string) error {
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return ErrEmptyInput
	}
	encrypted, err := security.EncryptString(plain)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}
	_, err = fmt.Fprintln(w, encrypted)
	return err
}

// HashOperatorToken prints the value to set in OPERATOR_TOKEN_HASH.
func HashOperatorToken(w io.Writer, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyInput
	}
	hashed, err := security.HashOperatorToken(token)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hashed)
	return err
}

// GenerateKey prints a fresh EXCHANGE_CREDENTIALS_KEY.
func GenerateKey(w io.Writer) error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, base64.StdEncoding.EncodeToString(key))
	return err
}
