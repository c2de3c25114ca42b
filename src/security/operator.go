package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrOperatorTokenNotConfigured = errors.New("OPERATOR_TOKEN_HASH is not set")

// HashOperatorToken returns the bcrypt hash to store in OPERATOR_TOKEN_HASH.
func HashOperatorToken(token string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// TokenVerifier checks bearer tokens against a bcrypt hash.
type TokenVerifier struct {
	hash []byte
}

func NewTokenVerifier(hash string) (*TokenVerifier, error) {
	if hash == "" {
		return nil, ErrOperatorTokenNotConfigured
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, err
	}
	return &TokenVerifier{hash: []byte(hash)}, nil
}

func (v *TokenVerifier) Verify(token string) bool {
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(token)) == nil
}
