package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/awnumar/memguard"
)

// TokenBytes is the entropy of a generated token (256 bits).
const TokenBytes = 32

var errEmptyToken = errors.New("token is empty")

// GenerateToken returns 32 random bytes hex-encoded (64 characters).
func GenerateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	defer memguard.WipeBytes(b)
	return hex.EncodeToString(b), nil
}

// Token keeps the shared secret sealed in an encrypted enclave until the
// handshake needs it.
type Token struct {
	enclave *memguard.Enclave
}

// NewToken seals token. The caller's string cannot be wiped; keep its
// lifetime short.
func NewToken(token string) (*Token, error) {
	if token == "" {
		return nil, errEmptyToken
	}
	return &Token{enclave: memguard.NewEnclave([]byte(token))}, nil
}

// Open unseals the token for the duration of fn. fn must not retain b.
func (t *Token) Open(fn func(b []byte) error) error {
	if t == nil || t.enclave == nil {
		return errEmptyToken
	}
	buf, err := t.enclave.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Destroy drops the sealed token.
func (t *Token) Destroy() {
	if t != nil {
		t.enclave = nil
	}
}
