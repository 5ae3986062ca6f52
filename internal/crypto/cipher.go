package crypto

import (
	"fmt"
	"io"
)

// Suite names a payload cipher. Both peers must be configured with the same
// suite; the wire format carries no suite identifier.
type Suite string

const (
	// SuiteCBC is AES-256-CBC with PKCS#7 padding: IV(16) || ciphertext.
	SuiteCBC Suite = "aes-256-cbc"
	// SuiteXChaCha is XChaCha20-Poly1305: nonce(24) || ciphertext || tag(16).
	SuiteXChaCha Suite = "xchacha20-poly1305"
)

// ParseSuite validates a configured suite name. The empty string selects
// SuiteCBC.
func ParseSuite(s string) (Suite, error) {
	switch Suite(s) {
	case "", SuiteCBC:
		return SuiteCBC, nil
	case SuiteXChaCha:
		return SuiteXChaCha, nil
	default:
		return "", fmt.Errorf("unknown cipher suite %q", s)
	}
}

// Cipher encrypts and decrypts frame payloads under one session key.
//
// Implementations are safe for concurrent use.
type Cipher interface {
	Suite() Suite

	// Seal returns a fresh random IV/nonce followed by the ciphertext.
	Seal(plaintext []byte) ([]byte, error)
	// Open reverses Seal.
	Open(payload []byte) ([]byte, error)

	// SealedLen is the payload size Seal produces for n plaintext bytes.
	SealedLen(n int64) int64
	// SealStream encrypts exactly n bytes from src into dst, writing
	// SealedLen(n) bytes.
	SealStream(dst io.Writer, src io.Reader, n int64) error
	// OpenStream decrypts an n-byte payload from src into dst. It may stop
	// reading early on error; the caller owns draining src.
	OpenStream(dst io.Writer, src io.Reader, n int64) error
}

// NewCipher returns the Cipher for suite keyed with key.
func NewCipher(suite Suite, key *Key) (Cipher, error) {
	switch suite {
	case SuiteCBC, "":
		return NewCBC(key)
	case SuiteXChaCha:
		return NewXChaCha(key)
	default:
		return nil, fmt.Errorf("%w: unknown suite %q", ErrCrypto, suite)
	}
}
