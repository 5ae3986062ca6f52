package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeyBytes is the size of a derived session key (256 bits).
	KeyBytes = 32

	kdfIterations = 65536
)

// kdfSalt is fixed so that the key is a function of the token alone.
var kdfSalt = []byte("P2PMessengerSalt")

var (
	// ErrCrypto is the umbrella for every key derivation, encryption and
	// decryption failure.
	ErrCrypto = errors.New("crypto failure")

	ErrKeyDerivation = fmt.Errorf("%w: key derivation", ErrCrypto)
	ErrEncryption    = fmt.Errorf("%w: encryption", ErrCrypto)
	ErrDecryption    = fmt.Errorf("%w: decryption", ErrCrypto)

	// ErrMalformedPayload is returned for payloads too short to carry an IV
	// or nonce. It is reported before any decryption is attempted.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Key is a derived session key held in locked, read-only memory.
type Key struct {
	buf *memguard.LockedBuffer
}

// DeriveKey runs PBKDF2-HMAC-SHA256 over token with the fixed salt and
// iteration count. The same token always yields the same key. token is not
// modified.
func DeriveKey(token []byte) (*Key, error) {
	if len(token) == 0 {
		return nil, fmt.Errorf("%w: empty token", ErrKeyDerivation)
	}
	raw := pbkdf2.Key(token, kdfSalt, kdfIterations, KeyBytes, sha256.New)
	if len(raw) != KeyBytes {
		memguard.WipeBytes(raw)
		return nil, fmt.Errorf("%w: got %d key bytes", ErrKeyDerivation, len(raw))
	}
	buf := memguard.NewBufferFromBytes(raw) // wipes raw
	if buf.Size() != KeyBytes {
		buf.Destroy()
		return nil, fmt.Errorf("%w: locked buffer unavailable", ErrKeyDerivation)
	}
	buf.Freeze()
	return &Key{buf: buf}, nil
}

// Bytes exposes the key. The slice aliases locked memory: do not retain or
// modify it.
func (k *Key) Bytes() []byte {
	if k == nil || k.buf == nil || !k.buf.IsAlive() {
		return nil
	}
	return k.buf.Bytes()
}

// Equal reports whether k and other hold the same key, in constant time.
func (k *Key) Equal(other *Key) bool {
	a, b := k.Bytes(), other.Bytes()
	if a == nil || b == nil {
		return false
	}
	return k.buf.EqualTo(b)
}

// Fingerprint identifies the session key for out-of-band comparison: both
// peers derive the same key from the token, so matching fingerprints mean
// they typed the same token. It is the first 10 bytes of SHA-256(key) in
// groups of four hex digits, e.g. "3f2a 91c0 77de 0b4e 5a19".
func (k *Key) Fingerprint() string {
	sum := sha256.Sum256(k.Bytes())
	digits := hex.EncodeToString(sum[:10])
	groups := make([]string, 0, len(digits)/4)
	for i := 0; i < len(digits); i += 4 {
		groups = append(groups, digits[i:i+4])
	}
	return strings.Join(groups, " ")
}

// Destroy wipes the key. It is safe to call more than once.
func (k *Key) Destroy() {
	if k == nil || k.buf == nil {
		return
	}
	k.buf.Destroy()
}
